package main

import (
	"context"
	"log"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	"carbroker/migrations"
	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/server"
	"carbroker/pkg/telemetry"
	"carbroker/services/audit-svc/internal/repository"
	"carbroker/services/audit-svc/internal/service"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("audit-svc", 50056)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()

	// Telemetry
	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("Failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Log.Warn("Failed to shutdown telemetry", "error", err)
				}
			}()
			logger.Log.Info("Telemetry initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	// PostgreSQL connection
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	// Migrations
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(
			ctx,
			db.Pool(),
			&cfg.Database,
			migrations.PostgresMigrations,
			"postgres",
		); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
	}

	// Repository and service
	repo := repository.NewPostgresAuditRepository(db)
	auditService := service.NewAuditService(repo, cfg.App.Version)

	// The sink excludes its own write methods from audit to avoid recursion
	srv := server.NewWithOptions(cfg, &server.ServerOptions{
		AuditExcludeMethods: []string{
			"/carbroker.audit.v1.AuditService/LogEvent",
			"/carbroker.audit.v1.AuditService/LogEventBatch",
		},
	})

	auditv1.RegisterAuditServiceServer(srv.GetEngine(), auditService)

	logger.Info("Starting audit service",
		"port", cfg.GRPC.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
