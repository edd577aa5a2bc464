package main

import (
	"context"
	"log"
	"time"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	"carbroker/migrations"
	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/server"
	"carbroker/pkg/telemetry"
	"carbroker/services/backoffice-svc/internal/repository"
	"carbroker/services/backoffice-svc/internal/service"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("backoffice-svc", 50057)
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
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.PostgresMigrations, "postgres"); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
	}

	store := repository.NewPostgresReportStore(db)
	snapshots := repository.NewPostgresSnapshotReader(db)
	reportService := service.NewReportService(store, snapshots, &cfg.Backoffice)

	// Periodic cleanup of expired stored reports
	cleanupInterval := cfg.Backoffice.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			reportService.RunCleanup(ctx)
		}
	}()

	srv := server.New(cfg)
	backofficev1.RegisterBackofficeServiceServer(srv.GetEngine(), reportService)

	logger.Info("Starting backoffice service",
		"port", cfg.GRPC.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
