package main

import (
	"context"
	"log"
	"os"
	"time"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/migrations"
	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/passhash"
	"carbroker/pkg/server"
	"carbroker/pkg/telemetry"
	"carbroker/services/identity-svc/internal/repository"
	"carbroker/services/identity-svc/internal/service"
	"carbroker/services/identity-svc/internal/token"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("identity-svc", 50053)
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
			logger.Log.Info("Telemetry initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	repos, err := repository.NewRepositories(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to create repositories", "error", err)
	}
	defer repos.Close()

	if cfg.Database.Driver == "postgres" || cfg.Database.Driver == "postgresql" {
		if err := runMigrations(ctx, cfg); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
	}

	tokenManager := token.NewManager(&token.Config{
		SecretKey:          getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		AccessTokenExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m")),
		RefreshTokenExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h")), // 7 days
		Issuer:             "carbroker-identity",
	})

	identityService := service.NewIdentityService(repos.Companies, repos.Blacklist, tokenManager)

	srv := server.New(cfg)
	identityv1.RegisterIdentityServiceServer(srv.GetEngine(), identityService)

	logger.Info("Starting identity service",
		"port", cfg.GRPC.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
		"database", cfg.Database.Driver,
	)

	// Seed dev accounts so a fresh stack is immediately usable
	if cfg.IsDevelopment() {
		seedDevCompanies(ctx, repos.Companies)
	}

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}

func runMigrations(ctx context.Context, cfg *config.Config) error {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.RunMigrations(
		ctx,
		db.Pool(),
		&cfg.Database,
		migrations.PostgresMigrations,
		"postgres",
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// seedDevCompanies creates one agent and one mock source for local runs.
func seedDevCompanies(ctx context.Context, repo repository.CompanyRepository) {
	passwordHash, err := passhash.HashPassword("password123")
	if err != nil {
		logger.Log.Warn("Failed to hash password for dev companies", "error", err)
		return
	}

	companies := []*repository.Company{
		{
			Name:         "Dev Agent",
			Email:        "agent@example.com",
			PasswordHash: passwordHash,
			Type:         service.TypeAgent,
			Status:       service.StatusActive,
		},
		{
			Name:         "Dev Mock Source",
			Email:        "source@example.com",
			PasswordHash: passwordHash,
			Type:         service.TypeSource,
			Status:       service.StatusActive,
			AdapterKind:  "mock",
		},
	}

	for _, c := range companies {
		if err := repo.Create(ctx, c); err != nil {
			if err != repository.ErrCompanyAlreadyExists {
				logger.Log.Warn("Failed to create dev company", "email", c.Email, "error", err)
			}
			continue
		}
		logger.Log.Info("Dev company created", "email", c.Email, "type", c.Type)
	}
}
