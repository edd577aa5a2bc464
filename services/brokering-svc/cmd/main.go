package main

import (
	"context"
	"log"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	"carbroker/migrations"
	"carbroker/pkg/audit"
	"carbroker/pkg/cache"
	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/server"
	"carbroker/pkg/telemetry"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/booking"
	"carbroker/services/brokering-svc/internal/coverage"
	"carbroker/services/brokering-svc/internal/dispatcher"
	"carbroker/services/brokering-svc/internal/echo"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/idempotency"
	"carbroker/services/brokering-svc/internal/jobstore"
	"carbroker/services/brokering-svc/internal/repository"
	"carbroker/services/brokering-svc/internal/service"
	"carbroker/services/brokering-svc/internal/sweeper"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("brokering-svc", 50052)
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

	// Migrations run against the shared schema before repositories attach.
	if cfg.Database.Driver == "postgres" && cfg.Database.AutoMigrate {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.PostgresMigrations, "postgres"); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
		db.Close()
	}

	repos, err := repository.NewRepositories(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to build repositories", "error", err)
	}
	defer repos.Close()

	// Shared cache: effective coverage sets and cross-replica health.
	var coverageCache *cache.CoverageCache
	var healthCache *cache.HealthCache
	if cfg.Cache.Enabled {
		backend, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Fatal("failed to init cache", "error", err)
		}
		defer backend.Close()
		coverageCache = cache.NewCoverageCache(backend, cfg.Cache.DefaultTTL)
		healthCache = cache.NewHealthCache(backend, cfg.Cache.DefaultTTL)
	}

	healthMonitor := health.NewMonitor(healthWindowConfig(cfg), health.WithRepository(repos.Health), health.WithCache(healthCache))

	adapters := adapter.NewRegistry(repos.Companies)
	defer adapters.Close()

	agreements := agreement.NewRegistry(repos.Agreements, repos.Companies, nil)
	coverageResolver := coverage.NewResolver(repos.Coverage, repos.Agreements, adapters, coverageCache)
	store := jobstore.NewStore(repos.Jobs)

	disp := dispatcher.New(dispatcher.Config{
		Concurrency:       cfg.Dispatcher.Concurrency,
		PerCallTimeout:    cfg.Dispatcher.PerCallTimeout,
		SLA:               cfg.Dispatcher.SLATimeout,
		RecommendedPollMs: int(cfg.Dispatcher.RecommendedPoll.Milliseconds()),
	}, agreements, coverageResolver, healthMonitor, adapters, store)

	keys := idempotency.NewStore(repos.Idempotency, cfg.Idempotency.KeyTTL)
	bookingEngine := booking.New(agreements, repos.Bookings, keys, adapters, healthMonitor, cfg.Dispatcher.PerCallTimeout)

	echoBroker := echo.New(echo.Config{
		Concurrency:       cfg.Dispatcher.Concurrency,
		PerCallTimeout:    cfg.Echo.PerCallTimeout,
		SLA:               cfg.Echo.SLATimeout,
		WatchInterval:     echo.DefaultConfig().WatchInterval,
		WatchMax:          echo.DefaultConfig().WatchMax,
		RecommendedPollMs: int(cfg.Dispatcher.RecommendedPoll.Milliseconds()),
	}, agreements, adapters, repos.Echo, healthMonitor)

	// Audit sink: local file/stdout logger, or the audit-svc gRPC client.
	if cfg.Audit.Enabled {
		if cfg.Audit.Backend == "grpc" {
			auditClient, err := audit.NewGRPCClient(ctx, &audit.GRPCClientConfig{
				Address:     cfg.Services.Audit.Address(),
				Timeout:     cfg.Services.Audit.Timeout,
				BufferSize:  cfg.Audit.BufferSize,
				BatchSize:   100,
				FlushPeriod: cfg.Audit.FlushPeriod,
				MaxRetries:  cfg.Services.Audit.MaxRetries,
			})
			if err != nil {
				logger.Log.Warn("Failed to connect audit client, falling back to stdout", "error", err)
			} else {
				audit.SetGlobal(auditClient)
				defer auditClient.Close()
			}
		} else {
			auditLogger, err := audit.New(auditConfig(cfg))
			if err != nil {
				logger.Log.Warn("Failed to init audit logger", "error", err)
			} else {
				audit.SetGlobal(auditLogger)
				defer auditLogger.Close()
			}
		}
	}

	// Retention sweeper; archive writes go to history-svc when configured.
	var archiver sweeper.Archiver
	if cfg.Services.History.Host != "" {
		historyArchiver, err := sweeper.NewHistoryArchiver(ctx, cfg.Services.History)
		if err != nil {
			logger.Log.Warn("Failed to connect history archiver, retention becomes delete-only", "error", err)
		} else {
			defer historyArchiver.Close()
			archiver = historyArchiver
		}
	}
	sweep := sweeper.New(sweeper.Config{
		Interval:         cfg.JobStore.SweepInterval,
		JobRetention:     cfg.JobStore.JobRetention,
		BookingRetention: cfg.JobStore.BookingRetention,
		BatchSize:        100,
	}, repos.Jobs, repos.Echo, repos.Bookings, keys, archiver)
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go sweep.Run(sweepCtx)

	brokeringService := service.NewBrokeringService(agreements, coverageResolver, disp, store, bookingEngine, echoBroker, cfg.App.Version)

	srv := server.New(cfg)
	brokeringv1.RegisterBrokeringServiceServer(srv.GetEngine(), brokeringService)

	logger.Info("Starting brokering service",
		"port", cfg.GRPC.Port,
		"dispatcher_concurrency", cfg.Dispatcher.Concurrency,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}

func healthWindowConfig(cfg *config.Config) domain.HealthWindowConfig {
	out := domain.DefaultHealthWindowConfig()
	if cfg.Health.WindowSize > 0 {
		out.Size = cfg.Health.WindowSize
	}
	if cfg.Health.SlowThresholdMs > 0 {
		out.SlowThresholdMs = cfg.Health.SlowThresholdMs
	}
	if cfg.Health.MinSamples > 0 {
		out.MinSamples = cfg.Health.MinSamples
	}
	if cfg.Health.StrikeRate > 0 {
		out.StrikeRate = cfg.Health.StrikeRate
	}
	if cfg.Health.DecayRate > 0 {
		out.DecayRate = cfg.Health.DecayRate
	}
	if cfg.Health.StrikeThreshold > 0 {
		out.StrikeThreshold = cfg.Health.StrikeThreshold
	}
	if cfg.Health.BackoffBase > 0 {
		out.BackoffBase = cfg.Health.BackoffBase
	}
	if cfg.Health.MaxBackoffLevel > 0 {
		out.MaxBackoffLevel = cfg.Health.MaxBackoffLevel
	}
	return out
}

func auditConfig(cfg *config.Config) *audit.Config {
	out := audit.DefaultConfig()
	out.Enabled = cfg.Audit.Enabled
	out.Backend = cfg.Audit.Backend
	out.FilePath = cfg.Audit.FilePath
	out.BufferSize = cfg.Audit.BufferSize
	out.FlushPeriod = cfg.Audit.FlushPeriod
	out.ExcludeMethods = cfg.Audit.ExcludeMethods
	out.IncludeRequest = cfg.Audit.IncludeRequest
	out.IncludeResponse = cfg.Audit.IncludeResponse
	return out
}
