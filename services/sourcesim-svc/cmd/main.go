package main

import (
	"context"
	"log"
	"os"
	"strings"

	sourceadapterv1 "carbroker/gen/go/carbroker/sourceadapter/v1"
	sourcesimv1 "carbroker/gen/go/carbroker/sourcesim/v1"
	"carbroker/migrations"
	"carbroker/pkg/client"
	"carbroker/pkg/config"
	"carbroker/pkg/database"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/server"
	"carbroker/pkg/telemetry"
	"carbroker/services/sourcesim-svc/internal/probe"
	"carbroker/services/sourcesim-svc/internal/repository"
	"carbroker/services/sourcesim-svc/internal/service"
	"carbroker/services/sourcesim-svc/internal/source"
)

// defaultCoverage is the synthetic supplier's fleet footprint; override
// with SOURCESIM_UNLOCODES.
var defaultCoverage = []string{"PKKHI", "PKLHE", "GBMAN", "GBGLA", "USNYC"}

func main() {
	cfg, err := config.LoadWithServiceDefaults("sourcesim-svc", 50054)
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

	// Campaign result storage
	var campaigns repository.CampaignRepository
	switch cfg.Database.Driver {
	case "postgres", "postgresql":
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
		campaigns = repository.NewPostgresCampaignRepository(db)
	default:
		campaigns = repository.NewMemoryCampaignRepository()
	}

	// The synthetic supplier this process serves
	coverage := defaultCoverage
	if env := os.Getenv("SOURCESIM_UNLOCODES"); env != "" {
		coverage = strings.Split(env, ",")
	}
	sim := source.New(cfg.App.Name, coverage)

	// Probe runner against the brokering edge
	brokerClient, err := client.NewBrokerClient(ctx, &client.BrokerClientConfig{
		Address:    cfg.Services.Brokering.Address(),
		Timeout:    cfg.Services.Brokering.Timeout,
		MaxRetries: cfg.Services.Brokering.MaxRetries,
	})
	if err != nil {
		logger.Fatal("failed to create broker client", "error", err)
	}
	defer brokerClient.Close()
	runner := probe.NewRunner(brokerClient)

	sourcesimService := service.NewSourcesimService(runner, campaigns, sim)
	adapterServer := source.NewServer(sim)

	srv := server.New(cfg)
	sourcesimv1.RegisterSourcesimServiceServer(srv.GetEngine(), sourcesimService)
	sourceadapterv1.RegisterSourceAdapterServiceServer(srv.GetEngine(), adapterServer)

	logger.Info("Starting sourcesim service",
		"port", cfg.GRPC.Port,
		"coverage", strings.Join(coverage, ","),
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
