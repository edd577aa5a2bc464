package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"carbroker/gen/go/carbroker/gateway/v1/gatewayv1connect"
	"carbroker/gen/openapi"
	"carbroker/pkg/config"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/swagger"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/handlers"
	"carbroker/services/gateway-svc/internal/middleware"
)

const (
	statusHealthy = "HEALTHY"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("gateway-svc", 8080)
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	logger.Log.Info("Starting Gateway Service (ConnectRPC)",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	// Backend gRPC clients
	clientManager, err := clients.NewManager(ctx, &clients.Config{
		Identity:   cfg.Services.Identity,
		Brokering:  cfg.Services.Brokering,
		Analytics:  cfg.Services.Analytics,
		History:    cfg.Services.History,
		Backoffice: cfg.Services.Backoffice,
		Audit:      cfg.Services.Audit,
	})
	if err != nil {
		logger.Fatal("Failed to initialize clients", "error", err)
	}
	defer clientManager.Close()

	gatewayHandler := handlers.NewGatewayHandler(clientManager, cfg)

	mux := http.NewServeMux()

	// ConnectRPC handler with the interceptor chain
	path, handler := gatewayv1connect.NewGatewayServiceHandler(
		gatewayHandler,
		connect.WithInterceptors(
			middleware.NewLoggingInterceptor(),
			middleware.NewAuthInterceptor(clientManager.Identity()),
			middleware.NewRateLimitInterceptor(cfg.RateLimit),
			middleware.NewMetricsInterceptor(),
		),
	)
	mux.Handle(path, handler)

	// Plain HTTP health endpoints for k8s probes
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/ready", handleReady(clientManager))

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	// Swagger UI over the embedded OpenAPI spec
	if cfg.Swagger.Enabled {
		swagger.RegisterRoutes(mux, &swagger.Config{Title: cfg.Swagger.Title}, openapi.MustGetSpec())
	}

	// CORS middleware
	var httpHandler http.Handler = mux
	if cfg.HTTP.CORS.Enabled {
		httpHandler = middleware.CORS(cfg.HTTP.CORS)(mux)
	}

	// HTTP server with H2C so gRPC and Connect share one port
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      h2c.NewHandler(httpHandler, &http2.Server{}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Log.Info("Gateway listening",
			"port", cfg.HTTP.Port,
			"protocol", "HTTP/1.1 + H2C (ConnectRPC)",
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown error", "error", err)
	}

	logger.Log.Info("Server stopped")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		// Cannot log usefully, the response is already in flight
		return
	}
}

func handleReady(clientManager *clients.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := clientManager.CheckHealth(r.Context())
		allHealthy := true
		for _, h := range health {
			if h.Status != statusHealthy {
				allHealthy = false
				break
			}
		}
		if allHealthy {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte(`{"ready":true}`)); err != nil {
				return
			}
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte(`{"ready":false}`)); err != nil {
				return
			}
		}
	}
}
