// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "CARBROKER_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads configuration from layered sources: defaults, then an
// optional YAML file, then environment variables (highest priority).
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a Loader with the default search paths, overridable
// via LoaderOption.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/carbroker/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the YAML file search paths.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load loads the configuration with priority:
// 1. Defaults (lowest)
// 2. Config file (yaml)
// 3. Environment variables (highest)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// The file is optional; log and continue.
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults seeds the koanf tree with this repo's default values.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "carbroker",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// GRPC
		"grpc.port":                               50051,
		"grpc.max_recv_msg_size":                  16 * 1024 * 1024, // 16MB
		"grpc.max_send_msg_size":                  16 * 1024 * 1024,
		"grpc.max_concurrent_conn":                1000,
		"grpc.keepalive.max_connection_idle":      15 * time.Minute,
		"grpc.keepalive.max_connection_age":       30 * time.Minute,
		"grpc.keepalive.max_connection_age_grace": 5 * time.Minute,
		"grpc.keepalive.time":                     5 * time.Minute,
		"grpc.keepalive.timeout":                  20 * time.Second,
		"grpc.tls.enabled":                        false,

		// HTTP
		"http.port":                   8080,
		"http.read_timeout":           30 * time.Second,
		"http.write_timeout":          30 * time.Second,
		"http.shutdown_timeout":       10 * time.Second,
		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"*"},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "carbroker",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "carbroker",
		"tracing.sample_rate":  0.1,

		// Services - Brokering (the core)
		"services.brokering.host":           "localhost",
		"services.brokering.port":           50052,
		"services.brokering.timeout":        30 * time.Second,
		"services.brokering.max_retries":    3,
		"services.brokering.retry_backoff":  100 * time.Millisecond,
		"services.brokering.load_balancing": "round_robin",

		// Services - Identity
		"services.identity.host":           "localhost",
		"services.identity.port":           50053,
		"services.identity.timeout":        10 * time.Second,
		"services.identity.max_retries":    3,
		"services.identity.retry_backoff":  100 * time.Millisecond,
		"services.identity.load_balancing": "round_robin",

		// Services - SourceSim
		"services.sourcesim.host":           "localhost",
		"services.sourcesim.port":           50054,
		"services.sourcesim.timeout":        30 * time.Second,
		"services.sourcesim.max_retries":    3,
		"services.sourcesim.retry_backoff":  100 * time.Millisecond,
		"services.sourcesim.load_balancing": "round_robin",

		// Services - Analytics
		"services.analytics.host":           "localhost",
		"services.analytics.port":           50055,
		"services.analytics.timeout":        30 * time.Second,
		"services.analytics.max_retries":    3,
		"services.analytics.retry_backoff":  100 * time.Millisecond,
		"services.analytics.load_balancing": "round_robin",

		// Services - Audit
		"services.audit.host":           "localhost",
		"services.audit.port":           50056,
		"services.audit.timeout":        10 * time.Second,
		"services.audit.max_retries":    3,
		"services.audit.retry_backoff":  100 * time.Millisecond,
		"services.audit.load_balancing": "round_robin",

		// Services - Backoffice
		"services.backoffice.host":           "localhost",
		"services.backoffice.port":           50057,
		"services.backoffice.timeout":        60 * time.Second,
		"services.backoffice.max_retries":    3,
		"services.backoffice.retry_backoff":  100 * time.Millisecond,
		"services.backoffice.load_balancing": "round_robin",

		// Services - History
		"services.history.host":           "localhost",
		"services.history.port":           50058,
		"services.history.timeout":        30 * time.Second,
		"services.history.max_retries":    3,
		"services.history.retry_backoff":  100 * time.Millisecond,
		"services.history.load_balancing": "round_robin",

		// Database
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "carbroker",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		// Cache
		"cache.enabled":     true,
		"cache.driver":      "redis",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 5 * time.Minute,
		"cache.max_entries": 10000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         100,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       10,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Swagger
		"swagger.enabled": true,
		"swagger.port":    8081,
		"swagger.title":   "Car Rental Brokering API",

		// Retry
		"retry.max_attempts":       3,
		"retry.initial_backoff":    100 * time.Millisecond,
		"retry.max_backoff":        10 * time.Second,
		"retry.backoff_multiplier": 2.0,

		// Dispatcher (spec §4.F)
		"dispatcher.concurrency":      10,
		"dispatcher.per_call_timeout": 10 * time.Second,
		"dispatcher.sla_timeout":      120 * time.Second,
		"dispatcher.recommended_poll": 1500 * time.Millisecond,

		// Health (spec §4.C, Open Question (a))
		"health.window_size":       64,
		"health.slow_threshold_ms": 3000,
		"health.min_samples":       10,
		"health.strike_rate":       0.5,
		"health.decay_rate":        0.2,
		"health.strike_threshold":  3,
		"health.backoff_base":      30 * time.Second,
		"health.max_backoff_level": 3,

		// Idempotency (spec §4.J, Open Question (b))
		"idempotency.key_ttl": 24 * time.Hour,

		// JobStore (spec §4.E, Open Question (b))
		"job_store.job_retention":     24 * time.Hour,
		"job_store.booking_retention": 90 * 24 * time.Hour,
		"job_store.sweep_interval":    1 * time.Hour,

		// Echo (spec §4.H)
		"echo.per_call_timeout": 5 * time.Second,
		"echo.sla_timeout":      5 * time.Minute,

		// Backoffice - Storage
		"backoffice.save_to_storage":       true,
		"backoffice.default_ttl":           30 * 24 * time.Hour,
		"backoffice.max_report_size_bytes": 50 * 1024 * 1024,
		"backoffice.max_storage_bytes":     10 * 1024 * 1024 * 1024,
		"backoffice.max_reports_per_user":  1000,

		// Backoffice - Generation
		"backoffice.default_language":         "en",
		"backoffice.default_currency":         "USD",
		"backoffice.default_theme":            "light",
		"backoffice.max_rows_in_table":        200,
		"backoffice.include_raw_data_default": true,

		// Backoffice - Cleanup
		"backoffice.cleanup_interval":   1 * time.Hour,
		"backoffice.retention_period":   7 * 24 * time.Hour,
		"backoffice.cleanup_batch_size": 100,

		// Backoffice - Branding
		"backoffice.default_company_name": "Car Rental Brokering",
		"backoffice.default_logo_url":     "",

		// Backoffice - PDF
		"backoffice.pdf.page_size":           "A4",
		"backoffice.pdf.orientation":         "portrait",
		"backoffice.pdf.margin_top":          15.0,
		"backoffice.pdf.margin_bottom":       15.0,
		"backoffice.pdf.margin_left":         15.0,
		"backoffice.pdf.margin_right":        15.0,
		"backoffice.pdf.font_family":         "Arial",
		"backoffice.pdf.font_size":           10.0,
		"backoffice.pdf.header_font_size":    14.0,
		"backoffice.pdf.enable_page_numbers": true,
		"backoffice.pdf.enable_watermark":    false,
		"backoffice.pdf.watermark_text":      "CONFIDENTIAL",
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile loads configuration from a YAML file, if one is found.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads configuration from environment variables, which override
// the file and defaults.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// CARBROKER_GRPC_PORT -> grpc.port
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads the configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load is a convenience function that loads with default settings.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithServiceDefaults loads the configuration and overrides the port
// and app name for one specific service binary.
func LoadWithServiceDefaults(serviceName string, defaultPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.GRPC.Port == 50051 && defaultPort != 0 {
		cfg.GRPC.Port = defaultPort
	}

	if cfg.App.Name == "carbroker" {
		cfg.App.Name = serviceName
	}

	return cfg, nil
}
