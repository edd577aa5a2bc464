// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration tree, loaded by config.Loader from
// layered file/env sources (see loader.go).
type Config struct {
	App         AppConfig         `koanf:"app"`
	GRPC        GRPCConfig        `koanf:"grpc"`
	HTTP        HTTPConfig        `koanf:"http"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Services    ServicesConfig    `koanf:"services"`
	Database    DatabaseConfig    `koanf:"database"`
	Cache       CacheConfig       `koanf:"cache"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Audit       AuditConfig       `koanf:"audit"`
	Swagger     SwaggerConfig     `koanf:"swagger"`
	Retry       RetryConfig       `koanf:"retry"`
	Dispatcher  DispatcherConfig  `koanf:"dispatcher"`
	Health      HealthConfig      `koanf:"health"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	JobStore    JobStoreConfig    `koanf:"job_store"`
	Echo        EchoConfig        `koanf:"echo"`
	Backoffice  BackofficeConfig  `koanf:"backoffice"`
}

// AppConfig holds process-wide identity settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// GRPCConfig configures the Connect/gRPC dual-protocol server.
type GRPCConfig struct {
	Port              int             `koanf:"port"`
	MaxRecvMsgSize    int             `koanf:"max_recv_msg_size"` // bytes
	MaxSendMsgSize    int             `koanf:"max_send_msg_size"` // bytes
	MaxConcurrentConn int             `koanf:"max_concurrent_conn"`
	KeepAlive         KeepAliveConfig `koanf:"keepalive"`
	TLS               TLSConfig       `koanf:"tls"`
}

// KeepAliveConfig configures gRPC connection keep-alive behavior.
type KeepAliveConfig struct {
	MaxConnectionIdle     time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge      time.Duration `koanf:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `koanf:"max_connection_age_grace"`
	Time                  time.Duration `koanf:"time"`
	Timeout               time.Duration `koanf:"timeout"`
}

// TLSConfig configures transport security.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// HTTPConfig configures the gateway's HTTP listener.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access for the gateway.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // log file path, when Output == "file"
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // rotated file count to keep
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry OTLP export.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ServicesConfig holds the dial addresses brokering-svc and gateway-svc
// use to reach the rest of the topology.
type ServicesConfig struct {
	Brokering  ServiceEndpoint `koanf:"brokering"`
	Identity   ServiceEndpoint `koanf:"identity"`
	SourceSim  ServiceEndpoint `koanf:"sourcesim"`
	Analytics  ServiceEndpoint `koanf:"analytics"`
	Audit      ServiceEndpoint `koanf:"audit"`
	Backoffice ServiceEndpoint `koanf:"backoffice"`
	History    ServiceEndpoint `koanf:"history"`
}

// ServiceEndpoint describes how to reach one downstream service.
type ServiceEndpoint struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	TLS             bool          `koanf:"tls"`
	LoadBalancing   string        `koanf:"load_balancing"` // round_robin, pick_first
	HealthCheckPath string        `koanf:"health_check_path"`
}

// Address returns the host:port dial target for this service.
func (s ServiceEndpoint) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres, mysql, sqlite
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.Username, d.Password, d.Host, d.Port, d.Database,
		)
	case "sqlite":
		return d.Database
	default:
		return ""
	}
}

// CacheConfig configures the coverage/health cache backend.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // in-memory backend only
}

// Address returns the cache backend's host:port.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures the gateway's rate limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit log sink.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"`
	FilePath        string        `koanf:"file_path"`
	BufferSize      int           `koanf:"buffer_size"`
	FlushPeriod     time.Duration `koanf:"flush_period"`
	ExcludeMethods  []string      `koanf:"exclude_methods"`
	IncludeRequest  bool          `koanf:"include_request"`
	IncludeResponse bool          `koanf:"include_response"`
}

// SwaggerConfig configures the Swagger UI handler.
type SwaggerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port"`
	Title   string `koanf:"title"`
}

// RetryConfig configures client-side retry backoff.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// BackofficeConfig configures backoffice-svc's report generation (spec
// §5, admin exports of Booking/Agreement/SourceHealth rows).
type BackofficeConfig struct {
	SaveToStorage bool          `koanf:"save_to_storage"`
	DefaultTTL    time.Duration `koanf:"default_ttl"`

	MaxReportSizeBytes int64 `koanf:"max_report_size_bytes"`
	MaxStorageBytes    int64 `koanf:"max_storage_bytes"`
	MaxReportsPerUser  int   `koanf:"max_reports_per_user"`

	DefaultLanguage       string `koanf:"default_language"`
	DefaultCurrency       string `koanf:"default_currency"`
	DefaultTheme          string `koanf:"default_theme"` // light, dark, corporate
	MaxRowsInTable        int    `koanf:"max_rows_in_table"`
	IncludeRawDataDefault bool   `koanf:"include_raw_data_default"`

	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
	RetentionPeriod  time.Duration `koanf:"retention_period"`
	CleanupBatchSize int           `koanf:"cleanup_batch_size"`

	PDF PDFConfig `koanf:"pdf"`

	DefaultCompanyName string `koanf:"default_company_name"`
	DefaultLogoURL     string `koanf:"default_logo_url"`
}

// PDFConfig configures the PDF report generator (maroto/gofpdf backend).
type PDFConfig struct {
	PageSize          string  `koanf:"page_size"`        // A4, Letter, Legal
	Orientation       string  `koanf:"orientation"`      // portrait, landscape
	MarginTop         float64 `koanf:"margin_top"`       // mm
	MarginBottom      float64 `koanf:"margin_bottom"`    // mm
	MarginLeft        float64 `koanf:"margin_left"`      // mm
	MarginRight       float64 `koanf:"margin_right"`     // mm
	FontFamily        string  `koanf:"font_family"`      // Arial, Helvetica, etc.
	FontSize          float64 `koanf:"font_size"`        // pt
	HeaderFontSize    float64 `koanf:"header_font_size"` // pt
	EnablePageNumbers bool    `koanf:"enable_page_numbers"`
	EnableWatermark   bool    `koanf:"enable_watermark"`
	WatermarkText     string  `koanf:"watermark_text"`
}

// DispatcherConfig configures brokering-svc's fan-out (spec §4.F).
type DispatcherConfig struct {
	Concurrency     int           `koanf:"concurrency"`      // bounded worker pool size
	PerCallTimeout  time.Duration `koanf:"per_call_timeout"` // per SourceAdapter call
	SLATimeout      time.Duration `koanf:"sla_timeout"`      // overall job deadline
	RecommendedPoll time.Duration `koanf:"recommended_poll"` // advertised client poll interval
}

// HealthConfig configures SourceHealthMonitor's sliding window and
// backoff escalation (spec §4.C, Open Question (a)).
type HealthConfig struct {
	WindowSize      int           `koanf:"window_size"`
	SlowThresholdMs int64         `koanf:"slow_threshold_ms"`
	MinSamples      int           `koanf:"min_samples"`
	StrikeRate      float64       `koanf:"strike_rate"`
	DecayRate       float64       `koanf:"decay_rate"`
	StrikeThreshold int           `koanf:"strike_threshold"`
	BackoffBase     time.Duration `koanf:"backoff_base"`
	MaxBackoffLevel int           `koanf:"max_backoff_level"`
}

// IdempotencyConfig configures BookingEngine's idempotency key retention
// (spec §4.J, Open Question (b)).
type IdempotencyConfig struct {
	KeyTTL time.Duration `koanf:"key_ttl"`
}

// JobStoreConfig configures AvailabilityJobStore retention sweeps (spec
// §4.E, Open Question (b)).
type JobStoreConfig struct {
	JobRetention     time.Duration `koanf:"job_retention"`
	BookingRetention time.Duration `koanf:"booking_retention"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
}

// EchoConfig configures EchoBroker's diagnostic fan-out (spec §4.H).
type EchoConfig struct {
	PerCallTimeout time.Duration `koanf:"per_call_timeout"`
	SLATimeout     time.Duration `koanf:"sla_timeout"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be between 1 and 65535, got %d", c.GRPC.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Backoffice.MaxReportSizeBytes < 0 {
		errs = append(errs, "backoffice.max_report_size_bytes must be non-negative")
	}

	validThemes := map[string]bool{"light": true, "dark": true, "corporate": true}
	if c.Backoffice.DefaultTheme != "" && !validThemes[c.Backoffice.DefaultTheme] {
		errs = append(errs, fmt.Sprintf("backoffice.default_theme must be one of: light, dark, corporate, got %s", c.Backoffice.DefaultTheme))
	}

	validPageSizes := map[string]bool{"A4": true, "Letter": true, "Legal": true, "A3": true}
	if c.Backoffice.PDF.PageSize != "" && !validPageSizes[c.Backoffice.PDF.PageSize] {
		errs = append(errs, fmt.Sprintf("backoffice.pdf.page_size must be one of: A4, Letter, Legal, A3, got %s", c.Backoffice.PDF.PageSize))
	}

	validOrientations := map[string]bool{"portrait": true, "landscape": true}
	if c.Backoffice.PDF.Orientation != "" && !validOrientations[c.Backoffice.PDF.Orientation] {
		errs = append(errs, fmt.Sprintf("backoffice.pdf.orientation must be one of: portrait, landscape, got %s", c.Backoffice.PDF.Orientation))
	}

	if c.Dispatcher.Concurrency < 0 {
		errs = append(errs, "dispatcher.concurrency must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the process is running in a dev environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the process is running in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
