package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Standard errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter is the request rate limiter interface.
type Limiter interface {
	// Allow reports whether one request is permitted
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN reports whether n requests are permitted
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait blocks until a permit is available
	Wait(ctx context.Context, key string) error

	// Reset clears the limit state for a key
	Reset(ctx context.Context, key string) error

	// GetInfo returns the current limit state
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	// Close shuts down the limiter
	Close() error
}

// LimitInfo describes the current state of one key's limit.
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config configures a rate limiter.
type Config struct {
	// Requests is the number of requests allowed per window
	Requests int `koanf:"requests"`

	// Window is the time window
	Window time.Duration `koanf:"window"`

	// Strategy selects the algorithm (sliding_window, token_bucket, fixed_window)
	Strategy string `koanf:"strategy"`

	// KeyFunc selects the key extraction mode (ip, user, method)
	KeyFunc string `koanf:"key_func"`

	// Backend selects the store (memory, redis)
	Backend string `koanf:"backend"`

	// BurstSize is the token bucket burst size
	BurstSize int `koanf:"burst_size"`

	// CleanupInterval is the in-memory eviction interval
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Redis holds Redis connection settings
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() *Config {
	return &Config{
		Requests:        100,
		Window:          time.Minute,
		Strategy:        "sliding_window",
		KeyFunc:         "ip",
		Backend:         "memory",
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
	}
}

// New creates a limiter for the configured backend.
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	case "memory", "":
		return NewMemoryLimiter(cfg), nil
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

// KeyExtractor derives the limit key from call metadata.
type KeyExtractor func(ctx context.Context, method string, metadata map[string]string) string

// DefaultKeyExtractor keys by client IP.
func DefaultKeyExtractor(_ context.Context, _ string, metadata map[string]string) string {
	if ip, ok := metadata["x-forwarded-for"]; ok && ip != "" {
		return ip
	}
	if ip, ok := metadata["x-real-ip"]; ok && ip != "" {
		return ip
	}
	if peer, ok := metadata[":authority"]; ok {
		return peer
	}
	return "unknown"
}

// MethodKeyExtractor keys by RPC method.
func MethodKeyExtractor(_ context.Context, method string, _ map[string]string) string {
	return method
}

// UserKeyExtractor keys by authenticated user.
func UserKeyExtractor(ctx context.Context, method string, metadata map[string]string) string {
	if userID, ok := metadata["x-user-id"]; ok && userID != "" {
		return userID
	}
	return DefaultKeyExtractor(ctx, method, metadata)
}

// CompositeKeyExtractor joins several extractors into one key.
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, method string, metadata map[string]string) string {
		var key string
		for _, ext := range extractors {
			key += ext(ctx, method, metadata) + ":"
		}
		return key
	}
}

// RateLimitedMethods maps RPC methods to per-method limits.
type RateLimitedMethods struct {
	mu            sync.RWMutex
	methods       map[string]*Config
	defaultConfig *Config
}

// NewRateLimitedMethods creates an empty per-method limit table.
func NewRateLimitedMethods(defaultCfg *Config) *RateLimitedMethods {
	if defaultCfg == nil {
		defaultCfg = DefaultConfig()
	}
	return &RateLimitedMethods{
		methods:       make(map[string]*Config),
		defaultConfig: defaultCfg,
	}
}

// Set assigns a limit to a method.
func (r *RateLimitedMethods) Set(method string, cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = cfg
}

// Get returns the limit for a method, if any.
func (r *RateLimitedMethods) Get(method string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.methods[method]; ok {
		return cfg
	}
	return r.defaultConfig
}
