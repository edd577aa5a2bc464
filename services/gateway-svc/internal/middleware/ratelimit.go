package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"carbroker/pkg/logger"
	"carbroker/pkg/ratelimit"
	gatewaymetrics "carbroker/services/gateway-svc/internal/metrics"
)

// RateLimitConfig configures the edge rate limiter.
type RateLimitConfig struct {
	Limiter        ratelimit.Limiter
	KeyExtractor   KeyExtractor
	ExcludeMethods map[string]bool

	// Per-category method limits
	CategoryLimits map[string]*CategoryLimit
}

// CategoryLimit is the limit of one method category.
type CategoryLimit struct {
	Requests int
	Window   time.Duration
}

// KeyExtractor derives the limit key from call context.
type KeyExtractor func(ctx context.Context, method string) string

// DefaultKeyExtractor keys by company id, falling back to client IP.
func DefaultKeyExtractor(ctx context.Context, _ string) string {
	// Prefer the company id
	if companyID := GetCompanyID(ctx); companyID != "" {
		return "company:" + companyID
	}

	// Fall back to IP
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if xff := md.Get("x-forwarded-for"); len(xff) > 0 {
			return "ip:" + xff[0]
		}
		if xri := md.Get("x-real-ip"); len(xri) > 0 {
			return "ip:" + xri[0]
		}
	}

	return "unknown"
}

// MethodCategoryExtractor buckets a method into a limit category.
func MethodCategoryExtractor(method string) string {
	// Order matters: more specific keywords must come first so
	// "CancelBooking" buckets as booking before matching anything else
	categories := []struct {
		keyword  string
		category string
	}{
		// Booking commands carry the strictest limits
		{"Booking", "booking"},

		// Availability fan-out
		{"Availability", "availability"},
		{"Poll", "availability"},

		// Echo probes
		{"Echo", "echo"},

		// Agreement lifecycle
		{"Agreement", "agreement"},

		// Coverage management
		{"Coverage", "coverage"},
		{"Override", "coverage"},

		// Analytics
		{"Bottleneck", "analytics"},
		{"Funnel", "analytics"},
		{"Gap", "analytics"},
		{"Analyze", "analytics"},

		// History
		{"Archived", "history"},
		{"History", "history"},
		{"Statistics", "history"},

		// Report
		{"Report", "report"},
		{"Download", "report"},

		// Audit
		{"Audit", "audit"},

		// Auth
		{"Login", "auth"},
		{"Register", "auth"},
		{"Token", "auth"},
		{"Profile", "auth"},
		{"Auth", "auth"},
	}

	for _, c := range categories {
		if containsSubstring(method, c.keyword) {
			return c.category
		}
	}
	return "general"
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && findSubstring(s, substr) >= 0
}

func findSubstring(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// RateLimitInterceptor creates the edge rate limiting interceptor.
func RateLimitInterceptor(cfg *RateLimitConfig) grpc.UnaryServerInterceptor {
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = DefaultKeyExtractor
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		// Check exclusions
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		// Derive the key
		key := cfg.KeyExtractor(ctx, info.FullMethod)

		// Scope the key by category
		category := MethodCategoryExtractor(info.FullMethod)
		fullKey := category + ":" + key

		// Check the limit
		allowed, err := cfg.Limiter.Allow(ctx, fullKey)
		if err != nil {
			logger.Log.Warn("Rate limit check failed", "error", err, "key", fullKey)
			// Fail open on limiter errors
			return handler(ctx, req)
		}

		if !allowed {
			gatewaymetrics.Get().RateLimitHits.Inc()

			limitInfo, infoErr := cfg.Limiter.GetInfo(ctx, fullKey)
			if infoErr != nil {
				logger.Log.Warn("Failed to get rate limit info", "error", infoErr, "key", fullKey)
				// Use the defaults
				limitInfo = &ratelimit.LimitInfo{
					Limit:   0,
					ResetAt: time.Now().Add(time.Minute),
				}
			}

			logger.Log.Warn("Rate limit exceeded",
				"key", fullKey,
				"category", category,
				"limit", limitInfo.Limit,
			)

			// Attach limit info headers
			header := metadata.Pairs(
				"x-ratelimit-limit", formatInt(limitInfo.Limit),
				"x-ratelimit-remaining", "0",
				"x-ratelimit-reset", limitInfo.ResetAt.Format(time.RFC3339),
				"x-ratelimit-category", category,
			)
			if err := grpc.SetHeader(ctx, header); err != nil {
				logger.Log.Warn("Failed to set rate limit headers", "error", err)
			}

			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded for category %s: retry after %v", category, time.Until(limitInfo.ResetAt))
		}

		gatewaymetrics.Get().RateLimitPassed.Inc()

		return handler(ctx, req)
	}
}

// StreamRateLimitInterceptor is the streaming variant.
func StreamRateLimitInterceptor(cfg *RateLimitConfig) grpc.StreamServerInterceptor {
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = DefaultKeyExtractor
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx := ss.Context()
		key := cfg.KeyExtractor(ctx, info.FullMethod)
		category := MethodCategoryExtractor(info.FullMethod)
		fullKey := category + ":" + key

		allowed, err := cfg.Limiter.Allow(ctx, fullKey)
		if err != nil {
			return handler(srv, ss)
		}

		if !allowed {
			gatewaymetrics.Get().RateLimitHits.Inc()
			return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for category %s", category)
		}

		gatewaymetrics.Get().RateLimitPassed.Inc()
		return handler(srv, ss)
	}
}

func formatInt(n int) string {
	if n == 0 {
		return "0"
	}

	digits := make([]byte, 0, 20)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}

	// Reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	return string(digits)
}
