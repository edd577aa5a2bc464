package middleware

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"carbroker/pkg/config"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/ratelimit"
	"carbroker/services/gateway-svc/internal/clients"
)

// NewLoggingInterceptor logs Connect requests with a generated request id.
func NewLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// Assign a request id
			requestID := GenerateRequestID()
			ctx = WithRequestID(ctx, requestID)

			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			duration := time.Since(start)

			if err != nil {
				logger.Log.Error("Request failed",
					"request_id", requestID,
					"method", procedure,
					"duration_ms", duration.Milliseconds(),
					"error", err,
				)
			} else {
				logger.Log.Info("Request completed",
					"request_id", requestID,
					"method", procedure,
					"duration_ms", duration.Milliseconds(),
				)
			}

			return resp, err
		}
	}
}

// NewAuthInterceptor enforces company authentication at the Connect edge.
func NewAuthInterceptor(identityClient *clients.IdentityClient) connect.UnaryInterceptorFunc {
	// Public methods skip authentication
	publicMethods := map[string]bool{
		"/carbroker.gateway.v1.GatewayService/Health":         true,
		"/carbroker.gateway.v1.GatewayService/ReadinessCheck": true,
		"/carbroker.gateway.v1.GatewayService/Info":           true,
		"/carbroker.gateway.v1.GatewayService/Login":          true,
		"/carbroker.gateway.v1.GatewayService/Register":       true,
		"/carbroker.gateway.v1.GatewayService/RefreshToken":   true,
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure

			// Skip public methods
			if publicMethods[procedure] {
				return next(ctx, req)
			}

			// Extract the token
			token := req.Header().Get("Authorization")
			if token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("missing authorization header"))
			}

			// Strip the "Bearer " prefix
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}

			// Validate the token
			resp, err := identityClient.ValidateToken(ctx, token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("token validation failed"))
			}

			if !resp.Valid {
				return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("invalid token"))
			}

			// Attach the company claims to the context
			ctx = WithCompanyID(ctx, resp.CompanyId)
			ctx = WithCompanyInfo(ctx, resp.Company)

			return next(ctx, req)
		}
	}
}

// NewRateLimitInterceptor bounds request rates per company or IP.
func NewRateLimitInterceptor(cfg config.RateLimitConfig) connect.UnaryInterceptorFunc {
	if !cfg.Enabled {
		return func(next connect.UnaryFunc) connect.UnaryFunc {
			return next
		}
	}

	limiter, err := ratelimit.New(&ratelimit.Config{
		Requests:  cfg.Requests,
		Window:    cfg.Window,
		Strategy:  cfg.Strategy,
		Backend:   cfg.Backend,
		BurstSize: cfg.BurstSize,
	})
	if err != nil {
		logger.Log.Warn("Failed to create rate limiter", "error", err)
		return func(next connect.UnaryFunc) connect.UnaryFunc {
			return next
		}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// Key by company id, falling back to IP
			key := GetCompanyID(ctx)
			if key == "" {
				key = req.Peer().Addr
			}

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Log.Warn("Rate limit check failed", "error", err)
				return next(ctx, req)
			}

			if !allowed {
				return nil, connect.NewError(
					connect.CodeResourceExhausted,
					fmt.Errorf("rate limit exceeded"),
				)
			}

			return next(ctx, req)
		}
	}
}

// NewMetricsInterceptor records edge request metrics.
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	m := metrics.Get()

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			duration := time.Since(start)
			status := "OK"
			if err != nil {
				status = connect.CodeOf(err).String()
			}

			m.RecordGRPCRequest(req.Spec().Procedure, status, duration)

			return resp, err
		}
	}
}

// NewStreamLoggingInterceptor is the streaming variant.
func NewStreamLoggingInterceptor() connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			requestID := GenerateRequestID()
			ctx = WithRequestID(ctx, requestID)

			resp, err := next(ctx, req)

			logger.Log.Info("Stream/Unary completed",
				"request_id", requestID,
				"method", req.Spec().Procedure,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			return resp, err
		}
	})
}
