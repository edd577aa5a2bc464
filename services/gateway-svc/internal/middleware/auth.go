package middleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/pkg/logger"
	gatewaymetrics "carbroker/services/gateway-svc/internal/metrics"
)

// IdentityClient validates session tokens against identity-svc.
type IdentityClient interface {
	ValidateToken(ctx context.Context, token string) (*identityv1.ValidateTokenResponse, error)
}

// AuthConfig configures the auth middleware.
type AuthConfig struct {
	Client        IdentityClient
	PublicMethods map[string]bool
}

// AuthInterceptor creates an interceptor enforcing company authentication.
func AuthInterceptor(cfg *AuthConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		// Public methods pass through
		if cfg.PublicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		// Extract the token
		token, err := extractToken(ctx)
		if err != nil {
			gatewaymetrics.Get().AuthFailed.Inc()
			return nil, err
		}

		// Validate the token
		resp, err := cfg.Client.ValidateToken(ctx, token)
		if err != nil {
			gatewaymetrics.Get().AuthFailed.Inc()
			logger.Log.Warn("Token validation failed", "error", err)
			return nil, status.Error(codes.Unauthenticated, "failed to validate token")
		}

		if !resp.Valid {
			gatewaymetrics.Get().AuthFailed.Inc()
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		gatewaymetrics.Get().AuthSuccessful.Inc()

		// Attach the company claims to the context
		ctx = WithCompanyID(ctx, resp.CompanyId)
		ctx = WithCompanyInfo(ctx, resp.Company)

		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming variant.
func StreamAuthInterceptor(cfg *AuthConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.PublicMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx := ss.Context()
		token, err := extractToken(ctx)
		if err != nil {
			gatewaymetrics.Get().AuthFailed.Inc()
			return err
		}

		resp, err := cfg.Client.ValidateToken(ctx, token)
		if err != nil {
			gatewaymetrics.Get().AuthFailed.Inc()
			return status.Error(codes.Unauthenticated, "failed to validate token")
		}

		if !resp.Valid {
			gatewaymetrics.Get().AuthFailed.Inc()
			return status.Error(codes.Unauthenticated, "invalid token")
		}

		gatewaymetrics.Get().AuthSuccessful.Inc()

		wrappedStream := &authServerStream{
			ServerStream: ss,
			ctx:          WithCompanyInfo(WithCompanyID(ctx, resp.CompanyId), resp.Company),
		}

		return handler(srv, wrappedStream)
	}
}

type authServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authServerStream) Context() context.Context {
	return s.ctx
}

func extractToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no metadata")
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "no authorization header")
	}

	token := values[0]
	token = strings.TrimPrefix(token, "Bearer ")

	if token == "" {
		return "", status.Error(codes.Unauthenticated, "empty token")
	}

	return token, nil
}

// PublicMethods lists methods that skip authentication.
func PublicMethods() map[string]bool {
	return map[string]bool{
		"/carbroker.gateway.v1.GatewayService/Health":         true,
		"/carbroker.gateway.v1.GatewayService/ReadinessCheck": true,
		"/carbroker.gateway.v1.GatewayService/Info":           true,
		"/carbroker.gateway.v1.GatewayService/Login":          true,
		"/carbroker.gateway.v1.GatewayService/Register":       true,
		"/carbroker.gateway.v1.GatewayService/RefreshToken":   true,
		"/grpc.health.v1.Health/Check":                        true,
		"/grpc.health.v1.Health/Watch":                        true,
	}
}
