package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"carbroker/pkg/logger"
)

// LoggingInterceptor logs requests with edge context.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		// Pull the company id when present
		companyID := GetCompanyID(ctx)

		// Run the handler
		resp, err := handler(ctx, req)

		duration := time.Since(start)
		st, _ := status.FromError(err)

		// Log the call
		logFields := []any{
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
			"code", st.Code().String(),
		}

		if companyID != "" {
			logFields = append(logFields, "company_id", companyID)
		}

		if err != nil {
			logFields = append(logFields, "error", err.Error())
			logger.Log.Error("Gateway request failed", logFields...)
		} else {
			logger.Log.Info("Gateway request completed", logFields...)
		}

		return resp, err
	}
}

// StreamLoggingInterceptor is the streaming variant.
func StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		companyID := GetCompanyID(ss.Context())

		err := handler(srv, ss)

		duration := time.Since(start)

		logFields := []any{
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
			"stream", true,
		}

		if companyID != "" {
			logFields = append(logFields, "company_id", companyID)
		}

		if err != nil {
			logFields = append(logFields, "error", err.Error())
			logger.Log.Error("Gateway stream failed", logFields...)
		} else {
			logger.Log.Info("Gateway stream completed", logFields...)
		}

		return err
	}
}
