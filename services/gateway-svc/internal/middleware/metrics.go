package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	gwmetrics "carbroker/services/gateway-svc/internal/metrics"
)

// MetricsInterceptor records per-request metrics.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		st, _ := status.FromError(err)

		// Record the metrics
		gwmetrics.Get().RecordBackendRequest("gateway", info.FullMethod, st.Code().String(), duration)

		return resp, err
	}
}

// StreamMetricsInterceptor is the streaming variant.
func StreamMetricsInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		err := handler(srv, ss)

		duration := time.Since(start)
		statusStr := "OK"
		if err != nil {
			st, _ := status.FromError(err)
			statusStr = st.Code().String()
		}

		gwmetrics.Get().RecordBackendRequest("gateway", info.FullMethod, statusStr, duration)

		return err
	}
}
