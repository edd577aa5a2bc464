package handlers

import (
	"context"

	"connectrpc.com/connect"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
)

// AnalyticsHandler fronts the read-only analytics surface.
type AnalyticsHandler struct {
	clients *clients.Manager
}

// NewAnalyticsHandler creates the handler.
func NewAnalyticsHandler(clients *clients.Manager) *AnalyticsHandler {
	return &AnalyticsHandler{clients: clients}
}

// GetSourceBottlenecks lists sources dominating fan-out latency or stuck in
// backoff.
func (h *AnalyticsHandler) GetSourceBottlenecks(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetSourceBottlenecksRequest],
) (*connect.Response[gatewayv1.GetSourceBottlenecksResponse], error) {
	resp, err := h.clients.Analytics().GetSourceBottlenecks(ctx, &analyticsv1.GetSourceBottlenecksRequest{
		WindowHours: req.Msg.WindowHours,
		Limit:       req.Msg.Limit,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	out := &gatewayv1.GetSourceBottlenecksResponse{}
	for _, b := range resp.Bottlenecks {
		out.Bottlenecks = append(out.Bottlenecks, &gatewayv1.SourceBottleneck{
			SourceId:        b.SourceId,
			Severity:        b.Severity,
			SlowRate:        b.SlowRate,
			BackoffLevel:    b.BackoffLevel,
			AvgLatencyMs:    b.AvgLatencyMs,
			TimeoutShare:    b.TimeoutShare,
			ExcludedNow:     b.ExcludedNow,
			SampledRequests: b.SampledRequests,
		})
	}
	return connect.NewResponse(out), nil
}

// GetCoverageGaps lists routes agents request but no agreement authorizes.
func (h *AnalyticsHandler) GetCoverageGaps(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetCoverageGapsRequest],
) (*connect.Response[gatewayv1.GetCoverageGapsResponse], error) {
	resp, err := h.clients.Analytics().GetCoverageGaps(ctx, &analyticsv1.GetCoverageGapsRequest{
		AgentId:     req.Msg.AgentId,
		WindowHours: req.Msg.WindowHours,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	out := &gatewayv1.GetCoverageGapsResponse{}
	for _, g := range resp.Gaps {
		out.Gaps = append(out.Gaps, &gatewayv1.CoverageGap{
			PickupUnlocode:  g.PickupUnlocode,
			DropoffUnlocode: g.DropoffUnlocode,
			RequestCount:    g.RequestCount,
			NearestSources:  g.NearestSources,
		})
	}
	return connect.NewResponse(out), nil
}

// GetBookingFunnel returns request-to-confirmation conversion stats.
func (h *AnalyticsHandler) GetBookingFunnel(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetBookingFunnelRequest],
) (*connect.Response[gatewayv1.GetBookingFunnelResponse], error) {
	resp, err := h.clients.Analytics().GetBookingFunnel(ctx, &analyticsv1.GetBookingFunnelRequest{
		AgentId:     req.Msg.AgentId,
		WindowHours: req.Msg.WindowHours,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GetBookingFunnelResponse{
		Requested:      resp.Requested,
		Confirmed:      resp.Confirmed,
		Cancelled:      resp.Cancelled,
		Failed:         resp.Failed,
		ConversionRate: resp.ConversionRate,
	}), nil
}
