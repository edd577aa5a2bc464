// Package service exposes the analytics read model: source bottlenecks,
// coverage gaps, and the booking funnel. Pure reads; nothing here mutates
// brokering state.
package service

import (
	"context"
	"time"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/telemetry"
	"carbroker/services/analytics-svc/internal/analysis"
)

// DataSource is the aggregate reader behind the service; the Postgres
// repository implements it, tests substitute fixtures.
type DataSource interface {
	SourceStats(ctx context.Context, since time.Time) ([]analysis.SourceStat, error)
	RequestedRoutes(ctx context.Context, agentID string, since time.Time) ([]analysis.RouteRequest, error)
	BookingFunnel(ctx context.Context, agentID string, since time.Time) (analysis.Funnel, error)
}

// AnalyticsService implements analyticsv1.AnalyticsServiceServer.
type AnalyticsService struct {
	analyticsv1.UnimplementedAnalyticsServiceServer
	data DataSource
	now  func() time.Time
}

// NewAnalyticsService creates the service.
func NewAnalyticsService(data DataSource) *AnalyticsService {
	return &AnalyticsService{data: data, now: time.Now}
}

func windowStart(now time.Time, windowHours int32) (time.Time, int32) {
	if windowHours <= 0 {
		windowHours = 24
	}
	return now.Add(-time.Duration(windowHours) * time.Hour), windowHours
}

// GetSourceBottlenecks scores sources by fan-out impact.
func (s *AnalyticsService) GetSourceBottlenecks(ctx context.Context, req *analyticsv1.GetSourceBottlenecksRequest) (*analyticsv1.GetSourceBottlenecksResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnalyticsService.GetSourceBottlenecks")
	defer span.End()

	since, _ := windowStart(s.now(), req.WindowHours)
	stats, err := s.data.SourceStats(ctx, since)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read source stats"))
	}

	bottlenecks := analysis.FindBottlenecks(stats, int(req.Limit))

	resp := &analyticsv1.GetSourceBottlenecksResponse{}
	for _, b := range bottlenecks {
		resp.Bottlenecks = append(resp.Bottlenecks, &analyticsv1.SourceBottleneck{
			SourceId:        b.SourceID,
			Severity:        string(b.Severity),
			SlowRate:        b.SlowRate,
			BackoffLevel:    int32(b.BackoffLevel),
			AvgLatencyMs:    b.AvgLatencyMs,
			TimeoutShare:    b.TimeoutShare,
			ExcludedNow:     b.ExcludedNow,
			SampledRequests: b.Samples,
		})
	}
	return resp, nil
}

// GetCoverageGaps lists demanded routes no agreement can serve.
func (s *AnalyticsService) GetCoverageGaps(ctx context.Context, req *analyticsv1.GetCoverageGapsRequest) (*analyticsv1.GetCoverageGapsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnalyticsService.GetCoverageGaps")
	defer span.End()

	since, _ := windowStart(s.now(), req.WindowHours)
	routes, err := s.data.RequestedRoutes(ctx, req.AgentId, since)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read requested routes"))
	}

	resp := &analyticsv1.GetCoverageGapsResponse{}
	for _, gap := range analysis.FindCoverageGaps(routes) {
		resp.Gaps = append(resp.Gaps, &analyticsv1.CoverageGap{
			PickupUnlocode:  gap.PickupUnlocode,
			DropoffUnlocode: gap.DropoffUnlocode,
			RequestCount:    gap.RequestCount,
		})
	}
	return resp, nil
}

// GetBookingFunnel returns the booking conversion counts.
func (s *AnalyticsService) GetBookingFunnel(ctx context.Context, req *analyticsv1.GetBookingFunnelRequest) (*analyticsv1.GetBookingFunnelResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnalyticsService.GetBookingFunnel")
	defer span.End()

	since, _ := windowStart(s.now(), req.WindowHours)
	funnel, err := s.data.BookingFunnel(ctx, req.AgentId, since)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read booking funnel"))
	}

	return &analyticsv1.GetBookingFunnelResponse{
		Requested:      funnel.Requested,
		Confirmed:      funnel.Confirmed,
		Cancelled:      funnel.Cancelled,
		Failed:         funnel.Failed,
		ConversionRate: funnel.ConversionRate(),
	}, nil
}
