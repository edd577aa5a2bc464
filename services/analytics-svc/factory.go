// Package analyticssvc wires the analytics service for hosts outside
// cmd/main.go, e.g. the benchmark suite.
package analyticssvc

import (
	"context"
	"fmt"
	"time"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	"carbroker/services/analytics-svc/internal/analysis"
	"carbroker/services/analytics-svc/internal/service"
)

// NewBenchmarkServer builds the service over a synthetic data source so
// benchmarks exercise the scoring paths without Postgres.
func NewBenchmarkServer(sources int) analyticsv1.AnalyticsServiceServer {
	return service.NewAnalyticsService(&fixtureData{sources: sources})
}

// fixtureData serves deterministic aggregates sized by `sources`.
type fixtureData struct {
	sources int
}

func (f *fixtureData) SourceStats(_ context.Context, _ time.Time) ([]analysis.SourceStat, error) {
	stats := make([]analysis.SourceStat, f.sources)
	for i := range stats {
		stats[i] = analysis.SourceStat{
			SourceID:     fmt.Sprintf("src-%d", i),
			Samples:      int64(100 + i),
			AvgLatencyMs: float64(200 + (i%20)*400),
			TimeoutShare: float64(i%10) / 10,
			ErrorShare:   float64(i%5) / 20,
			BackoffLevel: i % 4,
			ExcludedNow:  i%13 == 0,
			SlowRate:     float64(i%8) / 10,
		}
	}
	return stats, nil
}

func (f *fixtureData) RequestedRoutes(_ context.Context, _ string, _ time.Time) ([]analysis.RouteRequest, error) {
	routes := make([]analysis.RouteRequest, f.sources*4)
	for i := range routes {
		routes[i] = analysis.RouteRequest{
			PickupUnlocode:  fmt.Sprintf("AA%03d", i%500),
			DropoffUnlocode: fmt.Sprintf("BB%03d", i%500),
			RequestCount:    int64(i),
			EligibleAvg:     float64(i % 3),
		}
	}
	return routes, nil
}

func (f *fixtureData) BookingFunnel(context.Context, string, time.Time) (analysis.Funnel, error) {
	return analysis.Funnel{Requested: 10, Confirmed: 70, Cancelled: 5, Failed: 15}, nil
}
