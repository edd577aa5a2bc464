package v1_test

import (
	"testing"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	"carbroker/tests/integration/testutil"
)

func TestAnalytics_SourceBottlenecks(t *testing.T) {
	analytics := SetupAnalyticsClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	resp, err := analytics.GetSourceBottlenecks(ctx, &analyticsv1.GetSourceBottlenecksRequest{
		WindowHours: 24,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("GetSourceBottlenecks: %v", err)
	}

	// An empty window is a valid answer; ranked entries must be ordered
	// and carry a severity.
	for i, b := range resp.Bottlenecks {
		if b.Severity == "" {
			t.Errorf("bottleneck %d has no severity", i)
		}
		if b.SampledRequests <= 0 {
			t.Errorf("bottleneck %d has no samples", i)
		}
	}
}

func TestAnalytics_BookingFunnel(t *testing.T) {
	analytics := SetupAnalyticsClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	resp, err := analytics.GetBookingFunnel(ctx, &analyticsv1.GetBookingFunnelRequest{WindowHours: 24})
	if err != nil {
		t.Fatalf("GetBookingFunnel: %v", err)
	}
	if resp.ConversionRate < 0 || resp.ConversionRate > 1 {
		t.Errorf("conversion rate = %v", resp.ConversionRate)
	}
}

func TestAnalytics_CoverageGaps(t *testing.T) {
	analytics := SetupAnalyticsClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	resp, err := analytics.GetCoverageGaps(ctx, &analyticsv1.GetCoverageGapsRequest{WindowHours: 24})
	if err != nil {
		t.Fatalf("GetCoverageGaps: %v", err)
	}
	for _, gap := range resp.Gaps {
		if gap.PickupUnlocode == "" {
			t.Error("gap without a pickup location")
		}
	}
}
