package analysis

import "testing"

func TestFindBottlenecks(t *testing.T) {
	stats := []SourceStat{
		{SourceID: "healthy", Samples: 100, AvgLatencyMs: 200},
		{SourceID: "slow", Samples: 100, AvgLatencyMs: 5000, SlowRate: 0.6, TimeoutShare: 0.3},
		{SourceID: "excluded", Samples: 50, AvgLatencyMs: 9000, BackoffLevel: 3, ExcludedNow: true, TimeoutShare: 0.8},
		{SourceID: "unsampled", Samples: 0},
	}

	bottlenecks := FindBottlenecks(stats, 10)

	if len(bottlenecks) < 2 {
		t.Fatalf("bottlenecks = %d, want at least slow and excluded", len(bottlenecks))
	}
	// Highest score first; the excluded source dominates.
	if bottlenecks[0].SourceID != "excluded" {
		t.Errorf("top bottleneck = %s, want excluded", bottlenecks[0].SourceID)
	}
	if bottlenecks[0].Severity != SeverityCritical {
		t.Errorf("excluded severity = %s, want CRITICAL", bottlenecks[0].Severity)
	}

	for _, b := range bottlenecks {
		if b.SourceID == "unsampled" {
			t.Error("a source with no samples must never rank")
		}
	}
}

func TestFindBottlenecks_TopN(t *testing.T) {
	stats := []SourceStat{
		{SourceID: "a", Samples: 10, TimeoutShare: 0.9},
		{SourceID: "b", Samples: 10, TimeoutShare: 0.8},
		{SourceID: "c", Samples: 10, TimeoutShare: 0.7},
	}

	bottlenecks := FindBottlenecks(stats, 2)
	if len(bottlenecks) != 2 {
		t.Errorf("topN not applied: %d", len(bottlenecks))
	}
	if bottlenecks[0].Score < bottlenecks[1].Score {
		t.Error("bottlenecks not ordered by score")
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name string
		stat SourceStat
		want Severity
	}{
		{"excluded is critical", SourceStat{ExcludedNow: true}, SeverityCritical},
		{"max backoff is critical", SourceStat{BackoffLevel: 3}, SeverityCritical},
		{"backed off is high", SourceStat{BackoffLevel: 1}, SeverityHigh},
		{"half timeouts is high", SourceStat{TimeoutShare: 0.5}, SeverityHigh},
		{"some errors is medium", SourceStat{ErrorShare: 0.25}, SeverityMedium},
		{"clean is low", SourceStat{}, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySeverity(tt.stat); got != tt.want {
				t.Errorf("severity = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFindCoverageGaps(t *testing.T) {
	requests := []RouteRequest{
		{PickupUnlocode: "PKKHI", DropoffUnlocode: "PKLHE", RequestCount: 40, EligibleAvg: 2.0},
		{PickupUnlocode: "GBMAN", DropoffUnlocode: "USNYC", RequestCount: 25, EligibleAvg: 0},
		{PickupUnlocode: "GBGLA", DropoffUnlocode: "USNYC", RequestCount: 80, EligibleAvg: 0},
	}

	gaps := FindCoverageGaps(requests)
	if len(gaps) != 2 {
		t.Fatalf("gaps = %d, want 2", len(gaps))
	}
	// Ordered by demand
	if gaps[0].PickupUnlocode != "GBGLA" || gaps[0].RequestCount != 80 {
		t.Errorf("top gap = %+v", gaps[0])
	}
}

func TestFunnelConversionRate(t *testing.T) {
	tests := []struct {
		name   string
		funnel Funnel
		want   float64
	}{
		{"empty", Funnel{}, 0},
		{"all confirmed", Funnel{Confirmed: 10}, 1.0},
		{"half failed", Funnel{Confirmed: 5, Failed: 5}, 0.5},
		{"cancellations still converted", Funnel{Confirmed: 2, Cancelled: 2, Failed: 4, Requested: 0}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.funnel.ConversionRate(); got != tt.want {
				t.Errorf("rate = %v, want %v", got, tt.want)
			}
		})
	}
}
