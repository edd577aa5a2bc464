package probe

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
)

// fakeBroker answers submits and polls without a network.
type fakeBroker struct {
	echoCalls  atomic.Int64
	availCalls atomic.Int64
	inFlight   atomic.Int64
	maxSeen    atomic.Int64
	failEvery  int64
	delay      time.Duration
}

func (f *fakeBroker) track() func() {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeBroker) SubmitEcho(ctx context.Context, agentID, _, _ string, _ map[string]string) (*brokeringv1.SubmitEchoResponse, error) {
	defer f.track()()
	n := f.echoCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failEvery > 0 && n%f.failEvery == 0 {
		return nil, fmt.Errorf("injected submit failure")
	}
	return &brokeringv1.SubmitEchoResponse{RequestId: fmt.Sprintf("echo-%d", n), TotalExpected: 2}, nil
}

func (f *fakeBroker) GetEchoResults(_ context.Context, requestID string, sinceSeq int64, _ int32) (*brokeringv1.GetEchoResultsResponse, error) {
	return &brokeringv1.GetEchoResultsResponse{
		Status:  "COMPLETE",
		LastSeq: 2,
		NewItems: []*brokeringv1.EchoItem{
			{Seq: sinceSeq + 1, SourceId: "s1", Status: "OK"},
			{Seq: sinceSeq + 2, SourceId: "s2", Status: "TIMEOUT"},
		},
	}, nil
}

func (f *fakeBroker) SubmitAvailability(_ context.Context, agentID string, _ *commonv1.SearchCriteria, _ []string) (*brokeringv1.SubmitAvailabilityResponse, error) {
	n := f.availCalls.Add(1)
	return &brokeringv1.SubmitAvailabilityResponse{RequestId: fmt.Sprintf("avail-%d", n), ExpectedSources: 2}, nil
}

func (f *fakeBroker) DrainAvailability(context.Context, string, int32) ([]*commonv1.ResultItem, error) {
	return []*commonv1.ResultItem{
		{Seq: 1, SourceId: "s1", Offers: []*commonv1.Offer{{OfferRef: "o1"}}},
		{Seq: 2, SourceId: "s2", ErrorCode: "SOURCE_ERROR"},
	}, nil
}

func TestRunEchoCampaign(t *testing.T) {
	broker := &fakeBroker{}
	runner := NewRunner(broker)

	result, err := runner.Run(context.Background(), Config{
		Kind:     KindEcho,
		AgentID:  "agent-1",
		Requests: 8,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Requests != 8 || result.Succeeded != 8 {
		t.Errorf("result = %+v", result)
	}
	if result.SuccessRate != 1.0 {
		t.Errorf("successRate = %v, want 1.0", result.SuccessRate)
	}
	// Each trial saw 2 items, one of them a timeout
	if result.ItemsTotal != 16 || result.TimedOut != 8 {
		t.Errorf("items/timeouts = %d/%d", result.ItemsTotal, result.TimedOut)
	}
	if result.Latency.Count != 8 {
		t.Errorf("latency samples = %d", result.Latency.Count)
	}
}

func TestRunCampaign_SubmitRetryMasksTransientFailures(t *testing.T) {
	// Every second submit attempt fails; the trial-level retry absorbs it,
	// so the campaign still reports full success.
	broker := &fakeBroker{failEvery: 2}
	runner := NewRunner(broker)

	result, err := runner.Run(context.Background(), Config{
		Kind:     KindEcho,
		AgentID:  "agent-1",
		Requests: 10,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 0 || result.Succeeded != 10 {
		t.Errorf("failed/succeeded = %d/%d, want 0/10", result.Failed, result.Succeeded)
	}
	if broker.echoCalls.Load() <= 10 {
		t.Errorf("submit attempts = %d, retries should add attempts", broker.echoCalls.Load())
	}
}

func TestRunCampaign_PersistentFailuresCount(t *testing.T) {
	// Every attempt fails; retries exhaust and every trial is a failure.
	broker := &fakeBroker{failEvery: 1}
	runner := NewRunner(broker)

	result, err := runner.Run(context.Background(), Config{
		Kind:     KindEcho,
		AgentID:  "agent-1",
		Requests: 6,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 6 || result.Succeeded != 0 {
		t.Errorf("failed/succeeded = %d/%d, want 6/0", result.Failed, result.Succeeded)
	}
	if result.SuccessRate != 0 {
		t.Errorf("successRate = %v, want 0", result.SuccessRate)
	}
}

func TestRunCampaign_ConcurrencyBounded(t *testing.T) {
	broker := &fakeBroker{delay: 30 * time.Millisecond}
	runner := NewRunner(broker)

	_, err := runner.Run(context.Background(), Config{
		Kind:        KindEcho,
		AgentID:     "agent-1",
		Requests:    12,
		Concurrency: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if max := broker.maxSeen.Load(); max > 3 {
		t.Errorf("max in-flight = %d, want <= 3", max)
	}
}

func TestRunAvailabilityCampaign(t *testing.T) {
	broker := &fakeBroker{}
	runner := NewRunner(broker)

	result, err := runner.Run(context.Background(), Config{
		Kind:            KindAvailability,
		AgentID:         "agent-1",
		Requests:        4,
		PickupUnlocode:  "PKKHI",
		DropoffUnlocode: "PKLHE",
		PickupAt:        time.Now().Add(24 * time.Hour),
		DropoffAt:       time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Succeeded != 4 {
		t.Errorf("succeeded = %d, want 4", result.Succeeded)
	}
	if result.Errored != 4 {
		t.Errorf("errored items = %d, want one per trial", result.Errored)
	}
}

func TestCalculateLatencyStats(t *testing.T) {
	t.Run("empty sample", func(t *testing.T) {
		stats := CalculateLatencyStats(nil)
		if stats.Count != 0 || stats.Mean != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("uniform sample", func(t *testing.T) {
		values := make([]float64, 100)
		for i := range values {
			values[i] = float64(i + 1) // 1..100
		}
		stats := CalculateLatencyStats(values)

		if stats.Mean != 50.5 {
			t.Errorf("mean = %v, want 50.5", stats.Mean)
		}
		if stats.Min != 1 || stats.Max != 100 {
			t.Errorf("min/max = %v/%v", stats.Min, stats.Max)
		}
		if stats.P50 < 50 || stats.P50 > 51 {
			t.Errorf("p50 = %v", stats.P50)
		}
		if stats.P95 < 95 || stats.P95 > 96 {
			t.Errorf("p95 = %v", stats.P95)
		}
		if stats.P99 < 99 || stats.P99 > 100 {
			t.Errorf("p99 = %v", stats.P99)
		}
	})

	t.Run("single value", func(t *testing.T) {
		stats := CalculateLatencyStats([]float64{42})
		if stats.P50 != 42 || stats.P99 != 42 || stats.StdDev != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})
}
