// Package probe runs bounded campaigns of concurrent echo and availability
// requests against the brokering edge, with per-trial latency capture. The
// campaigns drive the health monitor's strike/backoff machinery end to end
// and produce the latency distributions ops watches.
package probe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	"carbroker/pkg/logger"
)

// Broker is the slice of the brokering client the campaigns use; the
// production implementation is pkg/client.BrokerClient.
type Broker interface {
	SubmitEcho(ctx context.Context, agentID, agreementRef, message string, attrs map[string]string) (*brokeringv1.SubmitEchoResponse, error)
	GetEchoResults(ctx context.Context, requestID string, sinceSeq int64, waitMs int32) (*brokeringv1.GetEchoResultsResponse, error)
	SubmitAvailability(ctx context.Context, agentID string, criteria *commonv1.SearchCriteria, agreementRefs []string) (*brokeringv1.SubmitAvailabilityResponse, error)
	DrainAvailability(ctx context.Context, requestID string, waitMs int32) ([]*commonv1.ResultItem, error)
}

// Kind selects what a campaign probes.
type Kind string

const (
	KindEcho         Kind = "echo"
	KindAvailability Kind = "availability"
)

// Config describes one campaign.
type Config struct {
	Kind         Kind
	AgentID      string
	AgreementRef string // echo only; empty fans out to all
	Requests     int
	Concurrency  int
	PollWaitMs   int32
	Timeout      time.Duration // per-trial budget

	// Availability probe route
	PickupUnlocode  string
	DropoffUnlocode string
	PickupAt        time.Time
	DropoffAt       time.Time
}

// Trial is one request's outcome.
type Trial struct {
	LatencyMs int64
	Items     int
	TimedOut  int
	Errored   int
	Err       error
}

// Result aggregates one finished campaign.
type Result struct {
	ID          string
	Kind        Kind
	StartedAt   time.Time
	FinishedAt  time.Time
	Requests    int
	Succeeded   int
	Failed      int
	SuccessRate float64
	Latency     LatencyStats
	ItemsTotal  int
	TimedOut    int
	Errored     int
}

// Runner executes campaigns with a bounded worker pool.
type Runner struct {
	broker Broker
	now    func() time.Time
}

// NewRunner creates a runner over a broker client.
func NewRunner(broker Broker) *Runner {
	return &Runner{broker: broker, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes one campaign. Trials run concurrently up to
// cfg.Concurrency; a trial failure never aborts the campaign.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Requests <= 0 {
		cfg.Requests = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollWaitMs <= 0 {
		cfg.PollWaitMs = 1000
	}

	result := &Result{
		ID:        uuid.New().String(),
		Kind:      cfg.Kind,
		StartedAt: r.now(),
		Requests:  cfg.Requests,
	}

	trials := make([]Trial, cfg.Requests)
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	var wg sync.WaitGroup

	for i := 0; i < cfg.Requests; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Campaign cancelled; remaining trials record the cancellation.
			for j := i; j < cfg.Requests; j++ {
				trials[j] = Trial{Err: err}
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			trials[i] = r.runTrial(ctx, cfg)
		}(i)
	}
	wg.Wait()

	latencies := make([]float64, 0, len(trials))
	for _, trial := range trials {
		if trial.Err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
		result.ItemsTotal += trial.Items
		result.TimedOut += trial.TimedOut
		result.Errored += trial.Errored
		latencies = append(latencies, float64(trial.LatencyMs))
	}
	if result.Requests > 0 {
		result.SuccessRate = float64(result.Succeeded) / float64(result.Requests)
	}
	result.Latency = CalculateLatencyStats(latencies)
	result.FinishedAt = r.now()

	logger.Log.Info("Probe campaign finished",
		"campaign_id", result.ID,
		"kind", result.Kind,
		"requests", result.Requests,
		"success_rate", result.SuccessRate,
		"p95_ms", result.Latency.P95,
	)
	return result, nil
}

// runTrial performs a single submit-and-drain round trip.
func (r *Runner) runTrial(ctx context.Context, cfg Config) Trial {
	trialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := r.now()
	var trial Trial

	switch cfg.Kind {
	case KindAvailability:
		trial = r.availabilityTrial(trialCtx, cfg)
	default:
		trial = r.echoTrial(trialCtx, cfg)
	}

	trial.LatencyMs = r.now().Sub(start).Milliseconds()
	return trial
}

func (r *Runner) echoTrial(ctx context.Context, cfg Config) Trial {
	// The submit itself retries briefly: a campaign measures the fan-out,
	// not transient edge hiccups.
	var sub *brokeringv1.SubmitEchoResponse
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var submitErr error
		sub, submitErr = r.broker.SubmitEcho(ctx, cfg.AgentID, cfg.AgreementRef, "probe", map[string]string{
			"probe": "sourcesim",
		})
		if submitErr != nil {
			return retry.RetryableError(submitErr)
		}
		return nil
	})
	if err != nil {
		return Trial{Err: err}
	}

	var trial Trial
	var sinceSeq int64
	for {
		results, err := r.broker.GetEchoResults(ctx, sub.RequestId, sinceSeq, cfg.PollWaitMs)
		if err != nil {
			trial.Err = err
			return trial
		}
		for _, item := range results.NewItems {
			trial.Items++
			switch item.Status {
			case "TIMEOUT":
				trial.TimedOut++
			case "ERROR":
				trial.Errored++
			}
		}
		sinceSeq = results.LastSeq
		if results.Status == "COMPLETE" {
			return trial
		}
		if ctx.Err() != nil {
			trial.Err = ctx.Err()
			return trial
		}
	}
}

func (r *Runner) availabilityTrial(ctx context.Context, cfg Config) Trial {
	sub, err := r.broker.SubmitAvailability(ctx, cfg.AgentID, &commonv1.SearchCriteria{
		PickupUnlocode:  cfg.PickupUnlocode,
		DropoffUnlocode: cfg.DropoffUnlocode,
		PickupAt:        cfg.PickupAt.UTC().Format(time.RFC3339),
		DropoffAt:       cfg.DropoffAt.UTC().Format(time.RFC3339),
	}, nil)
	if err != nil {
		return Trial{Err: err}
	}

	items, err := r.broker.DrainAvailability(ctx, sub.RequestId, cfg.PollWaitMs)
	trial := Trial{Items: len(items), Err: err}
	for _, item := range items {
		switch {
		case item.TimedOut:
			trial.TimedOut++
		case item.ErrorCode != "":
			trial.Errored++
		}
	}
	return trial
}
