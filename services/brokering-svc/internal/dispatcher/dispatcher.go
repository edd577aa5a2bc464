// Package dispatcher orchestrates one availability scatter/gather: resolve
// eligible (agreement, source) pairs, fan out bounded adapter calls with
// per-call deadlines under an overall SLA, and feed every settled outcome
// into the job store.
package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/telemetry"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/coverage"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/jobstore"
)

// Config carries the dispatcher's tuning.
type Config struct {
	Concurrency       int           // max in-flight adapter calls per job
	PerCallTimeout    time.Duration // budget for one adapter call
	SLA               time.Duration // overall wall-clock budget per job
	RecommendedPollMs int           // hint returned to polling agents
}

// DefaultConfig returns the spec-nominal tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:       domain.DefaultDispatchConcurrency,
		PerCallTimeout:    domain.DefaultPerCallTimeout,
		SLA:               domain.DefaultSLATimeout,
		RecommendedPollMs: domain.DefaultRecommendedPollMs,
	}
}

// Dispatcher coordinates fan-out for availability searches.
type Dispatcher struct {
	cfg Config

	agreements *agreement.Registry
	coverage   *coverage.Resolver
	health     *health.Monitor
	adapters   *adapter.Registry
	store      *jobstore.Store

	now func() time.Time
}

// New creates a dispatcher.
func New(cfg Config, agreements *agreement.Registry, cov *coverage.Resolver, mon *health.Monitor, adapters *adapter.Registry, store *jobstore.Store) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg = DefaultConfig()
	}
	return &Dispatcher{
		cfg:        cfg,
		agreements: agreements,
		coverage:   cov,
		health:     mon,
		adapters:   adapters,
		store:      store,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Submission is the synchronous answer to one availability request: the
// job id plus the deduped expected source count.
type Submission struct {
	JobID             string
	ExpectedSources   int
	RecommendedPollMs int
}

// target is one eligible (agreement, source) pair. A source held under
// several ACTIVE agreements is contacted once per agreement, each call
// carrying its own ref.
type target struct {
	agreementID  string
	agreementRef string
	sourceID     string
}

// Submit creates the job, resolves eligibility, and starts the fan-out in
// the background. It returns as soon as eligibility resolution completes;
// results stream into the store as scatter calls settle.
func (d *Dispatcher) Submit(ctx context.Context, agentID string, criteria domain.AvailabilityCriteria, agreementRefs []string) (*Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "Dispatcher.Submit")
	defer span.End()

	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	slaDeadline := d.now().Add(d.cfg.SLA)

	// The job exists before eligibility is known: even a zero-source
	// request returns a pollable id.
	jobID, err := d.store.CreateJob(ctx, agentID, criteria, slaDeadline)
	if err != nil {
		return nil, err
	}

	targets, err := d.resolveTargets(ctx, agentID, criteria, agreementRefs)
	if err != nil {
		// Eligibility resolution failed outright; the job completes empty
		// rather than dangling IN_PROGRESS forever.
		if completeErr := d.store.MarkJobComplete(ctx, jobID); completeErr != nil {
			logger.Log.Warn("Failed to complete job after resolve error", "job_id", jobID, "error", completeErr)
		}
		return nil, err
	}

	expected := dedupeSources(targets)
	if err := d.store.SetExpectedSources(ctx, jobID, expected); err != nil {
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.DispatchAttributes(jobID, agentID, len(expected))...)

	if len(targets) == 0 {
		// Graceful degradation: zero eligible sources is a designed
		// outcome. The job completes immediately.
		if err := d.store.MarkJobComplete(ctx, jobID); err != nil {
			return nil, err
		}
		metrics.Get().RecordDispatchJob("empty", 0)
		return &Submission{JobID: jobID, ExpectedSources: 0, RecommendedPollMs: d.cfg.RecommendedPollMs}, nil
	}

	// Scatter detaches from the request context: an agent dropping the
	// submit call must not cancel in-flight source calls. The SLA is the
	// only bound.
	scatterCtx, cancel := context.WithDeadline(context.Background(), slaDeadline)
	scatterCtx = trace.ContextWithSpan(scatterCtx, trace.SpanFromContext(ctx))
	go d.scatter(scatterCtx, cancel, jobID, criteria, targets)

	return &Submission{
		JobID:             jobID,
		ExpectedSources:   len(expected),
		RecommendedPollMs: d.cfg.RecommendedPollMs,
	}, nil
}

// resolveTargets computes the eligible (agreement, source) pairs: ACTIVE
// agreement, pickup AND dropoff covered, source not excluded by health.
func (d *Dispatcher) resolveTargets(ctx context.Context, agentID string, criteria domain.AvailabilityCriteria, agreementRefs []string) ([]target, error) {
	resolved, err := d.agreements.ResolveActive(ctx, agentID, agreementRefs)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to resolve active agreements")
	}

	dropoff := criteria.EffectiveDropoff()
	var targets []target
	for _, ra := range resolved {
		if d.health.IsExcluded(ctx, ra.SourceID) {
			continue
		}

		pickupOK, err := d.coverage.IsAllowed(ctx, ra.ID, criteria.PickupUnlocode)
		if err != nil {
			logger.Log.Warn("Coverage check failed, skipping agreement",
				"agreement_id", ra.ID, "error", err)
			continue
		}
		if !pickupOK {
			continue
		}
		dropoffOK, err := d.coverage.IsAllowed(ctx, ra.ID, dropoff)
		if err != nil || !dropoffOK {
			continue
		}

		targets = append(targets, target{
			agreementID:  ra.ID,
			agreementRef: ra.AgreementRef,
			sourceID:     ra.SourceID,
		})
	}
	return targets, nil
}

// dedupeSources projects targets onto distinct source ids, preserving order.
func dedupeSources(targets []target) []string {
	seen := make(map[string]struct{}, len(targets))
	var out []string
	for _, t := range targets {
		if _, ok := seen[t.sourceID]; ok {
			continue
		}
		seen[t.sourceID] = struct{}{}
		out = append(out, t.sourceID)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// scatter runs the bounded fan-out and completes the job when every call
// settles or the SLA elapses, whichever comes first. In-flight calls are
// not cancelled by SLA completion; their late results are dropped at the
// store.
func (d *Dispatcher) scatter(ctx context.Context, cancel context.CancelFunc, jobID string, criteria domain.AvailabilityCriteria, targets []target) {
	defer cancel()

	sem := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, t := range targets {
			if err := sem.Acquire(ctx, 1); err != nil {
				// SLA elapsed while queued; remaining targets never start.
				return
			}
			t := t
			go func() {
				defer sem.Release(1)
				d.callOne(ctx, jobID, criteria, t)
			}()
		}
		// Wait for the in-flight tail.
		if err := sem.Acquire(ctx, int64(d.cfg.Concurrency)); err == nil {
			sem.Release(int64(d.cfg.Concurrency))
		}
	}()

	select {
	case <-done:
		metrics.Get().RecordDispatchJob("complete", len(targets))
	case <-ctx.Done():
		metrics.Get().RecordDispatchJob("sla_elapsed", len(targets))
	}

	// MarkJobComplete uses a fresh context: the scatter deadline elapsing
	// is precisely when completion must still be written.
	completeCtx, completeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer completeCancel()
	if err := d.store.MarkJobComplete(completeCtx, jobID); err != nil {
		logger.Log.Error("Failed to mark job complete", "job_id", jobID, "error", err)
	}
}

// callOne performs a single adapter call with its own deadline and records
// the outcome in the store and the health monitor.
func (d *Dispatcher) callOne(ctx context.Context, jobID string, criteria domain.AvailabilityCriteria, t target) {
	ctx, span := telemetry.StartSpan(ctx, "Dispatcher.callOne")
	defer span.End()

	src, err := d.adapters.For(ctx, t.sourceID)
	if err != nil {
		d.appendError(ctx, jobID, t, apperror.CodeSourceError, "no adapter for source: "+err.Error(), 0)
		return
	}

	// Deadline = min(per-call, remaining SLA); ctx already carries the SLA.
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.PerCallTimeout)
	defer cancel()

	start := d.now()
	offers, err := src.Availability(callCtx, adapter.AvailabilityRequest{
		Criteria:     criteria,
		AgreementRef: t.agreementRef,
		RequestID:    jobID,
	})
	elapsed := d.now().Sub(start)
	latencyMs := elapsed.Milliseconds()

	telemetry.SetAttributes(ctx, telemetry.SourceCallAttributes(t.sourceID, t.agreementRef, latencyMs, callCtx.Err() != nil)...)

	switch {
	case err == nil:
		d.health.Record(ctx, health.Metric{SourceID: t.sourceID, LatencyMs: latencyMs, Success: true})
		metrics.Get().RecordSourceCall(t.sourceID, "availability", "ok", elapsed)
		if appendErr := d.store.AppendOffers(detached(ctx), jobID, t.sourceID, offers, latencyMs); appendErr != nil {
			logger.Log.Warn("Failed to append offers", "job_id", jobID, "source_id", t.sourceID, "error", appendErr)
		}

	case callCtx.Err() != nil:
		// Deadline expiry: timed-out marker, no error item.
		d.health.Record(ctx, health.Metric{SourceID: t.sourceID, LatencyMs: latencyMs, Success: false})
		metrics.Get().RecordSourceCall(t.sourceID, "availability", "timeout", elapsed)
		if appendErr := d.store.AppendTimeout(detached(ctx), jobID, t.sourceID, latencyMs); appendErr != nil {
			logger.Log.Warn("Failed to append timeout marker", "job_id", jobID, "source_id", t.sourceID, "error", appendErr)
		}

	default:
		d.health.Record(ctx, health.Metric{SourceID: t.sourceID, LatencyMs: latencyMs, Success: false})
		metrics.Get().RecordSourceCall(t.sourceID, "availability", "error", elapsed)
		d.appendError(ctx, jobID, t, errorCode(err), err.Error(), latencyMs)
	}
}

func (d *Dispatcher) appendError(ctx context.Context, jobID string, t target, code apperror.ErrorCode, message string, latencyMs int64) {
	if err := d.store.AppendError(detached(ctx), jobID, t.sourceID, t.agreementRef, string(code), message, latencyMs); err != nil {
		logger.Log.Warn("Failed to append error item", "job_id", jobID, "source_id", t.sourceID, "error", err)
	}
}

func errorCode(err error) apperror.ErrorCode {
	if code := apperror.Code(err); code != apperror.CodeInternal {
		return code
	}
	return apperror.CodeSourceError
}

// detached strips the deadline (but keeps values and trace baggage) so
// store appends for an already-settled call are not lost to the same
// expired deadline that settled it.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
