// Package echo implements the liveness probe analog of the dispatcher: a
// trivial message+attrs payload scattered to every active-agreement source,
// aggregated into an EchoJob with the same seq-cursor semantics as the
// availability store.
package echo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/telemetry"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/repository"
)

// Config carries the echo broker's tuning.
type Config struct {
	Concurrency       int
	PerCallTimeout    time.Duration
	SLA               time.Duration
	WatchInterval     time.Duration
	WatchMax          time.Duration
	RecommendedPollMs int
}

// DefaultConfig returns the nominal echo tuning: short per-call budget,
// 1s watch ticks bounded to five minutes.
func DefaultConfig() Config {
	return Config{
		Concurrency:       domain.DefaultDispatchConcurrency,
		PerCallTimeout:    domain.DefaultEchoPerCallTimeout,
		SLA:               domain.DefaultSLATimeout,
		WatchInterval:     time.Second,
		WatchMax:          domain.DefaultEchoWatchMaxDuration,
		RecommendedPollMs: domain.DefaultRecommendedPollMs,
	}
}

// Broker scatters echo probes and aggregates their round-trips.
type Broker struct {
	cfg Config

	agreements *agreement.Registry
	adapters   *adapter.Registry
	repo       repository.EchoRepository
	health     *health.Monitor

	notifiers notifierMap
	now       func() time.Time
}

// New creates a broker.
func New(cfg Config, agreements *agreement.Registry, adapters *adapter.Registry, repo repository.EchoRepository, mon *health.Monitor) *Broker {
	if cfg.Concurrency <= 0 {
		cfg = DefaultConfig()
	}
	return &Broker{
		cfg:        cfg,
		agreements: agreements,
		adapters:   adapters,
		repo:       repo,
		health:     mon,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (b *Broker) SetClock(now func() time.Time) { b.now = now }

// Submission is the synchronous answer to one echo submit.
type Submission struct {
	JobID             string
	TotalExpected     int
	ExpiresUnixMs     int64
	RecommendedPollMs int
}

// Results is one long-poll page of echo items plus aggregate progress.
type Results struct {
	Status            domain.JobStatus
	NewItems          []*domain.EchoItem
	LastSeq           int64
	ResponsesReceived int
	TotalExpected     int
	TimedOutSources   []string
	AggregateEtag     string
}

// Submit scatters message+attrs to every source the agent holds an ACTIVE
// agreement with (optionally narrowed to one ref) and returns the job id.
func (b *Broker) Submit(ctx context.Context, agentID, agreementRef, message string, attrs map[string]string) (*Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "EchoBroker.Submit")
	defer span.End()

	if message == "" {
		return nil, apperror.NewWithField(apperror.CodeInvalidParam, "message is required", "message")
	}

	var refs []string
	if agreementRef != "" {
		refs = []string{agreementRef}
	}
	resolved, err := b.agreements.ResolveActive(ctx, agentID, refs)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to resolve active agreements")
	}

	slaDeadline := b.now().Add(b.cfg.SLA)
	job := &domain.EchoJob{
		ID:          uuid.New().String(),
		RequestedBy: agentID,
		Status:      domain.JobStatusInProgress,
		SLADeadline: slaDeadline,
	}

	// Dedupe by source for the expected count; scatter still goes per
	// agreement, mirroring the availability dispatcher.
	seen := make(map[string]struct{})
	for _, ra := range resolved {
		if _, ok := seen[ra.SourceID]; !ok {
			seen[ra.SourceID] = struct{}{}
			job.ExpectedSources = append(job.ExpectedSources, ra.SourceID)
		}
	}

	if err := b.repo.CreateJob(ctx, job); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create echo job")
	}

	if len(resolved) == 0 {
		if _, err := b.repo.CompleteJob(ctx, job.ID, b.now()); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to complete empty echo job")
		}
		return &Submission{
			JobID:             job.ID,
			TotalExpected:     0,
			ExpiresUnixMs:     slaDeadline.UnixMilli(),
			RecommendedPollMs: b.cfg.RecommendedPollMs,
		}, nil
	}

	scatterCtx, cancel := context.WithDeadline(context.Background(), slaDeadline)
	go b.scatter(scatterCtx, cancel, job.ID, message, attrs, resolved)

	return &Submission{
		JobID:             job.ID,
		TotalExpected:     len(job.ExpectedSources),
		ExpiresUnixMs:     slaDeadline.UnixMilli(),
		RecommendedPollMs: b.cfg.RecommendedPollMs,
	}, nil
}

func (b *Broker) scatter(ctx context.Context, cancel context.CancelFunc, jobID, message string, attrs map[string]string, targets []domain.ResolvedAgreement) {
	defer cancel()

	sem := semaphore.NewWeighted(int64(b.cfg.Concurrency))
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, t := range targets {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			t := t
			go func() {
				defer sem.Release(1)
				b.callOne(ctx, jobID, message, attrs, t)
			}()
		}
		if err := sem.Acquire(ctx, int64(b.cfg.Concurrency)); err == nil {
			sem.Release(int64(b.cfg.Concurrency))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	completeCtx, completeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer completeCancel()
	if _, err := b.repo.CompleteJob(completeCtx, jobID, b.now()); err != nil {
		logger.Log.Error("Failed to complete echo job", "job_id", jobID, "error", err)
	}
	b.notifiers.broadcast(jobID)
}

func (b *Broker) callOne(ctx context.Context, jobID, message string, attrs map[string]string, t domain.ResolvedAgreement) {
	src, err := b.adapters.For(ctx, t.SourceID)
	if err != nil {
		b.append(ctx, jobID, t.SourceID, domain.ResultStatusError, nil, 0)
		return
	}

	echoer, ok := src.(adapter.Echoer)
	if !ok {
		b.append(ctx, jobID, t.SourceID, domain.ResultStatusError, nil, 0)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.PerCallTimeout)
	defer cancel()

	start := b.now()
	echoed, err := echoer.Echo(callCtx, message, attrs)
	elapsed := b.now().Sub(start)
	latencyMs := elapsed.Milliseconds()

	b.health.Record(ctx, health.Metric{SourceID: t.SourceID, LatencyMs: latencyMs, Success: err == nil})
	metrics.Get().RecordSourceCall(t.SourceID, "echo", callStatus(callCtx, err), elapsed)

	switch {
	case err == nil:
		payload, marshalErr := json.Marshal(echoed)
		if marshalErr != nil {
			payload = nil
		}
		b.append(ctx, jobID, t.SourceID, domain.ResultStatusOK, payload, latencyMs)
	case callCtx.Err() != nil:
		b.append(ctx, jobID, t.SourceID, domain.ResultStatusTimeout, nil, latencyMs)
	default:
		b.append(ctx, jobID, t.SourceID, domain.ResultStatusError, nil, latencyMs)
	}
}

func callStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "timeout"
	default:
		return "error"
	}
}

func (b *Broker) append(ctx context.Context, jobID, sourceID string, status domain.ResultStatus, echoed []byte, latencyMs int64) {
	item := &domain.EchoItem{
		JobID:     jobID,
		SourceID:  sourceID,
		Status:    status,
		Echoed:    echoed,
		LatencyMs: latencyMs,
	}
	_, err := b.repo.AppendItem(context.WithoutCancel(ctx), item)
	if err != nil {
		if errors.Is(err, repository.ErrJobComplete) {
			metrics.Get().RecordResultAppended("echo", "dropped_late")
			return
		}
		logger.Log.Warn("Failed to append echo item", "job_id", jobID, "source_id", sourceID, "error", err)
		return
	}
	metrics.Get().RecordResultAppended("echo", string(status))
	b.notifiers.broadcast(jobID)
}

// GetResults reads echo items with seq > sinceSeq, waiting up to waitMs
// when nothing new is available and the job is still in progress.
func (b *Broker) GetResults(ctx context.Context, jobID string, sinceSeq int64, waitMs int) (*Results, error) {
	deadline := b.now().Add(time.Duration(waitMs) * time.Millisecond)

	for {
		wake := b.notifiers.arm(jobID)

		job, err := b.repo.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperror.New(apperror.CodeNotFound, "echo job not found")
			}
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load echo job")
		}

		newItems, err := b.repo.ItemsSince(ctx, jobID, sinceSeq)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to read echo items")
		}

		if len(newItems) > 0 || job.Status == domain.JobStatusComplete {
			return b.buildResults(ctx, job, sinceSeq, newItems)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return b.buildResults(ctx, job, sinceSeq, nil)
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return b.buildResults(ctx, job, sinceSeq, nil)
		case <-timer.C:
			return b.buildResults(ctx, job, sinceSeq, nil)
		case <-wake:
			timer.Stop()
		}
	}
}

func (b *Broker) buildResults(ctx context.Context, job *domain.EchoJob, sinceSeq int64, newItems []*domain.EchoItem) (*Results, error) {
	// The aggregate view always reflects every item so far, not just this
	// page: responsesReceived, timed-out sources, and the etag cover the
	// full job.
	all, err := b.repo.ItemsSince(ctx, job.ID, 0)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to read echo items")
	}

	var timedOut []string
	for _, item := range all {
		if item.Status == domain.ResultStatusTimeout {
			timedOut = append(timedOut, item.SourceID)
		}
	}

	etag := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", job.ID, len(all), job.Status)))

	return &Results{
		Status:            job.Status,
		NewItems:          newItems,
		LastSeq:           sinceSeq + int64(len(newItems)),
		ResponsesReceived: len(all),
		TotalExpected:     len(job.ExpectedSources),
		TimedOutSources:   timedOut,
		AggregateEtag:     hex.EncodeToString(etag[:8]),
	}, nil
}

// Watch polls the job every WatchInterval and hands each page to emit,
// stopping at COMPLETE, WatchMax, or ctx cancellation. The transport layer
// streams each page to the caller.
func (b *Broker) Watch(ctx context.Context, jobID string, sinceSeq int64, emit func(*Results) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.WatchMax)
	defer cancel()

	ticker := time.NewTicker(b.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		results, err := b.GetResults(ctx, jobID, sinceSeq, 0)
		if err != nil {
			return err
		}
		if len(results.NewItems) > 0 || results.Status == domain.JobStatusComplete {
			if err := emit(results); err != nil {
				return err
			}
		}
		sinceSeq = results.LastSeq
		if results.Status == domain.JobStatusComplete {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
