// Package jobstore implements the availability fan-in buffer: append-only,
// seq-ordered results per job, with a cooperative long-poll wait so readers
// wake as appends land instead of spinning.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/pkg/metrics"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/repository"
)

// notifier wakes long-poll waiters of one job. Broadcast closes the current
// generation's channel; waiters re-arm by fetching a fresh one.
type notifier struct {
	ch chan struct{}
}

// PollResult is what getSince hands back to the transport layer.
type PollResult struct {
	Status   domain.JobStatus
	LastSeq  int64
	NewItems []*domain.AvailabilityResult
}

// Store wraps the job repository with seq-cursor reads and append
// notification.
type Store struct {
	repo repository.JobRepository

	notifiers notifierMap

	now func() time.Time
}

// NewStore creates a store over the repository.
func NewStore(repo repository.JobRepository) *Store {
	return &Store{
		repo: repo,
		now:  time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// CreateJob creates an IN_PROGRESS job and returns its id. expectedSources
// is empty at creation; the dispatcher fills it once eligibility resolves.
func (s *Store) CreateJob(ctx context.Context, agentID string, criteria domain.AvailabilityCriteria, slaDeadline time.Time) (string, error) {
	job := &domain.AvailabilityJob{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		Criteria:    criteria,
		Status:      domain.JobStatusInProgress,
		SLADeadline: slaDeadline,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return "", apperror.Wrap(err, apperror.CodeInternal, "failed to create availability job")
	}
	return job.ID, nil
}

// GetJob loads one job.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.AvailabilityJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "availability job not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load availability job")
	}
	return job, nil
}

// SetExpectedSources persists the deduped source set before fan-out begins.
func (s *Store) SetExpectedSources(ctx context.Context, jobID string, sourceIDs []string) error {
	if err := s.repo.SetExpectedSources(ctx, jobID, sourceIDs); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to set expected sources")
	}
	return nil
}

// AppendOffers appends one source's successful response.
func (s *Store) AppendOffers(ctx context.Context, jobID, sourceID string, offers []adapter.Offer, latencyMs int64) error {
	payload, err := json.Marshal(offers)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to encode offers")
	}
	return s.append(ctx, &domain.AvailabilityResult{
		JobID:     jobID,
		SourceID:  sourceID,
		Status:    domain.ResultStatusOK,
		Offers:    payload,
		LatencyMs: latencyMs,
	})
}

// AppendTimeout appends the timed-out marker: an empty payload readers
// distinguish from an empty success.
func (s *Store) AppendTimeout(ctx context.Context, jobID, sourceID string, latencyMs int64) error {
	result := domain.TimeoutResult(jobID, sourceID, s.now())
	result.LatencyMs = latencyMs
	result.Offers = []byte("[]")
	return s.append(ctx, &result)
}

// AppendError appends an empty payload row followed by the error item, per
// the dispatcher's failure contract.
func (s *Store) AppendError(ctx context.Context, jobID, sourceID, agreementRef, code, message string, latencyMs int64) error {
	empty := &domain.AvailabilityResult{
		JobID:    jobID,
		SourceID: sourceID,
		Status:   domain.ResultStatusOK,
		Offers:   []byte("[]"),
	}
	if err := s.append(ctx, empty); err != nil {
		return err
	}

	detail, err := json.Marshal(map[string]string{
		"error":         code,
		"message":       message,
		"agreement_ref": agreementRef,
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to encode error item")
	}
	errItem := domain.ErrorResult(jobID, sourceID, code, message, s.now())
	errItem.Offers = detail
	errItem.LatencyMs = latencyMs
	return s.append(ctx, &errItem)
}

func (s *Store) append(ctx context.Context, result *domain.AvailabilityResult) error {
	_, err := s.repo.AppendResult(ctx, result)
	if err != nil {
		if errors.Is(err, repository.ErrJobComplete) {
			// Late response after COMPLETE: dropped by design.
			metrics.Get().RecordResultAppended("availability", "dropped_late")
			return nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(apperror.CodeNotFound, "availability job not found")
		}
		return apperror.Wrap(err, apperror.CodeInternal, "failed to append result")
	}
	metrics.Get().RecordResultAppended("availability", string(result.Status))
	s.notifiers.broadcast(result.JobID)
	return nil
}

// MarkJobComplete transitions the job to COMPLETE. Idempotent: only the
// first call flips the status, later calls are no-ops. Waiters are woken so
// pollers observe completion promptly.
func (s *Store) MarkJobComplete(ctx context.Context, jobID string) error {
	flipped, err := s.repo.CompleteJob(ctx, jobID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(apperror.CodeNotFound, "availability job not found")
		}
		return apperror.Wrap(err, apperror.CodeInternal, "failed to complete job")
	}
	if flipped {
		s.notifiers.broadcast(jobID)
		s.notifiers.drop(jobID)
	}
	return nil
}

// GetSince reads results with seq > sinceSeq. With nothing new and the job
// still IN_PROGRESS, it waits up to waitMs for an append or completion,
// then returns whatever is available. lastSeq never regresses for a job.
func (s *Store) GetSince(ctx context.Context, jobID string, sinceSeq int64, waitMs int) (*PollResult, error) {
	deadline := s.now().Add(time.Duration(waitMs) * time.Millisecond)

	for {
		// Arm the notifier before reading: an append racing the read flips
		// this generation's channel and the wait below returns immediately.
		wake := s.notifiers.arm(jobID)

		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		items, err := s.repo.ResultsSince(ctx, jobID, sinceSeq)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to read results")
		}

		if len(items) > 0 || job.Status == domain.JobStatusComplete {
			return &PollResult{
				Status:   job.Status,
				LastSeq:  sinceSeq + int64(len(items)),
				NewItems: items,
			}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &PollResult{Status: job.Status, LastSeq: sinceSeq}, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			// An abandoned poll affects neither the job nor other pollers.
			return &PollResult{Status: job.Status, LastSeq: sinceSeq}, nil
		case <-timer.C:
			return &PollResult{Status: job.Status, LastSeq: sinceSeq}, nil
		case <-wake:
			timer.Stop()
			// Loop and re-read; new items or completion are now visible.
		}
	}
}

// LastSeq exposes the current cursor head for a job.
func (s *Store) LastSeq(ctx context.Context, jobID string) (int64, error) {
	return s.repo.LastSeq(ctx, jobID)
}
