// Package sweeper enforces retention: completed jobs and terminal bookings
// past their window are archived into history-svc and deleted from the live
// tables; expired idempotency keys are dropped.
package sweeper

import (
	"context"
	"time"

	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/services/brokering-svc/internal/idempotency"
	"carbroker/services/brokering-svc/internal/repository"
)

// Archiver receives rows leaving the live tables. history-svc's client
// implements it; a nil archiver means delete-only retention.
type Archiver interface {
	ArchiveAvailabilityJob(ctx context.Context, job *domain.AvailabilityJob, resultCount int) error
	ArchiveEchoJob(ctx context.Context, job *domain.EchoJob, itemCount int) error
	ArchiveBooking(ctx context.Context, b *domain.Booking, snapshot []byte) error
}

// Config carries the retention windows.
type Config struct {
	Interval         time.Duration
	JobRetention     time.Duration
	BookingRetention time.Duration
	BatchSize        int
}

// DefaultConfig returns the documented retention policy: jobs 24h,
// bookings 90d, sweep every 10 minutes.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		JobRetention:     domain.DefaultJobRetention,
		BookingRetention: domain.DefaultBookingRetention,
		BatchSize:        100,
	}
}

// Sweeper runs the periodic retention pass.
type Sweeper struct {
	cfg      Config
	jobs     repository.JobRepository
	echo     repository.EchoRepository
	bookings repository.BookingRepository
	keys     *idempotency.Store
	archiver Archiver

	now func() time.Time
}

// New creates a sweeper.
func New(cfg Config, jobs repository.JobRepository, echoRepo repository.EchoRepository, bookings repository.BookingRepository, keys *idempotency.Store, archiver Archiver) *Sweeper {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Sweeper{
		cfg:      cfg,
		jobs:     jobs,
		echo:     echoRepo,
		bookings: bookings,
		keys:     keys,
		archiver: archiver,
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs one retention pass. Failures are logged and retried on
// the next tick; a row is only deleted after its archive write succeeds.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.now()

	jobCutoff := now.Add(-s.cfg.JobRetention)
	expired, err := s.jobs.ExpiredJobs(ctx, jobCutoff, s.cfg.BatchSize)
	if err != nil {
		logger.Log.Warn("Retention: failed to list expired jobs", "error", err)
	}
	for _, job := range expired {
		if s.archiver != nil {
			lastSeq, _ := s.jobs.LastSeq(ctx, job.ID)
			if err := s.archiver.ArchiveAvailabilityJob(ctx, job, int(lastSeq)); err != nil {
				logger.Log.Warn("Retention: failed to archive job", "job_id", job.ID, "error", err)
				continue
			}
		}
		if err := s.jobs.DeleteJob(ctx, job.ID); err != nil {
			logger.Log.Warn("Retention: failed to delete job", "job_id", job.ID, "error", err)
		}
	}

	expiredEcho, err := s.echo.ExpiredJobs(ctx, jobCutoff, s.cfg.BatchSize)
	if err != nil {
		logger.Log.Warn("Retention: failed to list expired echo jobs", "error", err)
	}
	for _, job := range expiredEcho {
		if s.archiver != nil {
			items, _ := s.echo.ItemsSince(ctx, job.ID, 0)
			if err := s.archiver.ArchiveEchoJob(ctx, job, len(items)); err != nil {
				logger.Log.Warn("Retention: failed to archive echo job", "job_id", job.ID, "error", err)
				continue
			}
		}
		if err := s.echo.DeleteJob(ctx, job.ID); err != nil {
			logger.Log.Warn("Retention: failed to delete echo job", "job_id", job.ID, "error", err)
		}
	}

	bookingCutoff := now.Add(-s.cfg.BookingRetention)
	expiredBookings, err := s.bookings.ExpiredBookings(ctx, bookingCutoff, s.cfg.BatchSize)
	if err != nil {
		logger.Log.Warn("Retention: failed to list expired bookings", "error", err)
	}
	for _, b := range expiredBookings {
		if s.archiver != nil {
			snapshot, _ := s.bookings.Snapshot(ctx, b.ID)
			if err := s.archiver.ArchiveBooking(ctx, b, snapshot); err != nil {
				logger.Log.Warn("Retention: failed to archive booking", "booking_id", b.ID, "error", err)
				continue
			}
		}
		if err := s.bookings.Delete(ctx, b.ID); err != nil {
			logger.Log.Warn("Retention: failed to delete booking", "booking_id", b.ID, "error", err)
		}
	}

	if deleted, err := s.keys.SweepExpired(ctx); err != nil {
		logger.Log.Warn("Retention: failed to sweep idempotency keys", "error", err)
	} else if deleted > 0 {
		logger.Log.Info("Retention: swept expired idempotency keys", "deleted", deleted)
	}
}
