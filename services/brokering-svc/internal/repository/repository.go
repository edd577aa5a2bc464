// Package repository provides the persistence layer of brokering-svc:
// agreements, coverage, fan-in jobs, bookings, idempotency keys, and source
// health, with in-memory and Postgres implementations behind one interface
// set.
package repository

import (
	"context"
	"errors"
	"time"

	"carbroker/pkg/domain"
)

// Standard repository errors
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate")
	ErrJobComplete    = errors.New("job already complete")
	ErrKeyConflict    = errors.New("idempotency key already committed")
	ErrUnknownLocode  = errors.New("unlocode not in catalog")
	ErrSourceRefTaken = errors.New("supplier booking ref already present for source")
)

// CompanyReader reads Company rows. Companies are owned by identity-svc;
// brokering-svc only reads them (and never writes).
type CompanyReader interface {
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	ListSources(ctx context.Context) ([]*domain.Company, error)
}

// AgreementRepository owns Agreement rows.
type AgreementRepository interface {
	Create(ctx context.Context, a *domain.Agreement) error
	Get(ctx context.Context, id string) (*domain.Agreement, error)
	GetByNaturalKey(ctx context.Context, sourceID, agreementRef string) (*domain.Agreement, error)
	// UpdateStatus persists a transition. The expectedStatus guard makes the
	// read-then-write transition check safe under concurrency: the update
	// applies only if the stored status still equals expectedStatus,
	// otherwise ErrNotFound is returned and the caller re-reads.
	UpdateStatus(ctx context.Context, id string, expectedStatus, newStatus domain.AgreementStatus) error
	ListByAgent(ctx context.Context, agentID string, status *domain.AgreementStatus) ([]*domain.Agreement, error)
	ListBySource(ctx context.Context, sourceID string, status *domain.AgreementStatus) ([]*domain.Agreement, error)
	// ResolveActive returns the (id, ref, sourceId) projection of the
	// agent's ACTIVE agreements restricted to refs; with refs empty, all of
	// them. Logical expiry (validTo in the past) is applied here.
	ResolveActive(ctx context.Context, agentID string, refs []string, now time.Time) ([]domain.ResolvedAgreement, error)
}

// CoverageRepository owns SourceCoverage and AgreementLocationOverride rows
// plus the read-only LocationCatalog intersection.
type CoverageRepository interface {
	BaseCoverage(ctx context.Context, sourceID string) ([]string, error)
	// ReplaceBaseCoverage swaps a source's base set wholesale, returning
	// added/removed counts. Codes absent from the catalog must already be
	// filtered out by the caller.
	ReplaceBaseCoverage(ctx context.Context, sourceID string, unlocodes []string) (domain.CoverageSyncResult, error)
	Overrides(ctx context.Context, agreementID string) (map[string]domain.OverrideDecision, error)
	UpsertOverride(ctx context.Context, agreementID, unlocode string, decision domain.OverrideDecision) error
	RemoveOverride(ctx context.Context, agreementID, unlocode string) error
	KnownLocodes(ctx context.Context, unlocodes []string) (map[string]bool, error)
}

// JobRepository owns the availability fan-in buffer.
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.AvailabilityJob) error
	GetJob(ctx context.Context, id string) (*domain.AvailabilityJob, error)
	SetExpectedSources(ctx context.Context, id string, sourceIDs []string) error
	// AppendResult assigns the next seq for the job atomically and inserts
	// the row. Returns ErrJobComplete when the job is COMPLETE: late
	// results are dropped, never appended.
	AppendResult(ctx context.Context, result *domain.AvailabilityResult) (seq int64, err error)
	// CompleteJob marks the job COMPLETE. Idempotent; reports whether this
	// call performed the transition.
	CompleteJob(ctx context.Context, id string, now time.Time) (bool, error)
	ResultsSince(ctx context.Context, jobID string, sinceSeq int64) ([]*domain.AvailabilityResult, error)
	LastSeq(ctx context.Context, jobID string) (int64, error)
	// ExpiredJobs lists COMPLETE jobs older than cutoff for archival.
	ExpiredJobs(ctx context.Context, cutoff time.Time, limit int) ([]*domain.AvailabilityJob, error)
	DeleteJob(ctx context.Context, id string) error
}

// EchoRepository mirrors JobRepository for echo campaigns.
type EchoRepository interface {
	CreateJob(ctx context.Context, job *domain.EchoJob) error
	GetJob(ctx context.Context, id string) (*domain.EchoJob, error)
	AppendItem(ctx context.Context, item *domain.EchoItem) (seq int64, err error)
	CompleteJob(ctx context.Context, id string, now time.Time) (bool, error)
	ItemsSince(ctx context.Context, jobID string, sinceSeq int64) ([]*domain.EchoItem, error)
	ExpiredJobs(ctx context.Context, cutoff time.Time, limit int) ([]*domain.EchoJob, error)
	DeleteJob(ctx context.Context, id string) error
}

// BookingRepository owns Booking rows and, for Create, the paired
// IdempotencyKey row.
type BookingRepository interface {
	// CreateWithKey inserts the booking and its idempotency key in one
	// atomic unit: an observer sees both rows or neither. On a concurrent
	// duplicate of (agentID, key) it returns ErrKeyConflict without
	// inserting anything.
	CreateWithKey(ctx context.Context, b *domain.Booking, key *domain.IdempotencyKey, snapshot []byte) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	GetBySourceRef(ctx context.Context, sourceRef string) (*domain.Booking, error)
	UpdateFromSource(ctx context.Context, id string, status domain.BookingStatus, snapshot []byte) error
	Snapshot(ctx context.Context, id string) ([]byte, error)
	ExpiredBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)
	Delete(ctx context.Context, id string) error
}

// IdempotencyRepository owns (agentID, scope, key) rows outside the booking
// create path (which goes through BookingRepository.CreateWithKey).
type IdempotencyRepository interface {
	Get(ctx context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// HealthRepository persists SourceHealth snapshots so replicas and restarts
// see recent verdicts.
type HealthRepository interface {
	Upsert(ctx context.Context, h domain.SourceHealth) error
	Get(ctx context.Context, sourceID string) (*domain.SourceHealth, error)
	ListExcluded(ctx context.Context, now time.Time) ([]*domain.SourceHealth, error)
}

// Repositories bundles every store of brokering-svc.
type Repositories struct {
	Companies   CompanyReader
	Agreements  AgreementRepository
	Coverage    CoverageRepository
	Jobs        JobRepository
	Echo        EchoRepository
	Bookings    BookingRepository
	Idempotency IdempotencyRepository
	Health      HealthRepository

	closer func()
}

// Close releases underlying connections.
func (r *Repositories) Close() {
	if r.closer != nil {
		r.closer()
	}
}
