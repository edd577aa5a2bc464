// Package agreement implements the agreement registry: creation, the status
// state machine, and the ResolveActive query the dispatcher runs before
// every fan-out.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carbroker/pkg/apperror"
	"carbroker/pkg/audit"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/services/brokering-svc/internal/repository"
)

// Notifier delivers agreement lifecycle notifications to the counterparty.
// Delivery is fire-and-forget: a failure is logged, never propagated.
type Notifier interface {
	NotifyTransition(ctx context.Context, a *domain.Agreement, from domain.AgreementStatus) error
}

// NoopNotifier drops notifications; used when no notification sink is wired.
type NoopNotifier struct{}

func (NoopNotifier) NotifyTransition(context.Context, *domain.Agreement, domain.AgreementStatus) error {
	return nil
}

// Registry owns agreements and their transitions.
type Registry struct {
	agreements repository.AgreementRepository
	companies  repository.CompanyReader
	notifier   Notifier

	// Transitions are read-then-write; serialize them per agreement id on
	// top of the repository's optimistic status guard.
	locks sync.Map // agreementID -> *sync.Mutex

	now func() time.Time
}

// NewRegistry creates a registry.
func NewRegistry(agreements repository.AgreementRepository, companies repository.CompanyReader, notifier Notifier) *Registry {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Registry{
		agreements: agreements,
		companies:  companies,
		notifier:   notifier,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func (r *Registry) lock(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateDraft creates a DRAFT agreement between an ACTIVE agent and an
// ACTIVE source.
func (r *Registry) CreateDraft(ctx context.Context, agentID, sourceID, agreementRef string, validFrom, validTo *time.Time) (*domain.Agreement, error) {
	agent, err := r.companies.GetCompany(ctx, agentID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidParam, "unknown agent company").WithDetails("reason", "INVALID_PARTY")
	}
	source, err := r.companies.GetCompany(ctx, sourceID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidParam, "unknown source company").WithDetails("reason", "INVALID_PARTY")
	}
	if agent.Type != domain.CompanyTypeAgent || !agent.IsActive() {
		return nil, apperror.New(apperror.CodeInvalidParam, "agent is not an active AGENT company").WithDetails("reason", "INVALID_PARTY")
	}
	if source.Type != domain.CompanyTypeSource || !source.IsActive() {
		return nil, apperror.New(apperror.CodeInvalidParam, "source is not an active SOURCE company").WithDetails("reason", "INVALID_PARTY")
	}

	a := &domain.Agreement{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		SourceID:     sourceID,
		AgreementRef: agreementRef,
		Status:       domain.AgreementStatusDraft,
		ValidFrom:    validFrom,
		ValidTo:      validTo,
	}
	if err := r.agreements.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.New(apperror.CodeDuplicate, fmt.Sprintf("agreement ref %q already exists for source", agreementRef))
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create agreement")
	}

	r.emit(ctx, a, "CreateDraft", "", nil)
	return a, nil
}

// Offer moves DRAFT -> OFFERED.
func (r *Registry) Offer(ctx context.Context, id string) (*domain.Agreement, error) {
	return r.SetStatus(ctx, id, domain.AgreementStatusOffered)
}

// Accept moves OFFERED -> ACCEPTED.
func (r *Registry) Accept(ctx context.Context, id string) (*domain.Agreement, error) {
	return r.SetStatus(ctx, id, domain.AgreementStatusAccepted)
}

// SetStatus applies one state-machine transition. Illegal edges fail with
// INVALID_TRANSITION and a message listing the legal targets.
func (r *Registry) SetStatus(ctx context.Context, id string, target domain.AgreementStatus) (*domain.Agreement, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	a, err := r.agreements.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "agreement not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load agreement")
	}

	// Both parties must still be ACTIVE companies at every transition.
	if err := r.checkParties(ctx, a); err != nil {
		return nil, err
	}

	from := a.Status
	if !domain.CanTransition(from, target) {
		return nil, apperror.New(
			apperror.CodeInvalidTransition,
			fmt.Sprintf("cannot transition %s -> %s; legal targets: {%s}", from, target, legalTargets(from)),
		)
	}

	if err := r.agreements.UpdateStatus(ctx, id, from, target); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A concurrent transition won the race; surface it the same way
			// a stale read would.
			return nil, apperror.New(
				apperror.CodeInvalidTransition,
				fmt.Sprintf("agreement changed concurrently; re-read and retry the transition from %s", from),
			)
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to persist transition")
	}
	a.Status = target
	a.UpdatedAt = r.now()

	r.emit(ctx, a, "SetStatus", from, nil)
	return a, nil
}

func (r *Registry) checkParties(ctx context.Context, a *domain.Agreement) error {
	agent, err := r.companies.GetCompany(ctx, a.AgentID)
	if err != nil || !agent.IsActive() {
		return apperror.New(apperror.CodeInvalidParam, "agent company is not ACTIVE").WithDetails("reason", "INVALID_PARTY")
	}
	source, err := r.companies.GetCompany(ctx, a.SourceID)
	if err != nil || !source.IsActive() {
		return apperror.New(apperror.CodeInvalidParam, "source company is not ACTIVE").WithDetails("reason", "INVALID_PARTY")
	}
	return nil
}

func legalTargets(from domain.AgreementStatus) string {
	targets := domain.LegalTransitions(from)
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// Get returns one agreement.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Agreement, error) {
	a, err := r.agreements.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "agreement not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load agreement")
	}
	return a, nil
}

// GetByRef resolves an agreement by its (sourceID, ref) natural key.
func (r *Registry) GetByRef(ctx context.Context, sourceID, ref string) (*domain.Agreement, error) {
	a, err := r.agreements.GetByNaturalKey(ctx, sourceID, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "agreement not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load agreement")
	}
	return a, nil
}

// ListByAgent lists an agent's agreements, optionally filtered by status.
func (r *Registry) ListByAgent(ctx context.Context, agentID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	return r.agreements.ListByAgent(ctx, agentID, status)
}

// ListBySource lists a source's agreements, optionally filtered by status.
func (r *Registry) ListBySource(ctx context.Context, sourceID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	return r.agreements.ListBySource(ctx, sourceID, status)
}

// ResolveActive is the dispatcher's only query: the ACTIVE agreements of an
// agent restricted to refs (all of them when refs is empty), with logical
// expiry applied. Duplicate refs in the input are collapsed.
func (r *Registry) ResolveActive(ctx context.Context, agentID string, refs []string) ([]domain.ResolvedAgreement, error) {
	seen := make(map[string]struct{}, len(refs))
	deduped := refs[:0:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		deduped = append(deduped, ref)
	}
	return r.agreements.ResolveActive(ctx, agentID, deduped, r.now())
}

// IsActiveNow reports whether the agreement identified by (sourceID, ref)
// is logically ACTIVE at this instant; the booking engine revalidates with
// this before every command.
func (r *Registry) IsActiveNow(ctx context.Context, sourceID, ref string) (*domain.Agreement, error) {
	a, err := r.GetByRef(ctx, sourceID, ref)
	if err != nil {
		return nil, err
	}
	if !a.IsActiveNow(r.now()) {
		return nil, apperror.New(apperror.CodeAgreementInactive, fmt.Sprintf("agreement %q is not ACTIVE", ref))
	}
	return a, nil
}

// emit records the audit event and fires the counterparty notification.
func (r *Registry) emit(ctx context.Context, a *domain.Agreement, method string, from domain.AgreementStatus, opErr error) {
	entry := audit.NewEntry().
		Service("brokering-svc").
		Method("AgreementRegistry." + method).
		Action(audit.ActionTransition).
		Direction(audit.DirectionIn).
		Resource("agreement", a.ID).
		AgreementRef(a.AgreementRef).
		Source(a.SourceID).
		User(a.AgentID, "").
		Meta("from", string(from)).
		Meta("to", string(a.Status))
	if opErr != nil {
		entry = entry.Outcome(audit.OutcomeFailure)
	} else {
		entry = entry.Outcome(audit.OutcomeSuccess)
	}
	if err := audit.Log(ctx, entry.Build()); err != nil {
		logger.Log.Warn("Failed to emit agreement audit event", "agreement_id", a.ID, "error", err)
	}

	go func() {
		if err := r.notifier.NotifyTransition(context.Background(), a, from); err != nil {
			logger.Log.Warn("Failed to notify counterparty", "agreement_id", a.ID, "error", err)
		}
	}()
}
