// Package booking implements the single-source command path: idempotent
// create, plus modify/cancel/check with agreement revalidation before every
// source contact.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"carbroker/pkg/apperror"
	"carbroker/pkg/audit"
	"carbroker/pkg/cache"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/pkg/telemetry"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/idempotency"
	"carbroker/services/brokering-svc/internal/repository"
)

// CreateRequest is one booking create command.
type CreateRequest struct {
	AgentID          string
	AgreementRef     string
	SourceID         string // resolvable from the ref when empty
	SupplierOfferRef string
	AgentBookingRef  string
	IdempotencyKey   string
	RequestID        string
}

// Response is the canonical booking body returned to the agent. Replays of
// the same (agent, key) return this byte-identically.
type Response struct {
	BookingID          string               `json:"booking_id"`
	SupplierBookingRef string               `json:"supplier_booking_ref"`
	Status             domain.BookingStatus `json:"status"`
	AgreementRef       string               `json:"agreement_ref"`
	SourceID           string               `json:"source_id"`
}

// Engine executes booking commands.
type Engine struct {
	agreements *agreement.Registry
	bookings   repository.BookingRepository
	keys       *idempotency.Store
	adapters   *adapter.Registry
	health     *health.Monitor

	perCallTimeout time.Duration
	now            func() time.Time
}

// New creates an engine.
func New(agreements *agreement.Registry, bookings repository.BookingRepository, keys *idempotency.Store, adapters *adapter.Registry, mon *health.Monitor, perCallTimeout time.Duration) *Engine {
	if perCallTimeout <= 0 {
		perCallTimeout = domain.DefaultPerCallTimeout
	}
	return &Engine{
		agreements:     agreements,
		bookings:       bookings,
		keys:           keys,
		adapters:       adapters,
		health:         mon,
		perCallTimeout: perCallTimeout,
		now:            time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Create books against one source. The idempotency key is mandatory; a
// replayed key returns the original canonical body without contacting the
// source.
func (e *Engine) Create(ctx context.Context, req CreateRequest) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingEngine.Create")
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, apperror.New(apperror.CodeMissingIdempotency, "Idempotency-Key is required for booking create")
	}

	// Prior committed result wins before anything else happens.
	if prior, err := e.keys.Lookup(ctx, req.AgentID, idempotency.ScopeBookingCreate, req.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return e.replay(ctx, prior, req)
	}

	a, sourceID, err := e.revalidate(ctx, req.AgentID, req.SourceID, req.AgreementRef)
	if err != nil {
		return nil, err
	}

	src, err := e.adapters.For(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.perCallTimeout)
	defer cancel()

	start := e.now()
	result, err := src.BookingCreate(callCtx, adapter.BookingCreateRequest{
		AgreementRef:        req.AgreementRef,
		SupplierOfferRef:    req.SupplierOfferRef,
		AgentBookingRef:     req.AgentBookingRef,
		IdempotencyKey:      req.IdempotencyKey,
		MiddlewareRequestID: req.RequestID,
		AgentID:             req.AgentID,
	})
	elapsed := e.now().Sub(start)
	e.health.Record(ctx, health.Metric{SourceID: sourceID, LatencyMs: elapsed.Milliseconds(), Success: err == nil})
	metrics.Get().RecordSourceCall(sourceID, "booking_create", callStatus(err), elapsed)

	if err != nil {
		metrics.Get().RecordBooking("create", "error")
		e.emit(ctx, req, sourceID, "", err)
		return nil, commandError(err)
	}

	requestBody, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		requestBody = nil
	}

	b := &domain.Booking{
		ID:             uuid.New().String(),
		AgentID:        req.AgentID,
		AgreementID:    a.ID,
		SourceID:       sourceID,
		SourceRef:      result.SupplierBookingRef,
		Status:         result.Status,
		IdempotencyKey: req.IdempotencyKey,
		Request:        requestBody,
	}

	body, err := canonicalBody(b, req.AgreementRef)
	if err != nil {
		return nil, err
	}

	key := e.keys.NewKey(req.AgentID, req.IdempotencyKey, cache.RequestHash(req.AgentID, req.AgreementRef, req.SupplierOfferRef, req.AgentBookingRef))
	if err := e.bookings.CreateWithKey(ctx, b, key, body); err != nil {
		if errors.Is(err, repository.ErrKeyConflict) {
			// A concurrent retry committed first: fall through to its result.
			if prior, lookupErr := e.keys.Lookup(ctx, req.AgentID, idempotency.ScopeBookingCreate, req.IdempotencyKey); lookupErr == nil && prior != nil {
				return e.replay(ctx, prior, req)
			}
			return nil, apperror.New(apperror.CodeDuplicate, "concurrent booking create with same idempotency key")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to persist booking")
	}

	metrics.Get().RecordBooking("create", string(b.Status))
	telemetry.SetAttributes(ctx, telemetry.BookingAttributes(b.ID, sourceID, false)...)
	e.emit(ctx, req, sourceID, b.ID, nil)
	return body, nil
}

// replay returns the stored canonical body of a prior create.
func (e *Engine) replay(ctx context.Context, prior *domain.IdempotencyKey, req CreateRequest) ([]byte, error) {
	body, err := e.bookings.Snapshot(ctx, prior.BookingID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load prior booking snapshot")
	}
	metrics.Get().IdempotencyHitsTotal.Inc()
	telemetry.SetAttributes(ctx, telemetry.BookingAttributes(prior.BookingID, req.SourceID, true)...)
	return body, nil
}

// Modify passes free-form fields to the source unchanged.
func (e *Engine) Modify(ctx context.Context, agentID, supplierBookingRef, agreementRef string, fields map[string]string) ([]byte, error) {
	return e.command(ctx, "modify", agentID, supplierBookingRef, agreementRef, func(ctx context.Context, src adapter.SourceAdapter) (*adapter.BookingResult, error) {
		return src.BookingModify(ctx, adapter.BookingModifyRequest{
			SupplierBookingRef: supplierBookingRef,
			AgreementRef:       agreementRef,
			Fields:             fields,
		})
	})
}

// Cancel cancels a booking with its source.
func (e *Engine) Cancel(ctx context.Context, agentID, supplierBookingRef, agreementRef string) ([]byte, error) {
	return e.command(ctx, "cancel", agentID, supplierBookingRef, agreementRef, func(ctx context.Context, src adapter.SourceAdapter) (*adapter.BookingResult, error) {
		return src.BookingCancel(ctx, supplierBookingRef, agreementRef)
	})
}

// Check refreshes a booking's status from its source.
func (e *Engine) Check(ctx context.Context, agentID, supplierBookingRef, agreementRef string) ([]byte, error) {
	return e.command(ctx, "check", agentID, supplierBookingRef, agreementRef, func(ctx context.Context, src adapter.SourceAdapter) (*adapter.BookingResult, error) {
		return src.BookingCheck(ctx, supplierBookingRef, agreementRef)
	})
}

// command is the shared modify/cancel/check path: look up the booking,
// revalidate its agreement, call the source, persist the new status.
func (e *Engine) command(ctx context.Context, op, agentID, supplierBookingRef, agreementRef string, call func(context.Context, adapter.SourceAdapter) (*adapter.BookingResult, error)) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingEngine."+op)
	defer span.End()

	b, err := e.bookings.GetBySourceRef(ctx, supplierBookingRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "booking not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load booking")
	}
	if agentID != "" && b.AgentID != agentID {
		return nil, apperror.New(apperror.CodeNotFound, "booking not found")
	}

	if _, _, err := e.revalidate(ctx, b.AgentID, b.SourceID, agreementRef); err != nil {
		return nil, err
	}

	src, err := e.adapters.For(ctx, b.SourceID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.perCallTimeout)
	defer cancel()

	start := e.now()
	result, err := call(callCtx, src)
	elapsed := e.now().Sub(start)
	e.health.Record(ctx, health.Metric{SourceID: b.SourceID, LatencyMs: elapsed.Milliseconds(), Success: err == nil})
	metrics.Get().RecordSourceCall(b.SourceID, "booking_"+op, callStatus(err), elapsed)

	if err != nil {
		metrics.Get().RecordBooking(op, "error")
		return nil, commandError(err)
	}

	b.Status = result.Status
	body, err := canonicalBody(b, agreementRef)
	if err != nil {
		return nil, err
	}
	if err := e.bookings.UpdateFromSource(ctx, b.ID, result.Status, body); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to persist booking update")
	}

	metrics.Get().RecordBooking(op, string(result.Status))
	return body, nil
}

// revalidate confirms the agreement is logically ACTIVE at this instant.
// The ref resolves through the stored sourceID when available, otherwise by
// scanning the agent's agreements.
func (e *Engine) revalidate(ctx context.Context, agentID, sourceID, agreementRef string) (*domain.Agreement, string, error) {
	if sourceID != "" {
		a, err := e.agreements.IsActiveNow(ctx, sourceID, agreementRef)
		if err != nil {
			return nil, "", err
		}
		return a, sourceID, nil
	}

	resolved, err := e.agreements.ResolveActive(ctx, agentID, []string{agreementRef})
	if err != nil {
		return nil, "", apperror.Wrap(err, apperror.CodeInternal, "failed to resolve agreement")
	}
	if len(resolved) == 0 {
		return nil, "", apperror.New(apperror.CodeAgreementInactive, "no ACTIVE agreement for ref "+agreementRef)
	}
	a, err := e.agreements.Get(ctx, resolved[0].ID)
	if err != nil {
		return nil, "", err
	}
	return a, resolved[0].SourceID, nil
}

// canonicalBody serializes the stable response shape persisted as the
// booking snapshot and replayed on idempotent retries.
func canonicalBody(b *domain.Booking, agreementRef string) ([]byte, error) {
	body, err := json.Marshal(Response{
		BookingID:          b.ID,
		SupplierBookingRef: b.SourceRef,
		Status:             b.Status,
		AgreementRef:       agreementRef,
		SourceID:           b.SourceID,
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to encode booking response")
	}
	return body, nil
}

// commandError maps adapter failures onto the booking error contract:
// transport timeouts surface as UPSTREAM_TIMEOUT.
func commandError(err error) error {
	if apperror.Is(err, apperror.CodeTimeout) {
		return apperror.Wrap(err, apperror.CodeUpstreamTimeout, "source failed to respond before deadline")
	}
	return err
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperror.Is(err, apperror.CodeTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (e *Engine) emit(ctx context.Context, req CreateRequest, sourceID, bookingID string, opErr error) {
	entry := audit.NewEntry().
		Service("brokering-svc").
		Method("BookingEngine.Create").
		Action(audit.ActionBook).
		Direction(audit.DirectionOut).
		User(req.AgentID, "").
		Source(sourceID).
		AgreementRef(req.AgreementRef).
		Resource("booking", bookingID).
		RequestID(req.RequestID)
	if opErr != nil {
		entry = entry.Outcome(audit.OutcomeFailure).Error(string(apperror.Code(opErr)), opErr.Error())
	} else {
		entry = entry.Outcome(audit.OutcomeSuccess)
	}
	if err := audit.Log(ctx, entry.Build()); err != nil {
		logger.Log.Warn("Failed to emit booking audit event", "booking_id", bookingID, "error", err)
	}
}
