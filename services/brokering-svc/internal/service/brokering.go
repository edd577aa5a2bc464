// Package service exposes the brokering core over gRPC: availability
// fan-out, booking commands, agreement lifecycle, coverage management, and
// echo probes, all mapped onto the engines in the sibling packages.
package service

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/pkg/telemetry"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/booking"
	"carbroker/services/brokering-svc/internal/coverage"
	"carbroker/services/brokering-svc/internal/dispatcher"
	"carbroker/services/brokering-svc/internal/echo"
	"carbroker/services/brokering-svc/internal/jobstore"
	"carbroker/services/brokering-svc/internal/validate"
)

// BrokeringService implements the BrokeringService gRPC surface.
type BrokeringService struct {
	brokeringv1.UnimplementedBrokeringServiceServer

	agreements *agreement.Registry
	coverage   *coverage.Resolver
	dispatcher *dispatcher.Dispatcher
	store      *jobstore.Store
	bookings   *booking.Engine
	echo       *echo.Broker
	version    string
}

// NewBrokeringService wires the service.
func NewBrokeringService(
	agreements *agreement.Registry,
	cov *coverage.Resolver,
	disp *dispatcher.Dispatcher,
	store *jobstore.Store,
	bookings *booking.Engine,
	echoBroker *echo.Broker,
	version string,
) *BrokeringService {
	return &BrokeringService{
		agreements: agreements,
		coverage:   cov,
		dispatcher: disp,
		store:      store,
		bookings:   bookings,
		echo:       echoBroker,
		version:    version,
	}
}

// ============ AVAILABILITY ============

// SubmitAvailability starts one fan-out and returns the pollable job id.
func (s *BrokeringService) SubmitAvailability(ctx context.Context, req *brokeringv1.SubmitAvailabilityRequest) (*brokeringv1.SubmitAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.SubmitAvailability")
	defer span.End()

	if req.AgentId == "" {
		return nil, apperror.ToGRPC(apperror.NewWithField(apperror.CodeInvalidParam, "agent_id is required", "agent_id"))
	}

	criteria, err := s.toCriteria(req)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}

	sub, err := s.dispatcher.Submit(ctx, req.AgentId, criteria, req.AgreementRefs)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}

	return &brokeringv1.SubmitAvailabilityResponse{
		RequestId:         sub.JobID,
		ExpectedSources:   int32(sub.ExpectedSources),
		RecommendedPollMs: int32(sub.RecommendedPollMs),
	}, nil
}

// toCriteria accepts either the typed criteria message or the raw
// field-variant map and normalizes both into the canonical struct.
func (s *BrokeringService) toCriteria(req *brokeringv1.SubmitAvailabilityRequest) (domain.AvailabilityCriteria, error) {
	if req.Criteria == nil {
		return validate.NormalizeCriteria(req.RawCriteria)
	}

	c := domain.AvailabilityCriteria{
		PickupUnlocode:  req.Criteria.PickupUnlocode,
		DropoffUnlocode: req.Criteria.DropoffUnlocode,
		DriverAge:       int(req.Criteria.DriverAge),
		VehicleClass:    req.Criteria.VehicleClass,
	}
	if req.Criteria.PickupAt != "" {
		t, err := validate.ParseTime(req.Criteria.PickupAt)
		if err != nil {
			return c, apperror.NewWithField(apperror.CodeInvalidParam, "unparseable pickup time", "pickup_at")
		}
		c.PickupAt = t
	}
	if req.Criteria.DropoffAt != "" {
		t, err := validate.ParseTime(req.Criteria.DropoffAt)
		if err != nil {
			return c, apperror.NewWithField(apperror.CodeInvalidParam, "unparseable dropoff time", "dropoff_at")
		}
		c.DropoffAt = t
	}
	return c, c.Validate()
}

// PollAvailability long-polls the fan-in buffer from sinceSeq.
func (s *BrokeringService) PollAvailability(ctx context.Context, req *brokeringv1.PollAvailabilityRequest) (*brokeringv1.PollAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.PollAvailability")
	defer span.End()

	waitMs := int(req.WaitMs)
	if waitMs <= 0 {
		waitMs = 1000
	}

	result, err := s.store.GetSince(ctx, req.RequestId, req.SinceSeq, waitMs)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}

	items := make([]*commonv1.ResultItem, 0, len(result.NewItems))
	seq := req.SinceSeq
	for _, r := range result.NewItems {
		seq++
		items = append(items, resultToProto(seq, r))
	}

	return &brokeringv1.PollAvailabilityResponse{
		Complete: result.Status == domain.JobStatusComplete,
		LastSeq:  result.LastSeq,
		NewItems: items,
	}, nil
}

func resultToProto(seq int64, r *domain.AvailabilityResult) *commonv1.ResultItem {
	item := &commonv1.ResultItem{
		Seq:          seq,
		SourceId:     r.SourceID,
		TimedOut:     r.Status == domain.ResultStatusTimeout,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorDetail,
		LatencyMs:    r.LatencyMs,
	}

	if r.Status == domain.ResultStatusError {
		// Error items carry {error, message, agreement_ref}; surface the
		// ref so agents can map the failure to a contract.
		var detail struct {
			AgreementRef string `json:"agreement_ref"`
		}
		if err := json.Unmarshal(r.Offers, &detail); err == nil {
			item.AgreementRef = detail.AgreementRef
		}
		return item
	}

	var offers []struct {
		OfferRef     string `json:"offer_ref"`
		VehicleClass string `json:"vehicle_class"`
		PriceAmount  string `json:"price_amount"`
		Currency     string `json:"currency"`
		Payload      string `json:"payload"`
	}
	if err := json.Unmarshal(r.Offers, &offers); err == nil {
		for _, o := range offers {
			item.Offers = append(item.Offers, &commonv1.Offer{
				OfferRef:     o.OfferRef,
				VehicleClass: o.VehicleClass,
				PriceAmount:  o.PriceAmount,
				Currency:     o.Currency,
				Payload:      o.Payload,
			})
		}
	}
	return item
}

// ============ BOOKING ============

// CreateBooking runs the idempotent create path.
func (s *BrokeringService) CreateBooking(ctx context.Context, req *brokeringv1.CreateBookingRequest) (*brokeringv1.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.CreateBooking")
	defer span.End()

	body, err := s.bookings.Create(ctx, booking.CreateRequest{
		AgentID:          req.AgentId,
		AgreementRef:     req.AgreementRef,
		SourceID:         req.SourceId,
		SupplierOfferRef: req.SupplierOfferRef,
		AgentBookingRef:  req.AgentBookingRef,
		IdempotencyKey:   req.IdempotencyKey,
		RequestID:        req.RequestId,
	})
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return bookingResponse(body)
}

// ModifyBooking forwards free-form fields to the source.
func (s *BrokeringService) ModifyBooking(ctx context.Context, req *brokeringv1.ModifyBookingRequest) (*brokeringv1.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.ModifyBooking")
	defer span.End()

	if err := validate.ValidateBookingRef(req.SupplierBookingRef, req.AgreementRef); err != nil {
		return nil, apperror.ToGRPC(err)
	}
	body, err := s.bookings.Modify(ctx, req.AgentId, req.SupplierBookingRef, req.AgreementRef, req.Fields)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return bookingResponse(body)
}

// CancelBooking cancels with the source.
func (s *BrokeringService) CancelBooking(ctx context.Context, req *brokeringv1.BookingRefRequest) (*brokeringv1.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.CancelBooking")
	defer span.End()

	if err := validate.ValidateBookingRef(req.SupplierBookingRef, req.AgreementRef); err != nil {
		return nil, apperror.ToGRPC(err)
	}
	body, err := s.bookings.Cancel(ctx, req.AgentId, req.SupplierBookingRef, req.AgreementRef)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return bookingResponse(body)
}

// CheckBooking refreshes status from the source.
func (s *BrokeringService) CheckBooking(ctx context.Context, req *brokeringv1.BookingRefRequest) (*brokeringv1.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.CheckBooking")
	defer span.End()

	if err := validate.ValidateBookingRef(req.SupplierBookingRef, req.AgreementRef); err != nil {
		return nil, apperror.ToGRPC(err)
	}
	body, err := s.bookings.Check(ctx, req.AgentId, req.SupplierBookingRef, req.AgreementRef)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return bookingResponse(body)
}

// bookingResponse decodes the canonical body into the wire message. The
// canonical JSON stays the stored source of truth; this projection is
// loss-free.
func bookingResponse(body []byte) (*brokeringv1.BookingResponse, error) {
	var r booking.Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, apperror.ToGRPC(apperror.Wrap(err, apperror.CodeInternal, "malformed canonical booking body"))
	}
	return &brokeringv1.BookingResponse{
		BookingId:          r.BookingID,
		SupplierBookingRef: r.SupplierBookingRef,
		Status:             string(r.Status),
		AgreementRef:       r.AgreementRef,
		SourceId:           r.SourceID,
		CanonicalBody:      string(body),
	}, nil
}

// ============ AGREEMENTS ============

// CreateDraftAgreement creates a DRAFT agreement.
func (s *BrokeringService) CreateDraftAgreement(ctx context.Context, req *brokeringv1.CreateDraftAgreementRequest) (*commonv1.Agreement, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.CreateDraftAgreement")
	defer span.End()

	var validFrom, validTo *time.Time
	if req.ValidFrom != nil {
		t := req.ValidFrom.AsTime()
		validFrom = &t
	}
	if req.ValidTo != nil {
		t := req.ValidTo.AsTime()
		validTo = &t
	}

	a, err := s.agreements.CreateDraft(ctx, req.AgentId, req.SourceId, req.AgreementRef, validFrom, validTo)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return agreementToProto(a), nil
}

// OfferAgreement moves DRAFT -> OFFERED.
func (s *BrokeringService) OfferAgreement(ctx context.Context, req *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error) {
	a, err := s.agreements.Offer(ctx, req.Id)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return agreementToProto(a), nil
}

// AcceptAgreement moves OFFERED -> ACCEPTED.
func (s *BrokeringService) AcceptAgreement(ctx context.Context, req *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error) {
	a, err := s.agreements.Accept(ctx, req.Id)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return agreementToProto(a), nil
}

// SetAgreementStatus applies an arbitrary legal transition.
func (s *BrokeringService) SetAgreementStatus(ctx context.Context, req *brokeringv1.SetAgreementStatusRequest) (*commonv1.Agreement, error) {
	a, err := s.agreements.SetStatus(ctx, req.Id, domain.AgreementStatus(req.Status))
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return agreementToProto(a), nil
}

// GetAgreement returns one agreement.
func (s *BrokeringService) GetAgreement(ctx context.Context, req *brokeringv1.AgreementIdRequest) (*commonv1.Agreement, error) {
	a, err := s.agreements.Get(ctx, req.Id)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return agreementToProto(a), nil
}

// ListAgreementsByAgent lists an agent's agreements.
func (s *BrokeringService) ListAgreementsByAgent(ctx context.Context, req *brokeringv1.ListAgreementsRequest) (*brokeringv1.ListAgreementsResponse, error) {
	status, err := statusFilter(req.Status)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	list, err := s.agreements.ListByAgent(ctx, req.CompanyId, status)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return listResponse(list), nil
}

// ListAgreementsBySource lists a source's agreements.
func (s *BrokeringService) ListAgreementsBySource(ctx context.Context, req *brokeringv1.ListAgreementsRequest) (*brokeringv1.ListAgreementsResponse, error) {
	status, err := statusFilter(req.Status)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	list, err := s.agreements.ListBySource(ctx, req.CompanyId, status)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return listResponse(list), nil
}

func statusFilter(raw string) (*domain.AgreementStatus, error) {
	if raw == "" {
		return nil, nil
	}
	status := domain.AgreementStatus(raw)
	switch status {
	case domain.AgreementStatusDraft, domain.AgreementStatusOffered, domain.AgreementStatusAccepted,
		domain.AgreementStatusActive, domain.AgreementStatusSuspended, domain.AgreementStatusExpired:
		return &status, nil
	}
	return nil, apperror.NewWithField(apperror.CodeInvalidParam, "unknown agreement status "+raw, "status")
}

func listResponse(list []*domain.Agreement) *brokeringv1.ListAgreementsResponse {
	out := &brokeringv1.ListAgreementsResponse{}
	for _, a := range list {
		out.Agreements = append(out.Agreements, agreementToProto(a))
	}
	return out
}

func agreementToProto(a *domain.Agreement) *commonv1.Agreement {
	p := &commonv1.Agreement{
		Id:           a.ID,
		AgentId:      a.AgentID,
		SourceId:     a.SourceID,
		AgreementRef: a.AgreementRef,
		Status:       string(a.Status),
		CreatedAt:    timestamppb.New(a.CreatedAt),
		UpdatedAt:    timestamppb.New(a.UpdatedAt),
	}
	if a.ValidFrom != nil {
		p.ValidFrom = timestamppb.New(*a.ValidFrom)
	}
	if a.ValidTo != nil {
		p.ValidTo = timestamppb.New(*a.ValidTo)
	}
	return p
}

// ============ COVERAGE ============

// SyncSourceCoverage refreshes a source's base set from its locations
// endpoint.
func (s *BrokeringService) SyncSourceCoverage(ctx context.Context, req *brokeringv1.SyncSourceCoverageRequest) (*brokeringv1.SyncSourceCoverageResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.SyncSourceCoverage")
	defer span.End()

	result, err := s.coverage.SyncSourceCoverage(ctx, req.SourceId)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return &brokeringv1.SyncSourceCoverageResponse{
		Added:   int32(result.Added),
		Removed: int32(result.Removed),
		Total:   int32(result.Total),
	}, nil
}

// ListCoverageByAgreement returns the agreement's effective set.
func (s *BrokeringService) ListCoverageByAgreement(ctx context.Context, req *brokeringv1.ListCoverageRequest) (*brokeringv1.ListCoverageResponse, error) {
	effective, err := s.coverage.ListByAgreement(ctx, req.AgreementId)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	out := &brokeringv1.ListCoverageResponse{}
	for _, u := range effective {
		out.Items = append(out.Items, &brokeringv1.CoverageItem{Unlocode: u, Allowed: true})
	}
	return out, nil
}

// UpsertAgreementOverride sets an allow/deny row.
func (s *BrokeringService) UpsertAgreementOverride(ctx context.Context, req *brokeringv1.AgreementOverrideRequest) (*brokeringv1.AgreementOverrideResponse, error) {
	if err := s.coverage.UpsertOverride(ctx, req.AgreementId, req.Unlocode, req.Allowed); err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return &brokeringv1.AgreementOverrideResponse{}, nil
}

// RemoveAgreementOverride deletes an override row.
func (s *BrokeringService) RemoveAgreementOverride(ctx context.Context, req *brokeringv1.AgreementOverrideRequest) (*brokeringv1.AgreementOverrideResponse, error) {
	if err := s.coverage.RemoveOverride(ctx, req.AgreementId, req.Unlocode); err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return &brokeringv1.AgreementOverrideResponse{}, nil
}

// ============ ECHO ============

// SubmitEcho scatters an echo probe to every active-agreement source.
func (s *BrokeringService) SubmitEcho(ctx context.Context, req *brokeringv1.SubmitEchoRequest) (*brokeringv1.SubmitEchoResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokeringService.SubmitEcho")
	defer span.End()

	sub, err := s.echo.Submit(ctx, req.AgentId, req.AgreementRef, req.Message, req.Attrs)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return &brokeringv1.SubmitEchoResponse{
		RequestId:         sub.JobID,
		TotalExpected:     int32(sub.TotalExpected),
		ExpiresUnixMs:     sub.ExpiresUnixMs,
		RecommendedPollMs: int32(sub.RecommendedPollMs),
	}, nil
}

// GetEchoResults long-polls echo items.
func (s *BrokeringService) GetEchoResults(ctx context.Context, req *brokeringv1.GetEchoResultsRequest) (*brokeringv1.GetEchoResultsResponse, error) {
	waitMs := int(req.WaitMs)
	if waitMs < 0 {
		waitMs = 0
	}

	results, err := s.echo.GetResults(ctx, req.RequestId, req.SinceSeq, waitMs)
	if err != nil {
		return nil, apperror.ToGRPC(err)
	}
	return echoResultsToProto(req.SinceSeq, results), nil
}

// WatchEchoResults streams echo pages until COMPLETE or the watch bound.
func (s *BrokeringService) WatchEchoResults(req *brokeringv1.GetEchoResultsRequest, stream brokeringv1.BrokeringService_WatchEchoResultsServer) error {
	sinceSeq := req.SinceSeq
	return s.echo.Watch(stream.Context(), req.RequestId, sinceSeq, func(results *echo.Results) error {
		resp := echoResultsToProto(sinceSeq, results)
		sinceSeq = results.LastSeq
		return stream.Send(resp)
	})
}

func echoResultsToProto(sinceSeq int64, results *echo.Results) *brokeringv1.GetEchoResultsResponse {
	resp := &brokeringv1.GetEchoResultsResponse{
		Status:            string(results.Status),
		LastSeq:           results.LastSeq,
		ResponsesReceived: int32(results.ResponsesReceived),
		TotalExpected:     int32(results.TotalExpected),
		TimedOutSources:   results.TimedOutSources,
		AggregateEtag:     results.AggregateEtag,
	}
	seq := sinceSeq
	for _, item := range results.NewItems {
		seq++
		resp.NewItems = append(resp.NewItems, &brokeringv1.EchoItem{
			Seq:       seq,
			SourceId:  item.SourceID,
			Status:    string(item.Status),
			Echoed:    string(item.Echoed),
			LatencyMs: item.LatencyMs,
		})
	}
	return resp
}
