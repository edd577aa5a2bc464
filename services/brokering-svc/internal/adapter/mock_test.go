package adapter

import (
	"context"
	"testing"
	"time"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
)

func testRequest() AvailabilityRequest {
	return AvailabilityRequest{
		Criteria: domain.AvailabilityCriteria{
			PickupUnlocode:  "PKKHI",
			DropoffUnlocode: "PKLHE",
			PickupAt:        time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			DropoffAt:       time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC),
		},
		AgreementRef: "AGR-001",
		RequestID:    "req-1",
	}
}

func TestMockAvailability(t *testing.T) {
	m := NewMockAdapter("src-1", []string{"PKKHI", "PKLHE"})

	offers, err := m.Availability(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(offers) != 2 {
		t.Errorf("offers = %d, want 2", len(offers))
	}

	// Uncovered route is an empty success, not an error.
	req := testRequest()
	req.Criteria.PickupUnlocode = "GBMAN"
	offers, err = m.Availability(context.Background(), req)
	if err != nil {
		t.Fatalf("uncovered route: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("uncovered route offers = %d, want 0", len(offers))
	}
}

func TestMockLatencyHonorsContext(t *testing.T) {
	m := NewMockAdapter("src-1", []string{"PKKHI", "PKLHE"})
	m.SetLatency(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Availability(ctx, testRequest())
	if !apperror.Is(err, apperror.CodeTimeout) {
		t.Errorf("want TIMEOUT, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation must abort the wait, took %v", elapsed)
	}
}

func TestMockFailEvery(t *testing.T) {
	m := NewMockAdapter("src-1", []string{"PKKHI", "PKLHE"})
	m.SetFailEvery(2)

	var failures int
	for i := 0; i < 4; i++ {
		if _, err := m.Availability(context.Background(), testRequest()); err != nil {
			if !apperror.Is(err, apperror.CodeSourceError) {
				t.Errorf("want SOURCE_ERROR, got %v", err)
			}
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("failures = %d, want every second call", failures)
	}
}

func TestMockBookingLifecycle(t *testing.T) {
	m := NewMockAdapter("src-1", nil)
	ctx := context.Background()

	created, err := m.BookingCreate(ctx, BookingCreateRequest{
		AgreementRef:   "AGR-001",
		IdempotencyKey: "K1",
		AgentID:        "agent-1",
	})
	if err != nil {
		t.Fatalf("BookingCreate: %v", err)
	}
	if created.Status != domain.BookingStatusRequested || created.SupplierBookingRef == "" {
		t.Fatalf("created = %+v", created)
	}

	// The mock replays on the same key like a well-behaved source.
	replay, err := m.BookingCreate(ctx, BookingCreateRequest{AgreementRef: "AGR-001", IdempotencyKey: "K1"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.SupplierBookingRef != created.SupplierBookingRef {
		t.Error("replay should return the original booking ref")
	}

	if _, err := m.BookingModify(ctx, BookingModifyRequest{SupplierBookingRef: created.SupplierBookingRef}); err != nil {
		t.Fatalf("BookingModify: %v", err)
	}
	checked, err := m.BookingCheck(ctx, created.SupplierBookingRef, "AGR-001")
	if err != nil {
		t.Fatalf("BookingCheck: %v", err)
	}
	if checked.Status != domain.BookingStatusConfirmed {
		t.Errorf("status after modify = %s, want CONFIRMED", checked.Status)
	}

	cancelled, err := m.BookingCancel(ctx, created.SupplierBookingRef, "AGR-001")
	if err != nil {
		t.Fatalf("BookingCancel: %v", err)
	}
	if cancelled.Status != domain.BookingStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}

	if _, err := m.BookingCheck(ctx, "SBR-UNKNOWN", "AGR-001"); !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("unknown ref: want NOT_FOUND, got %v", err)
	}
}

func TestMockEcho(t *testing.T) {
	m := NewMockAdapter("src-1", nil)
	out, err := m.Echo(context.Background(), "ping", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if out["message"] != "ping" || out["k"] != "v" || out["source_id"] != "src-1" {
		t.Errorf("echo = %v", out)
	}
}

func TestRegistryMemoizesAndDiscovers(t *testing.T) {
	companies := &staticCompanies{
		"src-mock": {ID: "src-mock", Type: domain.CompanyTypeSource, Status: domain.CompanyStatusActive, AdapterKind: domain.AdapterKindMock},
		"agent-1":  {ID: "agent-1", Type: domain.CompanyTypeAgent, Status: domain.CompanyStatusActive},
	}
	r := NewRegistry(companies)
	defer r.Close()
	ctx := context.Background()

	first, err := r.For(ctx, "src-mock")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	second, err := r.For(ctx, "src-mock")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if first != second {
		t.Error("registry must memoize one client per source")
	}

	if _, err := r.For(ctx, "agent-1"); err == nil {
		t.Error("non-source company must be rejected")
	}
	if _, err := r.For(ctx, "missing"); err == nil {
		t.Error("unknown company must be rejected")
	}
}

type staticCompanies map[string]*domain.Company

func (s staticCompanies) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	c, ok := s[id]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "no such company")
	}
	return c, nil
}
