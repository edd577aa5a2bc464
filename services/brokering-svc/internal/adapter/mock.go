package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
)

// MockAdapter is the in-process synthetic source. It serves deterministic
// offers over a configurable coverage set, with optional injected latency
// and failure, and keeps its bookings in memory so the full booking
// lifecycle can run against it.
type MockAdapter struct {
	sourceID  string
	unlocodes []string

	// Injected behavior; all safe for concurrent mutation mid-test.
	latency   atomic.Int64 // nanoseconds added to every call
	failEvery atomic.Int64 // every Nth availability call fails (0 = never)
	calls     atomic.Int64

	mu       sync.Mutex
	bookings map[string]*BookingResult
	byKey    map[string]*BookingResult
}

// NewMockAdapter creates a synthetic source covering the given unlocodes.
func NewMockAdapter(sourceID string, unlocodes []string) *MockAdapter {
	return &MockAdapter{
		sourceID:  sourceID,
		unlocodes: append([]string(nil), unlocodes...),
		bookings:  make(map[string]*BookingResult),
		byKey:     make(map[string]*BookingResult),
	}
}

// SetLatency injects a fixed delay before every response.
func (m *MockAdapter) SetLatency(d time.Duration) {
	m.latency.Store(int64(d))
}

// SetFailEvery makes every nth availability call return a source error.
func (m *MockAdapter) SetFailEvery(n int64) {
	m.failEvery.Store(n)
}

// Calls reports how many availability calls the adapter has served.
func (m *MockAdapter) Calls() int64 {
	return m.calls.Load()
}

// sleep waits out the injected latency, honoring ctx cancellation.
func (m *MockAdapter) sleep(ctx context.Context) error {
	d := time.Duration(m.latency.Load())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperror.Wrap(ctx.Err(), apperror.CodeTimeout, "mock source call cancelled")
	case <-timer.C:
		return nil
	}
}

func (m *MockAdapter) Availability(ctx context.Context, req AvailabilityRequest) ([]Offer, error) {
	n := m.calls.Add(1)
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	if fe := m.failEvery.Load(); fe > 0 && n%fe == 0 {
		return nil, apperror.New(apperror.CodeSourceError, "mock source configured failure")
	}

	// Offers only for covered routes; an uncovered route is an empty
	// success, not an error.
	if !m.covers(req.Criteria.PickupUnlocode) || !m.covers(req.Criteria.EffectiveDropoff()) {
		return []Offer{}, nil
	}

	return []Offer{
		{
			OfferRef:     fmt.Sprintf("%s-eco-%s", m.sourceID, req.Criteria.PickupUnlocode),
			VehicleClass: "economy",
			PriceAmount:  "45.00",
			Currency:     "EUR",
		},
		{
			OfferRef:     fmt.Sprintf("%s-cmp-%s", m.sourceID, req.Criteria.PickupUnlocode),
			VehicleClass: "compact",
			PriceAmount:  "59.00",
			Currency:     "EUR",
		},
	}, nil
}

func (m *MockAdapter) covers(unlocode string) bool {
	for _, u := range m.unlocodes {
		if u == unlocode {
			return true
		}
	}
	return false
}

func (m *MockAdapter) BookingCreate(ctx context.Context, req BookingCreateRequest) (*BookingResult, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The mock honors the agent's idempotency key the way a well-behaved
	// source does: a replay returns the original result.
	if prior, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return prior, nil
	}

	result := &BookingResult{
		SupplierBookingRef: "SBR-" + uuid.New().String()[:8],
		Status:             domain.BookingStatusRequested,
		Payload:            []byte(`{"accepted":true,"agreement_ref":"` + req.AgreementRef + `"}`),
	}
	m.bookings[result.SupplierBookingRef] = result
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = result
	}
	return result, nil
}

func (m *MockAdapter) BookingModify(ctx context.Context, req BookingModifyRequest) (*BookingResult, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[req.SupplierBookingRef]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "mock source: unknown booking ref")
	}
	b.Status = domain.BookingStatusConfirmed
	return b, nil
}

func (m *MockAdapter) BookingCancel(ctx context.Context, supplierBookingRef, _ string) (*BookingResult, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[supplierBookingRef]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "mock source: unknown booking ref")
	}
	b.Status = domain.BookingStatusCancelled
	return b, nil
}

func (m *MockAdapter) BookingCheck(ctx context.Context, supplierBookingRef, _ string) (*BookingResult, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[supplierBookingRef]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "mock source: unknown booking ref")
	}
	return b, nil
}

func (m *MockAdapter) Locations(ctx context.Context) ([]string, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), m.unlocodes...), nil
}

func (m *MockAdapter) Echo(ctx context.Context, message string, attrs map[string]string) (map[string]string, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	out["message"] = message
	out["source_id"] = m.sourceID
	return out, nil
}

func (m *MockAdapter) Close() error { return nil }
