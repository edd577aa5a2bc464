// Package source implements the synthetic car-rental supplier behind the
// out-of-process SourceAdapter endpoint: deterministic inventory over a
// configurable coverage set, with injectable latency and failure so health
// backoff and timeout paths can be exercised end to end.
package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Behavior controls the injected failure modes. All fields are safe to
// change between calls.
type Behavior struct {
	BaseLatency   time.Duration // added to every call
	LatencyJitter time.Duration // uniform extra latency in [0, jitter)
	FailureRate   float64       // fraction of availability calls failing [0,1)
}

// Offer is one synthetic vehicle offer.
type Offer struct {
	OfferRef     string
	VehicleClass string
	PriceAmount  string
	Currency     string
}

// Booking is one accepted reservation.
type Booking struct {
	SupplierBookingRef string
	AgreementRef       string
	AgentID            string
	Status             string
	Fields             map[string]string
	CreatedAt          time.Time
}

// vehicleClasses is the synthetic fleet, priced per class.
var vehicleClasses = []struct {
	class string
	price string
}{
	{"economy", "39.00"},
	{"compact", "49.00"},
	{"suv", "89.00"},
}

// SimSource is the supplier core shared by the gRPC server and tests.
type SimSource struct {
	id        string
	unlocodes []string

	mu       sync.Mutex
	behavior Behavior
	bookings map[string]*Booking
	byKey    map[string]*Booking // idempotency key -> booking
	counter  int
	rng      *rand.Rand
}

// New creates a supplier covering the given unlocodes.
func New(id string, unlocodes []string) *SimSource {
	return &SimSource{
		id:        id,
		unlocodes: append([]string(nil), unlocodes...),
		bookings:  make(map[string]*Booking),
		byKey:     make(map[string]*Booking),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetBehavior replaces the injected behavior.
func (s *SimSource) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

// Behavior returns the current injected behavior.
func (s *SimSource) Behavior() Behavior {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.behavior
}

// delay waits out the configured latency, honoring ctx.
func (s *SimSource) delay(ctx context.Context) error {
	s.mu.Lock()
	d := s.behavior.BaseLatency
	if s.behavior.LatencyJitter > 0 {
		d += time.Duration(s.rng.Int63n(int64(s.behavior.LatencyJitter)))
	}
	s.mu.Unlock()

	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *SimSource) covers(unlocode string) bool {
	for _, u := range s.unlocodes {
		if u == unlocode {
			return true
		}
	}
	return false
}

// Availability returns the synthetic offers for a route, or an error when
// failure injection fires.
func (s *SimSource) Availability(ctx context.Context, pickup, dropoff, requestedClass string) ([]Offer, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	fail := s.behavior.FailureRate > 0 && s.rng.Float64() < s.behavior.FailureRate
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("injected supplier failure")
	}

	if !s.covers(pickup) || !s.covers(dropoff) {
		return []Offer{}, nil
	}

	offers := make([]Offer, 0, len(vehicleClasses))
	for _, vc := range vehicleClasses {
		if requestedClass != "" && requestedClass != vc.class {
			continue
		}
		offers = append(offers, Offer{
			OfferRef:     fmt.Sprintf("%s-%s-%s", s.id, vc.class, pickup),
			VehicleClass: vc.class,
			PriceAmount:  vc.price,
			Currency:     "EUR",
		})
	}
	return offers, nil
}

// BookingCreate accepts a reservation. The agent's idempotency key is
// honored: a replay returns the original booking.
func (s *SimSource) BookingCreate(ctx context.Context, agreementRef, agentID, idempotencyKey string) (*Booking, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if prior, ok := s.byKey[idempotencyKey]; ok {
			return prior, nil
		}
	}

	s.counter++
	b := &Booking{
		SupplierBookingRef: fmt.Sprintf("%s-BK-%06d", s.id, s.counter),
		AgreementRef:       agreementRef,
		AgentID:            agentID,
		Status:             "REQUESTED",
		CreatedAt:          time.Now(),
	}
	s.bookings[b.SupplierBookingRef] = b
	if idempotencyKey != "" {
		s.byKey[idempotencyKey] = b
	}
	return b, nil
}

// BookingModify applies free-form fields and confirms the booking.
func (s *SimSource) BookingModify(ctx context.Context, ref string, fields map[string]string) (*Booking, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[ref]
	if !ok {
		return nil, fmt.Errorf("unknown booking ref %s", ref)
	}
	if b.Fields == nil {
		b.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		b.Fields[k] = v
	}
	b.Status = "CONFIRMED"
	return b, nil
}

// BookingCancel cancels a booking.
func (s *SimSource) BookingCancel(ctx context.Context, ref string) (*Booking, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[ref]
	if !ok {
		return nil, fmt.Errorf("unknown booking ref %s", ref)
	}
	b.Status = "CANCELLED"
	return b, nil
}

// BookingCheck returns a booking's current state.
func (s *SimSource) BookingCheck(ctx context.Context, ref string) (*Booking, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[ref]
	if !ok {
		return nil, fmt.Errorf("unknown booking ref %s", ref)
	}
	return b, nil
}

// Locations returns the covered unlocodes.
func (s *SimSource) Locations(ctx context.Context) ([]string, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), s.unlocodes...), nil
}

// Echo returns the payload with the supplier's identity attached.
func (s *SimSource) Echo(ctx context.Context, message string, attrs map[string]string) (string, map[string]string, error) {
	if err := s.delay(ctx); err != nil {
		return "", nil, err
	}
	out := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out["source_id"] = s.id
	return message, out, nil
}
