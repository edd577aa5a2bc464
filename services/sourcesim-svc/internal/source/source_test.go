package source

import (
	"context"
	"testing"
	"time"
)

func TestAvailability(t *testing.T) {
	s := New("sim-1", []string{"PKKHI", "PKLHE"})
	ctx := context.Background()

	offers, err := s.Availability(ctx, "PKKHI", "PKLHE", "")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(offers) != 3 {
		t.Errorf("offers = %d, want one per vehicle class", len(offers))
	}

	t.Run("class filter", func(t *testing.T) {
		offers, err := s.Availability(ctx, "PKKHI", "PKLHE", "suv")
		if err != nil {
			t.Fatalf("Availability: %v", err)
		}
		if len(offers) != 1 || offers[0].VehicleClass != "suv" {
			t.Errorf("offers = %+v", offers)
		}
	})

	t.Run("uncovered route empty success", func(t *testing.T) {
		offers, err := s.Availability(ctx, "GBMAN", "PKLHE", "")
		if err != nil {
			t.Fatalf("Availability: %v", err)
		}
		if len(offers) != 0 {
			t.Errorf("offers = %d, want 0", len(offers))
		}
	})
}

func TestLatencyInjectionHonorsContext(t *testing.T) {
	s := New("sim-1", []string{"PKKHI"})
	s.SetBehavior(Behavior{BaseLatency: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Availability(ctx, "PKKHI", "PKKHI", "")
	if err == nil {
		t.Error("expected a deadline error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not abort the injected delay")
	}
}

func TestFailureInjection(t *testing.T) {
	s := New("sim-1", []string{"PKKHI"})
	s.SetBehavior(Behavior{FailureRate: 0.999999})

	failures := 0
	for i := 0; i < 10; i++ {
		if _, err := s.Availability(context.Background(), "PKKHI", "PKKHI", ""); err != nil {
			failures++
		}
	}
	if failures == 0 {
		t.Error("failure injection never fired at ~100% rate")
	}
}

func TestBookingLifecycle(t *testing.T) {
	s := New("sim-1", nil)
	ctx := context.Background()

	b, err := s.BookingCreate(ctx, "AGR-001", "agent-1", "K1")
	if err != nil {
		t.Fatalf("BookingCreate: %v", err)
	}
	if b.Status != "REQUESTED" || b.SupplierBookingRef == "" {
		t.Fatalf("created = %+v", b)
	}

	// Same idempotency key replays the original booking
	replay, err := s.BookingCreate(ctx, "AGR-001", "agent-1", "K1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.SupplierBookingRef != b.SupplierBookingRef {
		t.Error("idempotency key not honored")
	}

	// Different key creates a distinct booking
	other, _ := s.BookingCreate(ctx, "AGR-001", "agent-1", "K2")
	if other.SupplierBookingRef == b.SupplierBookingRef {
		t.Error("distinct keys must create distinct bookings")
	}

	modified, err := s.BookingModify(ctx, b.SupplierBookingRef, map[string]string{"driver_name": "A. Driver"})
	if err != nil {
		t.Fatalf("BookingModify: %v", err)
	}
	if modified.Status != "CONFIRMED" || modified.Fields["driver_name"] != "A. Driver" {
		t.Errorf("modified = %+v", modified)
	}

	checked, err := s.BookingCheck(ctx, b.SupplierBookingRef)
	if err != nil || checked.Status != "CONFIRMED" {
		t.Errorf("check = (%+v, %v)", checked, err)
	}

	cancelled, err := s.BookingCancel(ctx, b.SupplierBookingRef)
	if err != nil || cancelled.Status != "CANCELLED" {
		t.Errorf("cancel = (%+v, %v)", cancelled, err)
	}

	if _, err := s.BookingCheck(ctx, "unknown"); err == nil {
		t.Error("unknown ref must fail")
	}
}

func TestLocationsAndEcho(t *testing.T) {
	s := New("sim-1", []string{"PKKHI", "PKLHE"})
	ctx := context.Background()

	locations, err := s.Locations(ctx)
	if err != nil || len(locations) != 2 {
		t.Errorf("Locations = (%v, %v)", locations, err)
	}

	message, attrs, err := s.Echo(ctx, "ping", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if message != "ping" || attrs["k"] != "v" || attrs["source_id"] != "sim-1" {
		t.Errorf("echo = (%s, %v)", message, attrs)
	}
}
