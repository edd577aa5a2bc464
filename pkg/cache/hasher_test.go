package cache

import (
	"testing"
	"time"

	"carbroker/pkg/domain"
)

func testCriteria() domain.AvailabilityCriteria {
	return domain.AvailabilityCriteria{
		PickupUnlocode:  "PKKHI",
		DropoffUnlocode: "PKLHE",
		PickupAt:        time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		DropoffAt:       time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC),
		DriverAge:       30,
		VehicleClass:    "compact",
	}
}

func TestCriteriaHash(t *testing.T) {
	t.Run("same criteria produce same hash", func(t *testing.T) {
		h1 := CriteriaHash("agent-1", testCriteria())
		h2 := CriteriaHash("agent-1", testCriteria())
		if h1 != h2 {
			t.Errorf("same criteria should produce same hash: %v != %v", h1, h2)
		}
	})

	t.Run("different agent produces different hash", func(t *testing.T) {
		h1 := CriteriaHash("agent-1", testCriteria())
		h2 := CriteriaHash("agent-2", testCriteria())
		if h1 == h2 {
			t.Error("different agents should produce different hashes")
		}
	})

	t.Run("different pickup produces different hash", func(t *testing.T) {
		c1 := testCriteria()
		c2 := testCriteria()
		c2.PickupUnlocode = "GBMAN"
		if CriteriaHash("agent-1", c1) == CriteriaHash("agent-1", c2) {
			t.Error("different pickup should produce different hashes")
		}
	})

	t.Run("empty dropoff falls back to pickup", func(t *testing.T) {
		c1 := testCriteria()
		c1.DropoffUnlocode = ""
		c2 := testCriteria()
		c2.DropoffUnlocode = c2.PickupUnlocode
		if CriteriaHash("agent-1", c1) != CriteriaHash("agent-1", c2) {
			t.Error("empty dropoff should hash like pickup dropoff")
		}
	})

	t.Run("timezone does not matter", func(t *testing.T) {
		c1 := testCriteria()
		c2 := testCriteria()
		loc := time.FixedZone("PKT", 5*3600)
		c2.PickupAt = c2.PickupAt.In(loc)
		c2.DropoffAt = c2.DropoffAt.In(loc)
		if CriteriaHash("agent-1", c1) != CriteriaHash("agent-1", c2) {
			t.Error("hash should be timezone independent")
		}
	})
}

func TestMapHash(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		h1 := MapHash(map[string]string{"a": "1", "b": "2", "c": "3"})
		h2 := MapHash(map[string]string{"c": "3", "a": "1", "b": "2"})
		if h1 != h2 {
			t.Errorf("map hash must be order independent: %v != %v", h1, h2)
		}
	})

	t.Run("value change detected", func(t *testing.T) {
		h1 := MapHash(map[string]string{"a": "1"})
		h2 := MapHash(map[string]string{"a": "2"})
		if h1 == h2 {
			t.Error("different values should produce different hashes")
		}
	})

	t.Run("empty map", func(t *testing.T) {
		if MapHash(nil) != MapHash(map[string]string{}) {
			t.Error("nil and empty map should hash equally")
		}
	})
}

func TestRequestHash(t *testing.T) {
	h1 := RequestHash("agent-1", "booking:create", "K1")
	h2 := RequestHash("agent-1", "booking:create", "K1")
	if h1 != h2 {
		t.Errorf("same parts should produce same hash: %v != %v", h1, h2)
	}

	// The separator must keep ("ab","c") distinct from ("a","bc").
	if RequestHash("ab", "c") == RequestHash("a", "bc") {
		t.Error("part boundaries must affect the hash")
	}
}

func TestBuildKeys(t *testing.T) {
	if got := BuildCoverageKey("agr-1"); got != "coverage:agr-1" {
		t.Errorf("BuildCoverageKey = %v", got)
	}
	if got := BuildHealthKey("src-1"); got != "health:src-1" {
		t.Errorf("BuildHealthKey = %v", got)
	}
}

func TestQuickAndShortHash(t *testing.T) {
	if len(QuickHash([]byte("data"))) != 64 {
		t.Error("QuickHash should be a full sha256 hex digest")
	}
	if len(ShortHash([]byte("data"))) != 16 {
		t.Error("ShortHash should be 16 characters")
	}
	if ShortHash([]byte("a")) == ShortHash([]byte("b")) {
		t.Error("different inputs should produce different short hashes")
	}
}
