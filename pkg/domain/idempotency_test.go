package domain

import (
	"testing"
	"time"
)

func TestIdempotencyKeyMatches(t *testing.T) {
	k := &IdempotencyKey{Key: "idem-1", RequestHash: "abc123"}

	if !k.Matches("abc123") {
		t.Errorf("Matches(same hash) = false, want true")
	}
	if k.Matches("different") {
		t.Errorf("Matches(different hash) = true, want false")
	}

	var nilKey *IdempotencyKey
	if nilKey.Matches("abc123") {
		t.Errorf("Matches() on nil *IdempotencyKey should be false")
	}
}

func TestIdempotencyKeyExpired(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	k := &IdempotencyKey{ExpiresAt: now.Add(-time.Minute)}

	if !k.Expired(now) {
		t.Errorf("Expired() = false, want true")
	}

	k.ExpiresAt = now.Add(time.Minute)
	if k.Expired(now) {
		t.Errorf("Expired() = true, want false")
	}
}
