package domain

import "time"

// IdempotencyKey records the canonical outcome of one BookingEngine.Create
// call so a retried request with the same key returns the original result
// without contacting the Source again (spec §3.6, §4.G, §4.J).
type IdempotencyKey struct {
	Key         string
	AgentID     string
	BookingID   string
	RequestHash string // hash of the normalized request body, for conflict detection
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Matches reports whether a replayed request with the same key and
// requestHash is the same logical request (spec §4.G: a key reused with a
// different body is a conflict, not a replay).
func (k *IdempotencyKey) Matches(requestHash string) bool {
	return k != nil && k.RequestHash == requestHash
}

// Expired reports whether the key has outlived its retention window
// (Open Question (b): 24h TTL, swept by history-svc).
func (k *IdempotencyKey) Expired(now time.Time) bool {
	return k != nil && now.After(k.ExpiresAt)
}
