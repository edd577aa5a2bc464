package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"carbroker/pkg/domain"
)

// CriteriaHash computes a deterministic hash of a search request, used as
// part of cache keys and as the idempotency request hash. Two requests that
// differ only in map/field ordering produce the same hash.
func CriteriaHash(agentID string, c domain.AvailabilityCriteria) string {
	hash := sha256.Sum256(criteriaToCanonical(agentID, c))
	return hex.EncodeToString(hash[:16])
}

// criteriaToCanonical builds a deterministic byte representation of a request.
func criteriaToCanonical(agentID string, c domain.AvailabilityCriteria) []byte {
	var b strings.Builder
	b.WriteString("agent:")
	b.WriteString(agentID)
	b.WriteString(";pu:")
	b.WriteString(c.PickupUnlocode)
	b.WriteString(";do:")
	b.WriteString(c.EffectiveDropoff())
	b.WriteString(";pt:")
	b.WriteString(c.PickupAt.UTC().Format(time.RFC3339))
	b.WriteString(";dt:")
	b.WriteString(c.DropoffAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ";age:%d", c.DriverAge)
	b.WriteString(";vc:")
	b.WriteString(c.VehicleClass)
	return []byte(b.String())
}

// MapHash computes a deterministic hash of a free-form string map, used for
// the idempotency request hash of booking modify payloads.
func MapHash(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(m[k])
		b.WriteString(";")
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:16])
}

// RequestHash hashes an ordered list of request parts into one token.
func RequestHash(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:16])
}

// BuildCoverageKey builds the cache key for an agreement's effective
// coverage set.
func BuildCoverageKey(agreementID string) string {
	return fmt.Sprintf("coverage:%s", agreementID)
}

// BuildHealthKey builds the cache key for a source's health snapshot.
func BuildHealthKey(sourceID string) string {
	return fmt.Sprintf("health:%s", sourceID)
}

// QuickHash hashes arbitrary data to a full-length hex digest.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash hashes arbitrary data to a 16-character hex digest.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
