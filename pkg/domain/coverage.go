package domain

import "sort"

// OverrideDecision is the tri-state an agreement can set for one unlocode,
// overriding the source's base coverage (spec §3.3).
type OverrideDecision string

const (
	OverrideAllow OverrideDecision = "allow"
	OverrideDeny  OverrideDecision = "deny"
)

// CoverageIndex is a thread-safe, in-memory mirror of SourceCoverage and
// AgreementLocationOverride rows, used by CoverageResolver for isAllowed/
// effective lookups without a round-trip per check. Mutated by
// CoverageResolver.syncSourceCoverage and the override CRUD operations;
// the database rows remain the source of truth, this is a read cache.
type CoverageIndex struct {
	base      map[string]map[string]struct{}      // sourceID -> unlocode set
	overrides map[string]map[string]OverrideDecision // agreementID -> unlocode -> decision
}

// NewCoverageIndex returns an empty index.
func NewCoverageIndex() *CoverageIndex {
	return &CoverageIndex{
		base:      make(map[string]map[string]struct{}),
		overrides: make(map[string]map[string]OverrideDecision),
	}
}

// SetBase replaces the entire base coverage set for a source.
func (c *CoverageIndex) SetBase(sourceID string, unlocodes []string) {
	set := make(map[string]struct{}, len(unlocodes))
	for _, u := range unlocodes {
		set[u] = struct{}{}
	}
	c.base[sourceID] = set
}

// Base returns the base coverage set for a source.
func (c *CoverageIndex) Base(sourceID string) map[string]struct{} {
	return c.base[sourceID]
}

// SetOverride upserts an agreement-level allow/deny row for one unlocode.
func (c *CoverageIndex) SetOverride(agreementID, unlocode string, decision OverrideDecision) {
	m, ok := c.overrides[agreementID]
	if !ok {
		m = make(map[string]OverrideDecision)
		c.overrides[agreementID] = m
	}
	m[unlocode] = decision
}

// RemoveOverride deletes an agreement-level override row, reverting to base.
func (c *CoverageIndex) RemoveOverride(agreementID, unlocode string) {
	if m, ok := c.overrides[agreementID]; ok {
		delete(m, unlocode)
	}
}

// IsAllowed implements spec §4.B isAllowed: an override row, when present,
// wins unconditionally; absent a row, base coverage decides.
func (c *CoverageIndex) IsAllowed(sourceID, agreementID, unlocode string) bool {
	if m, ok := c.overrides[agreementID]; ok {
		if decision, ok := m[unlocode]; ok {
			return decision == OverrideAllow
		}
	}
	_, inBase := c.base[sourceID][unlocode]
	return inBase
}

// Effective computes (base ∪ allow) \ deny for one agreement, sorted for
// deterministic output (spec §4.B effective).
func (c *CoverageIndex) Effective(sourceID, agreementID string) []string {
	result := make(map[string]struct{}, len(c.base[sourceID]))
	for u := range c.base[sourceID] {
		result[u] = struct{}{}
	}
	for u, decision := range c.overrides[agreementID] {
		switch decision {
		case OverrideAllow:
			result[u] = struct{}{}
		case OverrideDeny:
			delete(result, u)
		}
	}

	out := make([]string, 0, len(result))
	for u := range result {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ListOverrides returns the allow-decision rows for an agreement, used by
// ListCoverageByAgreement (spec §6.4, which only surfaces allow=true rows).
func (c *CoverageIndex) ListOverrides(agreementID string) map[string]OverrideDecision {
	return c.overrides[agreementID]
}

// CoverageSyncResult is the outcome of CoverageResolver.syncSourceCoverage.
type CoverageSyncResult struct {
	Added   int
	Removed int
	Total   int
}

// DiffBase computes the added/removed/total counts of replacing a source's
// base coverage set with a freshly-fetched one, without mutating the index
// (callers apply SetBase separately once the database write commits).
func (c *CoverageIndex) DiffBase(sourceID string, fresh map[string]struct{}) CoverageSyncResult {
	existing := c.base[sourceID]
	added, removed := 0, 0
	for u := range fresh {
		if _, ok := existing[u]; !ok {
			added++
		}
	}
	for u := range existing {
		if _, ok := fresh[u]; !ok {
			removed++
		}
	}
	return CoverageSyncResult{Added: added, Removed: removed, Total: len(fresh)}
}
