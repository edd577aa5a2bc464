package cache

import (
	"context"
	"encoding/json"
	"time"
)

// CoverageCache caches the effective coverage set per agreement so the
// Dispatcher's per-request isAllowed checks do not recompute the
// (base ∪ allow) \ deny union on every fan-out. Entries are invalidated on
// every override upsert/remove and on syncSourceCoverage.
type CoverageCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedCoverage is the stored effective set for one agreement.
type CachedCoverage struct {
	AgreementID string    `json:"agreement_id"`
	SourceID    string    `json:"source_id"`
	Unlocodes   []string  `json:"unlocodes"`
	ComputedAt  time.Time `json:"computed_at"`
}

// NewCoverageCache wraps a Cache backend for coverage lookups.
func NewCoverageCache(cache Cache, defaultTTL time.Duration) *CoverageCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &CoverageCache{cache: cache, defaultTTL: defaultTTL}
}

// Get returns the cached effective set for an agreement, if present.
func (cc *CoverageCache) Get(ctx context.Context, agreementID string) (*CachedCoverage, bool, error) {
	data, err := cc.cache.Get(ctx, BuildCoverageKey(agreementID))
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry CachedCoverage
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupted entry: drop it and report a miss.
		_ = cc.cache.Delete(ctx, BuildCoverageKey(agreementID)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores the effective set for an agreement.
func (cc *CoverageCache) Set(ctx context.Context, agreementID, sourceID string, unlocodes []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cc.defaultTTL
	}
	entry := CachedCoverage{
		AgreementID: agreementID,
		SourceID:    sourceID,
		Unlocodes:   unlocodes,
		ComputedAt:  time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return cc.cache.Set(ctx, BuildCoverageKey(agreementID), data, ttl)
}

// Contains reports whether unlocode is in the cached effective set. The
// second return is false on a cache miss.
func (cc *CoverageCache) Contains(ctx context.Context, agreementID, unlocode string) (allowed, found bool, err error) {
	entry, found, err := cc.Get(ctx, agreementID)
	if err != nil || !found {
		return false, found, err
	}
	for _, u := range entry.Unlocodes {
		if u == unlocode {
			return true, true, nil
		}
	}
	return false, true, nil
}

// Invalidate drops one agreement's cached set.
func (cc *CoverageCache) Invalidate(ctx context.Context, agreementID string) error {
	return cc.cache.Delete(ctx, BuildCoverageKey(agreementID))
}

// InvalidateAll drops every cached coverage set. Called after
// syncSourceCoverage since the base set feeds every agreement of a source.
func (cc *CoverageCache) InvalidateAll(ctx context.Context) (int64, error) {
	return cc.cache.DeleteByPattern(ctx, "coverage:*")
}
