package cache

import (
	"context"
	"encoding/json"
	"time"

	"carbroker/pkg/domain"
)

// HealthCache shares SourceHealth snapshots across brokering replicas so
// every instance sees the same excludedUntil verdict shortly after a strike.
// The snapshot is eventually consistent: a brief window where one replica
// reads a stale verdict is acceptable per the health monitor contract.
type HealthCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedSourceHealth is the stored snapshot for one source.
type CachedSourceHealth struct {
	SourceID           string     `json:"source_id"`
	ConsecutiveStrikes int        `json:"consecutive_strikes"`
	BackoffLevel       int        `json:"backoff_level"`
	ExcludedUntil      *time.Time `json:"excluded_until,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NewHealthCache wraps a Cache backend for health snapshots.
func NewHealthCache(cache Cache, defaultTTL time.Duration) *HealthCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &HealthCache{cache: cache, defaultTTL: defaultTTL}
}

// Get returns the cached snapshot for a source, if present.
func (hc *HealthCache) Get(ctx context.Context, sourceID string) (*CachedSourceHealth, bool, error) {
	data, err := hc.cache.Get(ctx, BuildHealthKey(sourceID))
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry CachedSourceHealth
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = hc.cache.Delete(ctx, BuildHealthKey(sourceID)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores a snapshot produced by the health monitor.
func (hc *HealthCache) Set(ctx context.Context, h domain.SourceHealth, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = hc.defaultTTL
	}
	entry := CachedSourceHealth{
		SourceID:           h.SourceID,
		ConsecutiveStrikes: h.ConsecutiveStrikes,
		BackoffLevel:       h.BackoffLevel,
		ExcludedUntil:      h.ExcludedUntil,
		UpdatedAt:          h.UpdatedAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return hc.cache.Set(ctx, BuildHealthKey(h.SourceID), data, ttl)
}

// ToDomain converts the cached snapshot back to the domain type.
func (e *CachedSourceHealth) ToDomain() domain.SourceHealth {
	return domain.SourceHealth{
		SourceID:           e.SourceID,
		ConsecutiveStrikes: e.ConsecutiveStrikes,
		BackoffLevel:       e.BackoffLevel,
		ExcludedUntil:      e.ExcludedUntil,
		UpdatedAt:          e.UpdatedAt,
	}
}

// Invalidate drops one source's snapshot.
func (hc *HealthCache) Invalidate(ctx context.Context, sourceID string) error {
	return hc.cache.Delete(ctx, BuildHealthKey(sourceID))
}

// InvalidateAll drops every health snapshot.
func (hc *HealthCache) InvalidateAll(ctx context.Context) (int64, error) {
	return hc.cache.DeleteByPattern(ctx, "health:*")
}
