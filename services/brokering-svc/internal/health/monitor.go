// Package health implements the source health monitor: a sliding window of
// call outcomes per source, strike counting, and exponential exclusion
// windows read by the dispatcher before every scatter.
package health

import (
	"context"
	"sync"
	"time"

	"carbroker/pkg/cache"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/pkg/metrics"
	"carbroker/services/brokering-svc/internal/repository"
)

// Metric is one call outcome reported by the dispatcher or booking engine.
type Metric struct {
	SourceID  string
	LatencyMs int64
	Success   bool
}

// Monitor holds one sliding window per source. Record is non-blocking for
// callers: persistence and cross-replica cache writes happen inline but are
// advisory; their failure only logs.
type Monitor struct {
	cfg domain.HealthWindowConfig

	mu      sync.Mutex
	windows map[string]*domain.SourceHealthWindow

	repo  repository.HealthRepository // nil-able: memory mode runs without persistence
	cache *cache.HealthCache          // nil-able: single-replica mode runs without it

	now func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRepository persists snapshots after every sample.
func WithRepository(repo repository.HealthRepository) Option {
	return func(m *Monitor) { m.repo = repo }
}

// WithCache shares snapshots across replicas.
func WithCache(hc *cache.HealthCache) Option {
	return func(m *Monitor) { m.cache = hc }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor with the given tuning.
func NewMonitor(cfg domain.HealthWindowConfig, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		windows: make(map[string]*domain.SourceHealthWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) window(sourceID string) *domain.SourceHealthWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[sourceID]
	if !ok {
		w = domain.NewSourceHealthWindow(sourceID, m.cfg)
		m.windows[sourceID] = w
	}
	return w
}

// Record folds one call outcome into the source's window and publishes the
// resulting snapshot. Never returns an error: health bookkeeping must not
// fail the calling request.
func (m *Monitor) Record(ctx context.Context, metric Metric) domain.SourceHealth {
	now := m.now()
	snapshot := m.window(metric.SourceID).RecordSample(metric.LatencyMs, !metric.Success, now)

	metrics.Get().SetSourceExcluded(metric.SourceID, snapshot.Excluded(now))

	if m.repo != nil {
		if err := m.repo.Upsert(ctx, snapshot); err != nil {
			logger.Log.Warn("Failed to persist source health", "source_id", metric.SourceID, "error", err)
		}
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, snapshot, 0); err != nil {
			logger.Log.Warn("Failed to cache source health", "source_id", metric.SourceID, "error", err)
		}
	}
	return snapshot
}

// IsExcluded reports whether the source is inside an exclusion window. The
// local window wins; with no local samples yet, the shared cache (another
// replica's verdict) is consulted. Stale reads during the hand-off are
// acceptable.
func (m *Monitor) IsExcluded(ctx context.Context, sourceID string) bool {
	now := m.now()

	m.mu.Lock()
	w, ok := m.windows[sourceID]
	m.mu.Unlock()
	if ok {
		snapshot := w.Snapshot(now)
		return snapshot.Excluded(now)
	}

	if m.cache != nil {
		if entry, found, err := m.cache.Get(ctx, sourceID); err == nil && found {
			h := entry.ToDomain()
			return h.Excluded(now)
		}
	}
	if m.repo != nil {
		if h, err := m.repo.Get(ctx, sourceID); err == nil {
			return h.Excluded(now)
		}
	}
	return false
}

// Snapshot returns the current view for one source, or nil when the source
// has never been sampled here.
func (m *Monitor) Snapshot(sourceID string) *domain.SourceHealth {
	m.mu.Lock()
	w, ok := m.windows[sourceID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s := w.Snapshot(m.now())
	return &s
}

// SlowRate exposes a source's current slow-sample rate for analytics.
func (m *Monitor) SlowRate(sourceID string) float64 {
	m.mu.Lock()
	w, ok := m.windows[sourceID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return w.SlowRate()
}
