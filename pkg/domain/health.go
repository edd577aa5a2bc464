package domain

import (
	"sync"
	"time"
)

// SourceHealth is the persisted view of a source's health state (spec
// §3.7), computed by SourceHealthWindow and flushed to storage/cache after
// each sample.
type SourceHealth struct {
	SourceID           string
	ConsecutiveStrikes int
	BackoffLevel       int
	ExcludedUntil      *time.Time
	UpdatedAt          time.Time
}

// Excluded reports whether the source is currently backed off from
// dispatch (spec §4.C, §4.F eligibility check).
func (h *SourceHealth) Excluded(now time.Time) bool {
	return h != nil && h.ExcludedUntil != nil && now.Before(*h.ExcludedUntil)
}

// SourceHealthWindow is a mutex-guarded sliding window of the last W call
// outcomes for one source, implementing the strike/backoff algorithm of
// spec §4.C. One instance lives per source inside SourceHealthMonitor;
// RecordSample is called after every SourceAdapter.Search/Book/Echo call.
type SourceHealthWindow struct {
	mu sync.Mutex

	sourceID string
	size     int
	slow     []bool // ring buffer: true if the sample at this slot was "slow"
	pos      int
	filled   int // number of valid slots, caps at size

	slowThresholdMs int64
	minSamples      int
	strikeRate      float64
	decayRate       float64
	strikeThreshold int
	backoffBase     time.Duration
	maxBackoffLevel int

	consecutiveStrikes int
	backoffLevel       int
	excludedUntil      *time.Time
}

// HealthWindowConfig carries the tuning constants resolved from Open
// Question (a) (spec §9), overridable via config.HealthConfig.
type HealthWindowConfig struct {
	Size            int
	SlowThresholdMs int64
	MinSamples      int
	StrikeRate      float64
	DecayRate       float64
	StrikeThreshold int
	BackoffBase     time.Duration
	MaxBackoffLevel int
}

// DefaultHealthWindowConfig returns the Open Question (a) resolution.
func DefaultHealthWindowConfig() HealthWindowConfig {
	return HealthWindowConfig{
		Size:            DefaultHealthWindowSize,
		SlowThresholdMs: DefaultSlowThresholdMs,
		MinSamples:      DefaultMinSamples,
		StrikeRate:      DefaultSlowRateStrike,
		DecayRate:       DefaultSlowRateDecay,
		StrikeThreshold: DefaultStrikeThreshold,
		BackoffBase:     DefaultBackoffBase,
		MaxBackoffLevel: DefaultMaxBackoffLevel,
	}
}

// NewSourceHealthWindow allocates a window for one source.
func NewSourceHealthWindow(sourceID string, cfg HealthWindowConfig) *SourceHealthWindow {
	if cfg.Size <= 0 {
		cfg = DefaultHealthWindowConfig()
	}
	return &SourceHealthWindow{
		sourceID:        sourceID,
		size:            cfg.Size,
		slow:            make([]bool, cfg.Size),
		slowThresholdMs: cfg.SlowThresholdMs,
		minSamples:      cfg.MinSamples,
		strikeRate:      cfg.StrikeRate,
		decayRate:       cfg.DecayRate,
		strikeThreshold: cfg.StrikeThreshold,
		backoffBase:     cfg.BackoffBase,
		maxBackoffLevel: cfg.MaxBackoffLevel,
	}
}

// RecordSample appends one call outcome to the window and re-evaluates the
// strike/backoff state, returning the resulting SourceHealth snapshot
// (spec §4.C). A sample is "slow" when it failed outright or its latency
// exceeded slowThresholdMs.
func (w *SourceHealthWindow) RecordSample(latencyMs int64, failed bool, now time.Time) SourceHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	slow := failed || latencyMs > w.slowThresholdMs
	w.slow[w.pos] = slow
	w.pos = (w.pos + 1) % w.size
	if w.filled < w.size {
		w.filled++
	}

	if w.filled >= w.minSamples {
		rate := w.slowRateLocked()
		switch {
		case rate >= w.strikeRate:
			w.consecutiveStrikes++
			if w.consecutiveStrikes >= w.strikeThreshold {
				w.consecutiveStrikes = 0
				if w.backoffLevel < w.maxBackoffLevel {
					w.backoffLevel++
				}
				w.applyBackoffLocked(now)
				// The level change consumed this window; the verdict on
				// the new level comes from the next one.
				w.resetWindowLocked()
			}
		case rate < w.decayRate:
			w.consecutiveStrikes = 0
			if w.backoffLevel > 0 {
				w.backoffLevel--
				if w.backoffLevel == 0 {
					w.excludedUntil = nil
				} else {
					w.applyBackoffLocked(now)
				}
				w.resetWindowLocked()
			}
		default:
			// Middle band: strikes must be consecutive, a non-strike
			// evaluation resets the run.
			w.consecutiveStrikes = 0
		}
	}

	return w.snapshotLocked(now)
}

// applyBackoffLocked sets excludedUntil = now + base * 2^(level-1), the
// exponential backoff formula of spec §4.C. Caller must hold w.mu.
func (w *SourceHealthWindow) applyBackoffLocked(now time.Time) {
	if w.backoffLevel <= 0 {
		w.excludedUntil = nil
		return
	}
	shift := uint(w.backoffLevel - 1)
	until := now.Add(w.backoffBase * (1 << shift))
	w.excludedUntil = &until
}

// resetWindowLocked discards the sampled window after a level change.
// Caller must hold w.mu.
func (w *SourceHealthWindow) resetWindowLocked() {
	w.pos = 0
	w.filled = 0
}

// slowRateLocked computes the fraction of filled slots marked slow. Caller
// must hold w.mu.
func (w *SourceHealthWindow) slowRateLocked() float64 {
	if w.filled == 0 {
		return 0
	}
	count := 0
	for i := 0; i < w.filled; i++ {
		if w.slow[i] {
			count++
		}
	}
	return float64(count) / float64(w.filled)
}

// snapshotLocked builds the current SourceHealth view. Caller must hold w.mu.
func (w *SourceHealthWindow) snapshotLocked(now time.Time) SourceHealth {
	return SourceHealth{
		SourceID:           w.sourceID,
		ConsecutiveStrikes: w.consecutiveStrikes,
		BackoffLevel:       w.backoffLevel,
		ExcludedUntil:      w.excludedUntil,
		UpdatedAt:          now,
	}
}

// Snapshot returns the current health state without recording a sample.
func (w *SourceHealthWindow) Snapshot(now time.Time) SourceHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked(now)
}

// SlowRate exposes the current window's slow-sample rate, used for
// diagnostics and the analytics bottleneck report.
func (w *SourceHealthWindow) SlowRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.slowRateLocked()
}
