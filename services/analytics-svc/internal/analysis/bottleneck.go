// Package analysis holds the pure computations behind the analytics
// surface: source bottleneck scoring, coverage gap detection, and the
// booking funnel. Everything here operates on plain row structs; data
// access lives in the repository.
package analysis

import "sort"

// SourceStat is one source's observed fan-out behavior over a window.
type SourceStat struct {
	SourceID     string
	Samples      int64
	AvgLatencyMs float64
	TimeoutShare float64 // fraction of samples that were timeout markers
	ErrorShare   float64 // fraction of samples that were error items
	BackoffLevel int
	ExcludedNow  bool
	SlowRate     float64
}

// Severity buckets a bottleneck.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Bottleneck is one scored source.
type Bottleneck struct {
	SourceStat
	Severity Severity
	Score    float64
}

// FindBottlenecks scores every source and returns the worst offenders,
// highest score first. A source with no samples never ranks.
func FindBottlenecks(stats []SourceStat, topN int) []Bottleneck {
	if topN <= 0 {
		topN = 10
	}

	var out []Bottleneck
	for _, s := range stats {
		if s.Samples == 0 {
			continue
		}
		score := impactScore(s)
		if score == 0 {
			continue
		}
		out = append(out, Bottleneck{
			SourceStat: s,
			Severity:   classifySeverity(s),
			Score:      score,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// impactScore weighs how much a source degrades fan-out: exclusion and
// backoff dominate, then timeout share, then raw latency.
func impactScore(s SourceStat) float64 {
	score := s.TimeoutShare*40 + s.ErrorShare*25 + s.SlowRate*15
	score += float64(s.BackoffLevel) * 10
	if s.ExcludedNow {
		score += 30
	}
	// Latency above one second contributes up to 10 points.
	if s.AvgLatencyMs > 1000 {
		extra := (s.AvgLatencyMs - 1000) / 900
		if extra > 10 {
			extra = 10
		}
		score += extra
	}
	return score
}

func classifySeverity(s SourceStat) Severity {
	switch {
	case s.ExcludedNow || s.BackoffLevel >= 3:
		return SeverityCritical
	case s.BackoffLevel >= 1 || s.TimeoutShare >= 0.5:
		return SeverityHigh
	case s.TimeoutShare >= 0.2 || s.ErrorShare >= 0.2 || s.SlowRate >= 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
