// Package repository reads the analytics source data: per-source fan-out
// stats, requested routes, and booking counts, all aggregated in SQL over
// the shared schema. The package never writes.
package repository

import (
	"context"
	"fmt"
	"time"

	"carbroker/pkg/database"
	"carbroker/pkg/telemetry"
	"carbroker/services/analytics-svc/internal/analysis"
)

// PostgresAnalyticsRepository reads aggregates from the shared tables.
type PostgresAnalyticsRepository struct {
	db database.DB
}

// NewPostgresAnalyticsRepository creates the repository.
func NewPostgresAnalyticsRepository(db database.DB) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{db: db}
}

// SourceStats aggregates availability_results joined with source_health.
func (r *PostgresAnalyticsRepository) SourceStats(ctx context.Context, since time.Time) ([]analysis.SourceStat, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.SourceStats")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT
			res.source_id,
			COUNT(*) AS samples,
			COALESCE(AVG(res.latency_ms), 0) AS avg_latency,
			COALESCE(AVG(CASE WHEN res.status = 'TIMEOUT' THEN 1.0 ELSE 0.0 END), 0) AS timeout_share,
			COALESCE(AVG(CASE WHEN res.status = 'ERROR' THEN 1.0 ELSE 0.0 END), 0) AS error_share,
			COALESCE(MAX(h.backoff_level), 0) AS backoff_level,
			BOOL_OR(h.excluded_until IS NOT NULL AND h.excluded_until > now()) AS excluded_now
		FROM availability_results res
		LEFT JOIN source_health h ON h.source_id = res.source_id
		WHERE res.received_at >= $1
		GROUP BY res.source_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate source stats: %w", err)
	}
	defer rows.Close()

	var out []analysis.SourceStat
	for rows.Next() {
		var s analysis.SourceStat
		if err := rows.Scan(&s.SourceID, &s.Samples, &s.AvgLatencyMs, &s.TimeoutShare, &s.ErrorShare, &s.BackoffLevel, &s.ExcludedNow); err != nil {
			return nil, err
		}
		// The window slow rate mirrors timeouts + errors at this grain.
		s.SlowRate = s.TimeoutShare + s.ErrorShare
		out = append(out, s)
	}
	return out, rows.Err()
}

// RequestedRoutes aggregates availability_jobs by route, with the mean
// eligible-source count per route.
func (r *PostgresAnalyticsRepository) RequestedRoutes(ctx context.Context, agentID string, since time.Time) ([]analysis.RouteRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.RequestedRoutes")
	defer span.End()

	query := `
		SELECT
			criteria->>'pickup_unlocode',
			COALESCE(criteria->>'dropoff_unlocode', criteria->>'pickup_unlocode'),
			COUNT(*),
			AVG(COALESCE(array_length(expected_sources, 1), 0))
		FROM availability_jobs
		WHERE created_at >= $1
	`
	args := []any{since}
	if agentID != "" {
		args = append(args, agentID)
		query += ` AND agent_id = $2`
	}
	query += ` GROUP BY 1, 2`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate requested routes: %w", err)
	}
	defer rows.Close()

	var out []analysis.RouteRequest
	for rows.Next() {
		var rr analysis.RouteRequest
		if err := rows.Scan(&rr.PickupUnlocode, &rr.DropoffUnlocode, &rr.RequestCount, &rr.EligibleAvg); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// BookingFunnel counts live plus archived bookings by status.
func (r *PostgresAnalyticsRepository) BookingFunnel(ctx context.Context, agentID string, since time.Time) (analysis.Funnel, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAnalyticsRepository.BookingFunnel")
	defer span.End()

	var funnel analysis.Funnel
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'REQUESTED'),
			COUNT(*) FILTER (WHERE status = 'CONFIRMED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM (
			SELECT status, created_at, agent_id FROM bookings
			UNION ALL
			SELECT status, created_at, agent_id FROM archived_bookings
		) b
		WHERE created_at >= $1
	`
	args := []any{since}
	if agentID != "" {
		args = append(args, agentID)
		query += ` AND agent_id = $2`
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&funnel.Requested, &funnel.Confirmed, &funnel.Cancelled, &funnel.Failed); err != nil {
		return funnel, fmt.Errorf("failed to aggregate booking funnel: %w", err)
	}
	return funnel, nil
}
