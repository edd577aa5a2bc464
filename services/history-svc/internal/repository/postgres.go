package repository

import (
	"context"
	"fmt"

	"carbroker/pkg/database"
	"carbroker/pkg/telemetry"
)

// PostgresHistoryRepository is the Postgres HistoryRepository.
type PostgresHistoryRepository struct {
	db database.DB
}

// NewPostgresHistoryRepository creates the repository.
func NewPostgresHistoryRepository(db database.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

func (r *PostgresHistoryRepository) SaveJob(ctx context.Context, job *ArchivedJob) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresHistoryRepository.SaveJob")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO archived_availability_jobs (id, agent_id, criteria, result_count, expected_sources, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.AgentID, job.Criteria, job.ResultCount, job.ExpectedSources, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to archive job: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) SaveEchoJob(ctx context.Context, job *ArchivedEchoJob) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO archived_echo_jobs (id, requested_by, item_count, expected_sources, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.RequestedBy, job.ItemCount, job.ExpectedSources, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to archive echo job: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) SaveBooking(ctx context.Context, b *ArchivedBooking) error {
	var sourceRef *string
	if b.SourceRef != "" {
		sourceRef = &b.SourceRef
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO archived_bookings (id, agent_id, agreement_id, source_id, source_ref, status, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, b.ID, b.AgentID, b.AgreementID, b.SourceID, sourceRef, b.Status, b.Snapshot, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to archive booking: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) ListJobs(ctx context.Context, agentID string, limit, offset int) ([]*ArchivedJob, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresHistoryRepository.ListJobs")
	defer span.End()

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM archived_availability_jobs WHERE agent_id = $1`, agentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count archived jobs: %w", err)
	}

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, agent_id, criteria, result_count, expected_sources, created_at, completed_at, archived_at
		FROM archived_availability_jobs
		WHERE agent_id = $1
		ORDER BY archived_at DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list archived jobs: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedJob
	for rows.Next() {
		job := &ArchivedJob{}
		if err := rows.Scan(&job.ID, &job.AgentID, &job.Criteria, &job.ResultCount, &job.ExpectedSources, &job.CreatedAt, &job.CompletedAt, &job.ArchivedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, job)
	}
	return out, total, rows.Err()
}

func (r *PostgresHistoryRepository) ListBookings(ctx context.Context, agentID, status string, limit, offset int) ([]*ArchivedBooking, int64, error) {
	where := ` WHERE agent_id = $1`
	args := []any{agentID}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM archived_bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count archived bookings: %w", err)
	}

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, `
		SELECT id, agent_id, agreement_id, source_id, COALESCE(source_ref, ''), status, snapshot, created_at, updated_at, archived_at
		FROM archived_bookings`+where+fmt.Sprintf(`
		ORDER BY archived_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list archived bookings: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedBooking
	for rows.Next() {
		b := &ArchivedBooking{}
		if err := rows.Scan(&b.ID, &b.AgentID, &b.AgreementID, &b.SourceID, &b.SourceRef, &b.Status, &b.Snapshot, &b.CreatedAt, &b.UpdatedAt, &b.ArchivedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *PostgresHistoryRepository) Statistics(ctx context.Context, companyID string) (*Statistics, error) {
	stats := &Statistics{}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM archived_availability_jobs WHERE agent_id = $1),
			(SELECT COUNT(*) FROM archived_echo_jobs WHERE requested_by = $1),
			(SELECT COUNT(*) FROM archived_bookings WHERE agent_id = $1),
			(SELECT MIN(archived_at) FROM archived_availability_jobs WHERE agent_id = $1)
	`, companyID).Scan(&stats.ArchivedJobs, &stats.ArchivedEchoJobs, &stats.ArchivedBookings, &stats.OldestArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate archive statistics: %w", err)
	}
	return stats, nil
}
