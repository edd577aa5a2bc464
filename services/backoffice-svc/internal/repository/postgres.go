package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"carbroker/pkg/database"
	"carbroker/pkg/telemetry"
	"carbroker/services/backoffice-svc/internal/generator"
)

// PostgresReportStore is the Postgres ReportStore.
type PostgresReportStore struct {
	db database.DB
}

// NewPostgresReportStore creates the store.
func NewPostgresReportStore(db database.DB) *PostgresReportStore {
	return &PostgresReportStore{db: db}
}

func (r *PostgresReportStore) Save(ctx context.Context, report *StoredReport) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresReportStore.Save")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO stored_reports (id, company_id, kind, format, title, filename, mime_type, size_bytes, content, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, report.ID, report.CompanyID, report.Kind, report.Format, report.Title, report.Filename,
		report.MimeType, report.SizeBytes, report.Content, report.CreatedAt, report.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (r *PostgresReportStore) Get(ctx context.Context, id string) (*StoredReport, error) {
	report := &StoredReport{}
	err := r.db.QueryRow(ctx, `
		SELECT id, company_id, kind, format, title, filename, mime_type, size_bytes, content, created_at, expires_at
		FROM stored_reports WHERE id = $1
	`, id).Scan(&report.ID, &report.CompanyID, &report.Kind, &report.Format, &report.Title, &report.Filename,
		&report.MimeType, &report.SizeBytes, &report.Content, &report.CreatedAt, &report.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *PostgresReportStore) List(ctx context.Context, companyID string, limit, offset int) ([]*ReportSummary, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stored_reports WHERE company_id = $1`, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, kind, format, title, filename, size_bytes, created_at, expires_at
		FROM stored_reports
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []*ReportSummary
	for rows.Next() {
		s := &ReportSummary{}
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Kind, &s.Format, &s.Title, &s.Filename, &s.SizeBytes, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *PostgresReportStore) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stored_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *PostgresReportStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM stored_reports WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresSnapshotReader reads the report rows from the shared tables.
type PostgresSnapshotReader struct {
	db database.DB
}

// NewPostgresSnapshotReader creates the reader.
func NewPostgresSnapshotReader(db database.DB) *PostgresSnapshotReader {
	return &PostgresSnapshotReader{db: db}
}

func (r *PostgresSnapshotReader) Bookings(ctx context.Context, from, to time.Time) ([]generator.BookingRow, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresSnapshotReader.Bookings")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT b.id, COALESCE(b.source_ref, ''), COALESCE(agent.name, b.agent_id), COALESCE(src.name, b.source_id),
		       COALESCE(a.agreement_ref, ''), b.status, b.created_at, b.updated_at
		FROM bookings b
		LEFT JOIN companies agent ON agent.id = b.agent_id
		LEFT JOIN companies src ON src.id = b.source_id
		LEFT JOIN agreements a ON a.id = b.agreement_id
		WHERE b.created_at >= $1 AND b.created_at < $2
		ORDER BY b.created_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	defer rows.Close()

	var out []generator.BookingRow
	for rows.Next() {
		var b generator.BookingRow
		if err := rows.Scan(&b.BookingID, &b.SourceRef, &b.AgentName, &b.SourceName, &b.AgreementRef, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresSnapshotReader) Agreements(ctx context.Context) ([]generator.AgreementRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.agreement_ref, COALESCE(agent.name, a.agent_id), COALESCE(src.name, a.source_id),
		       a.status, a.valid_from, a.valid_to,
		       (SELECT COUNT(*) FROM source_coverage sc WHERE sc.source_id = a.source_id)
		FROM agreements a
		LEFT JOIN companies agent ON agent.id = a.agent_id
		LEFT JOIN companies src ON src.id = a.source_id
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read agreements: %w", err)
	}
	defer rows.Close()

	var out []generator.AgreementRow
	for rows.Next() {
		var a generator.AgreementRow
		if err := rows.Scan(&a.AgreementID, &a.AgreementRef, &a.AgentName, &a.SourceName, &a.Status, &a.ValidFrom, &a.ValidTo, &a.CoverageCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresSnapshotReader) SourceHealth(ctx context.Context) ([]generator.SourceHealthRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT h.source_id, COALESCE(c.name, h.source_id), h.backoff_level, h.excluded_until, h.updated_at
		FROM source_health h
		LEFT JOIN companies c ON c.id = h.source_id
		ORDER BY h.backoff_level DESC, h.source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read source health: %w", err)
	}
	defer rows.Close()

	var out []generator.SourceHealthRow
	for rows.Next() {
		var h generator.SourceHealthRow
		if err := rows.Scan(&h.SourceID, &h.SourceName, &h.BackoffLevel, &h.ExcludedUntil, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PostgresSnapshotReader) Summary(ctx context.Context, from, to time.Time) (*generator.Summary, error) {
	summary := &generator.Summary{PeriodFrom: from, PeriodTo: to}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM bookings WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(*) FROM bookings WHERE created_at >= $1 AND created_at < $2 AND status = 'CONFIRMED'),
			(SELECT COUNT(*) FROM bookings WHERE created_at >= $1 AND created_at < $2 AND status = 'CANCELLED'),
			(SELECT COUNT(*) FROM bookings WHERE created_at >= $1 AND created_at < $2 AND status = 'FAILED'),
			(SELECT COUNT(*) FROM agreements WHERE status = 'ACTIVE'),
			(SELECT COUNT(*) FROM source_health WHERE excluded_until IS NOT NULL AND excluded_until > now())
	`, from, to).Scan(&summary.TotalBookings, &summary.ConfirmedCount, &summary.CancelledCount, &summary.FailedCount, &summary.ActiveAgreements, &summary.ExcludedSources)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate summary: %w", err)
	}
	return summary, nil
}
