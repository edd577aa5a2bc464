package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carbroker/pkg/database"
	"carbroker/pkg/telemetry"
)

// PostgresAuditRepository is the Postgres AuditRepository over audit_log.
type PostgresAuditRepository struct {
	db database.DB
}

// NewPostgresAuditRepository creates the repository.
func NewPostgresAuditRepository(db database.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

const auditColumns = `id, timestamp, service, method, action, outcome, direction, user_id, username, source_id, agreement_ref, client_ip, user_agent, resource_type, resource_id, request_id, duration_ms, error_code, error_message, metadata`

func (r *PostgresAuditRepository) Insert(ctx context.Context, e *AuditEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAuditRepository.Insert")
	defer span.End()

	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Timestamp, e.Service, e.Method, e.Action, e.Outcome, e.Direction,
		e.CompanyID, e.CompanyName, e.SourceID, e.AgreementRef, e.ClientIP, e.UserAgent,
		e.ResourceType, e.ResourceID, e.RequestID, e.DurationMs, e.ErrorCode, e.ErrorMessage, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepository) InsertBatch(ctx context.Context, entries []*AuditEntry) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAuditRepository.InsertBatch")
	defer span.End()

	inserted := 0
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			// A bad entry never blocks the rest of the batch.
			continue
		}
		inserted++
	}
	return inserted, nil
}

func (r *PostgresAuditRepository) Query(ctx context.Context, filter *AuditFilter) ([]*AuditEntry, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAuditRepository.Query")
	defer span.End()

	where := ` WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(clause, len(args))
	}

	if filter.Service != "" {
		add(" AND service = $%d", filter.Service)
	}
	if filter.Method != "" {
		add(" AND method = $%d", filter.Method)
	}
	if filter.Action != "" {
		add(" AND action = $%d", filter.Action)
	}
	if filter.Outcome != "" {
		add(" AND outcome = $%d", filter.Outcome)
	}
	if filter.CompanyID != "" {
		add(" AND user_id = $%d", filter.CompanyID)
	}
	if filter.SourceID != "" {
		add(" AND source_id = $%d", filter.SourceID)
	}
	if filter.AgreementRef != "" {
		add(" AND agreement_ref = $%d", filter.AgreementRef)
	}
	if filter.StartTime != nil {
		add(" AND timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add(" AND timestamp < $%d", *filter.EndTime)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := `SELECT ` + auditColumns + ` FROM audit_log` + where +
		fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Service, &e.Method, &e.Action, &e.Outcome, &e.Direction,
			&e.CompanyID, &e.CompanyName, &e.SourceID, &e.AgreementRef, &e.ClientIP, &e.UserAgent,
			&e.ResourceType, &e.ResourceID, &e.RequestID, &e.DurationMs, &e.ErrorCode, &e.ErrorMessage, &metadata); err != nil {
			return nil, 0, err
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata) //nolint:errcheck // metadata is best effort
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *PostgresAuditRepository) CompanyActivity(ctx context.Context, companyID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries, _, err := r.Query(ctx, &AuditFilter{CompanyID: companyID, Limit: limit})
	return entries, err
}

func (r *PostgresAuditRepository) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAuditRepository.Stats")
	defer span.End()

	stats := &Stats{
		EventsByAction:  make(map[string]int64),
		EventsByService: make(map[string]int64),
		EventsByCompany: make(map[string]int64),
	}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE outcome = 'FAILURE'),
		       COALESCE(AVG(duration_ms), 0),
		       COUNT(DISTINCT user_id) FILTER (WHERE user_id <> ''),
		       COUNT(DISTINCT source_id) FILTER (WHERE source_id <> '')
		FROM audit_log
		WHERE timestamp >= $1
	`, since).Scan(&stats.TotalEvents, &stats.FailureCount, &stats.AvgDurationMs, &stats.DistinctAgents, &stats.DistinctSources)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit stats: %w", err)
	}

	for _, group := range []struct {
		column string
		dest   map[string]int64
	}{
		{"action", stats.EventsByAction},
		{"service", stats.EventsByService},
		{"user_id", stats.EventsByCompany},
	} {
		rows, err := r.db.Query(ctx, fmt.Sprintf(`
			SELECT %s, COUNT(*) FROM audit_log
			WHERE timestamp >= $1 AND %s <> ''
			GROUP BY %s
		`, group.column, group.column, group.column), since)
		if err != nil {
			return nil, fmt.Errorf("failed to group audit stats by %s: %w", group.column, err)
		}
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, err
			}
			group.dest[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	return data, nil
}
