package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"carbroker/pkg/database"
	"carbroker/pkg/domain"
	"carbroker/pkg/telemetry"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// PostgresCompanyReader reads companies written by identity-svc.
type PostgresCompanyReader struct {
	db database.DB
}

// NewPostgresCompanyReader creates a reader over the shared companies table.
func NewPostgresCompanyReader(db database.DB) *PostgresCompanyReader {
	return &PostgresCompanyReader{db: db}
}

func (r *PostgresCompanyReader) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	query := `
		SELECT id, type, status, name, adapter_kind, grpc_endpoint, created_at, updated_at
		FROM companies
		WHERE id = $1
	`

	c := &domain.Company{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Type, &c.Status, &c.Name, &c.AdapterKind, &c.GRPCEndpoint, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

func (r *PostgresCompanyReader) ListSources(ctx context.Context) ([]*domain.Company, error) {
	query := `
		SELECT id, type, status, name, adapter_kind, grpc_endpoint, created_at, updated_at
		FROM companies
		WHERE type = 'SOURCE'
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.Company
	for rows.Next() {
		c := &domain.Company{}
		if err := rows.Scan(&c.ID, &c.Type, &c.Status, &c.Name, &c.AdapterKind, &c.GRPCEndpoint, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PostgresAgreementRepository is the Postgres AgreementRepository.
type PostgresAgreementRepository struct {
	db database.DB
}

// NewPostgresAgreementRepository creates the repository.
func NewPostgresAgreementRepository(db database.DB) *PostgresAgreementRepository {
	return &PostgresAgreementRepository{db: db}
}

const agreementColumns = `id, agent_id, source_id, agreement_ref, status, valid_from, valid_to, created_at, updated_at`

func scanAgreement(row pgx.Row) (*domain.Agreement, error) {
	a := &domain.Agreement{}
	err := row.Scan(&a.ID, &a.AgentID, &a.SourceID, &a.AgreementRef, &a.Status, &a.ValidFrom, &a.ValidTo, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresAgreementRepository) Create(ctx context.Context, a *domain.Agreement) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAgreementRepository.Create")
	defer span.End()

	query := `
		INSERT INTO agreements (id, agent_id, source_id, agreement_ref, status, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.AgentID, a.SourceID, a.AgreementRef, a.Status, a.ValidFrom, a.ValidTo,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create agreement: %w", err)
	}
	return nil
}

func (r *PostgresAgreementRepository) Get(ctx context.Context, id string) (*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE id = $1`
	a, err := scanAgreement(r.db.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	return a, err
}

func (r *PostgresAgreementRepository) GetByNaturalKey(ctx context.Context, sourceID, ref string) (*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE source_id = $1 AND agreement_ref = $2`
	a, err := scanAgreement(r.db.QueryRow(ctx, query, sourceID, ref))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get agreement by ref: %w", err)
	}
	return a, err
}

func (r *PostgresAgreementRepository) UpdateStatus(ctx context.Context, id string, expected, next domain.AgreementStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAgreementRepository.UpdateStatus")
	defer span.End()

	// The status guard serializes transitions: a concurrent writer that got
	// there first flips the status and this update matches zero rows.
	query := `
		UPDATE agreements
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.db.Exec(ctx, query, next, id, expected)
	if err != nil {
		return fmt.Errorf("failed to update agreement status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAgreementRepository) listBy(ctx context.Context, column, id string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE ` + column + ` = $1`
	args := []any{id}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agreement
	for rows.Next() {
		a := &domain.Agreement{}
		if err := rows.Scan(&a.ID, &a.AgentID, &a.SourceID, &a.AgreementRef, &a.Status, &a.ValidFrom, &a.ValidTo, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresAgreementRepository) ListByAgent(ctx context.Context, agentID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	return r.listBy(ctx, "agent_id", agentID, status)
}

func (r *PostgresAgreementRepository) ListBySource(ctx context.Context, sourceID string, status *domain.AgreementStatus) ([]*domain.Agreement, error) {
	return r.listBy(ctx, "source_id", sourceID, status)
}

func (r *PostgresAgreementRepository) ResolveActive(ctx context.Context, agentID string, refs []string, now time.Time) ([]domain.ResolvedAgreement, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresAgreementRepository.ResolveActive")
	defer span.End()

	query := `
		SELECT id, agreement_ref, source_id
		FROM agreements
		WHERE agent_id = $1
		  AND status = 'ACTIVE'
		  AND (valid_to IS NULL OR valid_to >= $2)
	`
	args := []any{agentID, now}
	if len(refs) > 0 {
		query += ` AND agreement_ref = ANY($3)`
		args = append(args, refs)
	}
	query += ` ORDER BY agreement_ref`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active agreements: %w", err)
	}
	defer rows.Close()

	var out []domain.ResolvedAgreement
	for rows.Next() {
		var ra domain.ResolvedAgreement
		if err := rows.Scan(&ra.ID, &ra.AgreementRef, &ra.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan resolved agreement: %w", err)
		}
		out = append(out, ra)
	}
	return out, rows.Err()
}

// PostgresCoverageRepository is the Postgres CoverageRepository.
type PostgresCoverageRepository struct {
	db database.DB
}

// NewPostgresCoverageRepository creates the repository.
func NewPostgresCoverageRepository(db database.DB) *PostgresCoverageRepository {
	return &PostgresCoverageRepository{db: db}
}

func (r *PostgresCoverageRepository) BaseCoverage(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT unlocode FROM source_coverage WHERE source_id = $1 ORDER BY unlocode`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load base coverage: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresCoverageRepository) ReplaceBaseCoverage(ctx context.Context, sourceID string, unlocodes []string) (domain.CoverageSyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCoverageRepository.ReplaceBaseCoverage")
	defer span.End()

	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (domain.CoverageSyncResult, error) {
		var result domain.CoverageSyncResult
		result.Total = len(unlocodes)

		// Delete rows that fell out of the fresh set.
		tag, err := tx.Exec(ctx, `
			DELETE FROM source_coverage
			WHERE source_id = $1 AND NOT (unlocode = ANY($2))
		`, sourceID, unlocodes)
		if err != nil {
			return result, fmt.Errorf("failed to delete obsolete coverage: %w", err)
		}
		result.Removed = int(tag.RowsAffected())

		// Insert the new rows, skipping duplicates silently.
		for _, u := range unlocodes {
			tag, err := tx.Exec(ctx, `
				INSERT INTO source_coverage (source_id, unlocode)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, sourceID, u)
			if err != nil {
				return result, fmt.Errorf("failed to insert coverage row: %w", err)
			}
			result.Added += int(tag.RowsAffected())
		}
		return result, nil
	})
}

func (r *PostgresCoverageRepository) Overrides(ctx context.Context, agreementID string) (map[string]domain.OverrideDecision, error) {
	rows, err := r.db.Query(ctx, `SELECT unlocode, allowed FROM agreement_location_overrides WHERE agreement_id = $1`, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.OverrideDecision)
	for rows.Next() {
		var u string
		var allowed bool
		if err := rows.Scan(&u, &allowed); err != nil {
			return nil, err
		}
		if allowed {
			out[u] = domain.OverrideAllow
		} else {
			out[u] = domain.OverrideDeny
		}
	}
	return out, rows.Err()
}

func (r *PostgresCoverageRepository) UpsertOverride(ctx context.Context, agreementID, unlocode string, decision domain.OverrideDecision) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agreement_location_overrides (agreement_id, unlocode, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (agreement_id, unlocode) DO UPDATE SET allowed = EXCLUDED.allowed
	`, agreementID, unlocode, decision == domain.OverrideAllow)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownLocode
		}
		return fmt.Errorf("failed to upsert override: %w", err)
	}
	return nil
}

func (r *PostgresCoverageRepository) RemoveOverride(ctx context.Context, agreementID, unlocode string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM agreement_location_overrides WHERE agreement_id = $1 AND unlocode = $2
	`, agreementID, unlocode)
	if err != nil {
		return fmt.Errorf("failed to remove override: %w", err)
	}
	return nil
}

func (r *PostgresCoverageRepository) KnownLocodes(ctx context.Context, unlocodes []string) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT unlocode FROM location_catalog WHERE unlocode = ANY($1)`, unlocodes)
	if err != nil {
		return nil, fmt.Errorf("failed to check catalog: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		known[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(unlocodes))
	for _, u := range unlocodes {
		_, ok := known[u]
		out[u] = ok
	}
	return out, nil
}

// PostgresJobRepository is the Postgres JobRepository.
type PostgresJobRepository struct {
	db database.DB
}

// NewPostgresJobRepository creates the repository.
func NewPostgresJobRepository(db database.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) CreateJob(ctx context.Context, job *domain.AvailabilityJob) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresJobRepository.CreateJob")
	defer span.End()

	criteria, err := marshalCriteria(job.Criteria)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO availability_jobs (id, agent_id, criteria, expected_sources, status, sla_deadline)
		VALUES ($1, $2, $3, $4, 'IN_PROGRESS', $5)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query,
		job.ID, job.AgentID, criteria, job.ExpectedSources, job.SLADeadline,
	).Scan(&job.CreatedAt); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.Status = domain.JobStatusInProgress
	return nil
}

func (r *PostgresJobRepository) GetJob(ctx context.Context, id string) (*domain.AvailabilityJob, error) {
	query := `
		SELECT id, agent_id, criteria, expected_sources, status, sla_deadline, created_at, completed_at
		FROM availability_jobs
		WHERE id = $1
	`

	job := &domain.AvailabilityJob{}
	var criteria []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.AgentID, &criteria, &job.ExpectedSources, &job.Status, &job.SLADeadline, &job.CreatedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job.Criteria, err = unmarshalCriteria(criteria); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *PostgresJobRepository) SetExpectedSources(ctx context.Context, id string, sourceIDs []string) error {
	tag, err := r.db.Exec(ctx, `UPDATE availability_jobs SET expected_sources = $1 WHERE id = $2`, sourceIDs, id)
	if err != nil {
		return fmt.Errorf("failed to set expected sources: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobRepository) AppendResult(ctx context.Context, result *domain.AvailabilityResult) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresJobRepository.AppendResult")
	defer span.End()

	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (int64, error) {
		// Lock the job row: seq assignment and the COMPLETE check must be
		// atomic with respect to concurrent appends and markJobComplete.
		var status domain.JobStatus
		err := tx.QueryRow(ctx, `SELECT status FROM availability_jobs WHERE id = $1 FOR UPDATE`, result.JobID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("failed to lock job: %w", err)
		}
		if status == domain.JobStatusComplete {
			return 0, ErrJobComplete
		}

		var seq int64
		err = tx.QueryRow(ctx, `
			INSERT INTO availability_results (job_id, seq, source_id, status, offers, error_code, error_detail, latency_ms)
			SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7
			FROM availability_results WHERE job_id = $1
			RETURNING seq
		`, result.JobID, result.SourceID, result.Status, result.Offers, result.ErrorCode, result.ErrorDetail, result.LatencyMs).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("failed to append result: %w", err)
		}
		return seq, nil
	})
}

func (r *PostgresJobRepository) CompleteJob(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE availability_jobs
		SET status = 'COMPLETE', completed_at = $1
		WHERE id = $2 AND status = 'IN_PROGRESS'
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresJobRepository) ResultsSince(ctx context.Context, jobID string, sinceSeq int64) ([]*domain.AvailabilityResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT job_id, seq, source_id, status, offers, error_code, error_detail, latency_ms, received_at
		FROM availability_results
		WHERE job_id = $1 AND seq > $2
		ORDER BY seq
	`, jobID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	defer rows.Close()

	var out []*domain.AvailabilityResult
	for rows.Next() {
		res := &domain.AvailabilityResult{}
		var seq int64
		if err := rows.Scan(&res.JobID, &seq, &res.SourceID, &res.Status, &res.Offers, &res.ErrorCode, &res.ErrorDetail, &res.LatencyMs, &res.ReceivedAt); err != nil {
			return nil, err
		}
		res.ID = fmt.Sprintf("%s:%d", res.JobID, seq)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *PostgresJobRepository) LastSeq(ctx context.Context, jobID string) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM availability_results WHERE job_id = $1`, jobID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read last seq: %w", err)
	}
	return seq, nil
}

func (r *PostgresJobRepository) ExpiredJobs(ctx context.Context, cutoff time.Time, limit int) ([]*domain.AvailabilityJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, agent_id, criteria, expected_sources, status, sla_deadline, created_at, completed_at
		FROM availability_jobs
		WHERE status = 'COMPLETE' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AvailabilityJob
	for rows.Next() {
		job := &domain.AvailabilityJob{}
		var criteria []byte
		if err := rows.Scan(&job.ID, &job.AgentID, &criteria, &job.ExpectedSources, &job.Status, &job.SLADeadline, &job.CreatedAt, &job.CompletedAt); err != nil {
			return nil, err
		}
		if job.Criteria, err = unmarshalCriteria(criteria); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *PostgresJobRepository) DeleteJob(ctx context.Context, id string) error {
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_results WHERE job_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete results: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM availability_jobs WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return nil
	})
}

// PostgresEchoRepository is the Postgres EchoRepository.
type PostgresEchoRepository struct {
	db database.DB
}

// NewPostgresEchoRepository creates the repository.
func NewPostgresEchoRepository(db database.DB) *PostgresEchoRepository {
	return &PostgresEchoRepository{db: db}
}

func (r *PostgresEchoRepository) CreateJob(ctx context.Context, job *domain.EchoJob) error {
	query := `
		INSERT INTO echo_jobs (id, requested_by, expected_sources, status, sla_deadline)
		VALUES ($1, $2, $3, 'IN_PROGRESS', $4)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, job.ID, job.RequestedBy, job.ExpectedSources, job.SLADeadline).Scan(&job.CreatedAt); err != nil {
		return fmt.Errorf("failed to create echo job: %w", err)
	}
	job.Status = domain.JobStatusInProgress
	return nil
}

func (r *PostgresEchoRepository) GetJob(ctx context.Context, id string) (*domain.EchoJob, error) {
	query := `
		SELECT id, requested_by, expected_sources, status, sla_deadline, created_at, completed_at
		FROM echo_jobs
		WHERE id = $1
	`
	job := &domain.EchoJob{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.RequestedBy, &job.ExpectedSources, &job.Status, &job.SLADeadline, &job.CreatedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get echo job: %w", err)
	}
	return job, nil
}

func (r *PostgresEchoRepository) AppendItem(ctx context.Context, item *domain.EchoItem) (int64, error) {
	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (int64, error) {
		var status domain.JobStatus
		err := tx.QueryRow(ctx, `SELECT status FROM echo_jobs WHERE id = $1 FOR UPDATE`, item.JobID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("failed to lock echo job: %w", err)
		}
		if status == domain.JobStatusComplete {
			return 0, ErrJobComplete
		}

		var seq int64
		err = tx.QueryRow(ctx, `
			INSERT INTO echo_items (job_id, seq, source_id, status, echoed, latency_ms)
			SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
			FROM echo_items WHERE job_id = $1
			RETURNING seq
		`, item.JobID, item.SourceID, item.Status, item.Echoed, item.LatencyMs).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("failed to append echo item: %w", err)
		}
		return seq, nil
	})
}

func (r *PostgresEchoRepository) CompleteJob(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE echo_jobs
		SET status = 'COMPLETE', completed_at = $1
		WHERE id = $2 AND status = 'IN_PROGRESS'
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete echo job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresEchoRepository) ItemsSince(ctx context.Context, jobID string, sinceSeq int64) ([]*domain.EchoItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT job_id, seq, source_id, status, echoed, latency_ms, received_at
		FROM echo_items
		WHERE job_id = $1 AND seq > $2
		ORDER BY seq
	`, jobID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to read echo items: %w", err)
	}
	defer rows.Close()

	var out []*domain.EchoItem
	for rows.Next() {
		item := &domain.EchoItem{}
		var seq int64
		if err := rows.Scan(&item.JobID, &seq, &item.SourceID, &item.Status, &item.Echoed, &item.LatencyMs, &item.ReceivedAt); err != nil {
			return nil, err
		}
		item.ID = fmt.Sprintf("%s:%d", item.JobID, seq)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PostgresEchoRepository) ExpiredJobs(ctx context.Context, cutoff time.Time, limit int) ([]*domain.EchoJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, requested_by, expected_sources, status, sla_deadline, created_at, completed_at
		FROM echo_jobs
		WHERE status = 'COMPLETE' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired echo jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.EchoJob
	for rows.Next() {
		job := &domain.EchoJob{}
		if err := rows.Scan(&job.ID, &job.RequestedBy, &job.ExpectedSources, &job.Status, &job.SLADeadline, &job.CreatedAt, &job.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *PostgresEchoRepository) DeleteJob(ctx context.Context, id string) error {
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM echo_items WHERE job_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete echo items: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM echo_jobs WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete echo job: %w", err)
		}
		return nil
	})
}

// PostgresBookingRepository is the Postgres BookingRepository.
type PostgresBookingRepository struct {
	db database.DB
}

// NewPostgresBookingRepository creates the repository.
func NewPostgresBookingRepository(db database.DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

func (r *PostgresBookingRepository) CreateWithKey(ctx context.Context, b *domain.Booking, key *domain.IdempotencyKey, snapshot []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresBookingRepository.CreateWithKey")
	defer span.End()

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var sourceRef *string
		if b.SourceRef != "" {
			sourceRef = &b.SourceRef
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO bookings (id, agent_id, agreement_id, source_id, source_ref, status, idempotency_key, request, snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`, b.ID, b.AgentID, b.AgreementID, b.SourceID, sourceRef, b.Status, b.IdempotencyKey, b.Request, snapshot).Scan(&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrKeyConflict
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO idempotency_keys (agent_id, scope, key, response_ref, request_hash, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, key.AgentID, BookingCreateScope, key.Key, b.ID, key.RequestHash, key.ExpiresAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrKeyConflict
			}
			return fmt.Errorf("failed to insert idempotency key: %w", err)
		}
		return nil
	})
}

const bookingColumns = `id, agent_id, agreement_id, source_id, COALESCE(source_ref, ''), status, idempotency_key, created_at, updated_at`

func (r *PostgresBookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id).Scan(
		&b.ID, &b.AgentID, &b.AgreementID, &b.SourceID, &b.SourceRef, &b.Status, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (r *PostgresBookingRepository) GetBySourceRef(ctx context.Context, sourceRef string) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE source_ref = $1`, sourceRef).Scan(
		&b.ID, &b.AgentID, &b.AgreementID, &b.SourceID, &b.SourceRef, &b.Status, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking by source ref: %w", err)
	}
	return b, nil
}

func (r *PostgresBookingRepository) UpdateFromSource(ctx context.Context, id string, status domain.BookingStatus, snapshot []byte) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1, snapshot = COALESCE($2, snapshot), updated_at = now()
		WHERE id = $3
	`, status, snapshot, id)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresBookingRepository) Snapshot(ctx context.Context, id string) ([]byte, error) {
	var snap []byte
	err := r.db.QueryRow(ctx, `SELECT snapshot FROM bookings WHERE id = $1`, id).Scan(&snap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read booking snapshot: %w", err)
	}
	return snap, nil
}

func (r *PostgresBookingRepository) ExpiredBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('CANCELLED', 'FAILED') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Booking
	for rows.Next() {
		b := &domain.Booking{}
		if err := rows.Scan(&b.ID, &b.AgentID, &b.AgreementID, &b.SourceID, &b.SourceRef, &b.Status, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

// PostgresIdempotencyRepository is the Postgres IdempotencyRepository.
type PostgresIdempotencyRepository struct {
	db database.DB
}

// NewPostgresIdempotencyRepository creates the repository.
func NewPostgresIdempotencyRepository(db database.DB) *PostgresIdempotencyRepository {
	return &PostgresIdempotencyRepository{db: db}
}

func (r *PostgresIdempotencyRepository) Get(ctx context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error) {
	k := &domain.IdempotencyKey{}
	err := r.db.QueryRow(ctx, `
		SELECT agent_id, key, response_ref, request_hash, created_at, expires_at
		FROM idempotency_keys
		WHERE agent_id = $1 AND scope = $2 AND key = $3
	`, agentID, scope, key).Scan(&k.AgentID, &k.Key, &k.BookingID, &k.RequestHash, &k.CreatedAt, &k.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return k, nil
}

func (r *PostgresIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresHealthRepository is the Postgres HealthRepository.
type PostgresHealthRepository struct {
	db database.DB
}

// NewPostgresHealthRepository creates the repository.
func NewPostgresHealthRepository(db database.DB) *PostgresHealthRepository {
	return &PostgresHealthRepository{db: db}
}

func (r *PostgresHealthRepository) Upsert(ctx context.Context, h domain.SourceHealth) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO source_health (source_id, consecutive_strikes, backoff_level, excluded_until, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id) DO UPDATE SET
			consecutive_strikes = EXCLUDED.consecutive_strikes,
			backoff_level = EXCLUDED.backoff_level,
			excluded_until = EXCLUDED.excluded_until,
			updated_at = EXCLUDED.updated_at
	`, h.SourceID, h.ConsecutiveStrikes, h.BackoffLevel, h.ExcludedUntil, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source health: %w", err)
	}
	return nil
}

func (r *PostgresHealthRepository) Get(ctx context.Context, sourceID string) (*domain.SourceHealth, error) {
	h := &domain.SourceHealth{}
	err := r.db.QueryRow(ctx, `
		SELECT source_id, consecutive_strikes, backoff_level, excluded_until, updated_at
		FROM source_health
		WHERE source_id = $1
	`, sourceID).Scan(&h.SourceID, &h.ConsecutiveStrikes, &h.BackoffLevel, &h.ExcludedUntil, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source health: %w", err)
	}
	return h, nil
}

func (r *PostgresHealthRepository) ListExcluded(ctx context.Context, now time.Time) ([]*domain.SourceHealth, error) {
	rows, err := r.db.Query(ctx, `
		SELECT source_id, consecutive_strikes, backoff_level, excluded_until, updated_at
		FROM source_health
		WHERE excluded_until IS NOT NULL AND excluded_until > $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list excluded sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.SourceHealth
	for rows.Next() {
		h := &domain.SourceHealth{}
		if err := rows.Scan(&h.SourceID, &h.ConsecutiveStrikes, &h.BackoffLevel, &h.ExcludedUntil, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
