package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"carbroker/pkg/database"
	"carbroker/pkg/telemetry"
)

// PostgresCompanyRepository is the Postgres CompanyRepository.
type PostgresCompanyRepository struct {
	db database.DB
}

// NewPostgresCompanyRepository creates the repository.
func NewPostgresCompanyRepository(db database.DB) *PostgresCompanyRepository {
	return &PostgresCompanyRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const companyColumns = `id, name, email, password_hash, type, status, adapter_kind, grpc_endpoint, created_at, updated_at`

func (r *PostgresCompanyRepository) Create(ctx context.Context, c *Company) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCompanyRepository.Create")
	defer span.End()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO companies (id, name, email, password_hash, type, status, adapter_kind, grpc_endpoint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.Name, c.Email, c.PasswordHash, c.Type, c.Status, c.AdapterKind, c.GRPCEndpoint,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCompanyAlreadyExists
		}
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

func scanCompany(row pgx.Row) (*Company, error) {
	c := &Company{}
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Type, &c.Status, &c.AdapterKind, &c.GRPCEndpoint, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id string) (*Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrCompanyNotFound) {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, err
}

func (r *PostgresCompanyRepository) GetByEmail(ctx context.Context, email string) (*Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE email = $1`, email))
	if err != nil && !errors.Is(err, ErrCompanyNotFound) {
		return nil, fmt.Errorf("failed to get company by email: %w", err)
	}
	return c, err
}

func (r *PostgresCompanyRepository) Update(ctx context.Context, c *Company) error {
	query := `
		UPDATE companies
		SET name = $1, email = $2, adapter_kind = $3, grpc_endpoint = $4, updated_at = now()
		WHERE id = $5
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, c.Name, c.Email, c.AdapterKind, c.GRPCEndpoint, c.ID).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCompanyNotFound
		}
		if isUniqueViolation(err) {
			return ErrCompanyAlreadyExists
		}
		return fmt.Errorf("failed to update company: %w", err)
	}
	return nil
}

func (r *PostgresCompanyRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE companies SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set company status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

func (r *PostgresCompanyRepository) List(ctx context.Context, companyType, status string) ([]*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	args := []any{}
	if companyType != "" {
		args = append(args, companyType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []*Company
	for rows.Next() {
		c := &Company{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Type, &c.Status, &c.AdapterKind, &c.GRPCEndpoint, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCompanyRepository) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check company existence: %w", err)
	}
	return exists, nil
}

// PostgresTokenBlacklist stores revoked tokens in Postgres so revocation
// survives restarts and is shared across replicas.
type PostgresTokenBlacklist struct {
	db database.DB
}

// NewPostgresTokenBlacklist creates the blacklist over a dedicated table.
func NewPostgresTokenBlacklist(db database.DB) *PostgresTokenBlacklist {
	bl := &PostgresTokenBlacklist{db: db}
	go bl.cleanup()
	return bl
}

func (b *PostgresTokenBlacklist) Add(ctx context.Context, token string, expiry time.Duration) error {
	_, err := b.db.Exec(ctx, `
		INSERT INTO revoked_tokens (token_hash, expires_at)
		VALUES (md5($1), $2)
		ON CONFLICT (token_hash) DO NOTHING
	`, token, time.Now().Add(expiry))
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *PostgresTokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = md5($1) AND expires_at > now())
	`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists, nil
}

func (b *PostgresTokenBlacklist) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, _ = b.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < now()`) //nolint:errcheck // retried next tick
		cancel()
	}
}
