package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"carbroker/pkg/domain"
)

func setupMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresAgreementRepository_CreateDuplicate(t *testing.T) {
	mock := setupMockDB(t)
	repo := NewPostgresAgreementRepository(mock)

	mock.ExpectQuery("INSERT INTO agreements").
		WithArgs("id-1", "agent-1", "src-1", "AGR-001", domain.AgreementStatusDraft, nil, nil).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &domain.Agreement{
		ID:           "id-1",
		AgentID:      "agent-1",
		SourceID:     "src-1",
		AgreementRef: "AGR-001",
		Status:       domain.AgreementStatusDraft,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("unique violation = %v, want ErrDuplicate", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAgreementRepository_UpdateStatusGuard(t *testing.T) {
	mock := setupMockDB(t)
	repo := NewPostgresAgreementRepository(mock)

	// A concurrent transition already moved the row; zero rows match.
	mock.ExpectExec("UPDATE agreements").
		WithArgs(domain.AgreementStatusOffered, "id-1", domain.AgreementStatusDraft).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "id-1", domain.AgreementStatusDraft, domain.AgreementStatusOffered)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("stale guard = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAgreementRepository_ResolveActive(t *testing.T) {
	mock := setupMockDB(t)
	repo := NewPostgresAgreementRepository(mock)
	now := time.Now()

	rows := pgxmock.NewRows([]string{"id", "agreement_ref", "source_id"}).
		AddRow("id-1", "AGR-001", "src-1").
		AddRow("id-2", "AGR-002", "src-2")
	mock.ExpectQuery("SELECT id, agreement_ref, source_id").
		WithArgs("agent-1", now).
		WillReturnRows(rows)

	resolved, err := repo.ResolveActive(context.Background(), "agent-1", nil, now)
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if len(resolved) != 2 || resolved[0].AgreementRef != "AGR-001" {
		t.Errorf("resolved = %+v", resolved)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresJobRepository_CompleteJobIdempotent(t *testing.T) {
	mock := setupMockDB(t)
	repo := NewPostgresJobRepository(mock)
	now := time.Now()

	// First call flips the row, second matches nothing.
	mock.ExpectExec("UPDATE availability_jobs").
		WithArgs(now, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE availability_jobs").
		WithArgs(now, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	flipped, err := repo.CompleteJob(context.Background(), "job-1", now)
	if err != nil || !flipped {
		t.Fatalf("first complete = (%v, %v)", flipped, err)
	}
	flipped, err = repo.CompleteJob(context.Background(), "job-1", now)
	if err != nil || flipped {
		t.Fatalf("second complete = (%v, %v), want no-op", flipped, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresHealthRepository_Upsert(t *testing.T) {
	mock := setupMockDB(t)
	repo := NewPostgresHealthRepository(mock)

	until := time.Now().Add(30 * time.Second)
	h := domain.SourceHealth{
		SourceID:           "src-1",
		ConsecutiveStrikes: 1,
		BackoffLevel:       2,
		ExcludedUntil:      &until,
		UpdatedAt:          time.Now(),
	}

	mock.ExpectExec("INSERT INTO source_health").
		WithArgs(h.SourceID, h.ConsecutiveStrikes, h.BackoffLevel, h.ExcludedUntil, h.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Upsert(context.Background(), h); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
