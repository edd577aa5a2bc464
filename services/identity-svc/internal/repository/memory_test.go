package repository

import (
	"context"
	"testing"
	"time"
)

func testCompany(email string) *Company {
	return &Company{
		Name:         "Test Agent",
		Email:        email,
		PasswordHash: "$argon2id$hash",
		Type:         "AGENT",
		Status:       "ACTIVE",
	}
}

func TestMemoryCompanyRepository_Create(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()

	c := testCompany("a@example.com")
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == "" {
		t.Error("id should be assigned")
	}
	if c.CreatedAt.IsZero() {
		t.Error("createdAt should be stamped")
	}

	// Duplicate email is rejected
	if err := repo.Create(ctx, testCompany("a@example.com")); err != ErrCompanyAlreadyExists {
		t.Errorf("duplicate email = %v, want ErrCompanyAlreadyExists", err)
	}
}

func TestMemoryCompanyRepository_GetBy(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()

	c := testCompany("a@example.com")
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byID, err := repo.GetByID(ctx, c.ID)
	if err != nil || byID.Email != "a@example.com" {
		t.Errorf("GetByID = (%+v, %v)", byID, err)
	}

	byEmail, err := repo.GetByEmail(ctx, "a@example.com")
	if err != nil || byEmail.ID != c.ID {
		t.Errorf("GetByEmail = (%+v, %v)", byEmail, err)
	}

	if _, err := repo.GetByID(ctx, "missing"); err != ErrCompanyNotFound {
		t.Errorf("missing id = %v, want ErrCompanyNotFound", err)
	}
	if _, err := repo.GetByEmail(ctx, "missing@example.com"); err != ErrCompanyNotFound {
		t.Errorf("missing email = %v, want ErrCompanyNotFound", err)
	}
}

func TestMemoryCompanyRepository_Isolation(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()

	c := testCompany("a@example.com")
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating the returned copy must not affect the stored row
	got, _ := repo.GetByID(ctx, c.ID)
	got.Status = "SUSPENDED"

	again, _ := repo.GetByID(ctx, c.ID)
	if again.Status != "ACTIVE" {
		t.Error("stored row mutated through a returned copy")
	}
}

func TestMemoryCompanyRepository_SetStatus(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()

	c := testCompany("a@example.com")
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SetStatus(ctx, c.ID, "SUSPENDED"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := repo.GetByID(ctx, c.ID)
	if got.Status != "SUSPENDED" {
		t.Errorf("status = %s, want SUSPENDED", got.Status)
	}

	if err := repo.SetStatus(ctx, "missing", "ACTIVE"); err != ErrCompanyNotFound {
		t.Errorf("missing = %v, want ErrCompanyNotFound", err)
	}
}

func TestMemoryCompanyRepository_List(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()

	agent := testCompany("agent@example.com")
	_ = repo.Create(ctx, agent)

	source := testCompany("source@example.com")
	source.Type = "SOURCE"
	source.AdapterKind = "grpc"
	source.GRPCEndpoint = "source:50054"
	_ = repo.Create(ctx, source)

	suspended := testCompany("x@example.com")
	suspended.Status = "SUSPENDED"
	_ = repo.Create(ctx, suspended)

	sources, err := repo.List(ctx, "SOURCE", "")
	if err != nil || len(sources) != 1 {
		t.Errorf("List(SOURCE) = (%d, %v), want 1", len(sources), err)
	}
	if len(sources) == 1 && sources[0].GRPCEndpoint != "source:50054" {
		t.Errorf("adapter attributes lost: %+v", sources[0])
	}

	active, err := repo.List(ctx, "AGENT", "ACTIVE")
	if err != nil || len(active) != 1 {
		t.Errorf("List(AGENT, ACTIVE) = (%d, %v), want 1", len(active), err)
	}

	all, err := repo.List(ctx, "", "")
	if err != nil || len(all) != 3 {
		t.Errorf("List() = (%d, %v), want 3", len(all), err)
	}
}

func TestMemoryTokenBlacklist(t *testing.T) {
	bl := NewMemoryTokenBlacklist()
	ctx := context.Background()

	if err := bl.Add(ctx, "revoked-token", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	found, err := bl.Contains(ctx, "revoked-token")
	if err != nil || !found {
		t.Errorf("Contains(revoked) = (%v, %v), want true", found, err)
	}

	found, err = bl.Contains(ctx, "other-token")
	if err != nil || found {
		t.Errorf("Contains(other) = (%v, %v), want false", found, err)
	}
}

func TestMemoryTokenBlacklist_Expiry(t *testing.T) {
	bl := NewMemoryTokenBlacklist()
	ctx := context.Background()

	if err := bl.Add(ctx, "short-lived", 10*time.Millisecond); err != nil {
		t.Fatalf("Add: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	found, err := bl.Contains(ctx, "short-lived")
	if err != nil || found {
		t.Errorf("expired token still blacklisted: (%v, %v)", found, err)
	}
}
