// Package repository stores Company accounts: the agents, sources, and
// admins that participate in agreements. Passwords live here as bcrypt
// hashes; the rest of the platform only reads company rows.
package repository

import (
	"context"
	"errors"
	"time"
)

// Standard repository errors
var (
	ErrCompanyNotFound      = errors.New("company not found")
	ErrCompanyAlreadyExists = errors.New("company already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// Company is one account row.
type Company struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Type         string // AGENT, SOURCE, ADMIN
	Status       string // PENDING_VERIFICATION, ACTIVE, SUSPENDED
	AdapterKind  string // mock, grpc; sources only
	GRPCEndpoint string // sources with adapterKind=grpc only
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CompanyRepository is the account store interface.
type CompanyRepository interface {
	Create(ctx context.Context, c *Company) error
	GetByID(ctx context.Context, id string) (*Company, error)
	GetByEmail(ctx context.Context, email string) (*Company, error)
	Update(ctx context.Context, c *Company) error
	SetStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, companyType, status string) ([]*Company, error)
	Exists(ctx context.Context, email string) (bool, error)
}

// TokenBlacklist stores revoked session tokens until they expire.
type TokenBlacklist interface {
	Add(ctx context.Context, token string, expiry time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}
