package repository

import (
	"context"
	"fmt"

	"carbroker/pkg/config"
	"carbroker/pkg/database"
)

// RepositoryType selects the storage backend.
type RepositoryType string

const (
	RepositoryTypeMemory   RepositoryType = "memory"
	RepositoryTypePostgres RepositoryType = "postgres"
)

// Repositories bundles the identity stores.
type Repositories struct {
	Companies CompanyRepository
	Blacklist TokenBlacklist
	db        *database.PostgresDB // closed on shutdown
}

// Close releases connections.
func (r *Repositories) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// NewRepositories builds the store set for the configured driver.
func NewRepositories(ctx context.Context, cfg *config.DatabaseConfig) (*Repositories, error) {
	repoType := RepositoryType(cfg.Driver)

	switch repoType {
	case RepositoryTypeMemory, "":
		return newMemoryRepositories(), nil

	case RepositoryTypePostgres, "postgresql":
		return newPostgresRepositories(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported repository type: %s", cfg.Driver)
	}
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Companies: NewMemoryCompanyRepository(),
		Blacklist: NewMemoryTokenBlacklist(),
		db:        nil,
	}
}

func newPostgresRepositories(ctx context.Context, cfg *config.DatabaseConfig) (*Repositories, error) {
	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Repositories{
		Companies: NewPostgresCompanyRepository(db),
		Blacklist: NewPostgresTokenBlacklist(db),
		db:        db,
	}, nil
}
