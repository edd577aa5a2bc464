package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCompanyRepository is the in-memory CompanyRepository.
type MemoryCompanyRepository struct {
	mu        sync.RWMutex
	companies map[string]*Company // id -> company
	byEmail   map[string]string   // email -> id
}

// NewMemoryCompanyRepository creates an empty repository.
func NewMemoryCompanyRepository() *MemoryCompanyRepository {
	return &MemoryCompanyRepository{
		companies: make(map[string]*Company),
		byEmail:   make(map[string]string),
	}
}

func (r *MemoryCompanyRepository) Create(_ context.Context, c *Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Email is the natural key
	if _, exists := r.byEmail[c.Email]; exists {
		return ErrCompanyAlreadyExists
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	// Store a copy
	stored := *c
	r.companies[c.ID] = &stored
	r.byEmail[c.Email] = c.ID

	return nil
}

func (r *MemoryCompanyRepository) GetByID(_ context.Context, id string) (*Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryCompanyRepository) GetByEmail(_ context.Context, email string) (*Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	out := *r.companies[id]
	return &out, nil
}

func (r *MemoryCompanyRepository) Update(_ context.Context, c *Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.companies[c.ID]
	if !ok {
		return ErrCompanyNotFound
	}

	if existing.Email != c.Email {
		if _, taken := r.byEmail[c.Email]; taken {
			return ErrCompanyAlreadyExists
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[c.Email] = c.ID
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	stored := *c
	r.companies[c.ID] = &stored
	return nil
}

func (r *MemoryCompanyRepository) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryCompanyRepository) List(_ context.Context, companyType, status string) ([]*Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Company
	for _, c := range r.companies {
		if companyType != "" && c.Type != companyType {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCompanyRepository) Exists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

// MemoryTokenBlacklist is the in-memory TokenBlacklist.
type MemoryTokenBlacklist struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewMemoryTokenBlacklist creates an empty blacklist.
func NewMemoryTokenBlacklist() *MemoryTokenBlacklist {
	bl := &MemoryTokenBlacklist{tokens: make(map[string]time.Time)}
	go bl.cleanup()
	return bl
}

func (b *MemoryTokenBlacklist) Add(_ context.Context, token string, expiry time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = time.Now().Add(expiry)
	return nil
}

func (b *MemoryTokenBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	expiry, ok := b.tokens[token]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}

// cleanup drops expired entries in the background.
func (b *MemoryTokenBlacklist) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		b.mu.Lock()
		for token, expiry := range b.tokens {
			if now.After(expiry) {
				delete(b.tokens, token)
			}
		}
		b.mu.Unlock()
	}
}
