// Package idempotency wraps the (agentID, scope, key) store consulted by
// the booking engine before any source contact. The committing write of a
// key happens inside BookingRepository.CreateWithKey so readers never see a
// key without its booking.
package idempotency

import (
	"context"
	"errors"
	"time"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/services/brokering-svc/internal/repository"
)

// ScopeBookingCreate is the scope under which Create keys live.
const ScopeBookingCreate = repository.BookingCreateScope

// Store reads committed keys and sweeps expired ones.
type Store struct {
	repo repository.IdempotencyRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a store with the configured key TTL.
func NewStore(repo repository.IdempotencyRepository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyKeyTTL
	}
	return &Store{repo: repo, ttl: ttl, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// TTL returns the configured retention for new keys.
func (s *Store) TTL() time.Duration { return s.ttl }

// Lookup returns the committed key for (agentID, scope, key), or nil when
// absent or expired. An expired key means first execution again.
func (s *Store) Lookup(ctx context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error) {
	k, err := s.repo.Get(ctx, agentID, scope, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to look up idempotency key")
	}
	if k.Expired(s.now()) {
		return nil, nil
	}
	return k, nil
}

// NewKey builds the key row committed alongside a booking.
func (s *Store) NewKey(agentID, key, requestHash string) *domain.IdempotencyKey {
	now := s.now()
	return &domain.IdempotencyKey{
		Key:         key,
		AgentID:     agentID,
		RequestHash: requestHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
}

// SweepExpired deletes keys past their TTL; called by the retention sweeper.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
