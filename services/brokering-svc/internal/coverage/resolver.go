// Package coverage implements the coverage resolver: effective pickup and
// dropoff eligibility per agreement, computed as (base ∪ allow) \ deny, and
// the base-set synchronization against a source's locations endpoint.
package coverage

import (
	"context"
	"errors"
	"sort"

	"carbroker/pkg/apperror"
	"carbroker/pkg/cache"
	"carbroker/pkg/domain"
	"carbroker/pkg/logger"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/repository"
)

// Resolver answers isAllowed/effective queries and syncs base coverage.
type Resolver struct {
	repo       repository.CoverageRepository
	agreements repository.AgreementRepository
	adapters   *adapter.Registry
	cache      *cache.CoverageCache // nil-able
}

// NewResolver creates a resolver.
func NewResolver(repo repository.CoverageRepository, agreements repository.AgreementRepository, adapters *adapter.Registry, cc *cache.CoverageCache) *Resolver {
	return &Resolver{
		repo:       repo,
		agreements: agreements,
		adapters:   adapters,
		cache:      cc,
	}
}

// IsAllowed reports whether unlocode is eligible under the agreement: an
// override row wins unconditionally; absent a row, the source's base set
// decides.
func (r *Resolver) IsAllowed(ctx context.Context, agreementID, unlocode string) (bool, error) {
	if r.cache != nil {
		if allowed, found, err := r.cache.Contains(ctx, agreementID, unlocode); err == nil && found {
			return allowed, nil
		}
	}

	overrides, err := r.repo.Overrides(ctx, agreementID)
	if err != nil {
		return false, apperror.Wrap(err, apperror.CodeInternal, "failed to load overrides")
	}
	if decision, ok := overrides[unlocode]; ok {
		return decision == domain.OverrideAllow, nil
	}

	a, err := r.agreements.Get(ctx, agreementID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperror.New(apperror.CodeNotFound, "agreement not found")
		}
		return false, apperror.Wrap(err, apperror.CodeInternal, "failed to load agreement")
	}

	base, err := r.repo.BaseCoverage(ctx, a.SourceID)
	if err != nil {
		return false, apperror.Wrap(err, apperror.CodeInternal, "failed to load base coverage")
	}
	for _, u := range base {
		if u == unlocode {
			return true, nil
		}
	}
	return false, nil
}

// Effective returns the agreement's full eligible set, sorted.
func (r *Resolver) Effective(ctx context.Context, agreementID string) ([]string, error) {
	if r.cache != nil {
		if entry, found, err := r.cache.Get(ctx, agreementID); err == nil && found {
			return entry.Unlocodes, nil
		}
	}

	a, err := r.agreements.Get(ctx, agreementID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "agreement not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load agreement")
	}

	base, err := r.repo.BaseCoverage(ctx, a.SourceID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load base coverage")
	}
	overrides, err := r.repo.Overrides(ctx, agreementID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load overrides")
	}

	set := make(map[string]struct{}, len(base))
	for _, u := range base {
		set[u] = struct{}{}
	}
	for u, decision := range overrides {
		switch decision {
		case domain.OverrideAllow:
			set[u] = struct{}{}
		case domain.OverrideDeny:
			delete(set, u)
		}
	}

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)

	if r.cache != nil {
		if err := r.cache.Set(ctx, agreementID, a.SourceID, out, 0); err != nil {
			logger.Log.Warn("Failed to cache effective coverage", "agreement_id", agreementID, "error", err)
		}
	}
	return out, nil
}

// UpsertOverride sets an allow/deny row and invalidates the cached set.
func (r *Resolver) UpsertOverride(ctx context.Context, agreementID, unlocode string, allowed bool) error {
	decision := domain.OverrideDeny
	if allowed {
		decision = domain.OverrideAllow
	}
	if err := r.repo.UpsertOverride(ctx, agreementID, unlocode, decision); err != nil {
		if errors.Is(err, repository.ErrUnknownLocode) {
			return apperror.New(apperror.CodeInvalidParam, "unlocode not present in location catalog").WithField("unlocode")
		}
		return apperror.Wrap(err, apperror.CodeInternal, "failed to upsert override")
	}
	r.invalidate(ctx, agreementID)
	return nil
}

// RemoveOverride deletes an override row, reverting to base coverage.
func (r *Resolver) RemoveOverride(ctx context.Context, agreementID, unlocode string) error {
	if err := r.repo.RemoveOverride(ctx, agreementID, unlocode); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to remove override")
	}
	r.invalidate(ctx, agreementID)
	return nil
}

func (r *Resolver) invalidate(ctx context.Context, agreementID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, agreementID); err != nil {
		logger.Log.Warn("Failed to invalidate coverage cache", "agreement_id", agreementID, "error", err)
	}
}

// SyncSourceCoverage fetches the source's current locations, drops codes
// unknown to the catalog, and replaces the stored base set. Every cached
// effective set is invalidated since base coverage feeds all of a source's
// agreements.
func (r *Resolver) SyncSourceCoverage(ctx context.Context, sourceID string) (domain.CoverageSyncResult, error) {
	var zero domain.CoverageSyncResult

	src, err := r.adapters.For(ctx, sourceID)
	if err != nil {
		return zero, err
	}

	locations, err := src.Locations(ctx)
	if err != nil {
		return zero, apperror.Wrap(err, apperror.CodeSourceError, "failed to fetch source locations")
	}

	known, err := r.repo.KnownLocodes(ctx, locations)
	if err != nil {
		return zero, apperror.Wrap(err, apperror.CodeInternal, "failed to check catalog")
	}

	kept := make([]string, 0, len(locations))
	skipped := 0
	seen := make(map[string]struct{}, len(locations))
	for _, u := range locations {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if known[u] {
			kept = append(kept, u)
		} else {
			skipped++
		}
	}
	if skipped > 0 {
		logger.Log.Info("Skipped unknown unlocodes during coverage sync",
			"source_id", sourceID, "skipped", skipped)
	}

	result, err := r.repo.ReplaceBaseCoverage(ctx, sourceID, kept)
	if err != nil {
		return zero, apperror.Wrap(err, apperror.CodeInternal, "failed to replace base coverage")
	}

	if r.cache != nil {
		if _, err := r.cache.InvalidateAll(ctx); err != nil {
			logger.Log.Warn("Failed to invalidate coverage cache after sync", "source_id", sourceID, "error", err)
		}
	}
	return result, nil
}

// ListByAgreement returns the effective set as (unlocode, allowed=true)
// rows, the §6.4 projection.
func (r *Resolver) ListByAgreement(ctx context.Context, agreementID string) ([]string, error) {
	return r.Effective(ctx, agreementID)
}
