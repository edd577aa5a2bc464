package coverage

import (
	"context"
	"reflect"
	"testing"

	"carbroker/pkg/domain"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/repository"
)

func fixture(t *testing.T) (*Resolver, *repository.MemoryCoverageRepository, *repository.MemoryAgreementRepository, *adapter.Registry, *repository.MemoryCompanyReader) {
	t.Helper()

	companies := repository.NewMemoryCompanyReader()
	companies.Seed(&domain.Company{ID: "src-1", Type: domain.CompanyTypeSource, Status: domain.CompanyStatusActive, AdapterKind: domain.AdapterKindMock})

	coverageRepo := repository.NewMemoryCoverageRepository()
	coverageRepo.SeedCatalog("GBMAN", "GBGLA", "USNYC", "PKKHI", "PKLHE")

	agreements := repository.NewMemoryAgreementRepository()
	a := &domain.Agreement{ID: "agr-1", AgentID: "agent-1", SourceID: "src-1", AgreementRef: "AGR-001", Status: domain.AgreementStatusActive}
	if err := agreements.Create(context.Background(), a); err != nil {
		t.Fatalf("seed agreement: %v", err)
	}

	adapters := adapter.NewRegistry(companies)

	r := NewResolver(coverageRepo, agreements, adapters, nil)
	return r, coverageRepo, agreements, adapters, companies
}

func TestIsAllowed_BaseAndOverrides(t *testing.T) {
	r, repo, _, _, _ := fixture(t)
	ctx := context.Background()

	if _, err := repo.ReplaceBaseCoverage(ctx, "src-1", []string{"GBMAN", "GBGLA"}); err != nil {
		t.Fatalf("seed base: %v", err)
	}

	// Base decides when no override row exists.
	if ok, _ := r.IsAllowed(ctx, "agr-1", "GBMAN"); !ok {
		t.Error("GBMAN in base should be allowed")
	}
	if ok, _ := r.IsAllowed(ctx, "agr-1", "USNYC"); ok {
		t.Error("USNYC not in base should be denied")
	}

	// Override wins unconditionally over base.
	if err := r.UpsertOverride(ctx, "agr-1", "GBMAN", false); err != nil {
		t.Fatalf("deny override: %v", err)
	}
	if err := r.UpsertOverride(ctx, "agr-1", "USNYC", true); err != nil {
		t.Fatalf("allow override: %v", err)
	}
	if ok, _ := r.IsAllowed(ctx, "agr-1", "GBMAN"); ok {
		t.Error("denied GBMAN should be disallowed despite base")
	}
	if ok, _ := r.IsAllowed(ctx, "agr-1", "USNYC"); !ok {
		t.Error("allowed USNYC should be allowed despite base")
	}

	// Removing the override reverts to base.
	if err := r.RemoveOverride(ctx, "agr-1", "GBMAN"); err != nil {
		t.Fatalf("remove override: %v", err)
	}
	if ok, _ := r.IsAllowed(ctx, "agr-1", "GBMAN"); !ok {
		t.Error("GBMAN should be allowed again after override removal")
	}
}

func TestEffective(t *testing.T) {
	r, repo, _, _, _ := fixture(t)
	ctx := context.Background()

	if _, err := repo.ReplaceBaseCoverage(ctx, "src-1", []string{"GBMAN", "GBGLA"}); err != nil {
		t.Fatalf("seed base: %v", err)
	}
	if err := r.UpsertOverride(ctx, "agr-1", "GBMAN", false); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if err := r.UpsertOverride(ctx, "agr-1", "USNYC", true); err != nil {
		t.Fatalf("allow: %v", err)
	}

	got, err := r.Effective(ctx, "agr-1")
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	want := []string{"GBGLA", "USNYC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("effective = %v, want %v", got, want)
	}
}

// The effective set must be identical whether computed from scratch or
// incrementally after each upsert.
func TestEffective_IncrementalEqualsFromScratch(t *testing.T) {
	ctx := context.Background()

	build := func(ops func(r *Resolver)) []string {
		r, repo, _, _, _ := fixture(t)
		if _, err := repo.ReplaceBaseCoverage(ctx, "src-1", []string{"GBMAN", "GBGLA", "PKKHI"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		ops(r)
		got, err := r.Effective(ctx, "agr-1")
		if err != nil {
			t.Fatalf("Effective: %v", err)
		}
		return got
	}

	incremental := build(func(r *Resolver) {
		_ = r.UpsertOverride(ctx, "agr-1", "GBMAN", false)
		_, _ = r.Effective(ctx, "agr-1") // interleaved read
		_ = r.UpsertOverride(ctx, "agr-1", "USNYC", true)
		_, _ = r.Effective(ctx, "agr-1")
		_ = r.UpsertOverride(ctx, "agr-1", "GBMAN", true) // flip deny to allow
	})
	scratch := build(func(r *Resolver) {
		_ = r.UpsertOverride(ctx, "agr-1", "USNYC", true)
		_ = r.UpsertOverride(ctx, "agr-1", "GBMAN", true)
	})

	if !reflect.DeepEqual(incremental, scratch) {
		t.Errorf("incremental %v != from-scratch %v", incremental, scratch)
	}
}

func TestUpsertOverride_UnknownLocode(t *testing.T) {
	r, _, _, _, _ := fixture(t)
	err := r.UpsertOverride(context.Background(), "agr-1", "XXXXX", true)
	if err == nil {
		t.Error("unknown unlocode should be rejected")
	}
}

func TestSyncSourceCoverage(t *testing.T) {
	r, repo, _, adapters, _ := fixture(t)
	ctx := context.Background()

	// The source reports three catalog codes, one unknown code, and one
	// duplicate; sync keeps the known set and skips the rest silently.
	adapters.Install("src-1", adapter.NewMockAdapter("src-1", []string{"GBMAN", "GBGLA", "ZZZZZ", "GBMAN", "PKKHI"}))

	result, err := r.SyncSourceCoverage(ctx, "src-1")
	if err != nil {
		t.Fatalf("SyncSourceCoverage: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("total = %d, want 3 (unknown and duplicate dropped)", result.Total)
	}
	if result.Added != 3 {
		t.Errorf("added = %d, want 3", result.Added)
	}

	base, _ := repo.BaseCoverage(ctx, "src-1")
	want := []string{"GBGLA", "GBMAN", "PKKHI"}
	if !reflect.DeepEqual(base, want) {
		t.Errorf("base = %v, want %v", base, want)
	}

	// Second sync with a shrunk set reports removals.
	adapters.Install("src-1", adapter.NewMockAdapter("src-1", []string{"GBMAN"}))
	result, err = r.SyncSourceCoverage(ctx, "src-1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Removed != 2 || result.Total != 1 {
		t.Errorf("second sync = %+v, want removed=2 total=1", result)
	}
}
