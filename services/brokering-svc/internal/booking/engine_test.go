package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/idempotency"
	"carbroker/services/brokering-svc/internal/repository"
)

type fixture struct {
	engine    *Engine
	bookings  *repository.MemoryBookingRepository
	registry  *agreement.Registry
	adapters  *adapter.Registry
	companies *repository.MemoryCompanyReader
	agreement *domain.Agreement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	companies := repository.NewMemoryCompanyReader()
	companies.Seed(&domain.Company{ID: "agent-1", Type: domain.CompanyTypeAgent, Status: domain.CompanyStatusActive})
	companies.Seed(&domain.Company{ID: "src-1", Type: domain.CompanyTypeSource, Status: domain.CompanyStatusActive, AdapterKind: domain.AdapterKindMock})

	agreementRepo := repository.NewMemoryAgreementRepository()
	registry := agreement.NewRegistry(agreementRepo, companies, nil)

	a, err := registry.CreateDraft(ctx, "agent-1", "src-1", "AGR-001", nil, nil)
	if err != nil {
		t.Fatalf("create agreement: %v", err)
	}
	for _, st := range []domain.AgreementStatus{domain.AgreementStatusOffered, domain.AgreementStatusAccepted, domain.AgreementStatusActive} {
		if _, err := registry.SetStatus(ctx, a.ID, st); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}

	adapters := adapter.NewRegistry(companies)
	adapters.Install("src-1", adapter.NewMockAdapter("src-1", []string{"PKKHI"}))

	bookings := repository.NewMemoryBookingRepository()
	keys := idempotency.NewStore(&keyRepoAdapter{bookings}, time.Hour)
	monitor := health.NewMonitor(domain.DefaultHealthWindowConfig())

	return &fixture{
		engine:    New(registry, bookings, keys, adapters, monitor, time.Second),
		bookings:  bookings,
		registry:  registry,
		adapters:  adapters,
		companies: companies,
		agreement: a,
	}
}

// keyRepoAdapter exposes the booking repo's key map as the idempotency
// repository, mirroring the memory-mode wiring.
type keyRepoAdapter struct {
	bookings *repository.MemoryBookingRepository
}

func (r *keyRepoAdapter) Get(ctx context.Context, agentID, scope, key string) (*domain.IdempotencyKey, error) {
	return r.bookings.LookupKey(ctx, agentID, scope, key)
}

func (r *keyRepoAdapter) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

func createReq(key string) CreateRequest {
	return CreateRequest{
		AgentID:        "agent-1",
		AgreementRef:   "AGR-001",
		SourceID:       "src-1",
		IdempotencyKey: key,
		RequestID:      "req-1",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	body, err := f.engine.Create(context.Background(), createReq("K1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if resp.Status != domain.BookingStatusRequested {
		t.Errorf("status = %s, want REQUESTED", resp.Status)
	}
	if resp.SupplierBookingRef == "" {
		t.Error("supplier booking ref missing")
	}
	if resp.AgreementRef != "AGR-001" || resp.SourceID != "src-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCreate_MissingIdempotencyKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), createReq(""))
	if !apperror.Is(err, apperror.CodeMissingIdempotency) {
		t.Errorf("want MISSING_IDEMPOTENCY, got %v", err)
	}
}

// Replays return the identical canonical body without a second source call.
func TestCreate_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("replay body differs:\n%s\n%s", first, second)
	}

	// Exactly one booking row exists.
	var resp Response
	_ = json.Unmarshal(first, &resp)
	if _, err := f.bookings.Get(ctx, resp.BookingID); err != nil {
		t.Fatalf("booking row missing: %v", err)
	}
	if _, err := f.bookings.GetBySourceRef(ctx, resp.SupplierBookingRef); err != nil {
		t.Fatalf("booking by source ref missing: %v", err)
	}
}

func TestCreate_DistinctKeysDistinctBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b1, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("K1: %v", err)
	}
	b2, err := f.engine.Create(ctx, createReq("K2"))
	if err != nil {
		t.Fatalf("K2: %v", err)
	}
	if bytes.Equal(b1, b2) {
		t.Error("different keys must produce different bookings")
	}
}

func TestCreate_AgreementInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.registry.SetStatus(ctx, f.agreement.ID, domain.AgreementStatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	_, err := f.engine.Create(ctx, createReq("K1"))
	if !apperror.Is(err, apperror.CodeAgreementInactive) {
		t.Errorf("want AGREEMENT_INACTIVE, got %v", err)
	}
}

func TestCreate_ConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const goroutines = 8
	bodies := make([][]byte, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i], errs[i] = f.engine.Create(ctx, createReq("K-RACE"))
		}(i)
	}
	wg.Wait()

	var reference []byte
	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if reference == nil {
			reference = bodies[i]
		} else if !bytes.Equal(reference, bodies[i]) {
			t.Errorf("goroutine %d observed a different body", i)
		}
	}
}

func TestModifyCancelCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created Response
	_ = json.Unmarshal(body, &created)
	ref := created.SupplierBookingRef

	t.Run("modify passes fields through", func(t *testing.T) {
		body, err := f.engine.Modify(ctx, "agent-1", ref, "AGR-001", map[string]string{"driver_name": "A. Driver"})
		if err != nil {
			t.Fatalf("Modify: %v", err)
		}
		var resp Response
		_ = json.Unmarshal(body, &resp)
		if resp.Status != domain.BookingStatusConfirmed {
			t.Errorf("status = %s, want CONFIRMED from mock", resp.Status)
		}
	})

	t.Run("check reflects stored status", func(t *testing.T) {
		body, err := f.engine.Check(ctx, "agent-1", ref, "AGR-001")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		var resp Response
		_ = json.Unmarshal(body, &resp)
		if resp.SupplierBookingRef != ref {
			t.Errorf("check returned ref %s, want %s", resp.SupplierBookingRef, ref)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		body, err := f.engine.Cancel(ctx, "agent-1", ref, "AGR-001")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		var resp Response
		_ = json.Unmarshal(body, &resp)
		if resp.Status != domain.BookingStatusCancelled {
			t.Errorf("status = %s, want CANCELLED", resp.Status)
		}

		stored, err := f.bookings.GetBySourceRef(ctx, ref)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if stored.Status != domain.BookingStatusCancelled {
			t.Errorf("stored status = %s, want CANCELLED", stored.Status)
		}
	})
}

func TestCommand_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Check(context.Background(), "agent-1", "SBR-UNKNOWN", "AGR-001")
	if !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("want NOT_FOUND, got %v", err)
	}
}

func TestCommand_AgreementRevalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created Response
	_ = json.Unmarshal(body, &created)

	if _, err := f.registry.SetStatus(ctx, f.agreement.ID, domain.AgreementStatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	_, err = f.engine.Cancel(ctx, "agent-1", created.SupplierBookingRef, "AGR-001")
	if !apperror.Is(err, apperror.CodeAgreementInactive) {
		t.Errorf("want AGREEMENT_INACTIVE on suspended agreement, got %v", err)
	}
}

func TestCommand_OtherAgentCannotTouchBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body, err := f.engine.Create(ctx, createReq("K1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created Response
	_ = json.Unmarshal(body, &created)

	_, err = f.engine.Check(ctx, "agent-2", created.SupplierBookingRef, "AGR-001")
	if !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("foreign agent must see NOT_FOUND, got %v", err)
	}
}
