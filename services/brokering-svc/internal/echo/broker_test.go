package echo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"carbroker/pkg/domain"
	"carbroker/services/brokering-svc/internal/adapter"
	"carbroker/services/brokering-svc/internal/agreement"
	"carbroker/services/brokering-svc/internal/health"
	"carbroker/services/brokering-svc/internal/repository"
)

type fixture struct {
	broker    *Broker
	adapters  *adapter.Registry
	registry  *agreement.Registry
	companies *repository.MemoryCompanyReader
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	companies := repository.NewMemoryCompanyReader()
	companies.Seed(&domain.Company{ID: "agent-1", Type: domain.CompanyTypeAgent, Status: domain.CompanyStatusActive})

	agreementRepo := repository.NewMemoryAgreementRepository()
	registry := agreement.NewRegistry(agreementRepo, companies, nil)
	adapters := adapter.NewRegistry(companies)
	monitor := health.NewMonitor(domain.DefaultHealthWindowConfig())

	if cfg.Concurrency == 0 {
		cfg = DefaultConfig()
		cfg.PerCallTimeout = 500 * time.Millisecond
		cfg.SLA = 5 * time.Second
		cfg.WatchInterval = 20 * time.Millisecond
	}

	return &fixture{
		broker:    New(cfg, registry, adapters, repository.NewMemoryEchoRepository(), monitor),
		adapters:  adapters,
		registry:  registry,
		companies: companies,
	}
}

func (f *fixture) addSource(t *testing.T, sourceID, ref string) *adapter.MockAdapter {
	t.Helper()
	ctx := context.Background()

	f.companies.Seed(&domain.Company{ID: sourceID, Type: domain.CompanyTypeSource, Status: domain.CompanyStatusActive, AdapterKind: domain.AdapterKindMock})
	a, err := f.registry.CreateDraft(ctx, "agent-1", sourceID, ref, nil, nil)
	if err != nil {
		t.Fatalf("create agreement: %v", err)
	}
	for _, st := range []domain.AgreementStatus{domain.AgreementStatusOffered, domain.AgreementStatusAccepted, domain.AgreementStatusActive} {
		if _, err := f.registry.SetStatus(ctx, a.ID, st); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}

	mock := adapter.NewMockAdapter(sourceID, nil)
	f.adapters.Install(sourceID, mock)
	return mock
}

func TestSubmitAndDrain(t *testing.T) {
	f := newFixture(t, Config{})
	f.addSource(t, "src-1", "AGR-001")
	f.addSource(t, "src-2", "AGR-002")
	ctx := context.Background()

	sub, err := f.broker.Submit(ctx, "agent-1", "", "ping", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.TotalExpected != 2 {
		t.Errorf("totalExpected = %d, want 2", sub.TotalExpected)
	}
	if sub.ExpiresUnixMs <= time.Now().UnixMilli() {
		t.Error("expiry should be in the future")
	}

	var sinceSeq int64
	var all []*domain.EchoItem
	deadline := time.Now().Add(10 * time.Second)
	for {
		results, err := f.broker.GetResults(ctx, sub.JobID, sinceSeq, 500)
		if err != nil {
			t.Fatalf("GetResults: %v", err)
		}
		all = append(all, results.NewItems...)
		sinceSeq = results.LastSeq
		if results.Status == domain.JobStatusComplete && len(results.NewItems) == 0 {
			if results.ResponsesReceived != 2 {
				t.Errorf("responsesReceived = %d, want 2", results.ResponsesReceived)
			}
			if results.AggregateEtag == "" {
				t.Error("aggregate etag missing")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("echo job never completed")
		}
	}

	if len(all) != 2 {
		t.Fatalf("items = %d, want 2", len(all))
	}
	var echoed map[string]string
	if err := json.Unmarshal(all[0].Echoed, &echoed); err != nil {
		t.Fatalf("echoed payload: %v", err)
	}
	if echoed["message"] != "ping" || echoed["k"] != "v" {
		t.Errorf("echoed = %v", echoed)
	}
}

func TestSubmit_RequiresMessage(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.broker.Submit(context.Background(), "agent-1", "", "", nil); err == nil {
		t.Error("empty message must be rejected")
	}
}

func TestSubmit_NoAgreementsCompletesImmediately(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	sub, err := f.broker.Submit(ctx, "agent-1", "", "ping", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.TotalExpected != 0 {
		t.Errorf("totalExpected = %d, want 0", sub.TotalExpected)
	}

	results, err := f.broker.GetResults(ctx, sub.JobID, 0, 0)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if results.Status != domain.JobStatusComplete {
		t.Errorf("status = %s, want immediate COMPLETE", results.Status)
	}
}

func TestTimedOutSourcesReported(t *testing.T) {
	f := newFixture(t, Config{})
	f.addSource(t, "src-1", "AGR-001")
	slow := f.addSource(t, "src-2", "AGR-002")
	slow.SetLatency(2 * time.Second)
	ctx := context.Background()

	sub, err := f.broker.Submit(ctx, "agent-1", "", "ping", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var sinceSeq int64
	for {
		results, err := f.broker.GetResults(ctx, sub.JobID, sinceSeq, 500)
		if err != nil {
			t.Fatalf("GetResults: %v", err)
		}
		sinceSeq = results.LastSeq
		if results.Status == domain.JobStatusComplete && len(results.NewItems) == 0 {
			if len(results.TimedOutSources) != 1 || results.TimedOutSources[0] != "src-2" {
				t.Errorf("timedOutSources = %v, want [src-2]", results.TimedOutSources)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("echo job never completed")
		}
	}
}

func TestWatchStreamsUntilComplete(t *testing.T) {
	f := newFixture(t, Config{})
	f.addSource(t, "src-1", "AGR-001")
	ctx := context.Background()

	sub, err := f.broker.Submit(ctx, "agent-1", "", "ping", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var pages []*Results
	err = f.broker.Watch(ctx, sub.JobID, 0, func(r *Results) error {
		pages = append(pages, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(pages) == 0 {
		t.Fatal("watch emitted no pages")
	}
	last := pages[len(pages)-1]
	if last.Status != domain.JobStatusComplete {
		t.Errorf("final page status = %s, want COMPLETE", last.Status)
	}

	// Pages never repeat items: total equals the drained count.
	total := 0
	for _, p := range pages {
		total += len(p.NewItems)
	}
	if total != 1 {
		t.Errorf("watch delivered %d items, want 1", total)
	}
}
