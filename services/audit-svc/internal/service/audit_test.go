package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	"carbroker/services/audit-svc/internal/repository"
)

// memoryAuditRepository keeps entries in memory for service tests.
type memoryAuditRepository struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
	failAll bool
}

func (m *memoryAuditRepository) Insert(_ context.Context, e *repository.AuditEntry) error {
	if m.failAll {
		return context.DeadlineExceeded
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAuditRepository) InsertBatch(ctx context.Context, entries []*repository.AuditEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		if err := m.Insert(ctx, e); err == nil {
			inserted++
		}
	}
	return inserted, nil
}

func (m *memoryAuditRepository) Query(_ context.Context, filter *repository.AuditFilter) ([]*repository.AuditEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range m.entries {
		if filter.CompanyID != "" && e.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (m *memoryAuditRepository) CompanyActivity(ctx context.Context, companyID string, _ int) ([]*repository.AuditEntry, error) {
	entries, _, err := m.Query(ctx, &repository.AuditFilter{CompanyID: companyID})
	return entries, err
}

func (m *memoryAuditRepository) Stats(_ context.Context, _ time.Time) (*repository.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.Stats{
		EventsByAction:  make(map[string]int64),
		EventsByService: make(map[string]int64),
		EventsByCompany: make(map[string]int64),
	}
	for _, e := range m.entries {
		stats.TotalEvents++
		if e.Outcome == "FAILURE" {
			stats.FailureCount++
		}
		stats.EventsByAction[e.Action]++
		stats.EventsByService[e.Service]++
		stats.EventsByCompany[e.CompanyID]++
	}
	return stats, nil
}

func testEntry(id, action string) *auditv1.AuditEntry {
	return &auditv1.AuditEntry{
		Id:           id,
		Timestamp:    timestamppb.Now(),
		Service:      "brokering-svc",
		Method:       "Dispatcher.Submit",
		Action:       actionValue(action),
		Outcome:      auditv1.AuditOutcome_AUDIT_OUTCOME_SUCCESS,
		Direction:    auditv1.AuditDirection_AUDIT_DIRECTION_IN,
		UserId:       "agent-1",
		SourceId:     "src-1",
		AgreementRef: "AGR-001",
	}
}

func TestLogEvent(t *testing.T) {
	repo := &memoryAuditRepository{}
	s := NewAuditService(repo, "test")
	ctx := context.Background()

	resp, err := s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: testEntry("e1", "DISPATCH")})
	if err != nil || !resp.Success {
		t.Fatalf("LogEvent = (%+v, %v)", resp, err)
	}
	if len(repo.entries) != 1 || repo.entries[0].Action != "DISPATCH" {
		t.Errorf("stored = %+v", repo.entries)
	}
	if repo.entries[0].Direction != "IN" {
		t.Errorf("direction = %s", repo.entries[0].Direction)
	}

	// A nil entry is an input error
	if _, err := s.LogEvent(ctx, &auditv1.LogEventRequest{}); err == nil {
		t.Error("nil entry must be rejected")
	}
}

func TestLogEvent_SinkFailureNeverPropagates(t *testing.T) {
	repo := &memoryAuditRepository{failAll: true}
	s := NewAuditService(repo, "test")

	resp, err := s.LogEvent(context.Background(), &auditv1.LogEventRequest{Entry: testEntry("e1", "BOOK")})
	if err != nil {
		t.Fatalf("sink failure surfaced as request error: %v", err)
	}
	if resp.Success {
		t.Error("success should be false on sink failure")
	}
}

func TestLogEventBatch(t *testing.T) {
	repo := &memoryAuditRepository{}
	s := NewAuditService(repo, "test")

	resp, err := s.LogEventBatch(context.Background(), &auditv1.LogEventBatchRequest{
		Entries: []*auditv1.AuditEntry{
			testEntry("e1", "DISPATCH"),
			testEntry("e2", "BOOK"),
			testEntry("e3", "ECHO"),
		},
	})
	if err != nil {
		t.Fatalf("LogEventBatch: %v", err)
	}
	if resp.LoggedCount != 3 || resp.FailedCount != 0 {
		t.Errorf("logged/failed = %d/%d", resp.LoggedCount, resp.FailedCount)
	}
}

func TestQueryEvents(t *testing.T) {
	repo := &memoryAuditRepository{}
	s := NewAuditService(repo, "test")
	ctx := context.Background()

	_, _ = s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: testEntry("e1", "DISPATCH")})
	_, _ = s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: testEntry("e2", "BOOK")})

	resp, err := s.QueryEvents(ctx, &auditv1.QueryEventsRequest{Action: "BOOK"})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Entries) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	entry := resp.Entries[0]
	if entry.Action != auditv1.AuditAction_AUDIT_ACTION_BOOK {
		t.Errorf("action round trip broken: %v", entry.Action)
	}
	if entry.AgreementRef != "AGR-001" {
		t.Errorf("agreement ref lost: %v", entry.AgreementRef)
	}
}

func TestGetCompanyActivity(t *testing.T) {
	repo := &memoryAuditRepository{}
	s := NewAuditService(repo, "test")
	ctx := context.Background()

	_, _ = s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: testEntry("e1", "DISPATCH")})

	resp, err := s.GetCompanyActivity(ctx, &auditv1.GetCompanyActivityRequest{CompanyId: "agent-1"})
	if err != nil || len(resp.Entries) != 1 {
		t.Errorf("activity = (%d, %v)", len(resp.Entries), err)
	}

	if _, err := s.GetCompanyActivity(ctx, &auditv1.GetCompanyActivityRequest{}); err == nil {
		t.Error("missing company_id must be rejected")
	}
}

func TestGetStats(t *testing.T) {
	repo := &memoryAuditRepository{}
	s := NewAuditService(repo, "test")
	ctx := context.Background()

	_, _ = s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: testEntry("e1", "DISPATCH")})
	failed := testEntry("e2", "BOOK")
	failed.Outcome = auditv1.AuditOutcome_AUDIT_OUTCOME_FAILURE
	_, _ = s.LogEvent(ctx, &auditv1.LogEventRequest{Entry: failed})

	resp, err := s.GetStats(ctx, &auditv1.GetStatsRequest{})
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if resp.TotalEvents != 2 || resp.FailureCount != 1 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.WindowHours != 24 {
		t.Errorf("default window = %d, want 24", resp.WindowHours)
	}
}

func TestActionRoundTrip(t *testing.T) {
	for _, name := range []string{"CREATE", "READ", "UPDATE", "DELETE", "LOGIN", "LOGOUT", "DISPATCH", "BOOK", "TRANSITION", "SYNC", "ECHO", "ANALYZE"} {
		if got := actionName(actionValue(name)); got != name {
			t.Errorf("action %s round trips to %s", name, got)
		}
	}
	for _, name := range []string{"SUCCESS", "FAILURE", "DENIED"} {
		if got := outcomeName(outcomeValue(name)); got != name {
			t.Errorf("outcome %s round trips to %s", name, got)
		}
	}
}
