package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	historyv1 "carbroker/gen/go/carbroker/history/v1"
	"carbroker/services/history-svc/internal/repository"
)

// memoryHistoryRepository backs service tests without Postgres.
type memoryHistoryRepository struct {
	mu       sync.Mutex
	jobs     map[string]*repository.ArchivedJob
	echoJobs map[string]*repository.ArchivedEchoJob
	bookings map[string]*repository.ArchivedBooking
}

func newMemoryHistoryRepository() *memoryHistoryRepository {
	return &memoryHistoryRepository{
		jobs:     make(map[string]*repository.ArchivedJob),
		echoJobs: make(map[string]*repository.ArchivedEchoJob),
		bookings: make(map[string]*repository.ArchivedBooking),
	}
}

func (m *memoryHistoryRepository) SaveJob(_ context.Context, job *repository.ArchivedJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ArchivedAt = time.Now()
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryHistoryRepository) SaveEchoJob(_ context.Context, job *repository.ArchivedEchoJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ArchivedAt = time.Now()
	m.echoJobs[job.ID] = job
	return nil
}

func (m *memoryHistoryRepository) SaveBooking(_ context.Context, b *repository.ArchivedBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ArchivedAt = time.Now()
	m.bookings[b.ID] = b
	return nil
}

func (m *memoryHistoryRepository) ListJobs(_ context.Context, agentID string, _, _ int) ([]*repository.ArchivedJob, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ArchivedJob
	for _, job := range m.jobs {
		if job.AgentID == agentID {
			out = append(out, job)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memoryHistoryRepository) ListBookings(_ context.Context, agentID, status string, _, _ int) ([]*repository.ArchivedBooking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ArchivedBooking
	for _, b := range m.bookings {
		if b.AgentID != agentID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (m *memoryHistoryRepository) Statistics(_ context.Context, companyID string) (*repository.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.Statistics{}
	for _, job := range m.jobs {
		if job.AgentID == companyID {
			stats.ArchivedJobs++
		}
	}
	for _, job := range m.echoJobs {
		if job.RequestedBy == companyID {
			stats.ArchivedEchoJobs++
		}
	}
	for _, b := range m.bookings {
		if b.AgentID == companyID {
			stats.ArchivedBookings++
		}
	}
	return stats, nil
}

func TestArchiveAndListJobs(t *testing.T) {
	repo := newMemoryHistoryRepository()
	s := NewHistoryService(repo, "test")
	ctx := context.Background()

	resp, err := s.ArchiveJob(ctx, &historyv1.ArchiveJobRequest{
		Job: &historyv1.ArchivedJob{
			Id:              "job-1",
			AgentId:         "agent-1",
			CriteriaJson:    `{"pickup_unlocode":"PKKHI"}`,
			ResultCount:     3,
			ExpectedSources: []string{"src-1", "src-2"},
			CreatedAt:       timestamppb.Now(),
			CompletedAt:     timestamppb.Now(),
		},
	})
	if err != nil || !resp.Success {
		t.Fatalf("ArchiveJob = (%+v, %v)", resp, err)
	}

	list, err := s.ListArchivedJobs(ctx, &historyv1.ListArchivedJobsRequest{AgentId: "agent-1"})
	if err != nil {
		t.Fatalf("ListArchivedJobs: %v", err)
	}
	if list.TotalCount != 1 || len(list.Jobs) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Jobs[0].ResultCount != 3 || len(list.Jobs[0].ExpectedSources) != 2 {
		t.Errorf("job round trip broken: %+v", list.Jobs[0])
	}

	// Empty job rejected
	if _, err := s.ArchiveJob(ctx, &historyv1.ArchiveJobRequest{}); err == nil {
		t.Error("nil job must be rejected")
	}
}

func TestArchiveAndListBookings(t *testing.T) {
	repo := newMemoryHistoryRepository()
	s := NewHistoryService(repo, "test")
	ctx := context.Background()

	for _, b := range []*historyv1.ArchivedBooking{
		{Id: "bk-1", AgentId: "agent-1", AgreementId: "agr-1", SourceId: "src-1", SourceRef: "SBR-1", Status: "CANCELLED", CreatedAt: timestamppb.Now(), UpdatedAt: timestamppb.Now()},
		{Id: "bk-2", AgentId: "agent-1", AgreementId: "agr-1", SourceId: "src-1", SourceRef: "SBR-2", Status: "FAILED", CreatedAt: timestamppb.Now(), UpdatedAt: timestamppb.Now()},
	} {
		if _, err := s.ArchiveBooking(ctx, &historyv1.ArchiveBookingRequest{Booking: b}); err != nil {
			t.Fatalf("ArchiveBooking: %v", err)
		}
	}

	all, err := s.ListArchivedBookings(ctx, &historyv1.ListArchivedBookingsRequest{AgentId: "agent-1"})
	if err != nil || all.TotalCount != 2 {
		t.Errorf("all = (%+v, %v)", all, err)
	}

	cancelled, err := s.ListArchivedBookings(ctx, &historyv1.ListArchivedBookingsRequest{AgentId: "agent-1", Status: "CANCELLED"})
	if err != nil || cancelled.TotalCount != 1 {
		t.Errorf("cancelled = (%+v, %v)", cancelled, err)
	}
}

func TestGetStatistics(t *testing.T) {
	repo := newMemoryHistoryRepository()
	s := NewHistoryService(repo, "test")
	ctx := context.Background()

	_, _ = s.ArchiveJob(ctx, &historyv1.ArchiveJobRequest{Job: &historyv1.ArchivedJob{Id: "j1", AgentId: "agent-1", CreatedAt: timestamppb.Now()}})
	_, _ = s.ArchiveEchoJob(ctx, &historyv1.ArchiveEchoJobRequest{Job: &historyv1.ArchivedEchoJob{Id: "e1", RequestedBy: "agent-1", CreatedAt: timestamppb.Now()}})
	_, _ = s.ArchiveBooking(ctx, &historyv1.ArchiveBookingRequest{Booking: &historyv1.ArchivedBooking{Id: "b1", AgentId: "agent-1", CreatedAt: timestamppb.Now(), UpdatedAt: timestamppb.Now()}})

	stats, err := s.GetStatistics(ctx, &historyv1.GetStatisticsRequest{CompanyId: "agent-1"})
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.ArchivedJobs != 1 || stats.ArchivedEchoJobs != 1 || stats.ArchivedBookings != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := s.GetStatistics(ctx, &historyv1.GetStatisticsRequest{}); err == nil {
		t.Error("missing company_id must be rejected")
	}
}
