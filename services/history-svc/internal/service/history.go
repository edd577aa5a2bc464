// Package service exposes the archive: the retention sweeper writes rows
// in, agents and admins read them back.
package service

import (
	"context"

	"google.golang.org/protobuf/types/known/timestamppb"

	historyv1 "carbroker/gen/go/carbroker/history/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/telemetry"
	"carbroker/services/history-svc/internal/repository"
)

// HistoryService implements historyv1.HistoryServiceServer.
type HistoryService struct {
	historyv1.UnimplementedHistoryServiceServer
	repo    repository.HistoryRepository
	version string
}

// NewHistoryService creates the service.
func NewHistoryService(repo repository.HistoryRepository, version string) *HistoryService {
	return &HistoryService{repo: repo, version: version}
}

// ArchiveJob stores one availability job leaving the live tables.
func (s *HistoryService) ArchiveJob(ctx context.Context, req *historyv1.ArchiveJobRequest) (*historyv1.ArchiveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.ArchiveJob")
	defer span.End()

	if req.Job == nil || req.Job.Id == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeInvalidParam, "job is required"))
	}

	job := &repository.ArchivedJob{
		ID:              req.Job.Id,
		AgentID:         req.Job.AgentId,
		Criteria:        []byte(req.Job.CriteriaJson),
		ResultCount:     int(req.Job.ResultCount),
		ExpectedSources: req.Job.ExpectedSources,
		CreatedAt:       req.Job.CreatedAt.AsTime(),
	}
	if req.Job.CompletedAt != nil {
		t := req.Job.CompletedAt.AsTime()
		job.CompletedAt = &t
	}

	if err := s.repo.SaveJob(ctx, job); err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to archive job"))
	}
	return &historyv1.ArchiveResponse{Success: true}, nil
}

// ArchiveEchoJob stores one echo campaign leaving the live tables.
func (s *HistoryService) ArchiveEchoJob(ctx context.Context, req *historyv1.ArchiveEchoJobRequest) (*historyv1.ArchiveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.ArchiveEchoJob")
	defer span.End()

	if req.Job == nil || req.Job.Id == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeInvalidParam, "job is required"))
	}

	job := &repository.ArchivedEchoJob{
		ID:              req.Job.Id,
		RequestedBy:     req.Job.RequestedBy,
		ItemCount:       int(req.Job.ItemCount),
		ExpectedSources: req.Job.ExpectedSources,
		CreatedAt:       req.Job.CreatedAt.AsTime(),
	}
	if req.Job.CompletedAt != nil {
		t := req.Job.CompletedAt.AsTime()
		job.CompletedAt = &t
	}

	if err := s.repo.SaveEchoJob(ctx, job); err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to archive echo job"))
	}
	return &historyv1.ArchiveResponse{Success: true}, nil
}

// ArchiveBooking stores one terminal booking leaving the live tables.
func (s *HistoryService) ArchiveBooking(ctx context.Context, req *historyv1.ArchiveBookingRequest) (*historyv1.ArchiveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.ArchiveBooking")
	defer span.End()

	if req.Booking == nil || req.Booking.Id == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeInvalidParam, "booking is required"))
	}

	b := &repository.ArchivedBooking{
		ID:          req.Booking.Id,
		AgentID:     req.Booking.AgentId,
		AgreementID: req.Booking.AgreementId,
		SourceID:    req.Booking.SourceId,
		SourceRef:   req.Booking.SourceRef,
		Status:      req.Booking.Status,
		Snapshot:    []byte(req.Booking.SnapshotJson),
		CreatedAt:   req.Booking.CreatedAt.AsTime(),
		UpdatedAt:   req.Booking.UpdatedAt.AsTime(),
	}

	if err := s.repo.SaveBooking(ctx, b); err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to archive booking"))
	}
	return &historyv1.ArchiveResponse{Success: true}, nil
}

// ListArchivedJobs lists one agent's archived availability jobs.
func (s *HistoryService) ListArchivedJobs(ctx context.Context, req *historyv1.ListArchivedJobsRequest) (*historyv1.ListArchivedJobsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.ListArchivedJobs")
	defer span.End()

	if req.AgentId == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "agent_id is required", "agent_id"))
	}

	jobs, total, err := s.repo.ListJobs(ctx, req.AgentId, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list archived jobs"))
	}

	resp := &historyv1.ListArchivedJobsResponse{TotalCount: total}
	for _, job := range jobs {
		p := &historyv1.ArchivedJob{
			Id:              job.ID,
			AgentId:         job.AgentID,
			CriteriaJson:    string(job.Criteria),
			ResultCount:     int32(job.ResultCount),
			ExpectedSources: job.ExpectedSources,
			CreatedAt:       timestamppb.New(job.CreatedAt),
			ArchivedAt:      timestamppb.New(job.ArchivedAt),
		}
		if job.CompletedAt != nil {
			p.CompletedAt = timestamppb.New(*job.CompletedAt)
		}
		resp.Jobs = append(resp.Jobs, p)
	}
	return resp, nil
}

// ListArchivedBookings lists one agent's archived bookings.
func (s *HistoryService) ListArchivedBookings(ctx context.Context, req *historyv1.ListArchivedBookingsRequest) (*historyv1.ListArchivedBookingsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HistoryService.ListArchivedBookings")
	defer span.End()

	if req.AgentId == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "agent_id is required", "agent_id"))
	}

	bookings, total, err := s.repo.ListBookings(ctx, req.AgentId, req.Status, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list archived bookings"))
	}

	resp := &historyv1.ListArchivedBookingsResponse{TotalCount: total}
	for _, b := range bookings {
		resp.Bookings = append(resp.Bookings, &historyv1.ArchivedBooking{
			Id:           b.ID,
			AgentId:      b.AgentID,
			AgreementId:  b.AgreementID,
			SourceId:     b.SourceID,
			SourceRef:    b.SourceRef,
			Status:       b.Status,
			SnapshotJson: string(b.Snapshot),
			CreatedAt:    timestamppb.New(b.CreatedAt),
			UpdatedAt:    timestamppb.New(b.UpdatedAt),
			ArchivedAt:   timestamppb.New(b.ArchivedAt),
		})
	}
	return resp, nil
}

// GetStatistics aggregates one company's archive.
func (s *HistoryService) GetStatistics(ctx context.Context, req *historyv1.GetStatisticsRequest) (*historyv1.GetStatisticsResponse, error) {
	if req.CompanyId == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "company_id is required", "company_id"))
	}

	stats, err := s.repo.Statistics(ctx, req.CompanyId)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to aggregate statistics"))
	}

	resp := &historyv1.GetStatisticsResponse{
		ArchivedJobs:     stats.ArchivedJobs,
		ArchivedEchoJobs: stats.ArchivedEchoJobs,
		ArchivedBookings: stats.ArchivedBookings,
	}
	if stats.OldestArchivedAt != nil {
		resp.OldestArchivedAt = timestamppb.New(*stats.OldestArchivedAt)
	}
	return resp, nil
}
