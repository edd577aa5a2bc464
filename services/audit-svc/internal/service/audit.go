// Package service exposes the audit sink and query surface. Writers (the
// other services' pkg/audit clients) batch entries in; readers query by
// filter. A write failure is reported per entry, never as a request error.
package service

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/logger"
	"carbroker/pkg/telemetry"
	"carbroker/services/audit-svc/internal/repository"
)

// AuditService implements auditv1.AuditServiceServer.
type AuditService struct {
	auditv1.UnimplementedAuditServiceServer
	repo    repository.AuditRepository
	version string
}

// NewAuditService creates the service.
func NewAuditService(repo repository.AuditRepository, version string) *AuditService {
	return &AuditService{repo: repo, version: version}
}

// LogEvent stores one entry.
func (s *AuditService) LogEvent(ctx context.Context, req *auditv1.LogEventRequest) (*auditv1.LogEventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditService.LogEvent")
	defer span.End()

	if req.Entry == nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeInvalidParam, "entry is required"))
	}

	if err := s.repo.Insert(ctx, protoToEntry(req.Entry)); err != nil {
		logger.Log.Warn("Failed to insert audit entry", "entry_id", req.Entry.Id, "error", err)
		return &auditv1.LogEventResponse{Success: false}, nil
	}
	return &auditv1.LogEventResponse{Success: true}, nil
}

// LogEventBatch stores a batch; per-entry failures are counted, never
// propagated.
func (s *AuditService) LogEventBatch(ctx context.Context, req *auditv1.LogEventBatchRequest) (*auditv1.LogEventBatchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditService.LogEventBatch")
	defer span.End()

	entries := make([]*repository.AuditEntry, 0, len(req.Entries))
	for _, p := range req.Entries {
		entries = append(entries, protoToEntry(p))
	}

	inserted, err := s.repo.InsertBatch(ctx, entries)
	if err != nil {
		logger.Log.Warn("Audit batch insert failed", "error", err)
	}

	return &auditv1.LogEventBatchResponse{
		LoggedCount: int32(inserted),
		FailedCount: int32(len(entries) - inserted),
	}, nil
}

// QueryEvents reads entries by filter.
func (s *AuditService) QueryEvents(ctx context.Context, req *auditv1.QueryEventsRequest) (*auditv1.QueryEventsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditService.QueryEvents")
	defer span.End()

	filter := &repository.AuditFilter{
		Service:   req.Service,
		Method:    req.Method,
		Action:    req.Action,
		Outcome:   req.Outcome,
		CompanyID: req.CompanyId,
		SourceID:  req.SourceId,
		Limit:     int(req.Limit),
		Offset:    int(req.Offset),
	}
	if req.StartTime != nil {
		t := req.StartTime.AsTime()
		filter.StartTime = &t
	}
	if req.EndTime != nil {
		t := req.EndTime.AsTime()
		filter.EndTime = &t
	}

	entries, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to query audit entries"))
	}

	resp := &auditv1.QueryEventsResponse{TotalCount: total}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryToProto(e))
	}
	return resp, nil
}

// GetCompanyActivity reads one company's recent entries.
func (s *AuditService) GetCompanyActivity(ctx context.Context, req *auditv1.GetCompanyActivityRequest) (*auditv1.GetCompanyActivityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditService.GetCompanyActivity")
	defer span.End()

	if req.CompanyId == "" {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "company_id is required", "company_id"))
	}

	entries, err := s.repo.CompanyActivity(ctx, req.CompanyId, int(req.Limit))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read company activity"))
	}

	resp := &auditv1.GetCompanyActivityResponse{}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryToProto(e))
	}
	return resp, nil
}

// GetStats aggregates the last windowHours of entries.
func (s *AuditService) GetStats(ctx context.Context, req *auditv1.GetStatsRequest) (*auditv1.GetStatsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditService.GetStats")
	defer span.End()

	windowHours := req.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)

	stats, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to aggregate audit stats"))
	}

	return &auditv1.GetStatsResponse{
		TotalEvents:     stats.TotalEvents,
		FailureCount:    stats.FailureCount,
		EventsByAction:  stats.EventsByAction,
		EventsByService: stats.EventsByService,
		EventsByCompany: stats.EventsByCompany,
		AvgDurationMs:   stats.AvgDurationMs,
		WindowHours:     windowHours,
		DistinctAgents:  stats.DistinctAgents,
		DistinctSources: stats.DistinctSources,
	}, nil
}

// ==================== conversions ====================

func protoToEntry(p *auditv1.AuditEntry) *repository.AuditEntry {
	e := &repository.AuditEntry{
		ID:           p.Id,
		Service:      p.Service,
		Method:       p.Method,
		Action:       actionName(p.Action),
		Outcome:      outcomeName(p.Outcome),
		Direction:    directionName(p.Direction),
		CompanyID:    p.UserId,
		CompanyName:  p.Username,
		SourceID:     p.SourceId,
		AgreementRef: p.AgreementRef,
		ClientIP:     p.ClientIp,
		UserAgent:    p.UserAgent,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceId,
		RequestID:    p.RequestId,
		DurationMs:   p.DurationMs,
		ErrorCode:    p.ErrorCode,
		ErrorMessage: p.ErrorMessage,
		Metadata:     p.Metadata,
	}
	if p.Timestamp != nil {
		e.Timestamp = p.Timestamp.AsTime()
	} else {
		e.Timestamp = time.Now()
	}
	return e
}

func entryToProto(e *repository.AuditEntry) *auditv1.AuditEntry {
	return &auditv1.AuditEntry{
		Id:           e.ID,
		Timestamp:    timestamppb.New(e.Timestamp),
		Service:      e.Service,
		Method:       e.Method,
		Action:       actionValue(e.Action),
		Outcome:      outcomeValue(e.Outcome),
		Direction:    directionValue(e.Direction),
		UserId:       e.CompanyID,
		Username:     e.CompanyName,
		SourceId:     e.SourceID,
		AgreementRef: e.AgreementRef,
		ClientIp:     e.ClientIP,
		UserAgent:    e.UserAgent,
		ResourceType: e.ResourceType,
		ResourceId:   e.ResourceID,
		RequestId:    e.RequestID,
		DurationMs:   e.DurationMs,
		ErrorCode:    e.ErrorCode,
		ErrorMessage: e.ErrorMessage,
		Metadata:     e.Metadata,
	}
}

func actionName(a auditv1.AuditAction) string {
	switch a {
	case auditv1.AuditAction_AUDIT_ACTION_CREATE:
		return "CREATE"
	case auditv1.AuditAction_AUDIT_ACTION_READ:
		return "READ"
	case auditv1.AuditAction_AUDIT_ACTION_UPDATE:
		return "UPDATE"
	case auditv1.AuditAction_AUDIT_ACTION_DELETE:
		return "DELETE"
	case auditv1.AuditAction_AUDIT_ACTION_LOGIN:
		return "LOGIN"
	case auditv1.AuditAction_AUDIT_ACTION_LOGOUT:
		return "LOGOUT"
	case auditv1.AuditAction_AUDIT_ACTION_DISPATCH:
		return "DISPATCH"
	case auditv1.AuditAction_AUDIT_ACTION_BOOK:
		return "BOOK"
	case auditv1.AuditAction_AUDIT_ACTION_TRANSITION:
		return "TRANSITION"
	case auditv1.AuditAction_AUDIT_ACTION_SYNC:
		return "SYNC"
	case auditv1.AuditAction_AUDIT_ACTION_ECHO:
		return "ECHO"
	case auditv1.AuditAction_AUDIT_ACTION_ANALYZE:
		return "ANALYZE"
	default:
		return "UNKNOWN"
	}
}

func actionValue(name string) auditv1.AuditAction {
	switch name {
	case "CREATE":
		return auditv1.AuditAction_AUDIT_ACTION_CREATE
	case "READ":
		return auditv1.AuditAction_AUDIT_ACTION_READ
	case "UPDATE":
		return auditv1.AuditAction_AUDIT_ACTION_UPDATE
	case "DELETE":
		return auditv1.AuditAction_AUDIT_ACTION_DELETE
	case "LOGIN":
		return auditv1.AuditAction_AUDIT_ACTION_LOGIN
	case "LOGOUT":
		return auditv1.AuditAction_AUDIT_ACTION_LOGOUT
	case "DISPATCH":
		return auditv1.AuditAction_AUDIT_ACTION_DISPATCH
	case "BOOK":
		return auditv1.AuditAction_AUDIT_ACTION_BOOK
	case "TRANSITION":
		return auditv1.AuditAction_AUDIT_ACTION_TRANSITION
	case "SYNC":
		return auditv1.AuditAction_AUDIT_ACTION_SYNC
	case "ECHO":
		return auditv1.AuditAction_AUDIT_ACTION_ECHO
	case "ANALYZE":
		return auditv1.AuditAction_AUDIT_ACTION_ANALYZE
	default:
		return auditv1.AuditAction_AUDIT_ACTION_UNSPECIFIED
	}
}

func outcomeName(o auditv1.AuditOutcome) string {
	switch o {
	case auditv1.AuditOutcome_AUDIT_OUTCOME_SUCCESS:
		return "SUCCESS"
	case auditv1.AuditOutcome_AUDIT_OUTCOME_FAILURE:
		return "FAILURE"
	case auditv1.AuditOutcome_AUDIT_OUTCOME_DENIED:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

func outcomeValue(name string) auditv1.AuditOutcome {
	switch name {
	case "SUCCESS":
		return auditv1.AuditOutcome_AUDIT_OUTCOME_SUCCESS
	case "FAILURE":
		return auditv1.AuditOutcome_AUDIT_OUTCOME_FAILURE
	case "DENIED":
		return auditv1.AuditOutcome_AUDIT_OUTCOME_DENIED
	default:
		return auditv1.AuditOutcome_AUDIT_OUTCOME_UNSPECIFIED
	}
}

func directionName(d auditv1.AuditDirection) string {
	switch d {
	case auditv1.AuditDirection_AUDIT_DIRECTION_IN:
		return "IN"
	case auditv1.AuditDirection_AUDIT_DIRECTION_OUT:
		return "OUT"
	default:
		return ""
	}
}

func directionValue(name string) auditv1.AuditDirection {
	switch name {
	case "IN":
		return auditv1.AuditDirection_AUDIT_DIRECTION_IN
	case "OUT":
		return auditv1.AuditDirection_AUDIT_DIRECTION_OUT
	default:
		return auditv1.AuditDirection_AUDIT_DIRECTION_UNSPECIFIED
	}
}
