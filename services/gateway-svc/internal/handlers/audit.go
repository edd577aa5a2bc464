package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// AuditHandler fronts the audit query surface. Only admins may read the
// global log; companies see their own activity.
type AuditHandler struct {
	clients *clients.Manager
}

// NewAuditHandler creates the handler.
func NewAuditHandler(clients *clients.Manager) *AuditHandler {
	return &AuditHandler{clients: clients}
}

// GetAuditLogs reads audit entries by filter (admin only).
func (h *AuditHandler) GetAuditLogs(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetAuditLogsRequest],
) (*connect.Response[gatewayv1.GetAuditLogsResponse], error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	resp, err := h.clients.Audit().QueryEvents(ctx, &auditv1.QueryEventsRequest{
		Service:   req.Msg.Service,
		Method:    req.Msg.Method,
		Action:    req.Msg.Action,
		Outcome:   req.Msg.Outcome,
		CompanyId: req.Msg.CompanyId,
		SourceId:  req.Msg.SourceId,
		StartTime: req.Msg.StartTime,
		EndTime:   req.Msg.EndTime,
		Limit:     req.Msg.Limit,
		Offset:    req.Msg.Offset,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GetAuditLogsResponse{
		Entries:    resp.Entries,
		TotalCount: resp.TotalCount,
	}), nil
}

// GetCompanyActivity reads the caller's own boundary events; admins may
// read any company's.
func (h *AuditHandler) GetCompanyActivity(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetCompanyActivityRequest],
) (*connect.Response[gatewayv1.GetCompanyActivityResponse], error) {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	companyID := req.Msg.CompanyId
	if company.Type != "ADMIN" {
		companyID = company.CompanyId
	}

	resp, err := h.clients.Audit().GetCompanyActivity(ctx, &auditv1.GetCompanyActivityRequest{
		CompanyId: companyID,
		Limit:     req.Msg.Limit,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GetCompanyActivityResponse{
		Entries: resp.Entries,
	}), nil
}

// GetStats returns aggregate audit statistics (admin only).
func (h *AuditHandler) GetStats(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetAuditStatsRequest],
) (*connect.Response[gatewayv1.GetAuditStatsResponse], error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	resp, err := h.clients.Audit().GetStats(ctx, &auditv1.GetStatsRequest{
		WindowHours: req.Msg.WindowHours,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GetAuditStatsResponse{
		TotalEvents:      resp.TotalEvents,
		FailureCount:     resp.FailureCount,
		EventsByAction:   resp.EventsByAction,
		EventsByService:  resp.EventsByService,
		EventsByCompany:  resp.EventsByCompany,
		AvgDurationMs:    resp.AvgDurationMs,
		WindowHours:      resp.WindowHours,
		DistinctAgents:   resp.DistinctAgents,
		DistinctSources:  resp.DistinctSources,
		RedactedPayloads: resp.RedactedPayloads,
	}), nil
}

// requireAdmin rejects non-admin callers.
func requireAdmin(ctx context.Context) error {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}
	if company.Type != "ADMIN" {
		return connect.NewError(connect.CodePermissionDenied, fmt.Errorf("admin access required"))
	}
	return nil
}
