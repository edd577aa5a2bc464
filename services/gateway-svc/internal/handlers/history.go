package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	historyv1 "carbroker/gen/go/carbroker/history/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// HistoryHandler fronts the archive read surface. Companies see only their
// own archived rows.
type HistoryHandler struct {
	clients *clients.Manager
}

// NewHistoryHandler creates the handler.
func NewHistoryHandler(clients *clients.Manager) *HistoryHandler {
	return &HistoryHandler{clients: clients}
}

// scopedCompanyID returns the id whose archive the caller may read.
func scopedCompanyID(ctx context.Context, requested string) (string, error) {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return "", connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}
	if company.Type == "ADMIN" && requested != "" {
		return requested, nil
	}
	return company.CompanyId, nil
}

// ListArchivedJobs lists archived availability jobs.
func (h *HistoryHandler) ListArchivedJobs(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListArchivedJobsRequest],
) (*connect.Response[gatewayv1.ListArchivedJobsResponse], error) {
	companyID, err := scopedCompanyID(ctx, req.Msg.AgentId)
	if err != nil {
		return nil, err
	}

	resp, err := h.clients.History().ListArchivedJobs(ctx, &historyv1.ListArchivedJobsRequest{
		AgentId: companyID,
		Limit:   req.Msg.Limit,
		Offset:  req.Msg.Offset,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.ListArchivedJobsResponse{
		Jobs:       resp.Jobs,
		TotalCount: resp.TotalCount,
	}), nil
}

// ListArchivedBookings lists archived bookings.
func (h *HistoryHandler) ListArchivedBookings(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListArchivedBookingsRequest],
) (*connect.Response[gatewayv1.ListArchivedBookingsResponse], error) {
	companyID, err := scopedCompanyID(ctx, req.Msg.AgentId)
	if err != nil {
		return nil, err
	}

	resp, err := h.clients.History().ListArchivedBookings(ctx, &historyv1.ListArchivedBookingsRequest{
		AgentId: companyID,
		Status:  req.Msg.Status,
		Limit:   req.Msg.Limit,
		Offset:  req.Msg.Offset,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.ListArchivedBookingsResponse{
		Bookings:   resp.Bookings,
		TotalCount: resp.TotalCount,
	}), nil
}

// GetStatistics returns archival aggregates for the caller.
func (h *HistoryHandler) GetStatistics(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetStatisticsRequest],
) (*connect.Response[gatewayv1.GetStatisticsResponse], error) {
	companyID, err := scopedCompanyID(ctx, req.Msg.CompanyId)
	if err != nil {
		return nil, err
	}

	resp, err := h.clients.History().GetStatistics(ctx, &historyv1.GetStatisticsRequest{
		CompanyId: companyID,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GetStatisticsResponse{
		ArchivedJobs:     resp.ArchivedJobs,
		ArchivedEchoJobs: resp.ArchivedEchoJobs,
		ArchivedBookings: resp.ArchivedBookings,
		OldestArchivedAt: resp.OldestArchivedAt,
	}), nil
}
