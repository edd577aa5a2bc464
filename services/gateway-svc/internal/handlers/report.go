package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// ReportHandler fronts backoffice exports.
type ReportHandler struct {
	clients *clients.Manager
}

// NewReportHandler creates the handler.
func NewReportHandler(clients *clients.Manager) *ReportHandler {
	return &ReportHandler{clients: clients}
}

// Generate builds an export of Booking/Agreement/SourceHealth rows in the
// requested format.
func (h *ReportHandler) Generate(
	ctx context.Context,
	req *connect.Request[gatewayv1.GenerateReportRequest],
) (*connect.Response[gatewayv1.GenerateReportResponse], error) {
	companyID := middleware.GetCompanyID(ctx)
	if companyID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	resp, err := h.clients.Backoffice().GenerateReport(ctx, &backofficev1.GenerateReportRequest{
		CompanyId: companyID,
		Kind:      req.Msg.Kind,
		Format:    req.Msg.Format,
		Title:     req.Msg.Title,
		FromTime:  req.Msg.FromTime,
		ToTime:    req.Msg.ToTime,
		Save:      req.Msg.Save,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.GenerateReportResponse{
		ReportId:  resp.ReportId,
		Filename:  resp.Filename,
		MimeType:  resp.MimeType,
		SizeBytes: resp.SizeBytes,
		Content:   resp.Content,
	}), nil
}

// Get fetches a stored report's metadata.
func (h *ReportHandler) Get(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.GetReportResponse], error) {
	resp, err := h.clients.Backoffice().GetReport(ctx, req.Msg.ReportId)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.GetReportResponse{Report: resp.Report}), nil
}

// Download fetches a stored report's bytes.
func (h *ReportHandler) Download(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.DownloadReportResponse], error) {
	resp, err := h.clients.Backoffice().DownloadReport(ctx, req.Msg.ReportId)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.DownloadReportResponse{
		Filename: resp.Filename,
		MimeType: resp.MimeType,
		Content:  resp.Content,
	}), nil
}

// List lists the caller's stored reports.
func (h *ReportHandler) List(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListReportsRequest],
) (*connect.Response[gatewayv1.ListReportsResponse], error) {
	companyID := middleware.GetCompanyID(ctx)
	if companyID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	resp, err := h.clients.Backoffice().ListReports(ctx, &backofficev1.ListReportsRequest{
		CompanyId: companyID,
		Limit:     req.Msg.Limit,
		Offset:    req.Msg.Offset,
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.ListReportsResponse{
		Reports:    resp.Reports,
		TotalCount: resp.TotalCount,
	}), nil
}

// Delete removes a stored report.
func (h *ReportHandler) Delete(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.DeleteReportResponse], error) {
	if err := h.clients.Backoffice().DeleteReport(ctx, req.Msg.ReportId); err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.DeleteReportResponse{Success: true}), nil
}
