package handlers

import (
	"context"

	"connectrpc.com/connect"

	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
)

// CoverageHandler fronts coverage management.
type CoverageHandler struct {
	clients *clients.Manager
}

// NewCoverageHandler creates the handler.
func NewCoverageHandler(clients *clients.Manager) *CoverageHandler {
	return &CoverageHandler{clients: clients}
}

// Sync refreshes a source's base coverage from its locations endpoint.
func (h *CoverageHandler) Sync(
	ctx context.Context,
	req *connect.Request[gatewayv1.SyncSourceCoverageRequest],
) (*connect.Response[gatewayv1.SyncSourceCoverageResponse], error) {
	resp, err := h.clients.Brokering().SyncSourceCoverage(ctx, req.Msg.SourceId)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.SyncSourceCoverageResponse{
		Added:   resp.Added,
		Removed: resp.Removed,
		Total:   resp.Total,
	}), nil
}

// List returns an agreement's effective coverage.
func (h *CoverageHandler) List(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListCoverageRequest],
) (*connect.Response[gatewayv1.ListCoverageResponse], error) {
	resp, err := h.clients.Brokering().ListCoverageByAgreement(ctx, req.Msg.AgreementId)
	if err != nil {
		return nil, asConnectError(err)
	}

	items := make([]*gatewayv1.CoverageItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, &gatewayv1.CoverageItem{
			Unlocode: item.Unlocode,
			Allowed:  item.Allowed,
		})
	}
	return connect.NewResponse(&gatewayv1.ListCoverageResponse{Items: items}), nil
}

// UpsertOverride sets an allow/deny row on an agreement.
func (h *CoverageHandler) UpsertOverride(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementOverrideRequest],
) (*connect.Response[gatewayv1.AgreementOverrideResponse], error) {
	if err := h.clients.Brokering().UpsertAgreementOverride(ctx, req.Msg.AgreementId, req.Msg.Unlocode, req.Msg.Allowed); err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementOverrideResponse{}), nil
}

// RemoveOverride deletes an override row.
func (h *CoverageHandler) RemoveOverride(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementOverrideRequest],
) (*connect.Response[gatewayv1.AgreementOverrideResponse], error) {
	if err := h.clients.Brokering().RemoveAgreementOverride(ctx, req.Msg.AgreementId, req.Msg.Unlocode); err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementOverrideResponse{}), nil
}
