package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// AvailabilityHandler fronts the availability fan-out operations.
type AvailabilityHandler struct {
	clients *clients.Manager
}

// NewAvailabilityHandler creates the handler.
func NewAvailabilityHandler(clients *clients.Manager) *AvailabilityHandler {
	return &AvailabilityHandler{clients: clients}
}

// Submit starts one fan-out for the authenticated agent. Criteria may
// arrive typed or as the raw field-variant map; normalization happens in
// the core.
func (h *AvailabilityHandler) Submit(
	ctx context.Context,
	req *connect.Request[gatewayv1.SubmitAvailabilityRequest],
) (*connect.Response[gatewayv1.SubmitAvailabilityResponse], error) {
	agentID := middleware.GetCompanyID(ctx)
	if agentID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	resp, err := h.clients.Brokering().SubmitAvailability(ctx, &brokeringv1.SubmitAvailabilityRequest{
		AgentId:       agentID,
		Criteria:      req.Msg.Criteria,
		RawCriteria:   req.Msg.RawCriteria,
		AgreementRefs: req.Msg.AgreementRefs,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.SubmitAvailabilityResponse{
		RequestId:         resp.RequestId,
		ExpectedSources:   resp.ExpectedSources,
		RecommendedPollMs: resp.RecommendedPollMs,
	}), nil
}

// Poll long-polls a job's fan-in buffer.
func (h *AvailabilityHandler) Poll(
	ctx context.Context,
	req *connect.Request[gatewayv1.PollAvailabilityRequest],
) (*connect.Response[gatewayv1.PollAvailabilityResponse], error) {
	waitMs := req.Msg.WaitMs
	if waitMs <= 0 {
		waitMs = 1000
	}

	resp, err := h.clients.Brokering().PollAvailability(ctx, req.Msg.RequestId, req.Msg.SinceSeq, waitMs)
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.PollAvailabilityResponse{
		Complete: resp.Complete,
		LastSeq:  resp.LastSeq,
		NewItems: resp.NewItems,
	}), nil
}
