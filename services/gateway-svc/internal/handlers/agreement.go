package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// AgreementHandler fronts the agreement lifecycle.
type AgreementHandler struct {
	clients *clients.Manager
}

// NewAgreementHandler creates the handler.
func NewAgreementHandler(clients *clients.Manager) *AgreementHandler {
	return &AgreementHandler{clients: clients}
}

// CreateDraft creates a DRAFT agreement. An agent may only create drafts
// for itself; the agent id comes from the session, never the body.
func (h *AgreementHandler) CreateDraft(
	ctx context.Context,
	req *connect.Request[gatewayv1.CreateDraftAgreementRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	agentID := req.Msg.AgentId
	if company.Type == "AGENT" {
		agentID = company.CompanyId
	}

	a, err := h.clients.Brokering().CreateDraftAgreement(ctx, &brokeringv1.CreateDraftAgreementRequest{
		AgentId:      agentID,
		SourceId:     req.Msg.SourceId,
		AgreementRef: req.Msg.AgreementRef,
		ValidFrom:    req.Msg.ValidFrom,
		ValidTo:      req.Msg.ValidTo,
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementResponse{Agreement: a}), nil
}

// Offer moves DRAFT -> OFFERED.
func (h *AgreementHandler) Offer(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	a, err := h.clients.Brokering().OfferAgreement(ctx, req.Msg.Id)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementResponse{Agreement: a}), nil
}

// Accept moves OFFERED -> ACCEPTED.
func (h *AgreementHandler) Accept(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	a, err := h.clients.Brokering().AcceptAgreement(ctx, req.Msg.Id)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementResponse{Agreement: a}), nil
}

// SetStatus applies one state-machine transition.
func (h *AgreementHandler) SetStatus(
	ctx context.Context,
	req *connect.Request[gatewayv1.SetAgreementStatusRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	a, err := h.clients.Brokering().SetAgreementStatus(ctx, req.Msg.Id, req.Msg.Status)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.AgreementResponse{Agreement: a}), nil
}

// Get returns one agreement, visible only to its two parties.
func (h *AgreementHandler) Get(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	a, err := h.clients.Brokering().GetAgreement(ctx, req.Msg.Id)
	if err != nil {
		return nil, asConnectError(err)
	}
	if !partyTo(ctx, a) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("agreement not found"))
	}
	return connect.NewResponse(&gatewayv1.AgreementResponse{Agreement: a}), nil
}

// List returns the authenticated company's agreements, from whichever side
// of the contract it sits on.
func (h *AgreementHandler) List(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListAgreementsRequest],
) (*connect.Response[gatewayv1.ListAgreementsResponse], error) {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	var resp *brokeringv1.ListAgreementsResponse
	var err error
	if company.Type == "SOURCE" {
		resp, err = h.clients.Brokering().ListAgreementsBySource(ctx, company.CompanyId, req.Msg.Status)
	} else {
		resp, err = h.clients.Brokering().ListAgreementsByAgent(ctx, company.CompanyId, req.Msg.Status)
	}
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.ListAgreementsResponse{Agreements: resp.Agreements}), nil
}

// partyTo reports whether the authenticated company is a party to the
// agreement (admins see everything).
func partyTo(ctx context.Context, a *commonv1.Agreement) bool {
	company := middleware.GetCompanyInfo(ctx)
	if company == nil {
		return false
	}
	if company.Type == "ADMIN" {
		return true
	}
	return company.CompanyId == a.AgentId || company.CompanyId == a.SourceId
}
