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

// BookingHandler fronts the booking command path.
type BookingHandler struct {
	clients *clients.Manager
}

// NewBookingHandler creates the handler.
func NewBookingHandler(clients *clients.Manager) *BookingHandler {
	return &BookingHandler{clients: clients}
}

// Create runs the idempotent booking create. The Idempotency-Key header is
// the canonical carrier; the message field is accepted as a fallback for
// non-HTTP clients.
func (h *BookingHandler) Create(
	ctx context.Context,
	req *connect.Request[gatewayv1.CreateBookingRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	agentID := middleware.GetCompanyID(ctx)
	if agentID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	idempotencyKey := req.Header().Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.Msg.IdempotencyKey
	}

	resp, err := h.clients.Brokering().CreateBooking(ctx, &brokeringv1.CreateBookingRequest{
		AgentId:          agentID,
		AgreementRef:     req.Msg.AgreementRef,
		SourceId:         req.Msg.SourceId,
		SupplierOfferRef: req.Msg.SupplierOfferRef,
		AgentBookingRef:  req.Msg.AgentBookingRef,
		IdempotencyKey:   idempotencyKey,
		RequestId:        middleware.GetRequestID(ctx),
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(toGatewayBooking(resp)), nil
}

// Modify passes free-form fields through to the source.
func (h *BookingHandler) Modify(
	ctx context.Context,
	req *connect.Request[gatewayv1.ModifyBookingRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	resp, err := h.clients.Brokering().ModifyBooking(ctx, &brokeringv1.ModifyBookingRequest{
		AgentId:            middleware.GetCompanyID(ctx),
		SupplierBookingRef: req.Msg.SupplierBookingRef,
		AgreementRef:       req.Msg.AgreementRef,
		Fields:             req.Msg.Fields,
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(toGatewayBooking(resp)), nil
}

// Cancel cancels a booking.
func (h *BookingHandler) Cancel(
	ctx context.Context,
	req *connect.Request[gatewayv1.BookingRefRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	resp, err := h.clients.Brokering().CancelBooking(ctx, &brokeringv1.BookingRefRequest{
		AgentId:            middleware.GetCompanyID(ctx),
		SupplierBookingRef: req.Msg.SupplierBookingRef,
		AgreementRef:       req.Msg.AgreementRef,
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(toGatewayBooking(resp)), nil
}

// Check refreshes a booking's status.
func (h *BookingHandler) Check(
	ctx context.Context,
	req *connect.Request[gatewayv1.BookingRefRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	resp, err := h.clients.Brokering().CheckBooking(ctx, &brokeringv1.BookingRefRequest{
		AgentId:            middleware.GetCompanyID(ctx),
		SupplierBookingRef: req.Msg.SupplierBookingRef,
		AgreementRef:       req.Msg.AgreementRef,
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(toGatewayBooking(resp)), nil
}

func toGatewayBooking(resp *brokeringv1.BookingResponse) *gatewayv1.BookingResponse {
	return &gatewayv1.BookingResponse{
		BookingId:          resp.BookingId,
		SupplierBookingRef: resp.SupplierBookingRef,
		Status:             resp.Status,
		AgreementRef:       resp.AgreementRef,
		SourceId:           resp.SourceId,
		CanonicalBody:      resp.CanonicalBody,
	}
}
