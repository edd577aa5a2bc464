package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"connectrpc.com/connect"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// EchoHandler fronts the liveness probe operations.
type EchoHandler struct {
	clients *clients.Manager
}

// NewEchoHandler creates the handler.
func NewEchoHandler(clients *clients.Manager) *EchoHandler {
	return &EchoHandler{clients: clients}
}

// Submit starts an echo campaign for the authenticated agent.
func (h *EchoHandler) Submit(
	ctx context.Context,
	req *connect.Request[gatewayv1.SubmitEchoRequest],
) (*connect.Response[gatewayv1.SubmitEchoResponse], error) {
	agentID := middleware.GetCompanyID(ctx)
	if agentID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	resp, err := h.clients.Brokering().SubmitEcho(ctx, &brokeringv1.SubmitEchoRequest{
		AgentId:      agentID,
		AgreementRef: req.Msg.AgreementRef,
		Message:      req.Msg.Message,
		Attrs:        req.Msg.Attrs,
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.SubmitEchoResponse{
		RequestId:         resp.RequestId,
		TotalExpected:     resp.TotalExpected,
		ExpiresUnixMs:     resp.ExpiresUnixMs,
		RecommendedPollMs: resp.RecommendedPollMs,
	}), nil
}

// GetResults long-polls echo items.
func (h *EchoHandler) GetResults(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetEchoResultsRequest],
) (*connect.Response[gatewayv1.GetEchoResultsResponse], error) {
	resp, err := h.clients.Brokering().GetEchoResults(ctx, req.Msg.RequestId, req.Msg.SinceSeq, req.Msg.WaitMs)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(toGatewayEchoResults(resp)), nil
}

// Watch proxies the backend watch stream to the Connect client.
func (h *EchoHandler) Watch(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetEchoResultsRequest],
	stream *connect.ServerStream[gatewayv1.GetEchoResultsResponse],
) error {
	upstream, err := h.clients.Brokering().WatchEchoResults(ctx, req.Msg.RequestId, req.Msg.SinceSeq)
	if err != nil {
		return asConnectError(err)
	}

	for {
		page, err := upstream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return asConnectError(err)
		}
		if err := stream.Send(toGatewayEchoResults(page)); err != nil {
			return err
		}
	}
}

func toGatewayEchoResults(resp *brokeringv1.GetEchoResultsResponse) *gatewayv1.GetEchoResultsResponse {
	out := &gatewayv1.GetEchoResultsResponse{
		Status:            resp.Status,
		LastSeq:           resp.LastSeq,
		ResponsesReceived: resp.ResponsesReceived,
		TotalExpected:     resp.TotalExpected,
		TimedOutSources:   resp.TimedOutSources,
		AggregateEtag:     resp.AggregateEtag,
	}
	for _, item := range resp.NewItems {
		out.NewItems = append(out.NewItems, &gatewayv1.EchoItem{
			Seq:       item.Seq,
			SourceId:  item.SourceId,
			Status:    item.Status,
			Echoed:    item.Echoed,
			LatencyMs: item.LatencyMs,
		})
	}
	return out
}
