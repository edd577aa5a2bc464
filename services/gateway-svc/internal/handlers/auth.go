package handlers

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/pkg/logger"
	"carbroker/services/gateway-svc/internal/clients"
	"carbroker/services/gateway-svc/internal/middleware"
)

// AuthHandler fronts company authentication via identity-svc.
type AuthHandler struct {
	clients *clients.Manager
}

// NewAuthHandler creates the handler.
func NewAuthHandler(clients *clients.Manager) *AuthHandler {
	return &AuthHandler{clients: clients}
}

// Login authenticates a company account.
func (h *AuthHandler) Login(
	ctx context.Context,
	req *connect.Request[gatewayv1.LoginRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	msg := req.Msg

	resp, err := h.clients.Identity().Login(ctx, msg.Email, msg.Password)
	if err != nil {
		logger.Log.Warn("Login failed", "email", msg.Email, "error", err)
		return nil, asConnectError(err)
	}

	if !resp.Success {
		return connect.NewResponse(&gatewayv1.AuthResponse{
			Success:      false,
			ErrorMessage: resp.ErrorMessage,
		}), nil
	}

	return connect.NewResponse(&gatewayv1.AuthResponse{
		Success:      true,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		Company:      toGatewayCompany(resp.Company),
	}), nil
}

// Register creates a company account (AGENT or SOURCE; sources also carry
// their adapter attributes).
func (h *AuthHandler) Register(
	ctx context.Context,
	req *connect.Request[gatewayv1.RegisterRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	msg := req.Msg

	resp, err := h.clients.Identity().Register(ctx, &identityv1.RegisterRequest{
		Name:         msg.Name,
		Email:        msg.Email,
		Password:     msg.Password,
		Type:         msg.Type,
		AdapterKind:  msg.AdapterKind,
		GrpcEndpoint: msg.GrpcEndpoint,
	})
	if err != nil {
		logger.Log.Warn("Registration failed", "email", msg.Email, "error", err)
		return nil, asConnectError(err)
	}

	if !resp.Success {
		return connect.NewResponse(&gatewayv1.AuthResponse{
			Success:      false,
			ErrorMessage: resp.ErrorMessage,
		}), nil
	}

	return connect.NewResponse(&gatewayv1.AuthResponse{
		Success:      true,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		Company:      toGatewayCompany(resp.Company),
	}), nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (h *AuthHandler) RefreshToken(
	ctx context.Context,
	req *connect.Request[gatewayv1.RefreshTokenRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	resp, err := h.clients.Identity().RefreshToken(ctx, req.Msg.RefreshToken)
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&gatewayv1.AuthResponse{
		Success:      resp.Success,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		ErrorMessage: resp.ErrorMessage,
	}), nil
}

// Logout revokes the current session token.
func (h *AuthHandler) Logout(
	ctx context.Context,
	req *connect.Request[gatewayv1.LogoutRequest],
) (*connect.Response[gatewayv1.LogoutResponse], error) {
	resp, err := h.clients.Identity().Logout(ctx, req.Msg.Token)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.LogoutResponse{Success: resp.Success}), nil
}

// GetProfile returns the authenticated company's account.
func (h *AuthHandler) GetProfile(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[gatewayv1.ProfileResponse], error) {
	companyID := middleware.GetCompanyID(ctx)
	if companyID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("no authenticated company"))
	}

	resp, err := h.clients.Identity().GetCompany(ctx, companyID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&gatewayv1.ProfileResponse{
		Company: toGatewayCompany(resp.Company),
	}), nil
}

func toGatewayCompany(c *identityv1.CompanyInfo) *gatewayv1.CompanyProfile {
	if c == nil {
		return nil
	}
	return &gatewayv1.CompanyProfile{
		CompanyId:   c.CompanyId,
		Name:        c.Name,
		Email:       c.Email,
		Type:        c.Type,
		Status:      c.Status,
		AdapterKind: c.AdapterKind,
	}
}
