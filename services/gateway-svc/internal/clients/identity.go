package clients

import (
	"context"

	"google.golang.org/grpc"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/pkg/config"
)

// IdentityClient wraps identity-svc: company accounts and session tokens.
type IdentityClient struct {
	conn   *grpc.ClientConn
	client identityv1.IdentityServiceClient
}

// NewIdentityClient dials identity-svc.
func NewIdentityClient(ctx context.Context, endpoint config.ServiceEndpoint) (*IdentityClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &IdentityClient{
		conn:   conn,
		client: identityv1.NewIdentityServiceClient(conn),
	}, nil
}

// Login authenticates a company account.
func (c *IdentityClient) Login(ctx context.Context, email, password string) (*identityv1.LoginResponse, error) {
	return c.client.Login(ctx, &identityv1.LoginRequest{
		Email:    email,
		Password: password,
	})
}

// Register creates a company account.
func (c *IdentityClient) Register(ctx context.Context, req *identityv1.RegisterRequest) (*identityv1.RegisterResponse, error) {
	return c.client.Register(ctx, req)
}

// ValidateToken validates a session token.
func (c *IdentityClient) ValidateToken(ctx context.Context, token string) (*identityv1.ValidateTokenResponse, error) {
	return c.client.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: token})
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *IdentityClient) RefreshToken(ctx context.Context, refreshToken string) (*identityv1.RefreshTokenResponse, error) {
	return c.client.RefreshToken(ctx, &identityv1.RefreshTokenRequest{RefreshToken: refreshToken})
}

// Logout revokes a session token.
func (c *IdentityClient) Logout(ctx context.Context, token string) (*identityv1.LogoutResponse, error) {
	return c.client.Logout(ctx, &identityv1.LogoutRequest{Token: token})
}

// GetCompany returns one company account.
func (c *IdentityClient) GetCompany(ctx context.Context, id string) (*identityv1.GetCompanyResponse, error) {
	return c.client.GetCompany(ctx, &identityv1.GetCompanyRequest{CompanyId: id})
}

// SetCompanyStatus toggles ACTIVE/SUSPENDED on a company.
func (c *IdentityClient) SetCompanyStatus(ctx context.Context, id, status string) (*identityv1.SetCompanyStatusResponse, error) {
	return c.client.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{CompanyId: id, Status: status})
}

// Raw exposes the underlying gRPC client.
func (c *IdentityClient) Raw() identityv1.IdentityServiceClient {
	return c.client
}
