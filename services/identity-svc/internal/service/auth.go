// Package service implements the IdentityService gRPC surface: company
// registration, login, session token validation, and status toggling.
package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/timestamppb"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/passhash"
	"carbroker/pkg/telemetry"
	"carbroker/services/identity-svc/internal/repository"
	"carbroker/services/identity-svc/internal/token"
)

// Company account constants mirrored from the shared domain vocabulary.
const (
	TypeAgent  = "AGENT"
	TypeSource = "SOURCE"
	TypeAdmin  = "ADMIN"

	StatusPendingVerification = "PENDING_VERIFICATION"
	StatusActive              = "ACTIVE"
	StatusSuspended           = "SUSPENDED"
)

// IdentityService implements identityv1.IdentityServiceServer.
type IdentityService struct {
	identityv1.UnimplementedIdentityServiceServer
	repo      repository.CompanyRepository
	blacklist repository.TokenBlacklist
	tokens    *token.Manager
}

// NewIdentityService creates the service.
func NewIdentityService(
	repo repository.CompanyRepository,
	blacklist repository.TokenBlacklist,
	tokens *token.Manager,
) *IdentityService {
	return &IdentityService{
		repo:      repo,
		blacklist: blacklist,
		tokens:    tokens,
	}
}

// Login authenticates a company account.
func (s *IdentityService) Login(ctx context.Context, req *identityv1.LoginRequest) (*identityv1.LoginResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.Login")
	defer span.End()

	span.SetAttributes(attribute.String("email", req.Email))

	if req.Email == "" || req.Password == "" {
		return &identityv1.LoginResponse{
			Success:      false,
			ErrorMessage: "email and password are required",
		}, nil
	}

	company, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrCompanyNotFound) {
			telemetry.AddEvent(ctx, "company_not_found")
			return &identityv1.LoginResponse{
				Success:      false,
				ErrorMessage: "invalid email or password",
			}, nil
		}
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to get company"))
	}

	valid, err := passhash.VerifyPassword(req.Password, company.PasswordHash)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to verify password"))
	}
	if !valid {
		telemetry.AddEvent(ctx, "invalid_password")
		return &identityv1.LoginResponse{
			Success:      false,
			ErrorMessage: "invalid email or password",
		}, nil
	}

	if company.Status == StatusSuspended {
		return &identityv1.LoginResponse{
			Success:      false,
			ErrorMessage: "company account is suspended",
		}, nil
	}

	accessToken, refreshToken, expiresIn, err := s.tokens.GenerateTokenPair(company.ID, company.Name, company.Type)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to generate tokens"))
	}

	telemetry.AddEvent(ctx, "login_success", attribute.String("company_id", company.ID))

	return &identityv1.LoginResponse{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		Company:      toCompanyInfo(company),
	}, nil
}

// Register creates a company account. Sources carry their adapter
// attributes; everything else is rejected field by field.
func (s *IdentityService) Register(ctx context.Context, req *identityv1.RegisterRequest) (*identityv1.RegisterResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.Register")
	defer span.End()

	span.SetAttributes(
		attribute.String("email", req.Email),
		attribute.String("type", req.Type),
	)

	if err := validateRegisterRequest(req); err != nil {
		return &identityv1.RegisterResponse{
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	exists, err := s.repo.Exists(ctx, req.Email)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to check company existence"))
	}
	if exists {
		return &identityv1.RegisterResponse{
			Success:      false,
			ErrorMessage: "a company with this email already exists",
		}, nil
	}

	hash, err := passhash.HashPassword(req.Password)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to hash password"))
	}

	company := &repository.Company{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Type:         req.Type,
		Status:       StatusPendingVerification,
		AdapterKind:  req.AdapterKind,
		GRPCEndpoint: req.GrpcEndpoint,
	}

	if err := s.repo.Create(ctx, company); err != nil {
		if errors.Is(err, repository.ErrCompanyAlreadyExists) {
			return &identityv1.RegisterResponse{
				Success:      false,
				ErrorMessage: "a company with this email already exists",
			}, nil
		}
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to create company"))
	}

	accessToken, refreshToken, expiresIn, err := s.tokens.GenerateTokenPair(company.ID, company.Name, company.Type)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to generate tokens"))
	}

	return &identityv1.RegisterResponse{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		Company:      toCompanyInfo(company),
	}, nil
}

// validateRegisterRequest checks the registration fields.
func validateRegisterRequest(req *identityv1.RegisterRequest) error {
	errs := pkgerrors.NewValidationErrors()

	if strings.TrimSpace(req.Name) == "" {
		errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "name is required", "name")
	}
	if !strings.Contains(req.Email, "@") {
		errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "a valid email is required", "email")
	}
	if len(req.Password) < 8 {
		errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "password must be at least 8 characters", "password")
	}
	switch req.Type {
	case TypeAgent, TypeAdmin:
		// nothing extra
	case TypeSource:
		switch req.AdapterKind {
		case "mock":
		case "grpc":
			if req.GrpcEndpoint == "" {
				errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "grpc_endpoint is required for grpc sources", "grpc_endpoint")
			}
		default:
			errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "adapter_kind must be mock or grpc", "adapter_kind")
		}
	default:
		errs.AddErrorWithField(pkgerrors.CodeInvalidParam, "type must be AGENT, SOURCE, or ADMIN", "type")
	}

	if errs.HasErrors() {
		return errs.Errors[0]
	}
	return nil
}

// ValidateToken verifies a session token and returns the company claims.
func (s *IdentityService) ValidateToken(ctx context.Context, req *identityv1.ValidateTokenRequest) (*identityv1.ValidateTokenResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.ValidateToken")
	defer span.End()

	if req.Token == "" {
		return &identityv1.ValidateTokenResponse{Valid: false}, nil
	}

	revoked, err := s.blacklist.Contains(ctx, req.Token)
	if err == nil && revoked {
		return &identityv1.ValidateTokenResponse{Valid: false}, nil
	}

	claims, err := s.tokens.ValidateToken(req.Token)
	if err != nil {
		return &identityv1.ValidateTokenResponse{Valid: false}, nil
	}

	// The stored row is authoritative for status: a token survives
	// suspension only until its next validation.
	company, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return &identityv1.ValidateTokenResponse{Valid: false}, nil
	}
	if company.Status != StatusActive {
		return &identityv1.ValidateTokenResponse{Valid: false}, nil
	}

	return &identityv1.ValidateTokenResponse{
		Valid:     true,
		CompanyId: company.ID,
		Company:   toCompanyInfo(company),
	}, nil
}

// RefreshToken issues a fresh token pair from a refresh token.
func (s *IdentityService) RefreshToken(ctx context.Context, req *identityv1.RefreshTokenRequest) (*identityv1.RefreshTokenResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.RefreshToken")
	defer span.End()

	revoked, err := s.blacklist.Contains(ctx, req.RefreshToken)
	if err == nil && revoked {
		return &identityv1.RefreshTokenResponse{
			Success:      false,
			ErrorMessage: "token revoked",
		}, nil
	}

	accessToken, refreshToken, expiresIn, err := s.tokens.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		return &identityv1.RefreshTokenResponse{
			Success:      false,
			ErrorMessage: "invalid refresh token",
		}, nil
	}

	return &identityv1.RefreshTokenResponse{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (s *IdentityService) Logout(ctx context.Context, req *identityv1.LogoutRequest) (*identityv1.LogoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.Logout")
	defer span.End()

	if req.Token == "" {
		return &identityv1.LogoutResponse{Success: false}, nil
	}

	claims, err := s.tokens.ValidateToken(req.Token)
	if err != nil {
		// Already invalid, nothing to revoke.
		return &identityv1.LogoutResponse{Success: true}, nil
	}

	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if err := s.blacklist.Add(ctx, req.Token, ttl); err != nil {
		telemetry.SetError(ctx, err)
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to revoke token"))
	}

	return &identityv1.LogoutResponse{Success: true}, nil
}

// GetCompany returns one company account.
func (s *IdentityService) GetCompany(ctx context.Context, req *identityv1.GetCompanyRequest) (*identityv1.GetCompanyResponse, error) {
	company, err := s.repo.GetByID(ctx, req.CompanyId)
	if err != nil {
		if errors.Is(err, repository.ErrCompanyNotFound) {
			return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeNotFound, "company not found"))
		}
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to get company"))
	}
	return &identityv1.GetCompanyResponse{Company: toCompanyInfo(company)}, nil
}

// SetCompanyStatus toggles a company between ACTIVE and SUSPENDED. Other
// lifecycle states are owned by the verification flow, not this RPC.
func (s *IdentityService) SetCompanyStatus(ctx context.Context, req *identityv1.SetCompanyStatusRequest) (*identityv1.SetCompanyStatusResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdentityService.SetCompanyStatus")
	defer span.End()

	if req.Status != StatusActive && req.Status != StatusSuspended {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "status must be ACTIVE or SUSPENDED", "status"))
	}

	if err := s.repo.SetStatus(ctx, req.CompanyId, req.Status); err != nil {
		if errors.Is(err, repository.ErrCompanyNotFound) {
			return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeNotFound, "company not found"))
		}
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to set company status"))
	}

	company, err := s.repo.GetByID(ctx, req.CompanyId)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to reload company"))
	}
	return &identityv1.SetCompanyStatusResponse{Company: toCompanyInfo(company)}, nil
}

// ListCompanies lists accounts, optionally filtered by type and status.
func (s *IdentityService) ListCompanies(ctx context.Context, req *identityv1.ListCompaniesRequest) (*identityv1.ListCompaniesResponse, error) {
	companies, err := s.repo.List(ctx, req.Type, req.Status)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list companies"))
	}

	out := &identityv1.ListCompaniesResponse{}
	for _, c := range companies {
		out.Companies = append(out.Companies, toCompanyInfo(c))
	}
	return out, nil
}

func toCompanyInfo(c *repository.Company) *identityv1.CompanyInfo {
	if c == nil {
		return nil
	}
	return &identityv1.CompanyInfo{
		CompanyId:    c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Type:         c.Type,
		Status:       c.Status,
		AdapterKind:  c.AdapterKind,
		GrpcEndpoint: c.GRPCEndpoint,
		CreatedAt:    timestamppb.New(c.CreatedAt),
	}
}
