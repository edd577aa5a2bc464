package service

import (
	"context"
	"testing"
	"time"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/services/identity-svc/internal/repository"
	"carbroker/services/identity-svc/internal/token"
)

func newTestService() (*IdentityService, repository.CompanyRepository) {
	repo := repository.NewMemoryCompanyRepository()
	blacklist := repository.NewMemoryTokenBlacklist()
	tokens := token.NewManager(&token.Config{
		SecretKey:          "test-secret-key-for-testing-only",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "test",
	})
	return NewIdentityService(repo, blacklist, tokens), repo
}

func registerAgent(t *testing.T, s *IdentityService, email string) *identityv1.RegisterResponse {
	t.Helper()
	resp, err := s.Register(context.Background(), &identityv1.RegisterRequest{
		Name:     "Test Agent",
		Email:    email,
		Password: "securePassword123",
		Type:     TypeAgent,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Register rejected: %s", resp.ErrorMessage)
	}
	return resp
}

func TestRegister(t *testing.T) {
	s, _ := newTestService()

	resp := registerAgent(t, s, "agent@example.com")
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("tokens should be issued on registration")
	}
	if resp.Company == nil || resp.Company.Type != TypeAgent {
		t.Errorf("company = %+v", resp.Company)
	}
	if resp.Company.Status != StatusPendingVerification {
		t.Errorf("status = %s, want PENDING_VERIFICATION", resp.Company.Status)
	}
}

func TestRegister_SourceRequiresAdapter(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *identityv1.RegisterRequest
		wantOK  bool
	}{
		{
			"mock source",
			&identityv1.RegisterRequest{Name: "S", Email: "s1@example.com", Password: "longenough1", Type: TypeSource, AdapterKind: "mock"},
			true,
		},
		{
			"grpc source with endpoint",
			&identityv1.RegisterRequest{Name: "S", Email: "s2@example.com", Password: "longenough1", Type: TypeSource, AdapterKind: "grpc", GrpcEndpoint: "s2:50054"},
			true,
		},
		{
			"grpc source without endpoint",
			&identityv1.RegisterRequest{Name: "S", Email: "s3@example.com", Password: "longenough1", Type: TypeSource, AdapterKind: "grpc"},
			false,
		},
		{
			"source without adapter kind",
			&identityv1.RegisterRequest{Name: "S", Email: "s4@example.com", Password: "longenough1", Type: TypeSource},
			false,
		},
		{
			"unknown type",
			&identityv1.RegisterRequest{Name: "S", Email: "s5@example.com", Password: "longenough1", Type: "BROKER"},
			false,
		},
		{
			"short password",
			&identityv1.RegisterRequest{Name: "S", Email: "s6@example.com", Password: "short", Type: TypeAgent},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Register(ctx, tt.req)
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if resp.Success != tt.wantOK {
				t.Errorf("success = %v (%s), want %v", resp.Success, resp.ErrorMessage, tt.wantOK)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s, _ := newTestService()

	registerAgent(t, s, "agent@example.com")
	resp, err := s.Register(context.Background(), &identityv1.RegisterRequest{
		Name:     "Other",
		Email:    "agent@example.com",
		Password: "securePassword123",
		Type:     TypeAgent,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Success {
		t.Error("duplicate email must be rejected")
	}
}

func TestLogin(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	reg := registerAgent(t, s, "agent@example.com")
	// Activate the account so login-derived tokens validate later
	if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	resp, err := s.Login(ctx, &identityv1.LoginRequest{Email: "agent@example.com", Password: "securePassword123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !resp.Success || resp.AccessToken == "" {
		t.Errorf("login failed: %+v", resp)
	}

	t.Run("wrong password", func(t *testing.T) {
		resp, err := s.Login(ctx, &identityv1.LoginRequest{Email: "agent@example.com", Password: "wrong"})
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if resp.Success {
			t.Error("wrong password accepted")
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		resp, err := s.Login(ctx, &identityv1.LoginRequest{Email: "nobody@example.com", Password: "whatever1"})
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if resp.Success {
			t.Error("unknown email accepted")
		}
	})

	t.Run("suspended company rejected", func(t *testing.T) {
		if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusSuspended); err != nil {
			t.Fatalf("suspend: %v", err)
		}
		resp, err := s.Login(ctx, &identityv1.LoginRequest{Email: "agent@example.com", Password: "securePassword123"})
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if resp.Success {
			t.Error("suspended company logged in")
		}
	})
}

func TestValidateToken(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	reg := registerAgent(t, s, "agent@example.com")
	if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	login, _ := s.Login(ctx, &identityv1.LoginRequest{Email: "agent@example.com", Password: "securePassword123"})

	resp, err := s.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: login.AccessToken})
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !resp.Valid || resp.CompanyId != reg.Company.CompanyId {
		t.Errorf("validate = %+v", resp)
	}
	if resp.Company.Type != TypeAgent {
		t.Errorf("claims type = %s", resp.Company.Type)
	}

	t.Run("garbage token invalid", func(t *testing.T) {
		resp, _ := s.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: "garbage"})
		if resp.Valid {
			t.Error("garbage token validated")
		}
	})

	t.Run("suspension invalidates token", func(t *testing.T) {
		if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusSuspended); err != nil {
			t.Fatalf("suspend: %v", err)
		}
		resp, _ := s.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: login.AccessToken})
		if resp.Valid {
			t.Error("token of suspended company validated")
		}
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	reg := registerAgent(t, s, "agent@example.com")
	if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	login, _ := s.Login(ctx, &identityv1.LoginRequest{Email: "agent@example.com", Password: "securePassword123"})

	out, err := s.Logout(ctx, &identityv1.LogoutRequest{Token: login.AccessToken})
	if err != nil || !out.Success {
		t.Fatalf("Logout = (%+v, %v)", out, err)
	}

	resp, _ := s.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: login.AccessToken})
	if resp.Valid {
		t.Error("revoked token still validates")
	}
}

func TestRefreshToken(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	reg := registerAgent(t, s, "agent@example.com")
	if err := repo.SetStatus(ctx, reg.Company.CompanyId, StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	resp, err := s.RefreshToken(ctx, &identityv1.RefreshTokenRequest{RefreshToken: reg.RefreshToken})
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if !resp.Success || resp.AccessToken == "" {
		t.Errorf("refresh = %+v", resp)
	}

	bad, err := s.RefreshToken(ctx, &identityv1.RefreshTokenRequest{RefreshToken: "garbage"})
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if bad.Success {
		t.Error("garbage refresh token accepted")
	}
}

func TestSetCompanyStatus(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	reg := registerAgent(t, s, "agent@example.com")

	resp, err := s.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{
		CompanyId: reg.Company.CompanyId,
		Status:    StatusActive,
	})
	if err != nil {
		t.Fatalf("SetCompanyStatus: %v", err)
	}
	if resp.Company.Status != StatusActive {
		t.Errorf("status = %s", resp.Company.Status)
	}

	// Only ACTIVE/SUSPENDED may be set through this RPC
	if _, err := s.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{
		CompanyId: reg.Company.CompanyId,
		Status:    StatusPendingVerification,
	}); err == nil {
		t.Error("PENDING_VERIFICATION must be rejected here")
	}

	if _, err := s.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{
		CompanyId: "missing",
		Status:    StatusActive,
	}); err == nil {
		t.Error("unknown company must be rejected")
	}
}

func TestListCompanies(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	registerAgent(t, s, "a1@example.com")
	if _, err := s.Register(ctx, &identityv1.RegisterRequest{
		Name: "S", Email: "s1@example.com", Password: "longenough1", Type: TypeSource, AdapterKind: "mock",
	}); err != nil {
		t.Fatalf("register source: %v", err)
	}

	resp, err := s.ListCompanies(ctx, &identityv1.ListCompaniesRequest{Type: TypeSource})
	if err != nil {
		t.Fatalf("ListCompanies: %v", err)
	}
	if len(resp.Companies) != 1 || resp.Companies[0].Type != TypeSource {
		t.Errorf("companies = %+v", resp.Companies)
	}
}
