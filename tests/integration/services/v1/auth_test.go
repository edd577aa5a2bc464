package v1_test

import (
	"testing"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/tests/integration/testutil"
)

func TestIdentity_RegisterLoginValidate(t *testing.T) {
	identity := SetupIdentityClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	email := testutil.UniqueKey("agent") + "@example.com"

	reg, err := identity.Register(ctx, &identityv1.RegisterRequest{
		Name:     "Integration Agent",
		Email:    email,
		Password: "integrationPass1",
		Type:     "AGENT",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Success {
		t.Fatalf("Register rejected: %s", reg.ErrorMessage)
	}

	// Pending accounts cannot validate tokens yet
	v, err := identity.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: reg.AccessToken})
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if v.Valid {
		t.Error("PENDING_VERIFICATION account token should not validate")
	}

	if _, err := identity.SetCompanyStatus(ctx, &identityv1.SetCompanyStatusRequest{
		CompanyId: reg.Company.CompanyId,
		Status:    "ACTIVE",
	}); err != nil {
		t.Fatalf("SetCompanyStatus: %v", err)
	}

	login, err := identity.Login(ctx, &identityv1.LoginRequest{Email: email, Password: "integrationPass1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !login.Success {
		t.Fatalf("Login rejected: %s", login.ErrorMessage)
	}

	v, err = identity.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: login.AccessToken})
	if err != nil || !v.Valid {
		t.Fatalf("active account token should validate: (%+v, %v)", v, err)
	}
	if v.Company.Type != "AGENT" {
		t.Errorf("claims type = %s", v.Company.Type)
	}

	// Logout revokes
	if _, err := identity.Logout(ctx, &identityv1.LogoutRequest{Token: login.AccessToken}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	v, _ = identity.ValidateToken(ctx, &identityv1.ValidateTokenRequest{Token: login.AccessToken})
	if v.Valid {
		t.Error("revoked token still validates")
	}
}

func TestIdentity_WrongPassword(t *testing.T) {
	identity := SetupIdentityClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	email := testutil.UniqueKey("agent") + "@example.com"
	reg, err := identity.Register(ctx, &identityv1.RegisterRequest{
		Name: "A", Email: email, Password: "integrationPass1", Type: "AGENT",
	})
	if err != nil || !reg.Success {
		t.Fatalf("Register = (%+v, %v)", reg, err)
	}

	login, err := identity.Login(ctx, &identityv1.LoginRequest{Email: email, Password: "wrong-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Success {
		t.Error("wrong password accepted")
	}
}
