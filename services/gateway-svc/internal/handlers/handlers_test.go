package handlers

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	commonv1 "carbroker/gen/go/carbroker/common/v1"
	identityv1 "carbroker/gen/go/carbroker/identity/v1"
	"carbroker/services/gateway-svc/internal/middleware"
)

// ============================================================
// Helper function tests
// ============================================================

func TestAsConnectError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		if asConnectError(nil) != nil {
			t.Error("nil should stay nil")
		}
	})

	t.Run("grpc status code preserved", func(t *testing.T) {
		err := asConnectError(status.Error(codes.NotFound, "booking not found"))
		var connectErr *connect.Error
		if !connectAs(err, &connectErr) {
			t.Fatalf("expected a connect error, got %T", err)
		}
		if connectErr.Code() != connect.CodeNotFound {
			t.Errorf("code = %v, want NotFound", connectErr.Code())
		}
	})

	t.Run("failed precondition maps to business-rule code", func(t *testing.T) {
		err := asConnectError(status.Error(codes.FailedPrecondition, "agreement not ACTIVE"))
		var connectErr *connect.Error
		if !connectAs(err, &connectErr) {
			t.Fatalf("expected a connect error, got %T", err)
		}
		if connectErr.Code() != connect.CodeFailedPrecondition {
			t.Errorf("code = %v, want FailedPrecondition", connectErr.Code())
		}
	})
}

func connectAs(err error, target **connect.Error) bool {
	ce, ok := err.(*connect.Error)
	if ok {
		*target = ce
	}
	return ok
}

func TestToGatewayCompany(t *testing.T) {
	if toGatewayCompany(nil) != nil {
		t.Error("nil company should map to nil")
	}

	profile := toGatewayCompany(&identityv1.CompanyInfo{
		CompanyId:   "src-1",
		Name:        "Source One",
		Email:       "ops@source.example",
		Type:        "SOURCE",
		Status:      "ACTIVE",
		AdapterKind: "grpc",
	})
	if profile.CompanyId != "src-1" || profile.Type != "SOURCE" || profile.AdapterKind != "grpc" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestPartyTo(t *testing.T) {
	agreement := &commonv1.Agreement{
		Id:       "agr-1",
		AgentId:  "agent-1",
		SourceId: "src-1",
	}

	tests := []struct {
		name    string
		company *identityv1.CompanyInfo
		want    bool
	}{
		{"agent party", &identityv1.CompanyInfo{CompanyId: "agent-1", Type: "AGENT"}, true},
		{"source party", &identityv1.CompanyInfo{CompanyId: "src-1", Type: "SOURCE"}, true},
		{"admin sees all", &identityv1.CompanyInfo{CompanyId: "admin-1", Type: "ADMIN"}, true},
		{"stranger", &identityv1.CompanyInfo{CompanyId: "agent-2", Type: "AGENT"}, false},
		{"unauthenticated", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.company != nil {
				ctx = middleware.WithCompanyInfo(ctx, tt.company)
			}
			if got := partyTo(ctx, agreement); got != tt.want {
				t.Errorf("partyTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopedCompanyID(t *testing.T) {
	t.Run("company always scoped to itself", func(t *testing.T) {
		ctx := middleware.WithCompanyInfo(context.Background(), &identityv1.CompanyInfo{CompanyId: "agent-1", Type: "AGENT"})
		got, err := scopedCompanyID(ctx, "agent-2")
		if err != nil {
			t.Fatalf("scopedCompanyID: %v", err)
		}
		if got != "agent-1" {
			t.Errorf("scoped id = %v, want the caller's own id", got)
		}
	})

	t.Run("admin may read any company", func(t *testing.T) {
		ctx := middleware.WithCompanyInfo(context.Background(), &identityv1.CompanyInfo{CompanyId: "admin-1", Type: "ADMIN"})
		got, err := scopedCompanyID(ctx, "agent-2")
		if err != nil {
			t.Fatalf("scopedCompanyID: %v", err)
		}
		if got != "agent-2" {
			t.Errorf("scoped id = %v, want the requested id", got)
		}
	})

	t.Run("unauthenticated rejected", func(t *testing.T) {
		if _, err := scopedCompanyID(context.Background(), ""); err == nil {
			t.Error("expected an error without company claims")
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	adminCtx := middleware.WithCompanyInfo(context.Background(), &identityv1.CompanyInfo{CompanyId: "admin-1", Type: "ADMIN"})
	if err := requireAdmin(adminCtx); err != nil {
		t.Errorf("admin rejected: %v", err)
	}

	agentCtx := middleware.WithCompanyInfo(context.Background(), &identityv1.CompanyInfo{CompanyId: "agent-1", Type: "AGENT"})
	if err := requireAdmin(agentCtx); err == nil {
		t.Error("agent must be rejected")
	}

	if err := requireAdmin(context.Background()); err == nil {
		t.Error("unauthenticated must be rejected")
	}
}
