package middleware

import (
	"context"
	"testing"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
)

func TestGetCompanyID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "empty context",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with company id",
			ctx:      context.WithValue(context.Background(), companyIDKey, "agent-123"),
			expected: "agent-123",
		},
		{
			name:     "with wrong type",
			ctx:      context.WithValue(context.Background(), companyIDKey, 123),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetCompanyID(tt.ctx)
			if result != tt.expected {
				t.Errorf("GetCompanyID() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGetCompanyInfo(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		expectNil bool
	}{
		{
			name:      "empty context",
			ctx:       context.Background(),
			expectNil: true,
		},
		{
			name: "with company info",
			ctx: context.WithValue(context.Background(), companyInfoKey, &identityv1.CompanyInfo{
				CompanyId: "agent-123",
				Name:      "Test Agent",
				Type:      "AGENT",
			}),
			expectNil: false,
		},
		{
			name:      "with wrong type",
			ctx:       context.WithValue(context.Background(), companyInfoKey, "not company info"),
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetCompanyInfo(tt.ctx)
			if (result == nil) != tt.expectNil {
				t.Errorf("GetCompanyInfo() nil = %v, want nil = %v", result == nil, tt.expectNil)
			}
		})
	}
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "empty context",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with request id",
			ctx:      context.WithValue(context.Background(), requestIDKey, "req-456"),
			expected: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetRequestID(tt.ctx)
			if result != tt.expected {
				t.Errorf("GetRequestID() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestWithCompanyID(t *testing.T) {
	ctx := context.Background()
	companyID := "agent-123"

	newCtx := WithCompanyID(ctx, companyID)

	result := GetCompanyID(newCtx)
	if result != companyID {
		t.Errorf("WithCompanyID() -> GetCompanyID() = %v, want %v", result, companyID)
	}

	// Original context should not be modified
	if GetCompanyID(ctx) != "" {
		t.Error("Original context should not be modified")
	}
}

func TestWithCompanyInfo(t *testing.T) {
	ctx := context.Background()
	company := &identityv1.CompanyInfo{
		CompanyId: "agent-123",
		Name:      "Test Agent",
		Type:      "AGENT",
		Status:    "ACTIVE",
	}

	newCtx := WithCompanyInfo(ctx, company)

	result := GetCompanyInfo(newCtx)
	if result == nil {
		t.Fatal("WithCompanyInfo() -> GetCompanyInfo() returned nil")
	}
	if result.CompanyId != company.CompanyId {
		t.Errorf("CompanyId = %v, want %v", result.CompanyId, company.CompanyId)
	}
	if result.Type != company.Type {
		t.Errorf("Type = %v, want %v", result.Type, company.Type)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "req-789"

	newCtx := WithRequestID(ctx, requestID)

	result := GetRequestID(newCtx)
	if result != requestID {
		t.Errorf("WithRequestID() -> GetRequestID() = %v, want %v", result, requestID)
	}
}

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if id1 == "" {
		t.Error("GenerateRequestID() should not return empty string")
	}

	if id2 == "" {
		t.Error("GenerateRequestID() should not return empty string")
	}

	if id1 == id2 {
		t.Error("GenerateRequestID() should return unique IDs")
	}

	// Should be 16 hex characters (8 bytes)
	if len(id1) != 16 {
		t.Errorf("GenerateRequestID() length = %d, want 16", len(id1))
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()

	company := &identityv1.CompanyInfo{
		CompanyId: "agent-123",
		Name:      "Test Agent",
		Type:      "AGENT",
	}

	// Chain multiple context values
	ctx = WithCompanyID(ctx, "agent-123")
	ctx = WithCompanyInfo(ctx, company)
	ctx = WithRequestID(ctx, "req-456")

	// All values should be retrievable
	if GetCompanyID(ctx) != "agent-123" {
		t.Error("CompanyID not preserved in chain")
	}
	if GetCompanyInfo(ctx) == nil {
		t.Error("CompanyInfo not preserved in chain")
	}
	if GetRequestID(ctx) != "req-456" {
		t.Error("RequestID not preserved in chain")
	}
}
