package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"

	identityv1 "carbroker/gen/go/carbroker/identity/v1"
)

// Context keys
type contextKey string

const (
	companyIDKey   contextKey = "company_id"
	companyInfoKey contextKey = "company_info"
	requestIDKey   contextKey = "request_id"
)

// GetCompanyID returns the authenticated company's id.
func GetCompanyID(ctx context.Context) string {
	if v, ok := ctx.Value(companyIDKey).(string); ok {
		return v
	}
	return ""
}

// GetCompanyInfo returns the authenticated company's claims.
func GetCompanyInfo(ctx context.Context) *identityv1.CompanyInfo {
	if v, ok := ctx.Value(companyInfoKey).(*identityv1.CompanyInfo); ok {
		return v
	}
	return nil
}

// GetRequestID returns the request id assigned at the edge.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCompanyID attaches the company id to the context.
func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// WithCompanyInfo attaches the company claims to the context.
func WithCompanyInfo(ctx context.Context, company *identityv1.CompanyInfo) context.Context {
	return context.WithValue(ctx, companyInfoKey, company)
}

// WithRequestID attaches the request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GenerateRequestID generates a unique request id.
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		// Fallback: return a fixed id, caller should handle
		return "00000000"
	}
	return hex.EncodeToString(bytes)
}
