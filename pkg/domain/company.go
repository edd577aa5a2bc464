package domain

import "time"

// Company is an Agent, Source, or Admin account. It is owned by the external
// IdentityService; this core only reads it (and toggles SUSPENDED).
type Company struct {
	ID           string
	Type         CompanyType
	Status       CompanyStatus
	Name         string
	AdapterKind  AdapterKind // only meaningful for Type == CompanyTypeSource
	GRPCEndpoint string      // only meaningful when AdapterKind == AdapterKindGRPC
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the company may participate in agreements and
// operations right now.
func (c *Company) IsActive() bool {
	return c != nil && c.Status == CompanyStatusActive
}
