package domain

import "time"

// Agreement is a bilateral contract between an Agent and a Source, scoped by
// a Source-chosen agreementRef. Its natural key is (SourceID, AgreementRef).
type Agreement struct {
	ID           string
	AgentID      string
	SourceID     string
	AgreementRef string
	Status       AgreementStatus
	ValidFrom    *time.Time
	ValidTo      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActiveNow reports the *logical* active state: Status must be ACTIVE and,
// when ValidTo is set, it must not be in the past. A past ValidTo makes an
// agreement logically EXPIRED regardless of the stored status (spec §3.2).
func (a *Agreement) IsActiveNow(now time.Time) bool {
	if a == nil || a.Status != AgreementStatusActive {
		return false
	}
	if a.ValidTo != nil && a.ValidTo.Before(now) {
		return false
	}
	return true
}

// ResolvedAgreement is the Dispatcher's view of one eligible (agreement,
// source) pair, returned by AgreementRegistry.ResolveActive.
type ResolvedAgreement struct {
	ID           string
	AgreementRef string
	SourceID     string
}
