// Package domain holds the shared entity and value types for the brokering
// core: companies, agreements, coverage, availability/echo jobs, bookings,
// source health, and idempotency keys. It has no dependency on transport or
// storage packages so every service can import it directly.
package domain

import "time"

// CompanyType identifies the role a Company plays in the system.
type CompanyType string

const (
	CompanyTypeAgent CompanyType = "AGENT"
	CompanyTypeSource CompanyType = "SOURCE"
	CompanyTypeAdmin CompanyType = "ADMIN"
)

// CompanyStatus is the lifecycle state of a Company account.
type CompanyStatus string

const (
	CompanyStatusPendingVerification CompanyStatus = "PENDING_VERIFICATION"
	CompanyStatusActive              CompanyStatus = "ACTIVE"
	CompanyStatusSuspended           CompanyStatus = "SUSPENDED"
)

// AdapterKind selects which SourceAdapter implementation backs a Source.
type AdapterKind string

const (
	AdapterKindMock AdapterKind = "mock"
	AdapterKindGRPC AdapterKind = "grpc"
)

// AgreementStatus is a node in the agreement state machine (spec §4.A).
type AgreementStatus string

const (
	AgreementStatusDraft     AgreementStatus = "DRAFT"
	AgreementStatusOffered   AgreementStatus = "OFFERED"
	AgreementStatusAccepted  AgreementStatus = "ACCEPTED"
	AgreementStatusActive    AgreementStatus = "ACTIVE"
	AgreementStatusSuspended AgreementStatus = "SUSPENDED"
	AgreementStatusExpired   AgreementStatus = "EXPIRED"
)

// agreementTransitions enumerates the legal edges of the state machine.
// EXPIRED is terminal: it has no outgoing edges.
var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementStatusDraft:     {AgreementStatusOffered},
	AgreementStatusOffered:   {AgreementStatusAccepted, AgreementStatusExpired},
	AgreementStatusAccepted:  {AgreementStatusActive},
	AgreementStatusActive:    {AgreementStatusSuspended, AgreementStatusExpired},
	AgreementStatusSuspended: {AgreementStatusActive, AgreementStatusExpired},
	AgreementStatusExpired:   {},
}

// LegalTransitions returns the statuses reachable in one step from from.
func LegalTransitions(from AgreementStatus) []AgreementStatus {
	return agreementTransitions[from]
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to AgreementStatus) bool {
	for _, candidate := range agreementTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle of an AvailabilityJob/EchoJob fan-in buffer.
type JobStatus string

const (
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusComplete   JobStatus = "COMPLETE"
)

// BookingStatus is the lifecycle of a Booking.
type BookingStatus string

const (
	BookingStatusRequested BookingStatus = "REQUESTED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusFailed    BookingStatus = "FAILED"
)

// Default tuning constants. Spec §9 Open Question (a) leaves these nominal;
// they are fixed here and overridable via config.HealthConfig/DispatcherConfig.
const (
	DefaultHealthWindowSize      = 64
	DefaultSlowThresholdMs       = 3000
	DefaultMinSamples            = 10
	DefaultSlowRateStrike        = 0.5
	DefaultSlowRateDecay         = 0.2
	DefaultStrikeThreshold       = 3
	DefaultBackoffBase           = 30 * time.Second
	DefaultMaxBackoffLevel       = 3
	DefaultDispatchConcurrency   = 10
	DefaultPerCallTimeout        = 10 * time.Second
	DefaultSLATimeout            = 120 * time.Second
	DefaultEchoPerCallTimeout    = 5 * time.Second
	DefaultEchoWatchMaxDuration  = 5 * time.Minute
	DefaultRecommendedPollMs     = 1500
	DefaultJobRetention          = 24 * time.Hour
	DefaultBookingRetention      = 90 * 24 * time.Hour
	DefaultIdempotencyKeyTTL     = 24 * time.Hour
)
