package domain

import "time"

// Booking is a confirmed or attempted reservation made against one Source
// under one Agreement (spec §3.5, §4.G).
type Booking struct {
	ID             string
	AgentID        string
	AgreementID    string
	SourceID       string
	SourceRef      string // the Source's own booking reference, once confirmed
	Status         BookingStatus
	IdempotencyKey string
	Request        []byte // opaque criteria/offer payload sent to the adapter
	ModifyFields   []byte // opaque jsonb passthrough for Booking.Modify (Open Question c)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether the booking can no longer change state.
func (b *Booking) IsTerminal() bool {
	return b != nil && (b.Status == BookingStatusCancelled || b.Status == BookingStatusFailed)
}
