package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys
const (
	// Fan-out dispatch
	AttrJobID           = "dispatch.job_id"
	AttrAgentID         = "dispatch.agent_id"
	AttrExpectedSources = "dispatch.expected_sources"
	AttrEligiblePairs   = "dispatch.eligible_pairs"

	// Source adapter calls
	AttrSourceID     = "source.id"
	AttrAgreementRef = "source.agreement_ref"
	AttrAdapterKind  = "source.adapter_kind"
	AttrCallLatency  = "source.latency_ms"
	AttrCallTimedOut = "source.timed_out"

	// Booking
	AttrBookingID      = "booking.id"
	AttrSourceRef      = "booking.source_ref"
	AttrIdempotencyHit = "booking.idempotency_hit"

	// Coverage
	AttrPickup  = "coverage.pickup"
	AttrDropoff = "coverage.dropoff"
)

// DispatchAttributes returns attributes for one availability fan-out.
func DispatchAttributes(jobID, agentID string, expectedSources int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrAgentID, agentID),
		attribute.Int(AttrExpectedSources, expectedSources),
	}
}

// SourceCallAttributes returns attributes for one adapter call.
func SourceCallAttributes(sourceID, agreementRef string, latencyMs int64, timedOut bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSourceID, sourceID),
		attribute.String(AttrAgreementRef, agreementRef),
		attribute.Int64(AttrCallLatency, latencyMs),
		attribute.Bool(AttrCallTimedOut, timedOut),
	}
}

// BookingAttributes returns attributes for one booking command.
func BookingAttributes(bookingID, sourceID string, idempotencyHit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBookingID, bookingID),
		attribute.String(AttrSourceID, sourceID),
		attribute.Bool(AttrIdempotencyHit, idempotencyHit),
	}
}
