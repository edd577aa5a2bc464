package domain

import (
	"time"

	"carbroker/pkg/apperror"
)

// AvailabilityCriteria is the normalized search request passed to the
// Dispatcher and, per-source, to SourceAdapter.Search (spec §4.F). Field
// names on the wire may arrive in several accepted variants (e.g.
// "pickupLocation" vs "pickup_location" vs "locationCode"); normalization
// into this struct happens once, at the edge, so downstream code never
// repeats the variant handling.
type AvailabilityCriteria struct {
	PickupUnlocode  string
	DropoffUnlocode string // empty means same as pickup
	PickupAt        time.Time
	DropoffAt       time.Time
	DriverAge       int // 0 means not supplied
	VehicleClass    string
}

// RawCriteriaFields lists the accepted input field-name variants per
// logical field, in priority order (first match wins). Used by the
// gateway/brokering-svc request normalizer.
var RawCriteriaFields = map[string][]string{
	"pickupUnlocode":  {"pickupUnlocode", "pickup_unlocode", "pickupLocation", "pickup_location", "locationCode", "location_code"},
	"dropoffUnlocode": {"dropoffUnlocode", "dropoff_unlocode", "dropoffLocation", "dropoff_location"},
	"pickupAt":        {"pickupAt", "pickup_at", "pickupDateTime", "pickup_date_time"},
	"dropoffAt":       {"dropoffAt", "dropoff_at", "dropoffDateTime", "dropoff_date_time"},
	"driverAge":       {"driverAge", "driver_age"},
	"vehicleClass":    {"vehicleClass", "vehicle_class", "carClass", "car_class"},
}

// EffectiveDropoff returns DropoffUnlocode, defaulting to PickupUnlocode
// when the caller did not supply a distinct drop-off location.
func (c AvailabilityCriteria) EffectiveDropoff() string {
	if c.DropoffUnlocode == "" {
		return c.PickupUnlocode
	}
	return c.DropoffUnlocode
}

// Validate checks the minimal required fields for a search (spec §4.F):
// pickup location and a pickup time strictly before the drop-off time.
func (c AvailabilityCriteria) Validate() error {
	if c.PickupUnlocode == "" {
		return apperror.NewWithField(apperror.CodeInvalidParam, "pickupUnlocode is required", "pickupUnlocode")
	}
	if c.PickupAt.IsZero() || c.DropoffAt.IsZero() {
		return apperror.NewWithField(apperror.CodeInvalidParam, "pickupAt and dropoffAt are required", "pickupAt")
	}
	if !c.PickupAt.Before(c.DropoffAt) {
		return apperror.NewWithField(apperror.CodeInvalidParam, "dropoffAt must be after pickupAt", "dropoffAt")
	}
	return nil
}
