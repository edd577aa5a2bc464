// Package validate normalizes boundary input: availability criteria arrive
// with several accepted field-name variants (camel and snake case) and are
// folded into one canonical struct here, so downstream code never repeats
// the variant handling.
package validate

import (
	"strconv"
	"strings"
	"time"

	"carbroker/pkg/apperror"
	"carbroker/pkg/domain"
)

// acceptedTimeLayouts are tried in order when parsing timestamps.
var acceptedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeCriteria folds a raw field map into canonical criteria. Unknown
// keys are ignored; the first matching variant per logical field wins.
func NormalizeCriteria(raw map[string]string) (domain.AvailabilityCriteria, error) {
	var c domain.AvailabilityCriteria
	var errs *apperror.ValidationErrors

	pick := func(logical string) string {
		for _, variant := range domain.RawCriteriaFields[logical] {
			if v, ok := raw[variant]; ok && v != "" {
				return v
			}
		}
		return ""
	}

	c.PickupUnlocode = normalizeLocode(pick("pickupUnlocode"))
	c.DropoffUnlocode = normalizeLocode(pick("dropoffUnlocode"))
	c.VehicleClass = strings.TrimSpace(pick("vehicleClass"))

	if v := pick("pickupAt"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			errs = appendErr(errs, apperror.NewWithField(apperror.CodeInvalidParam, "unparseable pickup time", "pickupAt"))
		} else {
			c.PickupAt = t
		}
	}
	if v := pick("dropoffAt"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			errs = appendErr(errs, apperror.NewWithField(apperror.CodeInvalidParam, "unparseable dropoff time", "dropoffAt"))
		} else {
			c.DropoffAt = t
		}
	}
	if v := pick("driverAge"); v != "" {
		age, err := strconv.Atoi(v)
		if err != nil || age < 0 {
			errs = appendErr(errs, apperror.NewWithField(apperror.CodeInvalidParam, "driver age must be a non-negative integer", "driverAge"))
		} else {
			c.DriverAge = age
		}
	}

	if errs != nil && errs.HasErrors() {
		if len(errs.Errors) == 1 {
			return c, errs.Errors[0]
		}
		return c, apperror.New(apperror.CodeInvalidParam, strings.Join(errs.ErrorMessages(), "; "))
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func appendErr(errs *apperror.ValidationErrors, e *apperror.Error) *apperror.ValidationErrors {
	if errs == nil {
		errs = apperror.NewValidationErrors()
	}
	errs.Add(e)
	return errs
}

// normalizeLocode upper-cases and trims a UN/LOCODE; five letters expected
// but catalog membership is checked downstream, not here.
func normalizeLocode(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ParseTime parses a timestamp in any accepted layout.
func ParseTime(v string) (time.Time, error) {
	return parseTime(v)
}

func parseTime(v string) (time.Time, error) {
	var lastErr error
	for _, layout := range acceptedTimeLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ValidateBookingRef checks the minimal booking command inputs shared by
// modify/cancel/check.
func ValidateBookingRef(supplierBookingRef, agreementRef string) error {
	if supplierBookingRef == "" {
		return apperror.NewWithField(apperror.CodeInvalidParam, "supplierBookingRef is required", "supplierBookingRef")
	}
	if agreementRef == "" {
		return apperror.NewWithField(apperror.CodeInvalidParam, "agreementRef is required", "agreementRef")
	}
	return nil
}
