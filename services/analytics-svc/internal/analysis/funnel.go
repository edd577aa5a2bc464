package analysis

// Funnel counts bookings by lifecycle stage over a window.
type Funnel struct {
	Requested int64
	Confirmed int64
	Cancelled int64
	Failed    int64
}

// ConversionRate is the share of requested bookings that reached
// CONFIRMED. Cancellations after confirmation still count as conversions;
// the funnel measures the source's acceptance, not trip completion.
func (f Funnel) ConversionRate() float64 {
	total := f.Requested + f.Confirmed + f.Cancelled + f.Failed
	if total == 0 {
		return 0
	}
	return float64(f.Confirmed+f.Cancelled) / float64(total)
}
