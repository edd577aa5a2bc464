package analysis

import "sort"

// RouteRequest is one requested route with its observed demand and the
// number of sources that ended up eligible for it.
type RouteRequest struct {
	PickupUnlocode  string
	DropoffUnlocode string
	RequestCount    int64
	EligibleAvg     float64 // mean expectedSources over the window
}

// Gap is a demanded route no agreement can serve.
type Gap struct {
	PickupUnlocode  string
	DropoffUnlocode string
	RequestCount    int64
}

// FindCoverageGaps returns routes that were requested but never produced a
// single eligible source, ordered by demand. These are the contracts a
// commercial team would chase first.
func FindCoverageGaps(requests []RouteRequest) []Gap {
	var out []Gap
	for _, r := range requests {
		if r.EligibleAvg > 0 {
			continue
		}
		out = append(out, Gap{
			PickupUnlocode:  r.PickupUnlocode,
			DropoffUnlocode: r.DropoffUnlocode,
			RequestCount:    r.RequestCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestCount > out[j].RequestCount })
	return out
}
