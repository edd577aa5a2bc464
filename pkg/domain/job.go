package domain

import "time"

// ResultStatus is the per-source outcome recorded against an
// AvailabilityJob (spec §3.4).
type ResultStatus string

const (
	ResultStatusOK      ResultStatus = "OK"
	ResultStatusTimeout ResultStatus = "TIMEOUT"
	ResultStatusError   ResultStatus = "ERROR"
)

// AvailabilityJob is the fan-in buffer a Dispatcher.Start call creates
// immediately and that SourceAdapter calls append results into as they
// settle (spec §3.4, §4.F).
type AvailabilityJob struct {
	ID              string
	AgentID         string
	Criteria        AvailabilityCriteria
	ExpectedSources []string // deduped source IDs resolved at dispatch time
	Status          JobStatus
	CreatedAt       time.Time
	CompletedAt     *time.Time
	SLADeadline     time.Time
}

// IsComplete reports whether every expected source has reported in, the
// job's SLA deadline has elapsed, or it was already marked complete.
func (j *AvailabilityJob) IsComplete(reportedSourceCount int, now time.Time) bool {
	if j.Status == JobStatusComplete {
		return true
	}
	if reportedSourceCount >= len(j.ExpectedSources) {
		return true
	}
	return !now.Before(j.SLADeadline)
}

// AvailabilityResult is one source's response (or timeout/error marker)
// appended to an AvailabilityJob (spec §3.4).
type AvailabilityResult struct {
	ID          string
	JobID       string
	SourceID    string
	Status      ResultStatus
	Offers      []byte // opaque adapter-defined payload, passed through unparsed
	ErrorCode   string // mirrors an apperror.ErrorCode value when Status == ResultStatusError
	ErrorDetail string
	LatencyMs   int64
	ReceivedAt  time.Time
}

// TimeoutResult builds the synthetic marker appended when a per-call
// timeout elapses before the source responds (spec §4.F edge case).
func TimeoutResult(jobID, sourceID string, now time.Time) AvailabilityResult {
	return AvailabilityResult{
		JobID:      jobID,
		SourceID:   sourceID,
		Status:     ResultStatusTimeout,
		ReceivedAt: now,
	}
}

// ErrorResult builds the marker appended when a source adapter call
// fails (spec §4.F edge case).
func ErrorResult(jobID, sourceID, code, detail string, now time.Time) AvailabilityResult {
	return AvailabilityResult{
		JobID:       jobID,
		SourceID:    sourceID,
		Status:      ResultStatusError,
		ErrorCode:   code,
		ErrorDetail: detail,
		ReceivedAt:  now,
	}
}

// EchoJob mirrors AvailabilityJob's fan-in shape for diagnostic echo
// campaigns against a set of sources (spec §3.8, §4.H).
type EchoJob struct {
	ID              string
	RequestedBy     string
	ExpectedSources []string
	Status          JobStatus
	CreatedAt       time.Time
	CompletedAt     *time.Time
	SLADeadline     time.Time
}

// IsComplete mirrors AvailabilityJob.IsComplete for echo campaigns.
func (j *EchoJob) IsComplete(reportedSourceCount int, now time.Time) bool {
	if j.Status == JobStatusComplete {
		return true
	}
	if reportedSourceCount >= len(j.ExpectedSources) {
		return true
	}
	return !now.Before(j.SLADeadline)
}

// EchoItem is one source's echo round-trip result (spec §3.8).
type EchoItem struct {
	ID         string
	JobID      string
	SourceID   string
	Status     ResultStatus
	LatencyMs  int64
	Echoed     []byte // payload the source echoed back, for drift comparison
	ReceivedAt time.Time
}
