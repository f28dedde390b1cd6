// Package classify wraps the external vision-language classifier.
//
// The classifier receives a single webcam still and decides whether the
// person in frame is studying, distracted, or absent. The package owns:
//   - input normalization (raw JPEG bytes or data-URI payloads)
//   - the fixed instruction and strict structured-output schema
//   - retry with exponential backoff on transient provider overload
//   - conversion of every failure into a synthetic Idle result
//
// Classify never returns an error to the caller. The worst outcome is an
// Idle result carrying a short human-readable reason.
package classify

// Status is the behavioral classification of a single frame.
type Status string

const (
	// StatusIdle is a sentinel meaning "no classification yet" or
	// "classification failed". It is never produced by a successful
	// model call and is excluded from per-status statistics.
	StatusIdle Status = "idle"

	// StatusStudying indicates the person is focused on their work.
	StatusStudying Status = "studying"

	// StatusDistracted indicates the person is present but off-task.
	StatusDistracted Status = "distracted"

	// StatusAbsent indicates nobody is in frame.
	StatusAbsent Status = "absent"
)

// Bad reports whether the status is an adverse state that should be
// debounced before it becomes visible to the user.
func (s Status) Bad() bool {
	return s == StatusDistracted || s == StatusAbsent
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusStudying, StatusDistracted, StatusAbsent:
		return true
	}
	return false
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a model-supplied status string into a Status.
// Unknown strings map to StatusIdle.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusStudying:
		return StatusStudying
	case StatusDistracted:
		return StatusDistracted
	case StatusAbsent:
		return StatusAbsent
	default:
		return StatusIdle
	}
}

// Result is a single classification of one frame.
type Result struct {
	Status     Status  `json:"status"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Fallback reasons surfaced on the synthetic Idle results.
const (
	ReasonBusy        = "Server busy, retrying..."
	ReasonFailed      = "Analysis failed"
	ReasonUnavailable = "Service unavailable"
)

// idleResult builds the synthetic failure result.
func idleResult(reason string) Result {
	return Result{Status: StatusIdle, Reason: reason, Confidence: 0}
}
