// Package aggregate turns the raw per-frame classification stream into a
// stable, UI-visible status.
//
// A single Distracted or Absent frame is often a false positive (glancing
// away, stretching, a bad camera frame). The aggregator therefore requires a
// configurable number of consecutive adverse classifications before the
// stable status flips to an adverse state, while recovery to Studying is
// immediate.
//
// Ingest is a pure reducer over an explicit State value: no globals, no
// clocks, no I/O. The caller owns the State and the Stats for the lifetime
// of one monitoring session.
package aggregate

import (
	"math"

	"focusd/internal/classify"
)

// Sensitivity bounds. Sensitivity is the number of consecutive adverse
// classifications required before the stable status turns adverse.
const (
	MinSensitivity = 1
	MaxSensitivity = 5
)

// ClampSensitivity forces a sensitivity value into the valid range.
func ClampSensitivity(s int) int {
	if s < MinSensitivity {
		return MinSensitivity
	}
	if s > MaxSensitivity {
		return MaxSensitivity
	}
	return s
}

// State is the debouncing state for one monitoring session.
type State struct {
	// ConsecutiveBad counts adverse classifications since the last
	// non-adverse one.
	ConsecutiveBad int

	// Stable is the current debounced, UI-visible status.
	Stable classify.Status

	// Sensitivity is the consecutive-adverse threshold, in [1,5].
	Sensitivity int
}

// NewState returns a fresh state with the given sensitivity.
func NewState(sensitivity int) State {
	return State{
		Stable:      classify.StatusIdle,
		Sensitivity: ClampSensitivity(sensitivity),
	}
}

// Ingest applies one raw classification and returns the next state together
// with the stable status after the rules are applied.
//
// Rules:
//   - Distracted/Absent increments ConsecutiveBad; the stable status only
//     adopts the raw status once ConsecutiveBad reaches Sensitivity.
//   - Studying/Idle resets ConsecutiveBad and becomes stable immediately.
func Ingest(st State, raw classify.Result) (State, classify.Status) {
	st.Sensitivity = ClampSensitivity(st.Sensitivity)

	if raw.Status.Bad() {
		st.ConsecutiveBad++
		if st.ConsecutiveBad >= st.Sensitivity {
			st.Stable = raw.Status
		}
		return st, st.Stable
	}

	st.ConsecutiveBad = 0
	st.Stable = raw.Status
	return st, st.Stable
}

// Stats accumulates raw classification counts for one session. Every raw
// result increments Total; Idle results have no dedicated success bucket, so
// they count toward Total only.
type Stats struct {
	Studying   int `json:"studying"`
	Distracted int `json:"distracted"`
	Absent     int `json:"absent"`
	Idle       int `json:"idle"`
	Total      int `json:"total"`
}

// Count records one raw classification.
func (s *Stats) Count(status classify.Status) {
	s.Total++
	switch status {
	case classify.StatusStudying:
		s.Studying++
	case classify.StatusDistracted:
		s.Distracted++
	case classify.StatusAbsent:
		s.Absent++
	default:
		s.Idle++
	}
}

// FocusScore is the percentage of raw classifications that were Studying,
// rounded to the nearest integer. Idle results dilute the score because they
// raise Total without raising Studying; this mirrors the reference behavior
// and keeps scores comparable across sessions.
func (s Stats) FocusScore() int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.Studying) / float64(s.Total)))
}
