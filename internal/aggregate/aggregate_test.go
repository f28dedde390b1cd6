package aggregate

import (
	"testing"

	"focusd/internal/classify"
)

func raw(s classify.Status) classify.Result {
	return classify.Result{Status: s, Confidence: 0.9}
}

func TestClampSensitivity(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 9: 5}
	for in, want := range cases {
		if got := ClampSensitivity(in); got != want {
			t.Errorf("ClampSensitivity(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewState(t *testing.T) {
	st := NewState(3)
	if st.Stable != classify.StatusIdle {
		t.Errorf("initial stable = %s, want idle", st.Stable)
	}
	if st.ConsecutiveBad != 0 {
		t.Error("initial bad count should be zero")
	}
	if st.Sensitivity != 3 {
		t.Errorf("sensitivity = %d", st.Sensitivity)
	}
}

func TestIngestSuppressesTransientBadFrames(t *testing.T) {
	st := NewState(3)
	st, stable := Ingest(st, raw(classify.StatusStudying))
	if stable != classify.StatusStudying {
		t.Fatalf("stable = %s", stable)
	}

	// Two bad frames stay below the threshold of three.
	st, stable = Ingest(st, raw(classify.StatusDistracted))
	if stable != classify.StatusStudying {
		t.Errorf("stable flipped after 1 bad frame: %s", stable)
	}
	st, stable = Ingest(st, raw(classify.StatusDistracted))
	if stable != classify.StatusStudying {
		t.Errorf("stable flipped after 2 bad frames: %s", stable)
	}

	// The third crosses it.
	st, stable = Ingest(st, raw(classify.StatusDistracted))
	if stable != classify.StatusDistracted {
		t.Errorf("stable = %s after threshold, want distracted", stable)
	}
	if st.ConsecutiveBad != 3 {
		t.Errorf("bad count = %d", st.ConsecutiveBad)
	}
}

func TestIngestRecoversImmediately(t *testing.T) {
	st := NewState(2)
	st, _ = Ingest(st, raw(classify.StatusAbsent))
	st, _ = Ingest(st, raw(classify.StatusAbsent))

	st, stable := Ingest(st, raw(classify.StatusStudying))
	if stable != classify.StatusStudying {
		t.Errorf("stable = %s, want studying", stable)
	}
	if st.ConsecutiveBad != 0 {
		t.Errorf("bad count not reset: %d", st.ConsecutiveBad)
	}
}

func TestIngestIdleResetsBadStreak(t *testing.T) {
	st := NewState(2)
	st, _ = Ingest(st, raw(classify.StatusDistracted))
	st, stable := Ingest(st, raw(classify.StatusIdle))
	if stable != classify.StatusIdle {
		t.Errorf("stable = %s, want idle", stable)
	}
	if st.ConsecutiveBad != 0 {
		t.Error("idle should reset the bad streak")
	}

	// A fresh streak is required after the reset.
	st, stable = Ingest(st, raw(classify.StatusDistracted))
	if stable != classify.StatusIdle {
		t.Errorf("stable = %s, want idle (streak restarted)", stable)
	}
}

func TestIngestMixedStatusesRetainAdverseKind(t *testing.T) {
	// Distracted then Absent both count toward the same streak; the stable
	// status adopts whichever raw status crossed the threshold.
	st := NewState(2)
	st, _ = Ingest(st, raw(classify.StatusDistracted))
	_, stable := Ingest(st, raw(classify.StatusAbsent))
	if stable != classify.StatusAbsent {
		t.Errorf("stable = %s, want absent", stable)
	}
}

func TestIngestThresholdPerSensitivity(t *testing.T) {
	for sensitivity := MinSensitivity; sensitivity <= MaxSensitivity; sensitivity++ {
		st := NewState(sensitivity)
		st, _ = Ingest(st, raw(classify.StatusStudying))

		for i := 1; i <= sensitivity; i++ {
			var stable classify.Status
			st, stable = Ingest(st, raw(classify.StatusDistracted))
			crossed := stable == classify.StatusDistracted
			if i < sensitivity && crossed {
				t.Errorf("s=%d: flipped after %d bad frames", sensitivity, i)
			}
			if i == sensitivity && !crossed {
				t.Errorf("s=%d: did not flip after %d bad frames", sensitivity, i)
			}
		}
	}
}

func TestStatsCounting(t *testing.T) {
	var stats Stats
	seq := []classify.Status{
		classify.StatusStudying,
		classify.StatusDistracted,
		classify.StatusIdle,
		classify.StatusAbsent,
		classify.StatusStudying,
	}
	for _, s := range seq {
		stats.Count(s)
	}

	if stats.Studying != 2 || stats.Distracted != 1 || stats.Absent != 1 || stats.Idle != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Total != 5 {
		t.Errorf("total = %d, want 5", stats.Total)
	}
	if sum := stats.Studying + stats.Distracted + stats.Absent + stats.Idle; sum != stats.Total {
		t.Errorf("buckets sum to %d, total is %d", sum, stats.Total)
	}
}

func TestFocusScore(t *testing.T) {
	cases := []struct {
		stats Stats
		want  int
	}{
		{Stats{}, 0},
		{Stats{Studying: 2, Distracted: 2, Total: 4}, 50},
		{Stats{Studying: 4, Total: 4}, 100},
		{Stats{Distracted: 3, Total: 3}, 0},
		{Stats{Studying: 1, Total: 3}, 33},
		{Stats{Studying: 2, Total: 3}, 67},
		// Idle results inflate the denominator only.
		{Stats{Studying: 2, Idle: 2, Total: 4}, 50},
	}

	for _, tc := range cases {
		if got := tc.stats.FocusScore(); got != tc.want {
			t.Errorf("FocusScore(%+v) = %d, want %d", tc.stats, got, tc.want)
		}
		if got := tc.stats.FocusScore(); got < 0 || got > 100 {
			t.Errorf("FocusScore out of range: %d", got)
		}
	}
}

// The worked scenario from the design discussion: sensitivity 2, sequence
// Studying, Distracted, Distracted, Studying.
func TestScenarioSensitivityTwo(t *testing.T) {
	st := NewState(2)
	var stats Stats

	seq := []classify.Status{
		classify.StatusStudying,
		classify.StatusDistracted,
		classify.StatusDistracted,
		classify.StatusStudying,
	}
	wantStable := []classify.Status{
		classify.StatusStudying,
		classify.StatusStudying, // below threshold, unchanged
		classify.StatusDistracted,
		classify.StatusStudying,
	}

	for i, s := range seq {
		var stable classify.Status
		st, stable = Ingest(st, raw(s))
		stats.Count(s)
		if stable != wantStable[i] {
			t.Errorf("step %d: stable = %s, want %s", i, stable, wantStable[i])
		}
	}

	if stats.Studying != 2 || stats.Distracted != 2 || stats.Total != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.FocusScore() != 50 {
		t.Errorf("focus score = %d, want 50", stats.FocusScore())
	}
}
