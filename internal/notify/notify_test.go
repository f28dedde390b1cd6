package notify

import (
	"sync"
	"testing"
	"time"

	"focusd/internal/classify"
	"focusd/internal/session"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(summary, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, summary+": "+body)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestStatusChangedOnlyOnAdverse(t *testing.T) {
	sender := &recordingSender{}
	n := New(Config{OnDistraction: true}, sender, nil)

	n.StatusChanged(classify.StatusStudying)
	n.StatusChanged(classify.StatusIdle)
	if sender.count() != 0 {
		t.Errorf("benign statuses produced %d notifications", sender.count())
	}

	n.StatusChanged(classify.StatusDistracted)
	n.StatusChanged(classify.StatusAbsent)
	if sender.count() != 2 {
		t.Errorf("adverse statuses produced %d notifications, want 2", sender.count())
	}
}

func TestStatusChangedDisabled(t *testing.T) {
	sender := &recordingSender{}
	n := New(Config{OnDistraction: false}, sender, nil)

	n.StatusChanged(classify.StatusDistracted)
	if sender.count() != 0 {
		t.Errorf("disabled notifier sent %d notifications", sender.count())
	}
}

func TestSessionEnded(t *testing.T) {
	sender := &recordingSender{}
	n := New(Config{OnSessionEnd: true}, sender, nil)

	n.SessionEnded(session.StudySession{
		ID:          "abc",
		StartTime:   time.Now().Add(-95 * time.Second),
		EndTime:     time.Now(),
		DurationSec: 95,
		FocusScore:  67,
	})

	if sender.count() != 1 {
		t.Fatalf("sent %d notifications, want 1", sender.count())
	}
	sender.mu.Lock()
	msg := sender.sent[0]
	sender.mu.Unlock()
	if want := "Focus score 67% over 1m35s"; msg != "Study session complete: "+want {
		t.Errorf("message = %q, want body %q", msg, want)
	}
}

func TestNilSenderIsNoop(t *testing.T) {
	n := New(Config{OnDistraction: true, OnSessionEnd: true}, nil, nil)
	n.StatusChanged(classify.StatusDistracted)
	n.SessionEnded(session.StudySession{})
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		sec  int64
		want string
	}{
		{4, "4s"},
		{59, "59s"},
		{95, "1m35s"},
		{3600, "1h00m"},
		{5430, "1h30m"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.sec); got != tc.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tc.sec, got, tc.want)
		}
	}
}
