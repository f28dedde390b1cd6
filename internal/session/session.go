// Package session accumulates classification statistics into finalized
// study-session records.
//
// A Recorder owns at most one active session. While active it counts every
// raw classification (debounced or not); on stop it freezes the counters
// into an immutable StudySession with a focus score and prepends it to the
// in-process history. Persistence of finished sessions is a sink concern,
// not the Recorder's.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"focusd/internal/aggregate"
	"focusd/internal/classify"
)

// ErrNoActiveSession is returned by Stop when nothing is being recorded.
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("session already active")

// StudySession is the immutable record of one finished monitoring session.
type StudySession struct {
	ID          string          `json:"id" yaml:"id"`
	StartTime   time.Time       `json:"start_time" yaml:"start_time"`
	EndTime     time.Time       `json:"end_time" yaml:"end_time"`
	DurationSec int64           `json:"duration_sec" yaml:"duration_sec"`
	FocusScore  int             `json:"focus_score" yaml:"focus_score"`
	Stats       aggregate.Stats `json:"stats" yaml:"stats"`
}

// Sink receives finalized sessions (history export, persistence).
type Sink func(StudySession)

// Recorder manages the active session and the session history.
type Recorder struct {
	mu        sync.Mutex
	active    bool
	id        string
	startTime time.Time
	stats     aggregate.Stats
	history   []StudySession
	sinks     []Sink

	now func() time.Time
}

// NewRecorder creates an idle Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// AddSink registers a callback invoked with every finalized session.
// Sinks are called outside the Recorder lock, in registration order.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Start begins a new session with zeroed statistics and returns its ID.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return "", ErrSessionActive
	}

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return "", err
	}

	r.id = hex.EncodeToString(id)
	r.startTime = r.now()
	r.stats = aggregate.Stats{}
	r.active = true
	return r.id, nil
}

// Stop finalizes the active session. The returned StudySession is immutable
// and already prepended to the history. Classifications arriving after Stop
// are dropped by Record.
func (r *Recorder) Stop() (StudySession, error) {
	r.mu.Lock()

	if !r.active {
		r.mu.Unlock()
		return StudySession{}, ErrNoActiveSession
	}

	end := r.now()
	s := StudySession{
		ID:          r.id,
		StartTime:   r.startTime,
		EndTime:     end,
		DurationSec: int64(end.Sub(r.startTime) / time.Second),
		FocusScore:  r.stats.FocusScore(),
		Stats:       r.stats,
	}

	r.active = false
	r.id = ""
	r.history = append([]StudySession{s}, r.history...)
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.Unlock()

	for _, sink := range sinks {
		sink(s)
	}
	return s, nil
}

// Abandon discards the active session without finalizing it. No record is
// added to the history and no sinks run. It is a no-op when idle.
func (r *Recorder) Abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.id = ""
	r.stats = aggregate.Stats{}
}

// Record counts one raw classification. It is a no-op when no session is
// active, which is what discards classifications that complete after Stop.
func (r *Recorder) Record(status classify.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.stats.Count(status)
}

// Active reports whether a session is currently being recorded.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ID returns the active session ID, or "" when idle.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Stats returns a snapshot of the active session's counters.
func (r *Recorder) Stats() aggregate.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// History returns the finished sessions, most recent first.
func (r *Recorder) History() []StudySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StudySession, len(r.history))
	copy(out, r.history)
	return out
}
