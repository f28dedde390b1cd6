// Package sampler drives periodic and on-demand frame captures.
//
// The sampler fires on a fixed cadence after a short warm-up, plus on
// explicit manual triggers. It enforces the at-most-one-in-flight rule: a
// capture is skipped while a previous classification is still pending, and
// while the upstream frame source is not producing frames. Because of that
// rule, results always complete in issuance order downstream.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Defaults for the sampling cadence.
const (
	DefaultInterval = 4000 * time.Millisecond
	DefaultWarmup   = 1000 * time.Millisecond
)

// FrameSource supplies the current webcam frame. Ready reports whether the
// source is producing frames (a camera that granted permission but has zero
// dimensions is not ready).
type FrameSource interface {
	Ready() bool
	Snapshot() ([]byte, error)
}

// CaptureFunc receives one frame for classification. The sampler holds the
// in-flight guard until it returns.
type CaptureFunc func(ctx context.Context, frame []byte)

// Config controls sampling cadence.
type Config struct {
	// Interval between periodic captures.
	Interval time.Duration

	// Warmup is the delay before the first capture after Start, giving
	// the camera time to deliver its first frames.
	Warmup time.Duration
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Warmup: DefaultWarmup}
}

// Stats counts sampler decisions, for metrics.
type Stats struct {
	Fired           uint64
	SkippedInFlight uint64
	SkippedNotReady uint64
}

// Sampler owns the capture cadence and the in-flight guard for one
// monitoring session.
type Sampler struct {
	mu        sync.Mutex
	cfg       Config
	source    FrameSource
	capture   CaptureFunc
	running   bool
	inFlight  bool
	lastFired time.Time
	stats     Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sampler. The capture function is called with each frame in
// its own goroutine; at most one call is pending at any time.
func New(cfg Config, source FrameSource, capture CaptureFunc) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = DefaultWarmup
	}
	return &Sampler{cfg: cfg, source: source, capture: capture}
}

// Start begins the warm-up timer and the periodic cadence.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sampler: already running")
	}
	if s.source == nil || s.capture == nil {
		return errors.New("sampler: source and capture required")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.running = true
	go s.loop(s.ctx, s.done)
	return nil
}

// Stop cancels pending timers and resets the in-flight guard so a later
// session starts clean. An in-flight capture is allowed to finish; its
// result is discarded downstream by the session-active guard.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.inFlight = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// TriggerNow requests an immediate capture. It is honored only while the
// sampler is running and no capture is in flight; otherwise it is a silent
// no-op. Returns whether a capture was launched.
func (s *Sampler) TriggerNow() bool {
	return s.fire()
}

// InFlight reports whether a capture is currently pending.
func (s *Sampler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// LastFiredAt returns when the last capture was launched.
func (s *Sampler) LastFiredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFired
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	warm := time.NewTimer(s.cfg.Warmup)
	defer warm.Stop()

	select {
	case <-ctx.Done():
		return
	case <-warm.C:
		s.fire()
	}

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.fire()
		}
	}
}

// fire launches one capture if the guards allow it.
func (s *Sampler) fire() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	if s.inFlight {
		s.stats.SkippedInFlight++
		s.mu.Unlock()
		return false
	}
	if !s.source.Ready() {
		s.stats.SkippedNotReady++
		s.mu.Unlock()
		return false
	}

	frame, err := s.source.Snapshot()
	if err != nil || len(frame) == 0 {
		s.stats.SkippedNotReady++
		s.mu.Unlock()
		return false
	}

	s.inFlight = true
	s.lastFired = time.Now()
	s.stats.Fired++
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		defer s.clearInFlight()
		s.capture(ctx, frame)
	}()
	return true
}

func (s *Sampler) clearInFlight() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
