package sampler

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSource produces a fixed frame.
type fakeSource struct {
	mu    sync.Mutex
	ready bool
	frame []byte
	err   error
	calls int
}

func (f *fakeSource) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSource) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.frame, f.err
}

func (f *fakeSource) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// collector counts capture invocations and optionally blocks them.
type collector struct {
	mu      sync.Mutex
	frames  [][]byte
	release chan struct{} // when non-nil, captures block until closed
}

func (c *collector) capture(ctx context.Context, frame []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	release := c.release
	c.mu.Unlock()
	if release != nil {
		<-release
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) setRelease(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release = ch
}

func newTestSampler(src *fakeSource, col *collector) *Sampler {
	// Long cadence: tests drive captures via TriggerNow.
	return New(Config{Interval: time.Hour, Warmup: time.Hour}, src, col.capture)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != 4000*time.Millisecond {
		t.Errorf("interval = %v", cfg.Interval)
	}
	if cfg.Warmup != 1000*time.Millisecond {
		t.Errorf("warmup = %v", cfg.Warmup)
	}
}

func TestTriggerWhileStopped(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	col := &collector{}
	s := newTestSampler(src, col)

	if s.TriggerNow() {
		t.Error("trigger before Start should be a no-op")
	}
	if col.count() != 0 {
		t.Error("capture ran without Start")
	}
}

func TestTriggerCaptures(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("frame-1")}
	col := &collector{}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if !s.TriggerNow() {
		t.Fatal("trigger should be honored")
	}
	waitFor(t, func() bool { return col.count() == 1 })

	if got := s.Stats(); got.Fired != 1 {
		t.Errorf("stats = %+v", got)
	}
	if s.LastFiredAt().IsZero() {
		t.Error("LastFiredAt not recorded")
	}
}

func TestTriggerIgnoredWhileInFlight(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	col := &collector{release: make(chan struct{})}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if !s.TriggerNow() {
		t.Fatal("first trigger should launch")
	}
	waitFor(t, func() bool { return s.InFlight() })

	// Second trigger must be silently ignored while the first is pending.
	if s.TriggerNow() {
		t.Error("trigger honored while in flight")
	}
	if got := s.Stats(); got.SkippedInFlight != 1 {
		t.Errorf("stats = %+v", got)
	}

	close(col.release)
	waitFor(t, func() bool { return !s.InFlight() })

	// Guard released: the next trigger goes through.
	col.setRelease(nil)
	if !s.TriggerNow() {
		t.Error("trigger after completion should be honored")
	}
}

func TestSkipsWhenSourceNotReady(t *testing.T) {
	src := &fakeSource{ready: false, frame: []byte("f")}
	col := &collector{}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if s.TriggerNow() {
		t.Error("capture launched with source not ready")
	}
	if got := s.Stats(); got.SkippedNotReady != 1 {
		t.Errorf("stats = %+v", got)
	}

	src.setReady(true)
	if !s.TriggerNow() {
		t.Error("capture should launch once the source is ready")
	}
}

func TestSkipsOnEmptyFrame(t *testing.T) {
	src := &fakeSource{ready: true, frame: nil}
	col := &collector{}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if s.TriggerNow() {
		t.Error("capture launched with empty frame")
	}
}

func TestWarmupAndCadence(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	col := &collector{}
	s := New(Config{Interval: 20 * time.Millisecond, Warmup: 5 * time.Millisecond}, src, col.capture)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	// Warm-up fire plus at least two periodic fires.
	waitFor(t, func() bool { return col.count() >= 3 })
}

func TestStopResetsGuard(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	col := &collector{release: make(chan struct{})}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.TriggerNow()
	waitFor(t, func() bool { return s.InFlight() })

	s.Stop()
	if s.InFlight() {
		t.Error("Stop should reset the in-flight guard")
	}

	// A fresh session starts clean even though the old capture is still
	// blocked in the classifier.
	col2 := &collector{}
	s2 := newTestSampler(src, col2)
	if err := s2.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !s2.TriggerNow() {
		t.Error("new session should capture immediately")
	}
	s2.Stop()

	close(col.release)
}

func TestStartTwice(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	col := &collector{}
	s := newTestSampler(src, col)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
}

func TestStopIdempotent(t *testing.T) {
	src := &fakeSource{ready: true, frame: []byte("f")}
	s := newTestSampler(src, &collector{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
