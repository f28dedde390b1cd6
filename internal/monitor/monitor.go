// Package monitor wires the capture sampler, the vision classifier, the
// debounce aggregator, the session recorder, and the audio controller into
// one monitoring loop.
//
// The monitor owns the lifecycle: Start begins a study session and the
// sampling cadence, Stop tears both down and finalizes the session. Results
// that arrive after Stop, or from a previous run, are discarded.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusd/internal/aggregate"
	"focusd/internal/audio"
	"focusd/internal/classify"
	"focusd/internal/metrics"
	"focusd/internal/sampler"
	"focusd/internal/session"
)

// Config controls monitoring behavior.
type Config struct {
	// Sensitivity is the number of consecutive adverse results required
	// before the stable status flips. Clamped to [1, 5].
	Sensitivity int

	// Sampler holds the capture cadence settings.
	Sampler sampler.Config
}

// DefaultConfig returns monitoring defaults.
func DefaultConfig() Config {
	return Config{
		Sensitivity: 2,
		Sampler:     sampler.DefaultConfig(),
	}
}

// Snapshot is a point-in-time view of the monitor.
type Snapshot struct {
	SessionActive bool             `json:"session_active"`
	SessionID     string           `json:"session_id,omitempty"`
	Stable        classify.Status  `json:"stable_status"`
	LastRaw       classify.Result  `json:"last_raw"`
	Stats         aggregate.Stats  `json:"stats"`
	FocusScore    int              `json:"focus_score"`
	Sensitivity   int              `json:"sensitivity"`
	LastSampledAt time.Time        `json:"last_sampled_at,omitempty"`
}

// Monitor coordinates sampling, classification, and status aggregation.
type Monitor struct {
	mu  sync.Mutex
	cfg Config

	classifier classify.Classifier
	recorder   *session.Recorder
	audio      *audio.Controller
	met        *metrics.FocusdMetrics
	log        *slog.Logger

	source sampler.FrameSource
	samp   *sampler.Sampler

	running  bool
	epoch    uint64
	aggState aggregate.State
	lastRaw  classify.Result

	rawListeners    []func(classify.Result)
	statusListeners []func(classify.Status)
}

// New creates a monitor. The frame source must be set before Start.
func New(cfg Config, cl classify.Classifier, rec *session.Recorder, ac *audio.Controller, met *metrics.FocusdMetrics, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.NewFocusdMetrics()
	}
	cfg.Sensitivity = aggregate.ClampSensitivity(cfg.Sensitivity)
	return &Monitor{
		cfg:        cfg,
		classifier: cl,
		recorder:   rec,
		audio:      ac,
		met:        met,
		log:        log,
		aggState:   aggregate.NewState(cfg.Sensitivity),
	}
}

// SetFrameSource sets the source the sampler pulls frames from.
func (m *Monitor) SetFrameSource(s sampler.FrameSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = s
}

// OnRaw registers a listener for every raw classification result.
func (m *Monitor) OnRaw(fn func(classify.Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawListeners = append(m.rawListeners, fn)
}

// OnStatusChange registers a listener for stable status transitions.
func (m *Monitor) OnStatusChange(fn func(classify.Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusListeners = append(m.statusListeners, fn)
}

// Start begins a study session and the sampling cadence.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return session.ErrSessionActive
	}
	if m.source == nil {
		return fmt.Errorf("no frame source configured")
	}
	if _, err := m.recorder.Start(); err != nil {
		return err
	}

	m.epoch++
	m.aggState = aggregate.NewState(m.cfg.Sensitivity)
	m.lastRaw = classify.Result{}
	m.running = true

	epoch := m.epoch
	m.samp = sampler.New(m.cfg.Sampler, m.source, func(ctx context.Context, frame []byte) {
		m.capture(ctx, epoch, frame)
	})
	if err := m.samp.Start(); err != nil {
		m.running = false
		m.samp = nil
		// The session never produced anything, so discard it instead of
		// finalizing an empty record through the sinks.
		m.recorder.Abandon()
		return err
	}

	m.met.SessionsStarted.Inc()
	m.met.SessionActive.Set(1)
	m.log.Info("session started",
		slog.String("session_id", m.recorder.ID()),
		slog.Int("sensitivity", m.cfg.Sensitivity))
	return nil
}

// Stop ends the sampling cadence and finalizes the session.
func (m *Monitor) Stop() (session.StudySession, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return session.StudySession{}, session.ErrNoActiveSession
	}
	m.running = false
	samp := m.samp
	m.samp = nil
	m.mu.Unlock()

	samp.Stop()
	stats := samp.Stats()
	m.met.FramesSkippedBusy.Add(stats.SkippedInFlight)
	m.met.FramesSkippedNoCam.Add(stats.SkippedNotReady)

	done, err := m.recorder.Stop()
	if err != nil {
		return session.StudySession{}, err
	}

	m.mu.Lock()
	m.aggState = aggregate.NewState(m.cfg.Sensitivity)
	m.mu.Unlock()

	if m.audio != nil {
		m.audio.OnStatusChange(classify.StatusIdle)
		m.audio.StopAll()
	}
	m.met.SessionsFinalized.Inc()
	m.met.SessionActive.Set(0)
	m.log.Info("session finalized",
		slog.String("session_id", done.ID),
		slog.Int64("duration_sec", done.DurationSec),
		slog.Int("focus_score", done.FocusScore))
	return done, nil
}

// TriggerNow requests an immediate classification. It reports whether a
// capture was actually started.
func (m *Monitor) TriggerNow() bool {
	m.mu.Lock()
	samp := m.samp
	m.mu.Unlock()
	if samp == nil {
		return false
	}
	return samp.TriggerNow()
}

// SetSensitivity updates the debounce threshold, effective immediately.
func (m *Monitor) SetSensitivity(n int) {
	n = aggregate.ClampSensitivity(n)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Sensitivity = n
	m.aggState.Sensitivity = n
}

// Running reports whether a session is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Snapshot returns the current monitoring state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SessionActive: m.running,
		Stable:        m.aggState.Stable,
		LastRaw:       m.lastRaw,
		Stats:         m.recorder.Stats(),
		Sensitivity:   m.cfg.Sensitivity,
	}
	snap.FocusScore = snap.Stats.FocusScore()
	if m.running {
		snap.SessionID = m.recorder.ID()
		if m.samp != nil {
			snap.LastSampledAt = m.samp.LastFiredAt()
		}
	}
	return snap
}

func (m *Monitor) capture(ctx context.Context, epoch uint64, frame []byte) {
	m.met.FramesSampled.Inc()
	m.met.CaptureInFlight.Set(1)
	defer m.met.CaptureInFlight.Set(0)

	start := time.Now()
	m.met.ClassifyAttempts.Inc()
	res := m.classifier.Classify(ctx, frame)
	m.met.ClassifyLatency.ObserveDuration(time.Since(start))
	if res.Status == classify.StatusIdle {
		m.met.ClassifyFailures.Inc()
	}
	m.ingest(epoch, res)
}

// ingest folds one raw result into the aggregate state and fans out to
// listeners. Results from a stopped or superseded run are dropped.
func (m *Monitor) ingest(epoch uint64, res classify.Result) {
	m.mu.Lock()
	if !m.running || epoch != m.epoch {
		m.mu.Unlock()
		return
	}

	prev := m.aggState.Stable
	next, stable := aggregate.Ingest(m.aggState, res)
	m.aggState = next
	m.lastRaw = res
	m.recorder.Record(res.Status)
	score := m.recorder.Stats().FocusScore()

	changed := stable != prev
	rawLs := append([]func(classify.Result){}, m.rawListeners...)
	var statusLs []func(classify.Status)
	if changed {
		statusLs = append(statusLs, m.statusListeners...)
	}
	m.mu.Unlock()

	m.met.FocusScore.Set(int64(score))
	if changed {
		m.met.StatusChanges.Inc()
		if m.audio != nil {
			m.audio.OnStatusChange(stable)
		}
		m.log.Info("status changed",
			slog.String("from", string(prev)),
			slog.String("to", string(stable)),
			slog.String("reason", res.Reason))
		for _, fn := range statusLs {
			fn(stable)
		}
	}
	for _, fn := range rawLs {
		fn(res)
	}
}
