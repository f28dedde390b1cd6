// Package audio derives background-audio playback state from the stable
// focus status.
//
// The controller exclusively owns the mapping from (stable status, user base
// volume) to the target playback volume: full volume while studying, ducked
// to a fraction while the stable status is adverse. Actual sound rendering
// is a collaborator behind the Backend interface; in the daemon that is the
// browser front-end driven over the WebSocket command channel.
package audio

import (
	"fmt"
	"sync"
	"time"

	"focusd/internal/classify"
)

// DuckFactor is the multiplier applied to the base volume while the stable
// status is Distracted or Absent.
const DuckFactor = 0.2

// DefaultRampDuration is how long a smooth volume transition takes on
// backends that support ramping.
const DefaultRampDuration = 500 * time.Millisecond

// TargetVolume maps the stable status and user-set base volume to the
// volume the backend should play at.
func TargetVolume(status classify.Status, base float64) float64 {
	base = clampVolume(base)
	if status.Bad() {
		return base * DuckFactor
	}
	return base
}

// TrackKind distinguishes procedural noise tracks from file-backed ones.
type TrackKind string

const (
	// KindNoise is a procedurally generated noise track.
	KindNoise TrackKind = "noise"
	// KindFile is a file-backed track.
	KindFile TrackKind = "file"
)

// NoiseColor selects the noise spectrum for procedural tracks.
type NoiseColor string

// Supported noise colors.
const (
	NoiseBrown NoiseColor = "brown"
	NoisePink  NoiseColor = "pink"
	NoiseWhite NoiseColor = "white"
)

// Track describes one playable background track.
type Track struct {
	Name  string     `json:"name" yaml:"name"`
	Kind  TrackKind  `json:"kind" yaml:"kind"`
	Noise NoiseColor `json:"noise,omitempty" yaml:"noise,omitempty"`
	Path  string     `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultTracks returns the built-in procedural noise tracks.
func DefaultTracks() []Track {
	return []Track{
		{Name: "Brown Noise", Kind: KindNoise, Noise: NoiseBrown},
		{Name: "Pink Noise", Kind: KindNoise, Noise: NoisePink},
		{Name: "White Noise", Kind: KindNoise, Noise: NoiseWhite},
	}
}

// Backend renders sound. Stop must be idempotent and tolerate "already
// stopped"; Play replaces whatever the backend was doing before.
type Backend interface {
	Play(track Track, volume float64) error
	SetVolume(volume float64)
	Stop()
}

// Ramper is an optional Backend capability for smooth volume transitions.
// Backends without it get an immediate SetVolume instead.
type Ramper interface {
	Ramp(target float64, over time.Duration)
}

// State is a snapshot of the controller for UI consumption.
type State struct {
	BaseVolume   float64         `json:"base_volume" yaml:"base_volume"`
	TargetVolume float64         `json:"target_volume" yaml:"target_volume"`
	Playing      bool            `json:"playing" yaml:"playing"`
	TrackIndex   int             `json:"track_index" yaml:"track_index"`
	Track        Track           `json:"track" yaml:"track"`
	DuckedStatus classify.Status `json:"ducked_status" yaml:"ducked_status"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Controller reacts to stable-status and base-volume changes and drives the
// backend accordingly.
type Controller struct {
	mu           sync.Mutex
	backend      Backend
	tracks       []Track
	trackIdx     int
	base         float64
	status       classify.Status
	playing      bool
	lastErr      string
	rampDuration time.Duration
}

// NewController creates a controller over the given track list and backend.
// A nil backend leaves the controller inert until SetBackend is called.
func NewController(tracks []Track, backend Backend) *Controller {
	if len(tracks) == 0 {
		tracks = DefaultTracks()
	}
	return &Controller{
		backend:      backend,
		tracks:       tracks,
		base:         0.5,
		status:       classify.StatusIdle,
		rampDuration: DefaultRampDuration,
	}
}

// SetBackend replaces the rendering backend. Any previous backend is
// stopped first so two sound sources never overlap.
func (c *Controller) SetBackend(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil && c.playing {
		c.backend.Stop()
		c.playing = false
	}
	c.backend = b
}

// SetRampDuration sets how long smooth volume transitions take on backends
// that support ramping.
func (c *Controller) SetRampDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.rampDuration = d
	}
}

// SetBaseVolume sets the user volume and pushes the recomputed target to
// the backend.
func (c *Controller) SetBaseVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = clampVolume(v)
	c.applyLocked()
}

// BaseVolume returns the user-set volume.
func (c *Controller) BaseVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

// OnStatusChange reacts to a stable-status transition, ducking or restoring
// the playback volume.
func (c *Controller) OnStatusChange(status classify.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == c.status {
		return
	}
	c.status = status
	c.applyLocked()
}

// Play starts the current track at the current target volume. On failure
// the error becomes user-visible state and playback stays stopped.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playLocked()
}

// Pause stops playback but keeps the selected track.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Stop()
	}
	c.playing = false
}

// StopAll stops playback; called when the monitoring session ends. Safe to
// call repeatedly.
func (c *Controller) StopAll() {
	c.Pause()
}

// SelectTrack switches to the track at index, stopping the previous
// playback first. Playback resumes only if it was already playing.
func (c *Controller) SelectTrack(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.tracks) {
		return fmt.Errorf("audio: track index %d out of range", index)
	}

	wasPlaying := c.playing
	if c.backend != nil {
		c.backend.Stop()
	}
	c.playing = false
	c.trackIdx = index

	if wasPlaying {
		return c.playLocked()
	}
	return nil
}

// NextTrack advances to the next track, wrapping around.
func (c *Controller) NextTrack() error {
	c.mu.Lock()
	next := (c.trackIdx + 1) % len(c.tracks)
	c.mu.Unlock()
	return c.SelectTrack(next)
}

// PrevTrack moves to the previous track, wrapping around.
func (c *Controller) PrevTrack() error {
	c.mu.Lock()
	prev := (c.trackIdx - 1 + len(c.tracks)) % len(c.tracks)
	c.mu.Unlock()
	return c.SelectTrack(prev)
}

// ClearError dismisses the last playback error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

// State returns a snapshot for the UI.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		BaseVolume:   c.base,
		TargetVolume: TargetVolume(c.status, c.base),
		Playing:      c.playing,
		TrackIndex:   c.trackIdx,
		Track:        c.tracks[c.trackIdx],
		DuckedStatus: c.status,
		Error:        c.lastErr,
	}
}

// playLocked starts the current track. Caller holds c.mu.
func (c *Controller) playLocked() error {
	if c.backend == nil {
		return fmt.Errorf("audio: no backend configured")
	}

	target := TargetVolume(c.status, c.base)
	if err := c.backend.Play(c.tracks[c.trackIdx], target); err != nil {
		c.playing = false
		c.lastErr = err.Error()
		return fmt.Errorf("audio: play %s: %w", c.tracks[c.trackIdx].Name, err)
	}
	c.playing = true
	c.lastErr = ""
	return nil
}

// applyLocked recomputes the target volume and pushes it to the backend,
// smoothly where supported. Caller holds c.mu.
func (c *Controller) applyLocked() {
	if c.backend == nil || !c.playing {
		return
	}
	target := TargetVolume(c.status, c.base)
	if r, ok := c.backend.(Ramper); ok {
		r.Ramp(target, c.rampDuration)
		return
	}
	c.backend.SetVolume(target)
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
