package metrics

// FocusdMetrics aggregates the metrics the daemon records.
type FocusdMetrics struct {
	Registry *Registry

	// Sampling
	FramesSampled      *Counter
	FramesSkippedBusy  *Counter
	FramesSkippedNoCam *Counter
	CaptureInFlight    *Gauge

	// Classification
	ClassifyAttempts *Counter
	ClassifyRetries  *Counter
	ClassifyFailures *Counter
	ClassifyLatency  *Histogram

	// Status
	StatusChanges *Counter
	FocusScore    *Gauge

	// Sessions
	SessionsStarted   *Counter
	SessionsFinalized *Counter
	SessionActive     *Gauge

	// Transport
	ClientsConnected *Gauge
	MessagesIn       *Counter
	MessagesOut      *Counter
}

// NewFocusdMetrics registers all daemon metrics under the focusd namespace.
func NewFocusdMetrics() *FocusdMetrics {
	r := NewRegistry("focusd")
	return &FocusdMetrics{
		Registry: r,

		FramesSampled:      r.RegisterCounter("frames_sampled_total", "Webcam frames submitted for classification", nil),
		FramesSkippedBusy:  r.RegisterCounter("frames_skipped_busy_total", "Sampler ticks skipped because a classification was in flight", nil),
		FramesSkippedNoCam: r.RegisterCounter("frames_skipped_nocam_total", "Sampler ticks skipped because no frame source was ready", nil),
		CaptureInFlight:    r.RegisterGauge("capture_in_flight", "Whether a classification is currently in flight", nil),

		ClassifyAttempts: r.RegisterCounter("classify_attempts_total", "Classification requests issued", nil),
		ClassifyRetries:  r.RegisterCounter("classify_retries_total", "Classification calls retried after an overloaded response", nil),
		ClassifyFailures: r.RegisterCounter("classify_failures_total", "Classifications that fell back to idle", nil),
		ClassifyLatency:  r.RegisterHistogram("classify_duration_seconds", "End to end classification latency", nil, DurationBuckets),

		StatusChanges: r.RegisterCounter("status_changes_total", "Stable status transitions", nil),
		FocusScore:    r.RegisterGauge("focus_score", "Focus score of the active session, 0 to 100", nil),

		SessionsStarted:   r.RegisterCounter("sessions_started_total", "Study sessions started", nil),
		SessionsFinalized: r.RegisterCounter("sessions_finalized_total", "Study sessions finalized", nil),
		SessionActive:     r.RegisterGauge("session_active", "Whether a study session is active", nil),

		ClientsConnected: r.RegisterGauge("clients_connected", "Connected websocket clients", nil),
		MessagesIn:       r.RegisterCounter("messages_in_total", "Websocket messages received", nil),
		MessagesOut:      r.RegisterCounter("messages_out_total", "Websocket messages sent", nil),
	}
}
