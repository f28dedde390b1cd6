// Package notify sends desktop notifications for focus events.
//
// On Linux it talks to org.freedesktop.Notifications over the session bus.
// When no session bus is available the notifier degrades to a no-op, so
// callers never need to branch on platform.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"focusd/internal/classify"
	"focusd/internal/session"
)

const (
	notifyBusName    = "org.freedesktop.Notifications"
	notifyObjectPath = "/org/freedesktop/Notifications"
	notifyMethod     = "org.freedesktop.Notifications.Notify"

	appName = "focusd"
)

// Sender delivers a single notification. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(summary, body string) error
}

// DBusSender sends notifications over the freedesktop session bus.
type DBusSender struct {
	conn *dbus.Conn
}

// NewDBusSender connects to the session bus.
func NewDBusSender() (*DBusSender, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusSender{conn: conn}, nil
}

// Send delivers one transient notification.
func (d *DBusSender) Send(summary, body string) error {
	obj := d.conn.Object(notifyBusName, dbus.ObjectPath(notifyObjectPath))
	call := obj.Call(notifyMethod, 0,
		appName,           // app_name
		uint32(0),         // replaces_id
		"",                // app_icon
		summary,           // summary
		body,              // body
		[]string{},        // actions
		map[string]dbus.Variant{}, // hints
		int32(5000),       // expire_timeout ms
	)
	if call.Err != nil {
		return fmt.Errorf("notify call: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (d *DBusSender) Close() error {
	return d.conn.Close()
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) Send(summary, body string) error { return nil }

// Config controls which events produce notifications.
type Config struct {
	OnDistraction bool
	OnSessionEnd  bool
}

// Notifier translates focus events into desktop notifications.
type Notifier struct {
	cfg    Config
	sender Sender
	log    *slog.Logger
}

// New creates a notifier. A nil sender disables delivery.
func New(cfg Config, sender Sender, log *slog.Logger) *Notifier {
	if sender == nil {
		sender = Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{cfg: cfg, sender: sender, log: log}
}

// StatusChanged notifies on transitions into an adverse stable status.
func (n *Notifier) StatusChanged(status classify.Status) {
	if !n.cfg.OnDistraction || !status.Bad() {
		return
	}

	var summary, body string
	switch status {
	case classify.StatusDistracted:
		summary = "Losing focus"
		body = "You look distracted. Back to it?"
	case classify.StatusAbsent:
		summary = "Away from desk"
		body = "Nobody at the desk. Session is still running."
	}

	if err := n.sender.Send(summary, body); err != nil {
		n.log.Warn("notification failed", slog.String("error", err.Error()))
	}
}

// SessionEnded sends a summary notification for a finalized session.
func (n *Notifier) SessionEnded(s session.StudySession) {
	if !n.cfg.OnSessionEnd {
		return
	}

	body := fmt.Sprintf("Focus score %d%% over %s", s.FocusScore, formatDuration(s.DurationSec))
	if err := n.sender.Send("Study session complete", body); err != nil {
		n.log.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func formatDuration(sec int64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%02ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%02dm", sec/3600, (sec%3600)/60)
}
