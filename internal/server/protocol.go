// Package server exposes focusd over HTTP and WebSocket.
//
// The browser front end is both the capture device and the audio renderer:
// it streams webcam frames up over the socket and receives playback
// commands back. The HTTP API mirrors the socket controls for CLI use.
package server

import (
	"encoding/json"
	"time"
)

// Message is the envelope for every websocket frame in both directions.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client-to-daemon message types.
const (
	MsgPing           = "PING"
	MsgFrame          = "FRAME"
	MsgStartSession   = "START_SESSION"
	MsgStopSession    = "STOP_SESSION"
	MsgTrigger        = "TRIGGER"
	MsgSetSensitivity = "SET_SENSITIVITY"
	MsgSetVolume      = "SET_VOLUME"
	MsgSelectTrack    = "SELECT_TRACK"
	MsgNextTrack      = "NEXT_TRACK"
	MsgPrevTrack      = "PREV_TRACK"
	MsgPlay           = "PLAY"
	MsgPause          = "PAUSE"
)

// Daemon-to-client message types.
const (
	MsgWelcome      = "WELCOME"
	MsgPong         = "PONG"
	MsgStatus       = "STATUS"
	MsgRawResult    = "RAW_RESULT"
	MsgBusy         = "BUSY"
	MsgSessionStart = "SESSION_STARTED"
	MsgSessionEnd   = "SESSION_ENDED"
	MsgAudioPlay    = "AUDIO_PLAY"
	MsgAudioVolume  = "AUDIO_VOLUME"
	MsgAudioStop    = "AUDIO_STOP"
	MsgError        = "ERROR"
)

// FramePayload carries one webcam frame, base64 JPEG or a data URI.
type FramePayload struct {
	Data string `json:"data"`
}

// SensitivityPayload adjusts the debounce threshold.
type SensitivityPayload struct {
	Level int `json:"level"`
}

// VolumePayload adjusts the base playback volume.
type VolumePayload struct {
	Volume float64 `json:"volume"`
}

// TrackPayload selects a background track by index.
type TrackPayload struct {
	Index int `json:"index"`
}

// AudioPlayPayload tells the browser to start a track at a volume.
type AudioPlayPayload struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Noise  string  `json:"noise,omitempty"`
	Path   string  `json:"path,omitempty"`
	Volume float64 `json:"volume"`
}

// AudioVolumePayload tells the browser to move to a target volume,
// ramping over RampMs where the renderer supports it.
type AudioVolumePayload struct {
	Volume float64 `json:"volume"`
	RampMs int64   `json:"ramp_ms,omitempty"`
}

// ErrorPayload reports a rejected command.
type ErrorPayload struct {
	Message string `json:"message"`
}

// newMessage builds an envelope with a marshaled payload. Marshal failures
// produce an empty payload rather than an error; payload types here are
// all plain structs.
func newMessage(msgType string, payload any) Message {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			msg.Payload = data
		}
	}
	return msg
}
