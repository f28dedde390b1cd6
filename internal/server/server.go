package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"focusd/internal/audio"
	"focusd/internal/classify"
	"focusd/internal/health"
	"focusd/internal/metrics"
	"focusd/internal/monitor"
	"focusd/internal/session"
	"focusd/internal/store"
)

// Config controls the HTTP listener.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	HistoryLimit    int
}

// DefaultConfig returns listener defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8750",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		HistoryLimit:    50,
	}
}

// Deps are the daemon components the server exposes.
type Deps struct {
	Monitor *monitor.Monitor
	Audio   *audio.Controller
	Store   store.Store
	Health  *health.Checker
	Metrics *metrics.FocusdMetrics
	Log     *slog.Logger
}

// Server is the HTTP and websocket front door of the daemon.
type Server struct {
	cfg  Config
	deps Deps
	hub  *Hub
	http *http.Server
	log  *slog.Logger
}

// New creates a server and wires the hub into the monitor's frame feed
// and result fan-out.
func New(cfg Config, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log,
	}
	s.hub = NewHub(s, deps.Metrics, deps.Log.With(slog.String("component", "hub")))

	deps.Monitor.SetFrameSource(s.hub)
	deps.Monitor.OnRaw(func(r classify.Result) {
		s.hub.Broadcast(newMessage(MsgRawResult, r))
	})
	deps.Monitor.OnStatusChange(func(st classify.Status) {
		s.broadcastStatus()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/session/start", s.handleSessionStart)
	mux.HandleFunc("/api/session/stop", s.handleSessionStop)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.HandleFunc("/api/sensitivity", s.handleSensitivity)
	mux.HandleFunc("/api/volume", s.handleVolume)
	if deps.Health != nil {
		mux.Handle("/healthz", deps.Health.HealthHandler())
		mux.Handle("/readyz", deps.Health.ReadinessHandler())
		mux.Handle("/livez", deps.Health.LivenessHandler())
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Registry.Handler())
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Hub returns the websocket hub, used by callers to broadcast events
// such as classifier busy notices and session summaries.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe blocks serving HTTP until shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", slog.String("addr", s.cfg.ListenAddr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and drops all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)
	s.hub.Close()
	return err
}

// BroadcastBusy forwards a classifier retry notice to all clients.
func (s *Server) BroadcastBusy(r classify.Result) {
	s.hub.Broadcast(newMessage(MsgBusy, r))
}

// BroadcastSessionEnd forwards a finalized session to all clients.
func (s *Server) BroadcastSessionEnd(done session.StudySession) {
	s.hub.Broadcast(newMessage(MsgSessionEnd, done))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.hub.ServeWS(upgrader, w, r)
}

// statusPayload is the combined daemon state for STATUS messages and
// the /api/status endpoint.
type statusPayload struct {
	monitor.Snapshot
	Audio   audio.State `json:"audio"`
	Clients int         `json:"clients"`
}

func (s *Server) status() statusPayload {
	return statusPayload{
		Snapshot: s.deps.Monitor.Snapshot(),
		Audio:    s.deps.Audio.State(),
		Clients:  s.hub.ClientCount(),
	}
}

func (s *Server) broadcastStatus() {
	s.hub.Broadcast(newMessage(MsgStatus, s.status()))
}

// HandleCommand implements CommandHandler for websocket control messages.
func (s *Server) HandleCommand(clientID string, msg Message) *Message {
	switch msg.Type {
	case MsgStartSession:
		if err := s.deps.Monitor.Start(); err != nil {
			return errorReply(err)
		}
		s.broadcastStatus()
		reply := newMessage(MsgSessionStart, s.status())
		return &reply

	case MsgStopSession:
		done, err := s.deps.Monitor.Stop()
		if err != nil {
			return errorReply(err)
		}
		s.BroadcastSessionEnd(done)
		s.broadcastStatus()
		return nil

	case MsgTrigger:
		s.deps.Monitor.TriggerNow()
		return nil

	case MsgSetSensitivity:
		var p SensitivityPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorReply(fmt.Errorf("malformed sensitivity payload"))
		}
		s.deps.Monitor.SetSensitivity(p.Level)
		s.broadcastStatus()
		return nil

	case MsgSetVolume:
		var p VolumePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorReply(fmt.Errorf("malformed volume payload"))
		}
		s.deps.Audio.SetBaseVolume(p.Volume)
		s.broadcastStatus()
		return nil

	case MsgSelectTrack:
		var p TrackPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorReply(fmt.Errorf("malformed track payload"))
		}
		if err := s.deps.Audio.SelectTrack(p.Index); err != nil {
			return errorReply(err)
		}
		s.broadcastStatus()
		return nil

	case MsgNextTrack:
		if err := s.deps.Audio.NextTrack(); err != nil {
			return errorReply(err)
		}
		s.broadcastStatus()
		return nil

	case MsgPrevTrack:
		if err := s.deps.Audio.PrevTrack(); err != nil {
			return errorReply(err)
		}
		s.broadcastStatus()
		return nil

	case MsgPlay:
		if !s.deps.Monitor.Running() {
			return errorReply(fmt.Errorf("start a session before playing audio"))
		}
		if err := s.deps.Audio.Play(); err != nil {
			return errorReply(err)
		}
		s.broadcastStatus()
		return nil

	case MsgPause:
		s.deps.Audio.Pause()
		s.broadcastStatus()
		return nil

	default:
		s.log.Debug("unknown message type",
			slog.String("client_id", clientID),
			slog.String("type", msg.Type))
		return errorReply(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func errorReply(err error) *Message {
	msg := newMessage(MsgError, ErrorPayload{Message: err.Error()})
	return &msg
}

// HTTP API.

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := s.cfg.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.deps.Store.ListSessions(limit)
	if err != nil {
		s.log.Error("list sessions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []session.StudySession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.deps.Monitor.Start(); err != nil {
		if err == session.ErrSessionActive {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.broadcastStatus()
	writeJSON(w, http.StatusCreated, s.status())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	done, err := s.deps.Monitor.Stop()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.BroadcastSessionEnd(done)
	s.broadcastStatus()
	writeJSON(w, http.StatusOK, done)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fired := s.deps.Monitor.TriggerNow()
	writeJSON(w, http.StatusOK, map[string]bool{"fired": fired})
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var p SensitivityPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.deps.Monitor.SetSensitivity(p.Level)
	s.broadcastStatus()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var p VolumePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.deps.Audio.SetBaseVolume(p.Volume)
	s.broadcastStatus()
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
