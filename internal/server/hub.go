package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"focusd/internal/audio"
	"focusd/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxFrameBytes  = 8 * 1024 * 1024
	sendBufferSize = 64

	// DefaultFrameTTL is how long a received frame stays usable for
	// sampling before the feed counts as stale.
	DefaultFrameTTL = 15 * time.Second
)

// CommandHandler processes control messages from connected clients.
// A non-nil reply is sent back to the originating client only.
type CommandHandler interface {
	HandleCommand(clientID string, msg Message) *Message
}

type client struct {
	conn *websocket.Conn
	id   string

	sendMu sync.Mutex
	send   chan Message
	closed bool
}

// trySend queues a message for the client, dropping it if the buffer is
// full or the client is already gone. A slow page must not stall the
// daemon.
func (c *client) trySend(msg Message) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend closes the send channel exactly once. Serializing with
// trySend keeps concurrent senders off the closed channel.
func (c *client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks connected websocket clients. It doubles as the frame source
// for the sampler and as the audio transport: the newest FRAME received
// from any client is the current webcam snapshot, and audio commands are
// broadcast to every client for rendering.
type Hub struct {
	log      *slog.Logger
	met      *metrics.FocusdMetrics
	handler  CommandHandler
	frameTTL time.Duration

	mu          sync.RWMutex
	clients     map[string]*client
	latestFrame []byte
	lastFrameAt time.Time

	nextID atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(handler CommandHandler, met *metrics.FocusdMetrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.NewFocusdMetrics()
	}
	return &Hub{
		log:      log,
		met:      met,
		handler:  handler,
		frameTTL: DefaultFrameTTL,
		clients:  make(map[string]*client),
	}
}

// ServeWS upgrades an HTTP request and runs the client until disconnect.
func (h *Hub) ServeWS(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = fmt.Sprintf("client-%d", h.nextID.Add(1))
	}

	c := &client{
		conn: conn,
		id:   clientID,
		send: make(chan Message, sendBufferSize),
	}

	h.mu.Lock()
	old := h.clients[clientID]
	h.clients[clientID] = c
	count := len(h.clients)
	h.mu.Unlock()
	if old != nil {
		old.closeSend()
		old.conn.Close()
	}
	h.met.ClientsConnected.Set(int64(count))
	h.log.Info("client connected", slog.String("client_id", clientID))

	go h.writePump(c)

	welcome := newMessage(MsgWelcome, map[string]any{
		"message": "Connected to focusd",
		"version": "1.0",
	})
	welcome.ClientID = clientID
	c.trySend(welcome)

	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
		h.log.Info("client disconnected", slog.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()))
			}
			return
		}
		h.met.MessagesIn.Inc()

		switch msg.Type {
		case MsgPing:
			pong := newMessage(MsgPong, nil)
			pong.ClientID = c.id
			c.trySend(pong)

		case MsgFrame:
			h.storeFrame(c, msg.Payload)

		default:
			if h.handler == nil {
				continue
			}
			if reply := h.handler.HandleCommand(c.id, msg); reply != nil {
				reply.ClientID = c.id
				c.trySend(*reply)
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
			h.met.MessagesOut.Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) storeFrame(c *client, payload json.RawMessage) {
	var frame FramePayload
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Data == "" {
		errMsg := newMessage(MsgError, ErrorPayload{Message: "malformed frame payload"})
		c.trySend(errMsg)
		return
	}

	h.mu.Lock()
	h.latestFrame = []byte(frame.Data)
	h.lastFrameAt = time.Now()
	h.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	count := len(h.clients)
	h.mu.Unlock()
	c.closeSend()
	h.met.ClientsConnected.Set(int64(count))
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.trySend(msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	dropped := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		dropped = append(dropped, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, c := range dropped {
		c.closeSend()
		c.conn.Close()
	}
	h.met.ClientsConnected.Set(0)
}

// Frame source for the sampler.

// Ready reports whether a client is connected and has delivered a frame
// recently enough to sample.
func (h *Hub) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 || h.latestFrame == nil {
		return false
	}
	return time.Since(h.lastFrameAt) <= h.frameTTL
}

// Snapshot returns a copy of the newest frame.
func (h *Hub) Snapshot() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latestFrame == nil {
		return nil, fmt.Errorf("no frame received yet")
	}
	out := make([]byte, len(h.latestFrame))
	copy(out, h.latestFrame)
	return out, nil
}

// Audio transport: playback happens in the browser, driven by broadcasts.

// Play asks connected clients to start the given track.
func (h *Hub) Play(track audio.Track, volume float64) error {
	if h.ClientCount() == 0 {
		return fmt.Errorf("no clients connected")
	}
	h.Broadcast(newMessage(MsgAudioPlay, AudioPlayPayload{
		Name:   track.Name,
		Kind:   string(track.Kind),
		Noise:  string(track.Noise),
		Path:   track.Path,
		Volume: volume,
	}))
	return nil
}

// SetVolume moves clients to the target volume immediately.
func (h *Hub) SetVolume(v float64) {
	h.Broadcast(newMessage(MsgAudioVolume, AudioVolumePayload{Volume: v}))
}

// Ramp moves clients to the target volume over the given duration.
func (h *Hub) Ramp(target float64, over time.Duration) {
	h.Broadcast(newMessage(MsgAudioVolume, AudioVolumePayload{
		Volume: target,
		RampMs: over.Milliseconds(),
	}))
}

// Stop halts playback on all clients.
func (h *Hub) Stop() {
	h.Broadcast(newMessage(MsgAudioStop, nil))
}
