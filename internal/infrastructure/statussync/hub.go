package statussync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// Client to server frames.
const (
	EventIdentify   = "identify"
	EventIdentified = "identified"
)

// identifyFrame is the first message a client sends when it did not pass
// ?student_id on the upgrade request.
type identifyFrame struct {
	Event     string `json:"event"`
	StudentID string `json:"student_id"`
}

// HubConfig configures the WebSocket hub.
type HubConfig struct {
	// SendBuffer is the per-connection queue. Updates are dropped when full.
	SendBuffer int

	// IdentifyTimeout bounds how long a client may take to announce itself.
	IdentifyTimeout time.Duration

	WriteTimeout time.Duration
	PongWait     time.Duration

	// CheckOrigin overrides the upgrader's origin check. nil accepts all.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:      16,
		IdentifyTimeout: 10 * time.Second,
		WriteTimeout:    5 * time.Second,
		PongWait:        60 * time.Second,
	}
}

// Hub keeps WebSocket connections grouped by student and pushes status
// updates to them. It implements escalation.StatusPublisher.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	conns  map[string]map[*client]struct{}
	closed bool
	wg     sync.WaitGroup
}

type client struct {
	studentID string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	once      sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// NewHub creates a hub.
func NewHub(config HubConfig) *Hub {
	def := DefaultHubConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = def.SendBuffer
	}
	if config.IdentifyTimeout <= 0 {
		config.IdentifyTimeout = def.IdentifyTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.PongWait <= 0 {
		config.PongWait = def.PongWait
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  config.Logger.With("component", "statussync"),
		metrics: &Metrics{},
		conns:   make(map[string]map[*client]struct{}),
	}
}

// Metrics returns the hub's counters.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	if studentID == "" {
		studentID, err = h.awaitIdentify(ws)
		if err != nil {
			h.logger.Debug("websocket client did not identify", "error", err)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "identify required"),
				time.Now().Add(time.Second))
			_ = ws.Close()
			return
		}
	}

	c := &client{
		studentID: studentID,
		ws:        ws,
		send:      make(chan []byte, h.config.SendBuffer),
		done:      make(chan struct{}),
	}
	if !h.register(c) {
		c.close()
		return
	}

	ack, _ := json.Marshal(map[string]any{"event": EventIdentified, "student_id": studentID})
	c.send <- ack

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()

	h.readLoop(c)
	h.unregister(c)
	c.close()
}

func (h *Hub) awaitIdentify(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.config.IdentifyTimeout))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	var frame identifyFrame
	if err := ws.ReadJSON(&frame); err != nil {
		return "", fmt.Errorf("read identify: %w", err)
	}
	id := strings.TrimSpace(frame.StudentID)
	if frame.Event != EventIdentify || id == "" {
		return "", ErrMissingStudentID
	}
	return id, nil
}

// readLoop drains client frames so control messages are processed. The
// identity is fixed at connect; later frames, identify included, are
// ignored.
func (h *Hub) readLoop(c *client) {
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(h.config.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[c.studentID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[c.studentID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("websocket client identified", "student_id", c.studentID)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[c.studentID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.studentID)
		}
	}
}

// Connections returns the number of live connections for a student.
func (h *Hub) Connections(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[studentID])
}

// Publish queues the update on every connection of the student. A full
// queue drops the update for that connection only.
func (h *Hub) Publish(_ context.Context, studentID string, update engagement.StatusUpdate) error {
	data, err := json.Marshal(Envelope{Event: EventStatusUpdate, Data: &update})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}

	h.metrics.published.Add(1)
	for c := range h.conns[studentID] {
		select {
		case c.send <- data:
			h.metrics.delivered.Add(1)
		default:
			h.metrics.dropped.Add(1)
			h.logger.Warn("status update dropped, client too slow", "student_id", studentID)
		}
	}
	return nil
}

// Close disconnects every client and waits for writers to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*client
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		c.close()
	}
	h.wg.Wait()
	return nil
}
