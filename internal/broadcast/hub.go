package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	maxMsgSize = 4096
	sendBuffer = 64
)

// Connection wraps a websocket with its owner. Data frames are written only by
// the connection's write pump; pings and close frames go through WriteControl,
// which gorilla allows concurrently with the pump.
type Connection struct {
	conn   *websocket.Conn
	UserID int64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	seenMu   sync.Mutex
	lastSeen time.Time
}

// enqueue hands data to the write pump without blocking. It reports false when
// the buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) touch() {
	c.seenMu.Lock()
	c.lastSeen = time.Now()
	c.seenMu.Unlock()
}

func (c *Connection) idle() time.Duration {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	return time.Since(c.lastSeen)
}

// Hub is the in-process registry of websocket sessions, keyed by user.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*Connection]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]map[*Connection]struct{}),
		logger:      logger,
	}
}

// Add registers a connection for a user.
func (h *Hub) Add(userID int64, conn *websocket.Conn) *Connection {
	c := &Connection{
		conn:     conn,
		UserID:   userID,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}

	h.mu.Lock()
	if _, ok := h.connections[userID]; !ok {
		h.connections[userID] = make(map[*Connection]struct{})
	}
	h.connections[userID][c] = struct{}{}
	total := len(h.connections[userID])
	h.mu.Unlock()

	go h.writePump(c)

	h.logger.Debug("ws connected", zap.Int64("user_id", userID), zap.Int("connections", total))
	return c
}

// writePump is the only writer of data frames on c. It exits when c is removed
// or a write fails.
func (h *Hub) writePump(c *Connection) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("failed ws send", zap.Int64("user_id", c.UserID), zap.Error(err))
				h.Remove(c)
				return
			}
		}
	}
}

// Remove unregisters and closes a connection. Safe to call more than once.
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	if conns, ok := h.connections[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.connections, c.UserID)
		}
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		h.logger.Debug("ws disconnected", zap.Int64("user_id", c.UserID))
	})
}

// Serve reads from the connection until it fails, then removes it. Client
// messages are ignored; reading is what processes pongs and close frames.
func (h *Hub) Serve(c *Connection) {
	defer h.Remove(c)

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.touch()
	}
}

// TryEmit queues the event on every session of the user and returns without
// waiting for the writes. A session whose buffer is full is dropped.
func (h *Hub) TryEmit(userID int64, event string, payload any) {
	data, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		h.logger.Warn("failed to encode ws event", zap.String("event", event), zap.Error(err))
		return
	}

	for _, c := range h.snapshot(userID) {
		if !c.enqueue(data) {
			h.logger.Warn("ws send buffer full, dropping session",
				zap.Int64("user_id", userID), zap.String("event", event))
			go h.Remove(c)
		}
	}
}

// ConnectionCount reports how many sessions the user has open.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Heartbeat pings every connection each interval and drops the ones that
// have been silent for more than two intervals. It returns when stop closes.
func (h *Hub) Heartbeat(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for _, c := range h.all() {
			if c.idle() > 2*interval {
				go h.Remove(c)
				continue
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				go h.Remove(c)
			}
		}
	}
}

// CloseAll disconnects every session, used on shutdown.
func (h *Hub) CloseAll() {
	for _, c := range h.all() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.Remove(c)
	}
}

func (h *Hub) snapshot(userID int64) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections[userID]))
	for c := range h.connections[userID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) all() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Connection
	for _, conns := range h.connections {
		for c := range conns {
			out = append(out, c)
		}
	}
	return out
}
