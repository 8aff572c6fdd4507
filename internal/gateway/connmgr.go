package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Conn represents a single WebSocket connection.
type Conn struct {
	ID          string
	WS          *websocket.Conn
	ConnectedAt time.Time

	writeMu sync.Mutex

	localeMu sync.RWMutex
	locale   string
}

// Send writes a frame to the WebSocket connection (thread-safe).
func (c *Conn) Send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.WS.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WS.WriteJSON(frame)
}

func (c *Conn) Locale() string {
	c.localeMu.RLock()
	defer c.localeMu.RUnlock()
	return c.locale
}

func (c *Conn) SetLocale(locale string) {
	c.localeMu.Lock()
	defer c.localeMu.Unlock()
	c.locale = locale
}

// ConnManager tracks all active WebSocket connections.
type ConnManager struct {
	mu    sync.RWMutex
	conns map[string]*Conn // connID → conn
	seq   int64
}

func NewConnManager() *ConnManager {
	return &ConnManager{conns: make(map[string]*Conn)}
}

// Add registers a new connection.
func (m *ConnManager) Add(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID] = conn
}

// Remove unregisters a connection.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

// Get returns a connection by ID.
func (m *ConnManager) Get(connID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connID]
}

func (m *ConnManager) snapshot() (int64, []*Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return m.seq, conns
}

// Broadcast sends an event to all connections.
func (m *ConnManager) Broadcast(event string, payload any) {
	seq, conns := m.snapshot()
	frame := EventFrame(event, seq, payload)
	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			slog.Warn("broadcast failed", "conn", conn.ID, "error", err)
		}
	}
}

// BroadcastLocalized sends an event whose payload depends on each
// connection's locale. render is called once per distinct locale.
func (m *ConnManager) BroadcastLocalized(event string, render func(locale string) any) {
	seq, conns := m.snapshot()
	frames := make(map[string]Frame)
	for _, conn := range conns {
		locale := conn.Locale()
		frame, ok := frames[locale]
		if !ok {
			frame = EventFrame(event, seq, render(locale))
			frames[locale] = frame
		}
		if err := conn.Send(frame); err != nil {
			slog.Warn("broadcast failed", "conn", conn.ID, "error", err)
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *ConnManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ReadFrame reads and parses a WebSocket message into a Frame.
func ReadFrame(ws *websocket.Conn) (Frame, error) {
	var frame Frame
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return frame, err
	}
	err = json.Unmarshal(msg, &frame)
	return frame, err
}
