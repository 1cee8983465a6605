package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is the frame pushed to connected clients.
type Message struct {
	Type      string         `json:"type"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content,omitempty"`
	LinkURL   string         `json:"link_url,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const MessageTypeNotification = "notification"

// Manager tracks connections per employee and fans messages out to them. An
// employee may hold several connections (multiple tabs).
type Manager struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[*connection]struct{}
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closed      bool
}

type connection struct {
	employeeID uuid.UUID
	conn       *websocket.Conn
	send       chan Message
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[uuid.UUID]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleConnection upgrades the request and pumps messages until the client
// goes away. The caller has already authenticated employeeID.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, employeeID uuid.UUID) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &connection{
		employeeID: employeeID,
		conn:       ws,
		send:       make(chan Message, 64),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ws.Close()
		return fmt.Errorf("manager closed")
	}
	if m.connections[employeeID] == nil {
		m.connections[employeeID] = make(map[*connection]struct{})
	}
	m.connections[employeeID][c] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("websocket connected", zap.String("employee_id", employeeID.String()))

	go m.writePump(c)
	go m.readPump(c)
	return nil
}

func (m *Manager) remove(c *connection) {
	m.mu.Lock()
	if set, ok := m.connections[c.employeeID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(m.connections, c.employeeID)
		}
	}
	m.mu.Unlock()
	c.conn.Close()
}

func (m *Manager) readPump(c *connection) {
	defer m.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		// Clients only listen; reads just service control frames.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

func (m *Manager) writePump(c *connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendToEmployee pushes a message to every live connection of an employee.
// An offline employee is not an error; the in-app record is the durable copy.
func (m *Manager) SendToEmployee(employeeID uuid.UUID, msg Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for c := range m.connections[employeeID] {
		select {
		case c.send <- msg:
		default:
			m.logger.Warn("websocket send buffer full, dropping message",
				zap.String("employee_id", employeeID.String()))
		}
	}
}

// ConnectionCount reports live connections, used by the health endpoint.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, set := range m.connections {
		total += len(set)
	}
	return total
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, set := range m.connections {
		for c := range set {
			close(c.send)
			c.conn.Close()
		}
	}
	m.connections = make(map[uuid.UUID]map[*connection]struct{})
}
