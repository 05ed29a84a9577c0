package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focustimer/go/internal/widget"
)

// ConnectionManager pushes timer views to WebSocket clients. It implements
// widget.Display.
type ConnectionManager struct {
	connections map[*Connection]bool
	latest      map[string]widget.View // by widget id
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *DisplayEvent
}

var _ widget.Display = (*ConnectionManager)(nil)

// Connection is one display client.
type Connection struct {
	ID       string
	WidgetID string // empty means every widget
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			// The host embeds the readout from its own origin.
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. Call Start to begin
// delivering views.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		latest:      make(map[string]widget.View),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		// A running timer produces ten views per second.
		broadcastCh: make(chan *DisplayEvent, 256),
	}
}

// Start delivers queued views until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// Show implements widget.Display. It never blocks the caller; views are
// dropped when the queue is full.
func (cm *ConnectionManager) Show(view widget.View) {
	cm.mu.Lock()
	cm.latest[view.WidgetID] = view
	cm.mu.Unlock()

	event := &DisplayEvent{
		ID:        uuid.New().String(),
		WidgetID:  view.WidgetID,
		Type:      EventTypeTimerView,
		Timestamp: time.Now(),
		Data:      view,
	}

	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("widget_id", view.WidgetID).Msg("broadcast channel full, dropping view")
	}
}

// Latest returns the last view shown for widgetID.
func (cm *ConnectionManager) Latest(widgetID string) (widget.View, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	v, ok := cm.latest[widgetID]
	return v, ok
}

// UpgradeConnection upgrades an HTTP request to a display connection. The
// client first receives the latest known views.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, widgetID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		WidgetID:    widgetID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("widget_id", widgetID).
		Msg("display connection established")

	return nil
}

// registerConnection adds a connection and queues the latest views for it.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	for id, view := range cm.latest {
		if conn.WidgetID != "" && conn.WidgetID != id {
			continue
		}
		data, err := json.Marshal(&DisplayEvent{
			ID:        uuid.New().String(),
			WidgetID:  id,
			Type:      EventTypeTimerView,
			Timestamp: time.Now(),
			Data:      view,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal state sync view")
			continue
		}
		select {
		case conn.Send <- data:
		default:
		}
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("widget_id", conn.WidgetID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(event *DisplayEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal view for broadcast")
		return
	}

	// Sends happen under the read lock so that no Send channel is closed
	// while a message is being queued on it.
	var slow []*Connection
	cm.mu.RLock()
	for conn := range cm.connections {
		if conn.WidgetID != "" && conn.WidgetID != event.WidgetID {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"known_widgets":     len(cm.latest),
	}
}

// writePump sends queued messages and keepalive pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and detects disconnects. Display
// clients do not send commands.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
