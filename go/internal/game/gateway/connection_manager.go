package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/rs/zerolog/log"
)

// IntentSink is where validated-shape participant intents go: the host
// manager's serialized command queue.
type IntentSink interface {
	SubmitCommand(ctx context.Context, code string, cmd engine.Command) error
}

// ConnectionManager manages WebSocket connections for session snapshots
// and participant intents.
type ConnectionManager struct {
	// Connection pools organized by session join code
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	sink IntentSink

	// Connection configuration
	config ConnectionConfig

	// Snapshot broadcasting
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a participant device.
type Connection struct {
	ID             string
	ParticipantRef string
	Code           string
	Conn           *websocket.Conn
	Send           chan []byte
	Manager        *ConnectionManager

	// Guards Send against a concurrent close on disconnect. Only
	// trySend and closeSend may touch the channel's lifecycle.
	sendMu sync.Mutex
	closed bool

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// trySend queues a frame unless the connection is closed or its buffer
// is full. Sends and the close race freely, so both sides serialize on
// the connection's own mutex.
func (c *Connection) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a frame to fan out to connections.
type BroadcastMessage struct {
	Code         string
	Payload      []byte
	ConnectionID string // Optional: if set, only send to this connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(sink IntentSink, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		sink:        sink,
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// BroadcastSnapshot queues a full session snapshot for every observer of
// a session. The send is fire-and-forget; a full queue drops the frame,
// which is safe because every later snapshot is self-contained.
func (cm *ConnectionManager) BroadcastSnapshot(code string, snapshot *models.Session) {
	msg, err := NewSnapshotMessage(snapshot)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to build snapshot message")
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to marshal snapshot frame")
		return
	}
	cm.BroadcastRaw(code, payload)
}

// BroadcastRaw queues an already-encoded frame for a session's pool.
func (cm *ConnectionManager) BroadcastRaw(code string, payload []byte) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Code: code, Payload: payload}:
	default:
		log.Warn().Str("code", code).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantRef, code string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	// Create connection object
	connection := &Connection{
		ID:             uuid.New().String(),
		ParticipantRef: participantRef,
		Code:           code,
		Conn:           conn,
		Send:           make(chan []byte, 256),
		Manager:        cm,
		ConnectedAt:    time.Now(),
		LastPing:       time.Now(),
	}

	// Register the connection
	cm.registerConnection(connection)

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_ref", participantRef).
		Str("code", code).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.Code] == nil {
		cm.sessionConnections[conn.Code] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.Code][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("code", conn.Code).
		Int("total_connections", len(cm.sessionConnections[conn.Code])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.sessionConnections[conn.Code]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.closeSend()

			// Clean up empty session connection pools
			if len(connections) == 0 {
				delete(cm.sessionConnections, conn.Code)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_ref", conn.ParticipantRef).
				Str("code", conn.Code).
				Msg("connection unregistered")
		}
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.Code]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Create a snapshot of connections to avoid holding lock during broadcast
	var targetConnections []*Connection
	for conn := range connections {
		if message.ConnectionID != "" && conn.ID != message.ConnectionID {
			continue
		}
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	// Send to all target connections
	for _, conn := range targetConnections {
		if !conn.trySend(message.Payload) {
			// Connection is slow or already gone, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_ref", conn.ParticipantRef).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}

	log.Debug().
		Str("code", message.Code).
		Int("connections", len(targetConnections)).
		Msg("frame broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() (totalConnections, activeSessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.sessionConnections {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.sessionConnections)
}

// writePump handles sending messages to the WebSocket connection
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
				// Channel was closed
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
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
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

		c.handleIntent(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleIntent parses a participant frame and submits it to the host
// queue. Claim losses are answered to this connection only; every other
// rejection is invisible resilience against stale or replayed intents.
func (c *Connection) handleIntent(raw []byte) {
	cmd, err := ParseIntent(raw, c.ParticipantRef)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("discarding malformed intent frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Manager.sink.SubmitCommand(ctx, c.Code, cmd)
	if err == nil {
		return
	}

	if errors.Is(err, session.ErrAlreadyClaimed) {
		c.sendClaimRejected(cmd.TeamIndex)
		return
	}

	log.Debug().
		Err(err).
		Str("connection_id", c.ID).
		Str("code", c.Code).
		Msg("intent dropped")
}

func (c *Connection) sendClaimRejected(teamIndex int) {
	payload, err := json.Marshal(ClaimRejectedPayload{
		TeamIndex: teamIndex,
		Reason:    "already claimed",
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(Message{
		Type:      MessageTypeClaimRejected,
		Code:      c.Code,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}
