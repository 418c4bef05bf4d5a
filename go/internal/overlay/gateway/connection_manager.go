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

	"github.com/overlaykit/overlaykit/go/internal/overlay/events"
)

// History is what the manager needs for join replay. The redis-backed
// implementation lives in the history package.
type History interface {
	Append(ctx context.Context, userHash string, ev events.LiveEvent) error
	Recent(ctx context.Context, userHash string, limit int) ([]events.LiveEvent, error)
}

// joinReplayLimit caps how many recent events a freshly joined overlay
// receives so it paints something before live traffic arrives.
const joinReplayLimit = 50

// ConnectionManager owns every overlay WebSocket connection and the
// per-tenant rooms they join. A room is keyed by the tenant's userHash; a
// connection belongs to at most one room at a time and moves between rooms
// via join-overlay / leave-overlay messages.
type ConnectionManager struct {
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	history  History

	broadcastCh chan BroadcastMessage
}

// Connection represents one overlay page's socket.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Room membership; guarded by the manager's mutex.
	UserHash string
	closed   bool

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for overlay WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage targets every connection in a room, minus an optional
// sender to exclude (a client triggering a test event already renders it
// locally).
type BroadcastMessage struct {
	UserHash string
	Envelope events.Envelope
	Exclude  *Connection
}

// DefaultConnectionConfig returns the production WebSocket configuration.
// Overlay pages run inside streaming software, so origins are not restricted.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. history may be nil, in
// which case joins skip replay.
func NewConnectionManager(config ConnectionConfig, history History) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		history:     history,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("overlay connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("overlay connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket and starts the
// connection's pumps. When userHash is non-empty the connection joins that
// room immediately; otherwise it waits for a join-overlay message.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userHash string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade overlay connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	go connection.writePump()
	go connection.readPump()

	if userHash != "" {
		cm.joinRoom(connection, userHash)
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_hash", userHash).
		Msg("overlay connection established")

	return nil
}

// joinRoom moves a connection into the room for userHash, leaving any room
// it was in first, then replays recent events to just that connection.
func (cm *ConnectionManager) joinRoom(conn *Connection, userHash string) {
	cm.mu.Lock()
	if conn.UserHash != "" {
		cm.removeFromRoomLocked(conn)
	}
	if cm.rooms[userHash] == nil {
		cm.rooms[userHash] = make(map[*Connection]bool)
	}
	cm.rooms[userHash][conn] = true
	conn.UserHash = userHash
	total := len(cm.rooms[userHash])
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("user_hash", userHash).
		Int("room_connections", total).
		Msg("connection joined overlay room")

	cm.replayHistory(conn, userHash)
}

// leaveRoom removes a connection from its room without closing the socket.
func (cm *ConnectionManager) leaveRoom(conn *Connection) {
	cm.mu.Lock()
	cm.removeFromRoomLocked(conn)
	cm.mu.Unlock()
}

// removeFromRoomLocked detaches conn from its current room. Caller holds mu.
func (cm *ConnectionManager) removeFromRoomLocked(conn *Connection) {
	hash := conn.UserHash
	if hash == "" {
		return
	}
	if room, exists := cm.rooms[hash]; exists {
		delete(room, conn)
		if len(room) == 0 {
			delete(cm.rooms, hash)
		}
	}
	conn.UserHash = ""

	log.Debug().
		Str("connection_id", conn.ID).
		Str("user_hash", hash).
		Msg("connection left overlay room")
}

// roomHash snapshots the connection's current room under the manager's
// mutex. The read pump uses this; the field itself is written by join/leave
// and the broadcast goroutine's slow-consumer eviction.
func (c *Connection) roomHash() string {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	return c.UserHash
}

// unregisterConnection fully detaches a closed connection. Safe to call from
// both the read pump and the broadcast slow-consumer path.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return
	}
	conn.closed = true
	cm.removeFromRoomLocked(conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Msg("overlay connection unregistered")
}

// replayHistory sends the room's recent events to a single connection.
func (cm *ConnectionManager) replayHistory(conn *Connection, userHash string) {
	if cm.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	recent, err := cm.history.Recent(ctx, userHash, joinReplayLimit)
	if err != nil {
		log.Error().Err(err).Str("user_hash", userHash).Msg("failed to load room history for replay")
		return
	}

	for _, ev := range recent {
		data, err := json.Marshal(events.NewEnvelope(events.EventNewEvent, ev))
		if err != nil {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			return
		}
	}
}

// BroadcastToRoom queues an envelope for every connection in a room.
func (cm *ConnectionManager) BroadcastToRoom(userHash string, env events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{UserHash: userHash, Envelope: env}:
	default:
		log.Warn().Str("user_hash", userHash).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast fans a message out to its room.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	room, exists := cm.rooms[message.UserHash]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	targets := make([]*Connection, 0, len(room))
	for conn := range room {
		if conn == message.Exclude {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Envelope)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it.
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event", message.Envelope.Event).
		Str("user_hash", message.UserHash).
		Int("connections", len(targets)).
		Msg("envelope broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (totalConnections, activeRooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, room := range cm.rooms {
		totalConnections += len(room)
	}
	return totalConnections, len(cm.rooms)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
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
					Msg("failed to write message to overlay socket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads envelopes from the client and dispatches them.
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
					Msg("unexpected overlay socket close")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage routes a client-emitted envelope: room membership,
// settings-update notifications, and test triggers rebroadcast to the room.
func (c *Connection) handleClientMessage(message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		return
	}

	switch env.Event {
	case events.EventJoinOverlay:
		hash := joinHash(env.Data)
		if hash == "" {
			log.Debug().Str("connection_id", c.ID).Msg("join-overlay without userHash ignored")
			return
		}
		c.Manager.joinRoom(c, hash)

	case events.EventLeaveOverlay:
		c.Manager.leaveRoom(c)

	case events.EventSettingsUpdate:
		payload, err := events.ParseEventPayload(env)
		if err != nil {
			log.Debug().Str("connection_id", c.ID).Msg("malformed settings-update ignored")
			return
		}
		update := payload.(events.SettingsUpdatePayload)
		hash := update.UserHash
		if hash == "" {
			hash = c.roomHash()
		}
		if hash == "" {
			return
		}
		c.Manager.broadcastExcluding(hash, events.NewEnvelope(events.EventSettingsUpdated, events.SettingsUpdatePayload{Key: update.Key}), nil)

	case events.EventRouletteSpin, events.EventPollStart, events.EventPollVote,
		events.EventPollEnd, events.EventEmojiReaction, events.EventEmojiBurst,
		events.EventBotMessage, events.EventBotToggle:
		hash := c.roomHash()
		if hash == "" {
			return
		}
		c.Manager.broadcastExcluding(hash, env, c)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("event", env.Event).
			Msg("unhandled client event")
	}
}

// broadcastExcluding queues a room broadcast that skips one connection.
func (cm *ConnectionManager) broadcastExcluding(userHash string, env events.Envelope, exclude *Connection) {
	select {
	case cm.broadcastCh <- BroadcastMessage{UserHash: userHash, Envelope: env, Exclude: exclude}:
	default:
		log.Warn().Str("user_hash", userHash).Msg("broadcast channel full, dropping message")
	}
}

func joinHash(data json.RawMessage) string {
	// Overlay pages have sent both a bare hash string and {userHash: ...}.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var p events.JoinPayload
	if err := json.Unmarshal(data, &p); err == nil {
		return p.UserHash
	}
	return ""
}
