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

	"github.com/flipmatch/flipmatch/internal/broadcast"
)

// ConnectionManager manages the WebSocket connections subscribed to game
// topics, pooled per game id.
type ConnectionManager struct {
	gameConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection represents one WebSocket client attached to a game.
type Connection struct {
	ID       string
	PlayerID string
	GameID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	GameID   string
	Envelope broadcast.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		gameConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages until ctx is done.
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

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// registers it against the game.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID, gameID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		GameID:      gameID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("game_id", gameID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]bool)
	}
	cm.gameConnections[conn.GameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID).
		Int("total_connections", len(cm.gameConnections[conn.GameID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.gameConnections[conn.GameID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.gameConnections, conn.GameID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Str("game_id", conn.GameID).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToGame queues an envelope for delivery to every connection on
// the game. The queue is bounded; under pressure messages are dropped, not
// blocked on.
func (cm *ConnectionManager) BroadcastToGame(gameID string, env broadcast.Envelope) {
	select {
	case cm.broadcastCh <- broadcastMessage{GameID: gameID, Envelope: env}:
	default:
		log.Warn().Str("game_id", gameID).Msg("broadcast channel full, dropping message")
	}
}

// ActiveGames reports the game ids that currently have connections.
func (cm *ConnectionManager) ActiveGames() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	games := make([]string, 0, len(cm.gameConnections))
	for id := range cm.gameConnections {
		games = append(games, id)
	}
	return games
}

// ConnectionStats returns counts of active connections per game.
func (cm *ConnectionManager) ConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perGame := make(map[string]int)
	for gameID, connections := range cm.gameConnections {
		perGame[gameID] = len(connections)
		total += len(connections)
	}

	return map[string]interface{}{
		"total_connections": total,
		"active_games":      len(cm.gameConnections),
		"game_connections":  perGame,
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.gameConnections[message.GameID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
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
			// Connection is slow or dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event", message.Envelope.Event).
		Str("game_id", message.GameID).
		Int("connections", len(targets)).
		Msg("event fanned out")
}

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
			c.LastPing = time.Now()
		}
	}
}

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

		// Clients push state through the HTTP endpoints; inbound socket
		// traffic is only logged.
		log.Debug().
			Str("connection_id", c.ID).
			Str("player_id", c.PlayerID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
