package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for game connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	relay             *Relay
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, relay *Relay) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		relay:             relay,
	}
}

// HandleGameConnection handles WebSocket connections for a specific game.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "gameId is required", http.StatusBadRequest)
		return
	}

	// In production this would come from a session or signed token
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		playerID = "anonymous"
	}

	if err := h.relay.EnsureSubscribed(gameID); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to attach relay")
		http.Error(w, "failed to subscribe to game", http.StatusInternalServerError)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, playerID, gameID); err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.ConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
