package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/game"
	"github.com/flipmatch/flipmatch/internal/models"
)

// GameHandler exposes the game boundary over HTTP, mirroring the wire
// contract the browser client speaks.
type GameHandler struct {
	app        *game.App
	authorizer ChannelAuthorizer
}

// NewGameHandler creates the HTTP handler set for the game boundary.
func NewGameHandler(app *game.App, authorizer ChannelAuthorizer) *GameHandler {
	return &GameHandler{app: app, authorizer: authorizer}
}

type joinRequest struct {
	GameID     string       `json:"gameId"`
	PlayerID   string       `json:"playerId"`
	PlayerName string       `json:"playerName"`
	GameState  *models.Game `json:"gameState,omitempty"`
	CardCount  int          `json:"cardCount,omitempty"`
}

type updateRequest struct {
	GameID    string       `json:"gameId"`
	GameState *models.Game `json:"gameState"`
}

type authRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

// HandleJoin handles POST /api/game/join.
func (h *GameHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.app.CreateOrJoinGame(r.Context(), game.CreateOrJoinRequest{
		GameID:       req.GameID,
		PlayerID:     req.PlayerID,
		PlayerName:   req.PlayerName,
		InitialState: req.GameState,
	})
	if err != nil {
		if errors.Is(err, game.ErrGameFull) {
			writeError(w, http.StatusBadRequest, "Game is full")
			return
		}
		log.Error().Err(err).Str("game_id", req.GameID).Msg("join failed")
		writeError(w, http.StatusInternalServerError, "Failed to join game")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"gameState": state,
	})
}

// HandleUpdate handles POST /api/game/update.
func (h *GameHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameState == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.app.UpdateGame(r.Context(), req.GameID, req.GameState); err != nil {
		log.Error().Err(err).Str("game_id", req.GameID).Msg("update failed")
		writeError(w, http.StatusInternalServerError, "Failed to update game")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleChannelAuth handles POST /api/channel/auth. Denials come back as
// 403; the client then plays without realtime updates.
func (h *GameHandler) HandleChannelAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.authorizer.Authorize(req.SocketID, req.ChannelName)
	if err != nil {
		log.Warn().
			Str("socket_id", req.SocketID).
			Str("channel", req.ChannelName).
			Msg("channel authorization denied")
		writeError(w, http.StatusForbidden, "Authorization failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"auth": token})
}

// RegisterRoutes registers the game boundary HTTP routes.
func (h *GameHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/game/join", h.HandleJoin)
	mux.HandleFunc("/api/game/update", h.HandleUpdate)
	mux.HandleFunc("/api/channel/auth", h.HandleChannelAuth)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
