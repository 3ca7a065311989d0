// Package game is the server-side boundary between clients and the shared
// store + broadcast channel. It trusts client-submitted snapshots by
// design: there is no server-side re-validation of transitions.
package game

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/broadcast"
	"github.com/flipmatch/flipmatch/internal/engine"
	"github.com/flipmatch/flipmatch/internal/models"
	"github.com/flipmatch/flipmatch/internal/store"
)

// CreateOrJoinRequest is the input to CreateOrJoinGame. InitialState set
// means the caller created the game and is seeding the store; otherwise
// the caller is joining an existing (or defaulted) game.
type CreateOrJoinRequest struct {
	GameID       string       `json:"gameId"`
	PlayerID     string       `json:"playerId"`
	PlayerName   string       `json:"playerName"`
	InitialState *models.Game `json:"gameState,omitempty"`
}

// App handles the game boundary operations.
type App struct {
	store       store.GameStore
	broadcaster broadcast.Broadcaster
}

// NewApp creates a new game boundary App.
func NewApp(st store.GameStore, b broadcast.Broadcaster) *App {
	return &App{store: st, broadcaster: b}
}

// CreateOrJoinGame seeds the store with the caller's initial state, or
// appends the caller to the roster of the stored game. Joining a game that
// already has two players fails with ErrGameFull and leaves the stored
// state untouched. A successful join publishes player-joined with the new
// player and the full resulting state.
func (a *App) CreateOrJoinGame(ctx context.Context, req CreateOrJoinRequest) (*models.Game, error) {
	if req.InitialState != nil {
		if err := a.store.Set(ctx, req.GameID, req.InitialState); err != nil {
			return nil, &TransportError{Op: "store game", Err: err}
		}
		log.Info().
			Str("game_id", req.GameID).
			Str("player_id", req.PlayerID).
			Str("mode", string(req.InitialState.Mode)).
			Msg("game created")
		return req.InitialState, nil
	}

	g, ok, err := a.store.Get(ctx, req.GameID)
	if err != nil {
		return nil, &TransportError{Op: "load game", Err: err}
	}
	if !ok {
		g = &models.Game{
			ID:           req.GameID,
			Status:       models.GameStatusWaiting,
			Cards:        []models.Card{},
			Players:      []models.Player{},
			FlippedCards: []string{},
			CardCount:    models.CardCount20,
			Mode:         models.GameModeMultiplayer,
		}
	}

	player := models.Player{ID: req.PlayerID, Name: req.PlayerName}
	joined, err := engine.Join(g, player)
	if err != nil {
		return nil, err
	}

	if err := a.store.Set(ctx, req.GameID, joined); err != nil {
		return nil, &TransportError{Op: "store game", Err: err}
	}

	payload := broadcast.PlayerJoinedPayload{Player: player, GameState: joined}
	if err := a.broadcaster.Publish(ctx, req.GameID, broadcast.EventPlayerJoined, payload); err != nil {
		return nil, &TransportError{Op: "publish player-joined", Err: err}
	}

	log.Info().
		Str("game_id", req.GameID).
		Str("player_id", req.PlayerID).
		Int("players", len(joined.Players)).
		Msg("player joined game")
	return joined, nil
}

// UpdateGame overwrites the stored snapshot and publishes
// game-state-updated with the full state. Last writer wins.
func (a *App) UpdateGame(ctx context.Context, gameID string, g *models.Game) error {
	if err := a.store.Set(ctx, gameID, g); err != nil {
		return &TransportError{Op: "store game", Err: err}
	}
	if err := a.broadcaster.Publish(ctx, gameID, broadcast.EventGameStateUpdated, broadcast.StateUpdatedPayload{GameState: g}); err != nil {
		return &TransportError{Op: "publish game-state-updated", Err: err}
	}

	log.Debug().
		Str("game_id", gameID).
		Str("status", string(g.Status)).
		Msg("game state updated")
	return nil
}
