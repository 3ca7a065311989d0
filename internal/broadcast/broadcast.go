// Package broadcast is the per-game publish/subscribe channel. One topic
// per game id, push delivery, at-least-once: duplicate or reordered
// deliveries are expected and tolerated because payloads carry full
// snapshots, never diffs.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flipmatch/flipmatch/internal/models"
)

// Named events carried on a game topic.
const (
	// EventPlayerJoined announces a new roster member together with the
	// full resulting state.
	EventPlayerJoined = "player-joined"
	// EventGameStateUpdated carries the full state after any transition.
	EventGameStateUpdated = "game-state-updated"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	GameID    string          `json:"gameId"`
	Event     string          `json:"event"`
	EmittedAt time.Time       `json:"emittedAt"`
	Payload   json.RawMessage `json:"payload"`
}

// PlayerJoinedPayload is the payload of EventPlayerJoined.
type PlayerJoinedPayload struct {
	Player    models.Player `json:"player"`
	GameState *models.Game  `json:"gameState"`
}

// StateUpdatedPayload is the payload of EventGameStateUpdated.
type StateUpdatedPayload struct {
	GameState *models.Game `json:"gameState"`
}

// Handler receives envelopes for one named event on one topic.
type Handler func(Envelope)

// Subscription is a live attachment to a game topic. Handlers registered
// with On are invoked per named event as messages arrive; Close detaches
// all of them.
type Subscription interface {
	On(event string, h Handler)
	Close() error
}

// Broadcaster publishes and subscribes per-game topics.
type Broadcaster interface {
	Publish(ctx context.Context, gameID, event string, payload any) error
	Subscribe(gameID string) (Subscription, error)
}
