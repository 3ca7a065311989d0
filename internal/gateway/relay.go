package gateway

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/broadcast"
)

// Relay bridges the broadcast channel to the WebSocket pool: every event
// published on a game topic is fanned out to that game's connections. One
// topic subscription is held per game with at least one client.
type Relay struct {
	connectionManager *ConnectionManager
	broadcaster       broadcast.Broadcaster

	mu   sync.Mutex
	subs map[string]broadcast.Subscription
}

// NewRelay creates a relay over the given broadcaster.
func NewRelay(cm *ConnectionManager, b broadcast.Broadcaster) *Relay {
	return &Relay{
		connectionManager: cm,
		broadcaster:       b,
		subs:              make(map[string]broadcast.Subscription),
	}
}

// EnsureSubscribed attaches the relay to the game topic if it is not
// attached yet. Safe to call once per incoming connection.
func (r *Relay) EnsureSubscribed(gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[gameID]; ok {
		return nil
	}

	sub, err := r.broadcaster.Subscribe(gameID)
	if err != nil {
		return fmt.Errorf("subscribe game %s: %w", gameID, err)
	}

	forward := func(env broadcast.Envelope) {
		r.connectionManager.BroadcastToGame(gameID, env)
	}
	sub.On(broadcast.EventPlayerJoined, forward)
	sub.On(broadcast.EventGameStateUpdated, forward)

	r.subs[gameID] = sub
	log.Info().Str("game_id", gameID).Msg("relay attached to game topic")
	return nil
}

// Stop detaches the relay from every game topic.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for gameID, sub := range r.subs {
		if err := sub.Close(); err != nil {
			log.Error().Err(err).Str("game_id", gameID).Msg("failed to close relay subscription")
		}
		delete(r.subs, gameID)
	}
}
