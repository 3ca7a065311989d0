// Package session is the per-client orchestrator. A Controller owns the
// locally believed snapshot, drives transitions through the engine, pushes
// results through the game boundary and reconciles incoming broadcasts by
// unconditional replacement. Broadcast handlers, clicks and timer ticks all
// serialize on one mutex, so no two callbacks mutate the local view at once.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/broadcast"
	"github.com/flipmatch/flipmatch/internal/engine"
	"github.com/flipmatch/flipmatch/internal/game"
	"github.com/flipmatch/flipmatch/internal/models"
)

const (
	// resolveDelay is the visual window a player gets to see the second
	// card before the pair is evaluated.
	resolveDelay = time.Second
	// countdownInterval is how often the single-player clock is recomputed.
	countdownInterval = 100 * time.Millisecond
)

// GameAPI is what the controller needs from the game boundary. Satisfied
// by *game.App in-process and by an HTTP client at the edge.
type GameAPI interface {
	CreateOrJoinGame(ctx context.Context, req game.CreateOrJoinRequest) (*models.Game, error)
	UpdateGame(ctx context.Context, gameID string, g *models.Game) error
}

// Controller orchestrates one client's session.
type Controller struct {
	api         GameAPI
	broadcaster broadcast.Broadcaster
	clock       clockwork.Clock
	rng         *rand.Rand

	playerID   string
	playerName string

	mu   sync.Mutex
	game *models.Game
	sub  broadcast.Subscription

	stopTick chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock swaps the wall clock, for deterministic timer tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithRand swaps the deck shuffle source, for deterministic boards.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// NewController creates a controller for one player.
func NewController(api GameAPI, b broadcast.Broadcaster, playerID, playerName string, opts ...Option) *Controller {
	c := &Controller{
		api:         api,
		broadcaster: b,
		clock:       clockwork.NewRealClock(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		playerID:    playerID,
		playerName:  playerName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateGame builds a fresh game owned by this player and returns its id.
// Multiplayer games subscribe to the topic before seeding the store, so no
// broadcast can be missed; single-player games stay entirely local and
// start the countdown immediately.
func (c *Controller) CreateGame(ctx context.Context, count models.CardCount, mode models.GameMode, timerSeconds int) (string, error) {
	gameID := fmt.Sprintf("game-%s", uuid.New().String())

	g, err := engine.NewGame(gameID, c.playerID, c.playerName, count, mode, timerSeconds, c.clock.Now(), c.rng)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.game = g
	c.mu.Unlock()

	if mode == models.GameModeSingleplayer {
		c.startCountdown()
		return gameID, nil
	}

	if err := c.subscribe(gameID); err != nil {
		return "", err
	}
	if _, err := c.api.CreateOrJoinGame(ctx, game.CreateOrJoinRequest{
		GameID:       gameID,
		PlayerID:     c.playerID,
		PlayerName:   c.playerName,
		InitialState: g,
	}); err != nil {
		return "", err
	}

	log.Info().Str("game_id", gameID).Str("mode", string(mode)).Msg("game created, waiting for opponent")
	return gameID, nil
}

// JoinGame subscribes to the topic first, then requests the join, so the
// player-joined broadcast cannot slip past. The acknowledged snapshot
// becomes the local truth; if it already completes the roster this side
// performs the idempotent promotion and republishes.
func (c *Controller) JoinGame(ctx context.Context, gameID string) error {
	if err := c.subscribe(gameID); err != nil {
		return err
	}

	g, err := c.api.CreateOrJoinGame(ctx, game.CreateOrJoinRequest{
		GameID:     gameID,
		PlayerID:   c.playerID,
		PlayerName: c.playerName,
	})
	if err != nil {
		c.Close()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.game = g
	c.promoteLocked(ctx)
	return nil
}

// ClickCard handles a local card click. Turn ownership, game status and
// the two-flip window are validated locally before anything is touched; a
// rejected click leaves the snapshot as is. In multiplayer every accepted
// transition is published; single-player stays local. When the click flips
// the second card, resolution runs after the visual delay window.
func (c *Controller) ClickCard(ctx context.Context, cardID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.game
	if g == nil || g.Status != models.GameStatusPlaying {
		return nil
	}
	if g.CurrentPlayerID == nil || *g.CurrentPlayerID != c.playerID {
		return nil
	}
	if len(g.FlippedCards) >= 2 {
		return nil
	}

	flipped := engine.FlipCard(g, cardID)
	if flipped == g {
		return nil
	}
	c.game = flipped

	if flipped.Mode == models.GameModeMultiplayer {
		if err := c.api.UpdateGame(ctx, flipped.ID, flipped); err != nil {
			log.Error().Err(err).Str("game_id", flipped.ID).Msg("failed to publish flip")
			return err
		}
	}

	if len(flipped.FlippedCards) == 2 {
		c.clock.AfterFunc(resolveDelay, func() {
			c.resolveFlipped(ctx)
		})
	}
	return nil
}

// Game returns a copy of the locally believed snapshot.
func (c *Controller) Game() *models.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game.Clone()
}

// PlayerID returns the controller's player identity.
func (c *Controller) PlayerID() string {
	return c.playerID
}

// Close detaches from the topic and stops the countdown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		if err := c.sub.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close subscription")
		}
		c.sub = nil
	}
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Controller) subscribe(gameID string) error {
	sub, err := c.broadcaster.Subscribe(gameID)
	if err != nil {
		return &game.TransportError{Op: "subscribe", Err: err}
	}
	sub.On(broadcast.EventPlayerJoined, c.onPlayerJoined)
	sub.On(broadcast.EventGameStateUpdated, c.onStateUpdated)

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// onPlayerJoined applies the contained snapshot and, when the roster is
// now full, promotes the game to playing. Only the side that actually
// performed the promotion republishes; both the joiner ack path and this
// handler may race to do it, and converge because promotion is a pure
// function of the roster.
func (c *Controller) onPlayerJoined(env broadcast.Envelope) {
	var payload broadcast.PlayerJoinedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("failed to decode player-joined")
		return
	}
	if payload.GameState == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.game = payload.GameState
	c.promoteLocked(context.Background())
}

// onStateUpdated unconditionally replaces the local snapshot. Replaying
// the same snapshot twice is harmless, which is what makes at-least-once
// delivery tolerable.
func (c *Controller) onStateUpdated(env broadcast.Envelope) {
	var payload broadcast.StateUpdatedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("failed to decode game-state-updated")
		return
	}
	if payload.GameState == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.game = payload.GameState
}

func (c *Controller) promoteLocked(ctx context.Context) {
	promoted, did := engine.PromoteIfReady(c.game)
	if !did {
		return
	}
	c.game = promoted
	if err := c.api.UpdateGame(ctx, promoted.ID, promoted); err != nil {
		log.Error().Err(err).Str("game_id", promoted.ID).Msg("failed to publish promoted state")
	}
}

// resolveFlipped runs after the visual delay. It evaluates against the
// current local snapshot; if a broadcast already resolved the pair in the
// meantime the two-flip precondition fails and this is a no-op.
func (c *Controller) resolveFlipped(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.game
	if g == nil || len(g.FlippedCards) != 2 {
		return
	}

	matched, resolved := engine.Resolve(g)
	if resolved == g {
		return
	}
	c.game = resolved

	log.Debug().
		Str("game_id", resolved.ID).
		Bool("matched", matched).
		Str("status", string(resolved.Status)).
		Msg("flip resolved")

	if resolved.Mode == models.GameModeMultiplayer {
		if err := c.api.UpdateGame(ctx, resolved.ID, resolved); err != nil {
			log.Error().Err(err).Str("game_id", resolved.ID).Msg("failed to publish resolution")
		}
	}
}

// startCountdown ticks the single-player clock. Remaining time is derived
// from the wall clock on every tick, never decremented, so missed ticks
// cannot stretch the budget. Ticking stops once the game leaves playing.
func (c *Controller) startCountdown() {
	stop := make(chan struct{})
	c.mu.Lock()
	c.stopTick = stop
	c.mu.Unlock()

	go func() {
		ticker := c.clock.NewTicker(countdownInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if !c.tickCountdown() {
					return
				}
			}
		}
	}()
}

// tickCountdown applies one countdown recomputation. Returns false when
// ticking should stop.
func (c *Controller) tickCountdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.game
	if g == nil || g.Status != models.GameStatusPlaying {
		return false
	}
	c.game = engine.ApplyCountdown(g, c.clock.Now())
	return c.game.Status == models.GameStatusPlaying
}
