package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipmatch/flipmatch/internal/broadcast"
	"github.com/flipmatch/flipmatch/internal/models"
	"github.com/flipmatch/flipmatch/internal/store"
)

type eventRecorder struct {
	mu        sync.Mutex
	envelopes []broadcast.Envelope
}

func (r *eventRecorder) handle(env broadcast.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envelopes)
}

func newFixture(t *testing.T) (*App, *store.MemoryStore, *broadcast.Loopback) {
	t.Helper()
	st := store.NewMemoryStore()
	lb := broadcast.NewLoopback()
	return NewApp(st, lb), st, lb
}

func waitingGame(id string, playerIDs ...string) *models.Game {
	g := &models.Game{
		ID:           id,
		Status:       models.GameStatusWaiting,
		Cards:        []models.Card{{ID: "card-0-1", Value: "v"}, {ID: "card-0-2", Value: "v"}},
		FlippedCards: []string{},
		CardCount:    models.CardCount20,
		Mode:         models.GameModeMultiplayer,
	}
	for _, pid := range playerIDs {
		g.Players = append(g.Players, models.Player{ID: pid, Name: pid})
	}
	return g
}

func TestCreateOrJoinGame_CreateSeedsStore(t *testing.T) {
	ctx := context.Background()
	app, st, _ := newFixture(t)

	initial := waitingGame("game-1", "p1")
	got, err := app.CreateOrJoinGame(ctx, CreateOrJoinRequest{
		GameID:       "game-1",
		PlayerID:     "p1",
		PlayerName:   "Alice",
		InitialState: initial,
	})
	require.NoError(t, err)
	assert.Equal(t, initial, got)

	stored, ok, err := st.Get(ctx, "game-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "game-1", stored.ID)
	require.Len(t, stored.Players, 1)
}

func TestCreateOrJoinGame_JoinAppendsAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	app, st, lb := newFixture(t)
	require.NoError(t, st.Set(ctx, "game-1", waitingGame("game-1", "p1")))

	rec := &eventRecorder{}
	sub, err := lb.Subscribe("game-1")
	require.NoError(t, err)
	defer sub.Close()
	sub.On(broadcast.EventPlayerJoined, rec.handle)

	got, err := app.CreateOrJoinGame(ctx, CreateOrJoinRequest{
		GameID:     "game-1",
		PlayerID:   "p2",
		PlayerName: "Bob",
	})
	require.NoError(t, err)
	require.Len(t, got.Players, 2)
	assert.Equal(t, "p2", got.Players[1].ID)
	assert.Equal(t, models.GameStatusWaiting, got.Status, "the boundary never promotes; clients do")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	stored, ok, err := st.Get(ctx, "game-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored.Players, 2)
}

func TestCreateOrJoinGame_DefaultsMissingGame(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newFixture(t)

	got, err := app.CreateOrJoinGame(ctx, CreateOrJoinRequest{
		GameID:     "game-unknown",
		PlayerID:   "p1",
		PlayerName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusWaiting, got.Status)
	require.Len(t, got.Players, 1)
	assert.Empty(t, got.Cards, "defaulted game has no board until a creator seeds one")
}

func TestCreateOrJoinGame_Full(t *testing.T) {
	ctx := context.Background()
	app, st, _ := newFixture(t)
	require.NoError(t, st.Set(ctx, "game-1", waitingGame("game-1", "p1", "p2")))

	_, err := app.CreateOrJoinGame(ctx, CreateOrJoinRequest{
		GameID:     "game-1",
		PlayerID:   "p3",
		PlayerName: "Carol",
	})
	assert.ErrorIs(t, err, ErrGameFull)

	stored, ok, err := st.Get(ctx, "game-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, stored.Players, 2, "rejected join leaves the stored state untouched")
}

func TestUpdateGame_StoresAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	app, st, lb := newFixture(t)

	rec := &eventRecorder{}
	sub, err := lb.Subscribe("game-1")
	require.NoError(t, err)
	defer sub.Close()
	sub.On(broadcast.EventGameStateUpdated, rec.handle)

	g := waitingGame("game-1", "p1", "p2")
	g.Status = models.GameStatusPlaying
	require.NoError(t, app.UpdateGame(ctx, "game-1", g))

	stored, ok, err := st.Get(ctx, "game-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.GameStatusPlaying, stored.Status)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
}

func TestTransportError_Unwraps(t *testing.T) {
	inner := assert.AnError
	err := &TransportError{Op: "store game", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "store game")
}
