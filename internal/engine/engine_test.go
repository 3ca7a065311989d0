package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipmatch/flipmatch/internal/models"
)

func ptr(s string) *string { return &s }

// twoPlayerGame builds a playing 20-card game with players A and B, A on
// turn. Cards are laid out deterministically: pair i is card-i-1/card-i-2
// with value v<i>, in board order.
func twoPlayerGame() *models.Game {
	g := &models.Game{
		ID:     "game-test",
		Status: models.GameStatusPlaying,
		Players: []models.Player{
			{ID: "player-a", Name: "Alice"},
			{ID: "player-b", Name: "Bob"},
		},
		CurrentPlayerID: ptr("player-a"),
		FlippedCards:    []string{},
		CardCount:       models.CardCount20,
		Mode:            models.GameModeMultiplayer,
	}
	for i := 0; i < 10; i++ {
		value := "v" + string(rune('a'+i))
		g.Cards = append(g.Cards,
			models.Card{ID: cardID(i, 1), Value: value},
			models.Card{ID: cardID(i, 2), Value: value},
		)
	}
	return g
}

func cardID(pair, n int) string {
	return "card-" + string(rune('0'+pair)) + "-" + string(rune('0'+n))
}

func TestNewGame_Multiplayer(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGame("game-1", "p1", "Alice", models.CardCount20, models.GameModeMultiplayer, 0, now, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, models.GameStatusWaiting, g.Status)
	assert.Nil(t, g.CurrentPlayerID)
	assert.Len(t, g.Cards, 20)
	require.Len(t, g.Players, 1)
	assert.Equal(t, "Alice", g.Players[0].Name)
	assert.Empty(t, g.FlippedCards)
	assert.Nil(t, g.WinnerID)
	assert.Nil(t, g.Timer)
}

func TestNewGame_Singleplayer(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGame("game-1", "p1", "Alice", models.CardCount30, models.GameModeSingleplayer, 180, now, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, models.GameStatusPlaying, g.Status)
	require.NotNil(t, g.CurrentPlayerID)
	assert.Equal(t, "p1", *g.CurrentPlayerID)
	require.NotNil(t, g.Timer)
	assert.Equal(t, 180, *g.Timer)
	require.NotNil(t, g.InitialTimer)
	assert.Equal(t, 180, *g.InitialTimer)
	require.NotNil(t, g.TimerStartedAt)
	assert.Equal(t, now, *g.TimerStartedAt)
}

func TestFlipCard_Flips(t *testing.T) {
	g := twoPlayerGame()

	next := FlipCard(g, g.Cards[0].ID)
	require.NotSame(t, g, next)
	assert.True(t, next.Cards[0].IsFlipped)
	assert.Equal(t, []string{g.Cards[0].ID}, next.FlippedCards)

	// Input snapshot untouched.
	assert.False(t, g.Cards[0].IsFlipped)
	assert.Empty(t, g.FlippedCards)
}

func TestFlipCard_Noops(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(g *models.Game) string
	}{
		{
			name:  "unknown card",
			setup: func(g *models.Game) string { return "card-nope" },
		},
		{
			name: "already matched",
			setup: func(g *models.Game) string {
				g.Cards[0].IsMatched = true
				g.Cards[0].IsFlipped = true
				return g.Cards[0].ID
			},
		},
		{
			name: "already flipped",
			setup: func(g *models.Game) string {
				g.Cards[0].IsFlipped = true
				g.FlippedCards = []string{g.Cards[0].ID}
				return g.Cards[0].ID
			},
		},
		{
			name: "two unresolved flips",
			setup: func(g *models.Game) string {
				g.Cards[0].IsFlipped = true
				g.Cards[2].IsFlipped = true
				g.FlippedCards = []string{g.Cards[0].ID, g.Cards[2].ID}
				return g.Cards[4].ID
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := twoPlayerGame()
			id := tt.setup(g)
			next := FlipCard(g, id)
			assert.Same(t, g, next, "no-op should return the input snapshot")
		})
	}
}

func TestResolve_NoopWithoutTwoFlips(t *testing.T) {
	g := twoPlayerGame()
	matched, next := Resolve(g)
	assert.False(t, matched)
	assert.Same(t, g, next)

	g = FlipCard(g, g.Cards[0].ID)
	matched, next = Resolve(g)
	assert.False(t, matched)
	assert.Same(t, g, next)
}

func TestResolve_Match(t *testing.T) {
	g := twoPlayerGame()
	// card-0-1 and card-0-2 share a value.
	g = FlipCard(g, g.Cards[0].ID)
	g = FlipCard(g, g.Cards[1].ID)

	matched, next := Resolve(g)
	require.True(t, matched)

	first := next.CardByID(g.Cards[0].ID)
	second := next.CardByID(g.Cards[1].ID)
	assert.True(t, first.IsMatched)
	assert.True(t, first.IsFlipped, "matched card stays flipped")
	assert.True(t, second.IsMatched)
	require.NotNil(t, first.MatchedBy)
	assert.Equal(t, "player-a", *first.MatchedBy)
	require.NotNil(t, second.MatchedBy)
	assert.Equal(t, "player-a", *second.MatchedBy)

	assert.Equal(t, 1, next.Players[0].Score)
	assert.Equal(t, 0, next.Players[1].Score)
	assert.Empty(t, next.FlippedCards)
	assert.Equal(t, "player-a", *next.CurrentPlayerID, "turn does not change on a match")
	assert.Equal(t, models.GameStatusPlaying, next.Status)
	assert.Nil(t, next.WinnerID)
}

func TestResolve_Mismatch_Multiplayer(t *testing.T) {
	g := twoPlayerGame()
	// card-0-1 and card-1-1 have different values.
	g = FlipCard(g, g.Cards[0].ID)
	g = FlipCard(g, g.Cards[2].ID)

	matched, next := Resolve(g)
	assert.False(t, matched)

	assert.False(t, next.CardByID(g.Cards[0].ID).IsFlipped, "mismatched cards revert")
	assert.False(t, next.CardByID(g.Cards[2].ID).IsFlipped)
	assert.Empty(t, next.FlippedCards)
	assert.Equal(t, "player-b", *next.CurrentPlayerID, "turn passes round-robin")
	assert.Equal(t, 0, next.Players[0].Score)
}

func TestResolve_Mismatch_RoundRobinWraps(t *testing.T) {
	g := twoPlayerGame()
	g.CurrentPlayerID = ptr("player-b")
	g = FlipCard(g, g.Cards[0].ID)
	g = FlipCard(g, g.Cards[2].ID)

	_, next := Resolve(g)
	assert.Equal(t, "player-a", *next.CurrentPlayerID)
}

func TestResolve_Mismatch_Singleplayer(t *testing.T) {
	g := twoPlayerGame()
	g.Mode = models.GameModeSingleplayer
	g.Players = g.Players[:1]
	g = FlipCard(g, g.Cards[0].ID)
	g = FlipCard(g, g.Cards[2].ID)

	matched, next := Resolve(g)
	assert.False(t, matched)
	assert.Equal(t, "player-a", *next.CurrentPlayerID, "sole player keeps the turn")
}

func TestResolve_WinDetection(t *testing.T) {
	g := twoPlayerGame()
	// Pre-match everything except the last pair; give B a big lead.
	for i := 0; i < 18; i++ {
		g.Cards[i].IsMatched = true
		g.Cards[i].IsFlipped = true
	}
	g.Players[0].Score = 2
	g.Players[1].Score = 7
	g = FlipCard(g, g.Cards[18].ID)
	g = FlipCard(g, g.Cards[19].ID)

	matched, next := Resolve(g)
	require.True(t, matched)
	assert.Equal(t, models.GameStatusFinished, next.Status)
	require.NotNil(t, next.WinnerID)
	assert.Equal(t, "player-b", *next.WinnerID, "highest score wins")
	assert.Equal(t, 3, next.Players[0].Score, "acting player still scores the last pair")
}

func TestResolve_WinTieBreaksToFirstPlayer(t *testing.T) {
	g := twoPlayerGame()
	for i := 0; i < 18; i++ {
		g.Cards[i].IsMatched = true
		g.Cards[i].IsFlipped = true
	}
	// B acts and ties A's score with the final pair.
	g.Players[0].Score = 5
	g.Players[1].Score = 4
	g.CurrentPlayerID = ptr("player-b")
	g = FlipCard(g, g.Cards[18].ID)
	g = FlipCard(g, g.Cards[19].ID)

	matched, next := Resolve(g)
	require.True(t, matched)
	assert.Equal(t, models.GameStatusFinished, next.Status)
	require.NotNil(t, next.WinnerID)
	assert.Equal(t, "player-a", *next.WinnerID, "tie resolves to first player in roster order")
}

func TestJoin(t *testing.T) {
	g := twoPlayerGame()
	g.Players = g.Players[:1]
	g.Status = models.GameStatusWaiting
	g.CurrentPlayerID = nil

	next, err := Join(g, models.Player{ID: "player-b", Name: "Bob"})
	require.NoError(t, err)
	require.Len(t, next.Players, 2)
	assert.Equal(t, models.GameStatusWaiting, next.Status, "join only appends, promotion is separate")
	assert.Nil(t, next.CurrentPlayerID)
}

func TestJoin_Full(t *testing.T) {
	g := twoPlayerGame()
	next, err := Join(g, models.Player{ID: "player-c", Name: "Carol"})
	assert.ErrorIs(t, err, ErrGameFull)
	assert.Same(t, g, next, "rejected join leaves state unchanged")
	assert.Len(t, g.Players, 2)
}

func TestPromoteIfReady(t *testing.T) {
	g := twoPlayerGame()
	g.Status = models.GameStatusWaiting
	g.CurrentPlayerID = nil

	promoted, did := PromoteIfReady(g)
	require.True(t, did)
	assert.Equal(t, models.GameStatusPlaying, promoted.Status)
	require.NotNil(t, promoted.CurrentPlayerID)
	assert.Equal(t, "player-a", *promoted.CurrentPlayerID, "first player in roster starts")

	// Duplicate application (the designed join race) is a no-op.
	again, did := PromoteIfReady(promoted)
	assert.False(t, did)
	assert.Same(t, promoted, again)
}

func TestPromoteIfReady_NotReady(t *testing.T) {
	g := twoPlayerGame()
	g.Status = models.GameStatusWaiting
	g.CurrentPlayerID = nil
	g.Players = g.Players[:1]

	_, did := PromoteIfReady(g)
	assert.False(t, did)
}

func TestApplyCountdown(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := twoPlayerGame()
	base.Mode = models.GameModeSingleplayer
	base.Players = base.Players[:1]
	remaining, initial := 180, 180
	base.Timer = &remaining
	base.InitialTimer = &initial
	base.TimerStartedAt = &start

	t.Run("partial elapse", func(t *testing.T) {
		next := ApplyCountdown(base, start.Add(42*time.Second))
		assert.Equal(t, 138, *next.Timer)
		assert.Equal(t, models.GameStatusPlaying, next.Status)
	})

	t.Run("expiry forces finish", func(t *testing.T) {
		next := ApplyCountdown(base, start.Add(181*time.Second))
		assert.Equal(t, 0, *next.Timer)
		assert.Equal(t, models.GameStatusFinished, next.Status, "time out finishes the game regardless of board progress")
	})

	t.Run("multiplayer no-op", func(t *testing.T) {
		g := base.Clone()
		g.Mode = models.GameModeMultiplayer
		next := ApplyCountdown(g, start.Add(300*time.Second))
		assert.Same(t, g, next)
	})

	t.Run("finished game no-op", func(t *testing.T) {
		g := base.Clone()
		g.Status = models.GameStatusFinished
		next := ApplyCountdown(g, start.Add(300*time.Second))
		assert.Same(t, g, next)
	})
}

func TestClone_Isolation(t *testing.T) {
	g := twoPlayerGame()
	clone := g.Clone()

	clone.Cards[0].IsFlipped = true
	clone.Players[0].Score = 99
	clone.FlippedCards = append(clone.FlippedCards, "card-x")
	*clone.CurrentPlayerID = "player-z"

	assert.False(t, g.Cards[0].IsFlipped)
	assert.Zero(t, g.Players[0].Score)
	assert.Empty(t, g.FlippedCards)
	assert.Equal(t, "player-a", *g.CurrentPlayerID)
}
