// Package engine holds the pure game-state transitions. Every function
// treats its input snapshot as immutable and returns a new snapshot, so
// concurrent holders of the old one remain valid. Nothing in here touches
// the store or the broadcast channel.
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/flipmatch/flipmatch/internal/deck"
	"github.com/flipmatch/flipmatch/internal/models"
)

// ErrGameFull is returned by Join when the roster is already at capacity.
var ErrGameFull = fmt.Errorf("game is full")

// NewGame builds the initial snapshot for a freshly created game.
// Multiplayer games start waiting with no current player; single-player
// games start playing immediately with the sole player on turn and, when
// timerSeconds > 0, the countdown fields populated from now.
func NewGame(id, playerID, playerName string, count models.CardCount, mode models.GameMode, timerSeconds int, now time.Time, rng *rand.Rand) (*models.Game, error) {
	cards, err := deck.Generate(count, rng)
	if err != nil {
		return nil, err
	}

	g := &models.Game{
		ID:           id,
		Status:       models.GameStatusWaiting,
		Cards:        cards,
		Players:      []models.Player{{ID: playerID, Name: playerName}},
		FlippedCards: []string{},
		CardCount:    count,
		Mode:         mode,
	}

	if mode == models.GameModeSingleplayer {
		g.Status = models.GameStatusPlaying
		pid := playerID
		g.CurrentPlayerID = &pid
		if timerSeconds > 0 {
			remaining := timerSeconds
			initial := timerSeconds
			started := now
			g.Timer = &remaining
			g.InitialTimer = &initial
			g.TimerStartedAt = &started
		}
	}

	return g, nil
}

// FlipCard marks the card flipped and records it as unresolved. It is a
// no-op (the input snapshot is returned unchanged) when the card does not
// exist, is already matched or flipped, or two unresolved cards are
// already face up.
func FlipCard(g *models.Game, cardID string) *models.Game {
	card := g.CardByID(cardID)
	if card == nil || card.IsMatched || card.IsFlipped || len(g.FlippedCards) >= 2 {
		return g
	}

	next := g.Clone()
	next.CardByID(cardID).IsFlipped = true
	next.FlippedCards = append(next.FlippedCards, cardID)
	return next
}

// Resolve evaluates the two currently flipped cards. Precondition: exactly
// two unresolved flips; otherwise it is a no-op returning (false, g).
//
// On a match both cards become permanently matched and stamped with the
// acting player, that player's score increments, and the turn does not
// change. If the board is then fully matched the game finishes and the
// winner is the highest score, ties broken by roster order.
//
// On a mismatch both cards flip back down and, in multiplayer, the turn
// advances round-robin; a single player keeps the turn.
func Resolve(g *models.Game) (bool, *models.Game) {
	if len(g.FlippedCards) != 2 {
		return false, g
	}

	first := g.CardByID(g.FlippedCards[0])
	second := g.CardByID(g.FlippedCards[1])
	if first == nil || second == nil {
		return false, g
	}

	next := g.Clone()
	if first.Value == second.Value {
		for _, id := range g.FlippedCards {
			c := next.CardByID(id)
			c.IsMatched = true
			c.IsFlipped = true
			if next.CurrentPlayerID != nil {
				matchedBy := *next.CurrentPlayerID
				c.MatchedBy = &matchedBy
			}
		}
		if next.CurrentPlayerID != nil {
			for i := range next.Players {
				if next.Players[i].ID == *next.CurrentPlayerID {
					next.Players[i].Score++
				}
			}
		}
		next.FlippedCards = []string{}

		if allMatched(next) {
			next.Status = models.GameStatusFinished
			winner := winnerID(next)
			next.WinnerID = &winner
		}
		return true, next
	}

	for _, id := range g.FlippedCards {
		next.CardByID(id).IsFlipped = false
	}
	next.FlippedCards = []string{}
	if next.Mode == models.GameModeMultiplayer && next.CurrentPlayerID != nil {
		nextID := nextPlayerID(next, *next.CurrentPlayerID)
		next.CurrentPlayerID = &nextID
	}
	return false, next
}

// Join appends a player to the roster. It only appends: promotion to
// playing is a separate idempotent step (PromoteIfReady) because in the
// realtime protocol the join is split across the joiner and the players
// observing the player-joined broadcast.
func Join(g *models.Game, p models.Player) (*models.Game, error) {
	if len(g.Players) >= models.MaxPlayers {
		return g, ErrGameFull
	}
	next := g.Clone()
	next.Players = append(next.Players, p)
	return next, nil
}

// PromoteIfReady moves a waiting game with a full roster to playing, with
// the first player on turn. It is deterministic from the roster contents,
// so both sides of the join race can apply it (and republish) safely.
func PromoteIfReady(g *models.Game) (*models.Game, bool) {
	if g.Status != models.GameStatusWaiting || len(g.Players) < models.MaxPlayers {
		return g, false
	}
	next := g.Clone()
	next.Status = models.GameStatusPlaying
	pid := next.Players[0].ID
	next.CurrentPlayerID = &pid
	return next, true
}

// ApplyCountdown recomputes the single-player remaining time from the wall
// clock. When the budget is exhausted the game finishes with timer forced
// to zero, regardless of board progress. No-op for multiplayer games, games
// not in playing, or games without timer fields.
func ApplyCountdown(g *models.Game, now time.Time) *models.Game {
	if g.Mode != models.GameModeSingleplayer || g.Status != models.GameStatusPlaying {
		return g
	}
	if g.Timer == nil || g.InitialTimer == nil || g.TimerStartedAt == nil {
		return g
	}

	elapsed := int(now.Sub(*g.TimerStartedAt) / time.Second)
	remaining := *g.InitialTimer - elapsed
	if remaining < 0 {
		remaining = 0
	}

	next := g.Clone()
	*next.Timer = remaining
	if remaining == 0 {
		next.Status = models.GameStatusFinished
	}
	return next
}

func allMatched(g *models.Game) bool {
	for _, c := range g.Cards {
		if !c.IsMatched {
			return false
		}
	}
	return true
}

// winnerID picks the player with the strictly greatest score; on a tie the
// earliest player in roster order wins.
func winnerID(g *models.Game) string {
	best := g.Players[0]
	for _, p := range g.Players[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	return best.ID
}

func nextPlayerID(g *models.Game, current string) string {
	for i, p := range g.Players {
		if p.ID == current {
			return g.Players[(i+1)%len(g.Players)].ID
		}
	}
	return current
}
