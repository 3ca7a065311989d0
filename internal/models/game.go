package models

import (
	"time"
)

// GameStatus defines the lifecycle status of a game.
// Transitions only move forward: waiting -> playing -> finished.
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusFinished GameStatus = "finished"
)

// GameMode defines how a game is played.
type GameMode string

const (
	GameModeMultiplayer  GameMode = "multiplayer"
	GameModeSingleplayer GameMode = "singleplayer"
)

// CardCount is the declared board size. Only three sizes are supported;
// pairs = count/2 must not exceed the distinct image pool (21).
type CardCount int

const (
	CardCount20 CardCount = 20
	CardCount30 CardCount = 30
	CardCount40 CardCount = 40
)

// Valid reports whether c is one of the supported board sizes.
func (c CardCount) Valid() bool {
	return c == CardCount20 || c == CardCount30 || c == CardCount40
}

// MaxPlayers is the roster capacity of a multiplayer game.
const MaxPlayers = 2

// Card is one tile on the board. Two cards sharing a Value form a pair.
// A matched card is always also flipped.
type Card struct {
	ID        string  `json:"id"`
	Value     string  `json:"value"`
	IsFlipped bool    `json:"isFlipped"`
	IsMatched bool    `json:"isMatched"`
	MatchedBy *string `json:"matchedBy,omitempty"`
}

// Player is a participant in a game. Score counts pairs matched by this player.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Game is the full snapshot that is stored, broadcast and reconciled.
// Cards order is the fixed board layout; Players order is join order.
// FlippedCards holds the ids of currently flipped-but-unresolved cards
// (never more than two).
type Game struct {
	ID              string     `json:"id"`
	Status          GameStatus `json:"status"`
	Cards           []Card     `json:"cards"`
	Players         []Player   `json:"players"`
	CurrentPlayerID *string    `json:"currentPlayerId"`
	FlippedCards    []string   `json:"flippedCards"`
	CardCount       CardCount  `json:"cardCount"`
	WinnerID        *string    `json:"winnerId"`
	Mode            GameMode   `json:"mode,omitempty"`

	// Single-player countdown. Timer is remaining seconds, recomputed from
	// TimerStartedAt on every tick; InitialTimer is the configured budget.
	Timer          *int       `json:"timer,omitempty"`
	InitialTimer   *int       `json:"initialTimer,omitempty"`
	TimerStartedAt *time.Time `json:"timerStartTime,omitempty"`
}

// Clone returns a deep copy of the snapshot. Every transition is
// copy-on-write so holders of the old snapshot stay valid.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	out := *g
	out.Cards = make([]Card, len(g.Cards))
	for i, c := range g.Cards {
		out.Cards[i] = c
		if c.MatchedBy != nil {
			mb := *c.MatchedBy
			out.Cards[i].MatchedBy = &mb
		}
	}
	out.Players = make([]Player, len(g.Players))
	copy(out.Players, g.Players)
	out.FlippedCards = make([]string, len(g.FlippedCards))
	copy(out.FlippedCards, g.FlippedCards)
	if g.CurrentPlayerID != nil {
		id := *g.CurrentPlayerID
		out.CurrentPlayerID = &id
	}
	if g.WinnerID != nil {
		id := *g.WinnerID
		out.WinnerID = &id
	}
	if g.Timer != nil {
		t := *g.Timer
		out.Timer = &t
	}
	if g.InitialTimer != nil {
		t := *g.InitialTimer
		out.InitialTimer = &t
	}
	if g.TimerStartedAt != nil {
		ts := *g.TimerStartedAt
		out.TimerStartedAt = &ts
	}
	return &out
}

// CardByID returns a pointer into Cards for the given id, or nil.
func (g *Game) CardByID(id string) *Card {
	for i := range g.Cards {
		if g.Cards[i].ID == id {
			return &g.Cards[i]
		}
	}
	return nil
}

// HasPlayer reports whether the roster contains the given player id.
func (g *Game) HasPlayer(id string) bool {
	for _, p := range g.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}
