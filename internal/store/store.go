// Package store holds the last-writer-wins snapshot store. Set is an
// unconditional overwrite with no version check; two writers racing on the
// same id resolve to whichever write lands last.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/models"
)

// GameStore maps game ids to the latest known snapshot.
type GameStore interface {
	Get(ctx context.Context, gameID string) (*models.Game, bool, error)
	Set(ctx context.Context, gameID string, g *models.Game) error
	Delete(ctx context.Context, gameID string) error
}

type entry struct {
	game      *models.Game
	updatedAt time.Time
}

// MemoryStore is the process-wide in-memory implementation. Eviction is an
// injectable policy: with no TTL configured entries live until deleted,
// matching the abandoned-entry behavior games had historically.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]entry

	clock clockwork.Clock
	ttl   time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL evicts entries that have not been written for d. Zero disables
// eviction.
func WithTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = d }
}

// WithClock swaps the clock used for TTL bookkeeping, for tests.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		games: make(map[string]entry),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the latest snapshot for the game.
func (s *MemoryStore) Get(ctx context.Context, gameID string) (*models.Game, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.games[gameID]
	if !ok {
		return nil, false, nil
	}
	if s.expired(e) {
		return nil, false, nil
	}
	return e.game.Clone(), true, nil
}

// Set unconditionally overwrites the snapshot for the game.
func (s *MemoryStore) Set(ctx context.Context, gameID string, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games[gameID] = entry{game: g.Clone(), updatedAt: s.clock.Now()}
	return nil
}

// Delete removes the snapshot for the game, if present.
func (s *MemoryStore) Delete(ctx context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.games, gameID)
	return nil
}

// Len reports the number of live entries, counting out expired ones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.games {
		if !s.expired(e) {
			n++
		}
	}
	return n
}

// StartJanitor sweeps expired entries every interval until ctx is done.
// It is a no-op when no TTL is configured.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	go func() {
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.games {
		if s.expired(e) {
			delete(s.games, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("swept expired game entries")
	}
}

func (s *MemoryStore) expired(e entry) bool {
	return s.ttl > 0 && s.clock.Since(e.updatedAt) > s.ttl
}
