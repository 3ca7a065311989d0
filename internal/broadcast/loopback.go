package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Loopback is an in-process broadcaster for single-node runs and tests.
// Each subscription owns a buffered delivery channel drained by its own
// pump goroutine, so publishers never block on slow handlers and a
// publisher that is also subscribed receives its own messages echoed
// asynchronously, the same way a real transport would.
type Loopback struct {
	mu   sync.RWMutex
	subs map[string]map[*loopbackSubscription]bool
}

// NewLoopback creates an in-process broadcaster.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string]map[*loopbackSubscription]bool)}
}

// Publish fans the envelope out to every live subscription on the topic.
func (l *Loopback) Publish(ctx context.Context, gameID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := Envelope{
		EventID:   uuid.New().String(),
		GameID:    gameID,
		Event:     event,
		EmittedAt: time.Now(),
		Payload:   raw,
	}

	l.mu.RLock()
	targets := make([]*loopbackSubscription, 0, len(l.subs[gameID]))
	for sub := range l.subs[gameID] {
		targets = append(targets, sub)
	}
	l.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.deliveries <- env:
		default:
			log.Warn().Str("game_id", gameID).Str("event", event).Msg("subscription buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe attaches to the game topic and starts the delivery pump.
func (l *Loopback) Subscribe(gameID string) (Subscription, error) {
	sub := &loopbackSubscription{
		parent:     l,
		gameID:     gameID,
		handlers:   make(map[string][]Handler),
		deliveries: make(chan Envelope, 64),
		done:       make(chan struct{}),
	}

	l.mu.Lock()
	if l.subs[gameID] == nil {
		l.subs[gameID] = make(map[*loopbackSubscription]bool)
	}
	l.subs[gameID][sub] = true
	l.mu.Unlock()

	go sub.pump()
	return sub, nil
}

func (l *Loopback) detach(sub *loopbackSubscription) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if set, ok := l.subs[sub.gameID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(l.subs, sub.gameID)
		}
	}
}

type loopbackSubscription struct {
	parent     *Loopback
	gameID     string
	deliveries chan Envelope
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func (s *loopbackSubscription) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

func (s *loopbackSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.parent.detach(s)
		close(s.done)
	})
	return nil
}

func (s *loopbackSubscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.deliveries:
			s.mu.RLock()
			handlers := append([]Handler(nil), s.handlers[env.Event]...)
			s.mu.RUnlock()
			for _, h := range handlers {
				h(env)
			}
		}
	}
}
