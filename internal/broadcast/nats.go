package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "game"

// NATSConfig holds connection settings for the NATS broadcaster.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default connection settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "flipmatch",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBroadcaster carries game topics over core NATS subjects
// (game.<id>.<event>). Delivery is at-least-once from the consumer's point
// of view; ordering across distinct publishers is best effort.
type NATSBroadcaster struct {
	nc *nats.Conn
}

// ConnectNATS dials NATS with reconnect handling and returns a broadcaster
// over the connection.
func ConnectNATS(cfg NATSConfig) (*NATSBroadcaster, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBroadcaster{nc: nc}, nil
}

// NewNATSBroadcaster wraps an existing connection.
func NewNATSBroadcaster(nc *nats.Conn) *NATSBroadcaster {
	return &NATSBroadcaster{nc: nc}
}

// Conn exposes the underlying connection for components that share it.
func (b *NATSBroadcaster) Conn() *nats.Conn {
	return b.nc
}

// Publish marshals the payload into an envelope and publishes it on the
// game topic.
func (b *NATSBroadcaster) Publish(ctx context.Context, gameID, event string, payload any) error {
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
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, gameID, event)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	log.Debug().Str("game_id", gameID).Str("event", event).Msg("event published")
	return nil
}

// Subscribe attaches to all events on the game topic.
func (b *NATSBroadcaster) Subscribe(gameID string) (Subscription, error) {
	s := &natsSubscription{handlers: make(map[string][]Handler)}

	subject := fmt.Sprintf("%s.%s.>", subjectPrefix, gameID)
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode envelope")
			return
		}
		s.dispatch(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s.sub = sub
	log.Debug().Str("game_id", gameID).Msg("subscribed to game topic")
	return s, nil
}

// Close drains the underlying connection.
func (b *NATSBroadcaster) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

type natsSubscription struct {
	sub *nats.Subscription

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func (s *natsSubscription) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

func (s *natsSubscription) Close() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (s *natsSubscription) dispatch(env Envelope) {
	s.mu.RLock()
	handlers := append([]Handler(nil), s.handlers[env.Event]...)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}
