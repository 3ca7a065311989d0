package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/flipmatch/flipmatch/internal/models"
)

// KVConfig holds configuration for the JetStream key-value backed store.
type KVConfig struct {
	Bucket string
	// TTL applies bucket-wide; zero keeps entries forever.
	TTL time.Duration
}

// DefaultKVConfig returns the default bucket configuration.
func DefaultKVConfig() KVConfig {
	return KVConfig{Bucket: "GAMES"}
}

// KVStore is a GameStore over a NATS JetStream key-value bucket, for
// running more than one node against the same game population. Writes are
// plain puts: last writer wins, same as the in-memory store.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore creates or binds the bucket and returns a store over it.
func NewKVStore(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "latest game snapshots, last writer wins",
		TTL:         cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure key-value bucket: %w", err)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("bound game snapshot bucket")
	return &KVStore{kv: kv}, nil
}

// Get loads and decodes the latest snapshot for the game.
func (s *KVStore) Get(ctx context.Context, gameID string) (*models.Game, bool, error) {
	kve, err := s.kv.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get game %s: %w", gameID, err)
	}

	var g models.Game
	if err := json.Unmarshal(kve.Value(), &g); err != nil {
		return nil, false, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return &g, true, nil
}

// Set overwrites the snapshot for the game.
func (s *KVStore) Set(ctx context.Context, gameID string, g *models.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", gameID, err)
	}
	if _, err := s.kv.Put(ctx, gameID, data); err != nil {
		return fmt.Errorf("put game %s: %w", gameID, err)
	}
	return nil
}

// Delete removes the snapshot for the game.
func (s *KVStore) Delete(ctx context.Context, gameID string) error {
	if err := s.kv.Delete(ctx, gameID); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	return nil
}
