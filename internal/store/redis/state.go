// Package redis persists the bot's cross-cycle state (transition signs and
// alert cooldowns) as a JSON checkpoint, so edge detection and suppression
// survive process restarts.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const checkpointKey = "tabot:checkpoint:v1"

// Config configures the Redis state store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store is a small key-value checkpoint store backed by Redis.
type Store struct {
	client *goredis.Client
	log    zerolog.Logger
}

// New creates a Store and pings the server.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return &Store{client: client, log: log}, nil
}

// SaveCheckpoint writes the serialized checkpoint. No TTL: the checkpoint
// is always valid until overwritten.
func (s *Store) SaveCheckpoint(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, checkpointKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the last checkpoint. ok is false when none exists.
func (s *Store) LoadCheckpoint(ctx context.Context) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, checkpointKey).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis load checkpoint: %w", err)
	}
	return data, true, nil
}

// Close releases the client connection.
func (s *Store) Close() error {
	return s.client.Close()
}
