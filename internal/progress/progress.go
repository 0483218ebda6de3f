// Package progress keeps the live snapshot of each running ingestion task in redis.
//
// The database only learns the outcome of a task once it's finished; while it runs, the
// snapshot here is the only place the processed and error counts live.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

const keyPrefix = "webtrack:progress:"

// ErrNotFound is returned when no snapshot has been published for a task, or it has expired.
var ErrNotFound = errors.New("progress snapshot not found")

const connectionTimeout = 5 * time.Second

// ClientConfig is how to reach redis.
type ClientConfig struct {
	Address  string
	Password string
	DB       int
}

// NewClient connects to redis and checks the connection with a ping.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Store reads and writes snapshots keyed by task id.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore makes a store whose snapshots expire after ttl. A ttl of zero keeps them forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(taskID string) string {
	return keyPrefix + taskID
}

// Publish overwrites the snapshot for the task.
func (s *Store) Publish(ctx context.Context, taskID string, snap webtrack.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("error marshalling snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key(taskID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("error publishing snapshot for %s: %w", taskID, err)
	}

	return nil
}

// Get returns the latest snapshot for the task.
func (s *Store) Get(ctx context.Context, taskID string) (webtrack.Snapshot, error) {
	data, err := s.client.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return webtrack.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return webtrack.Snapshot{}, fmt.Errorf("error reading snapshot for %s: %w", taskID, err)
	}

	var snap webtrack.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return webtrack.Snapshot{}, fmt.Errorf("error unmarshalling snapshot for %s: %w", taskID, err)
	}

	return snap, nil
}
