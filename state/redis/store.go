// Package redis backs the Conversational State Service with go-redis/v9,
// storing the whole AgentState blob as one string value per task ID, per
// spec.md §6's persisted-state layout.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/agentware/agentctl/state"
)

// Store implements state.Store on top of a redis.Client.
type Store struct {
	client *redis.Client
	prefix string
}

// Options configures the Redis-backed store.
type Options struct {
	// Addr/Password/DB are passed straight through to redis.Options when
	// URL is empty.
	URL      string
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces task-state keys, default "agentctl:state:".
	KeyPrefix string
}

// New constructs a Store, preferring Options.URL (redis://...) when set.
func New(opts Options) (*Store, error) {
	var redisOpts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, err
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "agentctl:state:"
	}
	return &Store{client: redis.NewClient(redisOpts), prefix: prefix}, nil
}

// NewFromClient wraps an already-constructed client, useful for tests with
// redismock or a shared connection pool across services.
func NewFromClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "agentctl:state:"
	}
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) key(taskID string) string { return s.prefix + taskID }

func (s *Store) Get(ctx context.Context, taskID string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Store) Set(ctx context.Context, taskID string, value []byte) error {
	return s.client.Set(ctx, s.key(taskID), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, s.key(taskID)).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

var _ state.Store = (*Store)(nil)
