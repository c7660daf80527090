package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore tracks alert ids that have already been ingested, so
// externally sourced alerts (news feeds, webhooks) survive restarts
// without being reprocessed.
type SeenStore interface {
	// MarkIfNew records the id and reports whether it was unseen.
	MarkIfNew(ctx context.Context, id string) (bool, error)
	Close() error
}

// RedisSeenConfig configures the redis-backed seen store.
type RedisSeenConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// DefaultRedisSeenConfig returns redis seen store defaults.
func DefaultRedisSeenConfig() RedisSeenConfig {
	return RedisSeenConfig{
		Addr:   "localhost:6379",
		TTL:    7 * 24 * time.Hour,
		Prefix: "sentry:seen:",
	}
}

// RedisSeenStore is a SeenStore backed by redis SETNX with a TTL.
type RedisSeenStore struct {
	client *redis.Client
	config RedisSeenConfig
}

// NewRedisSeenStore connects to redis and verifies the connection.
func NewRedisSeenStore(cfg RedisSeenConfig) (*RedisSeenStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sentry:seen:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, WrapConnectionError("Ping", err)
	}

	return &RedisSeenStore{client: client, config: cfg}, nil
}

func (s *RedisSeenStore) MarkIfNew(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, s.config.Prefix+id, 1, s.config.TTL).Result()
}

func (s *RedisSeenStore) Close() error {
	return s.client.Close()
}

// MemorySeenStore is an in-process SeenStore for tests and single-node
// deployments without redis. Entries expire after the TTL.
type MemorySeenStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemorySeenStore creates an in-memory seen store.
func NewMemorySeenStore(ttl time.Duration) *MemorySeenStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &MemorySeenStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

func (s *MemorySeenStore) MarkIfNew(_ context.Context, id string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.seen[id]; ok && now.Sub(at) < s.ttl {
		return false, nil
	}

	// Opportunistic prune to bound memory.
	for k, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, k)
		}
	}

	s.seen[id] = now
	return true, nil
}

func (s *MemorySeenStore) Close() error { return nil }
