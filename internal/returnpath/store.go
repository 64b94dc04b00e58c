package returnpath

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records, per widget-viewing session, the path the user should be
// redirected to after the broker login completes.
type Store interface {
	// Save captures the path unless it is an amnesia path; amnesia paths
	// keep whatever was recorded before.
	Save(ctx context.Context, sessionID, path string) error
	// Get returns the recorded path, or "/" when nothing was captured.
	Get(ctx context.Context, sessionID string) (string, error)
}

// RedisStore implements Store using Redis.
// Paths are stored under key: "<prefix><sessionID>" with a fixed TTL.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	amnesia map[string]struct{}
}

// NewRedisStore creates a Redis-based return-path store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, amnesiaPaths []string) *RedisStore {
	if prefix == "" {
		prefix = "returnpath:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	amnesia := make(map[string]struct{}, len(amnesiaPaths))
	for _, p := range amnesiaPaths {
		amnesia[p] = struct{}{}
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, amnesia: amnesia}
}

func (s *RedisStore) Save(ctx context.Context, sessionID, path string) error {
	if path == "" {
		return nil
	}
	if _, skip := s.amnesia[path]; skip {
		return nil
	}
	return s.client.Set(ctx, s.prefix+sessionID, path, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if err == redis.Nil {
			return "/", nil
		}
		return "", err
	}
	return v, nil
}

// MemoryStore is a process-local Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	paths   map[string]string
	amnesia map[string]struct{}
}

func NewMemoryStore(amnesiaPaths []string) *MemoryStore {
	amnesia := make(map[string]struct{}, len(amnesiaPaths))
	for _, p := range amnesiaPaths {
		amnesia[p] = struct{}{}
	}
	return &MemoryStore{paths: map[string]string{}, amnesia: amnesia}
}

func (s *MemoryStore) Save(ctx context.Context, sessionID, path string) error {
	if path == "" {
		return nil
	}
	if _, skip := s.amnesia[path]; skip {
		return nil
	}
	s.mu.Lock()
	s.paths[sessionID] = path
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.paths[sessionID]; ok {
		return p, nil
	}
	return "/", nil
}
