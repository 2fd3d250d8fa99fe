package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// StateStore keeps single-use OAuth state tokens to mitigate CSRF.
type StateStore struct {
	rc *redis.Client

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewStateStore creates a store backed by rc, which may be nil.
func NewStateStore(rc *redis.Client) *StateStore {
	return &StateStore{rc: rc, entries: map[string]time.Time{}}
}

// Save stores a state token with TTL.
func (s *StateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return s.rc.Set(ctx, stateKeyPrefix+state, "1", ttl).Err()
	}
	s.mu.Lock()
	s.entries[state] = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

// Consume validates and removes a state token. A token is accepted at most once.
func (s *StateStore) Consume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		v, err := s.rc.GetDel(ctx, stateKeyPrefix+state).Result()
		return err == nil && v != ""
	}
	s.mu.Lock()
	expiresAt, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()
	return ok && time.Now().Before(expiresAt)
}
