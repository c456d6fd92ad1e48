package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PreferencesStore persists per-account preferences.
type PreferencesStore interface {
	Load(ctx context.Context, account string) (Preferences, bool, error)
	Save(ctx context.Context, account string, prefs Preferences) error
}

// RedisStore keeps preferences as JSON values.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "selection:prefs:"}
}

// Load returns the stored preferences of an account.
func (s *RedisStore) Load(ctx context.Context, account string) (Preferences, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+account).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preferences{}, false, nil
	}
	if err != nil {
		return Preferences{}, false, err
	}
	var prefs Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return Preferences{}, false, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, true, nil
}

// Save stores preferences without expiry.
func (s *RedisStore) Save(ctx context.Context, account string, prefs Preferences) error {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+account, payload, 0).Err()
}

type memoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewMemoryStore builds an in-memory store for tests and local runs.
func NewMemoryStore() PreferencesStore {
	return &memoryStore{prefs: make(map[string]Preferences)}
}

func (s *memoryStore) Load(_ context.Context, account string) (Preferences, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[account]
	return p, ok, nil
}

func (s *memoryStore) Save(_ context.Context, account string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[account] = prefs
	return nil
}
