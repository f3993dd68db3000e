package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is a short-lived memo for JSON encodable values. Entries only save latency and are never
// relied on for correctness.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	payload []byte
	expiry  time.Time
}

// Memory is an in-process Store guarded by a read/write mutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for expiry checks.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if !m.now().Before(entry.expiry) {
		m.mu.Lock()
		if current, still := m.entries[key]; still && !m.now().Before(current.expiry) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return false, nil
	}

	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{payload: payload, expiry: m.now().Add(ttl)}
	m.sweepLocked()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// sweepLocked drops expired entries once the map grows past a small bound.
func (m *Memory) sweepLocked() {
	if len(m.entries) < 1024 {
		return
	}
	now := m.now()
	for key, entry := range m.entries {
		if !now.Before(entry.expiry) {
			delete(m.entries, key)
		}
	}
}

// Redis is a Store shared by every process connected to the same redis instance.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps a redis client. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	cached, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(cached, dest); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %q: %w", key, err)
	}
	return r.client.Set(ctx, r.key(key), payload, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Tiered reads the local store first and falls back to a shared store. Failures of the shared
// tier are logged and treated as misses.
type Tiered struct {
	local  Store
	shared Store
	logger zerolog.Logger
}

// NewTiered composes two stores. shared may be nil.
func NewTiered(local, shared Store, logger zerolog.Logger) *Tiered {
	return &Tiered{
		local:  local,
		shared: shared,
		logger: logger.With().Str("component", "memo_cache").Logger(),
	}
}

func (t *Tiered) Get(ctx context.Context, key string, dest any) (bool, error) {
	if ok, err := t.local.Get(ctx, key, dest); err == nil && ok {
		return true, nil
	}
	if t.shared == nil {
		return false, nil
	}

	ok, err := t.shared.Get(ctx, key, dest)
	if err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("shared cache read failed")
		return false, nil
	}
	return ok, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := t.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.shared != nil {
		if err := t.shared.Set(ctx, key, value, ttl); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("shared cache write failed")
		}
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.local.Delete(ctx, key); err != nil {
		return err
	}
	if t.shared != nil {
		if err := t.shared.Delete(ctx, key); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("shared cache delete failed")
		}
	}
	return nil
}
