package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pharmref-mcp-server/internal/cache"
	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/metrics"
)

// Store persists session state by id. Load returns domain.ErrNotFound for
// unknown or expired sessions.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, state State) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store whose sessions expire ttl after their last
// save. A ttl of zero never expires.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || (!entry.expires.IsZero() && m.now().After(entry.expires)) {
		return State{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return entry.state, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, state State) error {
	entry := memoryEntry{state: state}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = entry
	m.pruneLocked()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) pruneLocked() {
	now := m.now()
	for id, e := range m.sessions {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.sessions, id)
		}
	}
}

// RedisStore keeps sessions in Redis with a sliding TTL. When Redis is
// unreachable the breaker opens and sessions are served from an in-memory
// fallback until it recovers.
type RedisStore struct {
	client   *redis.Client
	breaker  *gobreaker.CircuitBreaker
	fallback *MemoryStore
	ttl      time.Duration
	logger   *logrus.Logger
}

// NewRedisStore wraps client. Keys are "pharmref:session:<id>".
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client:   client,
		breaker:  cache.NewBreaker("redis-session", logger),
		fallback: NewMemoryStore(ttl),
		ttl:      ttl,
		logger:   logger,
	}
}

func sessionKey(id string) string {
	return "pharmref:session:" + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (State, error) {
	v, err := r.breaker.Execute(func() (interface{}, error) {
		raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil {
		r.logFallback(err, "load", id)
		return r.fallback.Load(ctx, id)
	}

	raw, _ := v.([]byte)
	if raw == nil {
		// Sessions created while Redis was down live only in the fallback.
		return r.fallback.Load(ctx, id)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return state, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, sessionKey(id), raw, r.ttl).Err()
	})
	if err != nil {
		r.logFallback(err, "save", id)
		return r.fallback.Save(ctx, id, state)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_ = r.fallback.Delete(ctx, id)

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, sessionKey(id)).Err()
	})
	if err != nil {
		r.logFallback(err, "delete", id)
	}
	return nil
}

func (r *RedisStore) logFallback(err error, op, id string) {
	metrics.RecordSessionFallback()
	r.logger.WithError(err).WithFields(logrus.Fields{
		"operation":  op,
		"session_id": id,
	}).Warn("Session store unavailable, using in-memory fallback")
}
