// Package cache provides the read-through lookup caches used in front of the
// reference store: an in-process LRU tier and an optional Redis tier.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pharmref-mcp-server/internal/metrics"
)

// Cache stores serialized values by key. Implementations never fail a
// lookup: backend errors surface as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, keys ...string)
	Purge(ctx context.Context)
}

// LRU is a size-bounded in-process cache with per-entry expiry.
type LRU struct {
	entries *expirable.LRU[string, []byte]
}

// NewLRU creates an LRU holding up to size entries for ttl each. A ttl of
// zero keeps entries until evicted.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 1000
	}
	return &LRU{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.entries.Get(key)
	metrics.RecordCacheLookup("memory", ok)
	return v, ok
}

func (c *LRU) Set(_ context.Context, key string, value []byte) {
	c.entries.Add(key, value)
}

func (c *LRU) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		c.entries.Remove(k)
	}
}

func (c *LRU) Purge(context.Context) {
	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Tiered checks the memory tier first and backfills it from the remote tier.
type Tiered struct {
	memory Cache
	remote Cache
}

// NewTiered layers memory in front of remote. A nil remote behaves like the
// memory tier alone.
func NewTiered(memory, remote Cache) *Tiered {
	return &Tiered{memory: memory, remote: remote}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := t.memory.Get(ctx, key); ok {
		return v, true
	}
	if t.remote == nil {
		return nil, false
	}
	v, ok := t.remote.Get(ctx, key)
	if ok {
		t.memory.Set(ctx, key, v)
	}
	return v, ok
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	t.memory.Set(ctx, key, value)
	if t.remote != nil {
		t.remote.Set(ctx, key, value)
	}
}

func (t *Tiered) Delete(ctx context.Context, keys ...string) {
	t.memory.Delete(ctx, keys...)
	if t.remote != nil {
		t.remote.Delete(ctx, keys...)
	}
}

func (t *Tiered) Purge(ctx context.Context) {
	t.memory.Purge(ctx)
	if t.remote != nil {
		t.remote.Purge(ctx)
	}
}
