package store

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/cache"
	"github.com/pharmref-mcp-server/internal/domain"
)

const (
	drugKeyPrefix = "drug:"
	drugListKey   = "drugs"
	ruleListKey   = "rules"
)

// CachedStore is a read-through cache in front of another Store. Single
// drugs and the drug and rule lists are cached under keys that carry the
// store's data revision, so a write by any process on the same database
// retires every cached entry on the next read. Writes pass through.
type CachedStore struct {
	Store
	cache  cache.Cache
	logger *logrus.Logger

	mu       sync.Mutex
	revision int64
	synced   bool
}

// NewCachedStore wraps next with c.
func NewCachedStore(next Store, c cache.Cache, logger *logrus.Logger) *CachedStore {
	return &CachedStore{Store: next, cache: c, logger: logger}
}

func (s *CachedStore) GetDrug(ctx context.Context, id string) (*domain.Drug, error) {
	key, ok := s.versionedKey(ctx, drugKeyPrefix+id)
	var drug domain.Drug
	if ok && s.lookup(ctx, key, &drug) {
		return &drug, nil
	}

	found, err := s.Store.GetDrug(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		s.fill(ctx, key, found)
	}
	return found, nil
}

func (s *CachedStore) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	key, ok := s.versionedKey(ctx, drugListKey)
	var drugs []domain.Drug
	if ok && s.lookup(ctx, key, &drugs) {
		return drugs, nil
	}

	drugs, err := s.Store.ListDrugs(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		s.fill(ctx, key, drugs)
	}
	return drugs, nil
}

func (s *CachedStore) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	key, ok := s.versionedKey(ctx, ruleListKey)
	var rules []domain.AlertRule
	if ok && s.lookup(ctx, key, &rules) {
		return rules, nil
	}

	rules, err := s.Store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		s.fill(ctx, key, rules)
	}
	return rules, nil
}

// versionedKey prefixes key with the current data revision. The revision
// is read before the data, so an entry is never stored under a revision
// newer than its contents. When the revision cannot be read the cache is
// bypassed.
func (s *CachedStore) versionedKey(ctx context.Context, key string) (string, bool) {
	rev, err := s.Store.Revision(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Could not read data revision, bypassing cache")
		return "", false
	}

	s.mu.Lock()
	changed := s.synced && rev != s.revision
	s.revision, s.synced = rev, true
	s.mu.Unlock()

	if changed {
		// Entries under older revisions are unreachable; free them.
		s.logger.WithField("revision", rev).Debug("Reference data changed, purging lookup cache")
		s.cache.Purge(ctx)
	}
	return "r" + strconv.FormatInt(rev, 10) + ":" + key, true
}

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// Drop the corrupted entry and fall through to the store.
		s.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable cache entry")
		s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *CachedStore) fill(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Could not cache value")
		return
	}
	s.cache.Set(ctx, key, raw)
}
