package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmref-mcp-server/internal/cache"
	"github.com/pharmref-mcp-server/internal/domain"
)

// countingStore counts reads that reach the backing store.
type countingStore struct {
	Store
	drugReads int
	listReads int
	ruleReads int
}

func (c *countingStore) GetDrug(ctx context.Context, id string) (*domain.Drug, error) {
	c.drugReads++
	return c.Store.GetDrug(ctx, id)
}

func (c *countingStore) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	c.listReads++
	return c.Store.ListDrugs(ctx)
}

func (c *countingStore) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	c.ruleReads++
	return c.Store.ListRules(ctx)
}

func newCachedTestStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	backing := &countingStore{Store: createTestStore(t)}
	t.Cleanup(func() { backing.Close() })
	return NewCachedStore(backing, cache.NewLRU(100, 0), newTestLogger()), backing
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := t.Context()
	cached, backing := newCachedTestStore(t)

	drug := testDrug("digoxin", domain.GradeE)
	require.NoError(t, cached.SaveDrug(ctx, &drug))

	for i := 0; i < 3; i++ {
		got, err := cached.GetDrug(ctx, "digoxin")
		require.NoError(t, err)
		assert.Equal(t, "digoxin", got.ID)

		_, err = cached.ListDrugs(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, backing.drugReads)
	assert.Equal(t, 1, backing.listReads)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := t.Context()
	cached, backing := newCachedTestStore(t)

	drug := testDrug("digoxin", domain.GradeE)
	require.NoError(t, cached.SaveDrug(ctx, &drug))
	_, err := cached.GetDrug(ctx, "digoxin")
	require.NoError(t, err)

	drug.Hepatotoxicity.Grade = domain.GradeD
	require.NoError(t, cached.SaveDrug(ctx, &drug))

	got, err := cached.GetDrug(ctx, "digoxin")
	require.NoError(t, err)
	assert.Equal(t, domain.GradeD, got.Hepatotoxicity.Grade)
	assert.Equal(t, 2, backing.drugReads)

	require.NoError(t, cached.DeleteDrug(ctx, "digoxin"))
	_, err = cached.GetDrug(ctx, "digoxin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, cached.ReplaceRules(ctx, []domain.AlertRule{testRule("r1")}))
	rules, err := cached.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rule := testRule("r2")
	require.NoError(t, cached.SaveRule(ctx, &rule))
	rules, err = cached.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	assert.Equal(t, 2, backing.ruleReads)
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	ctx := t.Context()
	cached, backing := newCachedTestStore(t)

	_, err := cached.GetDrug(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	drug := testDrug("ghost", domain.GradeC)
	require.NoError(t, backing.Store.SaveDrug(ctx, &drug))

	got, err := cached.GetDrug(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", got.ID)
}

func TestCachedStore_SeesWritesFromAnotherHandle(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "reference.db")

	hostBacking, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer hostBacking.Close()
	host := NewCachedStore(hostBacking, cache.NewLRU(100, 0), newTestLogger())

	admin, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer admin.Close()

	rule := testRule("r1")
	require.NoError(t, admin.SaveRule(ctx, &rule))
	drug := testDrug("digoxin", domain.GradeE)
	require.NoError(t, admin.SaveDrug(ctx, &drug))

	rules, err := host.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	_, err = host.GetDrug(ctx, "digoxin")
	require.NoError(t, err)

	require.NoError(t, admin.DeleteRule(ctx, "r1"))
	drug.Hepatotoxicity.Grade = domain.GradeA
	require.NoError(t, admin.SaveDrug(ctx, &drug))

	rules, err = host.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	got, err := host.GetDrug(ctx, "digoxin")
	require.NoError(t, err)
	assert.Equal(t, domain.GradeA, got.Hepatotoxicity.Grade)
}

// revisionFailStore cannot report its data revision.
type revisionFailStore struct {
	Store
}

func (revisionFailStore) Revision(context.Context) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestCachedStore_BypassesCacheWithoutRevision(t *testing.T) {
	ctx := t.Context()
	backing := &countingStore{Store: revisionFailStore{Store: createTestStore(t)}}
	t.Cleanup(func() { backing.Close() })
	cached := NewCachedStore(backing, cache.NewLRU(100, 0), newTestLogger())

	for i := 0; i < 2; i++ {
		_, err := cached.ListRules(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, backing.ruleReads)
}
