package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/tree"
)

func testMember(id, first, last, dob string) *tree.Member {
	m := &tree.Member{ID: id, FirstName: first, LastName: last, DOB: dob}
	m.RefreshDOBTS()
	return m
}

func childOf(childID string, parentID *string) tree.Relation {
	return tree.Relation{ID: "rel-" + childID, ChildID: childID, ParentID: parentID}
}

func strPtr(s string) *string { return &s }

func cachedTree(t *testing.T) *tree.Tree {
	t.Helper()
	a := testMember("a", "Ana", "Reyes", "01/01/1950")
	b := testMember("b", "Ben", "Reyes", "01/01/1975")
	tr, err := tree.Assemble([]*tree.Member{a, b}, []tree.Relation{childOf("a", nil), childOf("b", strPtr("a"))})
	require.NoError(t, err)
	return tr
}

func TestCacheHitAfterSet(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	tr := cachedTree(t)

	assert.Nil(t, c.Get("space-1"))

	c.Set("space-1", tr)
	assert.Same(t, tr, c.Get("space-1"))
	assert.Nil(t, c.Get("space-2"))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCacheZeroTTLExpiresImmediately(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	c.Configure(CacheConfig{TTL: 0, Enabled: true})

	c.Set("space-1", cachedTree(t))
	assert.Nil(t, c.Get("space-1"))
	assert.Equal(t, int64(1), c.Stats().Invalidations[ReasonTTLExpired])
}

func TestCacheDetectsMutatedEntry(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	tr := cachedTree(t)
	c.Set("space-1", tr)

	// Mutating the cached tree behind the cache's back breaks the stored
	// content hash, so the next read must refuse to serve it.
	tr.Members[0].FirstName = "Anna"

	assert.Nil(t, c.Get("space-1"))
	assert.Equal(t, int64(1), c.Stats().Invalidations[ReasonDataChanged])
}

func TestCacheInvalidateByReason(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	c.Set("space-1", cachedTree(t))
	c.Set("space-2", cachedTree(t))

	c.Invalidate("space-1", ReasonStructureChanged)
	c.Invalidate("missing", ReasonStructureChanged)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Invalidations[ReasonStructureChanged])
}

func TestCacheClearDropsAllEntries(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	c.Set("space-1", cachedTree(t))
	c.Set("space-2", cachedTree(t))

	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(2), stats.Invalidations[ReasonManualClear])
}

func TestCacheDisabledBypassesStorage(t *testing.T) {
	c := NewTreeCache(zap.NewNop(), nil)
	c.Set("space-1", cachedTree(t))

	c.Configure(CacheConfig{TTL: DefaultCacheTTL, Enabled: false})
	assert.Equal(t, 0, c.Stats().Entries)

	c.Set("space-1", cachedTree(t))
	assert.Nil(t, c.Get("space-1"))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCacheConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := NewTreeCache(zap.NewNop(), nil)
	c.Configure(CacheConfig{TTL: 90 * time.Second, Enabled: true})
	require.NoError(t, c.SaveConfig(path))

	loaded := NewTreeCache(zap.NewNop(), nil)
	require.NoError(t, loaded.LoadConfig(path))

	cfg := loaded.Config()
	assert.Equal(t, 90*time.Second, cfg.TTL)
	assert.True(t, cfg.Enabled)
}

func TestCacheWatchConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := NewTreeCache(zap.NewNop(), nil)
	require.NoError(t, c.SaveConfig(path))
	require.NoError(t, c.WatchConfig(path))
	defer c.StopWatching()

	writer := NewTreeCache(zap.NewNop(), nil)
	writer.Configure(CacheConfig{TTL: 42 * time.Second, Enabled: true})
	require.NoError(t, writer.SaveConfig(path))

	assert.Eventually(t, func() bool {
		return c.Config().TTL == 42*time.Second
	}, 2*time.Second, 20*time.Millisecond)
}
