package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/tree"
)

// DefaultCacheTTL bounds how long a cached tree is served without a refetch.
const DefaultCacheTTL = 5 * time.Minute

// Invalidation reasons recorded in cache stats.
const (
	ReasonTTLExpired       = "ttl_expired"
	ReasonDataChanged      = "data_changed"
	ReasonManualClear      = "manual_clear"
	ReasonStructureChanged = "structure_changed"
)

// CacheConfig is the runtime-tunable cache configuration. It round-trips
// to disk as JSON and is reloaded when the file changes.
type CacheConfig struct {
	TTL     time.Duration `json:"-"`
	TTLSecs int           `json:"ttl_seconds"`
	Enabled bool          `json:"enabled"`
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits          int64            `json:"hits"`
	Misses        int64            `json:"misses"`
	Entries       int              `json:"entries"`
	Invalidations map[string]int64 `json:"invalidations"`
}

type cacheEntry struct {
	tree           *tree.Tree
	fetchedAt      time.Time
	contentVersion string
}

// TreeCache is an advisory read-through cache of assembled trees, keyed by
// space id. A Get miss for any reason just means the caller refetches; the
// cache is never consulted for writes.
type TreeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	cfg     CacheConfig
	stats   CacheStats
	logger  *zap.Logger

	hits          prometheus.Counter
	misses        prometheus.Counter
	invalidations *prometheus.CounterVec

	watcher    *fsnotify.Watcher
	configPath string
	stopCh     chan struct{}
}

// NewTreeCache creates a cache with the default configuration. Passing a
// non-nil registerer wires hit/miss/invalidation counters into Prometheus.
func NewTreeCache(logger *zap.Logger, reg prometheus.Registerer) *TreeCache {
	c := &TreeCache{
		entries: make(map[string]cacheEntry),
		cfg:     CacheConfig{TTL: DefaultCacheTTL, Enabled: true},
		stats:   CacheStats{Invalidations: make(map[string]int64)},
		logger:  logger,
	}

	c.hits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "heirloom_client",
		Name:      "tree_cache_hits_total",
		Help:      "Total number of tree cache hits",
	})
	c.misses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "heirloom_client",
		Name:      "tree_cache_misses_total",
		Help:      "Total number of tree cache misses",
	})
	c.invalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heirloom_client",
		Name:      "tree_cache_invalidations_total",
		Help:      "Total number of tree cache invalidations by reason",
	}, []string{"reason"})

	if reg != nil {
		reg.MustRegister(c.hits, c.misses, c.invalidations)
	}

	return c
}

// Get returns the cached tree for the space, or nil when the cache is
// disabled, the entry is missing or expired, or the stored content hash no
// longer matches the entry (a corrupted or externally mutated payload).
func (c *TreeCache) Get(spaceID string) *tree.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		c.miss()
		return nil
	}

	entry, ok := c.entries[spaceID]
	if !ok {
		c.miss()
		return nil
	}

	if time.Since(entry.fetchedAt) >= c.cfg.TTL {
		c.invalidateLocked(spaceID, ReasonTTLExpired)
		c.miss()
		return nil
	}

	if tree.TreeContentHash(entry.tree) != entry.contentVersion {
		c.invalidateLocked(spaceID, ReasonDataChanged)
		c.miss()
		return nil
	}

	c.stats.Hits++
	c.hits.Inc()
	return entry.tree
}

// Set stores an assembled tree for the space, stamping its content hash.
func (c *TreeCache) Set(spaceID string, t *tree.Tree) {
	if t == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return
	}

	c.entries[spaceID] = cacheEntry{
		tree:           t,
		fetchedAt:      time.Now(),
		contentVersion: tree.TreeContentHash(t),
	}
}

// Invalidate drops the space's entry, recording the reason.
func (c *TreeCache) Invalidate(spaceID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(spaceID, reason)
}

// Clear drops every entry.
func (c *TreeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for spaceID := range c.entries {
		c.invalidateLocked(spaceID, ReasonManualClear)
	}
}

func (c *TreeCache) invalidateLocked(spaceID, reason string) {
	if _, ok := c.entries[spaceID]; !ok {
		return
	}
	delete(c.entries, spaceID)
	c.stats.Invalidations[reason]++
	c.invalidations.WithLabelValues(reason).Inc()
	c.logger.Debug("Cache entry invalidated",
		zap.String("spaceID", spaceID),
		zap.String("reason", reason),
	)
}

func (c *TreeCache) miss() {
	c.stats.Misses++
	c.misses.Inc()
}

// Stats returns a snapshot of cache counters.
func (c *TreeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := CacheStats{
		Hits:          c.stats.Hits,
		Misses:        c.stats.Misses,
		Entries:       len(c.entries),
		Invalidations: make(map[string]int64, len(c.stats.Invalidations)),
	}
	for reason, n := range c.stats.Invalidations {
		out.Invalidations[reason] = n
	}
	return out
}

// Configure applies a new configuration. Disabling the cache drops all
// entries; shrinking the TTL takes effect on the next Get.
func (c *TreeCache) Configure(cfg CacheConfig) {
	if cfg.TTL == 0 && cfg.TTLSecs > 0 {
		cfg.TTL = time.Duration(cfg.TTLSecs) * time.Second
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	if !cfg.Enabled {
		for spaceID := range c.entries {
			c.invalidateLocked(spaceID, ReasonManualClear)
		}
	}
}

// Config returns the current configuration.
func (c *TreeCache) Config() CacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SaveConfig persists the current configuration as JSON.
func (c *TreeCache) SaveConfig(path string) error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	cfg.TTLSecs = int(cfg.TTL / time.Second)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache config: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadConfig reads a persisted configuration and applies it.
func (c *TreeCache) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cache config: %w", err)
	}

	var cfg CacheConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse cache config: %w", err)
	}
	if cfg.TTLSecs > 0 {
		cfg.TTL = time.Duration(cfg.TTLSecs) * time.Second
	} else {
		cfg.TTL = DefaultCacheTTL
	}

	c.Configure(cfg)
	return nil
}

// WatchConfig reloads the configuration whenever the file changes on disk.
// Stop with StopWatching.
func (c *TreeCache) WatchConfig(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch cache config: %w", err)
	}
	// Watch the directory too so atomic rename saves are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		c.logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	c.mu.Lock()
	c.watcher = watcher
	c.configPath = path
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.watchLoop(watcher, path, stopCh)
	return nil
}

// StopWatching stops the configuration watcher if one is running.
func (c *TreeCache) StopWatching() {
	c.mu.Lock()
	watcher, stopCh := c.watcher, c.stopCh
	c.watcher, c.stopCh = nil, nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if watcher != nil {
		watcher.Close()
	}
}

func (c *TreeCache) watchLoop(watcher *fsnotify.Watcher, path string, stopCh chan struct{}) {
	var debounce *time.Timer
	const debounceDuration = 100 * time.Millisecond

	for {
		select {
		case <-stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, func() {
					if err := c.LoadConfig(path); err != nil {
						c.logger.Error("Failed to reload cache config", zap.Error(err))
						return
					}
					c.logger.Info("Cache config reloaded", zap.String("path", path))
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("Cache config watcher error", zap.Error(err))
		}
	}
}
