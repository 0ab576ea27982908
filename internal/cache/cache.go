// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the process-wide directory index: a path-to-entry
// map with buffered writes, skip statistics, and lazy materialization against
// the persistent store.
package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strongdm/ptree/internal/entry"
	"github.com/strongdm/ptree/internal/store"
)

// DefaultFlushThreshold is the pending-write buffer size at which Cache
// drains into its main entries map.
const DefaultFlushThreshold = 5000

// storeBase returns the on-disk base path (sans ".idx"/".dat"/".tmp" suffix)
// for a snapshot kept under cacheDir: cacheDir/ptree. Keeping the store's
// base name distinct from cacheDir itself means the index and data files
// live inside the cache directory rather than beside it.
func storeBase(cacheDir string) string {
	return filepath.Join(cacheDir, "ptree")
}

// Cache is the in-memory directory index mutated by the traversal engine and
// read by the renderers. entries, pendingWrites, and skipStats are guarded by
// mu; Root/LastScannedRoot/LastScan are set by the single-threaded driver
// around a scan and are not written concurrently with traversal.
type Cache struct {
	mu sync.RWMutex

	entries       map[string]entry.DirEntry
	pendingWrites []pendingWrite
	skipStats     map[string]int

	Root            string
	LastScannedRoot string
	LastScan        time.Time

	FlushThreshold       int
	ShowHidden           bool
	HasPersistedSnapshot bool
	PersistedEntryCount  int
}

type pendingWrite struct {
	path  string
	entry entry.DirEntry
}

// New returns an empty cache, pre-sized for a typical large disk so
// traversal doesn't pay for repeated map growth.
func New() *Cache {
	return &Cache{
		entries:        make(map[string]entry.DirEntry, 100_000),
		skipStats:      make(map[string]int),
		FlushThreshold: DefaultFlushThreshold,
	}
}

// Open constructs a Cache from a persisted snapshot under cacheDir, if one
// exists. Entries are left empty for cold-start speed; HasPersistedSnapshot
// and PersistedEntryCount record what the index saw.
func Open(cacheDir string) (*Cache, error) {
	return OpenWithLogger(cacheDir, slog.Default())
}

// OpenWithLogger is Open, logging store diagnostics through logger.
func OpenWithLogger(cacheDir string, logger *slog.Logger) (*Cache, error) {
	r, err := store.NewWithLogger(storeBase(cacheDir), logger).OpenReader()
	if err != nil {
		return nil, fmt.Errorf("cache: open store: %w", err)
	}
	defer r.Close()

	c := New()
	idx := r.Index()
	if len(idx.Offsets) == 0 {
		return c, nil
	}

	c.Root = idx.Root
	c.LastScannedRoot = idx.LastScannedRoot
	c.LastScan = idx.LastScan
	if idx.SkipStats != nil {
		c.skipStats = idx.SkipStats
	}
	c.HasPersistedSnapshot = true
	c.PersistedEntryCount = len(idx.Offsets)
	return c, nil
}

// AddEntry buffers a single entry for batch insertion, draining into the
// main map once FlushThreshold pending writes have accumulated.
func (c *Cache) AddEntry(path string, e entry.DirEntry) {
	c.AddEntries([]entry.DirEntry{e}, []string{path})
}

// AddEntries buffers a batch of entries under a single lock acquisition, so
// a worker can drain its thread-local buffer into the shared cache in one
// lock/unlock pair instead of one per entry.
func (c *Cache) AddEntries(entries []entry.DirEntry, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range entries {
		c.pendingWrites = append(c.pendingWrites, pendingWrite{path: paths[i], entry: e})
	}
	if len(c.pendingWrites) >= c.FlushThreshold {
		c.drainLocked()
	}
}

// FlushPendingWrites unconditionally drains the pending-write buffer.
func (c *Cache) FlushPendingWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
}

func (c *Cache) drainLocked() {
	for _, pw := range c.pendingWrites {
		c.entries[pw.path] = pw.entry
	}
	c.pendingWrites = c.pendingWrites[:0]
}

// GetEntry returns the entry at path if already materialized in entries. It
// never consults the persistent store; callers needing lazy fill use
// LoadEntriesLazy/LoadAllEntriesLazy.
func (c *Cache) GetEntry(path string) (entry.DirEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// EntryCount returns the number of materialized entries.
func (c *Cache) EntryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EntryCountHint returns the live entry count if entries are materialized,
// otherwise falls back to the persisted-index hint (cheap cache-hit stats).
func (c *Cache) EntryCountHint() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) > 0 {
		return len(c.entries)
	}
	return c.PersistedEntryCount
}

// LoadEntriesLazy loads each path not already materialized from the
// persistent store under cacheDir; missing keys are silently skipped.
func (c *Cache) LoadEntriesLazy(paths []string, cacheDir string) error {
	r, err := store.New(storeBase(cacheDir)).OpenReader()
	if err != nil {
		return fmt.Errorf("cache: open store: %w", err)
	}
	defer r.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, path := range paths {
		if _, ok := c.entries[path]; ok {
			continue
		}
		e, ok, err := r.Get(path)
		if err != nil {
			return fmt.Errorf("cache: load %q: %w", path, err)
		}
		if ok {
			c.entries[path] = e
		}
	}
	return nil
}

// LoadAllEntriesLazy bulk-loads every key known to the persisted index under
// cacheDir.
func (c *Cache) LoadAllEntriesLazy(cacheDir string) error {
	r, err := store.New(storeBase(cacheDir)).OpenReader()
	if err != nil {
		return fmt.Errorf("cache: open store: %w", err)
	}
	defer r.Close()

	all, err := r.GetAll()
	if err != nil {
		return fmt.Errorf("cache: load all: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for path, e := range all {
		if _, ok := c.entries[path]; !ok {
			c.entries[path] = e
		}
	}
	return nil
}

// RemoveEntry deletes path and every entry whose path is a strict descendant
// of it, measured by path components: RemoveEntry("/foo") retains "/foobar"
// but removes "/foo/bar".
func (c *Cache) RemoveEntry(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for k := range c.entries {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Save flushes buffers, updates persistence metadata, and writes the
// snapshot under cacheDir through the store's atomic write path.
func (c *Cache) Save(cacheDir string) error {
	c.mu.Lock()
	c.drainLocked()
	c.HasPersistedSnapshot = true
	c.PersistedEntryCount = len(c.entries)

	snapshot := make(map[string]entry.DirEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	skipStats := make(map[string]int, len(c.skipStats))
	for k, v := range c.skipStats {
		skipStats[k] = v
	}
	c.mu.Unlock()

	return store.New(storeBase(cacheDir)).Write(snapshot, store.Index{
		Root:            c.Root,
		LastScannedRoot: c.LastScannedRoot,
		LastScan:        c.LastScan,
		SkipStats:       skipStats,
	})
}

// FormatName renders a display string for name/path, appending " [H]" when
// the cache has hidden-entry annotation enabled (ShowHidden) and the entry
// at path is marked hidden.
func (c *Cache) FormatName(name, path string) string {
	if !c.ShowHidden {
		return name
	}
	e, ok := c.GetEntry(path)
	if ok && e.IsHidden {
		return name + " [H]"
	}
	return name
}

// RecordSkip increments the skip count for a basename excluded by the skip
// set.
func (c *Cache) RecordSkip(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipStats[name]++
}

// MergeSkipStats merges a worker's thread-local skip counts into the shared
// map.
func (c *Cache) MergeSkipStats(counts map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, n := range counts {
		c.skipStats[name] += n
	}
}

// SkipStats returns a copy of the current skip statistics.
func (c *Cache) SkipStats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.skipStats))
	for k, v := range c.skipStats {
		out[k] = v
	}
	return out
}

// GetSkipReport renders the skip statistics sorted by descending count.
func (c *Cache) GetSkipReport() string {
	stats := c.SkipStats()
	if len(stats) == 0 {
		return "(no directories skipped)"
	}

	type kv struct {
		name  string
		count int
	}
	sorted := make([]kv, 0, len(stats))
	for name, count := range stats {
		sorted = append(sorted, kv{name, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})

	var b strings.Builder
	b.WriteString("Skip Statistics:\n")
	for _, e := range sorted {
		fmt.Fprintf(&b, "  %d × %s\n", e.count, e.name)
	}
	return b.String()
}

// Snapshot returns a copy of every materialized entry, for renderers and
// tests that need a stable view.
func (c *Cache) Snapshot() map[string]entry.DirEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]entry.DirEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
