// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package traverse implements a parallel, work-stealing DFS traversal
// engine: a fixed-size worker pool cooperating on a shared FIFO work queue,
// batching both queue access and cache writes to keep lock contention
// tolerable at scale.
package traverse

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/strongdm/ptree/internal/cache"
	"github.com/strongdm/ptree/internal/entry"
)

// batchSize is how many queue items a worker claims per lock acquisition.
const batchSize = 10

// entryBufferCapacity is the thread-local buffer size before a worker
// drains into the shared cache.
const entryBufferCapacity = 500

// DefaultThreadCount picks the default worker count: physical cores capped
// at 4 for partial scans, uncapped for forced full scans.
func DefaultThreadCount(forced bool) int {
	cores := cpuid.CPU.PhysicalCores
	if cores < 1 {
		cores = runtime.NumCPU()
	}
	if forced {
		return cores
	}
	if cores > 4 {
		return 4
	}
	return cores
}

// Options configures a traversal run.
type Options struct {
	// SkipNames is matched case-insensitive ASCII against basenames.
	SkipNames []string
	// Threads is the worker count; zero selects DefaultThreadCount(Forced).
	Threads int
	Forced  bool
	// Logger receives per-directory diagnostic events; defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// Run performs a parallel DFS scan rooted at root, mutating cch in place.
// It returns the number of worker threads actually used. The scan root must
// exist and be a directory; that check happens before any worker is
// spawned.
func Run(root string, cch *cache.Cache, opts Options) (int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("traverse: scan root: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("traverse: scan root is not a directory: %s", root)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = DefaultThreadCount(opts.Forced)
	}
	if threads < 1 {
		threads = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	skip := make(map[string]struct{}, len(opts.SkipNames))
	for _, name := range opts.SkipNames {
		skip[strings.ToLower(name)] = struct{}{}
	}

	queue := newWorkQueue(root)
	inProgress := newInProgressSet()

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			runWorker(cch, queue, inProgress, skip, logger)
		}()
	}
	wg.Wait()

	return threads, nil
}

// entryBuffer is a worker's thread-local accumulator for cache writes.
type entryBuffer struct {
	paths   []string
	entries []entry.DirEntry
}

func (b *entryBuffer) add(path string, e entry.DirEntry) {
	b.paths = append(b.paths, path)
	b.entries = append(b.entries, e)
}

func (b *entryBuffer) full() bool { return len(b.entries) >= entryBufferCapacity }

func (b *entryBuffer) flush(cch *cache.Cache) {
	if len(b.entries) == 0 {
		return
	}
	cch.AddEntries(b.entries, b.paths)
	b.paths = b.paths[:0]
	b.entries = b.entries[:0]
}

func runWorker(cch *cache.Cache, queue *workQueue, inProgress *inProgressSet, skip map[string]struct{}, logger *slog.Logger) {
	buf := &entryBuffer{}
	skipCounts := make(map[string]int)

	for {
		batch := queue.popBatch(batchSize)
		if len(batch) == 0 {
			buf.flush(cch)
			if len(skipCounts) > 0 {
				cch.MergeSkipStats(skipCounts)
			}
			return
		}

		for _, dir := range batch {
			if !inProgress.acquire(dir) {
				continue
			}
			expandDirectory(dir, cch, queue, buf, skip, skipCounts, logger)
			inProgress.release(dir)
		}
	}
}

// expandDirectory enumerates one directory's immediate children, classifies
// each, and buffers the resulting entries.
func expandDirectory(dir string, cch *cache.Cache, queue *workQueue, buf *entryBuffer, skip map[string]struct{}, skipCounts map[string]int, logger *slog.Logger) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		// Permission denied, vanished directory, etc: silent to the scan
		// result, but worth a debug line when PTREE_DEBUG is set.
		logger.Debug("directory enumeration failed, skipping", "path", dir, "err", err)
		return
	}

	var children []string
	var dirsToQueue []string

	for _, de := range dirEntries {
		name := de.Name()
		if shouldSkip(name, skip) {
			skipCounts[name]++
			continue
		}

		childPath := filepath.Join(dir, name)

		switch {
		case de.IsDir():
			children = append(children, name)
			dirsToQueue = append(dirsToQueue, childPath)
			buf.add(childPath, entry.DirEntry{
				Path:     childPath,
				Name:     name,
				Modified: time.Now().UTC(),
				IsDir:    true,
			})

		case de.Type()&fs.ModeSymlink != 0:
			children = append(children, name)
			target, _ := os.Readlink(childPath)
			buf.add(childPath, entry.DirEntry{
				Path:          childPath,
				Name:          name,
				Modified:      time.Now().UTC(),
				SymlinkTarget: target,
				IsDir:         false,
			})

		case de.Type().IsRegular():
			children = append(children, name)
			buf.add(childPath, entry.DirEntry{
				Path:     childPath,
				Name:     name,
				Modified: time.Now().UTC(),
				IsDir:    false,
			})

		default:
			// Unknown node type (device, socket, FIFO, ...): ignore entirely.
		}

		if buf.full() {
			buf.flush(cch)
		}
	}

	queue.pushBatch(dirsToQueue)

	buf.add(dir, entry.DirEntry{
		Path:     dir,
		Name:     filepath.Base(dir),
		Modified: time.Now().UTC(),
		Children: children,
		IsDir:    true,
		IsHidden: isHiddenDir(dir),
	})
	if buf.full() {
		buf.flush(cch)
	}
}

func shouldSkip(name string, skip map[string]struct{}) bool {
	_, ok := skip[strings.ToLower(name)]
	return ok
}
