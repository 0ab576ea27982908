// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package driver composes the cache, traversal engine, and persistent
// store into three execution modes: cache hit, partial rescan, and forced
// full scan.
package driver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/strongdm/ptree/internal/cache"
	"github.com/strongdm/ptree/internal/config"
	"github.com/strongdm/ptree/internal/traverse"
)

// Mode records which of the three execution paths a Run took, for --stats
// reporting.
type Mode int

const (
	ModeCacheHit Mode = iota
	ModePartialRescan
	ModeForcedFullScan
)

func (m Mode) String() string {
	switch m {
	case ModeCacheHit:
		return "cache-hit"
	case ModePartialRescan:
		return "partial-rescan"
	case ModeForcedFullScan:
		return "forced-full-scan"
	default:
		return "unknown"
	}
}

// Result carries the outcome of Run, including the stats the CLI's --stats
// flag wants to print.
type Result struct {
	Cache        *cache.Cache
	Root         string
	Mode         Mode
	ThreadCount  int
	ScanDuration time.Duration
	SkipReport   string
}

// scanRootForForce picks the scan root for a forced full scan: the given
// drive letter on Windows, or "/" everywhere else.
func scanRootForForce(drive string) string {
	if runtime.GOOS == "windows" && drive != "" {
		return drive + `:\`
	}
	return "/"
}

// Run decides among cache-hit, partial-rescan, and forced-full-scan, then
// executes the chosen path and returns the resulting cache and stats.
func Run(cfg config.Config) (Result, error) {
	return RunWithLogger(cfg, slog.Default())
}

// RunWithLogger is Run, logging cache/store/traversal diagnostics through
// logger instead of the default.
func RunWithLogger(cfg config.Config, logger *slog.Logger) (Result, error) {
	now := time.Now().UTC()

	cwd, err := os.Getwd()
	if err != nil {
		return Result{}, fmt.Errorf("driver: getwd: %w", err)
	}

	var c *cache.Cache
	if cfg.NoCache {
		c = cache.New()
	} else {
		c, err = cache.OpenWithLogger(cfg.CacheDir, logger)
		if err != nil {
			return Result{}, fmt.Errorf("driver: open cache: %w", err)
		}
	}
	c.ShowHidden = cfg.Hidden

	if !cfg.Force && !cfg.NoCache && cacheIsFresh(c, now, cfg.CacheTTL) {
		if err := c.LoadAllEntriesLazy(cfg.CacheDir); err != nil {
			return Result{}, fmt.Errorf("driver: lazy load: %w", err)
		}
		return Result{
			Cache:       c,
			Root:        c.LastScannedRoot,
			Mode:        ModeCacheHit,
			ThreadCount: 0,
			SkipReport:  c.GetSkipReport(),
		}, nil
	}

	root := cwd
	mode := ModePartialRescan
	if cfg.Force {
		root = scanRootForForce(cfg.Drive)
		mode = ModeForcedFullScan
	}

	start := time.Now()
	threadCount, err := traverse.Run(root, c, traverse.Options{
		SkipNames: cfg.Skip,
		Threads:   cfg.Threads,
		Forced:    cfg.Force,
		Logger:    logger,
	})
	if err != nil {
		return Result{}, fmt.Errorf("driver: traverse: %w", err)
	}
	duration := time.Since(start)

	c.Root = root
	c.LastScannedRoot = root
	c.LastScan = now

	if !cfg.NoCache {
		if err := c.Save(cfg.CacheDir); err != nil {
			return Result{}, fmt.Errorf("driver: save cache: %w", err)
		}
	}

	return Result{
		Cache:        c,
		Root:         root,
		Mode:         mode,
		ThreadCount:  threadCount,
		ScanDuration: duration,
		SkipReport:   c.GetSkipReport(),
	}, nil
}

func cacheIsFresh(c *cache.Cache, now time.Time, ttl time.Duration) bool {
	if !c.HasPersistedSnapshot {
		return false
	}
	if c.LastScan.IsZero() {
		return false
	}
	return now.Sub(c.LastScan) < ttl
}

// ResolveRenderRoot returns the path renderers should start from: the
// scan root that was actually used, joined back to an absolute form.
func ResolveRenderRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}
