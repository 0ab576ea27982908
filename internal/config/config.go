// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package config resolves CLI flags into the runtime Config record, using an
// env-with-fallback resolution style for values like the cache directory.
package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Format is the render output format.
type Format string

// Color is the color-mode selection.
type Color string

const (
	FormatTree Format = "tree"
	FormatJSON Format = "json"

	ColorAuto   Color = "auto"
	ColorAlways Color = "always"
	ColorNever  Color = "never"

	// DefaultCacheTTL is the freshness threshold past which a cached scan is
	// considered stale and a rescan is triggered.
	DefaultCacheTTL = 3600 * time.Second
)

// defaultSkipSet is always excluded regardless of admin mode.
var defaultSkipSet = []string{"System Volume Information", "$Recycle.Bin", ".git"}

// adminOnlySkipSet is appended when AdminMode is false: these names are
// Windows system paths a non-elevated scan has no business entering, and
// scanning them anyway tends to produce nothing but permission-denied noise.
var adminOnlySkipSet = []string{"System32", "WinSxS", "Temp", "Temporary Internet Files"}

// Config is the resolved runtime configuration for one invocation.
type Config struct {
	Drive     string
	Force     bool
	CacheTTL  time.Duration
	CacheDir  string
	NoCache   bool
	Quiet     bool
	Format    Format
	Color     Color
	MaxDepth  int
	Skip      []string
	Hidden    bool
	Threads   int
	Stats     bool
	SkipStats bool

	// AdminMode gates the extra Windows system-path skip entries. Defaults
	// to false (assume non-admin, the safer posture); callers may override
	// it explicitly with --admin.
	AdminMode bool
}

// ErrNoCacheDir is returned when neither XDG_CACHE_HOME nor HOME resolve to
// an absolute path and no --cache-dir override was given.
var ErrNoCacheDir = errors.New("config: could not resolve a cache directory")

// Parse parses args (typically os.Args[1:]) into a Config, applying
// defaults and resolving the cache directory.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("ptree", flag.ContinueOnError)

	drive := fs.String("drive", "", "Windows drive letter to scan under --force")
	force := fs.Bool("force", false, "force a full rescan from the filesystem root")
	cacheTTL := fs.Duration("cache-ttl", DefaultCacheTTL, "cache freshness threshold")
	cacheDir := fs.String("cache-dir", "", "override the default cache directory")
	noCache := fs.Bool("no-cache", false, "do not load or save the persistent cache")
	quiet := fs.Bool("quiet", false, "suppress rendering")
	format := fs.String("format", string(FormatTree), "output format: tree or json")
	color := fs.String("color", string(ColorAuto), "color mode: auto, always, or never")
	maxDepth := fs.Int("max-depth", 0, "render-time depth cutoff (0 = unlimited)")
	skip := fs.String("skip", "", "comma-separated additional names to skip")
	hidden := fs.Bool("hidden", false, "annotate hidden entries in rendering")
	threads := fs.Int("threads", 0, "worker count override (0 = default)")
	stats := fs.Bool("stats", false, "emit a performance summary on stderr")
	skipStats := fs.Bool("skip-stats", false, "emit the skip report on stderr")
	adminMode := fs.Bool("admin", false, "assume elevated/admin privileges")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Drive:     *drive,
		Force:     *force,
		CacheTTL:  *cacheTTL,
		NoCache:   *noCache,
		Quiet:     *quiet,
		Format:    Format(strings.ToLower(strings.TrimSpace(*format))),
		Color:     Color(strings.ToLower(strings.TrimSpace(*color))),
		MaxDepth:  *maxDepth,
		Hidden:    *hidden,
		Threads:   *threads,
		Stats:     *stats,
		SkipStats: *skipStats,
		AdminMode: *adminMode,
	}

	cfg.Skip = append(append([]string(nil), defaultSkipSet...), splitAndTrim(*skip)...)
	if !cfg.AdminMode {
		cfg.Skip = append(cfg.Skip, adminOnlySkipSet...)
	}

	resolvedDir, err := resolveCacheDir(*cacheDir)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheDir = resolvedDir

	return cfg, nil
}

// resolveCacheDir picks the default cache directory, honoring an explicit
// override first.
func resolveCacheDir(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return override, nil
	}

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", ErrNoCacheDir
		}
		return filepath.Join(appData, "ptree", "cache"), nil
	}

	if xdg := os.Getenv("XDG_CACHE_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "ptree"), nil
	}
	if home := os.Getenv("HOME"); filepath.IsAbs(home) {
		return filepath.Join(home, ".cache", "ptree"), nil
	}
	return "", ErrNoCacheDir
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
