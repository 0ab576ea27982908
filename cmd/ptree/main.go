// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command ptree is a cache-first directory tree visualizer: it scans a
// filesystem subtree in parallel, persists the result as a memory-mappable
// index, and renders plain, colored, or JSON trees without rescanning while
// the cache remains fresh.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/strongdm/ptree/internal/config"
	"github.com/strongdm/ptree/internal/driver"
	"github.com/strongdm/ptree/internal/render"
)

func main() {
	programStart := time.Now()

	logLevel := slog.LevelInfo
	if os.Getenv("PTREE_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptree: %v\n", err)
		os.Exit(1)
	}

	useColor := resolveColor(cfg.Color)
	// fatih/color disables itself on a non-terminal stdout; the resolved
	// mode decides instead, so --color=always colors piped output too.
	color.NoColor = !useColor

	result, err := driver.RunWithLogger(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptree: %v\n", err)
		os.Exit(1)
	}

	formatStart := time.Now()
	if !cfg.Quiet {
		opts := render.Options{
			Format:   render.FormatLower(string(cfg.Format)),
			Color:    useColor,
			MaxDepth: cfg.MaxDepth,
		}
		if err := render.Render(os.Stdout, result.Cache, result.Root, opts); err != nil {
			fmt.Fprintf(os.Stderr, "ptree: render: %v\n", err)
			os.Exit(1)
		}
	}
	formatElapsed := time.Since(formatStart)

	if cfg.SkipStats {
		fmt.Fprintln(os.Stderr, result.SkipReport)
	}

	if cfg.Stats {
		printDebugSummary(result, formatElapsed, cfg, time.Since(programStart))
	}
}

// resolveColor turns a color-mode flag into an effective on/off decision,
// using go-isatty to detect a terminal for the "auto" mode.
func resolveColor(mode config.Color) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
}

func printDebugSummary(result driver.Result, formatElapsed time.Duration, cfg config.Config, total time.Duration) {
	bar := "======================================================================"
	fmt.Fprintf(os.Stderr, "\n%s\n", bar)
	fmt.Fprintf(os.Stderr, "%34s%s\n", "", "PERFORMANCE DEBUG INFO")
	fmt.Fprintf(os.Stderr, "%s\n", bar)

	fmt.Fprintf(os.Stderr, "\n%-40s %s\n", "Execution Mode:", executionModeLabel(result.Mode))
	fmt.Fprintf(os.Stderr, "%-40s %s\n", "Scan Root:", result.Root)

	fmt.Fprintf(os.Stderr, "\n%-40s %s\n", "Entries Cached:", humanize.Comma(int64(result.Cache.EntryCountHint())))
	fmt.Fprintf(os.Stderr, "%-40s %d\n", "Threads Used:", result.ThreadCount)

	if result.Mode != driver.ModeCacheHit {
		fmt.Fprintf(os.Stderr, "\n%-40s %s\n", "Traversal Time:", formatDuration(result.ScanDuration))
	}
	fmt.Fprintf(os.Stderr, "%-40s %s\n", "Formatting Time:", formatDuration(formatElapsed))
	fmt.Fprintf(os.Stderr, "%-40s %s\n", "Total Time:", formatDuration(total))

	fmt.Fprintf(os.Stderr, "\n%-40s %s\n", "Cache Location:", cfg.CacheDir)
	fmt.Fprintf(os.Stderr, "%s\n\n", bar)
}

func executionModeLabel(mode driver.Mode) string {
	switch mode {
	case driver.ModeCacheHit:
		return "CACHED"
	case driver.ModeForcedFullScan:
		return "FULL DISK SCAN (forced)"
	default:
		return "PARTIAL SCAN (current directory)"
	}
}

func formatDuration(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	return fmt.Sprintf("%.3f ms", ms)
}
