// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"runtime"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Setenv("APPDATA", `C:\Users\tester\AppData\Roaming`)
	} else {
		t.Setenv("XDG_CACHE_HOME", "")
		t.Setenv("HOME", "/home/tester")
	}

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Format != FormatTree {
		t.Fatalf("expected default format tree, got %q", cfg.Format)
	}
	if cfg.Color != ColorAuto {
		t.Fatalf("expected default color auto, got %q", cfg.Color)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Fatalf("expected default cache ttl, got %v", cfg.CacheTTL)
	}
	if cfg.Force {
		t.Fatal("force should default to false")
	}
}

func TestParseDefaultSkipSetIncludesAdminOnlyNamesWhenNotAdmin(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_CACHE_HOME", "")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !containsString(cfg.Skip, "System32") {
		t.Fatalf("expected System32 in default non-admin skip set: %v", cfg.Skip)
	}
	if !containsString(cfg.Skip, ".git") {
		t.Fatalf("expected .git in default skip set: %v", cfg.Skip)
	}
}

func TestParseAdminModeOmitsWindowsOnlySkipNames(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_CACHE_HOME", "")

	cfg, err := Parse([]string{"-admin"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if containsString(cfg.Skip, "System32") {
		t.Fatalf("admin mode should omit System32 from the skip set: %v", cfg.Skip)
	}
}

func TestParseExtraSkipNamesAppended(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_CACHE_HOME", "")

	cfg, err := Parse([]string{"-skip", "node_modules,build"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !containsString(cfg.Skip, "node_modules") || !containsString(cfg.Skip, "build") {
		t.Fatalf("expected extra skip names appended: %v", cfg.Skip)
	}
}

func TestResolveCacheDirExplicitOverrideWins(t *testing.T) {
	dir, err := resolveCacheDir("/tmp/custom-cache")
	if err != nil {
		t.Fatalf("resolveCacheDir: %v", err)
	}
	if dir != "/tmp/custom-cache" {
		t.Fatalf("expected override to win, got %q", dir)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
