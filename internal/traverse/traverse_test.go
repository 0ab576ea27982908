// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package traverse

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/strongdm/ptree/internal/cache"
)

func TestRunEmptyDirectoryProducesSingleEntry(t *testing.T) {
	root := t.TempDir()
	c := cache.New()

	if _, err := Run(root, c, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	e, ok := c.GetEntry(root)
	if !ok {
		t.Fatal("expected root entry to be cached")
	}
	if !e.IsDir {
		t.Fatal("root entry should be a directory")
	}
	if len(e.Children) != 0 {
		t.Fatalf("expected no children, got %v", e.Children)
	}
}

func TestRunSingleFileChild(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := cache.New()

	if _, err := Run(root, c, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rootEntry, ok := c.GetEntry(root)
	if !ok {
		t.Fatal("expected root entry")
	}
	if len(rootEntry.Children) != 1 || rootEntry.Children[0] != "a.txt" {
		t.Fatalf("unexpected children: %v", rootEntry.Children)
	}

	child, ok := c.GetEntry(filepath.Join(root, "a.txt"))
	if !ok {
		t.Fatal("expected child entry in cache")
	}
	if child.IsDir {
		t.Fatal("a.txt should not be marked as a directory")
	}
}

func TestRunRecordsEveryChild(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"zebra", "apple", "mango"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	c := cache.New()
	if _, err := Run(root, c, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rootEntry, _ := c.GetEntry(root)
	if len(rootEntry.Children) != 3 {
		t.Fatalf("expected 3 children, got %v", rootEntry.Children)
	}
	// Intentionally not asserting sort order here: insertion order follows
	// os.ReadDir, which returns entries sorted by filename, so this test
	// cannot tell sorted from unsorted storage. Rendering is responsible for
	// guaranteeing a deterministic order regardless.
}

func TestRunSkipSetExcludesNamedDirectoriesAndRecordsStats(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := cache.New()

	if _, err := Run(root, c, Options{SkipNames: []string{".GIT"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := c.GetEntry(filepath.Join(root, ".git")); ok {
		t.Fatal(".git should have been skipped and never entered into the cache")
	}
	if _, ok := c.GetEntry(filepath.Join(root, "keep")); !ok {
		t.Fatal("keep should have been traversed")
	}

	rootEntry, _ := c.GetEntry(root)
	if len(rootEntry.Children) != 1 {
		t.Fatalf("expected only the non-skipped child recorded, got %v", rootEntry.Children)
	}

	stats := c.SkipStats()
	if stats[".git"] != 1 {
		t.Fatalf("expected skip stats to record .git once, got %v", stats)
	}
}

func TestRunSymlinkRecordedButNotTraversed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	root := t.TempDir()
	target := filepath.Join(root, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "inside.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	c := cache.New()
	if _, err := Run(root, c, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	linkEntry, ok := c.GetEntry(link)
	if !ok {
		t.Fatal("expected the symlink itself to be recorded")
	}
	if linkEntry.SymlinkTarget != target {
		t.Fatalf("expected symlink target %q, got %q", target, linkEntry.SymlinkTarget)
	}
	if linkEntry.IsDir {
		t.Fatal("a symlink entry should not be marked as a directory")
	}

	if _, ok := c.GetEntry(filepath.Join(link, "inside.txt")); ok {
		t.Fatal("traversal must not follow symlinks into their targets")
	}
}

func TestRunRejectsNonDirectoryRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := cache.New()
	if _, err := Run(file, c, Options{}); err == nil {
		t.Fatal("expected an error when the scan root is not a directory")
	}
}

func TestRunRejectsMissingRoot(t *testing.T) {
	c := cache.New()
	if _, err := Run(filepath.Join(t.TempDir(), "does-not-exist"), c, Options{}); err == nil {
		t.Fatal("expected an error when the scan root does not exist")
	}
}

func TestDefaultThreadCountCappedForPartialScans(t *testing.T) {
	if DefaultThreadCount(false) > 4 {
		t.Fatalf("partial scans must cap at 4 threads, got %d", DefaultThreadCount(false))
	}
}

func TestDefaultThreadCountUncappedForForcedScans(t *testing.T) {
	if DefaultThreadCount(true) < DefaultThreadCount(false) {
		t.Fatal("forced scans should never use fewer threads than partial scans")
	}
}
