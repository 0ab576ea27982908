// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package render implements the tree/colored/JSON serializers: a shared
// recursion skeleton over the cache's materialized entries, with
// deterministic lexicographic child ordering imposed purely at render time.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/strongdm/ptree/internal/cache"
	"github.com/strongdm/ptree/internal/entry"
)

// Format selects the output serialization.
type Format int

const (
	FormatTree Format = iota
	FormatJSON
)

// parallelSortThreshold is the child count above which child names are
// sorted across goroutines rather than with a single sort.Strings call.
// sort.Strings is sequential, so above the threshold the slice is split
// into fixed-size chunks, each chunk sorted concurrently, then the sorted
// chunks are merged.
const parallelSortThreshold = 500

// Options configures a render pass. Hidden-entry annotation is controlled
// by the cache's own ShowHidden field, not by Options, since it depends on
// per-entry IsHidden data the cache already holds.
type Options struct {
	Format   Format
	Color    bool
	MaxDepth int // 0 means unlimited
}

// Render writes the tree rooted at root to w using the cache's materialized
// entries. The cache must already have every relevant entry loaded (lazy
// materialization is the driver's responsibility, not the renderer's).
func Render(w io.Writer, c *cache.Cache, root string, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return renderJSON(w, c, root, opts)
	default:
		return renderTree(w, c, root, opts)
	}
}

// sortedChildren returns names sorted lexicographically, ascending,
// codepoint-wise — using a parallel merge above parallelSortThreshold.
func sortedChildren(names []string) []string {
	out := append([]string(nil), names...)
	if len(out) <= parallelSortThreshold {
		sort.Strings(out)
		return out
	}

	workers := 4
	chunkSize := (len(out) + workers - 1) / workers
	chunks := make([][]string, 0, workers)
	for i := 0; i < len(out); i += chunkSize {
		end := i + chunkSize
		if end > len(out) {
			end = len(out)
		}
		chunks = append(chunks, out[i:end])
	}

	var wg sync.WaitGroup
	wg.Add(len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		go func() {
			defer wg.Done()
			sort.Strings(chunk)
		}()
	}
	wg.Wait()

	return mergeSortedChunks(chunks)
}

func mergeSortedChunks(chunks [][]string) []string {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	merged := make([]string, 0, total)
	idx := make([]int, len(chunks))

	for {
		best := -1
		for i, chunk := range chunks {
			if idx[i] >= len(chunk) {
				continue
			}
			if best == -1 || chunk[idx[i]] < chunks[best][idx[best]] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		merged = append(merged, chunks[best][idx[best]])
		idx[best]++
	}
	return merged
}

func renderTree(w io.Writer, c *cache.Cache, root string, opts Options) error {
	rootEntry, ok := c.GetEntry(root)
	if !ok {
		fmt.Fprintf(w, "%s\n", root)
		return nil
	}

	if opts.Color {
		fmt.Fprintln(w, color.New(color.FgBlue, color.Bold).Sprint(root))
	} else {
		fmt.Fprintln(w, root)
	}

	return renderChildren(w, c, rootEntry, "", 1, opts)
}

func renderChildren(w io.Writer, c *cache.Cache, dir entry.DirEntry, prefix string, depth int, opts Options) error {
	if opts.MaxDepth > 0 && depth > opts.MaxDepth {
		return nil
	}

	names := sortedChildren(dir.Children)
	for i, name := range names {
		childPath := filepath.Join(dir.Path, name)
		child, ok := c.GetEntry(childPath)

		last := i == len(names)-1
		branch := "├── "
		cont := "│   "
		if last {
			branch = "└── "
			cont = "    "
		}

		label := renderLabel(c, child, ok, name, childPath, opts)
		fmt.Fprintf(w, "%s%s%s\n", prefix, branchGlyph(branch, opts), label)

		if ok && child.IsDir {
			if err := renderChildren(w, c, child, prefix+contGlyph(cont, opts), depth+1, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func branchGlyph(glyph string, opts Options) string {
	if !opts.Color {
		return glyph
	}
	return color.New(color.FgCyan).Sprint(glyph)
}

func contGlyph(glyph string, opts Options) string {
	if !opts.Color {
		return glyph
	}
	return color.New(color.FgCyan).Sprint(glyph)
}

func renderLabel(c *cache.Cache, child entry.DirEntry, ok bool, name, path string, opts Options) string {
	label := c.FormatName(name, path)
	if ok && child.SymlinkTarget != "" {
		label = fmt.Sprintf("%s (→ %s)", label, child.SymlinkTarget)
	}
	if !opts.Color {
		return label
	}
	return color.New(color.FgHiBlue).Sprint(label)
}

// jsonNode is the JSON tree shape: the root omits name, every descendant
// carries it.
type jsonNode struct {
	Name     string     `json:"name,omitempty"`
	Path     string     `json:"path"`
	Children []jsonNode `json:"children"`
}

func renderJSON(w io.Writer, c *cache.Cache, root string, opts Options) error {
	node := buildJSONNode(c, root, filepath.Base(root), 1, opts)
	node.Name = ""

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(node)
}

func buildJSONNode(c *cache.Cache, path, name string, depth int, opts Options) jsonNode {
	node := jsonNode{Name: name, Path: path, Children: []jsonNode{}}

	dir, ok := c.GetEntry(path)
	if !ok || !dir.IsDir {
		return node
	}
	if opts.MaxDepth > 0 && depth > opts.MaxDepth {
		return node
	}

	for _, childName := range sortedChildren(dir.Children) {
		childPath := filepath.Join(path, childName)
		node.Children = append(node.Children, buildJSONNode(c, childPath, childName, depth+1, opts))
	}
	return node
}

// FormatLower is used by CLI flag validation to normalize format strings.
func FormatLower(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatTree
}
