// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package entry defines the directory-entry record produced by a scan and
// consumed by the cache, the persistent store, and the renderers.
package entry

import "time"

// DirEntry describes one filesystem node observed during a scan.
//
// Invariant: for a directory entry, every name in Children has a
// corresponding entry at path.Join(Path, name) once traversal completes and
// pending writes are flushed. Name always equals filepath.Base(Path).
// Symlinks are recorded but never traversed: they contribute no children and
// are never queued for expansion.
type DirEntry struct {
	Path string `msgpack:"1"`
	Name string `msgpack:"2"`

	// Modified is the UTC observation time recorded when the entry was built.
	Modified time.Time `msgpack:"3"`

	// ContentHash is the Merkle-style 64-bit digest from the hash package.
	// Zero is a valid "unset" sentinel for entries buffered before hashing.
	ContentHash uint64 `msgpack:"4"`

	// Children holds final path components only, unsorted until rendered.
	Children []string `msgpack:"5"`

	// SymlinkTarget is set only when this entry is a symbolic link.
	SymlinkTarget string `msgpack:"6"`

	IsHidden bool `msgpack:"7"`
	IsDir    bool `msgpack:"8"`
}

// Clone returns a deep copy so callers never share a Children backing array.
func (e DirEntry) Clone() DirEntry {
	if e.Children != nil {
		children := make([]string, len(e.Children))
		copy(children, e.Children)
		e.Children = children
	}
	return e
}

// Equal reports structural equality between two entries.
func (e DirEntry) Equal(o DirEntry) bool {
	if e.Path != o.Path || e.Name != o.Name || !e.Modified.Equal(o.Modified) ||
		e.ContentHash != o.ContentHash || e.SymlinkTarget != o.SymlinkTarget ||
		e.IsHidden != o.IsHidden || e.IsDir != o.IsDir {
		return false
	}
	if len(e.Children) != len(o.Children) {
		return false
	}
	for i := range e.Children {
		if e.Children[i] != o.Children[i] {
			return false
		}
	}
	return true
}
