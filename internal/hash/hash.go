// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package hash computes the Merkle-style content hash used for
// change-detection between scans.
//
// The digest is a general-purpose, non-cryptographic 64-bit hash (xxhash).
// It absorbs a directory's path, its observed modification time, its
// (sorted) child names, and the (sorted-by-name) hashes of any
// already-hashed child directories, so a change anywhere in a subtree
// propagates to every ancestor's hash.
package hash

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Compute returns the 64-bit content hash for the directory at path.
//
// childHashes maps absolute child directory paths to their already-computed
// content hashes; only entries whose parent is exactly path are absorbed.
// Compute is a pure function: identical arguments always yield an identical
// digest.
func Compute(path string, modified int64, children []string, childHashes map[string]uint64) uint64 {
	h := xxhash.New()

	var buf [8]byte

	// 1. Absorb the lowercased path.
	_, _ = h.Write([]byte(strings.ToLower(path)))

	// 2. Absorb the modification time as signed seconds since the epoch.
	binary.LittleEndian.PutUint64(buf[:], uint64(modified))
	_, _ = h.Write(buf[:])

	// 3. Absorb the child count.
	binary.LittleEndian.PutUint64(buf[:], uint64(len(children)))
	_, _ = h.Write(buf[:])

	// 4. Absorb sorted child names.
	sortedNames := append([]string(nil), children...)
	sort.Strings(sortedNames)
	for _, name := range sortedNames {
		_, _ = h.Write([]byte(name))
	}

	// 5. Absorb sorted (basename, hash) pairs for direct children present in
	// childHashes, enabling Merkle-style propagation.
	type childHash struct {
		name string
		hash uint64
	}
	var pairs []childHash
	for childPath, childHash64 := range childHashes {
		if filepath.Dir(childPath) != path {
			continue
		}
		pairs = append(pairs, childHash{name: filepath.Base(childPath), hash: childHash64})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })
	for _, p := range pairs {
		binary.LittleEndian.PutUint64(buf[:], p.hash)
		_, _ = h.Write(buf[:])
	}

	return h.Sum64()
}

// Changed reports whether two entries' content hashes differ, the
// change-detection predicate used by refresh passes.
func Changed(oldHash, newHash uint64) bool {
	return oldHash != newHash
}
