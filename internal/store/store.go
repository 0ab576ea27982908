// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package store implements the split index/data persistence layer: a small
// index file listing byte offsets, and a data file of length-prefixed,
// msgpack-encoded directory entries, memory-mapped for O(1) single-entry
// lookup without loading the whole data file into memory.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/strongdm/ptree/internal/entry"
)

// ErrNotFound is returned by Reader.Get when the requested key has no entry.
var ErrNotFound = errors.New("store: entry not found")

// Kind distinguishes the store's three failure modes: I/O, a corrupt index,
// and a serialization failure.
type Kind int

const (
	KindIO Kind = iota
	KindCorruptIndex
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindCorruptIndex:
		return "corrupt-index"
	case KindSerialization:
		return "serialization"
	default:
		return "io"
	}
}

// StoreError wraps a failure with the kind of store operation that produced
// it, so callers can branch on failure category without string matching.
type StoreError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *StoreError of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Index is the persisted companion to the data file: a map from path to
// byte offset, plus a snapshot of cache-level metadata.
type Index struct {
	Offsets         map[string]uint64 `msgpack:"1"`
	Root            string            `msgpack:"2"`
	LastScannedRoot string            `msgpack:"3"`
	LastScan        time.Time         `msgpack:"4"`
	SkipStats       map[string]int    `msgpack:"5"`
}

func newEmptyIndex() Index {
	return Index{Offsets: make(map[string]uint64)}
}

// Store identifies the on-disk location of a persisted cache by its base
// path: the index lives at base+".idx", the data at base+".dat", and the
// transient atomic-write scratch file at base+".tmp".
type Store struct {
	base   string
	logger *slog.Logger
}

// New returns a Store rooted at base, logging diagnostic events through the
// default logger.
func New(base string) *Store {
	return NewWithLogger(base, slog.Default())
}

// NewWithLogger returns a Store rooted at base, logging the corrupt-index
// fallback through logger. I/O failures are returned as errors, not logged.
func NewWithLogger(base string, logger *slog.Logger) *Store {
	return &Store{base: base, logger: logger}
}

func (s *Store) indexPath() string { return s.base + ".idx" }
func (s *Store) dataPath() string  { return s.base + ".dat" }

// Reader provides read access to a persisted snapshot: the full index plus a
// memory-mapped view of the data file for O(1) entry materialization. The
// memory map is owned by the Reader and must outlive any Get/GetAll call;
// Get fully deserializes into an owned entry.DirEntry, so callers never hold
// references into the mmap itself and may Close the Reader immediately after
// the calls they need are done.
type Reader struct {
	index Index
	file  *os.File
	data  mmap.MMap
}

// OpenReader opens the index and memory-maps the data file. Missing files
// produce an empty, non-error Reader (forcing a rescan upstream). A corrupt
// index is discarded and treated as empty for the same reason.
func (s *Store) OpenReader() (*Reader, error) {
	r := &Reader{index: newEmptyIndex()}

	idxBytes, err := os.ReadFile(s.indexPath())
	if err == nil {
		var idx Index
		if decErr := msgpack.Unmarshal(idxBytes, &idx); decErr == nil {
			if idx.Offsets == nil {
				idx.Offsets = make(map[string]uint64)
			}
			r.index = idx
		} else {
			// Corrupt index: silently keep the empty index as far as the
			// scan result goes, but log it so an operator watching
			// diagnostics can see a rescan was forced.
			s.logger.Debug("discarding corrupt index, forcing rescan", "path", s.indexPath(), "err", decErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &StoreError{Kind: KindIO, Path: s.indexPath(), Err: err}
	}

	f, err := os.Open(s.dataPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
	}
	if info.Size() == 0 {
		// mmap-go rejects zero-length mappings; an empty data file behaves
		// like "no entries available yet".
		f.Close()
		return r, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
	}

	r.file = f
	r.data = data
	return r, nil
}

// Index returns the deserialized index metadata.
func (r *Reader) Index() Index { return r.index }

// Get performs an O(1) lookup: offset from the index, length-prefixed
// payload read directly out of the mmap, then decoded into an owned
// entry.DirEntry. A corrupt record (length exceeding the remaining mapped
// slice) is treated as "not found" for that key rather than an error.
func (r *Reader) Get(path string) (entry.DirEntry, bool, error) {
	offset, ok := r.index.Offsets[path]
	if !ok {
		return entry.DirEntry{}, false, nil
	}
	if r.data == nil {
		return entry.DirEntry{}, false, nil
	}

	slice := []byte(r.data)
	if uint64(len(slice)) < offset+4 {
		return entry.DirEntry{}, false, nil
	}

	length := binary.LittleEndian.Uint32(slice[offset : offset+4])
	start := offset + 4
	end := start + uint64(length)
	if end > uint64(len(slice)) {
		return entry.DirEntry{}, false, nil
	}

	var e entry.DirEntry
	if err := msgpack.Unmarshal(slice[start:end], &e); err != nil {
		return entry.DirEntry{}, false, &StoreError{Kind: KindSerialization, Path: path, Err: err}
	}
	return e, true, nil
}

// GetAll iterates every key known to the index and materializes its entry.
func (r *Reader) GetAll() (map[string]entry.DirEntry, error) {
	out := make(map[string]entry.DirEntry, len(r.index.Offsets))
	for path := range r.index.Offsets {
		e, ok, err := r.Get(path)
		if err != nil {
			return nil, err
		}
		if ok {
			out[path] = e
		}
	}
	return out, nil
}

// Close releases the memory map and underlying file handle.
func (r *Reader) Close() error {
	if r.data != nil {
		if err := r.data.Unmap(); err != nil {
			return err
		}
		r.data = nil
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Write serializes the full entry set plus index metadata to disk: the data
// file is truncated and rewritten in place (record offsets recorded along the
// way), then the index is serialized to a temp file that is renamed
// atomically over the index path — the commit point for the whole snapshot.
// A crash between the data write and the index rename leaves the previous
// index paired with the new data file; the previous data is not preserved.
func (s *Store) Write(entries map[string]entry.DirEntry, meta Index) error {
	if dir := filepath.Dir(s.base); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StoreError{Kind: KindIO, Path: dir, Err: err}
		}
	}

	dataFile, err := os.Create(s.dataPath())
	if err != nil {
		return &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
	}
	defer dataFile.Close()

	offsets := make(map[string]uint64, len(entries))
	var offset uint64

	for path, e := range entries {
		payload, err := msgpack.Marshal(&e)
		if err != nil {
			return &StoreError{Kind: KindSerialization, Path: path, Err: err}
		}

		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

		offsets[path] = offset
		if _, err := dataFile.Write(lenBuf[:]); err != nil {
			return &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
		}
		if _, err := dataFile.Write(payload); err != nil {
			return &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
		}
		offset += 4 + uint64(len(payload))
	}

	if err := dataFile.Sync(); err != nil {
		return &StoreError{Kind: KindIO, Path: s.dataPath(), Err: err}
	}

	meta.Offsets = offsets
	indexBytes, err := msgpack.Marshal(&meta)
	if err != nil {
		return &StoreError{Kind: KindSerialization, Path: s.indexPath(), Err: err}
	}

	tmpPath := s.base + ".tmp"
	if err := writeFileSync(tmpPath, indexBytes); err != nil {
		return &StoreError{Kind: KindIO, Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, s.indexPath()); err != nil {
		_ = os.Remove(tmpPath)
		return &StoreError{Kind: KindIO, Path: s.indexPath(), Err: err}
	}

	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}

var _ io.Closer = (*Reader)(nil)
