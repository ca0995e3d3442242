// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package metapkg persists the segment-index pointer pair (gc_pointer,
// current_pointer) that identifies the oldest and newest live segments.
package metapkg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// FileName is the name of the meta file inside a WAL directory.
const FileName = "meta"

// Pointers is the pair of segment indices persisted in the meta file:
// GC is the oldest live segment, Current is the one being appended to.
type Pointers struct {
	GC      uint64
	Current uint64
}

// Store reads and writes the meta file for one WAL directory.
type Store struct {
	path   string
	logger log.Logger
}

// New returns a Store for the meta file under dir.
func New(dir string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{path: filepath.Join(dir, FileName), logger: logger}
}

// Read parses the meta file. It returns false whenever the file is
// missing, unreadable, or doesn't contain exactly two whitespace-separated
// decimal integers — the engine treats all of these as a fresh directory.
func (s *Store) Read() (Pointers, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Pointers{}, false
	}

	// The third target catches trailing content: only a file holding exactly
	// two integers scans exactly two values.
	var gc, current uint64
	var extra string
	if n, _ := fmt.Sscan(string(data), &gc, &current, &extra); n != 2 {
		return Pointers{}, false
	}
	return Pointers{GC: gc, Current: current}, true
}

// Write rewrites the meta file as "<gc> <current>". Failures are logged to
// the diagnostic sink and swallowed: the meta file is a best-effort
// convenience, rebuilt on every rotation, and a missed write is recovered
// on the next one.
func (s *Store) Write(p Pointers) {
	content := fmt.Sprintf("%d %d", p.GC, p.Current)
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		level.Error(s.logger).Log("msg", "failed to write meta file", "path", s.path, "err", err)
	}
}
