// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package filemanager owns the active segment file, rotates segments when
// they fill, and runs garbage collection to bound the on-disk footprint.
package filemanager

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/waleng/internal/metapkg"
	"github.com/dreamsxin/waleng/internal/metrics"
)

const (
	// pageSize is the floor on size_per_file.
	pageSize = 4096
	// numFilesSplit divides the configured total size into a default
	// per-file size.
	numFilesSplit = 4
	// maxFileSize is the ceiling on size_per_file.
	maxFileSize = 10 * 1024 * 1024 * 1024 // 10 GiB

	// Unbounded is the sentinel total-size value meaning "no cap": max_files
	// is effectively unbounded and GC never runs.
	Unbounded = math.MaxUint64
)

func segmentName(n uint64) string {
	return fmt.Sprintf("log_%d.bin", n)
}

// deriveLimits computes the per-segment size and the live segment window
// from a configured total size in bytes. The total is split across a fixed
// number of segments, clamped to [pageSize, maxFileSize]; the window then
// gets one segment of slack (two when the total doesn't divide evenly).
func deriveLimits(total uint64) (sizePerFile, maxFiles uint64) {
	if total == Unbounded {
		return maxFileSize, Unbounded
	}

	div := total / numFilesSplit
	if div > maxFileSize {
		div = maxFileSize
	}
	sizePerFile = div
	if sizePerFile < pageSize {
		sizePerFile = pageSize
	}

	maxFiles = total / sizePerFile
	if total%sizePerFile == 0 {
		maxFiles++
	} else {
		maxFiles += 2
	}
	return sizePerFile, maxFiles
}

// Manager owns the active segment file and rotates/GCs segments to bound
// disk usage. Its methods are not safe for concurrent use without an
// external lock; internal/writer.Writer serializes all calls through its
// own I/O mutex.
type Manager struct {
	dir    string
	logger log.Logger
	fsync  bool
	mtx    *metrics.Metrics

	sizePerFile uint64
	maxFiles    uint64

	meta *metapkg.Store

	file      *os.File
	filled    uint64
	gc        uint64
	current   uint64
	createdAt time.Time

	// live is a lock-free snapshot of the segment indices this Manager has
	// opened and not yet garbage-collected, refreshed on every create/delete.
	// Segments left on disk by an earlier run are not in it. It is for
	// diagnostics/metrics only; the replay iterator works off the persisted
	// meta file, not this snapshot.
	live atomic.Value // *immutable.SortedMap[uint64, struct{}]
}

// Open derives the segment limits from totalSize, consults the meta file
// (treating a missing/corrupt one as a fresh directory), opens the active
// segment in append-create mode, and normalizes the meta file.
//
// An unusable location is a configuration error and is returned. A failure
// to open the initial segment file inside a usable directory is fatal and
// panics: an engine that cannot create its first segment has nothing to
// offer.
func Open(dir string, totalSize uint64, fsync bool, logger log.Logger, mtx *metrics.Metrics) (*Manager, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if mtx == nil {
		mtx = metrics.New(nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating WAL directory %q: %w", dir, err)
	}

	sizePerFile, maxFiles := deriveLimits(totalSize)
	m := &Manager{
		dir:         dir,
		logger:      logger,
		fsync:       fsync,
		mtx:         mtx,
		sizePerFile: sizePerFile,
		maxFiles:    maxFiles,
		meta:        metapkg.New(dir, logger),
	}
	m.live.Store(&immutable.SortedMap[uint64, struct{}]{})

	if p, ok := m.meta.Read(); ok {
		m.gc, m.current = p.GC, p.Current
	}
	// Normalize: rewrite meta even if it was already valid, so a missing or
	// corrupt file is replaced before the first rotation.
	m.meta.Write(metapkg.Pointers{GC: m.gc, Current: m.current})

	f, filled, err := openSegment(dir, m.current)
	if err != nil {
		panic(fmt.Sprintf("waleng: failed to open initial WAL segment: %v", err))
	}
	m.file = f
	m.filled = filled
	m.createdAt = time.Now()
	m.addLive(m.current)
	m.mtx.SetLiveSegments(m.liveCount())

	return m, nil
}

func (m *Manager) liveCount() int {
	return m.LiveSegments().Len()
}

func openSegment(dir string, n uint64) (*os.File, uint64, error) {
	path := filepath.Join(dir, segmentName(n))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, uint64(info.Size()), nil
}

func (m *Manager) addLive(n uint64) {
	cur := m.live.Load().(*immutable.SortedMap[uint64, struct{}])
	next := cur.Set(n, struct{}{})
	m.live.Store(next)
}

func (m *Manager) removeLive(n uint64) {
	cur := m.live.Load().(*immutable.SortedMap[uint64, struct{}])
	next := cur.Delete(n)
	m.live.Store(next)
}

// LiveSegments returns a point-in-time, lock-free snapshot of the segment
// indices this Manager has opened and not yet garbage-collected. Segments
// from an earlier run that are still on disk are not included.
func (m *Manager) LiveSegments() *immutable.SortedMap[uint64, struct{}] {
	return m.live.Load().(*immutable.SortedMap[uint64, struct{}])
}

// SizePerFile returns the derived per-segment size limit.
func (m *Manager) SizePerFile() uint64 { return m.sizePerFile }

// MaxFiles returns the derived maximum live segment count.
func (m *Manager) MaxFiles() uint64 { return m.maxFiles }

// Pointers returns the current (gc_pointer, current_pointer) pair.
func (m *Manager) Pointers() metapkg.Pointers {
	return metapkg.Pointers{GC: m.gc, Current: m.current}
}

// Commit appends data to the active segment, rotating (and running GC) if
// the segment has now reached its size limit. A write failure is logged and
// swallowed: a WAL that panics on transient I/O would compound the failure,
// so the record may be lost but the engine continues.
func (m *Manager) Commit(data []byte) {
	n, err := m.file.Write(data)
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to write WAL segment", "segment", m.current, "err", err)
	}
	m.filled += uint64(n)
	m.mtx.RecordCommit(n)

	if m.fsync {
		if err := m.file.Sync(); err != nil {
			level.Error(m.logger).Log("msg", "failed to fsync WAL segment", "segment", m.current, "err", err)
		}
	}

	if m.filled >= m.sizePerFile {
		m.rotate()
	}
}

// rotate advances current_pointer, runs GC, rewrites the meta file, and
// opens the new current segment fresh, removing any stale file left over
// from a prior wraparound generation.
func (m *Manager) rotate() {
	sealedAt := m.createdAt
	m.current++ // wraps at the width of uint64, giving an effectively unbounded log age
	m.gcSegments()
	m.meta.Write(metapkg.Pointers{GC: m.gc, Current: m.current})

	path := filepath.Join(m.dir, segmentName(m.current))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		level.Warn(m.logger).Log("msg", "failed to remove stale segment before reuse", "segment", m.current, "err", err)
	}

	f, _, err := openSegment(m.dir, m.current)
	if err != nil {
		// Unrecoverable during rotation: report and keep appending to the
		// old (already-oversized) handle rather than losing writes.
		level.Error(m.logger).Log("msg", "failed to open new WAL segment, continuing with stale handle", "segment", m.current, "err", err)
		return
	}

	old := m.file
	m.file = f
	m.filled = 0
	m.createdAt = time.Now()
	m.addLive(m.current)
	m.mtx.SetLiveSegments(m.liveCount())
	m.mtx.RecordRotation(sealedAt)
	_ = old.Close()
}

// gcSegments deletes segments that have fallen behind the live window.
//
// The loop is boundary-inclusive: when the window is exceeded by N, it
// removes N+1 segments, not N. Existing deployments and the tests pin this
// exact count, so it must not be "fixed" to the tighter bound without
// migrating both.
func (m *Manager) gcSegments() {
	diff := ringDiff(m.gc, m.current)
	if m.maxFiles == Unbounded || diff <= m.maxFiles {
		return
	}

	delCount := diff - m.maxFiles
	ptr := m.gc
	var deleted uint64
	for counter := uint64(0); counter <= delCount; counter++ {
		path := filepath.Join(m.dir, segmentName(ptr))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			level.Warn(m.logger).Log("msg", "failed to remove garbage-collected segment", "segment", ptr, "err", err)
		}
		m.removeLive(ptr)
		deleted++
		ptr++ // wraps
	}
	m.gc += deleted
	m.mtx.RecordGC(deleted)
}

// ringDiff computes the modular distance from gc to current around the
// uint64 ring.
func ringDiff(gc, current uint64) uint64 {
	switch {
	case current > gc:
		return current - gc
	case gc > current:
		return math.MaxUint64 - (gc - current) + 1
	default:
		return 0
	}
}

// Close closes the active segment file.
func (m *Manager) Close() error {
	return m.file.Close()
}
