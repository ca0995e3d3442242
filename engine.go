// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package waleng

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/waleng/internal/filemanager"
	"github.com/dreamsxin/waleng/internal/metrics"
	"github.com/dreamsxin/waleng/internal/replay"
	"github.com/dreamsxin/waleng/internal/writer"
)

// mode values for the engine's atomic arbiter.
const (
	modeIdle uint32 = iota
	modeRead
	modeWrite
)

// Engine is the top-level facade: mode arbitration, lifecycle, and the
// wiring between the buffer, file manager, writer and replay iterator. An
// Engine is safe for concurrent use by multiple goroutines; Write callers
// may run concurrently with each other, but never concurrently with a live
// Read session.
//
// The first Write moves the Engine into write mode for the rest of its
// life: recovery is expected to happen first (drain a Read iterator, which
// returns the Engine to idle), after which the Engine writes until it is
// closed. To replay records written by this Engine, close it and open a
// fresh one over the same directory.
type Engine struct {
	cfg Config

	logger  log.Logger
	metrics *metrics.Metrics
	fm      *filemanager.Manager
	w       *writer.Writer

	mode uint32 // atomic: modeIdle | modeRead | modeWrite
}

// Open constructs or recovers an Engine at cfg.Location, applying opts over
// cfg first. It fails only on a missing or uncreatable location; a missing
// or corrupt meta file, or an empty directory, is treated as a fresh
// engine.
func Open(cfg Config, opts ...Option) (*Engine, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Location == "" {
		return nil, ErrLocationRequired
	}
	cfg.applyDefaults()

	mtx := metrics.New(cfg.Registry)
	fm, err := filemanager.Open(cfg.Location, cfg.TotalSizeBytes, cfg.Fsync, cfg.Logger, mtx)
	if err != nil {
		return nil, fmt.Errorf("waleng: %w", err)
	}
	w := writer.New(fm, cfg.BufferSizeBytes, mtx)

	e := &Engine{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: mtx,
		fm:      fm,
		w:       w,
	}
	return e, nil
}

// Write enqueues one record of at most 65535 bytes. It may be called
// concurrently from multiple goroutines: records land in the replay stream
// in the order their writers acquired the buffer lock, and each
// goroutine's own records keep their program order.
//
// Calling Write while a Read session is live is a programming error: it
// panics rather than corrupting the log.
func (e *Engine) Write(payload []byte) {
	if !e.acquireWrite() {
		panic(errWriteWhileReading{})
	}
	e.w.Log(payload)
}

// acquireWrite implements the mode-arbitration CAS: if the mode is already
// WRITE, proceed (concurrent writers share the WRITE mode); otherwise try
// IDLE -> WRITE. Losing the CAS to another writer is not a failure, so the
// loop re-examines the mode; only an observed READ is the fatal-misuse
// case, and the caller panics.
func (e *Engine) acquireWrite() bool {
	for {
		switch atomic.LoadUint32(&e.mode) {
		case modeWrite:
			return true
		case modeRead:
			return false
		default:
			if atomic.CompareAndSwapUint32(&e.mode, modeIdle, modeWrite) {
				return true
			}
		}
	}
}

// Flush drains whatever is currently staged in the buffer to the active
// segment, without padding.
func (e *Engine) Flush() {
	e.w.Flush()
}

// Read opens a sequential replay iterator over every live segment, in
// write order. It fails with ErrReadLocked if the engine is currently
// writing. The returned iterator must be drained to exhaustion or have
// Close called on it — either releases the engine back to idle.
func (e *Engine) Read(decode replay.Decoder) (*replay.Iterator, error) {
	if !atomic.CompareAndSwapUint32(&e.mode, modeIdle, modeRead) {
		e.metrics.RecordReadLockRejection()
		return nil, ErrReadLocked
	}
	var released uint32
	release := func() {
		if atomic.CompareAndSwapUint32(&released, 0, 1) {
			atomic.StoreUint32(&e.mode, modeIdle)
		}
	}
	return replay.New(e.cfg.Location, e.bufferSize(), decode, e.logger, e.metrics, release), nil
}

// bufferSize is the iterator's read-chunk size. A disabled write buffer
// (BufferSizeBytes == 0) would otherwise hand the iterator a zero-sized
// read chunk, so replay falls back to DefaultBufferSize regardless of the
// write-side buffering setting.
func (e *Engine) bufferSize() int {
	if e.cfg.BufferSizeBytes <= 0 {
		return DefaultBufferSize
	}
	return e.cfg.BufferSizeBytes
}

// Close releases the active segment file handle without removing any data.
func (e *Engine) Close() error {
	return e.fm.Close()
}

// Purge closes the engine and removes its entire backing directory.
func (e *Engine) Purge() error {
	if err := e.fm.Close(); err != nil {
		level.Warn(e.logger).Log("msg", "failed to close active segment before purge", "err", err)
	}
	return os.RemoveAll(e.cfg.Location)
}
