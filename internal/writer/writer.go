// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package writer coordinates the in-memory buffer and the file manager
// behind two independent locks, never held nested.
package writer

import (
	"sync"

	"github.com/dreamsxin/waleng/internal/buffer"
	"github.com/dreamsxin/waleng/internal/filemanager"
	"github.com/dreamsxin/waleng/internal/metrics"
)

// Writer is the single-writer-facing façade over Buffer + File Manager.
//
// The buffer lock is always released before the I/O lock is acquired; the
// two are never held simultaneously. This keeps disk latency from blocking
// concurrent buffer appenders, at the cost of no stronger ordering
// guarantee than "linearized by whichever thread holds the buffer lock".
type Writer struct {
	bufferSize int
	mtx        *metrics.Metrics

	bufMu sync.Mutex
	buf   *buffer.Buffer

	ioMu sync.Mutex
	fm   *filemanager.Manager
}

// New builds a Writer over fm, staging writes in a Buffer of bufferSize
// bytes. bufferSize of 0 disables the buffer: Log commits directly.
func New(fm *filemanager.Manager, bufferSize int, mtx *metrics.Metrics) *Writer {
	if mtx == nil {
		mtx = metrics.New(nil)
	}
	return &Writer{
		bufferSize: bufferSize,
		mtx:        mtx,
		buf:        buffer.New(bufferSize),
		fm:         fm,
	}
}

// Log stages msg in the buffer (or commits it directly if buffering is
// disabled), flushing to the file manager whenever the buffer fills.
func (w *Writer) Log(msg []byte) {
	if len(msg) == 0 {
		return
	}
	if w.bufferSize == 0 {
		// Direct commits still go through a one-shot Buffer so the record
		// carries the same length prefix replay expects; an unlimited max
		// means no padding is ever added.
		b := buffer.New(0)
		b.TryAdd(msg)
		data := b.Consume(false)

		w.ioMu.Lock()
		defer w.ioMu.Unlock()
		w.fm.Commit(data)
		w.mtx.RecordBuffer()
		return
	}

	w.bufMu.Lock()
	accepted, ready := w.buf.TryAdd(msg)
	if accepted && !ready {
		w.bufMu.Unlock()
		w.mtx.RecordBuffer()
		return
	}

	var full *buffer.Buffer
	if !accepted {
		// The buffer was already full and rejected msg: swap in a fresh one
		// and stage msg there unconditionally before committing the old one.
		full = w.buf
		w.buf = buffer.New(w.bufferSize)
		w.buf.TryAdd(msg)
	} else {
		full = w.buf
		w.buf = buffer.New(w.bufferSize)
	}
	w.bufMu.Unlock()
	w.mtx.RecordBuffer()

	data := full.Consume(true)
	w.mtx.RecordFlush()

	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	w.fm.Commit(data)
}

// Flush drains whatever is currently staged in the buffer to the active
// segment, without padding. It is a no-op if the buffer is empty.
func (w *Writer) Flush() {
	w.bufMu.Lock()
	full := w.buf
	w.buf = buffer.New(w.bufferSize)
	w.bufMu.Unlock()

	data := full.Consume(false)
	if len(data) == 0 {
		return
	}
	w.mtx.RecordFlush()

	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	w.fm.Commit(data)
}
