// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package typed wraps waleng.Engine with a generic, typed API, serializing
// application records with encoding/gob before handing bytes to the engine.
// It is an external collaborator, not part of the engine's core: every byte
// it produces is delegated straight to Engine.Write.
package typed

import (
	"bytes"
	"encoding/gob"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/waleng"
)

// WAL is a typed write-ahead log over waleng.Engine. T must be a type
// encoding/gob can encode and decode — typically a struct of exported
// fields.
type WAL[T any] struct {
	engine *waleng.Engine
	logger log.Logger
}

// Open constructs or recovers a typed WAL at the location cfg describes.
func Open[T any](cfg waleng.Config, opts ...waleng.Option) (*WAL[T], error) {
	logger := cfg.Logger
	e, err := waleng.Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &WAL[T]{engine: e, logger: logger}, nil
}

// Write gob-encodes item and hands the bytes to the underlying Engine.
// Encoding failures are logged and swallowed, the same as the engine's own
// I/O-error policy: a record that cannot be serialized is one the caller's
// type doesn't support, not a transient condition worth a panic.
func (w *WAL[T]) Write(item T) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item); err != nil {
		level.Error(w.logger).Log("msg", "failed to encode typed record, dropping", "err", err)
		return
	}
	w.engine.Write(buf.Bytes())
}

// Flush drains the in-memory buffer to disk.
func (w *WAL[T]) Flush() {
	w.engine.Flush()
}

// Read returns every record currently readable from disk, decoded as T, in
// write order. It fails with waleng.ErrReadLocked if the engine is
// currently writing.
func (w *WAL[T]) Read() ([]T, error) {
	it, err := w.engine.Read(decodeGob[T])
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []T
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, rec.(T))
	}
	return out, nil
}

func decodeGob[T any](payload []byte) (any, bool) {
	var item T
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&item); err != nil {
		return nil, false
	}
	return item, true
}

// Purge deletes the entire backing directory.
func (w *WAL[T]) Purge() error {
	return w.engine.Purge()
}

// Close releases the active segment file handle.
func (w *WAL[T]) Close() error {
	return w.engine.Close()
}
