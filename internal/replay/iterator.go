// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package replay implements the sequential replay iterator that streams
// records out of on-disk segments in write order.
package replay

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/waleng/internal/metapkg"
	"github.com/dreamsxin/waleng/internal/metrics"
)

// lengthPrefixSize mirrors internal/buffer's record framing.
const lengthPrefixSize = 2

// Decoder turns a raw payload into an application record. A false second
// return means the bytes didn't decode; the iterator skips the record and
// continues rather than aborting.
type Decoder func(payload []byte) (record any, ok bool)

// Iterator streams decoded records out of the live segment window, in
// write order, exactly once. It is not safe for concurrent use.
type Iterator struct {
	dir     string
	meta    *metapkg.Store
	decode  Decoder
	chunk   int
	logger  log.Logger
	mtx     *metrics.Metrics
	onClose func()

	started bool
	ended   bool

	files   []uint64
	file    *os.File
	scratch []byte
}

// New returns an Iterator over dir's segments, reading them chunk bytes at
// a time. onClose is invoked exactly once, on exhaustion or on Close,
// whichever comes first — callers use it to release the engine's read
// mode back to idle.
func New(dir string, chunk int, decode Decoder, logger log.Logger, mtx *metrics.Metrics, onClose func()) *Iterator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if mtx == nil {
		mtx = metrics.New(nil)
	}
	if chunk <= 0 {
		chunk = 4096
	}
	return &Iterator{
		dir:     dir,
		meta:    metapkg.New(dir, logger),
		decode:  decode,
		chunk:   chunk,
		logger:  logger,
		mtx:     mtx,
		onClose: onClose,
	}
}

// init builds the segment queue in wraparound order and opens the first
// segment. It runs lazily, on the first call to Next.
func (it *Iterator) init() {
	it.started = true

	p, ok := it.meta.Read()
	if !ok {
		it.ended = true
		return
	}

	switch {
	case p.Current > p.GC:
		for n := p.GC; n <= p.Current; n++ {
			it.files = append(it.files, n)
		}
	case p.GC > p.Current:
		for n := p.GC; ; n++ {
			it.files = append(it.files, n)
			if n == ^uint64(0) {
				break
			}
		}
		for n := uint64(0); n <= p.Current; n++ {
			it.files = append(it.files, n)
		}
	default:
		it.files = append(it.files, p.Current)
	}

	if !it.openNextFile() {
		it.ended = true
	}
}

func (it *Iterator) openNextFile() bool {
	for len(it.files) > 0 {
		n := it.files[0]
		it.files = it.files[1:]

		path := filepath.Join(it.dir, fmt.Sprintf("log_%d.bin", n))
		f, err := os.Open(path)
		if err != nil {
			level.Debug(it.logger).Log("msg", "skipping unopenable segment during replay", "segment", n, "err", err)
			continue
		}
		if it.file != nil {
			it.file.Close()
		}
		it.file = f
		return true
	}
	return false
}

// Next returns the next decoded record, or (nil, false) once the iterator
// is exhausted. On exhaustion it releases the engine back to idle.
func (it *Iterator) Next() (any, bool) {
	if !it.started {
		it.init()
	}
	if it.ended {
		it.release()
		return nil, false
	}

	rec, ok := it.readNext()
	if !ok {
		it.release()
	}
	return rec, ok
}

func (it *Iterator) readNext() (any, bool) {
	for {
		if !it.ensureBuffered() {
			return nil, false
		}

		length := int(binary.LittleEndian.Uint16(it.scratch[:lengthPrefixSize]))
		if length == 0 || length > len(it.scratch)-lengthPrefixSize {
			// Corrupt/truncated tail: treat as end-of-data.
			return nil, false
		}

		payload := make([]byte, length)
		copy(payload, it.scratch[lengthPrefixSize:lengthPrefixSize+length])
		it.scratch = it.scratch[lengthPrefixSize+length:]

		rec, ok := it.decode(payload)
		if !ok {
			// Deserialization failure: skip this record, keep going.
			continue
		}
		it.mtx.RecordRead(len(payload))
		return rec, true
	}
}

// ensureBuffered loops until the scratch buffer holds one complete record
// at position 0, reading chunk-sized slabs from the current file and
// advancing to the next segment at EOF. A leading zero byte is the padding
// sentinel that closes out a flushed block: the rest of the scratch is
// discarded and reading continues with the next block of the same file.
// Returns false once every segment is exhausted.
func (it *Iterator) ensureBuffered() bool {
	for {
		if len(it.scratch) > 0 && it.scratch[0] == 0 {
			it.scratch = it.scratch[:0]
		}
		if len(it.scratch) > lengthPrefixSize {
			length := int(binary.LittleEndian.Uint16(it.scratch[:lengthPrefixSize]))
			if length != 0 && len(it.scratch) >= lengthPrefixSize+length {
				return true
			}
		}

		chunk := make([]byte, it.chunk)
		read, err := it.file.Read(chunk)
		if read == 0 || err != nil {
			// Bytes left in the scratch here are a truncated tail, dropped
			// once the last segment is exhausted.
			if !it.openNextFile() {
				return false
			}
			continue
		}
		it.scratch = append(it.scratch, chunk[:read]...)
	}
}

// Close releases the engine's read mode back to idle. It is safe to call
// more than once. Callers that don't drain the iterator to exhaustion must
// call Close explicitly — Go has no destructors to do this for them.
func (it *Iterator) Close() {
	it.release()
	if it.file != nil {
		it.file.Close()
		it.file = nil
	}
}

func (it *Iterator) release() {
	if it.onClose == nil {
		return
	}
	fn := it.onClose
	it.onClose = nil
	fn()
}
