// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package buffer implements the in-memory staging area for a WAL's
// length-prefixed records, bounded by a configured size.
package buffer

import "encoding/binary"

// lengthPrefixSize is the width of the length prefix written before every
// record: a 2-byte unsigned integer, little-endian.
const lengthPrefixSize = 2

// Buffer stages length-prefixed records up to a soft limit before the
// caller swaps it out and commits its contents to disk. It performs no I/O
// and every method is infallible.
type Buffer struct {
	data []byte
	max  int
}

// New returns an empty Buffer that targets max bytes before it reports
// itself ready to flush. max of 0 means unbounded: TryAdd never rejects and
// never reports ready, and Consume never pads.
func New(max int) *Buffer {
	return &Buffer{max: max}
}

// Len reports the number of bytes currently staged, including length
// prefixes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// TryAdd stages data, prefixed by its 2-byte length. It returns whether the
// data was accepted and whether the buffer is now ready to be flushed.
//
// An empty data is a no-op: (true, false). A buffer already at or beyond
// its configured max rejects the write: (false, true), and the caller must
// rotate in a fresh Buffer before retrying. A payload larger than max is
// still accepted (into whatever buffer TryAdd is called on) and
// immediately marks that buffer ready, allowing the buffer to grow beyond
// max for exactly one oversized record.
//
// The 2-byte prefix caps a single record at 65535 bytes; longer payloads
// are not representable in the segment format.
func (b *Buffer) TryAdd(data []byte) (accepted, readyToFlush bool) {
	if len(data) == 0 {
		return true, false
	}
	if b.max > 0 && len(b.data) >= b.max {
		return false, true
	}

	// The prefix is pinned to little-endian so segments written on one
	// architecture replay on any other.
	var prefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(data)))
	b.data = append(b.data, prefix[:]...)
	b.data = append(b.data, data...)

	return true, b.max > 0 && len(b.data) >= b.max
}

// Consume moves the staged bytes out of the Buffer. If pad is true and the
// staged length is less than max, it appends zero bytes until the result is
// exactly max bytes long; this zero padding is how the replay iterator
// recognizes the end of a flushed block.
func (b *Buffer) Consume(pad bool) []byte {
	out := b.data
	b.data = nil
	if pad && b.max > 0 && len(out) < b.max {
		out = append(out, make([]byte, b.max-len(out))...)
	}
	return out
}
