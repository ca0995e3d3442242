// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package replay

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/waleng/internal/metapkg"
)

func stringDecoder(payload []byte) (any, bool) {
	return string(payload), true
}

func writeSegment(t *testing.T, dir string, n uint64, records ...string) {
	t.Helper()
	var data []byte
	for _, r := range records {
		var prefix [2]byte
		binary.LittleEndian.PutUint16(prefix[:], uint16(len(r)))
		data = append(data, prefix[:]...)
		data = append(data, r...)
	}
	path := filepath.Join(dir, segmentNameFor(n))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func segmentNameFor(n uint64) string {
	return "log_" + itoa(n) + ".bin"
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestIteratorEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	it := New(dir, 16, stringDecoder, nil, nil, nil)
	_, ok := it.Next()
	require.False(t, ok)
}

func TestIteratorSingleSegment(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 0, "alpha", "beta", "gamma")
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	closed := false
	it := New(dir, 4, stringDecoder, nil, nil, func() { closed = true })

	var got []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, rec.(string))
	}
	require.Equal(t, []string{"alpha", "beta", "gamma"}, got)
	require.True(t, closed)
}

func TestIteratorMultiSegment(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 0, "one", "two")
	writeSegment(t, dir, 1, "three")
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 1})

	it := New(dir, 8, stringDecoder, nil, nil, nil)
	var got []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, rec.(string))
	}
	require.Equal(t, []string{"one", "two", "three"}, got)
}

func TestIteratorWraparoundSegmentOrder(t *testing.T) {
	dir := t.TempDir()
	const maxU64 = ^uint64(0)
	writeSegment(t, dir, maxU64-1, "last")
	writeSegment(t, dir, maxU64, "wrap")
	writeSegment(t, dir, 0, "first")
	writeSegment(t, dir, 1, "second")
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: maxU64 - 1, Current: 1})

	it := New(dir, 8, stringDecoder, nil, nil, nil)
	var got []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, rec.(string))
	}
	require.Equal(t, []string{"last", "wrap", "first", "second"}, got)
}

func TestIteratorPaddingSentinelEndsBlock(t *testing.T) {
	dir := t.TempDir()
	// One record, then a zero-length padding sentinel, then trailing zero
	// bytes filling out the rest of the segment.
	data := []byte{2, 0, 'h', 'i', 0, 0, 0, 0}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log_0.bin"), data, 0o644))
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	it := New(dir, 4, stringDecoder, nil, nil, nil)
	rec, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "hi", rec)

	_, ok = it.Next()
	require.False(t, ok)
}

func TestIteratorPaddedBlocksWithinOneSegment(t *testing.T) {
	dir := t.TempDir()
	// Two flushed blocks of 8 bytes each in the same segment, both closed
	// out with zero padding. Replay must continue past the first block's
	// padding into the second block instead of leaving the segment.
	data := []byte{
		2, 0, 'h', 'i', 0, 0, 0, 0,
		3, 0, 'y', 'o', 'u', 0, 0, 0,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log_0.bin"), data, 0o644))
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	it := New(dir, 8, stringDecoder, nil, nil, nil)
	var got []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, rec.(string))
	}
	require.Equal(t, []string{"hi", "you"}, got)
}

func TestIteratorCorruptTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	// A length prefix claiming 10 bytes, but only 3 bytes follow.
	data := []byte{10, 0, 'a', 'b', 'c'}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log_0.bin"), data, 0o644))
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	it := New(dir, 4, stringDecoder, nil, nil, nil)
	_, ok := it.Next()
	require.False(t, ok)
}

func TestIteratorSkipsUndecodableRecords(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 0, "skip-me", "keep-me")
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	calls := 0
	decode := func(payload []byte) (any, bool) {
		calls++
		if string(payload) == "skip-me" {
			return nil, false
		}
		return string(payload), true
	}

	it := New(dir, 4, decode, nil, nil, nil)
	rec, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "keep-me", rec)
	require.Equal(t, 2, calls)
}

func TestIteratorMissingMetaEndsImmediately(t *testing.T) {
	dir := t.TempDir()
	it := New(dir, 16, stringDecoder, nil, nil, nil)
	_, ok := it.Next()
	require.False(t, ok)
}

func TestIteratorCloseIsIdempotentAndReleasesOnce(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 0, "only")
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 0})

	released := 0
	it := New(dir, 8, stringDecoder, nil, nil, func() { released++ })
	it.Close()
	it.Close()
	require.Equal(t, 1, released)
}

func TestIteratorMissingSegmentFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 1, "present")
	// log_0.bin is referenced by the pointer range but absent on disk.
	meta := metapkg.New(dir, nil)
	meta.Write(metapkg.Pointers{GC: 0, Current: 1})

	it := New(dir, 8, stringDecoder, nil, nil, nil)
	rec, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "present", rec)
}
