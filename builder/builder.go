// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package builder is a fluent configuration builder for waleng.Engine. It
// is an external collaborator, not part of the engine's core: it only
// produces a waleng.Config, converting human-friendly size units to the
// raw bytes the engine boundary expects.
package builder

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/waleng/internal/filemanager"

	"github.com/dreamsxin/waleng"
)

// Size represents an amount of data in KB, MB or GB. A Size is constructed
// with one of KB, MB or GB and converted to bytes with Bytes.
type Size struct {
	bytes uint64
}

// KB returns a Size of n kilobytes.
func KB(n uint64) Size { return Size{bytes: n * 1024} }

// MB returns a Size of n megabytes.
func MB(n uint64) Size { return Size{bytes: n * 1024 * 1024} }

// GB returns a Size of n gigabytes.
func GB(n uint64) Size { return Size{bytes: n * 1024 * 1024 * 1024} }

// Bytes returns the Size in raw bytes.
func (s Size) Bytes() uint64 { return s.bytes }

// Builder accumulates options and produces a waleng.Config with Build, or
// opens an Engine directly with Open. Methods return the Builder so calls
// can be chained.
type Builder struct {
	location      string
	bufferEnabled bool
	bufferSize    Size
	storageSize   Size
	fsync         bool
	logger        log.Logger
	registry      prometheus.Registerer
}

// New starts a Builder for an engine rooted at location, with buffering
// enabled and waleng.DefaultBufferSize as the default buffer size.
func New(location string) *Builder {
	return &Builder{
		location:      location,
		bufferEnabled: true,
		bufferSize:    Size{bytes: uint64(waleng.DefaultBufferSize)},
	}
}

// DisableBuffer turns off in-memory buffering: every Write commits
// straight to the active segment.
func (b *Builder) DisableBuffer() *Builder {
	b.bufferEnabled = false
	return b
}

// BufferSize sets the in-memory staging size.
func (b *Builder) BufferSize(size Size) *Builder {
	b.bufferSize = size
	return b
}

// StorageSize sets the soft cap on total on-disk footprint.
func (b *Builder) StorageSize(size Size) *Builder {
	b.storageSize = size
	return b
}

// Fsync enables fsync-per-commit.
func (b *Builder) Fsync(enabled bool) *Builder {
	b.fsync = enabled
	return b
}

// Logger sets the structured logger threaded through the engine.
func (b *Builder) Logger(logger log.Logger) *Builder {
	b.logger = logger
	return b
}

// Registry sets the prometheus registerer metrics are registered against.
func (b *Builder) Registry(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// Build produces the waleng.Config this Builder describes.
func (b *Builder) Build() waleng.Config {
	bufferSize := 0
	if b.bufferEnabled {
		bufferSize = int(b.bufferSize.Bytes())
	}
	total := b.storageSize.Bytes()
	if total == 0 {
		total = filemanager.Unbounded
	}
	return waleng.Config{
		Location:        b.location,
		TotalSizeBytes:  total,
		BufferSizeBytes: bufferSize,
		Fsync:           b.fsync,
		Logger:          b.logger,
		Registry:        b.registry,
	}
}

// Open builds the Config and opens an Engine with it.
func (b *Builder) Open() (*waleng.Engine, error) {
	return waleng.Open(b.Build())
}
