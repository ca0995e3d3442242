// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package waleng

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/waleng/internal/filemanager"
)

// DefaultBufferSize is the in-memory staging size used when Config does not
// set one explicitly.
const DefaultBufferSize = 4096

// Config configures an Engine. Location is the only required field; the
// rest have documented defaults.
type Config struct {
	// Location is the directory holding the meta file and segment files.
	// Created if missing.
	Location string

	// TotalSizeBytes soft-caps the on-disk footprint. The per-segment size
	// and the live segment window are both derived from it. Zero means
	// unbounded.
	//
	// This value is always raw bytes at this boundary; KB/MB/GB conversion
	// is the caller's responsibility, which is exactly what package
	// builder's Size helpers do before handing a Config here.
	TotalSizeBytes uint64

	// BufferSizeBytes is the in-memory staging size. Zero disables
	// buffering: every Write commits straight to the active segment.
	BufferSizeBytes int

	// Fsync forces a durable flush to stable storage on every commit when
	// true. Default false.
	Fsync bool

	Logger   log.Logger
	Registry prometheus.Registerer
}

// NewConfig builds a Config for location with BufferSizeBytes defaulted to
// DefaultBufferSize, then applies opts over it. Building a Config this way
// lets WithBufferSize(0) mean "explicitly disabled", while a Config{} built
// by hand leaves BufferSizeBytes at its zero value, which also means
// disabled. The two paths agree once opts have run.
func NewConfig(location string, opts ...Option) Config {
	c := Config{
		Location:        location,
		BufferSizeBytes: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option mutates a Config during Open.
type Option func(*Config)

// WithTotalSize sets Config.TotalSizeBytes.
func WithTotalSize(bytes uint64) Option {
	return func(c *Config) { c.TotalSizeBytes = bytes }
}

// WithBufferSize sets Config.BufferSizeBytes. A size of 0 disables
// buffering.
func WithBufferSize(bytes int) Option {
	return func(c *Config) { c.BufferSizeBytes = bytes }
}

// WithFsync enables or disables fsync-per-commit.
func WithFsync(enabled bool) Option {
	return func(c *Config) { c.Fsync = enabled }
}

// WithLogger sets the structured logger used across the engine's
// components. A nil logger is replaced by a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithRegistry sets the prometheus registerer metrics are registered
// against. A nil registerer gets a private, unshared registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = reg }
}

// applyDefaults fills in a logger and the unbounded sentinel for an unset
// total size. BufferSizeBytes is left untouched: 0 means disabled, and
// NewConfig is where DefaultBufferSize gets applied.
func (c *Config) applyDefaults() {
	if c.TotalSizeBytes == 0 {
		c.TotalSizeBytes = filemanager.Unbounded
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}
