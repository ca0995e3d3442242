// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package waleng provides a write-ahead log engine for single-process,
// multi-threaded applications. It writes a durable, append-only log of
// opaque byte records, bounded on disk by segment-level garbage collection,
// and exposes a sequential replay iterator for recovery.
//
// Records are buffered in memory up to a configured size, then flushed as a
// contiguous block to a segment file named log_<N>.bin. A companion meta
// file records the oldest and newest live segment indices. Exactly one
// caller may read at a time, and reading and writing never overlap: the
// Engine enforces this with an atomic mode arbiter rather than a
// traditional read-write lock, since a replay session is long-lived and a
// write session is inherently multi-writer.
//
// waleng itself only ever sees []byte. Application-level typed records,
// fluent configuration, and CLI tooling live in the sibling typed, builder
// and cmd/walcat packages.
package waleng
