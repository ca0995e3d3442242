// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package metrics defines the prometheus instrumentation surface shared by
// the engine's components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges exported by an Engine. It is safe
// for concurrent use, same as the underlying prometheus collectors.
type Metrics struct {
	bytesCommitted           prometheus.Counter
	recordsBuffered          prometheus.Counter
	bufferFlushes            prometheus.Counter
	commits                  prometheus.Counter
	segmentRotations         prometheus.Counter
	segmentsGarbageCollected prometheus.Counter
	lastSegmentAgeSeconds    prometheus.Gauge
	recordsRead              prometheus.Counter
	readBytesDecoded         prometheus.Counter
	readLockRejections       prometheus.Counter
	liveSegments             prometheus.Gauge
}

// New builds a Metrics registered against reg. A nil Registerer falls back
// to a fresh, unshared prometheus.Registry so callers that don't care about
// metrics don't need to wire one up.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		bytesCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_bytes_committed_total",
			Help: "waleng_bytes_committed_total counts the bytes handed to the file manager's commit," +
				" including length prefixes and any flush-time padding.",
		}),
		recordsBuffered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_records_buffered_total",
			Help: "waleng_records_buffered_total counts calls to Engine.Write that successfully staged a record.",
		}),
		bufferFlushes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_buffer_flushes_total",
			Help: "waleng_buffer_flushes_total counts how many times the in-memory buffer was swapped out and committed.",
		}),
		commits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_commits_total",
			Help: "waleng_commits_total counts calls to the file manager's Commit.",
		}),
		segmentRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_segment_rotations_total",
			Help: "waleng_segment_rotations_total counts how many times the active segment advanced.",
		}),
		segmentsGarbageCollected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_segments_gc_total",
			Help: "waleng_segments_gc_total counts how many segment files garbage collection has removed.",
		}),
		lastSegmentAgeSeconds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "waleng_last_segment_age_seconds",
			Help: "waleng_last_segment_age_seconds is set to the age of a segment, in seconds, each time it is sealed by rotation.",
		}),
		recordsRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_records_read_total",
			Help: "waleng_records_read_total counts records yielded by the replay iterator.",
		}),
		readBytesDecoded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_read_bytes_decoded_total",
			Help: "waleng_read_bytes_decoded_total counts payload bytes read by the replay iterator before decode.",
		}),
		readLockRejections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "waleng_read_lock_rejections_total",
			Help: "waleng_read_lock_rejections_total counts calls to Engine.Read that failed because the engine was not idle.",
		}),
		liveSegments: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "waleng_live_segments",
			Help: "waleng_live_segments is the number of segment files believed to be on disk.",
		}),
	}
}

// RecordBuffer marks a record successfully staged in the buffer.
func (m *Metrics) RecordBuffer() { m.recordsBuffered.Inc() }

// RecordFlush marks a buffer swap-and-commit.
func (m *Metrics) RecordFlush() { m.bufferFlushes.Inc() }

// RecordCommit marks a commit of n bytes to the active segment.
func (m *Metrics) RecordCommit(n int) {
	m.commits.Inc()
	m.bytesCommitted.Add(float64(n))
}

// RecordRotation marks a segment rotation that sealed a segment created
// createdAt.
func (m *Metrics) RecordRotation(createdAt time.Time) {
	m.segmentRotations.Inc()
	m.lastSegmentAgeSeconds.Set(time.Since(createdAt).Seconds())
}

// RecordGC marks n segments removed by garbage collection.
func (m *Metrics) RecordGC(n uint64) {
	m.segmentsGarbageCollected.Add(float64(n))
}

// SetLiveSegments sets the current live-segment gauge.
func (m *Metrics) SetLiveSegments(n int) {
	m.liveSegments.Set(float64(n))
}

// RecordRead marks a record yielded by the replay iterator, of payloadLen
// bytes.
func (m *Metrics) RecordRead(payloadLen int) {
	m.recordsRead.Inc()
	m.readBytesDecoded.Add(float64(payloadLen))
}

// RecordReadLockRejection marks a Read call that failed because the engine
// was not idle.
func (m *Metrics) RecordReadLockRejection() {
	m.readLockRejections.Inc()
}
