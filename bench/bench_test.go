// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Commit and replay latency benchmarks for waleng. The commit benchmark
// drives Engine.Write from several workers through a load generator and
// records an HDR latency histogram; the replay benchmark times full
// iterator drains. Both write their distributions as HGRM files that
// plot directly in the usual histogram viewers.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	hdr "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/benmathews/bench"
	histwriter "github.com/benmathews/hdrhistogram-writer"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/waleng"
)

var randomData = make([]byte, 1024*1024)

func init() {
	rand.New(rand.NewSource(42)).Read(randomData)
}

// walRequesterFactory hands every worker a requester backed by one shared
// engine, so the benchmark measures concurrent Write against a single WAL
// rather than one WAL per worker.
type walRequesterFactory struct {
	engine *waleng.Engine
	size   int
}

func (f *walRequesterFactory) GetRequester(uint64) bench.Requester {
	return &walRequester{engine: f.engine, size: f.size}
}

type walRequester struct {
	engine *waleng.Engine
	size   int
}

func (r *walRequester) Setup() error { return nil }

func (r *walRequester) Request() error {
	r.engine.Write(randomData[:r.size])
	return nil
}

func (r *walRequester) Teardown() error { return nil }

func BenchmarkCommitLatency(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"10B", 10},
		{"1KB", 1024},
		{"32KB", 32 * 1024},
	}

	for _, tc := range sizes {
		b.Run(tc.name, func(b *testing.B) {
			dir, err := os.MkdirTemp("", "waleng-bench-*")
			require.NoError(b, err)
			defer os.RemoveAll(dir)

			e, err := waleng.Open(waleng.NewConfig(dir))
			require.NoError(b, err)
			defer e.Close()

			factory := &walRequesterFactory{engine: e, size: tc.size}
			bm := bench.NewBenchmark(factory, 50000, 4, 5*time.Second, 0)

			summary, err := bm.Run()
			require.NoError(b, err)

			b.ReportMetric(summary.Throughput, "req/s")
			out := fmt.Sprintf("commit-latency-%s.txt", tc.name)
			if err := summary.GenerateLatencyDistribution(nil, out); err != nil {
				b.Logf("could not write latency distribution: %v", err)
			}
		})
	}
}

func BenchmarkReplayThroughput(b *testing.B) {
	dir, err := os.MkdirTemp("", "waleng-bench-replay-*")
	require.NoError(b, err)
	defer os.RemoveAll(dir)

	w, err := waleng.Open(waleng.NewConfig(dir))
	require.NoError(b, err)

	const records = 50000
	payload := randomData[:256]
	for i := 0; i < records; i++ {
		w.Write(payload)
	}
	w.Flush()
	require.NoError(b, w.Close())

	// Replay needs an idle engine; the writer above is in write mode for
	// good, so reading goes through a fresh handle on the same directory.
	e, err := waleng.Open(waleng.NewConfig(dir))
	require.NoError(b, err)
	defer e.Close()

	hist := hdr.New(1, int64(time.Minute), 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := time.Now()
		it, err := e.Read(func(p []byte) (any, bool) { return p, true })
		require.NoError(b, err)
		count := 0
		for {
			_, ok := it.Next()
			if !ok {
				break
			}
			count++
		}
		require.Equal(b, records, count)
		_ = hist.RecordValue(time.Since(start).Nanoseconds())
	}
	b.StopTimer()

	b.ReportMetric(hist.Mean(), "ns/replay(mean)")
	if err := histwriter.WriteDistributionFile(hist, nil, 1.0, "replay-throughput.txt"); err != nil {
		b.Logf("could not write histogram distribution: %v", err)
	}
}
