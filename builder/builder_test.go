// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/waleng/internal/filemanager"
)

func TestSizeConversions(t *testing.T) {
	require.Equal(t, uint64(4*1024), KB(4).Bytes())
	require.Equal(t, uint64(250*1024*1024), MB(250).Bytes())
	require.Equal(t, uint64(10*1024*1024*1024), GB(10).Bytes())
}

func TestBuildDefaults(t *testing.T) {
	cfg := New("/tmp/logz").Build()
	require.Equal(t, "/tmp/logz", cfg.Location)
	require.Equal(t, uint64(filemanager.Unbounded), cfg.TotalSizeBytes)
	require.NotZero(t, cfg.BufferSizeBytes)
}

func TestBuildWithOptions(t *testing.T) {
	cfg := New("/tmp/logz").
		BufferSize(KB(4)).
		StorageSize(GB(10)).
		Fsync(true).
		Build()

	require.Equal(t, 4*1024, cfg.BufferSizeBytes)
	require.Equal(t, uint64(10*1024*1024*1024), cfg.TotalSizeBytes)
	require.True(t, cfg.Fsync)
}

func TestBuildDisableBuffer(t *testing.T) {
	cfg := New("/tmp/logz").DisableBuffer().Build()
	require.Zero(t, cfg.BufferSizeBytes)
}
