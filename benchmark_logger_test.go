// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	rl, err := NewReportLogger(dir, "unit")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(rl.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(rl.Path()), "unit_"))

	// The session file exists, empty, from the start.
	entries, err := LoadReports(rl.Path())
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = LatestReport(rl.Path())
	assert.Error(t, err)

	first := &Report{Version: "v0.3.0", Size: 8, Seed: 1, MaxValue: 1024, Results: []TimingResult{
		{Backend: "data_parallel", Elapsed: []time.Duration{time.Millisecond}, Checksum: 42},
	}}
	second := &Report{Size: 8, Seed: 2, MaxValue: 1024}
	require.NoError(t, rl.Log(first, nil))
	require.NoError(t, rl.Log(second, NewVerificationError("Verify", Mismatch{Backend: "device_kernel"})))

	entries, err = LoadReports(rl.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].Report)
	assert.Empty(t, entries[0].Error)
	assert.Contains(t, entries[1].Error, "device_kernel")

	latest, err := LatestReport(rl.Path())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Seed)

	path, err := LatestSessionFile(dir)
	require.NoError(t, err)
	assert.Equal(t, rl.Path(), path)

	_, err = LatestSessionFile(t.TempDir())
	assert.Error(t, err)
	_, err = LoadReports(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
