// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv(BackendsEnv, "")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultSize, cfg.Size)
	assert.Equal(t, DefaultMaxValue, cfg.MaxValue)
	assert.Equal(t, []string{"reference", "data_parallel", "device_kernel"}, cfg.Backends)
	assert.True(t, cfg.UseParallel)
	assert.True(t, cfg.Device.Fused)
	assert.Equal(t, DefaultLocalSize, cfg.Device.LocalSize)
	assert.Equal(t, Tolerance{RelTol: DefaultRelTol}, cfg.Tolerance())
	assert.Equal(t, ParallelConfig{Enabled: true, MinSize: DefaultMinParallelSize}, cfg.Parallel())
}

func TestBackendsEnv(t *testing.T) {
	t.Setenv(BackendsEnv, " device_kernel, ,reference ")
	cfg := DefaultConfig()
	assert.Equal(t, []string{"device_kernel", "reference"}, cfg.Backends)

	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, BackendDeviceKernel, descs[0].Backend)
	assert.Equal(t, cfg.Device, descs[0].Device)
	assert.Equal(t, BackendReference, descs[1].Backend)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(BackendsEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
size: 256
seed: 9
backends: [data_parallel, device_kernel]
workers: 3
device:
  local_size: 128
  fused: false
repeats: 2
rel_tol: 0
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Size)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, []string{"data_parallel", "device_kernel"}, cfg.Backends)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 128, cfg.Device.LocalSize)
	assert.False(t, cfg.Device.Fused)
	assert.Equal(t, 2, cfg.Repeats)
	assert.Equal(t, Exact(), cfg.Tolerance())
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultMaxValue, cfg.MaxValue)
	assert.Empty(t, cfg.Device.KernelPath)
	assert.True(t, cfg.UseParallel)

	t.Run("UnknownKey", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("sise: 12\n"), 0644))
		_, err := LoadConfig(bad)
		assert.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "none.yaml"))
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Setenv(BackendsEnv, "")
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"ZeroSize", func(c *Config) { c.Size = 0 }},
		{"HugeSize", func(c *Config) { c.Size = MaxMatrixSize + 1 }},
		{"ZeroMaxValue", func(c *Config) { c.MaxValue = 0 }},
		{"InexactMaxValue", func(c *Config) { c.MaxValue = MaxInputValue + 1 }},
		{"OverflowMaxValue", func(c *Config) { c.MaxValue = math.MaxInt }},
		{"NoBackends", func(c *Config) { c.Backends = nil }},
		{"UnknownBackend", func(c *Config) { c.Backends = []string{"opencl"} }},
		{"DuplicateBackend", func(c *Config) { c.Backends = []string{"reference", "reference"} }},
		{"NegativeWorkers", func(c *Config) { c.Workers = -1 }},
		{"ZeroRepeats", func(c *Config) { c.Repeats = 0 }},
		{"NegativeTolerance", func(c *Config) { c.RelTol = -1 }},
		{"BadLocalSize", func(c *Config) { c.Device.LocalSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.True(t, IsInvalidArgError(cfg.Validate()))
		})
	}

	// Device knobs are only checked when the device backend is selected.
	cfg := DefaultConfig()
	cfg.Backends = []string{"reference"}
	cfg.Device.LocalSize = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfigMaxValueBounds(t *testing.T) {
	t.Setenv(BackendsEnv, "")
	for _, maxValue := range []int{1, MaxInputValue} {
		cfg := DefaultConfig()
		cfg.Size = 4
		cfg.MaxValue = maxValue
		require.NoError(t, cfg.Validate())
		a, b, err := GenerateInputs(cfg.Size, cfg.Seed, cfg.MaxValue)
		require.NoError(t, err)
		for _, v := range append(a.Data(), b.Data()...) {
			assert.Less(t, v, float32(maxValue))
			assert.Equal(t, v, float32(int(v)))
		}
	}

	for _, maxValue := range []int{0, -1, MaxInputValue + 1, math.MaxInt} {
		_, _, err := GenerateInputs(4, 1, maxValue)
		assert.True(t, IsInvalidArgError(err), "max value %d", maxValue)
	}
}
