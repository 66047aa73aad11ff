// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"runtime"
	"testing"

	"golang.org/x/sys/cpu"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	_, err := NewRegistry().Platforms()
	assert.True(t, errors.Is(err, ErrNoPlatform))
	var nilRegistry *Registry
	_, err = nilRegistry.Platforms()
	assert.True(t, errors.Is(err, ErrNoPlatform))

	r := DefaultRegistry()
	platforms, err := r.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	cpu := platforms[0]
	assert.Equal(t, "GUDA", cpu.Vendor)
	assert.Contains(t, cpu.String(), "GUDA CPU")
	assert.Equal(t, []string{"matmul", "matmul_scale", "scale"}, cpu.Library().Names())

	devices := cpu.Devices()
	require.Len(t, devices, 1)
	d := devices[0]
	assert.Same(t, cpu, d.Platform())
	assert.Equal(t, DeviceTypeCPU, d.Type)
	assert.Equal(t, runtime.NumCPU(), d.ComputeUnits)
	assert.Equal(t, DefaultMaxWorkGroupSize, d.MaxWorkGroupSize)
	assert.Equal(t, int64(DefaultGlobalMemSize), d.GlobalMemSize)
	assert.Contains(t, d.String(), "compute units")
	for _, ext := range d.Extensions {
		assert.True(t, d.HasExtension(ext))
		assert.Contains(t, d.String(), ext)
	}
	assert.False(t, d.HasExtension("cl_khr_fp64"))
}

func TestCPUExtensions(t *testing.T) {
	d := CPUPlatform("Host").Devices()[0]
	switch runtime.GOARCH {
	case "amd64", "386":
		assert.Equal(t, cpu.X86.HasAVX2, d.HasExtension("avx2"))
		assert.Equal(t, cpu.X86.HasFMA, d.HasExtension("fma"))
		assert.Equal(t, cpu.X86.HasAVX512F, d.HasExtension("avx512f"))
	case "arm64":
		assert.Equal(t, cpu.ARM64.HasASIMD, d.HasExtension("neon"))
		assert.Equal(t, cpu.ARM64.HasSVE, d.HasExtension("sve"))
	default:
		assert.Empty(t, d.Extensions)
	}

	plain := &Device{Name: "plain", ComputeUnits: 2}
	assert.Equal(t, "plain #0 (CPU, 2 compute units)", plain.String())
	assert.False(t, plain.HasExtension("avx2"))
}

func TestRegistrySharesCounters(t *testing.T) {
	a, b := CPUPlatform("A"), CPUPlatform("B")
	r := NewRegistry(a, b)

	ctxA := ContextOrFail(t, a)
	ctxB := ContextOrFail(t, b)
	_, err := ctxB.CreateBuffer(MemReadWrite, 8)
	require.NoError(t, err)
	assert.Equal(t, Stats{Contexts: 2, Buffers: 1}, r.Stats())
	assert.Equal(t, int64(3), r.Stats().Total())

	require.NoError(t, ctxA.Release())
	require.NoError(t, ctxB.Release())
	assert.Zero(t, r.Stats().Total())
}

func TestNewPlatformNumbersDevices(t *testing.T) {
	p := NewPlatform("Multi", "Test", nil, &Device{Name: "x"}, &Device{Name: "y"})
	require.Len(t, p.Devices(), 2)
	for i, d := range p.Devices() {
		assert.Equal(t, i, d.ID)
		assert.Same(t, p, d.Platform())
	}
	assert.NotNil(t, p.Library())
	assert.Equal(t, "Accelerator", DeviceTypeAccelerator.String())
}
