// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"testing"

	"github.com/LynnColeArt/gudabench/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceKernelMatchesReference(t *testing.T) {
	for _, fused := range []bool{true, false} {
		for _, local := range []int{1, 7, 64, 256} {
			for _, n := range TestMatrixSizes() {
				t.Run(fmt.Sprintf("fused=%v/local=%d/n=%d", fused, local, n), func(t *testing.T) {
					registry := device.DefaultRegistry()
					before := LiveSessions()
					cfg := deviceConfig()
					cfg.Fused = fused
					cfg.LocalSize = local
					dk := NewDeviceKernel(registry, cfg)

					a, b := InputsOrFail(t, n, 21)
					got := ComputeOrFail(t, dk, a, b)
					assert.True(t, ReferenceOrFail(t, a, b).Equal(got), "results are not bitwise identical")
					requireNoLeaks(t, registry, before)
				})
			}
		}
	}
}

func TestDeviceKernelKnownValues(t *testing.T) {
	dk := NewDeviceKernel(nil, deviceConfig())
	assert.Equal(t, BackendDeviceKernel, dk.Backend())
	require.NotNil(t, dk.Registry())

	c := ComputeOrFail(t, dk, ConstantOrFail(t, 4, 1), ConstantOrFail(t, 4, 1))
	for _, v := range c.Data() {
		assert.Equal(t, float32(8), v)
	}
}

func TestDeviceKernelIdempotent(t *testing.T) {
	registry := device.DefaultRegistry()
	before := LiveSessions()
	dk := NewDeviceKernel(registry, deviceConfig())
	a, b := InputsOrFail(t, 20, 4)

	first := ComputeOrFail(t, dk, a, b)
	for i := 0; i < 3; i++ {
		assert.True(t, first.Equal(ComputeOrFail(t, dk, a, b)), "call %d", i+2)
	}
	requireNoLeaks(t, registry, before)
}

func TestDeviceKernelPlatformSelection(t *testing.T) {
	accel := device.NewPlatform("Accel", "Test", nil,
		&device.Device{Name: "accel0", Type: device.DeviceTypeAccelerator, ComputeUnits: 1, MaxWorkGroupSize: 16, GlobalMemSize: 1 << 20},
		&device.Device{Name: "accel1", Type: device.DeviceTypeAccelerator, ComputeUnits: 3, MaxWorkGroupSize: 128, GlobalMemSize: 1 << 20},
	)
	registry := device.NewRegistry(device.CPUPlatform("CPU"), accel)
	before := LiveSessions()
	cfg := deviceConfig()
	cfg.Platform, cfg.Device = 1, 1
	dk := NewDeviceKernel(registry, cfg)

	a, b := InputsOrFail(t, 12, 8)
	got := ComputeOrFail(t, dk, a, b)
	assert.True(t, ReferenceOrFail(t, a, b).Equal(got))
	requireNoLeaks(t, registry, before)

	// Device 0 only accepts work-groups of 16.
	cfg.Device = 0
	_, err := NewDeviceKernel(registry, cfg).Compute(a, b)
	assert.True(t, IsContextError(err), "unexpected error: %v", err)
	requireNoLeaks(t, registry, before)
}

func TestDeviceKernelErrors(t *testing.T) {
	registry := device.DefaultRegistry()
	before := LiveSessions()
	dk := NewDeviceKernel(registry, deviceConfig())

	_, err := dk.Compute(ConstantOrFail(t, 2, 1), ConstantOrFail(t, 3, 1))
	assert.True(t, IsDimensionMismatchError(err))
	assert.Equal(t, before, LiveSessions(), "no session is opened for invalid inputs")

	_, err = NewDeviceKernel(device.NewRegistry(), deviceConfig()).Compute(ConstantOrFail(t, 2, 1), ConstantOrFail(t, 2, 1))
	assert.True(t, IsNoPlatformError(err))
	assert.True(t, IsSetupError(err))
	requireNoLeaks(t, registry, before)
}

func TestDeviceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*DeviceConfig)
	}{
		{"NegativePlatform", func(c *DeviceConfig) { c.Platform = -1 }},
		{"NegativeDevice", func(c *DeviceConfig) { c.Device = -1 }},
		{"ZeroLocalSize", func(c *DeviceConfig) { c.LocalSize = 0 }},
		{"HugeLocalSize", func(c *DeviceConfig) { c.LocalSize = MaxLocalSize + 1 }},
	}
	require.NoError(t, deviceConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := deviceConfig()
			tt.modify(&cfg)
			assert.True(t, IsInvalidArgError(cfg.Validate()))

			_, err := NewEngine(Descriptor{Backend: BackendDeviceKernel, Device: cfg}, nil)
			assert.True(t, IsInvalidArgError(err))
		})
	}
}

func BenchmarkDeviceKernel(b *testing.B) {
	for _, fused := range []bool{true, false} {
		cfg := deviceConfig()
		cfg.Fused = fused
		dk := NewDeviceKernel(nil, cfg)
		a, bm := InputsOrFail(b, 128, 1)
		b.Run(fmt.Sprintf("fused=%v", fused), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := dk.Compute(a, bm); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
