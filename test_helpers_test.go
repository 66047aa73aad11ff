// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/LynnColeArt/gudabench/device"
	"github.com/stretchr/testify/require"
)

// kernelPath is the kernel source file relative to the package directory,
// where go test runs.
const kernelPath = "kernels/matmul.cl"

// MatrixOrFail builds a size x size matrix from data and fails the test if
// unsuccessful.
func MatrixOrFail(t testing.TB, size int, data ...float32) *Matrix {
	t.Helper()
	m, err := MatrixFromSlice(size, data)
	require.NoError(t, err)
	return m
}

// ConstantOrFail returns a constant matrix and fails the test if
// unsuccessful.
func ConstantOrFail(t testing.TB, size int, v float32) *Matrix {
	t.Helper()
	m, err := Constant(size, v)
	require.NoError(t, err)
	return m
}

// InputsOrFail generates seeded A and B operands.
func InputsOrFail(t testing.TB, size int, seed uint64) (a, b *Matrix) {
	t.Helper()
	a, b, err := GenerateInputs(size, seed, DefaultMaxValue)
	require.NoError(t, err)
	return a, b
}

// ComputeOrFail runs engine and fails the test on error.
func ComputeOrFail(t testing.TB, engine Engine, a, b *Matrix) *Matrix {
	t.Helper()
	c, err := engine.Compute(a, b)
	require.NoError(t, err, "%s.Compute", engine.Backend())
	require.Equal(t, a.Size(), c.Size())
	return c
}

// ReferenceOrFail computes the reference result.
func ReferenceOrFail(t testing.TB, a, b *Matrix) *Matrix {
	t.Helper()
	return ComputeOrFail(t, Reference{}, a, b)
}

// deviceConfig returns the default device configuration for tests.
func deviceConfig() DeviceConfig {
	return DefaultConfig().Device
}

// writeKernel writes source to a temporary .cl file and returns its path.
func writeKernel(t testing.TB, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.cl")
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))
	return path
}

// requireNoLeaks checks every session is closed and every device object of
// registry released.
func requireNoLeaks(t testing.TB, registry *device.Registry, sessionsBefore int64) {
	t.Helper()
	require.Equal(t, sessionsBefore, LiveSessions(), "live sessions")
	require.Equal(t, device.Stats{}, registry.Stats(), "live device objects")
}
