// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// QueueOrFail creates a command queue on the first device of ctx.
func QueueOrFail(t testing.TB, ctx *Context) *CommandQueue {
	t.Helper()
	q, err := ctx.CreateCommandQueue(ctx.Devices()[0])
	require.NoError(t, err)
	return q
}

func TestQueueReadWrite(t *testing.T) {
	p := testPlatform(1 << 20)
	ctx := ContextOrFail(t, p)
	defer ctx.Release()
	q := QueueOrFail(t, ctx)
	defer q.Release()
	assert.Same(t, ctx.Devices()[0], q.Device())

	buf, err := ctx.CreateBuffer(MemReadWrite, 16)
	require.NoError(t, err)
	require.NoError(t, q.EnqueueWriteBuffer(buf, false, []float32{1, 2, 3, 4}))
	dst := make([]float32, 4)
	require.NoError(t, q.EnqueueReadBuffer(buf, true, dst))
	assert.Equal(t, []float32{1, 2, 3, 4}, dst)

	// Partial reads start at offset 0.
	head := make([]float32, 2)
	require.NoError(t, q.EnqueueReadBuffer(buf, true, head))
	assert.Equal(t, []float32{1, 2}, head)

	assert.True(t, errors.Is(q.EnqueueWriteBuffer(buf, true, make([]float32, 5)), ErrInvalidValue))
	assert.True(t, errors.Is(q.EnqueueReadBuffer(nil, true, dst), ErrInvalidValue))

	other := ContextOrFail(t, testPlatform(1<<20))
	defer other.Release()
	foreign, err := other.CreateBuffer(MemReadWrite, 16)
	require.NoError(t, err)
	assert.True(t, errors.Is(q.EnqueueReadBuffer(foreign, true, dst), ErrInvalidContext))

	require.NoError(t, buf.Release())
	assert.True(t, errors.Is(q.EnqueueReadBuffer(buf, true, dst), ErrReleased))
}

func TestQueueMatmulScale(t *testing.T) {
	ctx := ContextOrFail(t, testPlatform(1<<20))
	defer ctx.Release()
	q := QueueOrFail(t, ctx)
	defer q.Release()
	prog := BuiltProgramOrFail(t, ctx, `
__kernel void matmul_scale(__global const float* a, __global const float* b,
                           __global float* c, const uint n, const float alpha) {}`)
	k, err := prog.CreateKernel("matmul_scale")
	require.NoError(t, err)

	const n = 3
	bufs := make([]*Buffer, 3)
	for i, flags := range []MemFlags{MemReadOnly, MemReadOnly, MemReadWrite} {
		bufs[i], err = ctx.CreateBuffer(flags, n*n*4)
		require.NoError(t, err)
	}
	require.NoError(t, q.EnqueueWriteBuffer(bufs[0], false, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	// Identity.
	require.NoError(t, q.EnqueueWriteBuffer(bufs[1], false, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}))
	for i, arg := range []any{bufs[0], bufs[1], bufs[2], uint32(n), float32(2)} {
		require.NoError(t, k.SetArg(i, arg))
	}

	// Global size padded past n*n.
	require.NoError(t, q.EnqueueNDRangeKernel(k, NDRange{X: 16}, NDRange{X: 4}))
	got := make([]float32, n*n)
	require.NoError(t, q.EnqueueReadBuffer(bufs[2], true, got))
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12, 14, 16, 18}, got)
}

func TestQueueWorkGroupValidation(t *testing.T) {
	ctx := ContextOrFail(t, testPlatform(1<<20))
	defer ctx.Release()
	q := QueueOrFail(t, ctx)
	defer q.Release()
	prog := BuiltProgramOrFail(t, ctx, scaleSource)
	k, err := prog.CreateKernel("scale")
	require.NoError(t, err)

	tests := []struct {
		name          string
		global, local NDRange
		want          error
	}{
		{"ZeroGlobal", NDRange{}, NDRange{X: 1}, ErrInvalidValue},
		{"ZeroLocal", NDRange{X: 8}, NDRange{}, ErrInvalidWorkGroupSize},
		{"NotAMultiple", NDRange{X: 10}, NDRange{X: 4}, ErrInvalidWorkGroupSize},
		{"AboveDeviceMax", NDRange{X: 512}, NDRange{X: 512}, ErrInvalidWorkGroupSize},
		{"ArgsNotSet", NDRange{X: 8}, NDRange{X: 4}, ErrInvalidKernelArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := q.EnqueueNDRangeKernel(k, tt.global, tt.local)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.True(t, errors.Is(q.EnqueueNDRangeKernel(nil, NDRange{X: 1}, NDRange{X: 1}), ErrInvalidValue))
}

// recordingPlatform runs a kernel that stores the linear global id of every
// work-item at that position, or panics on work-item ids listed in bad.
func recordingPlatform(bad int) *Platform {
	lib := NewLibrary(NativeKernel{
		Name:   "record",
		Params: []ArgKind{ArgGlobalFloat},
		Run: func(wi WorkItem, args []Arg) {
			gid := wi.GlobalLinear()
			if gid == bad {
				panic("bad work-item")
			}
			args[0].Buffer[gid] = float32(gid)
		},
	})
	return NewPlatform("Recording", "Test", lib, &Device{
		Name: "rec", ComputeUnits: 3, MaxWorkGroupSize: 64, GlobalMemSize: 1 << 20,
	})
}

func TestQueueNDRangeIndexing(t *testing.T) {
	ctx := ContextOrFail(t, recordingPlatform(-1))
	defer ctx.Release()
	q := QueueOrFail(t, ctx)
	defer q.Release()
	prog := BuiltProgramOrFail(t, ctx, "__kernel void record(__global float* out) {}")
	k, err := prog.CreateKernel("record")
	require.NoError(t, err)

	global := NDRange{X: 4, Y: 6, Z: 2}
	buf, err := ctx.CreateBuffer(MemReadWrite, global.Size()*4)
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, buf))
	require.NoError(t, q.EnqueueNDRangeKernel(k, global, NDRange{X: 2, Y: 3, Z: 1}))

	got := make([]float32, global.Size())
	require.NoError(t, q.EnqueueReadBuffer(buf, true, got))
	// Every work-item ran exactly once, at its own global id.
	for i, v := range got {
		require.Equal(t, float32(i), v, "work-item %d", i)
	}
}

func TestQueueKernelPanic(t *testing.T) {
	ctx := ContextOrFail(t, recordingPlatform(5))
	defer ctx.Release()
	q := QueueOrFail(t, ctx)
	defer q.Release()
	prog := BuiltProgramOrFail(t, ctx, "__kernel void record(__global float* out) {}")
	k, err := prog.CreateKernel("record")
	require.NoError(t, err)
	buf, err := ctx.CreateBuffer(MemReadWrite, 64)
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, buf))

	// The failure surfaces on the next synchronization.
	require.NoError(t, q.EnqueueNDRangeKernel(k, NDRange{X: 16}, NDRange{X: 4}))
	err = q.Finish()
	assert.True(t, errors.Is(err, ErrKernelFailed), "got %v", err)
	assert.Contains(t, err.Error(), `kernel "record"`)
}

func TestQueueLifecycle(t *testing.T) {
	p := testPlatform(1 << 20)
	ctx := ContextOrFail(t, p)
	defer ctx.Release()

	otherPlatform := testPlatform(1 << 20)
	_, err := ctx.CreateCommandQueue(otherPlatform.Devices()[0])
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	q := QueueOrFail(t, ctx)
	assert.Equal(t, int64(1), p.Stats().Queues)
	assert.Contains(t, q.String(), "test0")
	require.NoError(t, q.Release())
	require.NoError(t, q.Release())
	assert.Zero(t, p.Stats().Queues)

	buf, err := ctx.CreateBuffer(MemReadWrite, 4)
	require.NoError(t, err)
	assert.True(t, errors.Is(q.EnqueueWriteBuffer(buf, true, []float32{1}), ErrReleased))
}

func TestNDRange(t *testing.T) {
	assert.Equal(t, 7, NDRange{X: 7}.Size())
	assert.Equal(t, 24, NDRange{X: 2, Y: 3, Z: 4}.Size())
	assert.Equal(t, NDRange{X: 1, Y: 2, Z: 3}, linearTo3D(1+2*4+3*4*5, NDRange{X: 4, Y: 5, Z: 6}))

	wi := WorkItem{
		GroupID:    NDRange{X: 1, Y: 2},
		LocalID:    NDRange{X: 3, Y: 1},
		LocalSize:  NDRange{X: 4, Y: 2, Z: 1},
		GlobalSize: NDRange{X: 8, Y: 6, Z: 1},
	}
	assert.Equal(t, 7, wi.GlobalID(0))
	assert.Equal(t, 5, wi.GlobalID(1))
	assert.Equal(t, 0, wi.GlobalID(2))
	assert.Equal(t, 5*8+7, wi.GlobalLinear())
}

func TestQueueConcurrentRelease(t *testing.T) {
	ctx := ContextOrFail(t, testPlatform(1<<20))
	defer ctx.Release()
	for round := 0; round < 20; round++ {
		q := QueueOrFail(t, ctx)
		buf, err := ctx.CreateBuffer(MemReadWrite, 16)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					err := q.EnqueueWriteBuffer(buf, false, []float32{1, 2, 3, 4})
					if err != nil {
						assert.True(t, errors.Is(err, ErrReleased))
						return
					}
				}
			}()
		}
		require.NoError(t, q.Release())
		wg.Wait()
		require.NoError(t, buf.Release())
	}
}
