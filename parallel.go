// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"runtime"

	"github.com/LynnColeArt/gudabench/device"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// ParallelConfig controls the data-parallel engine.
type ParallelConfig struct {
	// Enabled selects the parallel path. When false the engine runs the
	// sequential reference algorithm and reports a fallback.
	Enabled bool

	// Workers bounds the number of concurrent tasks. 0 means runtime.NumCPU().
	Workers int

	// MinSize is the dimension below which the engine stays on the calling
	// goroutine. This is not reported as a fallback.
	MinSize int
}

// DataParallel computes C = 2*A*B with two fork/join dispatches over
// independent iteration spaces: a reduction dispatch where every (row, col)
// owns a private accumulator, and an elementwise scale dispatch.
//
// Each accumulator sums over k in the same order as Reference, so results are
// bitwise identical to the reference.
type DataParallel struct {
	cfg          ParallelConfig
	lastFallback bool

	// numCPU reports how many execution units the runtime exposes.
	numCPU func() int
}

func init() {
	Register(BackendDataParallel, func(desc Descriptor, _ *device.Registry) (Engine, error) {
		return NewDataParallel(desc.Parallel), nil
	})
}

// NewDataParallel returns a data-parallel engine.
func NewDataParallel(cfg ParallelConfig) *DataParallel {
	return &DataParallel{cfg: cfg, numCPU: runtime.NumCPU}
}

// Backend implements Engine.
func (dp *DataParallel) Backend() Backend { return BackendDataParallel }

// LastFallback implements FallbackReporter.
func (dp *DataParallel) LastFallback() bool { return dp.lastFallback }

// workers returns the number of usable workers, 0 if the parallel runtime is
// unavailable.
func (dp *DataParallel) workers() int {
	if !dp.cfg.Enabled {
		return 0
	}
	if dp.cfg.Workers > 0 {
		return dp.cfg.Workers
	}
	return dp.numCPU()
}

// Compute implements Engine.
func (dp *DataParallel) Compute(a, b *Matrix) (*Matrix, error) {
	dp.lastFallback = false
	if _, err := CheckSameSize(a, b); err != nil {
		return nil, err
	}
	if dp.workers() < 1 {
		dp.lastFallback = true
		klog.Warningf("data_parallel: parallel runtime unavailable (enabled=%v), falling back to the sequential reference", dp.cfg.Enabled)
		return Reference{}.Compute(a, b)
	}
	c, err := dp.Multiply(a, b)
	if err != nil {
		return nil, err
	}
	if err := dp.Scale(c, 2); err != nil {
		return nil, err
	}
	return c, nil
}

// Multiply returns A*B, unscaled. This is the reduction dispatch.
func (dp *DataParallel) Multiply(a, b *Matrix) (*Matrix, error) {
	n, err := CheckSameSize(a, b)
	if err != nil {
		return nil, err
	}
	c, err := NewMatrix(n)
	if err != nil {
		return nil, err
	}
	workers := dp.workers()
	if workers < 1 {
		return nil, NewExecutionError("DataParallel.Multiply", "parallel runtime unavailable", nil)
	}
	if n < dp.cfg.MinSize || workers == 1 {
		Reference{}.multiplyRows(a.data, b.data, c.data, n, 0, n, 1)
		return c, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += RowStripSize {
		end := min(start+RowStripSize, n)
		g.Go(func() error {
			Reference{}.multiplyRows(a.data, b.data, c.data, n, start, end, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, NewExecutionError("DataParallel.Multiply", "reduction dispatch failed", err)
	}
	return c, nil
}

// Scale multiplies every element of c by alpha in place. This is the
// elementwise dispatch.
func (dp *DataParallel) Scale(c *Matrix, alpha float32) error {
	if c == nil {
		return NewInvalidArgError("DataParallel.Scale", "nil matrix")
	}
	workers := dp.workers()
	if workers < 1 {
		return NewExecutionError("DataParallel.Scale", "parallel runtime unavailable", nil)
	}
	data := c.data
	if len(data) <= ScaleChunkSize || workers == 1 {
		Reference{}.Scale(alpha, data)
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(data); start += ScaleChunkSize {
		chunk := data[start:min(start+ScaleChunkSize, len(data))]
		g.Go(func() error {
			Reference{}.Scale(alpha, chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NewExecutionError("DataParallel.Scale", "elementwise dispatch failed", err)
	}
	return nil
}
