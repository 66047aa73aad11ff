// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// NDRange is a 1, 2 or 3 dimensional index space. Unused dimensions may be
// left at 0 and count as 1.
type NDRange struct {
	X, Y, Z int
}

func (r NDRange) normalize() NDRange {
	if r.Y == 0 {
		r.Y = 1
	}
	if r.Z == 0 {
		r.Z = 1
	}
	return r
}

// Size returns the total number of indices.
func (r NDRange) Size() int {
	r = r.normalize()
	return r.X * r.Y * r.Z
}

// WorkItem identifies one work-item of an NDRange launch, with the same
// indexing as OpenCL's get_group_id, get_local_id and get_global_id.
type WorkItem struct {
	GroupID    NDRange
	LocalID    NDRange
	LocalSize  NDRange
	GlobalSize NDRange
}

// GlobalID returns get_global_id(dim).
func (wi WorkItem) GlobalID(dim int) int {
	switch dim {
	case 0:
		return wi.GroupID.X*wi.LocalSize.X + wi.LocalID.X
	case 1:
		return wi.GroupID.Y*wi.LocalSize.Y + wi.LocalID.Y
	case 2:
		return wi.GroupID.Z*wi.LocalSize.Z + wi.LocalID.Z
	}
	return 0
}

// GlobalLinear returns the row-major linear global id.
func (wi WorkItem) GlobalLinear() int {
	return (wi.GlobalID(2)*wi.GlobalSize.Y+wi.GlobalID(1))*wi.GlobalSize.X + wi.GlobalID(0)
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim NDRange) NDRange {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return NDRange{X: x, Y: y, Z: z}
}

// CommandQueue executes commands in order on one device. Enqueue calls
// return as soon as the command is queued unless they are blocking; Finish
// waits for the queue to drain.
type CommandQueue struct {
	ctx    *Context
	device *Device
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	released bool

	errMu sync.Mutex
	err   error // first failure of an asynchronous command
}

// CreateCommandQueue creates an in-order queue on a device of the context.
func (c *Context) CreateCommandQueue(d *Device) (*CommandQueue, error) {
	if err := c.checkAlive("CreateCommandQueue"); err != nil {
		return nil, err
	}
	if !slices.Contains(c.devices, d) {
		return nil, errors.Wrapf(ErrDeviceNotFound, "CreateCommandQueue: %v is not part of the context", d)
	}
	q := &CommandQueue{
		ctx:    c,
		device: d,
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	go q.worker()
	c.platform.live.queues.Add(1)
	return q, nil
}

// Device returns the device the queue executes on.
func (q *CommandQueue) Device() *Device { return q.device }

// worker processes commands for a queue
func (q *CommandQueue) worker() {
	for task := range q.tasks {
		task()
		q.wg.Done()
	}
	close(q.done)
}

func (q *CommandQueue) submit(task func()) error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return errors.Wrap(ErrReleased, "enqueue: command queue")
	}
	// Release waits on wg before closing tasks, so this send always lands.
	q.wg.Add(1)
	q.mu.Unlock()
	q.tasks <- task
	return nil
}

func (q *CommandQueue) fail(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.err == nil {
		q.err = err
	}
}

func (q *CommandQueue) checkBuffer(op string, b *Buffer, elems int) ([]float32, error) {
	if b == nil {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: nil buffer", op)
	}
	if b.ctx != q.ctx {
		return nil, errors.Wrapf(ErrInvalidContext, "%s: buffer belongs to another context", op)
	}
	b.ctx.mu.Lock()
	released, data := b.released, b.data
	b.ctx.mu.Unlock()
	if released {
		return nil, errors.Wrapf(ErrReleased, "%s: buffer", op)
	}
	if elems*4 > b.size {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: %d bytes do not fit a %d byte buffer", op, elems*4, b.size)
	}
	return data, nil
}

// EnqueueWriteBuffer copies src into the start of buf. The source is copied
// when the command runs, so a non-blocking caller must not modify src until
// Finish returns.
func (q *CommandQueue) EnqueueWriteBuffer(buf *Buffer, blocking bool, src []float32) error {
	data, err := q.checkBuffer("EnqueueWriteBuffer", buf, len(src))
	if err != nil {
		return err
	}
	if err := q.submit(func() { copy(data, src) }); err != nil {
		return err
	}
	if blocking {
		return q.Finish()
	}
	return nil
}

// EnqueueReadBuffer copies the start of buf into dst. With blocking set it
// returns only once dst holds the data.
func (q *CommandQueue) EnqueueReadBuffer(buf *Buffer, blocking bool, dst []float32) error {
	data, err := q.checkBuffer("EnqueueReadBuffer", buf, len(dst))
	if err != nil {
		return err
	}
	if err := q.submit(func() { copy(dst, data) }); err != nil {
		return err
	}
	if blocking {
		return q.Finish()
	}
	return nil
}

// EnqueueNDRangeKernel runs kernel once per index of global, grouped into
// work-groups of local. Every dimension of global must be a multiple of the
// matching dimension of local, and local may not exceed the device's
// MaxWorkGroupSize.
func (q *CommandQueue) EnqueueNDRangeKernel(kernel *Kernel, global, local NDRange) error {
	if kernel == nil {
		return errors.Wrap(ErrInvalidValue, "EnqueueNDRangeKernel: nil kernel")
	}
	if kernel.program.ctx != q.ctx {
		return errors.Wrap(ErrInvalidContext, "EnqueueNDRangeKernel: kernel belongs to another context")
	}
	global, local = global.normalize(), local.normalize()
	if global.X <= 0 || global.Y <= 0 || global.Z <= 0 {
		return errors.Wrapf(ErrInvalidValue, "EnqueueNDRangeKernel: global size %+v", global)
	}
	if local.X <= 0 || local.Y <= 0 || local.Z <= 0 || local.Size() > q.device.MaxWorkGroupSize {
		return errors.Wrapf(ErrInvalidWorkGroupSize, "local size %+v, device maximum %d", local, q.device.MaxWorkGroupSize)
	}
	if global.X%local.X != 0 || global.Y%local.Y != 0 || global.Z%local.Z != 0 {
		return errors.Wrapf(ErrInvalidWorkGroupSize, "global size %+v is not a multiple of local size %+v", global, local)
	}
	args, err := kernel.snapshot()
	if err != nil {
		return err
	}
	groups := NDRange{X: global.X / local.X, Y: global.Y / local.Y, Z: global.Z / local.Z}
	return q.submit(func() {
		if err := q.launch(kernel.name, kernel.run, groups, local, global, args); err != nil {
			q.fail(err)
		}
	})
}

// launch implements the core kernel execution logic. Work-groups are split
// into contiguous ranges, one goroutine per compute unit; the work-items of a
// group run sequentially on their goroutine.
func (q *CommandQueue) launch(name string, run NativeFunc, groups, local, global NDRange, args []Arg) error {
	numGroups := groups.Size()
	groupSize := local.Size()
	numWorkers := max(1, min(q.device.ComputeUnits, numGroups))
	groupsPerWorker := (numGroups + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for w := 0; w < numWorkers; w++ {
		start := w * groupsPerWorker
		end := min(start+groupsPerWorker, numGroups)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = errors.Wrapf(ErrKernelFailed, "kernel %q: %v", name, r)
					}
					mu.Unlock()
				}
			}()
			wi := WorkItem{LocalSize: local, GlobalSize: global}
			for g := start; g < end; g++ {
				wi.GroupID = linearTo3D(g, groups)
				for t := 0; t < groupSize; t++ {
					wi.LocalID = linearTo3D(t, local)
					run(wi, args)
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// Finish blocks until every queued command has completed and returns the
// first error of an asynchronous command, if any.
func (q *CommandQueue) Finish() error {
	q.wg.Wait()
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// Release drains the queue and stops its worker. Releasing twice is a no-op.
func (q *CommandQueue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return nil
	}
	q.released = true
	q.mu.Unlock()

	q.wg.Wait()
	close(q.tasks)
	<-q.done
	q.ctx.platform.live.queues.Add(-1)
	return nil
}

// String implements fmt.Stringer.
func (q *CommandQueue) String() string {
	return fmt.Sprintf("CommandQueue(%v)", q.device)
}
