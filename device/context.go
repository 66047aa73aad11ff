// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"sync"

	"github.com/pkg/errors"
)

// MemoryAlignment is the granularity, in bytes, of device allocations.
const MemoryAlignment = 64

// MemFlags specifies how kernels may access a buffer.
type MemFlags int

const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly
)

// String implements fmt.Stringer.
func (f MemFlags) String() string {
	switch f {
	case MemReadWrite:
		return "READ_WRITE"
	case MemWriteOnly:
		return "WRITE_ONLY"
	case MemReadOnly:
		return "READ_ONLY"
	default:
		return "INVALID"
	}
}

// Context binds all devices of one platform and owns the buffers, programs
// and queues created from it.
type Context struct {
	platform *Platform
	devices  []*Device
	memLimit int64

	mu        sync.Mutex
	buffers   map[*Buffer]struct{}
	allocated int64
	peak      int64
	released  bool
}

// NewContext creates a context on every device of platform p.
func NewContext(p *Platform) (*Context, error) {
	if p == nil {
		return nil, errors.Wrap(ErrInvalidValue, "NewContext: nil platform")
	}
	if p.Unavailable {
		return nil, errors.Wrapf(ErrInvalidContext, "platform %q is unavailable", p.Name)
	}
	if len(p.devices) == 0 {
		return nil, errors.Wrapf(ErrInvalidContext, "platform %q has no devices", p.Name)
	}
	memLimit := p.devices[0].GlobalMemSize
	for _, d := range p.devices[1:] {
		memLimit = min(memLimit, d.GlobalMemSize)
	}
	ctx := &Context{
		platform: p,
		devices:  p.devices,
		memLimit: memLimit,
		buffers:  make(map[*Buffer]struct{}),
	}
	p.live.contexts.Add(1)
	return ctx, nil
}

// Platform returns the platform of the context.
func (c *Context) Platform() *Platform { return c.platform }

// Devices returns the devices bound to the context.
func (c *Context) Devices() []*Device { return c.devices }

// MemStats returns the bytes currently allocated and the peak allocation.
func (c *Context) MemStats() (allocated, peak int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated, c.peak
}

// Release frees any buffers still alive and invalidates the context.
// Releasing twice is a no-op.
func (c *Context) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	leftover := make([]*Buffer, 0, len(c.buffers))
	for b := range c.buffers {
		leftover = append(leftover, b)
	}
	c.mu.Unlock()

	for _, b := range leftover {
		_ = b.Release()
	}
	c.platform.live.contexts.Add(-1)
	return nil
}

func (c *Context) checkAlive(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.Wrapf(ErrReleased, "%s: context", op)
	}
	return nil
}

// CreateBuffer allocates size bytes of device memory. The size must be a
// positive multiple of 4 (one float32).
func (c *Context) CreateBuffer(flags MemFlags, size int) (*Buffer, error) {
	if flags != MemReadWrite && flags != MemWriteOnly && flags != MemReadOnly {
		return nil, errors.Wrapf(ErrInvalidValue, "CreateBuffer: flags %d", int(flags))
	}
	if size <= 0 || size%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidBufferSize, "CreateBuffer: %d bytes", size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, errors.Wrap(ErrReleased, "CreateBuffer: context")
	}
	aligned := int64((size + MemoryAlignment - 1) &^ (MemoryAlignment - 1))
	if c.allocated+aligned > c.memLimit {
		return nil, errors.Wrapf(ErrMemAllocationFailure,
			"CreateBuffer: %d bytes requested, %d of %d in use", size, c.allocated, c.memLimit)
	}
	b := &Buffer{
		ctx:     c,
		flags:   flags,
		size:    size,
		aligned: aligned,
		data:    make([]float32, size/4),
	}
	c.buffers[b] = struct{}{}
	c.allocated += aligned
	if c.allocated > c.peak {
		c.peak = c.allocated
	}
	c.platform.live.buffers.Add(1)
	return b, nil
}

// Buffer is a region of device memory holding float32 elements.
type Buffer struct {
	ctx     *Context
	flags   MemFlags
	size    int
	aligned int64
	data    []float32

	released bool // guarded by ctx.mu
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return b.size }

// Flags returns the access flags of the buffer.
func (b *Buffer) Flags() MemFlags { return b.flags }

// Context returns the context that owns the buffer.
func (b *Buffer) Context() *Context { return b.ctx }

// Release returns the memory to the context. Releasing twice is a no-op.
func (b *Buffer) Release() error {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	delete(c.buffers, b)
	c.allocated -= b.aligned
	b.data = nil
	c.platform.live.buffers.Add(-1)
	return nil
}

func (b *Buffer) isReleased() bool {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.released
}
