// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/LynnColeArt/gudabench/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SessionState is the position of a Session in the device pipeline.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StatePlatformDiscovered
	StateContextBuilt
	StateProgramCompiled
	StateBuffersAllocated
	StateEnqueued
	StateResultsRead
	StateReleased
)

var stateNames = [...]string{
	"Uninitialized",
	"PlatformDiscovered",
	"ContextBuilt",
	"ProgramCompiled",
	"BuffersAllocated",
	"Enqueued",
	"ResultsRead",
	"Released",
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

var liveSessions atomic.Int64

// LiveSessions returns the number of sessions opened and not yet released.
func LiveSessions() int64 { return liveSessions.Load() }

// Session owns every device resource of one device-kernel compute call:
// platform, context, queue, program, kernels and buffers. It moves through
// the states
//
//	Uninitialized -> PlatformDiscovered -> ContextBuilt -> ProgramCompiled ->
//	BuffersAllocated -> Enqueued -> ResultsRead -> Released
//
// and Release tears down whatever was acquired, from any state.
//
// A Session is not safe for concurrent use, and no two sessions share a
// context.
type Session struct {
	registry *device.Registry
	cfg      DeviceConfig
	state    SessionState

	platform *device.Platform
	device   *device.Device
	ctx      *device.Context
	queue    *device.CommandQueue
	program  *device.Program
	kernels  map[string]*device.Kernel
	bufA     *device.Buffer
	bufB     *device.Buffer
	bufC     *device.Buffer
	size     int
}

// OpenSession returns a session in the Uninitialized state. The caller must
// call Release.
func OpenSession(registry *device.Registry, cfg DeviceConfig) *Session {
	liveSessions.Add(1)
	return &Session{registry: registry, cfg: cfg, kernels: make(map[string]*device.Kernel)}
}

// NewSession opens a session and runs discovery, context creation,
// compilation and buffer allocation for inputs a and b. On failure whatever
// was acquired is released before returning.
func NewSession(registry *device.Registry, cfg DeviceConfig, a, b *Matrix) (*Session, error) {
	s := OpenSession(registry, cfg)
	err := s.DiscoverPlatforms()
	if err == nil {
		err = s.BuildContext()
	}
	if err == nil {
		err = s.CompileProgram(cfg.KernelPath)
	}
	if err == nil {
		err = s.AllocateBuffers(a, b)
	}
	if err != nil {
		_ = s.Release()
		return nil, err
	}
	return s, nil
}

// State returns the current state.
func (s *Session) State() SessionState { return s.state }

// Device returns the device the session executes on, once the context is
// built.
func (s *Session) Device() *device.Device { return s.device }

func (s *Session) advance(op string, to SessionState, from ...SessionState) error {
	for _, f := range from {
		if s.state == f {
			klog.V(2).Infof("device session: %s -> %s", s.state, to)
			s.state = to
			return nil
		}
	}
	return NewInvalidArgError(op, fmt.Sprintf("session is %s, expected %v", s.state, from))
}

func (s *Session) expect(op string, states ...SessionState) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return NewInvalidArgError(op, fmt.Sprintf("session is %s, expected %v", s.state, states))
}

// DiscoverPlatforms enumerates the configured platforms and selects the one
// at DeviceConfig.Platform.
func (s *Session) DiscoverPlatforms() error {
	const op = "Session.DiscoverPlatforms"
	if err := s.expect(op, StateUninitialized); err != nil {
		return err
	}
	platforms, err := s.registry.Platforms()
	if err != nil {
		return NewNoPlatformError(op, "no compute platform found", err)
	}
	klog.V(1).Infof("Platform count: %d", len(platforms))
	for _, p := range platforms {
		klog.V(1).Infof("Platform from: %s", p.Vendor)
	}
	if s.cfg.Platform < 0 || s.cfg.Platform >= len(platforms) {
		return NewNoPlatformError(op,
			fmt.Sprintf("platform index %d out of range, %d platform(s) found", s.cfg.Platform, len(platforms)), nil)
	}
	s.platform = platforms[s.cfg.Platform]
	return s.advance(op, StatePlatformDiscovered, StateUninitialized)
}

// BuildContext creates a context over all devices of the selected platform
// and a command queue on the device at DeviceConfig.Device.
func (s *Session) BuildContext() error {
	const op = "Session.BuildContext"
	if err := s.expect(op, StatePlatformDiscovered); err != nil {
		return err
	}
	ctx, err := device.NewContext(s.platform)
	if err != nil {
		return NewContextError(op, fmt.Sprintf("platform %s rejected the context", s.platform), err)
	}
	s.ctx = ctx
	devices := ctx.Devices()
	klog.V(1).Infof("Device count: %d", len(devices))
	for i, d := range devices {
		klog.V(1).Infof("Device #%d: %s", i, d.Name)
	}
	if s.cfg.Device < 0 || s.cfg.Device >= len(devices) {
		return NewContextError(op,
			fmt.Sprintf("device index %d out of range, platform has %d device(s)", s.cfg.Device, len(devices)), nil)
	}
	s.device = devices[s.cfg.Device]
	if s.cfg.LocalSize > s.device.MaxWorkGroupSize {
		return NewContextError(op,
			fmt.Sprintf("local size %d exceeds the device maximum %d", s.cfg.LocalSize, s.device.MaxWorkGroupSize), nil)
	}
	queue, err := ctx.CreateCommandQueue(s.device)
	if err != nil {
		return NewContextError(op, "creating command queue", err)
	}
	s.queue = queue
	return s.advance(op, StateContextBuilt, StatePlatformDiscovered)
}

// kernelNames returns the kernels the configured pipeline enqueues.
func (s *Session) kernelNames() []string {
	if s.cfg.Fused {
		return []string{"matmul_scale"}
	}
	return []string{"matmul", "scale"}
}

// CompileProgram reads the kernel source at path, builds it for the
// context's devices and creates the kernels the pipeline needs. An empty
// path compiles the built-in KernelSource.
func (s *Session) CompileProgram(path string) error {
	const op = "Session.CompileProgram"
	if err := s.expect(op, StateContextBuilt); err != nil {
		return err
	}
	source := kernelSource
	if path == "" {
		path = "<built-in>"
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return NewCompileError(op, fmt.Sprintf("reading kernel source %q", path), err, "")
		}
		source = string(data)
	}
	program, err := s.ctx.CreateProgramWithSource(source)
	if err != nil {
		return NewCompileError(op, "creating program", err, "")
	}
	s.program = program
	if err := program.Build(); err != nil {
		var buildErr *device.BuildError
		log := program.BuildLog()
		if errors.As(err, &buildErr) {
			log = buildErr.Log()
		}
		return NewCompileError(op, fmt.Sprintf("building %q", path), err, log)
	}
	for _, name := range s.kernelNames() {
		kernel, err := program.CreateKernel(name)
		if err != nil {
			return NewCompileError(op, fmt.Sprintf("kernel %q missing from %q", name, path), err, "")
		}
		s.kernels[name] = kernel
	}
	return s.advance(op, StateProgramCompiled, StateContextBuilt)
}

// AllocateBuffers creates the device buffers, read-only for a and b and
// read-write for the result, and queues the uploads of a and b.
func (s *Session) AllocateBuffers(a, b *Matrix) error {
	const op = "Session.AllocateBuffers"
	if err := s.expect(op, StateProgramCompiled); err != nil {
		return err
	}
	n, err := CheckSameSize(a, b)
	if err != nil {
		return err
	}
	bytes := n * n * 4
	if s.bufA, err = s.ctx.CreateBuffer(device.MemReadOnly, bytes); err != nil {
		return NewAllocationError(op, "buffer a", err)
	}
	if s.bufB, err = s.ctx.CreateBuffer(device.MemReadOnly, bytes); err != nil {
		return NewAllocationError(op, "buffer b", err)
	}
	if s.bufC, err = s.ctx.CreateBuffer(device.MemReadWrite, bytes); err != nil {
		return NewAllocationError(op, "buffer c", err)
	}
	s.size = n
	if err := s.queue.EnqueueWriteBuffer(s.bufA, false, a.data); err != nil {
		return NewExecutionError(op, "uploading a", err)
	}
	if err := s.queue.EnqueueWriteBuffer(s.bufB, false, b.data); err != nil {
		return NewExecutionError(op, "uploading b", err)
	}
	return s.advance(op, StateBuffersAllocated, StateProgramCompiled)
}

// Enqueue binds args to the named kernel and queues it over global
// work-items in work-groups of local. global must be a multiple of local.
func (s *Session) Enqueue(kernelName string, global, local int, args ...any) error {
	const op = "Session.Enqueue"
	if err := s.expect(op, StateBuffersAllocated, StateEnqueued); err != nil {
		return err
	}
	kernel, ok := s.kernels[kernelName]
	if !ok {
		return NewInvalidArgError(op, fmt.Sprintf("kernel %q was not compiled for this session", kernelName))
	}
	for i, arg := range args {
		if err := kernel.SetArg(i, arg); err != nil {
			return NewExecutionError(op, fmt.Sprintf("%s argument %d", kernelName, i), err)
		}
	}
	if err := s.queue.EnqueueNDRangeKernel(kernel, device.NDRange{X: global}, device.NDRange{X: local}); err != nil {
		return NewExecutionError(op, fmt.Sprintf("enqueueing %s", kernelName), err)
	}
	return s.advance(op, StateEnqueued, StateBuffersAllocated, StateEnqueued)
}

// Run enqueues the configured pipeline, C = 2*A*B, and reads the result
// back. The global size is size*size rounded up to a multiple of the local
// size; the kernels ignore the padding.
func (s *Session) Run() (*Matrix, error) {
	n, local := s.size, s.cfg.LocalSize
	global := (n*n + local - 1) / local * local
	if s.cfg.Fused {
		if err := s.Enqueue("matmul_scale", global, local,
			s.bufA, s.bufB, s.bufC, uint32(n), float32(2)); err != nil {
			return nil, err
		}
	} else {
		if err := s.Enqueue("matmul", global, local,
			s.bufA, s.bufB, s.bufC, uint32(n)); err != nil {
			return nil, err
		}
		if err := s.Enqueue("scale", global, local,
			s.bufC, uint32(n*n), float32(2)); err != nil {
			return nil, err
		}
	}
	return s.ReadBack()
}

// ReadBack blocks until the queue drains and copies the result to a new host
// matrix.
func (s *Session) ReadBack() (*Matrix, error) {
	const op = "Session.ReadBack"
	if err := s.expect(op, StateEnqueued); err != nil {
		return nil, err
	}
	c, err := NewMatrix(s.size)
	if err != nil {
		return nil, err
	}
	if err := s.queue.EnqueueReadBuffer(s.bufC, true, c.data); err != nil {
		return nil, NewExecutionError(op, "reading result", err)
	}
	if err := s.advance(op, StateResultsRead, StateEnqueued); err != nil {
		return nil, err
	}
	return c, nil
}

// Release tears down the queue, kernels, buffers, program and context,
// whichever were acquired. It is safe to call from any state and more than
// once.
func (s *Session) Release() error {
	if s.state == StateReleased {
		return nil
	}
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if s.queue != nil {
		keep(s.queue.Release())
	}
	for _, k := range s.kernels {
		keep(k.Release())
	}
	for _, buf := range []*device.Buffer{s.bufC, s.bufB, s.bufA} {
		if buf != nil {
			keep(buf.Release())
		}
	}
	if s.program != nil {
		keep(s.program.Release())
	}
	if s.ctx != nil {
		keep(s.ctx.Release())
	}
	klog.V(2).Infof("device session: %s -> %s", s.state, StateReleased)
	s.state = StateReleased
	s.queue, s.program, s.ctx = nil, nil, nil
	s.bufA, s.bufB, s.bufC = nil, nil, nil
	clear(s.kernels)
	liveSessions.Add(-1)
	if len(errs) > 0 {
		return NewExecutionError("Session.Release", "releasing device resources", errs[0])
	}
	return nil
}
