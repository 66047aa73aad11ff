// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device provides an OpenCL-shaped compute platform that executes on
// the host CPU.
//
// The object model follows OpenCL: a Registry lists Platforms, a Platform
// owns Devices, a Context binds the devices of one platform and owns Buffers
// and Programs, a Program is compiled from kernel source and yields Kernels,
// and a CommandQueue executes kernels over an NDRange of work-items.
//
// Example usage:
//
//	platforms, _ := device.DefaultRegistry().Platforms()
//	ctx, _ := device.NewContext(platforms[0])
//	defer ctx.Release()
//
//	prog, _ := ctx.CreateProgramWithSource(src)
//	if err := prog.Build(); err != nil {
//		fmt.Println(prog.BuildLog())
//	}
//	kernel, _ := prog.CreateKernel("matmul_scale")
//	queue, _ := ctx.CreateCommandQueue(ctx.Devices()[0])
//	queue.EnqueueNDRangeKernel(kernel, device.NDRange{X: n * n}, device.NDRange{X: 64})
//	queue.EnqueueReadBuffer(c, true, host)
//
// Kernel source is parsed and validated, and every declared kernel is bound
// by name and signature to a native implementation from the platform's
// Library.
package device

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
)

// DefaultGlobalMemSize is the global memory reported by the CPU device.
const DefaultGlobalMemSize = 4 << 30

// DefaultMaxWorkGroupSize is the largest work-group the CPU device accepts.
const DefaultMaxWorkGroupSize = 1024

// DeviceType classifies a device.
type DeviceType int

const (
	DeviceTypeCPU DeviceType = iota
	DeviceTypeAccelerator
)

// String implements fmt.Stringer.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeAccelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// Device describes one compute device of a platform.
type Device struct {
	ID               int
	Name             string
	Type             DeviceType
	ComputeUnits     int   // Number of work-groups executed concurrently
	MaxWorkGroupSize int   // Maximum work-items per work-group
	GlobalMemSize    int64 // Bytes available for buffers
	Extensions       []string

	platform *Platform
}

// Platform returns the platform the device belongs to.
func (d *Device) Platform() *Platform { return d.platform }

// String implements fmt.Stringer.
func (d *Device) String() string {
	if len(d.Extensions) == 0 {
		return fmt.Sprintf("%s #%d (%s, %d compute units)", d.Name, d.ID, d.Type, d.ComputeUnits)
	}
	return fmt.Sprintf("%s #%d (%s, %d compute units, %s)", d.Name, d.ID, d.Type, d.ComputeUnits,
		strings.Join(d.Extensions, " "))
}

// HasExtension reports whether the device advertises the named extension.
func (d *Device) HasExtension(name string) bool {
	return slices.Contains(d.Extensions, name)
}

// Stats counts the live objects created from a registry's platforms.
type Stats struct {
	Contexts int64
	Programs int64
	Kernels  int64
	Buffers  int64
	Queues   int64
}

// Total returns the number of live objects of all kinds.
func (s Stats) Total() int64 {
	return s.Contexts + s.Programs + s.Kernels + s.Buffers + s.Queues
}

type counters struct {
	contexts, programs, kernels, buffers, queues atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Contexts: c.contexts.Load(),
		Programs: c.programs.Load(),
		Kernels:  c.kernels.Load(),
		Buffers:  c.buffers.Load(),
		Queues:   c.queues.Load(),
	}
}

// Platform groups devices that share a driver and a native kernel library.
type Platform struct {
	Name    string
	Vendor  string
	Version string

	// Unavailable marks a platform that is listed but refuses to build
	// contexts, e.g. a configured accelerator whose driver is absent.
	Unavailable bool

	devices []*Device
	library *Library
	live    *counters
}

// NewPlatform creates a platform with the given devices and kernel library.
// A nil library selects DefaultLibrary.
func NewPlatform(name, vendor string, library *Library, devices ...*Device) *Platform {
	if library == nil {
		library = DefaultLibrary()
	}
	p := &Platform{
		Name:    name,
		Vendor:  vendor,
		Version: "OpenCL 1.2 gudabench",
		library: library,
		live:    &counters{},
	}
	for i, d := range devices {
		d.ID = i
		d.platform = p
		p.devices = append(p.devices, d)
	}
	return p
}

// CPUPlatform returns a platform with a single device backed by all host
// CPUs.
func CPUPlatform(name string) *Platform {
	return NewPlatform(name, "GUDA", nil, &Device{
		Name:             fmt.Sprintf("%s/%s CPU", runtime.GOOS, runtime.GOARCH),
		Type:             DeviceTypeCPU,
		ComputeUnits:     runtime.NumCPU(),
		MaxWorkGroupSize: DefaultMaxWorkGroupSize,
		GlobalMemSize:    DefaultGlobalMemSize,
		Extensions:       cpuExtensions(),
	})
}

// Devices returns the devices of the platform.
func (p *Platform) Devices() []*Device { return p.devices }

// Library returns the native kernel library programs are bound against.
func (p *Platform) Library() *Library { return p.library }

// Stats returns the live object counters of the platform.
func (p *Platform) Stats() Stats { return p.live.stats() }

// String implements fmt.Stringer.
func (p *Platform) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Vendor)
}

// Registry is the configured set of platforms. Which platforms exist is a
// configuration input; nothing is probed from the system.
type Registry struct {
	platforms []*Platform
	live      counters
}

// NewRegistry returns a registry listing the given platforms. All of them
// share the registry's live object counters.
func NewRegistry(platforms ...*Platform) *Registry {
	r := &Registry{}
	for _, p := range platforms {
		p.live = &r.live
		r.platforms = append(r.platforms, p)
	}
	return r
}

// DefaultRegistry returns a registry with one CPU platform.
func DefaultRegistry() *Registry {
	return NewRegistry(CPUPlatform("GUDA CPU"))
}

// Platforms returns the registered platforms, or ErrNoPlatform if there are
// none.
func (r *Registry) Platforms() ([]*Platform, error) {
	if r == nil || len(r.platforms) == 0 {
		return nil, ErrNoPlatform
	}
	return r.platforms, nil
}

// Stats returns the number of live objects created through the registry.
func (r *Registry) Stats() Stats { return r.live.stats() }
