// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"strings"

	"github.com/LynnColeArt/gudabench/device"
)

// Engine computes C = 2*A*B. All backends share this signature so they can be
// swapped and benchmarked against each other in one run.
//
// Compute borrows a and b and returns a new matrix owned by the caller. It
// fails with a DimensionMismatch error, before doing any work, when the inputs
// are not square matrices of the same positive size.
type Engine interface {
	Backend() Backend
	Compute(a, b *Matrix) (*Matrix, error)
}

// FallbackReporter is implemented by engines that may degrade to the
// sequential reference algorithm. LastFallback reports whether the most
// recent Compute call did so.
type FallbackReporter interface {
	LastFallback() bool
}

// Backend tags one of the compute engines.
type Backend int

const (
	BackendReference Backend = iota
	BackendDataParallel
	BackendDeviceKernel
)

var backendNames = map[Backend]string{
	BackendReference:    "reference",
	BackendDataParallel: "data_parallel",
	BackendDeviceKernel: "device_kernel",
}

// String returns the configuration name of the backend.
func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend converts a configuration name into a Backend.
func ParseBackend(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for b, n := range backendNames {
		if n == name {
			return b, nil
		}
	}
	return 0, NewInvalidArgError("ParseBackend",
		fmt.Sprintf("unknown backend %q, valid values are reference, data_parallel and device_kernel", name))
}

// Descriptor selects a backend together with its configuration. It is
// created once per run and not modified afterward.
type Descriptor struct {
	Backend  Backend
	Parallel ParallelConfig
	Device   DeviceConfig
}

// Constructor builds an engine from its descriptor. The registry is only
// used by engines that talk to a device platform.
type Constructor func(desc Descriptor, registry *device.Registry) (Engine, error)

var registeredConstructors = make(map[Backend]Constructor)

// Register makes a backend constructor available to NewEngine.
//
// To be safe, call Register during initialization of a package.
func Register(backend Backend, constructor Constructor) {
	registeredConstructors[backend] = constructor
}

// NewEngine builds the engine described by desc.
func NewEngine(desc Descriptor, registry *device.Registry) (Engine, error) {
	constructor, found := registeredConstructors[desc.Backend]
	if !found {
		return nil, NewInvalidArgError("NewEngine", fmt.Sprintf("no constructor registered for backend %s", desc.Backend))
	}
	return constructor(desc, registry)
}
