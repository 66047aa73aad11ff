// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"

	"github.com/LynnColeArt/gudabench/device"
)

// DeviceConfig configures the device-kernel engine.
type DeviceConfig struct {
	// Platform is the index of the platform in the registry.
	Platform int `yaml:"platform"`

	// Device is the index, within the platform, of the device the command
	// queue runs on.
	Device int `yaml:"device"`

	// LocalSize is the number of work-items per work-group.
	LocalSize int `yaml:"local_size"`

	// KernelPath is the OpenCL C source file compiled at session setup.
	// Empty selects the built-in KernelSource.
	KernelPath string `yaml:"kernel_path,omitempty"`

	// Fused runs a single matmul_scale kernel; otherwise matmul is followed
	// by scale.
	Fused bool `yaml:"fused"`
}

// Validate checks the device knobs.
func (c DeviceConfig) Validate() error {
	const op = "DeviceConfig.Validate"
	switch {
	case c.Platform < 0:
		return NewInvalidArgError(op, fmt.Sprintf("platform index must be >= 0, got %d", c.Platform))
	case c.Device < 0:
		return NewInvalidArgError(op, fmt.Sprintf("device index must be >= 0, got %d", c.Device))
	case c.LocalSize <= 0 || c.LocalSize > MaxLocalSize:
		return NewInvalidArgError(op, fmt.Sprintf("local size must be in [1, %d], got %d", MaxLocalSize, c.LocalSize))
	}
	return nil
}

// DeviceKernel computes C = 2*A*B by compiling OpenCL C kernels for a
// device platform and running them over one work-item per output element.
//
// Every Compute call opens its own Session and releases it on return, on the
// success path as well as after a failure at any setup step.
type DeviceKernel struct {
	registry *device.Registry
	cfg      DeviceConfig
}

func init() {
	Register(BackendDeviceKernel, func(desc Descriptor, registry *device.Registry) (Engine, error) {
		if err := desc.Device.Validate(); err != nil {
			return nil, err
		}
		return NewDeviceKernel(registry, desc.Device), nil
	})
}

// NewDeviceKernel returns a device-kernel engine. A nil registry selects
// device.DefaultRegistry.
func NewDeviceKernel(registry *device.Registry, cfg DeviceConfig) *DeviceKernel {
	if registry == nil {
		registry = device.DefaultRegistry()
	}
	return &DeviceKernel{registry: registry, cfg: cfg}
}

// Backend implements Engine.
func (dk *DeviceKernel) Backend() Backend { return BackendDeviceKernel }

// Registry returns the platform registry the engine discovers from.
func (dk *DeviceKernel) Registry() *device.Registry { return dk.registry }

// Compute implements Engine.
func (dk *DeviceKernel) Compute(a, b *Matrix) (*Matrix, error) {
	if _, err := CheckSameSize(a, b); err != nil {
		return nil, err
	}
	sess, err := NewSession(dk.registry, dk.cfg, a, b)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	return sess.Run()
}
