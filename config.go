// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Problem defaults
const (
	// Matrix dimension used when none is configured
	DefaultSize = 1024

	// Input values are integers drawn from [0, DefaultMaxValue)
	DefaultMaxValue = 1024

	// Largest accepted max_value; every integer below it is exact in float32
	MaxInputValue = 1 << 24

	// Seed for the input generator
	DefaultSeed = 1

	// Largest accepted matrix dimension
	MaxMatrixSize = 8192

	// Largest host buffer NewMatrix hands out, in elements
	MaxElements = MaxMatrixSize * MaxMatrixSize
)

// Device pipeline defaults
const (
	// Work-items per work-group
	DefaultLocalSize = 64

	// Upper bound accepted for the local size knob
	MaxLocalSize = 1024
)

// Data-parallel tuning
const (
	// Rows handed to one worker task at a time
	RowStripSize = 16

	// Elements handed to one worker task by the scale dispatch
	ScaleChunkSize = 64 * 1024

	// Below this dimension the data-parallel engine stays on one goroutine
	DefaultMinParallelSize = 32
)

// Verification defaults
const (
	// Relative tolerance per element, against max(1, |reference|)
	DefaultRelTol = 1e-3

	// Number of compute calls per backend
	DefaultRepeats = 1
)

// BackendsEnv is the environment variable with the default, comma separated,
// list of backends to run. E.g.: "reference,data_parallel".
const BackendsEnv = "GUDABENCH_BACKENDS"

// Config holds every externally tunable knob of a benchmark run. It is
// validated once at startup and never changed afterward.
type Config struct {
	Size        int          `yaml:"size"`
	Seed        uint64       `yaml:"seed"`
	MaxValue    int          `yaml:"max_value"`
	Backends    []string     `yaml:"backends"`
	UseParallel bool         `yaml:"use_parallel"`
	Workers     int          `yaml:"workers"`
	Device      DeviceConfig `yaml:"device"`
	Repeats     int          `yaml:"repeats"`
	RelTol      float32      `yaml:"rel_tol"`
	ReportDir   string       `yaml:"report_dir"`
}

// DefaultConfig returns the default configuration.
//
// The backend list comes from $GUDABENCH_BACKENDS if set, otherwise all
// backends are selected.
func DefaultConfig() Config {
	backends := []string{BackendReference.String(), BackendDataParallel.String(), BackendDeviceKernel.String()}
	if env, found := os.LookupEnv(BackendsEnv); found && strings.TrimSpace(env) != "" {
		backends = SplitBackends(env)
	}
	return Config{
		Size:        DefaultSize,
		Seed:        DefaultSeed,
		MaxValue:    DefaultMaxValue,
		Backends:    backends,
		UseParallel: true,
		Device: DeviceConfig{
			LocalSize: DefaultLocalSize,
			Fused:     true,
		},
		Repeats: DefaultRepeats,
		RelTol:  DefaultRelTol,
	}
}

// SplitBackends splits a comma separated list of backend names.
func SplitBackends(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %q", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %q", path)
	}
	return cfg, nil
}

// Parallel returns the data-parallel engine configuration.
func (c Config) Parallel() ParallelConfig {
	return ParallelConfig{
		Enabled: c.UseParallel,
		Workers: c.Workers,
		MinSize: DefaultMinParallelSize,
	}
}

// Tolerance returns the verification tolerance.
func (c Config) Tolerance() Tolerance {
	return Tolerance{RelTol: c.RelTol}
}

// Descriptors parses the backend list into immutable descriptors.
func (c Config) Descriptors() ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(c.Backends))
	for _, name := range c.Backends {
		backend, err := ParseBackend(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, Descriptor{
			Backend:  backend,
			Parallel: c.Parallel(),
			Device:   c.Device,
		})
	}
	return descs, nil
}

// Validate checks every knob.
func (c Config) Validate() error {
	const op = "Config.Validate"
	switch {
	case c.Size <= 0 || c.Size > MaxMatrixSize:
		return NewInvalidArgError(op, fmt.Sprintf("size must be in [1, %d], got %d", MaxMatrixSize, c.Size))
	case c.MaxValue <= 0 || c.MaxValue > MaxInputValue:
		return NewInvalidArgError(op, fmt.Sprintf("max_value must be in [1, %d], got %d", MaxInputValue, c.MaxValue))
	case len(c.Backends) == 0:
		return NewInvalidArgError(op, "no backends selected")
	case c.Workers < 0:
		return NewInvalidArgError(op, fmt.Sprintf("workers must be >= 0, got %d", c.Workers))
	case c.Repeats < 1:
		return NewInvalidArgError(op, fmt.Sprintf("repeats must be >= 1, got %d", c.Repeats))
	case c.RelTol < 0:
		return NewInvalidArgError(op, fmt.Sprintf("rel_tol must be >= 0, got %g", c.RelTol))
	}
	descs, err := c.Descriptors()
	if err != nil {
		return err
	}
	seen := make(map[Backend]bool, len(descs))
	for _, d := range descs {
		if seen[d.Backend] {
			return NewInvalidArgError(op, fmt.Sprintf("backend %s selected twice", d.Backend))
		}
		seen[d.Backend] = true
		if d.Backend == BackendDeviceKernel {
			if err := c.Device.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}
