// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"time"

	"github.com/LynnColeArt/gudabench/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TimingResult is the outcome of one backend in a run.
type TimingResult struct {
	Backend string `json:"backend"`

	// Elapsed is the wall-clock time of each Compute call, in order.
	Elapsed []time.Duration `json:"elapsed_ns"`

	// Fallback is set when the engine ran on the reference path instead.
	Fallback bool `json:"fallback,omitempty"`

	// Skipped is set when the backend could not be set up.
	Skipped bool `json:"skipped,omitempty"`

	Err      string  `json:"error,omitempty"`
	Checksum float64 `json:"checksum"`
}

// Best returns the fastest recorded call, or 0 if none completed.
func (r TimingResult) Best() time.Duration {
	var best time.Duration
	for i, d := range r.Elapsed {
		if i == 0 || d < best {
			best = d
		}
	}
	return best
}

// Milliseconds returns Best in milliseconds.
func (r TimingResult) Milliseconds() float64 {
	return float64(r.Best()) / float64(time.Millisecond)
}

// Microseconds returns Best in microseconds.
func (r TimingResult) Microseconds() float64 {
	return float64(r.Best()) / float64(time.Microsecond)
}

// Failed reports whether the backend produced no verified result.
func (r TimingResult) Failed() bool { return r.Err != "" && !r.Skipped }

// Report collects the results of a run.
type Report struct {
	// Version is the gudabench module version that produced the report.
	Version   string         `json:"version,omitempty"`
	Size      int            `json:"size"`
	Seed      uint64         `json:"seed"`
	MaxValue  int            `json:"max_value"`
	Reference TimingResult   `json:"reference"`
	Results   []TimingResult `json:"results"`
}

// Result returns the entry of the named backend.
func (r *Report) Result(backend string) (TimingResult, bool) {
	for _, res := range r.Results {
		if res.Backend == backend {
			return res, true
		}
	}
	return TimingResult{}, false
}

// Harness generates the inputs of a run, computes the reference and runs
// every configured backend against it, one after the other.
type Harness struct {
	cfg     Config
	engines []Engine
}

// NewHarness validates cfg and builds the engines of its backend list. A nil
// registry selects device.DefaultRegistry.
func NewHarness(cfg Config, registry *device.Registry) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = device.DefaultRegistry()
	}
	descs, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	engines := make([]Engine, 0, len(descs))
	for _, desc := range descs {
		engine, err := NewEngine(desc, registry)
		if err != nil {
			return nil, errors.WithMessagef(err, "building %s engine", desc.Backend)
		}
		engines = append(engines, engine)
	}
	return &Harness{cfg: cfg, engines: engines}, nil
}

// NewHarnessWithEngines runs the given engines instead of the ones named by
// cfg.Backends.
func NewHarnessWithEngines(cfg Config, engines ...Engine) (*Harness, error) {
	if len(engines) == 0 {
		return nil, NewInvalidArgError("NewHarnessWithEngines", "no engines")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Harness{cfg: cfg, engines: engines}, nil
}

// Config returns the validated configuration.
func (h *Harness) Config() Config { return h.cfg }

// Run executes the benchmark. A verification mismatch stops the run and is
// returned together with the partial report; setup failures skip the backend
// and every other failure is recorded on its result.
func (h *Harness) Run() (*Report, error) {
	a, b, err := GenerateInputs(h.cfg.Size, h.cfg.Seed, h.cfg.MaxValue)
	if err != nil {
		return nil, err
	}
	report := &Report{Size: h.cfg.Size, Seed: h.cfg.Seed, MaxValue: h.cfg.MaxValue}
	report.Version, _ = Version()

	start := time.Now()
	ref, err := Reference{}.Compute(a, b)
	if err != nil {
		return nil, errors.WithMessage(err, "computing reference")
	}
	report.Reference = TimingResult{
		Backend:  BackendReference.String(),
		Elapsed:  []time.Duration{time.Since(start)},
		Checksum: ref.Checksum(),
	}
	klog.Infof("%s: %.3f ms", report.Reference.Backend, report.Reference.Milliseconds())

	tol := h.cfg.Tolerance()
	for _, engine := range h.engines {
		result, err := h.runEngine(engine, a, b, ref, tol)
		report.Results = append(report.Results, result)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// runEngine runs one backend. Only verification failures are returned.
func (h *Harness) runEngine(engine Engine, a, b, ref *Matrix, tol Tolerance) (TimingResult, error) {
	name := engine.Backend().String()
	result := TimingResult{Backend: name}

	var first *Matrix
	for i := 0; i < h.cfg.Repeats; i++ {
		start := time.Now()
		c, err := engine.Compute(a, b)
		elapsed := time.Since(start)
		if err != nil {
			result.Err = err.Error()
			if IsSetupError(err) {
				result.Skipped = true
				klog.Warningf("Skipping backend %s: %v", name, err)
			} else {
				klog.Errorf("Backend %s failed: %v", name, err)
			}
			return result, nil
		}
		result.Elapsed = append(result.Elapsed, elapsed)
		if fr, ok := engine.(FallbackReporter); ok && fr.LastFallback() {
			result.Fallback = true
		}

		if first == nil {
			first = c
			continue
		}
		// Repeated calls on the same inputs must agree.
		if err := Verify(name, first, c, tol); err != nil {
			result.Err = fmt.Sprintf("call %d differs from call 1: %v", i+1, err)
			klog.Errorf("Backend %s is not idempotent: %v", name, err)
			return result, stopOnMismatch(err)
		}
	}

	result.Checksum = first.Checksum()
	if klog.V(1).Enabled() {
		var p Parity
		p.CompareSlices(ref.Data(), first.Data(), tol)
		klog.V(1).Infof("%s parity: %s", name, p)
	}
	if err := Verify(name, ref, first, tol); err != nil {
		result.Err = err.Error()
		klog.Errorf("Verification failed: %v", err)
		return result, stopOnMismatch(err)
	}
	klog.Infof("%s: %.3f ms (%.0f µs)", name, result.Milliseconds(), result.Microseconds())
	return result, nil
}

// stopOnMismatch keeps only errors that end the run.
func stopOnMismatch(err error) error {
	if IsVerificationError(err) {
		return err
	}
	return nil
}
