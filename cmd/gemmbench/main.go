// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gemmbench computes C = 2*A*B on every selected backend, times each
// one and verifies it against the sequential reference.
//
// Exit status is 1 when a backend diverges from the reference and 2 when the
// configuration is invalid.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/LynnColeArt/gudabench"
	"github.com/LynnColeArt/gudabench/device"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

const (
	exitMismatch = 1
	exitConfig   = 2
)

var (
	flagConfig    = flag.String("config", "", "YAML configuration file, applied before the other flags")
	flagSize      = flag.Int("size", gudabench.DefaultSize, "Matrix dimension n")
	flagSeed      = flag.Uint64("seed", gudabench.DefaultSeed, "Input generator seed")
	flagMaxValue  = flag.Int("max_value", gudabench.DefaultMaxValue, "Inputs are integers in [0, max_value)")
	flagBackends  = flag.String("backends", "", "Comma separated backends. Defaults to $"+gudabench.BackendsEnv+" or all of them")
	flagParallel  = flag.Bool("parallel", true, "Enable the data-parallel engine; when false it falls back to the reference")
	flagWorkers   = flag.Int("workers", 0, "Data-parallel workers, 0 for one per CPU")
	flagPlatform  = flag.Int("platform", 0, "Device platform index")
	flagDevice    = flag.Int("device", 0, "Device index within the platform")
	flagLocalSize = flag.Int("local_size", gudabench.DefaultLocalSize, "Work-items per work-group")
	flagKernel    = flag.String("kernel", "", "OpenCL C kernel source file (default: built-in kernels)")
	flagFused     = flag.Bool("fused", true, "Run the fused matmul_scale kernel instead of matmul followed by scale")
	flagRepeats   = flag.Int("repeats", gudabench.DefaultRepeats, "Compute calls per backend")
	flagRelTol    = flag.Float64("rel_tol", gudabench.DefaultRelTol, "Relative tolerance against max(1, |reference|)")
	flagReportDir = flag.String("report_dir", "", "Write a JSON session file to this directory")
	flagVersion   = flag.Bool("version", false, "Print the gudabench version and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagVersion {
		version, sum := gudabench.Version()
		if version == "" {
			version = "unknown"
		}
		fmt.Println("gudabench", version, sum)
		return
	}
	os.Exit(run())
}

func run() int {
	defer klog.Flush()

	cfg, err := buildConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return exitConfig
	}

	registry := device.DefaultRegistry()
	logPlatforms(registry)

	h, err := gudabench.NewHarness(cfg, registry)
	if err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return exitConfig
	}
	n := cfg.Size
	bytes := uint64(n) * uint64(n) * 4
	fmt.Printf("C = 2*A*B, n=%d (%s elements, %s per matrix)\n",
		n, humanize.Comma(int64(n)*int64(n)), humanize.IBytes(bytes))

	report, runErr := h.Run()
	if report != nil {
		printReport(report, cfg.Repeats)
		if cfg.ReportDir != "" {
			if err := writeReport(cfg.ReportDir, report, runErr); err != nil {
				klog.Errorf("Writing report: %v", err)
			}
		}
	}
	if runErr != nil {
		if m, ok := gudabench.AsMismatch(runErr); ok {
			fmt.Printf("Error: %s\n", m)
		} else {
			fmt.Printf("Error: %v\n", runErr)
		}
		return exitMismatch
	}
	fmt.Println("Success!")
	return 0
}

// buildConfig loads -config, if given, and applies every flag set on the
// command line on top of it.
func buildConfig() (gudabench.Config, error) {
	cfg := gudabench.DefaultConfig()
	if *flagConfig != "" {
		var err error
		if cfg, err = gudabench.LoadConfig(*flagConfig); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "size":
			cfg.Size = *flagSize
		case "seed":
			cfg.Seed = *flagSeed
		case "max_value":
			cfg.MaxValue = *flagMaxValue
		case "backends":
			cfg.Backends = gudabench.SplitBackends(*flagBackends)
		case "parallel":
			cfg.UseParallel = *flagParallel
		case "workers":
			cfg.Workers = *flagWorkers
		case "platform":
			cfg.Device.Platform = *flagPlatform
		case "device":
			cfg.Device.Device = *flagDevice
		case "local_size":
			cfg.Device.LocalSize = *flagLocalSize
		case "kernel":
			cfg.Device.KernelPath = *flagKernel
		case "fused":
			cfg.Device.Fused = *flagFused
		case "repeats":
			cfg.Repeats = *flagRepeats
		case "rel_tol":
			cfg.RelTol = float32(*flagRelTol)
		case "report_dir":
			cfg.ReportDir = *flagReportDir
		}
	})
	return cfg, nil
}

func logPlatforms(registry *device.Registry) {
	platforms, err := registry.Platforms()
	if err != nil {
		klog.Warningf("No device platform: %v", err)
		return
	}
	klog.Infof("Platform count: %d", len(platforms))
	for _, p := range platforms {
		klog.Infof("Platform from %s: %s", p.Vendor, p.Name)
		for _, d := range p.Devices() {
			klog.V(1).Infof("  %s, global memory %s", d, humanize.IBytes(uint64(d.GlobalMemSize)))
			if len(d.Extensions) > 0 {
				klog.Infof("Device %s extensions: %s", d.Name, strings.Join(d.Extensions, " "))
			}
		}
	}
}

func printReport(report *gudabench.Report, repeats int) {
	printTiming(report.Reference)
	for _, r := range report.Results {
		switch {
		case r.Skipped:
			fmt.Printf("%-14s skipped: %s\n", r.Backend, r.Err)
		case r.Failed():
			fmt.Printf("%-14s failed: %s\n", r.Backend, r.Err)
		default:
			printTiming(r)
		}
	}
	if repeats > 1 {
		fmt.Printf("(best of %d calls)\n", repeats)
	}
}

func printTiming(r gudabench.TimingResult) {
	suffix := ""
	if r.Fallback {
		suffix = " (reference fallback)"
	}
	fmt.Printf("%-14s %10.3f ms %12.0f µs%s\n", r.Backend+":", r.Milliseconds(), r.Microseconds(), suffix)
}

func writeReport(dir string, report *gudabench.Report, runErr error) error {
	logger, err := gudabench.NewReportLogger(dir, "gemmbench")
	if err != nil {
		return err
	}
	if err := logger.Log(report, runErr); err != nil {
		return err
	}
	klog.Infof("Report written to %s", logger.Path())
	return nil
}
