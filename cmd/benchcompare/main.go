// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command benchcompare compares a gemmbench session file against a baseline
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/LynnColeArt/gudabench"
	"k8s.io/klog/v2"
)

// ComparisonResult is the verdict for one backend.
type ComparisonResult struct {
	Backend string
	Status  string // "PASS", "FAIL", "SLOWER", "FASTER"

	BaselineDuration time.Duration
	CurrentDuration  time.Duration
	SpeedupFactor    float64

	ChecksumDiff float64
	Message      string
}

func main() {
	klog.InitFlags(nil)
	var (
		baselineFile = flag.String("baseline", "baseline.json", "Baseline session file")
		currentFile  = flag.String("current", "current.json", "Current session file")
		tolerance    = flag.Float64("tol", 0, "Checksum tolerance, relative to the baseline checksum")
		perfRegress  = flag.Float64("perf-regress", 1.1, "Performance regression threshold (1.1 = 10% slower)")
	)
	flag.Parse()
	defer klog.Flush()

	baseline, err := gudabench.LatestReport(*baselineFile)
	if err != nil {
		klog.Exitf("Failed to load baseline: %v", err)
	}
	current, err := gudabench.LatestReport(*currentFile)
	if err != nil {
		klog.Exitf("Failed to load current results: %v", err)
	}
	if baseline.Size != current.Size || baseline.Seed != current.Seed || baseline.MaxValue != current.MaxValue {
		klog.Exitf("Reports are not comparable: baseline size=%d seed=%d max_value=%d, current size=%d seed=%d max_value=%d",
			baseline.Size, baseline.Seed, baseline.MaxValue, current.Size, current.Seed, current.MaxValue)
	}

	if baseline.Version != current.Version {
		klog.Infof("Comparing gudabench %q against baseline %q", current.Version, baseline.Version)
	}
	comparisons := compareReports(baseline, current, *tolerance, *perfRegress)
	printSummary(os.Stdout, comparisons)

	// Exit with error if any failures
	for _, comp := range comparisons {
		if comp.Status == "FAIL" {
			klog.Flush()
			os.Exit(1)
		}
	}
}

func compareReports(baseline, current *gudabench.Report, tolerance, perfRegress float64) []ComparisonResult {
	comparisons := make([]ComparisonResult, 0, len(baseline.Results))
	for _, base := range baseline.Results {
		if base.Skipped || base.Failed() {
			continue
		}
		comp := ComparisonResult{
			Backend:          base.Backend,
			BaselineDuration: base.Best(),
		}

		curr, exists := current.Result(base.Backend)
		switch {
		case !exists:
			comp.Status = "FAIL"
			comp.Message = "Backend missing in current results"
		case curr.Skipped || curr.Failed():
			comp.Status = "FAIL"
			comp.Message = fmt.Sprintf("Backend did not complete: %s", curr.Err)
		}
		if comp.Status != "" {
			comparisons = append(comparisons, comp)
			continue
		}

		comp.CurrentDuration = curr.Best()
		if comp.CurrentDuration > 0 {
			comp.SpeedupFactor = float64(comp.BaselineDuration) / float64(comp.CurrentDuration)
		}

		// Check performance regression
		if comp.SpeedupFactor > 0 && comp.SpeedupFactor < 1.0/perfRegress {
			comp.Status = "SLOWER"
			comp.Message = fmt.Sprintf("Performance regression: %.2fx slower", 1.0/comp.SpeedupFactor)
		} else if comp.SpeedupFactor > 1.2 {
			comp.Status = "FASTER"
			comp.Message = fmt.Sprintf("Performance improvement: %.2fx faster", comp.SpeedupFactor)
		}

		// Same inputs must give the same checksum.
		comp.ChecksumDiff = math.Abs(base.Checksum - curr.Checksum)
		if comp.ChecksumDiff > tolerance*math.Max(1, math.Abs(base.Checksum)) {
			comp.Status = "FAIL"
			comp.Message = fmt.Sprintf("Checksum drift: %.6e (baseline %.6e)", comp.ChecksumDiff, base.Checksum)
		}

		if comp.Status == "" {
			comp.Status = "PASS"
		}
		comparisons = append(comparisons, comp)
	}
	return comparisons
}

func printSummary(w io.Writer, comparisons []ComparisonResult) {
	fmt.Fprintln(w, "=== gudabench Comparison ===")
	fmt.Fprintln(w)

	statusCount := make(map[string]int)
	for _, comp := range comparisons {
		statusCount[comp.Status]++
	}
	fmt.Fprintf(w, "Total backends: %d\n", len(comparisons))
	fmt.Fprintf(w, "  PASS:   %d\n", statusCount["PASS"])
	fmt.Fprintf(w, "  FAIL:   %d\n", statusCount["FAIL"])
	fmt.Fprintf(w, "  SLOWER: %d\n", statusCount["SLOWER"])
	fmt.Fprintf(w, "  FASTER: %d\n", statusCount["FASTER"])
	fmt.Fprintln(w)

	if statusCount["FAIL"] > 0 {
		fmt.Fprintln(w, "FAILURES:")
		for _, comp := range comparisons {
			if comp.Status == "FAIL" {
				fmt.Fprintf(w, "  %s: %s\n", comp.Backend, comp.Message)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "DETAILED RESULTS:")
	fmt.Fprintf(w, "%-16s %-6s %12s %12s %8s %12s\n",
		"Backend", "Status", "Baseline ms", "Current ms", "Speedup", "Checksum Δ")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, comp := range comparisons {
		fmt.Fprintf(w, "%-16s %-6s %12.3f %12.3f %8.2f %12.2e\n",
			comp.Backend,
			comp.Status,
			float64(comp.BaselineDuration)/1e6,
			float64(comp.CurrentDuration)/1e6,
			comp.SpeedupFactor,
			comp.ChecksumDiff)
	}
}
