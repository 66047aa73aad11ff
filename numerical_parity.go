// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"math"
)

// Parity accumulates error statistics of a backend result against the
// reference.
type Parity struct {
	MaxAbsError float32
	MaxRelError float32
	MaxULPError int
	NumErrors   int // elements outside tolerance
	TotalItems  int
}

// CompareFloat32 compares two float32 values and updates error statistics
func (p *Parity) CompareFloat32(expected, actual float32, tol Tolerance) {
	p.TotalItems++
	absErr := float32(math.Abs(float64(expected) - float64(actual)))
	if absErr > p.MaxAbsError {
		p.MaxAbsError = absErr
	}

	// Relative error (avoid division by zero)
	if expected != 0 {
		relErr := absErr / float32(math.Abs(float64(expected)))
		if relErr > p.MaxRelError {
			p.MaxRelError = relErr
		}
	}

	if ulpErr := Float32ULPDiff(expected, actual); ulpErr > p.MaxULPError {
		p.MaxULPError = ulpErr
	}

	if !tol.Within(expected, actual) {
		p.NumErrors++
	}
}

// CompareSlices compares two slices of float32
func (p *Parity) CompareSlices(expected, actual []float32, tol Tolerance) {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		p.CompareFloat32(expected[i], actual[i], tol)
	}
}

// String formats the statistics for display
func (p Parity) String() string {
	if p.NumErrors == 0 {
		return fmt.Sprintf("PASS: %d values, max abs %g, max rel %g, max ULP %d",
			p.TotalItems, p.MaxAbsError, p.MaxRelError, p.MaxULPError)
	}
	errorRate := float64(p.NumErrors) / float64(max(1, p.TotalItems)) * 100
	return fmt.Sprintf("FAIL: %d/%d values differ (%.2f%%), max abs %g, max rel %g, max ULP %d",
		p.NumErrors, p.TotalItems, errorRate, p.MaxAbsError, p.MaxRelError, p.MaxULPError)
}
