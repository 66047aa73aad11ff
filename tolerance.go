// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"math"
)

// Tolerance is the per-element acceptance rule used to verify a backend
// against the reference:
//
//	|actual - expected| <= RelTol * max(1, |expected|)
//
// The max(1, .) term makes RelTol act as an absolute tolerance near zero.
type Tolerance struct {
	RelTol float32
}

// DefaultTolerance tolerates reduction-order differences between backends.
func DefaultTolerance() Tolerance {
	return Tolerance{RelTol: DefaultRelTol}
}

// Exact requires bitwise equal results.
func Exact() Tolerance {
	return Tolerance{}
}

// Within reports whether actual is acceptable for expected.
func (t Tolerance) Within(expected, actual float32) bool {
	// Bitwise equality also accepts matching NaNs and infinities.
	if math.Float32bits(expected) == math.Float32bits(actual) || expected == actual {
		return true
	}
	e, a := float64(expected), float64(actual)
	if math.IsInf(e, 0) || math.IsInf(a, 0) {
		return false
	}
	diff := math.Abs(a - e)
	bound := float64(t.RelTol) * math.Max(1, math.Abs(e))
	return diff <= bound
}

// Float32ULPDiff computes the difference in ULPs between two float32 values
func Float32ULPDiff(a, b float32) int {
	if a == b {
		return 0
	}
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return math.MaxInt32
	}

	// Convert to bits
	aBits := math.Float32bits(a)
	bBits := math.Float32bits(b)

	// Different signs: distance through zero
	if (aBits^bBits)&0x80000000 != 0 {
		return Float32ULPDiff(float32(math.Abs(float64(a))), 0) + Float32ULPDiff(float32(math.Abs(float64(b))), 0)
	}

	if aBits > bBits {
		return int(aBits - bBits)
	}
	return int(bBits - aBits)
}
