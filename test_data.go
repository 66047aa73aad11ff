// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import "fmt"

// lcg is a linear congruential generator (parameters from Numerical
// Recipes). It is deterministic across platforms and Go releases.
type lcg struct {
	state uint64
}

func (r *lcg) next() uint32 {
	r.state = r.state*1103515245 + 12345
	// Low bits of an LCG have short periods.
	return uint32(r.state >> 16)
}

// GenerateIntegers returns size integer-valued float32s drawn uniformly from
// [0, maxValue) by an LCG seeded with seed. maxValue must be in
// [1, MaxInputValue].
//
// Example:
//
//	data := GenerateIntegers(1024, 42, 1024)
func GenerateIntegers(size int, seed uint64, maxValue int) []float32 {
	data := make([]float32, size)
	rng := lcg{state: seed}
	for i := range data {
		data[i] = float32(rng.next() % uint32(maxValue))
	}
	return data
}

// GenerateMatrix builds a size x size matrix of integers in [0, maxValue).
// The same (size, seed, maxValue) always yields the same matrix.
func GenerateMatrix(size int, seed uint64, maxValue int) (*Matrix, error) {
	if maxValue <= 0 || maxValue > MaxInputValue {
		return nil, NewInvalidArgError("GenerateMatrix", fmt.Sprintf("max value must be in [1, %d], got %d", MaxInputValue, maxValue))
	}
	m, err := NewMatrix(size)
	if err != nil {
		return nil, err
	}
	copy(m.data, GenerateIntegers(size*size, seed, maxValue))
	return m, nil
}

// GenerateInputs builds the A and B operands of a run. B uses the seed
// following A's so the two never coincide.
func GenerateInputs(size int, seed uint64, maxValue int) (a, b *Matrix, err error) {
	if a, err = GenerateMatrix(size, seed, maxValue); err != nil {
		return nil, nil, err
	}
	if b, err = GenerateMatrix(size, seed+1, maxValue); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// TestMatrixSizes returns matrix dimensions that exercise edge strips of the
// row partitioning and partial work-groups of the device dispatch.
func TestMatrixSizes() []int {
	return []int{
		1,  // Scalar
		2,  // Tiny
		3,  // Odd
		7,  // Below one work-group
		16, // One row strip
		17, // Strip remainder
		33, // Above the parallel threshold
		64, // Exactly one work-group per row
		100,
	}
}
