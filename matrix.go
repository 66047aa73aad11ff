// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"math"
)

// Matrix is a square matrix of float32 stored row-major in one contiguous
// buffer. The dimension is fixed at construction and len(data) == size*size
// always holds.
//
// Engines borrow their input matrices for the duration of a Compute call and
// return a freshly allocated output that the caller owns.
type Matrix struct {
	size int
	data []float32
}

// NewMatrix allocates a zeroed size x size matrix.
func NewMatrix(size int) (*Matrix, error) {
	if size <= 0 {
		return nil, NewDimensionMismatchError("NewMatrix", fmt.Sprintf("size must be positive, got %d", size))
	}
	if size > MaxMatrixSize || size*size > MaxElements {
		return nil, NewAllocationError("NewMatrix",
			fmt.Sprintf("%dx%d matrix exceeds the %d element limit", size, size, MaxElements), nil)
	}
	return &Matrix{size: size, data: make([]float32, size*size)}, nil
}

// MatrixFromSlice wraps data as a size x size matrix without copying.
func MatrixFromSlice(size int, data []float32) (*Matrix, error) {
	if size <= 0 {
		return nil, NewDimensionMismatchError("MatrixFromSlice", fmt.Sprintf("size must be positive, got %d", size))
	}
	if len(data) != size*size {
		return nil, NewDimensionMismatchError("MatrixFromSlice",
			fmt.Sprintf("buffer holds %d elements, %dx%d needs %d", len(data), size, size, size*size))
	}
	return &Matrix{size: size, data: data}, nil
}

// Identity returns the size x size identity matrix.
func Identity(size int) (*Matrix, error) {
	m, err := NewMatrix(size)
	if err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		m.data[i*size+i] = 1
	}
	return m, nil
}

// Constant returns a size x size matrix with every element set to v.
func Constant(size int, v float32) (*Matrix, error) {
	m, err := NewMatrix(size)
	if err != nil {
		return nil, err
	}
	m.Fill(v)
	return m, nil
}

// Size returns the matrix dimension.
func (m *Matrix) Size() int { return m.size }

// Data returns the backing row-major buffer. It is borrowed, not copied.
func (m *Matrix) Data() []float32 { return m.data }

// Index returns the row-major offset of (row, col).
func (m *Matrix) Index(row, col int) (int, error) {
	if row < 0 || col < 0 || row >= m.size || col >= m.size {
		return 0, NewOutOfRangeError("Matrix.Index", row, col, m.size)
	}
	return row*m.size + col, nil
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) (float32, error) {
	idx, err := m.Index(row, col)
	if err != nil {
		return 0, err
	}
	return m.data[idx], nil
}

// Set stores v at (row, col).
func (m *Matrix) Set(row, col int, v float32) error {
	idx, err := m.Index(row, col)
	if err != nil {
		return err
	}
	m.data[idx] = v
	return nil
}

// Fill sets every element to v.
func (m *Matrix) Fill(v float32) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &Matrix{size: m.size, data: data}
}

// Equal reports whether both matrices have the same size and bitwise
// identical elements.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil || m.size != other.size {
		return false
	}
	for i, v := range m.data {
		if math.Float32bits(v) != math.Float32bits(other.data[i]) {
			return false
		}
	}
	return true
}

// Checksum returns the float64 sum of all elements.
func (m *Matrix) Checksum() float64 {
	var sum float64
	for _, v := range m.data {
		sum += float64(v)
	}
	return sum
}

// Bytes returns the buffer size in bytes.
func (m *Matrix) Bytes() int {
	return len(m.data) * 4
}

// String implements fmt.Stringer.
func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix(%dx%d)", m.size, m.size)
}

// CheckSameSize validates a pair of compute inputs and returns their common
// dimension. It is called before any work starts.
func CheckSameSize(a, b *Matrix) (int, error) {
	const op = "CheckSameSize"
	switch {
	case a == nil || b == nil:
		return 0, NewDimensionMismatchError(op, "nil input matrix")
	case a.size <= 0 || b.size <= 0:
		return 0, NewDimensionMismatchError(op, fmt.Sprintf("non-positive sizes %d and %d", a.size, b.size))
	case a.size != b.size:
		return 0, NewDimensionMismatchError(op, fmt.Sprintf("sizes differ: %d vs %d", a.size, b.size))
	case len(a.data) != a.size*a.size || len(b.data) != b.size*b.size:
		return 0, NewDimensionMismatchError(op, "buffer length does not match size*size")
	}
	return a.size, nil
}
