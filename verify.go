// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import "fmt"

// Mismatch identifies the first element of a backend result outside
// tolerance.
type Mismatch struct {
	Backend  string
	Row, Col int
	Expected float32
	Actual   float32
}

// String implements fmt.Stringer.
func (m Mismatch) String() string {
	return fmt.Sprintf("backend %s diverges at (%d, %d): expected %g, got %g",
		m.Backend, m.Row, m.Col, m.Expected, m.Actual)
}

// Verify compares got against the reference result element by element and
// returns a Verification error for the first element outside tol, in
// row-major order.
func Verify(backend string, ref, got *Matrix, tol Tolerance) error {
	const op = "Verify"
	if ref == nil || got == nil {
		return NewInvalidArgError(op, "nil matrix")
	}
	if ref.size != got.size {
		return NewDimensionMismatchError(op, fmt.Sprintf("%s result is %dx%d, reference is %dx%d",
			backend, got.size, got.size, ref.size, ref.size))
	}
	n := ref.size
	for i, expected := range ref.data {
		if actual := got.data[i]; !tol.Within(expected, actual) {
			return NewVerificationError(op, Mismatch{
				Backend:  backend,
				Row:      i / n,
				Col:      i % n,
				Expected: expected,
				Actual:   actual,
			})
		}
	}
	return nil
}
