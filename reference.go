// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import "github.com/LynnColeArt/gudabench/device"

// Reference computes C = 2*A*B sequentially on the host. Its loop order
// (row outer, col middle, k inner, float32 accumulation from zero) fixes the
// summation order every other engine is checked against.
type Reference struct{}

func init() {
	Register(BackendReference, func(Descriptor, *device.Registry) (Engine, error) {
		return Reference{}, nil
	})
}

// Backend implements Engine.
func (r Reference) Backend() Backend { return BackendReference }

// Compute implements Engine.
func (r Reference) Compute(a, b *Matrix) (*Matrix, error) {
	n, err := CheckSameSize(a, b)
	if err != nil {
		return nil, err
	}
	c, err := NewMatrix(n)
	if err != nil {
		return nil, err
	}
	r.multiplyRows(a.data, b.data, c.data, n, 0, n, 2)
	return c, nil
}

// multiplyRows writes alpha*(A*B) for rows [rowStart, rowEnd) into c.
func (r Reference) multiplyRows(a, b, c []float32, n, rowStart, rowEnd int, alpha float32) {
	for row := rowStart; row < rowEnd; row++ {
		for col := 0; col < n; col++ {
			c[row*n+col] = alpha * r.DOT(n, a[row*n:], 1, b[col:], n)
		}
	}
}

// BLAS Level 1 Reference Implementations

// DOT computes the strided dot product sum(x[i*incX] * y[i*incY]) for i in
// [0, n), accumulating in order.
func (r Reference) DOT(n int, x []float32, incX int, y []float32, incY int) float32 {
	var sum float32
	for i := 0; i < n; i++ {
		// The conversion forces the product to be rounded, so the compiler
		// may not fuse it into an FMA on architectures that have one.
		sum += float32(x[i*incX] * y[i*incY])
	}
	return sum
}

// Scale performs x = alpha*x (reference implementation)
func (r Reference) Scale(alpha float32, x []float32) {
	for i := range x {
		x[i] *= alpha
	}
}
