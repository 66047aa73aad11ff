// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "sort"

// ArgKind is the type of a kernel parameter.
type ArgKind int

const (
	ArgGlobalFloat      ArgKind = iota // __global float*
	ArgGlobalConstFloat                // __global const float*
	ArgUint                            // uint
	ArgInt                             // int
	ArgFloat                           // float
)

// String returns the OpenCL C spelling of the kind.
func (k ArgKind) String() string {
	switch k {
	case ArgGlobalFloat:
		return "__global float*"
	case ArgGlobalConstFloat:
		return "__global const float*"
	case ArgUint:
		return "uint"
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	default:
		return "unknown"
	}
}

// IsBuffer reports whether the parameter takes a Buffer.
func (k ArgKind) IsBuffer() bool {
	return k == ArgGlobalFloat || k == ArgGlobalConstFloat
}

// Arg is a bound kernel argument, as seen by a native kernel.
type Arg struct {
	Buffer []float32
	Uint   uint32
	Int    int32
	Float  float32
}

// NativeFunc runs one work-item. args follow the kernel's parameter order.
type NativeFunc func(wi WorkItem, args []Arg)

// NativeKernel is the device implementation a kernel declaration binds to.
type NativeKernel struct {
	Name   string
	Params []ArgKind
	Run    NativeFunc
}

// Library maps kernel names to native implementations.
type Library struct {
	kernels map[string]NativeKernel
}

// NewLibrary returns a library holding the given kernels.
func NewLibrary(kernels ...NativeKernel) *Library {
	l := &Library{kernels: make(map[string]NativeKernel, len(kernels))}
	for _, k := range kernels {
		l.kernels[k.Name] = k
	}
	return l
}

// Lookup returns the native kernel with the given name.
func (l *Library) Lookup(name string) (NativeKernel, bool) {
	k, ok := l.kernels[name]
	return k, ok
}

// Names returns the sorted kernel names.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.kernels))
	for name := range l.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultLibrary holds the dense matrix kernels:
//
//	matmul_scale(a, b, c, n, alpha): c = alpha * a x b, one element per work-item
//	matmul(a, b, c, n):              c = a x b
//	scale(c, count, alpha):          c *= alpha
//
// Work-items with a global id past the end of the output return without
// writing, so the global size may be padded up to a multiple of the
// work-group size.
func DefaultLibrary() *Library {
	return NewLibrary(
		NativeKernel{
			Name:   "matmul_scale",
			Params: []ArgKind{ArgGlobalConstFloat, ArgGlobalConstFloat, ArgGlobalFloat, ArgUint, ArgFloat},
			Run: func(wi WorkItem, args []Arg) {
				n := int(args[3].Uint)
				gid := wi.GlobalLinear()
				if gid >= n*n {
					return
				}
				args[2].Buffer[gid] = args[4].Float * dotRowCol(args[0].Buffer, args[1].Buffer, n, gid/n, gid%n)
			},
		},
		NativeKernel{
			Name:   "matmul",
			Params: []ArgKind{ArgGlobalConstFloat, ArgGlobalConstFloat, ArgGlobalFloat, ArgUint},
			Run: func(wi WorkItem, args []Arg) {
				n := int(args[3].Uint)
				gid := wi.GlobalLinear()
				if gid >= n*n {
					return
				}
				args[2].Buffer[gid] = dotRowCol(args[0].Buffer, args[1].Buffer, n, gid/n, gid%n)
			},
		},
		NativeKernel{
			Name:   "scale",
			Params: []ArgKind{ArgGlobalFloat, ArgUint, ArgFloat},
			Run: func(wi WorkItem, args []Arg) {
				gid := wi.GlobalLinear()
				if gid >= int(args[1].Uint) {
					return
				}
				args[0].Buffer[gid] *= args[2].Float
			},
		},
	)
}

// dotRowCol returns sum over k of a[row, k] * b[k, col] for n x n row-major
// matrices, accumulated in increasing k.
func dotRowCol(a, b []float32, n, row, col int) float32 {
	var sum float32
	rowA := a[row*n : row*n+n]
	for k, v := range rowA {
		// Rounded product: no FMA fusion.
		sum += float32(v * b[k*n+col])
	}
	return sum
}
