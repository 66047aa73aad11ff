// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import _ "embed"

// kernelSource is kernels/matmul.cl, compiled into the binary.
//
//go:embed kernels/matmul.cl
var kernelSource string

// KernelSource returns the built-in OpenCL C source of the matmul_scale,
// matmul and scale kernels. It is compiled when DeviceConfig.KernelPath is
// empty.
func KernelSource() string { return kernelSource }
