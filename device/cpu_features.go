// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// cpuExtensions lists the SIMD features of the host CPU, reported as device
// extensions of the CPU platform.
func cpuExtensions() []string {
	var ext []string
	add := func(has bool, name string) {
		if has {
			ext = append(ext, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41 || cpu.X86.HasSSE42, "sse4")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAVX512DQ, "avx512dq")
		add(cpu.X86.HasAVX512BW, "avx512bw")
		add(cpu.X86.HasAVX512VL, "avx512vl")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "neon")
		add(cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP, "fp16")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return ext
}
