// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gudabench computes the dense square product C = 2*A*B on several
// interchangeable engines and verifies each against a sequential reference.
//
// The engines are:
//   - reference: a single-threaded triple loop, the correctness oracle
//   - data_parallel: the same loop split into row strips across goroutines
//   - device_kernel: OpenCL C kernels compiled and launched on a platform
//     of the device package
//
// Every engine accumulates each dot product in ascending k order and rounds
// every product to float32, so on the generated integer inputs all engines
// produce bitwise identical results.
//
// A Harness generates seeded inputs, times every configured engine and stops
// at the first element that diverges from the reference:
//
//	cfg := gudabench.DefaultConfig()
//	cfg.Size = 256
//	h, err := gudabench.NewHarness(cfg, nil)
//	if err != nil {
//		return err
//	}
//	report, err := h.Run()
package gudabench
