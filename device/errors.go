// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNoPlatform               = errors.New("no compute platform available")
	ErrDeviceNotFound           = errors.New("device not found")
	ErrInvalidContext           = errors.New("invalid context")
	ErrInvalidValue             = errors.New("invalid value")
	ErrInvalidBufferSize        = errors.New("invalid buffer size")
	ErrMemAllocationFailure     = errors.New("memory allocation failure")
	ErrBuildProgramFailure      = errors.New("build program failure")
	ErrInvalidProgramExecutable = errors.New("program has not been built")
	ErrInvalidKernelName        = errors.New("invalid kernel name")
	ErrInvalidArgIndex          = errors.New("invalid kernel argument index")
	ErrInvalidArgValue          = errors.New("invalid kernel argument value")
	ErrInvalidKernelArgs        = errors.New("kernel arguments not set")
	ErrInvalidWorkGroupSize     = errors.New("invalid work-group size")
	ErrKernelFailed             = errors.New("kernel execution failed")
	ErrReleased                 = errors.New("handle already released")
)

// Diagnostic is one compiler message, positioned in the kernel source.
type Diagnostic struct {
	Line, Column int
	Message      string
}

// String formats the diagnostic as "line:col: error: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: error: %s", d.Line, d.Column, d.Message)
}

// BuildError is returned by Program.Build when the source is rejected.
// It unwraps to ErrBuildProgramFailure.
type BuildError struct {
	Device      string
	Diagnostics []Diagnostic
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("build program failure on %s", e.Device)
	}
	return fmt.Sprintf("build program failure on %s: %d error(s), first: %s",
		e.Device, len(e.Diagnostics), e.Diagnostics[0])
}

// Unwrap returns ErrBuildProgramFailure.
func (e *BuildError) Unwrap() error { return ErrBuildProgramFailure }

// Log renders all diagnostics, one per line.
func (e *BuildError) Log() string {
	var sb strings.Builder
	for _, d := range e.Diagnostics {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
