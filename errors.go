// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Host or device buffer could not be allocated
	ErrTypeAllocation ErrorType = iota
	// Inputs with unequal or non-positive sizes
	ErrTypeDimensionMismatch
	// Element access outside the matrix
	ErrTypeOutOfRange
	// No compute platform to run on
	ErrTypeNoPlatform
	// Device context could not be built
	ErrTypeContext
	// Kernel source missing or rejected by the compiler
	ErrTypeCompile
	// Backend result differs from the reference
	ErrTypeVerification
	// Invalid argument errors
	ErrTypeInvalidArg
	// Execution errors
	ErrTypeExecution
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error if any
	Context any    // Additional context (build log, Mismatch, ...)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gudabench %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("gudabench %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeAllocation:
		return "Allocation"
	case ErrTypeDimensionMismatch:
		return "DimensionMismatch"
	case ErrTypeOutOfRange:
		return "OutOfRange"
	case ErrTypeNoPlatform:
		return "NoPlatform"
	case ErrTypeContext:
		return "Context"
	case ErrTypeCompile:
		return "Compile"
	case ErrTypeVerification:
		return "Verification"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	default:
		return "Unknown"
	}
}

func newError(t ErrorType, op, message string, err error, context any) error {
	return errors.WithStack(&Error{
		Type:    t,
		Op:      op,
		Message: message,
		Err:     err,
		Context: context,
	})
}

// Common error constructors

// NewAllocationError creates an allocation error
func NewAllocationError(op string, message string, err error) error {
	return newError(ErrTypeAllocation, op, message, err, nil)
}

// NewDimensionMismatchError creates a dimension mismatch error
func NewDimensionMismatchError(op string, message string) error {
	return newError(ErrTypeDimensionMismatch, op, message, nil, nil)
}

// NewOutOfRangeError creates an out-of-range error for a (row, col) access
func NewOutOfRangeError(op string, row, col, size int) error {
	return newError(ErrTypeOutOfRange, op,
		fmt.Sprintf("index (%d, %d) out of range for %dx%d matrix", row, col, size, size), nil, nil)
}

// NewNoPlatformError creates a platform discovery error
func NewNoPlatformError(op string, message string, err error) error {
	return newError(ErrTypeNoPlatform, op, message, err, nil)
}

// NewContextError creates a context construction error
func NewContextError(op string, message string, err error) error {
	return newError(ErrTypeContext, op, message, err, nil)
}

// NewCompileError creates a compile error. buildLog holds the compiler
// diagnostics and may be empty when the source could not be read.
func NewCompileError(op string, message string, err error, buildLog string) error {
	return newError(ErrTypeCompile, op, message, err, buildLog)
}

// NewVerificationError creates a verification error for a diverging element
func NewVerificationError(op string, m Mismatch) error {
	return newError(ErrTypeVerification, op, m.String(), nil, m)
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return newError(ErrTypeInvalidArg, op, message, nil, nil)
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return newError(ErrTypeExecution, op, message, err, nil)
}

func isType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsAllocationError checks if an error is an allocation error
func IsAllocationError(err error) bool { return isType(err, ErrTypeAllocation) }

// IsDimensionMismatchError checks if an error is a dimension mismatch error
func IsDimensionMismatchError(err error) bool { return isType(err, ErrTypeDimensionMismatch) }

// IsOutOfRangeError checks if an error is an out-of-range error
func IsOutOfRangeError(err error) bool { return isType(err, ErrTypeOutOfRange) }

// IsNoPlatformError checks if an error is a platform discovery error
func IsNoPlatformError(err error) bool { return isType(err, ErrTypeNoPlatform) }

// IsContextError checks if an error is a context error
func IsContextError(err error) bool { return isType(err, ErrTypeContext) }

// IsCompileError checks if an error is a compile error
func IsCompileError(err error) bool { return isType(err, ErrTypeCompile) }

// IsVerificationError checks if an error is a verification error
func IsVerificationError(err error) bool { return isType(err, ErrTypeVerification) }

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool { return isType(err, ErrTypeInvalidArg) }

// IsExecutionError checks if an error is an execution error
func IsExecutionError(err error) bool { return isType(err, ErrTypeExecution) }

// IsSetupError reports whether err happened while setting up a device
// pipeline. Such a backend is skipped and the run continues with the others.
func IsSetupError(err error) bool {
	return IsNoPlatformError(err) || IsContextError(err) || IsCompileError(err)
}

// BuildLog returns the compiler diagnostics attached to a compile error.
func BuildLog(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrTypeCompile {
		if log, ok := e.Context.(string); ok {
			return log
		}
	}
	return ""
}

// AsMismatch extracts the diverging element from a verification error.
func AsMismatch(err error) (Mismatch, bool) {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrTypeVerification {
		m, ok := e.Context.(Mismatch)
		return m, ok
	}
	return Mismatch{}, false
}
