// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Program is a kernel translation unit attached to a context.
type Program struct {
	ctx    *Context
	source string

	mu       sync.Mutex
	built    bool
	buildLog string
	kernels  map[string]boundKernel
	released bool
}

type boundKernel struct {
	params []Param
	native NativeKernel
}

// CreateProgramWithSource creates an unbuilt program from OpenCL C source.
func (c *Context) CreateProgramWithSource(source string) (*Program, error) {
	if err := c.checkAlive("CreateProgramWithSource"); err != nil {
		return nil, err
	}
	c.platform.live.programs.Add(1)
	return &Program{ctx: c, source: source}, nil
}

// Build compiles the program for every device of its context. Each kernel
// declared in the source binds to the native kernel with the same name and
// parameter list. On failure the returned error is a *BuildError and
// BuildLog holds the diagnostics.
func (p *Program) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errors.Wrap(ErrReleased, "Build: program")
	}

	library := p.ctx.platform.library
	decls, diags := parseProgram(p.source)
	kernels := make(map[string]boundKernel, len(decls))
	for _, decl := range decls {
		native, ok := library.Lookup(decl.name)
		if !ok {
			diags = append(diags, Diagnostic{decl.line, decl.column,
				fmt.Sprintf("kernel %q has no native implementation on %s", decl.name, p.ctx.platform.Name)})
			continue
		}
		if msg := signatureMismatch(decl, native); msg != "" {
			diags = append(diags, Diagnostic{decl.line, decl.column, msg})
			continue
		}
		kernels[decl.name] = boundKernel{params: decl.params, native: native}
	}

	if len(diags) > 0 {
		buildErr := &BuildError{Device: p.ctx.devices[0].Name, Diagnostics: diags}
		p.buildLog = buildErr.Log()
		p.built = false
		return errors.WithStack(buildErr)
	}
	p.buildLog = ""
	p.kernels = kernels
	p.built = true
	return nil
}

func signatureMismatch(decl kernelDecl, native NativeKernel) string {
	if len(decl.params) != len(native.Params) {
		return fmt.Sprintf("kernel %q declares %d parameters, native implementation takes %d",
			decl.name, len(decl.params), len(native.Params))
	}
	for i, param := range decl.params {
		if param.Kind != native.Params[i] {
			return fmt.Sprintf("kernel %q parameter %d (%s) is %s, native implementation expects %s",
				decl.name, i, param.Name, param.Kind, native.Params[i])
		}
	}
	return ""
}

// BuildLog returns the diagnostics of the last failed build.
func (p *Program) BuildLog() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildLog
}

// KernelNames returns the sorted names of the kernels of a built program.
func (p *Program) KernelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateKernel returns a kernel object for a kernel of the built program.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, errors.Wrap(ErrReleased, "CreateKernel: program")
	}
	if !p.built {
		return nil, errors.Wrapf(ErrInvalidProgramExecutable, "CreateKernel(%q)", name)
	}
	bound, ok := p.kernels[name]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidKernelName, "%q not found in program", name)
	}
	p.ctx.platform.live.kernels.Add(1)
	return &Kernel{
		program: p,
		name:    name,
		params:  bound.params,
		run:     bound.native.Run,
		args:    make([]Arg, len(bound.params)),
		set:     make([]bool, len(bound.params)),
		bufs:    make([]*Buffer, len(bound.params)),
	}, nil
}

// Release invalidates the program. Releasing twice is a no-op.
func (p *Program) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.kernels = nil
	p.ctx.platform.live.programs.Add(-1)
	return nil
}

// Kernel is a program entry point with its bound arguments.
type Kernel struct {
	program *Program
	name    string
	params  []Param
	run     NativeFunc

	mu       sync.Mutex
	args     []Arg
	set      []bool
	bufs     []*Buffer
	released bool
}

// Name returns the kernel name.
func (k *Kernel) Name() string { return k.name }

// Params returns the declared parameters.
func (k *Kernel) Params() []Param { return k.params }

// SetArg binds value to parameter index. Buffer parameters take a *Buffer of
// the kernel's context; a read-only buffer cannot be bound to a writable
// parameter. uint parameters take uint32 or a non-negative int, int
// parameters take int32 or int, float parameters take float32.
func (k *Kernel) SetArg(index int, value any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return errors.Wrap(ErrReleased, "SetArg: kernel")
	}
	if index < 0 || index >= len(k.params) {
		return errors.Wrapf(ErrInvalidArgIndex, "%s: index %d, kernel takes %d arguments", k.name, index, len(k.params))
	}
	param := k.params[index]
	var arg Arg
	var buf *Buffer
	switch param.Kind {
	case ArgGlobalFloat, ArgGlobalConstFloat:
		b, ok := value.(*Buffer)
		if !ok || b == nil {
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): expected *Buffer, got %T", k.name, param.Name, value)
		}
		if b.ctx != k.program.ctx {
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): buffer belongs to another context", k.name, param.Name)
		}
		if b.isReleased() {
			return errors.Wrapf(ErrReleased, "%s(%s): buffer", k.name, param.Name)
		}
		if param.Kind == ArgGlobalFloat && b.flags == MemReadOnly {
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): read-only buffer bound to a writable parameter", k.name, param.Name)
		}
		buf = b
	case ArgUint:
		switch v := value.(type) {
		case uint32:
			arg.Uint = v
		case int:
			if v < 0 || uint64(v) > 1<<32-1 {
				return errors.Wrapf(ErrInvalidArgValue, "%s(%s): %d does not fit uint", k.name, param.Name, v)
			}
			arg.Uint = uint32(v)
		default:
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): expected uint32, got %T", k.name, param.Name, value)
		}
	case ArgInt:
		switch v := value.(type) {
		case int32:
			arg.Int = v
		case int:
			if int64(v) != int64(int32(v)) {
				return errors.Wrapf(ErrInvalidArgValue, "%s(%s): %d does not fit int", k.name, param.Name, v)
			}
			arg.Int = int32(v)
		default:
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): expected int32, got %T", k.name, param.Name, value)
		}
	case ArgFloat:
		v, ok := value.(float32)
		if !ok {
			return errors.Wrapf(ErrInvalidArgValue, "%s(%s): expected float32, got %T", k.name, param.Name, value)
		}
		arg.Float = v
	}
	k.args[index] = arg
	k.bufs[index] = buf
	k.set[index] = true
	return nil
}

// snapshot resolves the bound arguments for one enqueue.
func (k *Kernel) snapshot() ([]Arg, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil, errors.Wrap(ErrReleased, "enqueue: kernel")
	}
	args := make([]Arg, len(k.args))
	for i, arg := range k.args {
		if !k.set[i] {
			return nil, errors.Wrapf(ErrInvalidKernelArgs, "%s: argument %d (%s) not set", k.name, i, k.params[i].Name)
		}
		if b := k.bufs[i]; b != nil {
			b.ctx.mu.Lock()
			released, data := b.released, b.data
			b.ctx.mu.Unlock()
			if released {
				return nil, errors.Wrapf(ErrReleased, "%s: argument %d (%s) buffer", k.name, i, k.params[i].Name)
			}
			arg.Buffer = data
		}
		args[i] = arg
	}
	return args, nil
}

// Release invalidates the kernel. Releasing twice is a no-op.
func (k *Kernel) Release() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil
	}
	k.released = true
	k.bufs = nil
	k.program.ctx.platform.live.kernels.Add(-1)
	return nil
}
