// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"strings"
	"text/scanner"
)

// Param is one declared kernel parameter.
type Param struct {
	Name string
	Kind ArgKind
}

// kernelDecl is a kernel function found in the source.
type kernelDecl struct {
	name   string
	params []Param
	line   int
	column int
}

// parseProgram reads an OpenCL C translation unit made of kernel function
// definitions:
//
//	__kernel void name(__global const float* a, const uint n, ...) { ... }
//
// Comments and #pragma lines are ignored. Bodies are only checked for
// balanced braces. Parsing stops at the first structural error.
func parseProgram(src string) ([]kernelDecl, []Diagnostic) {
	p := &parser{}
	p.s.Init(strings.NewReader(stripPragmas(src, &p.diags)))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanChars | scanner.ScanStrings | scanner.ScanComments | scanner.SkipComments
	p.s.Error = func(s *scanner.Scanner, msg string) {
		p.errorf(s.Pos(), "%s", msg)
	}
	p.next()

	var decls []kernelDecl
	seen := make(map[string]bool)
	for p.tok != scanner.EOF && len(p.diags) == 0 {
		decl, ok := p.parseKernel()
		if !ok {
			break
		}
		if seen[decl.name] {
			p.diags = append(p.diags, Diagnostic{decl.line, decl.column,
				fmt.Sprintf("redefinition of kernel %q", decl.name)})
			break
		}
		seen[decl.name] = true
		decls = append(decls, decl)
	}
	if len(p.diags) == 0 && len(decls) == 0 {
		p.diags = append(p.diags, Diagnostic{1, 1, "program declares no kernels"})
	}
	return decls, p.diags
}

// stripPragmas blanks out #pragma lines, keeping line numbers, and reports
// any other preprocessor directive.
func stripPragmas(src string, diags *[]Diagnostic) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.HasPrefix(trimmed, "#pragma") {
			col := strings.Index(line, "#") + 1
			*diags = append(*diags, Diagnostic{i + 1, col,
				fmt.Sprintf("unsupported preprocessor directive %q", strings.Fields(trimmed)[0])})
		}
		lines[i] = ""
	}
	return strings.Join(lines, "\n")
}

type parser struct {
	s     scanner.Scanner
	tok   rune
	text  string
	pos   scanner.Position
	diags []Diagnostic
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
	p.pos = p.s.Position
}

func (p *parser) errorf(pos scanner.Position, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{pos.Line, pos.Column, fmt.Sprintf(format, args...)})
}

func (p *parser) found() string {
	if p.tok == scanner.EOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", p.text)
}

// expect consumes the token if it matches want (an identifier or a single
// character).
func (p *parser) expect(want string) bool {
	if p.text != want || p.tok == scanner.EOF {
		p.errorf(p.pos, "expected %q, found %s", want, p.found())
		return false
	}
	p.next()
	return true
}

func (p *parser) ident(what string) (string, bool) {
	if p.tok != scanner.Ident {
		p.errorf(p.pos, "expected %s, found %s", what, p.found())
		return "", false
	}
	name := p.text
	p.next()
	return name, true
}

func (p *parser) parseKernel() (kernelDecl, bool) {
	var decl kernelDecl
	if p.text != "__kernel" && p.text != "kernel" {
		p.errorf(p.pos, "expected __kernel function definition, found %s", p.found())
		return decl, false
	}
	p.next()
	if p.text != "void" {
		p.errorf(p.pos, "kernel functions must return void, found %s", p.found())
		return decl, false
	}
	p.next()
	decl.line, decl.column = p.pos.Line, p.pos.Column
	name, ok := p.ident("kernel name")
	if !ok {
		return decl, false
	}
	decl.name = name
	if !p.expect("(") {
		return decl, false
	}
	if p.text != ")" {
		for {
			param, ok := p.parseParam()
			if !ok {
				return decl, false
			}
			decl.params = append(decl.params, param)
			if p.text != "," {
				break
			}
			p.next()
		}
	}
	if !p.expect(")") {
		return decl, false
	}
	return decl, p.skipBody(name)
}

func (p *parser) parseParam() (Param, bool) {
	start := p.pos
	var global, constant, unsigned, pointer bool
	typeName := ""
	for typeName == "" {
		switch p.text {
		case "__global", "global":
			global = true
		case "__constant", "constant":
			global, constant = true, true
		case "const":
			constant = true
		case "unsigned":
			unsigned = true
		case "float", "int", "uint":
			typeName = p.text
		default:
			if unsigned {
				typeName = "uint"
				continue
			}
			p.errorf(p.pos, "expected parameter type, found %s", p.found())
			return Param{}, false
		}
		p.next()
	}
	if unsigned && typeName == "int" {
		typeName = "uint"
	}
	for p.text == "const" || p.text == "restrict" || p.text == "__restrict" {
		constant = constant || p.text == "const"
		p.next()
	}
	if p.text == "*" {
		pointer = true
		p.next()
		for p.text == "restrict" || p.text == "__restrict" || p.text == "const" {
			p.next()
		}
	}
	name, ok := p.ident("parameter name")
	if !ok {
		return Param{}, false
	}

	param := Param{Name: name}
	switch {
	case pointer && global && typeName == "float" && constant:
		param.Kind = ArgGlobalConstFloat
	case pointer && global && typeName == "float":
		param.Kind = ArgGlobalFloat
	case pointer:
		p.errorf(start, "parameter %q: only __global float pointers are supported", name)
		return Param{}, false
	case global:
		p.errorf(start, "parameter %q: address space qualifier on a scalar", name)
		return Param{}, false
	case typeName == "uint":
		param.Kind = ArgUint
	case typeName == "int":
		param.Kind = ArgInt
	default:
		param.Kind = ArgFloat
	}
	return param, true
}

// skipBody consumes a brace-balanced function body.
func (p *parser) skipBody(name string) bool {
	open := p.pos
	if !p.expect("{") {
		return false
	}
	depth := 1
	for depth > 0 {
		switch {
		case p.tok == scanner.EOF:
			p.errorf(open, "unterminated body of kernel %q", name)
			return false
		case p.text == "{":
			depth++
		case p.text == "}":
			depth--
		}
		p.next()
	}
	return true
}
