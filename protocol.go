// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import "fmt"

// Opcode selects the remote operation a request invokes.
type Opcode int64

// Opcodes live in a private range so that a desynchronised stream is
// unlikely to produce one by accident.
const (
	OpCompile     Opcode = 0x42001000
	OpReflect     Opcode = 0x42001001
	OpStrip       Opcode = 0x42001002
	OpDisassemble Opcode = 0x42001003
)

// IIDShaderReflection is the interface id a REFLECT request passes for
// ID3D11ShaderReflection.
const IIDShaderReflection int64 = 0x42002000

var opcodeNames = map[Opcode]string{
	OpCompile:     "COMPILE",
	OpReflect:     "REFLECT",
	OpStrip:       "STRIP",
	OpDisassemble: "DISASSEMBLE",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%#x)", int64(op))
}

// Known reports whether op is one of the defined operations.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// HRESULT is the status code returned by the native compiler.
type HRESULT int32

const (
	SOK   HRESULT = 0
	EFail HRESULT = -0x7fffbffb // 0x80004005
)

// Failed reports whether h is an error status.
func (h HRESULT) Failed() bool { return h < 0 }

func (h HRESULT) String() string { return fmt.Sprintf("0x%08x", uint32(h)) }

func writeStatus(e *Encoder, h HRESULT) { e.Integer(int64(h)) }

func readStatus(d *Decoder) HRESULT { return HRESULT(int32(d.Integer())) }

func optionalString(e *Encoder, s *string) {
	if s == nil {
		e.Integer(0)
		return
	}
	e.Integer(1)
	e.String(*s)
}

func readOptionalString(d *Decoder) *string {
	if d.Integer() == 0 {
		return nil
	}
	s := d.String()
	return &s
}

// CompileRequest holds the arguments of D3DCompile. Macro definitions and
// include handlers are not carried.
type CompileRequest struct {
	Source     []byte
	FileName   *string
	EntryPoint string
	Target     string
	Flags1     uint32
	Flags2     uint32
}

func (r *CompileRequest) encode(e *Encoder) {
	e.String(string(r.Source))
	optionalString(e, r.FileName)
	e.String(r.EntryPoint)
	e.String(r.Target)
	e.Integer(int64(r.Flags1))
	e.Integer(int64(r.Flags2))
}

func (r *CompileRequest) decode(d *Decoder) {
	r.Source = []byte(d.String())
	r.FileName = readOptionalString(d)
	r.EntryPoint = d.String()
	r.Target = d.String()
	r.Flags1 = uint32(d.Integer())
	r.Flags2 = uint32(d.Integer())
}

// CompileResult carries the compiled code and the compiler's messages.
// Either blob may be nil when the compiler produced none.
type CompileResult struct {
	Status HRESULT
	Code   []byte
	Errors []byte
}

func (r *CompileResult) encode(e *Encoder) {
	writeStatus(e, r.Status)
	e.Blob(r.Code)
	e.Blob(r.Errors)
}

func (r *CompileResult) decode(d *Decoder) {
	r.Status = readStatus(d)
	r.Code = d.Blob()
	r.Errors = d.Blob()
}

// ReflectRequest asks for the reflection tree of compiled bytecode.
type ReflectRequest struct {
	Bytecode  []byte
	Interface int64
}

func (r *ReflectRequest) encode(e *Encoder) {
	e.Bytes(r.Bytecode)
	e.Integer(r.Interface)
}

func (r *ReflectRequest) decode(d *Decoder) {
	r.Bytecode = d.Bytes()
	r.Interface = d.Integer()
}

// ReflectResult holds the decoded tree when Status succeeded.
type ReflectResult struct {
	Status     HRESULT
	Reflection *Reflection
}

// StripRequest holds the arguments of D3DStripShader.
type StripRequest struct {
	Bytecode []byte
	Flags    uint32
}

func (r *StripRequest) encode(e *Encoder) {
	e.Bytes(r.Bytecode)
	e.Integer(int64(r.Flags))
}

func (r *StripRequest) decode(d *Decoder) {
	r.Bytecode = d.Bytes()
	r.Flags = uint32(d.Integer())
}

type StripResult struct {
	Status   HRESULT
	Stripped []byte
}

func (r *StripResult) encode(e *Encoder) {
	writeStatus(e, r.Status)
	e.Blob(r.Stripped)
}

func (r *StripResult) decode(d *Decoder) {
	r.Status = readStatus(d)
	r.Stripped = d.Blob()
}

// DisassembleRequest holds the arguments of D3DDisassemble.
type DisassembleRequest struct {
	Bytecode []byte
	Flags    uint32
	Comments *string
}

func (r *DisassembleRequest) encode(e *Encoder) {
	e.Bytes(r.Bytecode)
	e.Integer(int64(r.Flags))
	optionalString(e, r.Comments)
}

func (r *DisassembleRequest) decode(d *Decoder) {
	r.Bytecode = d.Bytes()
	r.Flags = uint32(d.Integer())
	r.Comments = readOptionalString(d)
}

type DisassembleResult struct {
	Status HRESULT
	Text   []byte
}

func (r *DisassembleResult) encode(e *Encoder) {
	writeStatus(e, r.Status)
	e.Blob(r.Text)
}

func (r *DisassembleResult) decode(d *Decoder) {
	r.Status = readStatus(d)
	r.Text = d.Blob()
}
