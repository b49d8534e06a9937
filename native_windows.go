// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build windows

package d3dbridge

import (
	"bytes"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// iidShaderReflection is IID_ID3D11ShaderReflection as of d3dcompiler_47.
var iidShaderReflection = windows.GUID{
	Data1: 0x8d536ca1,
	Data2: 0x0cca,
	Data3: 0x4956,
	Data4: [8]byte{0xa8, 0x37, 0x78, 0x69, 0x63, 0x75, 0x55, 0x84},
}

// Vtable slots. Constant buffers and variables are not IUnknowns, so their
// methods start at 0.
const (
	vtRelease          = 2
	vtGetBufferPointer = 3
	vtGetBufferSize    = 4

	vtReflGetDesc                  = 3
	vtReflGetConstantBufferByIndex = 4
	vtReflGetResourceBindingDesc   = 6
	vtReflGetInputParameterDesc    = 7
	vtReflGetOutputParameterDesc   = 8

	vtCBGetDesc            = 0
	vtCBGetVariableByIndex = 1

	vtVarGetDesc = 0
)

// comObject is any interface pointer: its first word is the vtable.
type comObject struct {
	vtbl *[32]uintptr
}

func (o *comObject) call(slot int, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(o.vtbl[slot], append([]uintptr{uintptr(unsafe.Pointer(o))}, args...)...)
	return r
}

// takeBlob copies an ID3DBlob out and releases it. nil stays nil.
func takeBlob(b *comObject) []byte {
	if b == nil {
		return nil
	}
	defer b.call(vtRelease)
	ptr := b.call(vtGetBufferPointer)
	n := b.call(vtGetBufferSize)
	if n == 0 {
		return []byte{}
	}
	return bytes.Clone(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

func dataPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func cString(s string) (*byte, error) {
	return windows.BytePtrFromString(s)
}

func optionalCString(s *string) (*byte, error) {
	if s == nil {
		return nil, nil
	}
	return cString(*s)
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	return windows.BytePtrToString(p)
}

type nativeCompiler struct {
	dll         *windows.DLL
	compile     *windows.Proc
	reflect     *windows.Proc
	strip       *windows.Proc
	disassemble *windows.Proc
}

// NewNativeCompiler loads library (for example d3dcompiler_47.dll) and
// resolves the four entry points the protocol needs.
func NewNativeCompiler(library string) (Compiler, error) {
	dll, err := windows.LoadDLL(library)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", library, err)
	}
	c := &nativeCompiler{dll: dll}
	for name, dst := range map[string]**windows.Proc{
		"D3DCompile":     &c.compile,
		"D3DReflect":     &c.reflect,
		"D3DStripShader": &c.strip,
		"D3DDisassemble": &c.disassemble,
	} {
		proc, err := dll.FindProc(name)
		if err != nil {
			dll.Release()
			return nil, fmt.Errorf("%s: %w", library, err)
		}
		*dst = proc
	}
	return c, nil
}

func (c *nativeCompiler) Compile(req *CompileRequest) CompileResult {
	file, err := optionalCString(req.FileName)
	if err != nil {
		return CompileResult{Status: EFail, Errors: []byte(err.Error())}
	}
	entry, err := cString(req.EntryPoint)
	if err != nil {
		return CompileResult{Status: EFail, Errors: []byte(err.Error())}
	}
	target, err := cString(req.Target)
	if err != nil {
		return CompileResult{Status: EFail, Errors: []byte(err.Error())}
	}

	var code, errs *comObject
	r, _, _ := c.compile.Call(
		dataPtr(req.Source),
		uintptr(len(req.Source)),
		uintptr(unsafe.Pointer(file)),
		0, // defines are not carried
		0, // include handlers are not carried
		uintptr(unsafe.Pointer(entry)),
		uintptr(unsafe.Pointer(target)),
		uintptr(req.Flags1),
		uintptr(req.Flags2),
		uintptr(unsafe.Pointer(&code)),
		uintptr(unsafe.Pointer(&errs)),
	)
	return CompileResult{
		Status: HRESULT(int32(r)),
		Code:   takeBlob(code),
		Errors: takeBlob(errs),
	}
}

func (c *nativeCompiler) Reflect(req *ReflectRequest) (HRESULT, ShaderReflector) {
	if req.Interface != IIDShaderReflection {
		return ENoInterface, nil
	}
	var obj *comObject
	r, _, _ := c.reflect.Call(
		dataPtr(req.Bytecode),
		uintptr(len(req.Bytecode)),
		uintptr(unsafe.Pointer(&iidShaderReflection)),
		uintptr(unsafe.Pointer(&obj)),
	)
	status := HRESULT(int32(r))
	if status.Failed() || obj == nil {
		return status, nil
	}
	return status, &nativeReflector{obj: obj}
}

func (c *nativeCompiler) Strip(req *StripRequest) StripResult {
	var out *comObject
	r, _, _ := c.strip.Call(
		dataPtr(req.Bytecode),
		uintptr(len(req.Bytecode)),
		uintptr(req.Flags),
		uintptr(unsafe.Pointer(&out)),
	)
	return StripResult{Status: HRESULT(int32(r)), Stripped: takeBlob(out)}
}

func (c *nativeCompiler) Disassemble(req *DisassembleRequest) DisassembleResult {
	comments, err := optionalCString(req.Comments)
	if err != nil {
		return DisassembleResult{Status: EFail}
	}
	var out *comObject
	r, _, _ := c.disassemble.Call(
		dataPtr(req.Bytecode),
		uintptr(len(req.Bytecode)),
		uintptr(req.Flags),
		uintptr(unsafe.Pointer(comments)),
		uintptr(unsafe.Pointer(&out)),
	)
	return DisassembleResult{Status: HRESULT(int32(r)), Text: takeBlob(out)}
}

// Native layouts of the D3D11 reflection structs on amd64. Each is the flat
// wire record with its name pointer in front.
type (
	nativeShaderDesc struct {
		Version uint32
		Creator *byte
		Tail    [36]uint32
	}
	nativeSignatureDesc struct {
		SemanticName *byte
		SignatureParameterDesc
	}
	nativeBindDesc struct {
		Name *byte
		InputBindDesc
	}
	nativeBufferDesc struct {
		Name *byte
		BufferDesc
	}
	nativeVariableDesc struct {
		Name         *byte
		StartOffset  uint32
		Size         uint32
		Flags        uint32
		DefaultValue unsafe.Pointer
		StartTexture uint32
		TextureSize  uint32
		StartSampler uint32
		SamplerSize  uint32
	}
)

// nativeReflector walks an ID3D11ShaderReflection.
type nativeReflector struct {
	obj *comObject
}

func (n *nativeReflector) Desc() (ShaderDesc, string) {
	var raw nativeShaderDesc
	n.obj.call(vtReflGetDesc, uintptr(unsafe.Pointer(&raw)))
	desc := ShaderDesc{Version: raw.Version}
	*(*[36]uint32)(unsafe.Pointer(&desc.Flags)) = raw.Tail
	return desc, goString(raw.Creator)
}

func (n *nativeReflector) signature(slot, i int) SignatureParameter {
	var raw nativeSignatureDesc
	n.obj.call(slot, uintptr(i), uintptr(unsafe.Pointer(&raw)))
	return SignatureParameter{
		SemanticName:           goString(raw.SemanticName),
		SignatureParameterDesc: raw.SignatureParameterDesc,
	}
}

func (n *nativeReflector) InputParameter(i int) SignatureParameter {
	return n.signature(vtReflGetInputParameterDesc, i)
}

func (n *nativeReflector) OutputParameter(i int) SignatureParameter {
	return n.signature(vtReflGetOutputParameterDesc, i)
}

func (n *nativeReflector) ResourceBinding(i int) ResourceBinding {
	var raw nativeBindDesc
	n.obj.call(vtReflGetResourceBindingDesc, uintptr(i), uintptr(unsafe.Pointer(&raw)))
	return ResourceBinding{Name: goString(raw.Name), InputBindDesc: raw.InputBindDesc}
}

func (n *nativeReflector) ConstantBuffer(i int) ConstantBufferReflector {
	ptr := n.obj.call(vtReflGetConstantBufferByIndex, uintptr(i))
	return &nativeConstantBuffer{obj: (*comObject)(unsafe.Pointer(ptr))}
}

// Release drops the reflection object. Buffers and variables it handed out
// are owned by it.
func (n *nativeReflector) Release() {
	n.obj.call(vtRelease)
}

type nativeConstantBuffer struct {
	obj *comObject
}

func (cb *nativeConstantBuffer) Desc() (BufferDesc, string) {
	var raw nativeBufferDesc
	cb.obj.call(vtCBGetDesc, uintptr(unsafe.Pointer(&raw)))
	return raw.BufferDesc, goString(raw.Name)
}

func (cb *nativeConstantBuffer) Variable(i int) ShaderVariable {
	ptr := cb.obj.call(vtCBGetVariableByIndex, uintptr(i))
	v := (*comObject)(unsafe.Pointer(ptr))
	var raw nativeVariableDesc
	v.call(vtVarGetDesc, uintptr(unsafe.Pointer(&raw)))
	sv := ShaderVariable{
		Name: goString(raw.Name),
		VariableDesc: VariableDesc{
			StartOffset:  raw.StartOffset,
			Size:         raw.Size,
			Flags:        raw.Flags,
			StartTexture: raw.StartTexture,
			TextureSize:  raw.TextureSize,
			StartSampler: raw.StartSampler,
			SamplerSize:  raw.SamplerSize,
		},
	}
	if raw.DefaultValue != nil {
		sv.HasDefault = 1
		sv.DefaultValue = bytes.Clone(unsafe.Slice((*byte)(raw.DefaultValue), raw.Size))
	}
	return sv
}
