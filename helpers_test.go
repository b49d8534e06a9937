// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
)

// quietLogger keeps test output clean.
func quietLogger() *Logger { return NewLogger(io.Discard, false) }

// mockCompiler answers every operation with canned results and records the
// requests it saw.
type mockCompiler struct {
	mu sync.Mutex

	compile     CompileResult
	reflect     HRESULT
	reflection  ShaderReflector
	strip       StripResult
	disassemble DisassembleResult

	// block, when set, stalls Compile until it is closed.
	block chan struct{}

	compiles     []CompileRequest
	reflects     []ReflectRequest
	strips       []StripRequest
	disassembles []DisassembleRequest
}

func (m *mockCompiler) Compile(req *CompileRequest) CompileResult {
	if m.block != nil {
		<-m.block
	}
	if req.EntryPoint == "panic" {
		panic("compiler exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiles = append(m.compiles, *req)
	return m.compile
}

func (m *mockCompiler) Reflect(req *ReflectRequest) (HRESULT, ShaderReflector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reflects = append(m.reflects, *req)
	return m.reflect, m.reflection
}

func (m *mockCompiler) Strip(req *StripRequest) StripResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strips = append(m.strips, *req)
	return m.strip
}

func (m *mockCompiler) Disassemble(req *DisassembleRequest) DisassembleResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disassembles = append(m.disassembles, *req)
	return m.disassemble
}

func (m *mockCompiler) compileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.compiles)
}

// echoCompiler returns the source as code, the target as the error blob,
// and exits the process when asked to compile entry point "crash".
type echoCompiler struct{}

func (echoCompiler) Compile(req *CompileRequest) CompileResult {
	if req.EntryPoint == "crash" {
		os.Exit(3)
	}
	return CompileResult{Status: SOK, Code: bytes.Clone(req.Source), Errors: []byte(req.Target)}
}

func (echoCompiler) Reflect(req *ReflectRequest) (HRESULT, ShaderReflector) {
	return SOK, sampleReflection()
}

func (echoCompiler) Strip(req *StripRequest) StripResult {
	return StripResult{Status: SOK, Stripped: bytes.Clone(req.Bytecode)}
}

func (echoCompiler) Disassemble(req *DisassembleRequest) DisassembleResult {
	return DisassembleResult{Status: SOK, Text: []byte("; disassembly")}
}

// sampleReflection is a tree exercising every record kind. Its counts agree
// with its slices so that it survives a round trip unchanged.
func sampleReflection() *Reflection {
	return &Reflection{
		Summary: ShaderDesc{
			Version:          0x40,
			InputParameters:  2,
			OutputParameters: 1,
			BoundResources:   1,
			ConstantBuffers:  2,
			InstructionCount: 7,
		},
		Creator: "Microsoft (R) HLSL Shader Compiler 10.1",
		Inputs: []SignatureParameter{
			{SemanticName: "POSITION", SignatureParameterDesc: SignatureParameterDesc{Register: 0, ComponentType: 3, Mask: 0xf, ReadWriteMask: 0xf}},
			{SemanticName: "TEXCOORD", SignatureParameterDesc: SignatureParameterDesc{SemanticIndex: 1, Register: 1, ComponentType: 3, Mask: 0x3, ReadWriteMask: 0x3}},
		},
		Outputs: []SignatureParameter{
			{SemanticName: "SV_Target", SignatureParameterDesc: SignatureParameterDesc{SystemValueType: 64, ComponentType: 3, Mask: 0xf, Stream: 0}},
		},
		Resources: []ResourceBinding{
			{Name: "tex0", InputBindDesc: InputBindDesc{Type: 2, BindPoint: 0, BindCount: 1, ReturnType: 5, Dimension: 4, NumSamples: 0xffffffff}},
		},
		ConstantBuffers: []ConstantBuffer{
			{
				Name:       "$Globals",
				BufferDesc: BufferDesc{Variables: 2, Size: 32},
				Variables: []ShaderVariable{
					{Name: "tint", VariableDesc: VariableDesc{Size: 16, Flags: 2, HasDefault: 1}, DefaultValue: []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x80, 0x3f}},
					{Name: "scale", VariableDesc: VariableDesc{StartOffset: 16, Size: 4}},
				},
			},
			{
				Name:       "Empty",
				BufferDesc: BufferDesc{Variables: 0, Size: 16},
				Variables:  []ShaderVariable{},
			},
		},
	}
}

// newInprocClient starts a Client served by c on a goroutine.
func newInprocClient(t *testing.T, c Compiler, opts ...DialOption) *Client {
	t.Helper()
	opts = append([]DialOption{
		WithTransport(TransportInproc),
		WithCompiler(c),
		WithLogger(quietLogger()),
	}, opts...)
	client, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
