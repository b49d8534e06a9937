// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import "fmt"

// MaxReflectionItems bounds every count field of a reflection tree.
const MaxReflectionItems = 1 << 16

// The records below are the flat wire forms of the D3D11 reflection
// structs. Names are sent as separate strings after each record, so no
// field holds an address.

// ShaderDesc mirrors D3D11_SHADER_DESC without its Creator pointer.
type ShaderDesc struct {
	Version                     uint32
	Flags                       uint32
	ConstantBuffers             uint32
	BoundResources              uint32
	InputParameters             uint32
	OutputParameters            uint32
	InstructionCount            uint32
	TempRegisterCount           uint32
	TempArrayCount              uint32
	DefCount                    uint32
	DclCount                    uint32
	TextureNormalInstructions   uint32
	TextureLoadInstructions     uint32
	TextureCompInstructions     uint32
	TextureBiasInstructions     uint32
	TextureGradientInstructions uint32
	FloatInstructionCount       uint32
	IntInstructionCount         uint32
	UintInstructionCount        uint32
	StaticFlowControlCount      uint32
	DynamicFlowControlCount     uint32
	MacroInstructionCount       uint32
	ArrayInstructionCount       uint32
	CutInstructionCount         uint32
	EmitInstructionCount        uint32
	GSOutputTopology            uint32
	GSMaxOutputVertexCount      uint32
	InputPrimitive              uint32
	PatchConstantParameters     uint32
	GSInstanceCount             uint32
	ControlPoints               uint32
	HSOutputPrimitive           uint32
	HSPartitioning              uint32
	TessellatorDomain           uint32
	BarrierInstructions         uint32
	InterlockedInstructions     uint32
	TextureStoreInstructions    uint32
}

// SignatureParameterDesc mirrors D3D11_SIGNATURE_PARAMETER_DESC.
type SignatureParameterDesc struct {
	SemanticIndex   uint32
	Register        uint32
	SystemValueType uint32
	ComponentType   uint32
	Mask            uint8
	ReadWriteMask   uint8
	_               [2]byte
	Stream          uint32
	MinPrecision    uint32
}

// InputBindDesc mirrors D3D11_SHADER_INPUT_BIND_DESC.
type InputBindDesc struct {
	Type       uint32
	BindPoint  uint32
	BindCount  uint32
	Flags      uint32
	ReturnType uint32
	Dimension  uint32
	NumSamples uint32
}

// BufferDesc mirrors D3D11_SHADER_BUFFER_DESC.
type BufferDesc struct {
	Type      uint32
	Variables uint32
	Size      uint32
	Flags     uint32
}

// VariableDesc mirrors D3D11_SHADER_VARIABLE_DESC. HasDefault replaces the
// DefaultValue pointer; when set, Size bytes of default value follow.
type VariableDesc struct {
	StartOffset  uint32
	Size         uint32
	Flags        uint32
	HasDefault   uint32
	StartTexture uint32
	TextureSize  uint32
	StartSampler uint32
	SamplerSize  uint32
}

type SignatureParameter struct {
	SemanticName string
	SignatureParameterDesc
}

type ResourceBinding struct {
	Name string
	InputBindDesc
}

// ShaderVariable is one constant buffer member. DefaultValue is nil when the
// variable has no initializer.
type ShaderVariable struct {
	Name string
	VariableDesc
	DefaultValue []byte
}

type ConstantBuffer struct {
	Name string
	BufferDesc
	Variables []ShaderVariable
}

// ShaderReflector is the index-based view of a shader's metadata that the
// native reflection object exposes. The dispatcher walks it from 0 up to
// each count reported by Desc.
type ShaderReflector interface {
	Desc() (ShaderDesc, string)
	InputParameter(i int) SignatureParameter
	OutputParameter(i int) SignatureParameter
	ResourceBinding(i int) ResourceBinding
	ConstantBuffer(i int) ConstantBufferReflector
}

// ConstantBufferReflector is the index-based view of one constant buffer.
type ConstantBufferReflector interface {
	Desc() (BufferDesc, string)
	Variable(i int) ShaderVariable
}

// Reflection is a decoded reflection tree. The caller owns every buffer in it.
type Reflection struct {
	Summary         ShaderDesc
	Creator         string
	Inputs          []SignatureParameter
	Outputs         []SignatureParameter
	Resources       []ResourceBinding
	ConstantBuffers []ConstantBuffer
}

// Desc returns the summary record with its counts taken from the slices.
func (r *Reflection) Desc() (ShaderDesc, string) {
	desc := r.Summary
	desc.InputParameters = uint32(len(r.Inputs))
	desc.OutputParameters = uint32(len(r.Outputs))
	desc.BoundResources = uint32(len(r.Resources))
	desc.ConstantBuffers = uint32(len(r.ConstantBuffers))
	return desc, r.Creator
}

func (r *Reflection) InputParameter(i int) SignatureParameter  { return r.Inputs[i] }
func (r *Reflection) OutputParameter(i int) SignatureParameter { return r.Outputs[i] }
func (r *Reflection) ResourceBinding(i int) ResourceBinding    { return r.Resources[i] }

func (r *Reflection) ConstantBuffer(i int) ConstantBufferReflector {
	return &r.ConstantBuffers[i]
}

// ConstantBufferByName returns the first constant buffer called name, or nil.
func (r *Reflection) ConstantBufferByName(name string) *ConstantBuffer {
	for i := range r.ConstantBuffers {
		if r.ConstantBuffers[i].Name == name {
			return &r.ConstantBuffers[i]
		}
	}
	return nil
}

// Desc returns the buffer record with Variables taken from the slice.
func (cb *ConstantBuffer) Desc() (BufferDesc, string) {
	desc := cb.BufferDesc
	desc.Variables = uint32(len(cb.Variables))
	return desc, cb.Name
}

func (cb *ConstantBuffer) Variable(i int) ShaderVariable { return cb.Variables[i] }

// snapshotReflection copies sr into an owned tree by walking each accessor
// from 0 up to the count its summary reports.
func snapshotReflection(sr ShaderReflector) *Reflection {
	desc, creator := sr.Desc()
	r := &Reflection{Summary: desc, Creator: creator}
	for i := 0; i < int(desc.InputParameters); i++ {
		r.Inputs = append(r.Inputs, sr.InputParameter(i))
	}
	for i := 0; i < int(desc.OutputParameters); i++ {
		r.Outputs = append(r.Outputs, sr.OutputParameter(i))
	}
	for i := 0; i < int(desc.BoundResources); i++ {
		r.Resources = append(r.Resources, sr.ResourceBinding(i))
	}
	for i := 0; i < int(desc.ConstantBuffers); i++ {
		cbr := sr.ConstantBuffer(i)
		bd, name := cbr.Desc()
		cb := ConstantBuffer{Name: name, BufferDesc: bd}
		for j := 0; j < int(bd.Variables); j++ {
			v := cbr.Variable(j)
			if v.DefaultValue != nil {
				v.DefaultValue = append([]byte(nil), v.DefaultValue...)
			}
			cb.Variables = append(cb.Variables, v)
		}
		r.ConstantBuffers = append(r.ConstantBuffers, cb)
	}
	return r
}

func encodeSignature(e *Encoder, p SignatureParameter) {
	e.Raw(&p.SignatureParameterDesc)
	e.String(p.SemanticName)
}

func encodeVariable(e *Encoder, v ShaderVariable) {
	desc := v.VariableDesc
	desc.HasDefault = 0
	if v.DefaultValue != nil {
		desc.HasDefault = 1
	}
	e.Raw(&desc)
	e.String(v.Name)
	if v.DefaultValue != nil {
		value := make([]byte, desc.Size)
		copy(value, v.DefaultValue)
		e.Raw(value)
	}
}

// encodeReflection flattens sr into the wire records, leaves first.
func encodeReflection(e *Encoder, sr ShaderReflector) {
	desc, creator := sr.Desc()
	e.Raw(&desc)
	e.String(creator)
	for i := 0; i < int(desc.InputParameters); i++ {
		encodeSignature(e, sr.InputParameter(i))
	}
	for i := 0; i < int(desc.OutputParameters); i++ {
		encodeSignature(e, sr.OutputParameter(i))
	}
	for i := 0; i < int(desc.BoundResources); i++ {
		rb := sr.ResourceBinding(i)
		e.Raw(&rb.InputBindDesc)
		e.String(rb.Name)
	}
	for i := 0; i < int(desc.ConstantBuffers); i++ {
		cb := sr.ConstantBuffer(i)
		bd, name := cb.Desc()
		e.Raw(&bd)
		e.String(name)
		for j := 0; j < int(bd.Variables); j++ {
			encodeVariable(e, cb.Variable(j))
		}
	}
}

func readCount(d *Decoder, n uint32, what string) int {
	if n > MaxReflectionItems {
		d.fail(fmt.Errorf("%w: %d %s", errBadLength, n, what))
		return 0
	}
	return int(n)
}

func decodeSignature(d *Decoder) SignatureParameter {
	var p SignatureParameter
	d.Raw(&p.SignatureParameterDesc)
	p.SemanticName = d.String()
	return p
}

// decodeReflection reads a tree. Every count in a summary record decides
// exactly how many records follow it.
func decodeReflection(d *Decoder) *Reflection {
	r := &Reflection{}
	d.Raw(&r.Summary)
	r.Creator = d.String()

	n := readCount(d, r.Summary.InputParameters, "input parameters")
	r.Inputs = make([]SignatureParameter, 0, n)
	for i := 0; i < n; i++ {
		r.Inputs = append(r.Inputs, decodeSignature(d))
	}

	n = readCount(d, r.Summary.OutputParameters, "output parameters")
	r.Outputs = make([]SignatureParameter, 0, n)
	for i := 0; i < n; i++ {
		r.Outputs = append(r.Outputs, decodeSignature(d))
	}

	n = readCount(d, r.Summary.BoundResources, "bound resources")
	r.Resources = make([]ResourceBinding, 0, n)
	for i := 0; i < n; i++ {
		var rb ResourceBinding
		d.Raw(&rb.InputBindDesc)
		rb.Name = d.String()
		r.Resources = append(r.Resources, rb)
	}

	n = readCount(d, r.Summary.ConstantBuffers, "constant buffers")
	r.ConstantBuffers = make([]ConstantBuffer, 0, n)
	for i := 0; i < n; i++ {
		var cb ConstantBuffer
		d.Raw(&cb.BufferDesc)
		cb.Name = d.String()
		m := readCount(d, cb.BufferDesc.Variables, "variables")
		cb.Variables = make([]ShaderVariable, 0, m)
		for j := 0; j < m; j++ {
			var v ShaderVariable
			d.Raw(&v.VariableDesc)
			v.Name = d.String()
			if v.HasDefault != 0 {
				v.DefaultValue = d.RawBytes(int64(v.Size))
			}
			cb.Variables = append(cb.Variables, v)
		}
		r.ConstantBuffers = append(r.ConstantBuffers, cb)
	}
	return r
}

func (r *ReflectResult) decode(d *Decoder) {
	r.Status = readStatus(d)
	if !r.Status.Failed() {
		r.Reflection = decodeReflection(d)
	}
}

// reflectReply is the worker-side form of a REFLECT result.
type reflectReply struct {
	status    HRESULT
	reflector ShaderReflector
}

func (r *reflectReply) encode(e *Encoder) {
	if !r.status.Failed() && r.reflector == nil {
		r.status = EFail
	}
	writeStatus(e, r.status)
	if !r.status.Failed() {
		encodeReflection(e, r.reflector)
	}
}
