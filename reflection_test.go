// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func roundTripReflection(t *testing.T, sr ShaderReflector) *Reflection {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	encodeReflection(enc, sr)
	if err := enc.Finish(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := NewDecoder(&buf)
	r := decodeReflection(dec)
	if err := dec.Finish(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func TestReflectionRoundTrip(t *testing.T) {
	want := sampleReflection()
	got := roundTripReflection(t, want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	tint := got.ConstantBufferByName("$Globals").Variables[0]
	if tint.HasDefault != 1 || len(tint.DefaultValue) != 16 {
		t.Errorf("tint default = %v (%d bytes)", tint.HasDefault, len(tint.DefaultValue))
	}
	if scale := got.ConstantBufferByName("$Globals").Variables[1]; scale.DefaultValue != nil {
		t.Errorf("scale default = %x, want nil", scale.DefaultValue)
	}
	if cb := got.ConstantBufferByName("missing"); cb != nil {
		t.Errorf("ConstantBufferByName(missing) = %+v", cb)
	}
}

func TestReflectionCountsConsumedExactly(t *testing.T) {
	const marker = 0x1234_5678
	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			src := &Reflection{Creator: "counts"}
			for i := 0; i < n; i++ {
				src.Inputs = append(src.Inputs, SignatureParameter{
					SemanticName:           fmt.Sprintf("ATTR%d", i),
					SignatureParameterDesc: SignatureParameterDesc{SemanticIndex: uint32(i), Register: uint32(i)},
				})
			}

			var buf bytes.Buffer
			enc := NewEncoder(&buf)
			encodeReflection(enc, src)
			enc.Integer(marker)
			enc.Finish()

			dec := NewDecoder(&buf)
			got := decodeReflection(dec)
			if next := dec.Integer(); next != marker {
				t.Fatalf("stream misaligned: read %#x after the tree", next)
			}
			if err := dec.Finish(); err != nil {
				t.Fatal(err)
			}
			if len(got.Inputs) != n {
				t.Fatalf("decoded %d inputs, want %d", len(got.Inputs), n)
			}
			if got.Summary.InputParameters != uint32(n) {
				t.Errorf("summary reports %d inputs", got.Summary.InputParameters)
			}
			if n > 0 && got.Inputs[n-1].SemanticName != fmt.Sprintf("ATTR%d", n-1) {
				t.Errorf("last input = %q", got.Inputs[n-1].SemanticName)
			}
		})
	}
}

func TestReflectionCountTooLarge(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Raw(&ShaderDesc{ConstantBuffers: MaxReflectionItems + 1})
	enc.String("")
	enc.Finish()

	dec := NewDecoder(&buf)
	r := decodeReflection(dec)
	if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
	if len(r.ConstantBuffers) != 0 {
		t.Errorf("allocated %d buffers", len(r.ConstantBuffers))
	}
}

func TestDefaultValuePaddedToSize(t *testing.T) {
	src := &Reflection{
		ConstantBuffers: []ConstantBuffer{{
			Name: "cb",
			Variables: []ShaderVariable{
				{Name: "short", VariableDesc: VariableDesc{Size: 8}, DefaultValue: []byte{1, 2, 3}},
				// HasDefault without a value is not trusted.
				{Name: "flagged", VariableDesc: VariableDesc{Size: 4, HasDefault: 1}},
			},
		}},
	}
	got := roundTripReflection(t, src)
	vars := got.ConstantBuffers[0].Variables
	if !bytes.Equal(vars[0].DefaultValue, []byte{1, 2, 3, 0, 0, 0, 0, 0}) {
		t.Errorf("short default = %x", vars[0].DefaultValue)
	}
	if vars[0].HasDefault != 1 {
		t.Errorf("short HasDefault = %d", vars[0].HasDefault)
	}
	if vars[1].HasDefault != 0 || vars[1].DefaultValue != nil {
		t.Errorf("flagged = %+v", vars[1])
	}
	if got.ConstantBuffers[0].BufferDesc.Variables != 2 {
		t.Errorf("buffer reports %d variables", got.ConstantBuffers[0].BufferDesc.Variables)
	}
}

func TestSnapshotCopiesDefaults(t *testing.T) {
	src := sampleReflection()
	snap := snapshotReflection(src)
	src.ConstantBuffers[0].Variables[0].DefaultValue[0] = 0xff
	if snap.ConstantBuffers[0].Variables[0].DefaultValue[0] == 0xff {
		t.Fatal("snapshot shares default value storage")
	}
	if len(snap.Inputs) != 2 || snap.Creator != src.Creator {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestReflectReplyWithoutReflector(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	(&reflectReply{status: SOK}).encode(enc)
	enc.Finish()

	var res ReflectResult
	dec := NewDecoder(&buf)
	res.decode(dec)
	if err := dec.Finish(); err != nil {
		t.Fatal(err)
	}
	if res.Status != EFail || res.Reflection != nil {
		t.Fatalf("got %v %+v, want E_FAIL and no tree", res.Status, res.Reflection)
	}
}
