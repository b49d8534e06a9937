// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bytes"
	"errors"
	"testing"
)

func TestOpaquePayloadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0},
		{0, 0, 0},
		[]byte("float4 main():SV_Target{return 0;}"),
		{0xde, 0xad, 0x00, 0xbe, 0xef, 0xff, 0x80},
		[]byte("préfixe\x00suffixe ✓"),
		bytes.Repeat([]byte{0, 1, 2, 0xfe}, 5000),
	}

	for _, p := range payloads {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		enc.Blob(p)
		enc.String(string(p))
		enc.Bytes(p)
		if err := enc.Finish(); err != nil {
			t.Fatalf("Finish: %v", err)
		}

		dec := NewDecoder(&buf)
		blob := dec.Blob()
		str := dec.String()
		raw := dec.Bytes()
		if err := dec.Finish(); err != nil {
			t.Fatalf("decode %d bytes: %v", len(p), err)
		}
		if !bytes.Equal(blob, p) || blob == nil {
			t.Errorf("blob: got %x, want %x", blob, p)
		}
		if str != string(p) {
			t.Errorf("string: got %q, want %q", str, p)
		}
		if !bytes.Equal(raw, p) {
			t.Errorf("bytes: got %x, want %x", raw, p)
		}
	}
}

func TestAbsentBlob(t *testing.T) {
	var absent, empty bytes.Buffer

	enc := NewEncoder(&absent)
	enc.Blob(nil)
	enc.Finish()
	enc = NewEncoder(&empty)
	enc.Blob([]byte{})
	enc.Finish()

	if got := int64(wireOrder.Uint64(absent.Bytes())); got != -1 {
		t.Errorf("absent blob prefix = %d, want -1", got)
	}
	if got := int64(wireOrder.Uint64(empty.Bytes())); got != 0 {
		t.Errorf("empty blob prefix = %d, want 0", got)
	}

	dec := NewDecoder(&absent)
	if b := dec.Blob(); b != nil {
		t.Errorf("absent blob decoded as %#v, want nil", b)
	}
	if err := dec.Finish(); err != nil {
		t.Fatal(err)
	}

	dec = NewDecoder(&empty)
	if b := dec.Blob(); b == nil || len(b) != 0 {
		t.Errorf("empty blob decoded as %#v, want non-nil empty", b)
	}
	if err := dec.Finish(); err != nil {
		t.Fatal(err)
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, Finished, int64(OpCompile), -1 << 63, 1<<63 - 1}
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range values {
		enc.Integer(v)
	}
	enc.Finish()

	if buf.Len() != 8*(len(values)+1) {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), 8*(len(values)+1))
	}
	dec := NewDecoder(&buf)
	for _, want := range values {
		if got := dec.Integer(); got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
	if err := dec.Finish(); err != nil {
		t.Fatal(err)
	}
}

func TestSentinelMismatch(t *testing.T) {
	for _, bad := range []int64{0, -1, Finished + 1, int64(OpCompile)} {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		enc.String("payload")
		enc.Finish()

		// Overwrite the sentinel in place.
		b := buf.Bytes()
		wireOrder.PutUint64(b[len(b)-8:], uint64(bad))

		dec := NewDecoder(bytes.NewReader(b))
		if s := dec.String(); s != "payload" {
			t.Fatalf("payload = %q", s)
		}
		if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
			t.Errorf("sentinel %#x: got %v, want ErrMalformed", bad, err)
		}
	}
}

func TestTruncatedMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Integer(42)
	enc.Blob([]byte("0123456789"))
	enc.Finish()

	full := buf.Bytes()
	for cut := 0; cut < len(full); cut++ {
		dec := NewDecoder(bytes.NewReader(full[:cut]))
		dec.Integer()
		dec.Blob()
		if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("cut at %d: got %v, want ErrMalformed", cut, err)
		}
	}
}

func TestReadPastEndYieldsZero(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	if v := dec.Integer(); v != 0 {
		t.Errorf("Integer = %d", v)
	}
	if s := dec.String(); s != "" {
		t.Errorf("String = %q", s)
	}
	if b := dec.Bytes(); b == nil || len(b) != 0 {
		t.Errorf("Bytes = %#v", b)
	}
	var desc BufferDesc
	dec.Raw(&desc)
	if desc != (BufferDesc{}) {
		t.Errorf("Raw = %+v", desc)
	}
	if dec.Err() == nil {
		t.Error("expected a sticky error")
	}
}

func TestOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Integer(MaxPayload + 1)
	enc.Finish()

	dec := NewDecoder(&buf)
	if b := dec.Blob(); len(b) != 0 {
		t.Fatalf("oversized blob decoded %d bytes", len(b))
	}
	if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestNegativeStringLength(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Integer(-5)
	enc.Finish()

	dec := NewDecoder(&buf)
	_ = dec.String()
	if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestSetMaxPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Bytes(make([]byte, 64))
	enc.Finish()

	dec := NewDecoder(&buf)
	dec.SetMaxPayload(16)
	dec.Bytes()
	if err := dec.Finish(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestDecoderRecoversAfterFinish(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Integer(1)
	enc.Integer(7) // wrong sentinel
	enc.Integer(2)
	enc.Finish()

	dec := NewDecoder(&buf)
	dec.Integer()
	if err := dec.Finish(); err == nil {
		t.Fatal("first message should be malformed")
	}
	if v := dec.Integer(); v != 2 {
		t.Fatalf("next message starts with %d, want 2", v)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("second message: %v", err)
	}
}
