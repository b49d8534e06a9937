// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Finished terminates every message in both directions.
const Finished int64 = 0x42000000

// MaxPayload bounds any single length-prefixed field. Larger values are
// treated as a desynchronised stream rather than allocated.
const MaxPayload = 256 << 20

// absentBlob is the length written for a blob that is not present.
const absentBlob = -1

var (
	// ErrMalformed reports a message whose trailing sentinel was missing,
	// wrong, or unreadable.
	ErrMalformed = errors.New("d3dbridge: malformed message")

	errBadLength = errors.New("length out of range")
)

// wireOrder is the byte order of every multi-byte field. Both ends always
// share one machine.
var wireOrder = binary.NativeEndian

// Encoder writes protocol primitives. Write errors are sticky and reported
// by Finish.
type Encoder struct {
	w       *bufio.Writer
	err     error
	scratch [8]byte
}

// NewEncoder returns an Encoder buffering writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

// Integer writes a 64-bit signed integer.
func (e *Encoder) Integer(x int64) {
	wireOrder.PutUint64(e.scratch[:], uint64(x))
	e.write(e.scratch[:])
}

// String writes a length-prefixed string. No terminator is written.
func (e *Encoder) String(s string) {
	e.Integer(int64(len(s)))
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

// Bytes writes a length-prefixed byte slice.
func (e *Encoder) Bytes(b []byte) {
	e.Integer(int64(len(b)))
	e.write(b)
}

// Blob writes a presence-prefixed byte slice: nil is absent (-1), a
// non-nil empty slice is present with length 0.
func (e *Encoder) Blob(b []byte) {
	if b == nil {
		e.Integer(absentBlob)
		return
	}
	e.Bytes(b)
}

// Raw copies a fixed-size record byte-for-byte. v must be a pointer-free
// struct, array or basic value accepted by encoding/binary.
func (e *Encoder) Raw(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, wireOrder, v)
}

// Finish writes the sentinel and flushes the message as one unit.
func (e *Encoder) Finish() error {
	e.Integer(Finished)
	if e.err == nil {
		e.err = e.w.Flush()
	}
	err := e.err
	e.err = nil
	return err
}

// Decoder reads protocol primitives. It never fails mid-message: once the
// stream errors every later read yields a zero value, and the failure is
// reported by Finish.
type Decoder struct {
	r       *bufio.Reader
	err     error
	max     int64
	scratch [8]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), max: MaxPayload}
}

// SetMaxPayload changes the bound applied to length fields.
func (d *Decoder) SetMaxPayload(n int64) { d.max = n }

// Err returns the sticky read error of the current message.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) read(p []byte) bool {
	if d.err != nil {
		clear(p)
		return false
	}
	if _, err := io.ReadFull(d.r, p); err != nil {
		clear(p)
		d.fail(err)
		return false
	}
	return true
}

// Integer reads a 64-bit signed integer.
func (d *Decoder) Integer() int64 {
	if !d.read(d.scratch[:]) {
		return 0
	}
	return int64(wireOrder.Uint64(d.scratch[:]))
}

func (d *Decoder) length() (int64, bool) {
	n := d.Integer()
	if d.err != nil {
		return 0, false
	}
	if n < 0 || n > d.max {
		d.fail(fmt.Errorf("%w: %d", errBadLength, n))
		return 0, false
	}
	return n, true
}

// String reads a length-prefixed string.
func (d *Decoder) String() string {
	n, ok := d.length()
	if !ok {
		return ""
	}
	buf := make([]byte, n)
	if !d.read(buf) {
		return ""
	}
	return string(buf)
}

// Bytes reads a length-prefixed byte slice. The result is never nil.
func (d *Decoder) Bytes() []byte {
	n, ok := d.length()
	if !ok {
		return []byte{}
	}
	return d.RawBytes(n)
}

// RawBytes reads exactly n bytes with no prefix.
func (d *Decoder) RawBytes(n int64) []byte {
	if n < 0 || n > d.max {
		d.fail(fmt.Errorf("%w: %d", errBadLength, n))
		return []byte{}
	}
	buf := make([]byte, n)
	if !d.read(buf) {
		return []byte{}
	}
	return buf
}

// Blob reads a presence-prefixed byte slice. Absent decodes as nil.
func (d *Decoder) Blob() []byte {
	n := d.Integer()
	if d.err != nil {
		return nil
	}
	if n == absentBlob {
		return nil
	}
	return d.RawBytes(n)
}

// Raw fills the fixed-size record pointed to by v.
func (d *Decoder) Raw(v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, wireOrder, v); err != nil {
		d.fail(err)
	}
}

// Finish consumes the trailing sentinel and resets the sticky state for the
// next message.
func (d *Decoder) Finish() error {
	end := d.Integer()
	err := d.err
	d.err = nil
	switch {
	case err != nil:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case end != Finished:
		return fmt.Errorf("%w: trailing value %#x", ErrMalformed, end)
	}
	return nil
}
