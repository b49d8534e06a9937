// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"errors"
	"fmt"
	"io"
)

// Compiler is the native shader compiler hosted by a worker. Failures are
// reported through the returned status, never through panics; the server
// still recovers from one and answers E_FAIL. A ShaderReflector with a
// Release method is released once it has been copied.
type Compiler interface {
	Compile(req *CompileRequest) CompileResult
	Reflect(req *ReflectRequest) (HRESULT, ShaderReflector)
	Strip(req *StripRequest) StripResult
	Disassemble(req *DisassembleRequest) DisassembleResult
}

// Server decodes requests from a stream, runs them on a Compiler and writes
// the results back. One Server handles one peer at a time.
type Server struct {
	compiler Compiler
	log      *Logger
}

// NewServer creates a dispatcher for c.
func NewServer(c Compiler, opts ...ServerOption) *Server {
	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	return &Server{compiler: c, log: o.logger}
}

// Serve handles requests until r reaches end of stream, which is the normal
// shutdown signal and yields a nil error. Malformed requests are logged and
// skipped without a response.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	dec := NewDecoder(r)
	enc := NewEncoder(w)
	s.log.Debugf("worker: waiting for requests")

	for {
		op := Opcode(dec.Integer())
		if err := dec.Err(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.log.Debugf("worker: peer closed, exiting")
				dec.Finish()
				return nil
			}
			return fmt.Errorf("read opcode: %w", err)
		}
		if !op.Known() {
			s.log.Printf("worker: unknown opcode %v, skipping", op)
			continue
		}
		if err := s.dispatch(op, dec, enc); err != nil {
			return fmt.Errorf("write %v result: %w", op, err)
		}
	}
}

// reply is the result side of one operation.
type reply interface {
	encode(e *Encoder)
}

func (s *Server) dispatch(op Opcode, dec *Decoder, enc *Encoder) error {
	var (
		call  func() reply
		fails reply
	)
	switch op {
	case OpCompile:
		req := &CompileRequest{}
		req.decode(dec)
		s.log.Debugf("worker: %v([%d bytes], %q, %q, %#x, %#x)",
			op, len(req.Source), req.EntryPoint, req.Target, req.Flags1, req.Flags2)
		call = func() reply { res := s.compiler.Compile(req); return &res }
		fails = &CompileResult{Status: EFail}
	case OpReflect:
		req := &ReflectRequest{}
		req.decode(dec)
		s.log.Debugf("worker: %v([%d bytes], %#x)", op, len(req.Bytecode), req.Interface)
		call = func() reply {
			status, sr := s.compiler.Reflect(req)
			if sr == nil || status.Failed() {
				return &reflectReply{status: status}
			}
			if rel, ok := sr.(interface{ Release() }); ok {
				defer rel.Release()
			}
			return &reflectReply{status: status, reflector: snapshotReflection(sr)}
		}
		fails = &reflectReply{status: EFail}
	case OpStrip:
		req := &StripRequest{}
		req.decode(dec)
		s.log.Debugf("worker: %v([%d bytes], %#x)", op, len(req.Bytecode), req.Flags)
		call = func() reply { res := s.compiler.Strip(req); return &res }
		fails = &StripResult{Status: EFail}
	case OpDisassemble:
		req := &DisassembleRequest{}
		req.decode(dec)
		s.log.Debugf("worker: %v([%d bytes], %#x)", op, len(req.Bytecode), req.Flags)
		call = func() reply { res := s.compiler.Disassemble(req); return &res }
		fails = &DisassembleResult{Status: EFail}
	}

	if err := dec.Finish(); err != nil {
		s.log.Printf("worker: %v: dropping request: %v", op, err)
		return nil
	}

	res, ok := s.invoke(op, call)
	if !ok {
		res = fails
	}
	res.encode(enc)
	return enc.Finish()
}

// invoke runs the native call and converts a panic into a failed status.
// Native metadata is copied out inside the call, so encoding cannot fault
// halfway through a message.
func (s *Server) invoke(op Opcode, call func() reply) (res reply, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("worker: %v panicked: %v", op, r)
			res, ok = nil, false
		}
	}()
	return call(), true
}
