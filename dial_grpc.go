//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// Over gRPC each complete protocol message travels as the body of one unary
// call, so the worker can run on a separate Windows machine. The bytes are
// the same frames the pipe transports carry.
const (
	frameCodecName = "d3dbridge-frame"
	exchangeMethod = "/d3dbridge.Worker/Exchange"
)

func init() {
	// Register gRPC transport when build tag is enabled
	encoding.RegisterCodec(frameCodec{})
	registerTransport(TransportGRPC, spawnGRPC)
}

// frame is one complete message, sentinel included.
type frame struct {
	data []byte
}

// frameCodec passes frames through unchanged.
type frameCodec struct{}

func (frameCodec) Name() string { return frameCodecName }

func (frameCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("frame codec: cannot marshal %T", v)
	}
	return f.data, nil
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("frame codec: cannot unmarshal into %T", v)
	}
	f.data = bytes.Clone(data)
	return nil
}

func spawnGRPC(ctx context.Context, o *dialOptions) (*Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.remoteAddr == "" {
		return nil, errors.New("grpc transport requires WithRemoteAddr")
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if o.dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(o.dialer))
	}
	conn, err := grpc.NewClient(o.remoteAddr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &grpcStream{conn: conn, ctx: streamCtx}
	kill := func() {
		cancel()
		conn.Close()
	}
	shutdown := func() error {
		cancel()
		return conn.Close()
	}
	return newWorker(s, s, 0, shutdown, kill), nil
}

// grpcStream buffers one request and turns the first read after it into an
// Exchange call.
type grpcStream struct {
	conn    *grpc.ClientConn
	ctx     context.Context
	pending bytes.Buffer
	resp    bytes.Reader
}

func (s *grpcStream) Write(p []byte) (int, error) {
	return s.pending.Write(p)
}

func (s *grpcStream) Read(p []byte) (int, error) {
	if s.resp.Len() == 0 && s.pending.Len() > 0 {
		req := &frame{data: bytes.Clone(s.pending.Bytes())}
		s.pending.Reset()
		var res frame
		err := s.conn.Invoke(s.ctx, exchangeMethod, req, &res, grpc.CallContentSubtype(frameCodecName))
		if err != nil {
			return 0, fmt.Errorf("grpc exchange: %w", err)
		}
		s.resp.Reset(res.data)
	}
	return s.resp.Read(p)
}

// exchanger is the service implementation type checked by RegisterService.
type exchanger interface {
	exchange(ctx context.Context, req []byte) ([]byte, error)
}

type grpcWorker struct {
	mu  sync.Mutex
	srv *Server
}

func (g *grpcWorker) exchange(ctx context.Context, req []byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out bytes.Buffer
	if err := g.srv.Serve(bytes.NewReader(req), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(frame)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		out, err := srv.(exchanger).exchange(ctx, req.(*frame).data)
		if err != nil {
			return nil, err
		}
		return &frame{data: out}, nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	return interceptor(ctx, in, info, handle)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: "d3dbridge.Worker",
	HandlerType: (*exchanger)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "d3dbridge",
}

// RegisterGRPCWorker serves c on s. Requests from all peers share c and are
// run one at a time.
func RegisterGRPCWorker(s *grpc.Server, c Compiler, opts ...ServerOption) {
	s.RegisterService(&workerServiceDesc, &grpcWorker{srv: NewServer(c, opts...)})
}

// ServeGRPC serves c on lis until the listener fails.
func ServeGRPC(lis net.Listener, c Compiler, opts ...ServerOption) error {
	s := grpc.NewServer()
	RegisterGRPCWorker(s, c, opts...)
	return s.Serve(lis)
}
