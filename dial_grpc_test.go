//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCClient(t *testing.T, c Compiler) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterGRPCWorker(s, c, WithServerLogger(quietLogger()))
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	client, err := NewClient(
		WithTransport(TransportGRPC),
		WithRemoteAddr("passthrough:///bufnet"),
		WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGRPCTransport(t *testing.T) {
	if !HasTransport(TransportGRPC) {
		t.Fatal("grpc transport not registered")
	}
	client := newGRPCClient(t, echoCompiler{})
	ctx := context.Background()

	for _, src := range []string{"first", "second\x00with nul"} {
		res, err := client.Compile(ctx, &CompileRequest{Source: []byte(src), Target: "gs_5_0"})
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if string(res.Code) != src || string(res.Errors) != "gs_5_0" {
			t.Fatalf("result = %+v", res)
		}
	}

	rr, err := client.Reflect(ctx, &ReflectRequest{Bytecode: []byte{1}, Interface: IIDShaderReflection})
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if !reflect.DeepEqual(rr.Reflection, sampleReflection()) {
		t.Fatalf("reflection = %+v", rr.Reflection)
	}
}

func TestGRPCCompilerFailure(t *testing.T) {
	m := &mockCompiler{compile: CompileResult{Status: EFail, Errors: []byte("error X3501")}}
	client := newGRPCClient(t, m)

	res, err := client.Compile(context.Background(), &CompileRequest{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Status != EFail || string(res.Errors) != "error X3501" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGRPCRequiresAddress(t *testing.T) {
	client, err := NewClient(WithTransport(TransportGRPC), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if _, err := client.Strip(context.Background(), &StripRequest{}); !errors.Is(err, ErrSpawn) {
		t.Fatalf("err = %v, want ErrSpawn", err)
	}
}
