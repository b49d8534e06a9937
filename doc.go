// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package d3dbridge lets a Linux process call the Windows-only D3D shader
// compiler by hosting it in a worker process, usually under wine, and
// talking to that worker over its stdin and stdout.
//
// # Usage
//
// Client usage:
//
//	client, err := d3dbridge.NewClient(d3dbridge.WithConfig(d3dbridge.ConfigFromEnv()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Compile(ctx, &d3dbridge.CompileRequest{
//	    Source:     src,
//	    EntryPoint: "main",
//	    Target:     "ps_4_0",
//	})
//	if err != nil {
//	    // the exchange failed; res.Status is E_FAIL
//	}
//	if res.Status.Failed() {
//	    // the compiler rejected the shader; res.Errors has its messages
//	}
//
// Worker usage (see cmd/d3dbridge-worker):
//
//	compiler, _ := d3dbridge.NewNativeCompiler("d3dcompiler_47.dll")
//	d3dbridge.NewServer(compiler).Serve(os.Stdin, os.Stdout)
//
// # Wire format
//
// Every message is a 64-bit opcode, the operation's fields in a fixed
// order, and the Finished sentinel. Integers are 64-bit in native byte
// order, strings and byte arrays are length-prefixed, and blobs use -1 for
// absent. Reflection records are fixed-size structs copied as-is, with
// names following each record as strings. A message whose last field is not
// Finished is discarded and reported as ErrMalformed.
//
// # Workers
//
// A Client starts its worker on the first call and keeps it for later
// calls. Calls on one Client are serialised. Close ends the worker by
// closing its input, which the worker treats as shutdown. A call whose
// context ends kills the worker, and a worker whose stream lost framing is
// replaced on the next call.
//
// Transports:
//
//   - wine: run the worker .exe under wine (default)
//   - exec: run a native worker binary
//   - inproc: run a Server with a given Compiler on a goroutine
//   - grpc: reach a remote worker over gRPC (requires -tags grpc)
//
// NewJSONHandler puts a Client behind a JSON-RPC 2.0 HTTP endpoint.
package d3dbridge
