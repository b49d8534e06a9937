// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command d3dbridge-worker hosts the native shader compiler for a Linux
// host. It is built for Windows and normally started by the host under
// wine, with protocol messages on stdin/stdout and diagnostics on stderr.
//
// Usage:
//
//	GOOS=windows go build -o d3dbridge-worker.exe ./cmd/d3dbridge-worker
//	wine d3dbridge-worker.exe                  # serve stdin/stdout
//	d3dbridge-worker.exe -listen :9300         # serve gRPC (build with -tags grpc)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/luxfi/d3dbridge"
)

// serveNetwork is set by builds that include a network transport.
var serveNetwork func(addr string, c d3dbridge.Compiler, logger *d3dbridge.Logger) error

func main() {
	cfg := d3dbridge.ConfigFromEnv()

	library := flag.String("library", cfg.Library, "compiler library to load (env "+d3dbridge.EnvLibrary+")")
	listen := flag.String("listen", "", "serve on this address instead of stdin/stdout")
	verbose := flag.Bool("v", cfg.Verbose, "log every request to stderr (env "+d3dbridge.EnvVerbose+")")
	flag.Parse()

	logger := d3dbridge.NewLogger(os.Stderr, *verbose)

	compiler, err := d3dbridge.NewNativeCompiler(*library)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading compiler: %v\n", err)
		os.Exit(1)
	}
	logger.Debugf("worker: loaded %s", *library)

	if *listen != "" {
		if serveNetwork == nil {
			fmt.Fprintln(os.Stderr, "Error: -listen needs a build with -tags grpc")
			os.Exit(2)
		}
		if err := serveNetwork(*listen, compiler, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error serving %s: %v\n", *listen, err)
			os.Exit(1)
		}
		return
	}

	srv := d3dbridge.NewServer(compiler, d3dbridge.WithServerLogger(logger))
	if err := srv.Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
