// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command d3dbridge-gateway serves the shader compiler as JSON-RPC 2.0
// over HTTP, backed by one persistent worker.
//
// Usage:
//
//	d3dbridge-gateway [options]
//
// Examples:
//
//	d3dbridge-gateway -addr :8080
//	d3dbridge-gateway -transport grpc -remote winbox:9300   # build with -tags grpc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luxfi/d3dbridge"
)

var (
	addr      = flag.String("addr", ":8080", "HTTP listen address")
	path      = flag.String("path", "/rpc", "JSON-RPC endpoint path")
	transport = flag.String("transport", d3dbridge.DefaultTransport, "worker transport: "+strings.Join(d3dbridge.AvailableTransports(), ", "))
	remote    = flag.String("remote", "", "worker address for network transports")
	timeout   = flag.Duration("timeout", time.Minute, "per-call timeout, 0 for none")
)

func main() {
	flag.Parse()

	cfg := d3dbridge.ConfigFromEnv()
	client, err := d3dbridge.NewClient(
		d3dbridge.WithConfig(cfg),
		d3dbridge.WithTransport(*transport),
		d3dbridge.WithRemoteAddr(*remote),
		d3dbridge.WithCallTimeout(*timeout),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	handler, err := d3dbridge.NewJSONHandler(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mux := http.NewServeMux()
	mux.Handle(*path, handler)
	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "d3dbridge-gateway listening on %s%s (%s)\n", *addr, *path, *transport)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
