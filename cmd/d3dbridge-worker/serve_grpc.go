//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"net"

	"github.com/luxfi/d3dbridge"
)

func init() {
	serveNetwork = func(addr string, c d3dbridge.Compiler, logger *d3dbridge.Logger) error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		logger.Printf("worker: serving gRPC on %s", lis.Addr())
		return d3dbridge.ServeGRPC(lis, c, d3dbridge.WithServerLogger(logger))
	}
}
