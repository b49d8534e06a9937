// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Transport types
const (
	TransportWine   = "wine"   // worker.exe under wine, default
	TransportExec   = "exec"   // worker binary run directly
	TransportInproc = "inproc" // Server goroutine over io.Pipe
	TransportGRPC   = "grpc"   // remote worker, requires build tag
)

// DefaultTransport is the default transport type (wine)
const DefaultTransport = TransportWine

// ErrUnknownTransport is returned by NewClient for an unregistered name.
var ErrUnknownTransport = errors.New("d3dbridge: unknown transport")

type spawnFunc func(ctx context.Context, o *dialOptions) (*Worker, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]spawnFunc{
		TransportWine:   spawnWine,
		TransportExec:   spawnExec,
		TransportInproc: spawnInproc,
	}
)

// registerTransport registers a new transport (used by build tags)
func registerTransport(name string, spawn spawnFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = spawn
}

func lookupTransport(name string) (spawnFunc, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	spawn, ok := transports[name]
	return spawn, ok
}

// AvailableTransports returns the registered transport names, sorted.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	_, ok := lookupTransport(name)
	return ok
}
