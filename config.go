// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"os"
	"strconv"
)

// Environment variables read once, by the host when building a Client and by
// the worker at startup. None of them change the wire protocol.
const (
	EnvWine    = "D3D4LINUX_WINE"
	EnvWorker  = "D3D4LINUX_EXE"
	EnvLibrary = "D3D4LINUX_DLL"
	EnvVerbose = "D3D4LINUX_VERBOSE"
)

const (
	DefaultWine       = "wine"
	DefaultWorkerPath = "d3dbridge-worker.exe"
	DefaultLibrary    = "d3dcompiler_47.dll"
)

// Config selects the worker binary and the native library variant.
type Config struct {
	Wine       string
	WorkerPath string
	Library    string
	Verbose    bool
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Wine:       DefaultWine,
		WorkerPath: DefaultWorkerPath,
		Library:    DefaultLibrary,
	}
}

// ConfigFromEnv overlays the environment on DefaultConfig.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	if v := os.Getenv(EnvWine); v != "" {
		c.Wine = v
	}
	if v := os.Getenv(EnvWorker); v != "" {
		c.WorkerPath = v
	}
	if v := os.Getenv(EnvLibrary); v != "" {
		c.Library = v
	}
	c.Verbose = parseBool(os.Getenv(EnvVerbose))
	return c
}

// parseBool accepts strconv forms plus any non-zero integer.
func parseBool(s string) bool {
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	n, err := strconv.Atoi(s)
	return err == nil && n != 0
}

// environ is the worker's environment: the host's own plus the settings
// the worker reads back at startup.
func (c Config) environ(wine bool) []string {
	env := os.Environ()
	env = append(env, EnvLibrary+"="+c.Library)
	if c.Verbose {
		env = append(env, EnvVerbose+"=1")
	}
	if wine {
		if _, ok := os.LookupEnv("WINEDEBUG"); !ok {
			env = append(env, "WINEDEBUG=-all")
		}
	}
	return env
}
