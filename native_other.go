// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !windows

package d3dbridge

// NewNativeCompiler loads the compiler library. Only the Windows worker
// build can do that.
func NewNativeCompiler(library string) (Compiler, error) {
	return nil, ErrNativeUnavailable
}
