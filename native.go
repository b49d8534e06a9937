// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import "errors"

// ErrNativeUnavailable is returned by NewNativeCompiler where the compiler
// library cannot be loaded at all.
var ErrNativeUnavailable = errors.New("d3dbridge: native compiler requires windows")

// ENoInterface answers a REFLECT for an interface the worker does not know.
const ENoInterface HRESULT = -0x7fffbffe // 0x80004002
