// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !linux

package d3dbridge

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
