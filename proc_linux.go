// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build linux

package d3dbridge

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess makes the kernel kill the worker if the host dies, so a
// Client that is never closed does not leave wine processes behind.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}
}
