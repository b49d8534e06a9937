// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// spawnWine starts the Windows worker under wine.
func spawnWine(ctx context.Context, o *dialOptions) (*Worker, error) {
	argv := append([]string{o.config.Wine, o.config.WorkerPath}, o.args...)
	return startProcess(ctx, o, argv, o.config.environ(true))
}

// spawnExec starts a worker binary that runs natively.
func spawnExec(ctx context.Context, o *dialOptions) (*Worker, error) {
	argv := append([]string{o.config.WorkerPath}, o.args...)
	return startProcess(ctx, o, argv, o.config.environ(false))
}

// startProcess launches argv with its stdin and stdout bound to two fresh
// pipes. The parent keeps only its own ends, so the worker dying shows up
// as end of stream on the next read.
func startProcess(ctx context.Context, o *dialOptions, argv []string, env []string) (*Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if argv[0] == "" {
		return nil, errors.New("empty worker command")
	}

	childIn, hostOut, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	hostIn, childOut, err := os.Pipe()
	if err != nil {
		childIn.Close()
		hostOut.Close()
		return nil, fmt.Errorf("pipe: %w", err)
	}

	// Not CommandContext: the worker outlives the call that started it.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = childIn
	cmd.Stdout = childOut
	cmd.Stderr = o.stderr
	cmd.Env = env
	configureProcess(cmd)

	err = cmd.Start()
	childIn.Close()
	childOut.Close()
	if err != nil {
		hostIn.Close()
		hostOut.Close()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			o.logger.Debugf("worker pid %d: %v", cmd.Process.Pid, err)
		}
	}()

	kill := func() {
		hostOut.Close()
		hostIn.Close()
		cmd.Process.Kill()
	}
	shutdown := func() error {
		hostOut.Close()
		select {
		case <-exited:
		case <-time.After(o.shutdownGrace):
			o.logger.Printf("worker pid %d did not exit after %v, killing", cmd.Process.Pid, o.shutdownGrace)
			cmd.Process.Kill()
			<-exited
		}
		hostIn.Close()
		return nil
	}
	return newWorker(hostIn, hostOut, cmd.Process.Pid, shutdown, kill), nil
}

// spawnInproc runs a Server on a goroutine. It needs WithCompiler.
func spawnInproc(ctx context.Context, o *dialOptions) (*Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.compiler == nil {
		return nil, errors.New("inproc transport requires WithCompiler")
	}

	reqR, reqW := io.Pipe()
	resR, resW := io.Pipe()
	srv := NewServer(o.compiler, WithServerLogger(o.logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(reqR, resW); err != nil {
			o.logger.Debugf("inproc worker: %v", err)
		}
		reqR.Close()
		resW.Close()
	}()

	kill := func() {
		reqW.Close()
		resR.Close()
	}
	shutdown := func() error {
		reqW.Close()
		select {
		case <-done:
		case <-time.After(o.shutdownGrace):
			o.logger.Printf("inproc worker did not stop after %v", o.shutdownGrace)
		}
		resR.Close()
		return nil
	}
	return newWorker(resR, reqW, 0, shutdown, kill), nil
}
