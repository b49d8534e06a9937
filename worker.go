// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrSpawn        = errors.New("d3dbridge: cannot start worker")
	ErrTransport    = errors.New("d3dbridge: transport failure")
	ErrWorkerClosed = errors.New("d3dbridge: worker closed")
)

var workerSeq atomic.Uint64

type encoder interface {
	encode(e *Encoder)
}

type decoder interface {
	decode(d *Decoder)
}

// Worker is a live worker process and the two streams bound to its
// standard input and output. Exchanges on a Worker are strictly serial.
type Worker struct {
	mu  sync.Mutex // one in-flight exchange
	enc *Encoder
	dec *Decoder

	id  uint64
	pid int

	shutdown func() error
	kill     func()

	closed atomic.Bool
	broken atomic.Bool
}

// newWorker wraps the streams of a started worker. shutdown must end the
// worker gracefully; kill must unblock any pending read or write.
func newWorker(r io.Reader, w io.Writer, pid int, shutdown func() error, kill func()) *Worker {
	return &Worker{
		enc:      NewEncoder(w),
		dec:      NewDecoder(r),
		id:       workerSeq.Add(1),
		pid:      pid,
		shutdown: shutdown,
		kill:     kill,
	}
}

// ID is unique per Worker within this process.
func (w *Worker) ID() uint64 { return w.id }

// PID returns the operating system process id, or 0 when the worker does
// not run as a local process.
func (w *Worker) PID() int { return w.pid }

// Healthy reports whether the worker can take another request. A worker
// whose stream lost framing is never reused.
func (w *Worker) Healthy() bool {
	return !w.closed.Load() && !w.broken.Load()
}

// abort tears the streams down under a blocked exchange.
func (w *Worker) abort() {
	w.broken.Store(true)
	w.kill()
}

// exchange sends one request and decodes its response. If ctx ends before
// the response is complete the worker is aborted, since the stream can no
// longer be resynchronised.
func (w *Worker) exchange(ctx context.Context, op Opcode, req encoder, res decoder) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Healthy() {
		return ErrWorkerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, w.abort)
	defer stop()

	w.enc.Integer(int64(op))
	req.encode(w.enc)
	if err := w.enc.Finish(); err != nil {
		w.broken.Store(true)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: send %v: %w", ErrTransport, op, err)
	}

	res.decode(w.dec)
	if err := w.dec.Finish(); err != nil {
		w.broken.Store(true)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%v: %w", op, err)
	}
	return nil
}

// Close ends the worker. A healthy worker sees end of stream on its input
// and exits on its own; a broken one is killed first.
func (w *Worker) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	if w.broken.Load() {
		w.kill()
	}
	return w.shutdown()
}
