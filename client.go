// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// spawnFailureMessage is the error blob a Compile gets when no worker
// could be started. Nothing came from a peer.
const spawnFailureMessage = "cannot start worker"

// ErrClientClosed is returned by calls made after Close.
var ErrClientClosed = errors.New("d3dbridge: client closed")

// Client marshals calls to one worker. The first call starts the worker and
// later calls reuse it, so a Client is the execution context that owns the
// worker's lifetime. Calls are serialised: concurrent callers wait for each
// other. Use one Client per goroutine that needs its own worker.
type Client struct {
	mu     sync.Mutex
	opts   *dialOptions
	spawn  spawnFunc
	worker *Worker
	closed bool
}

// NewClient prepares a Client. No worker is started until the first call.
func NewClient(opts ...DialOption) (*Client, error) {
	o := defaultDialOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewLogger(os.Stderr, o.config.Verbose)
	}
	spawn, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, o.transport)
	}
	return &Client{opts: o, spawn: spawn}, nil
}

// Compile runs D3DCompile in the worker. A failed compile is not an error:
// its status and message blob are returned with a nil error. A non-nil
// error means the exchange itself failed; the result then carries E_FAIL
// and none of the partially decoded payload.
func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error) {
	res := &CompileResult{}
	if err := c.call(ctx, OpCompile, req, res); err != nil {
		failed := &CompileResult{Status: EFail}
		if errors.Is(err, ErrSpawn) {
			failed.Errors = []byte(spawnFailureMessage)
		}
		return failed, err
	}
	return res, nil
}

// Reflect runs D3DReflect in the worker and returns the decoded tree.
func (c *Client) Reflect(ctx context.Context, req *ReflectRequest) (*ReflectResult, error) {
	res := &ReflectResult{}
	if err := c.call(ctx, OpReflect, req, res); err != nil {
		return &ReflectResult{Status: EFail}, err
	}
	return res, nil
}

// Strip runs D3DStripShader in the worker.
func (c *Client) Strip(ctx context.Context, req *StripRequest) (*StripResult, error) {
	res := &StripResult{}
	if err := c.call(ctx, OpStrip, req, res); err != nil {
		return &StripResult{Status: EFail}, err
	}
	return res, nil
}

// Disassemble runs D3DDisassemble in the worker.
func (c *Client) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResult, error) {
	res := &DisassembleResult{}
	if err := c.call(ctx, OpDisassemble, req, res); err != nil {
		return &DisassembleResult{Status: EFail}, err
	}
	return res, nil
}

// WorkerPID returns the process id of the current worker, or -1 when none
// is running.
func (c *Client) WorkerPID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return -1
	}
	return c.worker.PID()
}

// WorkerID returns the handle id of the current worker, or 0 when none is
// running. Unlike the PID it also distinguishes in-process workers.
func (c *Client) WorkerID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return 0
	}
	return c.worker.ID()
}

// Close shuts the worker down. Workers of a Client that is never closed are
// killed when the host exits on Linux, and leak elsewhere.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}

func (c *Client) release() error {
	if c.worker == nil {
		return nil
	}
	w := c.worker
	c.worker = nil
	c.opts.logger.Debugf("client: stopping worker %d (pid %d)", w.ID(), w.PID())
	return w.Close()
}

// acquire returns the live worker, replacing one that lost framing.
func (c *Client) acquire(ctx context.Context) (*Worker, error) {
	if c.worker != nil {
		if c.worker.Healthy() {
			return c.worker, nil
		}
		c.release()
	}
	w, err := c.spawn(ctx, c.opts)
	if err != nil {
		c.opts.logger.Printf("client: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	c.opts.logger.Debugf("client: started worker %d (pid %d) via %s", w.ID(), w.PID(), c.opts.transport)
	c.worker = w
	return w, nil
}

func (c *Client) call(ctx context.Context, op Opcode, req encoder, res decoder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.opts.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.callTimeout)
		defer cancel()
	}

	w, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	err = w.exchange(ctx, op, req, res)
	if err != nil {
		c.opts.logger.Printf("client: %v on worker %d: %v", op, w.ID(), err)
	}
	if c.opts.perCall || !w.Healthy() {
		c.release()
	}
	return err
}

// DialOption configures a Client.
type DialOption func(*dialOptions)

type dialOptions struct {
	transport     string
	config        Config
	args          []string
	stderr        io.Writer
	compiler      Compiler
	logger        *Logger
	remoteAddr    string
	dialer        func(ctx context.Context, addr string) (net.Conn, error)
	callTimeout   time.Duration
	shutdownGrace time.Duration
	perCall       bool
}

func defaultDialOptions() *dialOptions {
	return &dialOptions{
		transport:     DefaultTransport,
		config:        DefaultConfig(),
		stderr:        os.Stderr,
		shutdownGrace: 2 * time.Second,
	}
}

// WithTransport selects how the worker is reached.
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithConfig replaces the worker configuration, typically with
// ConfigFromEnv().
func WithConfig(c Config) DialOption {
	return func(o *dialOptions) { o.config = c }
}

// WithWorkerCommand sets the worker binary and extra arguments.
func WithWorkerCommand(path string, args ...string) DialOption {
	return func(o *dialOptions) {
		o.config.WorkerPath = path
		o.args = args
	}
}

// WithStderr sets where the worker's diagnostics go. It defaults to the
// host's stderr.
func WithStderr(w io.Writer) DialOption {
	return func(o *dialOptions) { o.stderr = w }
}

// WithCompiler sets the Compiler served by the inproc transport.
func WithCompiler(c Compiler) DialOption {
	return func(o *dialOptions) { o.compiler = c }
}

// WithLogger sets the host-side logger.
func WithLogger(l *Logger) DialOption {
	return func(o *dialOptions) { o.logger = l }
}

// WithRemoteAddr sets the worker address for network transports.
func WithRemoteAddr(addr string) DialOption {
	return func(o *dialOptions) { o.remoteAddr = addr }
}

// WithContextDialer overrides how network transports connect.
func WithContextDialer(f func(ctx context.Context, addr string) (net.Conn, error)) DialOption {
	return func(o *dialOptions) { o.dialer = f }
}

// WithCallTimeout bounds every call. A call that times out kills its
// worker; the next call starts a new one.
func WithCallTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.callTimeout = d }
}

// WithShutdownGrace sets how long Close waits for the worker to exit after
// its input is closed before killing it.
func WithShutdownGrace(d time.Duration) DialOption {
	return func(o *dialOptions) { o.shutdownGrace = d }
}

// WithPerCallWorker starts a fresh worker for every call and stops it
// afterwards.
func WithPerCallWorker() DialOption {
	return func(o *dialOptions) { o.perCall = true }
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *Logger
}

// WithServerLogger sets the worker-side logger.
func WithServerLogger(l *Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}
