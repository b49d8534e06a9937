// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// JSONServiceName is the service prefix of the gateway's JSON-RPC methods,
// e.g. "Compiler.Compile".
const JSONServiceName = "Compiler"

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

var jsonLog = defaultLogger()

// JSONService exposes a Client over JSON-RPC 2.0. Byte fields travel as
// base64 strings. A transport failure between the gateway and its worker
// is returned as a JSON-RPC error; a failed compile is a normal reply.
type JSONService struct {
	client *Client
}

func (s *JSONService) Compile(r *http.Request, args *CompileRequest, reply *CompileResult) error {
	res, err := s.client.Compile(r.Context(), args)
	*reply = *res
	return err
}

func (s *JSONService) Reflect(r *http.Request, args *ReflectRequest, reply *ReflectResult) error {
	res, err := s.client.Reflect(r.Context(), args)
	*reply = *res
	return err
}

func (s *JSONService) Strip(r *http.Request, args *StripRequest, reply *StripResult) error {
	res, err := s.client.Strip(r.Context(), args)
	*reply = *res
	return err
}

func (s *JSONService) Disassemble(r *http.Request, args *DisassembleRequest, reply *DisassembleResult) error {
	res, err := s.client.Disassemble(r.Context(), args)
	*reply = *res
	return err
}

// NewJSONHandler returns an HTTP handler serving c as JSON-RPC 2.0. All
// requests share the one worker of c.
func NewJSONHandler(c *Client) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&JSONService{client: c}, JSONServiceName); err != nil {
		return nil, fmt.Errorf("register %s: %w", JSONServiceName, err)
	}
	return s, nil
}

// JSONClient calls a gateway started with NewJSONHandler. Connection
// failures are retried with exponential backoff; JSON-RPC errors are not.
type JSONClient struct {
	uri     url.URL
	options []Option
	http    *http.Client
}

// NewJSONClient parses the gateway endpoint.
func NewJSONClient(endpoint string, options ...Option) (*JSONClient, error) {
	uri, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	return &JSONClient{uri: *uri, options: options, http: newHTTPClient()}, nil
}

func (c *JSONClient) Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error) {
	res := &CompileResult{}
	return res, c.call(ctx, "Compile", req, res)
}

func (c *JSONClient) Reflect(ctx context.Context, req *ReflectRequest) (*ReflectResult, error) {
	res := &ReflectResult{}
	return res, c.call(ctx, "Reflect", req, res)
}

func (c *JSONClient) Strip(ctx context.Context, req *StripRequest) (*StripResult, error) {
	res := &StripResult{}
	return res, c.call(ctx, "Strip", req, res)
}

func (c *JSONClient) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResult, error) {
	res := &DisassembleResult{}
	return res, c.call(ctx, "Disassemble", req, res)
}

// newHTTPClient disables keep-alives: a gateway call can take as long as a
// compile, and idle pooled connections then die with EOF.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   2 * time.Minute,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError reports connection-level failures. The request never
// reached the gateway, so it is safe to send again.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, transient := range []string{"EOF", "connection reset", "connection refused", "broken pipe"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// call performs one JSON-RPC 2.0 request for JSONServiceName.method.
func (c *JSONClient) call(ctx context.Context, method string, params, reply any) error {
	method = JSONServiceName + "." + method
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	ops := NewOptions(c.options)
	uri := c.uri
	uri.RawQuery = ops.queryParams.Encode()
	jsonLog.Debugf("json: %s -> %s", method, uri.Redacted())

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseWait << (attempt - 1)):
			}
		}

		// The body reader is consumed by each attempt.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri.String(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header = ops.headers.Clone()
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if !isRetryableError(err) {
				return fmt.Errorf("%s: %w", method, err)
			}
			lastErr = err
			jsonLog.Printf("json: %s attempt %d failed: %v", method, attempt+1, err)
			continue
		}
		err = decodeJSONResponse(resp, reply)
		CleanlyCloseBody(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return nil
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", method, maxRetries, lastErr)
}

func decodeJSONResponse(resp *http.Response, reply any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return json2.DecodeClientResponse(resp.Body, reply)
}
