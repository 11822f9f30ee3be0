// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrLocked is returned when a resource is locked by someone else.
	ErrLocked = errors.New("resource is locked")
	// ErrNotFound is returned for missing resources.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when the server rejects our credentials.
	ErrUnauthorized = errors.New("authentication failed")
	// ErrForbidden is returned when the server refuses the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotCollection is returned when a collection was expected.
	ErrNotCollection = errors.New("not a collection")
	// ErrNotOpen is returned when no URL has been opened yet.
	ErrNotOpen = errors.New("no connection open")
)

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// Unwrap maps well-known status codes onto sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusLocked:
		return ErrLocked
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// LevelTrace is the slog level used to log every HTTP exchange.
const LevelTrace = slog.LevelDebug - 4

// =============================================================================
// CLIENT
// =============================================================================

const (
	// DefaultChunkSize is the transfer chunk size reported to callbacks.
	DefaultChunkSize = 4096

	// DefaultLockOwner is sent when Lock is called without an owner.
	DefaultLockOwner = "davsh"
)

// Client issues WebDAV requests. It remembers the lock tokens it was
// granted and the status message of the last call.
type Client struct {
	http      *http.Client
	chunkSize int
	log       *slog.Logger

	mu      sync.Mutex
	base    *url.URL
	locks   map[string]Lock
	message string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTransport sets the HTTP transport, typically an auth.Transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithTimeout sets a per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithChunkSize sets the transfer chunk size.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{},
		chunkSize: DefaultChunkSize,
		log:       slog.Default(),
		locks:     make(map[string]Lock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Message returns the human-readable status of the last call.
func (c *Client) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Client) setMessage(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = fmt.Sprintf(format, args...)
}

// fail records err as the last message and returns it.
func (c *Client) fail(err error) error {
	c.setMessage("%v", err)
	return err
}

// Base returns the URL of the opened collection, or nil.
func (c *Client) Base() *url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base == nil {
		return nil
	}
	u := *c.base
	return &u
}

// Open checks that rawURL is a WebDAV collection and makes it the base.
func (c *Client) Open(ctx context.Context, rawURL string) (*Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, c.fail(fmt.Errorf("invalid url %q: %w", rawURL, err))
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, c.fail(fmt.Errorf("invalid url %q: scheme must be http or https", rawURL))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	caps, err := c.Options(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(caps.Classes) == 0 {
		return nil, c.fail(fmt.Errorf("%s does not appear to be a WebDAV server", u.Redacted()))
	}

	res, err := c.Stat(ctx, u)
	if err != nil {
		return nil, err
	}
	if !res.IsCollection {
		return nil, c.fail(fmt.Errorf("%s: %w", u.Redacted(), ErrNotCollection))
	}

	c.mu.Lock()
	c.base = res.URL
	c.mu.Unlock()
	c.setMessage("Connected to %s", res.URL.Redacted())
	return res, nil
}

// Capabilities is the result of an OPTIONS request.
type Capabilities struct {
	Allow   []string
	Classes []string
	Server  string
}

// Options issues OPTIONS against u.
func (c *Client) Options(ctx context.Context, u *url.URL) (*Capabilities, error) {
	resp, err := c.do(ctx, http.MethodOptions, u, nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusOK, http.StatusNoContent); err != nil {
		return nil, c.fail(err)
	}

	caps := &Capabilities{
		Allow:   splitList(resp.Header.Values("Allow")),
		Classes: splitList(resp.Header.Values("Dav")),
		Server:  resp.Header.Get("Server"),
	}
	c.setMessage("OPTIONS %s: %s", u.Redacted(), strings.Join(caps.Allow, ", "))
	return caps, nil
}

// Delete removes u, sending any lock tokens we hold for it.
func (c *Client) Delete(ctx context.Context, u *url.URL) error {
	resp, err := c.do(ctx, "DELETE", u, nil, c.ifHeader(u))
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusOK, http.StatusNoContent, http.StatusAccepted); err != nil {
		return c.fail(err)
	}
	c.forgetLocksUnder(u)
	c.setMessage("Deleted %s", u.Redacted())
	return nil
}

// Mkcol creates the collection u.
func (c *Client) Mkcol(ctx context.Context, u *url.URL) error {
	resp, err := c.do(ctx, "MKCOL", u, nil, c.ifHeader(u))
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return c.fail(fmt.Errorf("%s already exists", u.Redacted()))
	}
	if err := expect(resp, http.StatusCreated, http.StatusOK); err != nil {
		return c.fail(err)
	}
	c.setMessage("Created collection %s", u.Redacted())
	return nil
}

// Move moves src to dst.
func (c *Client) Move(ctx context.Context, src, dst *url.URL, overwrite bool) error {
	return c.transfer(ctx, "MOVE", src, dst, overwrite)
}

// Copy copies src to dst.
func (c *Client) Copy(ctx context.Context, src, dst *url.URL, overwrite bool) error {
	return c.transfer(ctx, "COPY", src, dst, overwrite)
}

func (c *Client) transfer(ctx context.Context, method string, src, dst *url.URL, overwrite bool) error {
	h := http.Header{}
	h.Set("Destination", dst.String())
	if overwrite {
		h.Set("Overwrite", "T")
	} else {
		h.Set("Overwrite", "F")
	}
	if method == "COPY" {
		h.Set("Depth", string(DepthInfinity))
	}
	if ih := c.ifHeader(src, dst); ih != nil {
		h.Set("If", ih.Get("If"))
	}

	resp, err := c.do(ctx, method, src, nil, h)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusPreconditionFailed {
		return c.fail(fmt.Errorf("%s exists and overwrite is disabled", dst.Redacted()))
	}
	if err := expect(resp, http.StatusCreated, http.StatusNoContent); err != nil {
		return c.fail(err)
	}
	if method == "MOVE" {
		c.forgetLocksUnder(src)
	}

	verb := "Copied"
	if method == "MOVE" {
		verb = "Moved"
	}
	c.setMessage("%s %s to %s", verb, src.Redacted(), dst.Redacted())
	return nil
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// do sends one request. The body, when non-nil, is buffered by the
// caller so it can be replayed after an authentication challenge.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body bodyFunc, header http.Header, opts ...func(*http.Request)) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		r, err := body()
		if err != nil {
			return nil, c.fail(err)
		}
		rdr = r
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, c.fail(fmt.Errorf("build %s request: %w", method, err))
	}
	if body != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			r, err := body()
			if err != nil {
				return nil, err
			}
			if rc, ok := r.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(r), nil
		}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Log(ctx, LevelTrace, "dav request failed", "method", method, "url", u.Redacted(), "error", err)
		return nil, c.fail(fmt.Errorf("%s %s: %w", method, u.Redacted(), err))
	}
	c.log.Log(ctx, LevelTrace, "dav request", "method", method, "url", u.Redacted(),
		"status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

type bodyFunc func() (io.Reader, error)

func stringBody(s string) bodyFunc {
	return func() (io.Reader, error) { return strings.NewReader(s), nil }
}

func expect(resp *http.Response, codes ...int) error {
	for _, code := range codes {
		if resp.StatusCode == code {
			return nil
		}
	}
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.Redacted(),
		Code:   resp.StatusCode,
		Status: resp.Status,
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
