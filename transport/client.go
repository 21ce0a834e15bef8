package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrUnauthorized is returned after the auth-failure policy has run.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidBaseURL is returned by New for an empty or relative base URL.
	ErrInvalidBaseURL = errors.New("invalid base url")
	// ErrBodyConflict is returned when a request sets both Body and JSON.
	ErrBodyConflict = errors.New("request has both body and json payload")
)

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// TokenProvider returns the current bearer token, or "" when none is known.
type TokenProvider func(ctx context.Context) (string, error)

// TokenClearer removes the persisted token.
type TokenClearer func(ctx context.Context) error

// Recorder receives request outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRequest(method string, status int, d time.Duration)
	TransportError()
	Unauthorized()
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenProvider
	ClearToken TokenClearer
	Logger     *slog.Logger
	Recorder   Recorder
	Tracing    bool
	UserAgent  string
}

// Request describes one API call. Path is appended to the base URL as is;
// callers escape path segments.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        io.Reader
	ContentType string
	// JSON, when non-nil, is marshalled as the body with an
	// application/json content type.
	JSON any
	// Token overrides the provider for this request only.
	Token string
}

type listener struct {
	id uint64
	fn func(context.Context)
}

// Client is safe for concurrent use.
type Client struct {
	base      string
	http      *http.Client
	tokens    TokenProvider
	clear     TokenClearer
	logger    *slog.Logger
	recorder  Recorder
	userAgent string

	mu        sync.Mutex
	listeners []listener
	nextID    uint64
}

// New validates opts and returns a Client. BaseURL must be absolute; it
// returns [ErrInvalidBaseURL] otherwise. A nil HTTPClient gets a zero
// http.Client, and Tracing wraps a copy of its transport with otelhttp so
// the caller's client is never modified.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Tracing {
		traced := *hc
		rt := traced.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		traced.Transport = otelhttp.NewTransport(rt)
		hc = &traced
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		base:      strings.TrimRight(base.String(), "/"),
		http:      hc,
		tokens:    opts.Tokens,
		clear:     opts.ClearToken,
		logger:    logger,
		recorder:  opts.Recorder,
		userAgent: opts.UserAgent,
	}, nil
}

// BaseURL returns the normalized base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base
}

// Subscribe registers fn to run on every auth failure. Listeners run
// synchronously in registration order before the failing call returns. The
// returned func removes the listener and may be called more than once.
func (c *Client) Subscribe(fn func(context.Context)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Do sends an authorized request. A 401 response is consumed and reported as
// ErrUnauthorized after the persisted token is cleared and subscribers are
// notified. Any other response is returned with its body open.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	token := r.Token
	if token == "" && c.tokens != nil {
		t, err := c.tokens(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "token lookup failed", "error", err)
		}
		token = t
	}

	resp, err := c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.handleUnauthorized(ctx, r)
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// DoPublic sends a request without the provider token and without the
// auth-failure policy. An explicit r.Token is still attached.
func (c *Client) DoPublic(ctx context.Context, r Request) (*http.Response, error) {
	return c.send(ctx, r, r.Token)
}

func (c *Client) send(ctx context.Context, r Request, token string) (*http.Response, error) {
	req, err := c.newRequest(ctx, r, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if c.recorder != nil {
			c.recorder.TransportError()
		}
		c.logger.WarnContext(ctx, "request failed",
			"method", req.Method,
			"path", r.Path,
			"request_id", req.Header.Get(HeaderRequestID),
			"error", err,
		)
		return nil, fmt.Errorf("%s %s: %w", req.Method, r.Path, err)
	}

	if c.recorder != nil {
		c.recorder.ObserveRequest(req.Method, resp.StatusCode, elapsed)
	}
	c.logger.DebugContext(ctx, "request completed",
		"method", req.Method,
		"path", r.Path,
		"status", resp.StatusCode,
		"duration", elapsed,
		"request_id", req.Header.Get(HeaderRequestID),
	)
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, r Request, token string) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	body := r.Body
	contentType := r.ContentType
	if r.JSON != nil {
		if r.Body != nil {
			return nil, ErrBodyConflict
		}
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		if contentType == "" {
			contentType = "application/json"
		}
	}

	target := c.base + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) handleUnauthorized(ctx context.Context, r Request) {
	if c.recorder != nil {
		c.recorder.Unauthorized()
	}
	c.logger.InfoContext(ctx, "unauthorized response, invalidating session", "path", r.Path)

	if c.clear != nil {
		if err := c.clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "clear persisted token failed", "error", err)
		}
	}

	c.mu.Lock()
	snapshot := make([]listener, len(c.listeners))
	copy(snapshot, c.listeners)
	c.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ctx)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
