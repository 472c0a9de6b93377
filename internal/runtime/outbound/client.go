// Package outbound issues HTTP calls to other services on behalf of a request.
// Every call carries the caller's correlation id, is bounded by a fixed
// timeout and fails only with an External error.
package outbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/jsoncodec"
)

const (
	// Timeout bounds the total latency of one call.
	Timeout = 10 * time.Second
	// FallbackStatus is reported when a call failed without an upstream status.
	FallbackStatus = http.StatusInternalServerError

	maxExcerpt = 512
	tracerName = "resourceflow/outbound"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client wraps a Doer with the outbound call policy.
type Client struct {
	doer       Doer
	baseURL    string
	timeout    time.Duration
	propagator propagation.TextMapPropagator
}

// Option customises a Client.
type Option func(*Client)

// WithDoer replaces the underlying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithBaseURL resolves relative targets against base.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithPropagator sets the propagator used to inject trace headers instead of
// the global one.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) { c.propagator = p }
}

// WithTimeout overrides the call timeout. Intended for tests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a Client with the default timeout and no base URL.
func NewClient(opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{},
		timeout: Timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a completed 2xx response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON decodes the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := jsoncodec.Unmarshal(r.Body, v); err != nil {
		return errspkg.External(http.StatusBadGateway, err, "Invalid response body from external service")
	}
	return nil
}

// Do sends method to target. body is JSON-encoded when not nil; an io.Reader
// or []byte body is sent as is. No retries are attempted.
func (c *Client) Do(ctx context.Context, method, target string, body any) (*Response, error) {
	url := c.resolve(target)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+target,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	reader, contentType, err := encodeBody(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode body")
		return nil, errspkg.External(FallbackStatus, err, "Failed to encode request to %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, errspkg.External(FallbackStatus, err, "Invalid request to %s", url)
	}
	req.Header.Set(correlation.HeaderName, correlation.ID(ctx))
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.textMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, transportError(ctx, err, method, url)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, transportError(ctx, err, method, url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, errspkg.External(resp.StatusCode, nil,
			"%s %s returned %d: %s", method, url, resp.StatusCode, excerpt(data))
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Get is shorthand for Do with GET and no body.
func (c *Client) Get(ctx context.Context, target string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, target, nil)
}

func (c *Client) resolve(target string) string {
	if c.baseURL == "" || strings.Contains(target, "://") {
		return target
	}
	return c.baseURL + "/" + strings.TrimLeft(target, "/")
}

func (c *Client) textMapPropagator() propagation.TextMapPropagator {
	if c.propagator != nil {
		return c.propagator
	}
	return otel.GetTextMapPropagator()
}

func transportError(ctx context.Context, err error, method, url string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e := errspkg.External(FallbackStatus, err, "%s %s timed out", method, url)
		e.Timeout = true
		return e
	}
	return errspkg.External(FallbackStatus, err, "%s %s failed: %v", method, url, err)
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		data, err := jsoncodec.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxExcerpt {
		return s[:maxExcerpt] + "..."
	}
	if s == "" {
		return "<empty body>"
	}
	return s
}
