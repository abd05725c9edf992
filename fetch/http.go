package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
)

// DefaultMaxBytes bounds response bodies read by HTTP.
const DefaultMaxBytes int64 = 512 << 20 // 512 MB

// HTTP fetches http and https URLs with a single GET.
type HTTP struct {
	client   *nethttp.Client
	headers  nethttp.Header
	maxBytes int64
	logger   *slog.Logger
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) HTTPOption {
	return func(h *HTTP) {
		if headers == nil {
			return
		}
		h.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		if h.headers == nil {
			h.headers = make(nethttp.Header)
		}
		h.headers.Set(key, value)
	}
}

// WithUserAgent sets the User-Agent header on each request.
func WithUserAgent(ua string) HTTPOption {
	return WithHeader("User-Agent", ua)
}

// WithMaxBytes limits the size of response bodies. Zero or negative disables
// the limit.
func WithMaxBytes(limit int64) HTTPOption {
	return func(h *HTTP) {
		h.maxBytes = limit
	}
}

// WithLogger sets the logger for request events.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client:   nethttp.DefaultClient,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = nethttp.DefaultClient
	}
	return h
}

func (h *HTTP) log() *slog.Logger {
	if h.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.logger
}

var _ Fetcher = (*HTTP)(nil)

// Fetch performs a GET request and reads the full body.
func (h *HTTP) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := h.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if h.maxBytes > 0 && resp.ContentLength > h.maxBytes {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrTooLarge, url, resp.ContentLength)
	}

	body, err := h.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	h.log().Debug("fetched url", "url", final, "status", resp.StatusCode, "size", len(body))
	return &Response{URL: final, Header: resp.Header.Clone(), Body: body}, nil
}

func (h *HTTP) readBody(r io.Reader) ([]byte, error) {
	if h.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, h.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, h.maxBytes)
	}
	return body, nil
}

func (h *HTTP) newRequest(ctx context.Context, url string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range h.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}
