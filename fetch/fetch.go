// Package fetch retrieves the bytes behind a URL.
//
// [Fetcher] is the network collaborator of the asset registry. [HTTP] serves
// http and https URLs, [DataURL] decodes data: URLs, [File] reads file: URLs,
// and [ObjectURL] dereferences blob: handles minted by a platform codec.
// [Mux] routes a URL to one of them by scheme. The oci and s3 subpackages add
// registry and bucket backends.
package fetch

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
)

// ErrUnsupportedScheme is returned when no fetcher serves a URL scheme.
var ErrUnsupportedScheme = errors.New("fetch: unsupported URL scheme")

// ErrTooLarge is returned when a response body exceeds the configured limit.
var ErrTooLarge = errors.New("fetch: response body too large")

// Response is a fully read fetch result.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// Header carries the response headers. Content-Type is used for MIME
	// inference and must be present for asset ingestion.
	Header nethttp.Header

	// Body is the complete response body.
	Body []byte
}

// ContentType returns the raw Content-Type header.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// Fetcher retrieves the content behind a URL.
//
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, url string) (*Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

// newResponse builds a Response with a single Content-Type header.
func newResponse(url, contentType string, body []byte) *Response {
	header := make(nethttp.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Response{URL: url, Header: header, Body: body}
}
