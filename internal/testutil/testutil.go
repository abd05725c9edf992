package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/platform"
)

// PNG returns a w×h PNG with a diagonal of opaque red pixels.
func PNG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w && i < h; i++ {
		img.Set(i, i, color.NRGBA{R: 0xff, A: 0xff})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// MockFetcher serves canned responses from memory and counts requests.
type MockFetcher struct {
	mu        sync.Mutex
	responses map[string]*fetch.Response
	errs      map[string]error
	calls     map[string]int
}

// NewMockFetcher constructs an empty fetcher. Unknown URLs fail with a
// 404 *fetch.StatusError.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		responses: make(map[string]*fetch.Response),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Set serves body with the given Content-Type for url. An empty
// contentType omits the header.
func (m *MockFetcher) Set(url, contentType string, body []byte) {
	header := make(nethttp.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = &fetch.Response{URL: url, Header: header, Body: body}
	delete(m.errs, url)
}

// Fail makes requests for url return err.
func (m *MockFetcher) Fail(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[url] = err
}

// Calls returns how many times url was fetched.
func (m *MockFetcher) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

// Total returns the number of fetches across all URLs.
func (m *MockFetcher) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Fetch implements fetch.Fetcher.
func (m *MockFetcher) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[url]++
	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	resp, ok := m.responses[url]
	if !ok {
		return nil, &fetch.StatusError{URL: url, StatusCode: nethttp.StatusNotFound, Status: "404 Not Found"}
	}
	return &fetch.Response{URL: resp.URL, Header: resp.Header.Clone(), Body: bytes.Clone(resp.Body)}, nil
}

// CountingCodec wraps a codec and counts calls per operation.
type CountingCodec struct {
	platform.Codec

	ReadBlobCalls        atomic.Int64
	CreateObjectURLCalls atomic.Int64
	DecodeImageCalls     atomic.Int64
	EncodeImageCalls     atomic.Int64
}

// NewCountingCodec wraps a headless codec.
func NewCountingCodec() *CountingCodec {
	return &CountingCodec{Codec: platform.NewHeadless(platform.WithOrigin("test"))}
}

// Total returns the number of counted calls.
func (c *CountingCodec) Total() int64 {
	return c.ReadBlobCalls.Load() + c.CreateObjectURLCalls.Load() +
		c.DecodeImageCalls.Load() + c.EncodeImageCalls.Load()
}

// ReadBlob implements platform.Codec.
func (c *CountingCodec) ReadBlob(ctx context.Context, blob *platform.Blob) ([]byte, error) {
	c.ReadBlobCalls.Add(1)
	return c.Codec.ReadBlob(ctx, blob)
}

// CreateObjectURL implements platform.Codec.
func (c *CountingCodec) CreateObjectURL(blob *platform.Blob) (string, error) {
	c.CreateObjectURLCalls.Add(1)
	return c.Codec.CreateObjectURL(blob)
}

// DecodeImage implements platform.Codec.
func (c *CountingCodec) DecodeImage(ctx context.Context, src string) (image.Image, error) {
	c.DecodeImageCalls.Add(1)
	return c.Codec.DecodeImage(ctx, src)
}

// EncodeImage implements platform.Codec.
func (c *CountingCodec) EncodeImage(ctx context.Context, img image.Image, mime string) (string, error) {
	c.EncodeImageCalls.Add(1)
	return c.Codec.EncodeImage(ctx, img, mime)
}
