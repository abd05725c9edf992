package platform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/meigma/assets/internal/dataurl"
)

// Default settings for Headless.
const (
	DefaultOrigin      = "headless"
	DefaultJPEGQuality = 92
)

// Headless implements Codec without a browser.
//
// Object URLs have the form "blob:<origin>/<uuid>" and stay resolvable until
// revoked. Images are decoded with the registered standard library decoders
// (PNG, JPEG, GIF). Encoding to a MIME type without an encoder produces PNG,
// matching the canvas fallback of browsers.
type Headless struct {
	origin      string
	jpegQuality int

	mu      sync.RWMutex
	objects map[string]*Blob
}

// HeadlessOption configures a Headless codec.
type HeadlessOption func(*Headless)

// WithOrigin sets the origin embedded in object URLs.
func WithOrigin(origin string) HeadlessOption {
	return func(h *Headless) {
		h.origin = origin
	}
}

// WithJPEGQuality sets the quality used when encoding JPEG (1-100).
func WithJPEGQuality(q int) HeadlessOption {
	return func(h *Headless) {
		h.jpegQuality = q
	}
}

// NewHeadless creates a Headless codec.
func NewHeadless(opts ...HeadlessOption) *Headless {
	h := &Headless{
		origin:      DefaultOrigin,
		jpegQuality: DefaultJPEGQuality,
		objects:     make(map[string]*Blob),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.jpegQuality < 1 || h.jpegQuality > 100 {
		h.jpegQuality = DefaultJPEGQuality
	}
	return h
}

var _ Codec = (*Headless)(nil)

// ReadBlob returns a copy of the blob content.
func (h *Headless) ReadBlob(ctx context.Context, blob *Blob) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("platform: read nil blob")
	}
	return bytes.Clone(blob.data), nil
}

// CreateObjectURL registers blob and returns its handle.
func (h *Headless) CreateObjectURL(blob *Blob) (string, error) {
	if blob == nil {
		return "", fmt.Errorf("platform: object URL for nil blob")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("platform: generate object URL: %w", err)
	}
	url := "blob:" + h.origin + "/" + id.String()

	h.mu.Lock()
	h.objects[url] = blob
	h.mu.Unlock()
	return url, nil
}

// RevokeObjectURL forgets a handle. Unknown handles are ignored.
func (h *Headless) RevokeObjectURL(url string) {
	h.mu.Lock()
	delete(h.objects, url)
	h.mu.Unlock()
}

// ResolveObjectURL returns the blob registered under url.
func (h *Headless) ResolveObjectURL(url string) (*Blob, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	blob, ok := h.objects[url]
	return blob, ok
}

// Len returns the number of live object URLs.
func (h *Headless) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.objects)
}

// DecodeImage decodes an object URL or data URL into a bitmap.
func (h *Headless) DecodeImage(ctx context.Context, src string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	switch {
	case dataurl.IsDataURL(src):
		_, decoded, err := dataurl.Decode(src)
		if err != nil {
			return nil, fmt.Errorf("platform: decode image: %w", err)
		}
		data = decoded
	case strings.HasPrefix(src, "blob:"):
		blob, ok := h.ResolveObjectURL(src)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrObjectURLNotExist, src)
		}
		data = blob.data
	default:
		return nil, fmt.Errorf("platform: decode image: unsupported source %q", truncate(src))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, nil
}

// EncodeImage draws img onto an RGBA canvas and encodes it as a data URL.
func (h *Headless) EncodeImage(ctx context.Context, img image.Image, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img == nil {
		return "", fmt.Errorf("platform: encode nil image")
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = "image/png"
	}

	var buf bytes.Buffer
	switch mediaType {
	case "image/jpeg":
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: h.jpegQuality})
	case "image/gif":
		err = gif.Encode(&buf, canvas, nil)
	default:
		mediaType = "image/png"
		err = png.Encode(&buf, canvas)
	}
	if err != nil {
		return "", fmt.Errorf("platform: encode %s: %w", mediaType, err)
	}
	return dataurl.Encode(mediaType, buf.Bytes()), nil
}

func truncate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
