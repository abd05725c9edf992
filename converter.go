package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/platform"
)

var errMissingContentType = errors.New("response has no Content-Type header")

// Converter derives missing representations of a bundle from the ones it
// already holds.
//
// Sources are chosen cheapest first. A buffer is produced from a data URL,
// then a blob, then an image, then an object URL. Blobs, object URLs and
// data URLs are derived from the buffer. Images are decoded from the data URL
// when present, otherwise from the object URL.
//
// A Converter holds no state of its own and is safe for concurrent use, but
// a single Bundle must not be converted from several goroutines at once.
type Converter struct {
	codec   platform.Codec
	fetcher fetch.Fetcher
	logger  *slog.Logger
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithConverterLogger sets the logger for conversion events.
func WithConverterLogger(logger *slog.Logger) ConverterOption {
	return func(c *Converter) {
		c.logger = logger
	}
}

// NewConverter creates a Converter backed by codec and fetcher.
func NewConverter(codec platform.Codec, fetcher fetch.Fetcher, opts ...ConverterOption) *Converter {
	c := &Converter{codec: codec, fetcher: fetcher}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Converter) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Ensure populates representation k of b.
//
// It returns immediately when k is already present. On failure b may hold
// intermediate representations; callers that need all-or-nothing semantics
// convert a copy.
func (c *Converter) Ensure(ctx context.Context, b *Bundle, k Kind) error {
	if b.present.Has(k) {
		return nil
	}
	if b.present.Empty() {
		return ErrEmptyAsset
	}
	switch k {
	case KindBuffer:
		return c.ensureBuffer(ctx, b)
	case KindBlob:
		return c.ensureBlob(ctx, b)
	case KindBlobURL:
		return c.ensureBlobURL(ctx, b)
	case KindImage:
		return c.ensureImage(ctx, b)
	case KindData64URL:
		return c.ensureData64URL(ctx, b)
	default:
		return fmt.Errorf("%w: representation %s", ErrNotImplemented, k)
	}
}

// ToBuffer ensures and returns the byte content of b.
func (c *Converter) ToBuffer(ctx context.Context, b *Bundle) ([]byte, error) {
	if err := c.Ensure(ctx, b, KindBuffer); err != nil {
		return nil, err
	}
	data, _ := b.Buffer()
	return data, nil
}

// ToBlob ensures and returns the blob of b.
func (c *Converter) ToBlob(ctx context.Context, b *Bundle) (*platform.Blob, error) {
	if err := c.Ensure(ctx, b, KindBlob); err != nil {
		return nil, err
	}
	return b.blob, nil
}

// ToBlobURL ensures and returns the object URL of b.
func (c *Converter) ToBlobURL(ctx context.Context, b *Bundle) (string, error) {
	if err := c.Ensure(ctx, b, KindBlobURL); err != nil {
		return "", err
	}
	return b.blobURL, nil
}

// ToImage ensures and returns the decoded image of b.
func (c *Converter) ToImage(ctx context.Context, b *Bundle) (image.Image, error) {
	if err := c.Ensure(ctx, b, KindImage); err != nil {
		return nil, err
	}
	return b.image, nil
}

// ToData64URL ensures and returns the data URL of b.
func (c *Converter) ToData64URL(ctx context.Context, b *Bundle) (string, error) {
	if err := c.Ensure(ctx, b, KindData64URL); err != nil {
		return "", err
	}
	return b.data64URL, nil
}

func (c *Converter) ensureBuffer(ctx context.Context, b *Bundle) error {
	switch {
	case b.present.Has(KindBuffer):
		return nil
	case b.present.Has(KindData64URL):
		mime, data, err := dataurl.Decode(b.data64URL)
		if err != nil {
			return fmt.Errorf("assets: decode data URL: %w", err)
		}
		b.SetMIME(mime)
		b.FillBuffer(data)
		c.log().Debug("converted", "from", KindData64URL, "to", KindBuffer, "size", len(data))
	case b.present.Has(KindBlob):
		data, err := c.codec.ReadBlob(ctx, b.blob)
		if err != nil {
			return fmt.Errorf("assets: read blob: %w", err)
		}
		b.SetMIME(b.blob.Type())
		b.FillBuffer(data)
		c.log().Debug("converted", "from", KindBlob, "to", KindBuffer, "size", len(data))
	case b.present.Has(KindImage):
		mime := b.mime
		if mime == "" {
			mime = DefaultImageMIME
		}
		encoded, err := c.codec.EncodeImage(ctx, b.image, mime)
		if err != nil {
			return fmt.Errorf("assets: encode image: %w", err)
		}
		_, data, err := dataurl.Decode(encoded)
		if err != nil {
			return fmt.Errorf("assets: decode encoded image: %w", err)
		}
		b.SetMIME(mime)
		b.FillBuffer(data)
		c.log().Debug("converted", "from", KindImage, "to", KindBuffer, "size", len(data))
	case b.present.Has(KindBlobURL):
		if c.fetcher == nil {
			return fmt.Errorf("%w: no fetcher for %s", ErrNotImplemented, b.blobURL)
		}
		resp, err := c.fetcher.Fetch(ctx, b.blobURL)
		if err != nil {
			return &FetchError{URL: b.blobURL, Err: err}
		}
		if mime := mediaType(resp.ContentType()); mime != "" {
			b.SetMIME(mime)
		}
		b.FillBuffer(resp.Body)
		c.log().Debug("converted", "from", KindBlobURL, "to", KindBuffer, "size", len(resp.Body))
	default:
		return ErrEmptyAsset
	}
	return nil
}

func (c *Converter) ensureBlob(ctx context.Context, b *Bundle) error {
	if b.present.Has(KindBlob) {
		return nil
	}
	if err := c.ensureBuffer(ctx, b); err != nil {
		return err
	}
	mime := b.mime
	if mime == "" {
		mime = DefaultMIME
	}
	b.FillBlob(platform.NewBlob(b.buffer, mime))
	return nil
}

func (c *Converter) ensureBlobURL(ctx context.Context, b *Bundle) error {
	if b.present.Has(KindBlobURL) {
		return nil
	}
	if err := c.ensureBlob(ctx, b); err != nil {
		return err
	}
	url, err := c.codec.CreateObjectURL(b.blob)
	if err != nil {
		return fmt.Errorf("assets: create object URL: %w", err)
	}
	b.FillBlobURL(url)
	return nil
}

func (c *Converter) ensureImage(ctx context.Context, b *Bundle) error {
	if b.present.Has(KindImage) {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(b.mime), "image/") {
		return fmt.Errorf("%w: MIME type %q", ErrNotAnImage, b.mime)
	}

	src, from := b.data64URL, KindData64URL
	if !b.present.Has(KindData64URL) {
		if err := c.ensureBlobURL(ctx, b); err != nil {
			return err
		}
		src, from = b.blobURL, KindBlobURL
	}
	img, err := c.codec.DecodeImage(ctx, src)
	if err != nil {
		return fmt.Errorf("assets: decode image: %w", err)
	}
	b.FillImage(img)
	c.log().Debug("converted", "from", from, "to", KindImage)
	return nil
}

func (c *Converter) ensureData64URL(ctx context.Context, b *Bundle) error {
	if b.present.Has(KindData64URL) {
		return nil
	}
	if err := c.ensureBuffer(ctx, b); err != nil {
		return err
	}
	mime := b.mime
	if mime == "" {
		mime = DefaultMIME
	}
	b.FillData64URL(dataurl.Encode(mime, b.buffer))
	return nil
}

// Fetched is the result of URLToBuffer.
type Fetched struct {
	MIME string
	Data []byte
}

// URLToBuffer fetches url and returns its content with the MIME type taken
// from the Content-Type header, lower-cased and without parameters. Every
// failure, including a missing Content-Type, is a *FetchError.
func (c *Converter) URLToBuffer(ctx context.Context, url string) (Fetched, error) {
	if c.fetcher == nil {
		return Fetched{}, &FetchError{URL: url, Err: ErrNotImplemented}
	}
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return Fetched{}, &FetchError{URL: url, Err: err}
	}
	mime := mediaType(resp.ContentType())
	if mime == "" {
		return Fetched{}, &FetchError{URL: url, Err: errMissingContentType}
	}
	c.log().Debug("fetched url", "url", url, "mime", mime, "size", len(resp.Body))
	return Fetched{MIME: mime, Data: resp.Body}, nil
}

// mediaType lower-cases a Content-Type value and strips its parameters.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
