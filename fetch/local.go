package fetch

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/platform"
)

// DataURL decodes data: URLs without I/O.
type DataURL struct{}

var _ Fetcher = DataURL{}

// Fetch decodes the payload and reports the embedded media type.
func (DataURL) Fetch(ctx context.Context, u string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mediaType, data, err := dataurl.Decode(u)
	if err != nil {
		return nil, fmt.Errorf("fetch data URL: %w", err)
	}
	return newResponse(u, mediaType, data), nil
}

// File reads file: URLs from the local filesystem.
//
// The Content-Type is derived from the file extension and falls back to
// application/octet-stream.
type File struct {
	// Root, when set, confines reads to this directory.
	Root string
}

var _ Fetcher = File{}

// Fetch reads the whole file named by the URL path.
func (f File) Fetch(ctx context.Context, u string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	if parsed.Scheme != "file" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}

	path := filepath.FromSlash(parsed.Path)
	if f.Root != "" {
		root, err := os.OpenRoot(f.Root)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		defer root.Close()
		data, err := root.ReadFile(strings.TrimPrefix(filepath.Clean(path), string(filepath.Separator)))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		return newResponse(u, contentTypeByExt(path), data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	return newResponse(u, contentTypeByExt(path), data), nil
}

func contentTypeByExt(path string) string {
	if typ := mime.TypeByExtension(filepath.Ext(path)); typ != "" {
		return typ
	}
	return platform.DefaultBlobType
}

// ObjectURL dereferences blob: handles created by a platform codec.
type ObjectURL struct {
	Codec platform.Codec
}

var _ Fetcher = ObjectURL{}

// Fetch returns the blob content with the blob's type as Content-Type.
func (o ObjectURL) Fetch(ctx context.Context, u string) (*Response, error) {
	if o.Codec == nil {
		return nil, fmt.Errorf("fetch %s: no codec configured", u)
	}
	blob, ok := o.Codec.ResolveObjectURL(u)
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", u, platform.ErrObjectURLNotExist)
	}
	data, err := o.Codec.ReadBlob(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	return newResponse(u, blob.Type(), data), nil
}

// NewDefault returns a Mux serving http, https, data, file and blob URLs.
// Blob URLs are resolved through codec; pass nil to leave them unserved.
func NewDefault(codec platform.Codec, opts ...HTTPOption) *Mux {
	h := NewHTTP(opts...)
	m := NewMux().
		Handle(h, "http", "https").
		Handle(DataURL{}, "data").
		Handle(File{}, "file")
	if codec != nil {
		m.Handle(ObjectURL{Codec: codec}, "blob")
	}
	return m
}
