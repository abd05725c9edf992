package platform

import (
	"context"
	"errors"
	"image"
)

// ErrUnsupportedImage is returned when an image format has no decoder or encoder.
var ErrUnsupportedImage = errors.New("platform: unsupported image format")

// ErrObjectURLNotExist is returned when an object URL is unknown or revoked.
var ErrObjectURLNotExist = errors.New("platform: object URL does not exist")

// Codec provides the host facilities used by representation conversions.
//
// Implementations must be safe for concurrent use.
type Codec interface {
	// ReadBlob returns the full content of a blob.
	ReadBlob(ctx context.Context, blob *Blob) ([]byte, error)

	// CreateObjectURL returns a dereferenceable handle for a blob.
	CreateObjectURL(blob *Blob) (string, error)

	// RevokeObjectURL releases a handle created by CreateObjectURL.
	RevokeObjectURL(url string)

	// ResolveObjectURL returns the blob behind a handle.
	ResolveObjectURL(url string) (*Blob, bool)

	// DecodeImage decodes the bitmap referenced by src, which is either an
	// object URL or a data URL.
	DecodeImage(ctx context.Context, src string) (image.Image, error)

	// EncodeImage renders img onto a canvas of its own dimensions and
	// returns the canvas encoded as a data URL of the given MIME type.
	EncodeImage(ctx context.Context, img image.Image, mime string) (string, error)
}
