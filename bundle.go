package assets

import (
	"bytes"
	"image"
	"maps"

	"github.com/meigma/assets/platform"
)

// Provenance tags recorded on bundles.
const (
	SourceBuffer    = "buffer"
	SourceImage     = "image"
	SourceData64URL = "data64Url"
	SourceBlob      = "blob"
	SourceFile      = "file:"
	SourceURL       = "url:"
	SourcePack      = "pack:"
)

// Default MIME types.
const (
	DefaultMIME      = "application/octet-stream"
	DefaultImageMIME = "image/png"
)

// Bundle holds the representations of one asset.
//
// Slots are only ever filled, never replaced, so a value observed once stays
// valid for the lifetime of the asset. Bundles returned by [Registry] are
// snapshots: filling them does not affect the registry. Images are shared
// with the registry and must be treated as read-only.
type Bundle struct {
	mime     string
	metadata map[string]any
	source   string

	buffer    []byte
	image     image.Image
	blobURL   string
	data64URL string
	blob      *platform.Blob

	present KindSet
}

// NewBundle creates a bundle with no representations.
func NewBundle(mime string, metadata map[string]any) *Bundle {
	return &Bundle{mime: mime, metadata: maps.Clone(metadata)}
}

// MIME returns the MIME type, or "" if unknown.
func (b *Bundle) MIME() string {
	return b.mime
}

// Metadata returns a copy of the creator-supplied metadata.
func (b *Bundle) Metadata() map[string]any {
	return maps.Clone(b.metadata)
}

// Source returns the provenance tag, such as "buffer" or "url:<url>".
func (b *Bundle) Source() string {
	return b.source
}

// Kinds returns the set of populated representations.
func (b *Bundle) Kinds() KindSet {
	return b.present
}

// Has reports whether representation k is populated.
func (b *Bundle) Has(k Kind) bool {
	return b.present.Has(k)
}

// Buffer returns a copy of the byte content.
func (b *Bundle) Buffer() ([]byte, bool) {
	if !b.present.Has(KindBuffer) {
		return nil, false
	}
	return bytes.Clone(b.buffer), true
}

// Image returns the decoded bitmap.
func (b *Bundle) Image() (image.Image, bool) {
	return b.image, b.present.Has(KindImage)
}

// BlobURL returns the object URL.
func (b *Bundle) BlobURL() (string, bool) {
	return b.blobURL, b.present.Has(KindBlobURL)
}

// Data64URL returns the base64 data URL.
func (b *Bundle) Data64URL() (string, bool) {
	return b.data64URL, b.present.Has(KindData64URL)
}

// Blob returns the blob.
func (b *Bundle) Blob() (*platform.Blob, bool) {
	return b.blob, b.present.Has(KindBlob)
}

// SetMIME sets the MIME type if none is known yet.
func (b *Bundle) SetMIME(mime string) {
	if b.mime == "" {
		b.mime = mime
	}
}

// FillBuffer stores data unless a buffer is already present.
// It reports whether the slot was filled.
func (b *Bundle) FillBuffer(data []byte) bool {
	if b.present.Has(KindBuffer) {
		return false
	}
	if data == nil {
		data = []byte{}
	}
	b.buffer = data
	b.present = b.present.With(KindBuffer)
	return true
}

// FillImage stores img unless an image is already present.
func (b *Bundle) FillImage(img image.Image) bool {
	if b.present.Has(KindImage) || img == nil {
		return false
	}
	b.image = img
	b.present = b.present.With(KindImage)
	return true
}

// FillBlobURL stores url unless an object URL is already present.
func (b *Bundle) FillBlobURL(url string) bool {
	if b.present.Has(KindBlobURL) || url == "" {
		return false
	}
	b.blobURL = url
	b.present = b.present.With(KindBlobURL)
	return true
}

// FillData64URL stores s unless a data URL is already present.
func (b *Bundle) FillData64URL(s string) bool {
	if b.present.Has(KindData64URL) || s == "" {
		return false
	}
	b.data64URL = s
	b.present = b.present.With(KindData64URL)
	return true
}

// FillBlob stores blob unless a blob is already present.
func (b *Bundle) FillBlob(blob *platform.Blob) bool {
	if b.present.Has(KindBlob) || blob == nil {
		return false
	}
	b.blob = blob
	b.present = b.present.With(KindBlob)
	return true
}

// clone returns a shallow copy. Slot values are shared; they are never
// mutated after being filled.
func (b *Bundle) clone() *Bundle {
	c := *b
	return &c
}

// merge fills the slots of b that are absent but present in from, and
// returns the kinds it adopted.
func (b *Bundle) merge(from *Bundle) KindSet {
	b.SetMIME(from.mime)
	var adopted KindSet
	for _, k := range from.present.Kinds() {
		if b.present.Has(k) {
			continue
		}
		switch k {
		case KindBuffer:
			b.FillBuffer(from.buffer)
		case KindImage:
			b.FillImage(from.image)
		case KindBlobURL:
			b.FillBlobURL(from.blobURL)
		case KindData64URL:
			b.FillData64URL(from.data64URL)
		case KindBlob:
			b.FillBlob(from.blob)
		}
		adopted = adopted.With(k)
	}
	return adopted
}
