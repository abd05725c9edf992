package platform

import (
	"bytes"
	"io"
)

// DefaultBlobType is used when a blob is created without a MIME type.
const DefaultBlobType = "application/octet-stream"

// Blob is an immutable byte container with an associated MIME type.
// A Blob created with NewFile also carries a file name.
type Blob struct {
	data []byte
	typ  string
	name string
}

// NewBlob copies data into a new Blob.
func NewBlob(data []byte, mime string) *Blob {
	if mime == "" {
		mime = DefaultBlobType
	}
	return &Blob{data: bytes.Clone(data), typ: mime}
}

// NewFile creates a named Blob, mirroring a user-selected file.
func NewFile(name string, data []byte, mime string) *Blob {
	b := NewBlob(data, mime)
	b.name = name
	return b
}

// Type returns the blob's MIME type.
func (b *Blob) Type() string {
	return b.typ
}

// Name returns the file name, or "" for anonymous blobs.
func (b *Blob) Name() string {
	return b.name
}

// IsFile reports whether the blob was created with NewFile.
func (b *Blob) IsFile() bool {
	return b.name != ""
}

// Size returns the content length in bytes.
func (b *Blob) Size() int64 {
	return int64(len(b.data))
}

// Reader returns a reader over the blob content.
func (b *Blob) Reader() io.Reader {
	return bytes.NewReader(b.data)
}
