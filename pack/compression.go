package pack

import (
	"mime"
	"strings"
)

// Compression identifies how an entry is stored in the data section.
type Compression uint8

// Supported compression algorithms.
const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// SkipCompressionFunc returns true when an entry should be stored uncompressed
// even though the builder compresses by default.
type SkipCompressionFunc func(id, mime string, size int) bool

// DefaultSkipCompression returns a SkipCompressionFunc that skips entries
// smaller than minSize and MIME types that are already compressed.
func DefaultSkipCompression(minSize int) SkipCompressionFunc {
	return func(_ string, mimeType string, size int) bool {
		if minSize > 0 && size < minSize {
			return true
		}
		mediaType, _, err := mime.ParseMediaType(mimeType)
		if err != nil {
			mediaType = strings.ToLower(mimeType)
		}
		if _, ok := precompressedTypes[mediaType]; ok {
			return true
		}
		return strings.HasPrefix(mediaType, "video/") || strings.HasPrefix(mediaType, "audio/")
	}
}

var precompressedTypes = map[string]struct{}{
	"application/gzip":            {},
	"application/vnd.rar":         {},
	"application/x-7z-compressed": {},
	"application/x-bzip2":         {},
	"application/x-xz":            {},
	"application/zip":             {},
	"application/zstd":            {},
	"font/woff":                   {},
	"font/woff2":                  {},
	"image/avif":                  {},
	"image/gif":                   {},
	"image/heic":                  {},
	"image/jpeg":                  {},
	"image/png":                   {},
	"image/webp":                  {},
	MediaType:                     {},
}
