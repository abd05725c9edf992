// Package dataurl encodes and decodes RFC 2397 data URLs.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	scheme       = "data:"
	base64Marker = ";base64"
)

// ErrInvalid is returned when a string is not a well-formed data URL.
var ErrInvalid = errors.New("invalid data URL")

// Encode returns "data:<mime>;base64,<payload>".
func Encode(mime string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len(scheme) + len(mime) + len(base64Marker) + 1 + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString(scheme)
	sb.WriteString(mime)
	sb.WriteString(base64Marker)
	sb.WriteByte(',')
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}

// IsDataURL reports whether s starts with the data scheme.
func IsDataURL(s string) bool {
	return len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme)
}

// MediaType returns the MIME type declared in the header of s, without
// parameters. It returns "" when s has no header or no media type.
func MediaType(s string) string {
	if !IsDataURL(s) {
		return ""
	}
	rest := s[len(scheme):]
	comma := strings.IndexByte(rest, ',')
	if comma >= 0 {
		rest = rest[:comma]
	}
	mime, _, _ := strings.Cut(rest, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

// Decode parses s and returns its media type and payload.
// Both base64 and percent-encoded payloads are accepted.
func Decode(s string) (mime string, data []byte, err error) {
	if !IsDataURL(s) {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalid)
	}
	rest := s[len(scheme):]
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma separator", ErrInvalid)
	}
	mime = MediaType(s)

	if strings.HasSuffix(strings.ToLower(meta), base64Marker) {
		data, err = decodeBase64(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return mime, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return mime, []byte(unescaped), nil
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
