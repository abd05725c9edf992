package assets

import (
	"fmt"
	"strings"
)

// Kind identifies one representation of an asset.
type Kind uint8

// Representation kinds.
const (
	// KindBuffer is the raw byte content.
	KindBuffer Kind = iota
	// KindImage is a decoded bitmap.
	KindImage
	// KindBlobURL is a dereferenceable object URL for the content.
	KindBlobURL
	// KindData64URL is a base64 data URL carrying MIME type and payload.
	KindData64URL
	// KindBlob is an immutable byte container with a MIME type.
	KindBlob
)

var kindNames = [...]string{
	KindBuffer:    "buffer",
	KindImage:     "image",
	KindBlobURL:   "blobUrl",
	KindData64URL: "data64Url",
	KindBlob:      "blob",
}

// AllKinds lists every representation kind.
var AllKinds = []Kind{KindBuffer, KindImage, KindBlobURL, KindData64URL, KindBlob}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// ParseKind returns the kind named s. Matching ignores case.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("assets: unknown representation kind %q", s)
}

// KindSet is a set of representation kinds.
type KindSet uint8

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	return s&(1<<k) != 0
}

// With returns the set with k added.
func (s KindSet) With(k Kind) KindSet {
	return s | 1<<k
}

// Empty reports whether the set has no members.
func (s KindSet) Empty() bool {
	return s == 0
}

// Kinds returns the members in declaration order.
func (s KindSet) Kinds() []Kind {
	var out []Kind
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}
