package assets

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Identifier prefixes with embedded meaning.
const (
	PackPrefix = "pack:"
	URLPrefix  = "url:"
)

// IDKind discriminates the identifier shapes.
type IDKind uint8

const (
	// IDOpaque is a caller-chosen or generated identifier.
	IDOpaque IDKind = iota
	// IDPack names an entry inside a pack: "pack:<name>/<entry>".
	IDPack
	// IDURL is derived from a source URL: "url:<sha256 hex of the URL>".
	IDURL
)

func (k IDKind) String() string {
	switch k {
	case IDPack:
		return "pack"
	case IDURL:
		return "url"
	default:
		return "opaque"
	}
}

// ID is a parsed asset identifier. The zero ID is invalid.
type ID struct {
	kind  IDKind
	raw   string
	pack  string
	entry string
}

// ParseID parses s into an ID.
//
// Strings starting with "pack:" must have a non-empty pack name and entry
// separated by the first '/'; the entry may itself contain '/'. Strings
// starting with "url:" must carry a non-empty digest. Anything else is
// opaque. The empty string is invalid.
func ParseID(s string) (ID, error) {
	switch {
	case s == "":
		return ID{}, fmt.Errorf("%w: empty", ErrInvalidID)
	case strings.HasPrefix(s, PackPrefix):
		name, entry, ok := strings.Cut(s[len(PackPrefix):], "/")
		if !ok || name == "" || entry == "" {
			return ID{}, fmt.Errorf("%w: %q: want pack:<name>/<entry>", ErrInvalidID, s)
		}
		return ID{kind: IDPack, raw: s, pack: name, entry: entry}, nil
	case strings.HasPrefix(s, URLPrefix):
		if len(s) == len(URLPrefix) {
			return ID{}, fmt.Errorf("%w: %q: missing digest", ErrInvalidID, s)
		}
		return ID{kind: IDURL, raw: s}, nil
	default:
		return ID{kind: IDOpaque, raw: s}, nil
	}
}

// MustParseID is like ParseID but panics on error.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// PackEntryID returns the identifier of entry inside pack.
func PackEntryID(pack, entry string) ID {
	return ID{kind: IDPack, raw: PackPrefix + pack + "/" + entry, pack: pack, entry: entry}
}

// URLID returns the identifier of an asset ingested from rawURL.
// The same URL string always yields the same identifier.
func URLID(rawURL string) ID {
	return ID{kind: IDURL, raw: URLPrefix + digest.FromString(rawURL).Encoded()}
}

// OpaqueID wraps s without interpreting it. Use ParseID for strings that
// may carry a pack: or url: prefix.
func OpaqueID(s string) ID {
	return ID{kind: IDOpaque, raw: s}
}

// Kind returns the identifier shape.
func (id ID) Kind() IDKind {
	return id.kind
}

// Pack returns the pack name of a pack identifier.
func (id ID) Pack() string {
	return id.pack
}

// Entry returns the entry name of a pack identifier.
func (id ID) Entry() string {
	return id.entry
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool {
	return id.raw == ""
}

func (id ID) String() string {
	return id.raw
}
