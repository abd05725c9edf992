package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/internal/fb"
)

// MediaType is the MIME type of an exported pack archive.
const MediaType = "application/vnd.meigma.assets.pack.v1"

// magic prefixes every archive.
var magic = [4]byte{'A', 'P', 'K', '1'}

// headerSize is the magic plus the uint32 index length.
const headerSize = len(magic) + 4

// Pack provides access to the entries of an archive.
//
// A Pack is immutable once opened and safe for concurrent use.
type Pack struct {
	idx              *index
	data             []byte
	size             int
	synthesized      bool
	maxEntrySize     uint64
	maxDecoderMemory uint64
	decoders         *decompressPool
	logger           *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Pack) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Open parses archive bytes produced by Builder.
//
// The provided data is retained by the pack; callers must not modify it
// after calling Open.
func Open(archive []byte, opts ...Option) (*Pack, error) {
	if len(archive) < headerSize || !bytes.Equal(archive[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidArchive)
	}
	indexLen := binary.LittleEndian.Uint32(archive[len(magic):headerSize])
	if uint64(indexLen) > uint64(len(archive)-headerSize) {
		return nil, fmt.Errorf("%w: index length %d exceeds archive size", ErrInvalidArchive, indexLen)
	}
	indexData := archive[headerSize : headerSize+int(indexLen)]
	data := archive[headerSize+int(indexLen):]

	idx, err := loadIndex(indexData, uint64(len(data)))
	if err != nil {
		return nil, err
	}

	p := &Pack{
		idx:              idx,
		data:             data,
		size:             len(archive),
		maxEntrySize:     DefaultMaxEntrySize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.decoders = newDecompressPool(p.maxDecoderMemory)
	p.log().Debug("pack opened", "name", p.Name(), "entries", idx.len(), "size", len(archive))
	return p, nil
}

// OpenDataURL decodes a data URL holding an archive and opens it.
func OpenDataURL(s string, opts ...Option) (*Pack, error) {
	_, archive, err := dataurl.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return Open(archive, opts...)
}

// Name returns the name the pack reports for itself.
func (p *Pack) Name() string {
	return p.idx.name()
}

// Len returns the number of entries.
func (p *Pack) Len() int {
	return p.idx.len()
}

// Size returns the archive size in bytes.
func (p *Pack) Size() int {
	return p.size
}

// Synthesized reports whether the pack was built in memory rather than
// opened from an exported archive.
func (p *Pack) Synthesized() bool {
	return p.synthesized
}

// Exists reports whether the pack contains the entry.
func (p *Pack) Exists(id string) bool {
	_, ok := p.idx.lookup(id)
	return ok
}

// Record returns the record of an entry without reading its content.
func (p *Pack) Record(id string) (Record, error) {
	entry, ok := p.idx.lookup(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q in pack %q", ErrEntryNotExist, id, p.Name())
	}
	return p.record(&entry)
}

func (p *Pack) record(entry *fb.Entry) (Record, error) {
	metadata, err := decodeMetadata(entry.MetadataBytes())
	if err != nil {
		return Record{}, fmt.Errorf("%w: metadata of %q: %v", ErrInvalidArchive, entry.Id(), err)
	}
	rec := Record{
		MIME:     string(entry.Mime()),
		Length:   int64(entry.OriginalSize()), //nolint:gosec // bounded by maxEntrySize on read
		Metadata: metadata,
	}
	if !p.synthesized {
		off := int64(entry.DataOffset()) //nolint:gosec // validated against data length in loadIndex
		rec.Offset = &off
	}
	return rec, nil
}

// IDs returns the entry ids in sorted order.
func (p *Pack) IDs() []string {
	ids := make([]string, 0, p.idx.len())
	for entry := range p.idx.entries() {
		ids = append(ids, string(entry.Id()))
	}
	return ids
}

// Records returns an iterator over entry ids and their records.
// Entries whose metadata cannot be decoded are skipped.
func (p *Pack) Records() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		for entry := range p.idx.entries() {
			rec, err := p.record(&entry)
			if err != nil {
				p.log().Warn("skipping unreadable record", "pack", p.Name(), "error", err)
				continue
			}
			if !yield(string(entry.Id()), rec) {
				return
			}
		}
	}
}

// Buffer returns a copy of the entry's content, decompressed and verified.
func (p *Pack) Buffer(id string) ([]byte, error) {
	entry, ok := p.idx.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q in pack %q", ErrEntryNotExist, id, p.Name())
	}

	if p.maxEntrySize > 0 && (entry.DataSize() > p.maxEntrySize || entry.OriginalSize() > p.maxEntrySize) {
		return nil, fmt.Errorf("%w: %q is %d bytes", ErrEntryTooLarge, id, entry.OriginalSize())
	}

	stored := p.data[entry.DataOffset() : entry.DataOffset()+entry.DataSize()]

	var content []byte
	switch entry.Compression() {
	case fb.CompressionNone:
		content = bytes.Clone(stored)
	case fb.CompressionZstd:
		out, err := p.decoders.decode(stored, entry.OriginalSize(), p.maxEntrySize)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrDecompression, id, err)
		}
		content = out
	default:
		return nil, fmt.Errorf("%w: %q uses unknown compression %d", ErrInvalidArchive, id, entry.Compression())
	}

	if uint64(len(content)) != entry.OriginalSize() {
		return nil, fmt.Errorf("%w: %q: size %d, want %d", ErrHashMismatch, id, len(content), entry.OriginalSize())
	}
	expected := digest.NewDigestFromBytes(digest.SHA256, entry.HashBytes())
	if digest.SHA256.FromBytes(content) != expected {
		return nil, fmt.Errorf("%w: %q", ErrHashMismatch, id)
	}
	return content, nil
}
