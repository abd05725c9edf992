package pack

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strings"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/internal/fb"
)

// defaultMinCompressSize is the size under which entries are stored as-is.
const defaultMinCompressSize = 1024

// Builder collects entries and produces a pack.
//
// Adding an id that already exists replaces the earlier entry.
// A Builder is not safe for concurrent use.
type Builder struct {
	name        string
	compression Compression
	level       int
	skip        []SkipCompressionFunc
	entries     map[string]builderEntry
}

type builderEntry struct {
	data     []byte
	mime     string
	metadata map[string]any
}

// NewBuilder creates a builder for a pack with the given name.
func NewBuilder(name string, opts ...BuilderOption) *Builder {
	b := &Builder{
		name:        name,
		compression: CompressionZstd,
		level:       int(zstd.SpeedDefault),
		skip:        []SkipCompressionFunc{DefaultSkipCompression(defaultMinCompressSize)},
		entries:     make(map[string]builderEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the pack name.
func (b *Builder) Name() string {
	return b.name
}

// Add stores an entry. The data slice is retained by the builder.
func (b *Builder) Add(id string, data []byte, mime string, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("%w: empty entry id", ErrInvalidName)
	}
	b.entries[id] = builderEntry{data: data, mime: mime, metadata: maps.Clone(metadata)}
	return nil
}

// Remove drops an entry.
func (b *Builder) Remove(id string) {
	delete(b.entries, id)
}

// Len returns the number of entries.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Bytes encodes the archive.
func (b *Builder) Bytes() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	ids := slices.Sorted(maps.Keys(b.entries))
	layouts, data, err := b.encodeData(ids)
	if err != nil {
		return nil, err
	}
	indexData, err := b.encodeIndex(ids, layouts)
	if err != nil {
		return nil, err
	}
	if uint64(len(indexData)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: index is %d bytes", ErrEntryTooLarge, len(indexData))
	}

	out := make([]byte, 0, headerSize+len(indexData)+len(data))
	out = append(out, magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(indexData))) //nolint:gosec // checked above
	out = append(out, indexData...)
	out = append(out, data...)
	return out, nil
}

// WriteTo writes the archive to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	archive, err := b.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(archive)
	return int64(n), err
}

// DataURL returns the archive encoded as a base64 data URL.
func (b *Builder) DataURL() (string, error) {
	archive, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return dataurl.Encode(MediaType, archive), nil
}

// Pack returns a synthesized pack holding the current entries.
// Its records carry no offset.
func (b *Builder) Pack(opts ...Option) (*Pack, error) {
	archive, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	p, err := Open(archive, opts...)
	if err != nil {
		return nil, err
	}
	p.synthesized = true
	return p, nil
}

func (b *Builder) validate() error {
	if strings.TrimSpace(b.name) == "" {
		return fmt.Errorf("%w: empty pack name", ErrInvalidName)
	}
	if strings.ContainsRune(b.name, '/') {
		return fmt.Errorf("%w: pack name %q contains '/'", ErrInvalidName, b.name)
	}
	return nil
}

// entryLayout is the position and digest of an encoded entry.
type entryLayout struct {
	offset       uint64
	size         uint64
	originalSize uint64
	hash         [sha256.Size]byte
	compression  Compression
}

// encodeData concatenates entry contents in id order.
func (b *Builder) encodeData(ids []string) ([]entryLayout, []byte, error) {
	var enc *zstd.Encoder
	if b.compression == CompressionZstd {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(b.level)), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
	}

	var data bytes.Buffer
	layouts := make([]entryLayout, len(ids))
	for i, id := range ids {
		e := b.entries[id]
		layout := entryLayout{
			offset:       uint64(data.Len()),
			originalSize: uint64(len(e.data)),
			hash:         sha256.Sum256(e.data),
			compression:  CompressionNone,
		}

		stored := e.data
		if enc != nil && !b.shouldSkip(id, e) {
			compressed := enc.EncodeAll(e.data, nil)
			if len(compressed) < len(e.data) {
				stored = compressed
				layout.compression = CompressionZstd
			}
		}
		layout.size = uint64(len(stored))
		data.Write(stored)
		layouts[i] = layout
	}
	return layouts, data.Bytes(), nil
}

func (b *Builder) shouldSkip(id string, e builderEntry) bool {
	for _, fn := range b.skip {
		if fn != nil && fn(id, e.mime, len(e.data)) {
			return true
		}
	}
	return false
}

// encodeIndex builds the FlatBuffers index. Tables are built back to front,
// as FlatBuffers requires.
func (b *Builder) encodeIndex(ids []string, layouts []entryLayout) ([]byte, error) {
	builder := flatbuffers.NewBuilder(1024)

	entryOffsets := make([]flatbuffers.UOffsetT, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		e := b.entries[ids[i]]
		layout := layouts[i]

		metadata, err := encodeMetadata(e.metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata of %q: %w", ids[i], err)
		}

		idOffset := builder.CreateString(ids[i])
		mimeOffset := builder.CreateString(e.mime)
		hashOffset := builder.CreateByteVector(layout.hash[:])
		var metadataOffset flatbuffers.UOffsetT
		if metadata != nil {
			metadataOffset = builder.CreateByteVector(metadata)
		}

		fb.EntryStart(builder)
		fb.EntryAddId(builder, idOffset)
		fb.EntryAddMime(builder, mimeOffset)
		fb.EntryAddDataOffset(builder, layout.offset)
		fb.EntryAddDataSize(builder, layout.size)
		fb.EntryAddOriginalSize(builder, layout.originalSize)
		fb.EntryAddHash(builder, hashOffset)
		fb.EntryAddCompression(builder, fb.Compression(layout.compression)) //nolint:gosec // Compression is bounded 0-1
		if metadata != nil {
			fb.EntryAddMetadata(builder, metadataOffset)
		}
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(entryOffsets))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(entryOffsets))
	nameOffset := builder.CreateString(b.name)

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, indexVersion)
	fb.IndexAddName(builder, nameOffset)
	fb.IndexAddEntries(builder, entriesOffset)
	builder.Finish(fb.IndexEnd(builder))

	return builder.FinishedBytes(), nil
}
