package testutil

import (
	"encoding/binary"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/assets/internal/fb"
)

// TestEntry holds data for building test index entries.
type TestEntry struct {
	ID           string
	MIME         string
	DataOffset   uint64
	DataSize     uint64
	OriginalSize uint64
	Hash         []byte
	Compression  fb.Compression
}

// BuildTestIndex creates a FlatBuffers-encoded pack index.
// Entries are written in the given order so tests can produce indexes the
// reader must reject.
func BuildTestIndex(tb testing.TB, name string, version uint32, entries []TestEntry) []byte {
	tb.Helper()

	builder := flatbuffers.NewBuilder(1024)

	// FlatBuffers builds back to front.
	entryOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		idOffset := builder.CreateString(e.ID)
		mimeOffset := builder.CreateString(e.MIME)

		fb.EntryStartHashVector(builder, len(e.Hash))
		for j := len(e.Hash) - 1; j >= 0; j-- {
			builder.PrependByte(e.Hash[j])
		}
		hashOffset := builder.EndVector(len(e.Hash))

		fb.EntryStart(builder)
		fb.EntryAddId(builder, idOffset)
		fb.EntryAddMime(builder, mimeOffset)
		fb.EntryAddDataOffset(builder, e.DataOffset)
		fb.EntryAddDataSize(builder, e.DataSize)
		fb.EntryAddOriginalSize(builder, e.OriginalSize)
		fb.EntryAddHash(builder, hashOffset)
		fb.EntryAddCompression(builder, e.Compression)
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(entries))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(entries))
	nameOffset := builder.CreateString(name)

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, version)
	fb.IndexAddName(builder, nameOffset)
	fb.IndexAddEntries(builder, entriesOffset)
	builder.Finish(fb.IndexEnd(builder))
	return builder.FinishedBytes()
}

// BuildTestArchive frames an index and data section as a pack archive.
func BuildTestArchive(tb testing.TB, index, data []byte) []byte {
	tb.Helper()

	out := make([]byte, 0, 8+len(index)+len(data))
	out = append(out, 'A', 'P', 'K', '1')
	out = binary.LittleEndian.AppendUint32(out, uint32(len(index))) //nolint:gosec // test indexes are small
	out = append(out, index...)
	return append(out, data...)
}
