// Package pack implements asset packs: single-file archives holding named
// asset entries, each with a MIME type, byte length and opaque metadata.
//
// An archive is laid out as:
//
//	magic "APK1" | uint32 little-endian index length | index | data
//
// The index is a FlatBuffers table listing entries sorted by id, so lookups
// are O(log n) without decoding the whole index. The data section holds the
// concatenated entry contents, each optionally zstd-compressed and verified
// against a SHA-256 digest when read.
//
// Packs are created with [Builder] and opened with [Open] or [OpenDataURL].
// A pack produced directly by [Builder.Pack] is "synthesized": it is never
// exported as a contiguous archive, so its records carry no byte offset.
package pack
