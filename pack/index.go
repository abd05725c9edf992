package pack

import (
	"bytes"
	"fmt"
	"iter"
	"sort"

	"github.com/meigma/assets/internal/fb"
)

// indexVersion is the index layout version written by Builder.
const indexVersion = 1

// index provides access to archive entries.
//
// It is backed by FlatBuffers; entries are sorted by id so lookups are a
// binary search over the entries vector.
type index struct {
	root *fb.Index
}

// loadIndex parses a FlatBuffers-encoded index and checks that every entry
// is readable, sorted and addresses bytes inside a data section of dataLen.
// FlatBuffers accessors panic on truncated input, so the walk runs under a
// recover.
func loadIndex(data []byte, dataLen uint64) (idx *index, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: index too short", ErrInvalidArchive)
	}
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: corrupt index: %v", ErrInvalidArchive, r)
		}
	}()

	root := fb.GetRootAsIndex(data, 0)
	if v := root.Version(); v != indexVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", ErrInvalidArchive, v)
	}

	var prev []byte
	var entry fb.Entry
	for i := range root.EntriesLength() {
		if !root.Entries(&entry, i) {
			return nil, fmt.Errorf("%w: missing entry %d", ErrInvalidArchive, i)
		}
		id := entry.Id()
		if len(id) == 0 {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidArchive, i)
		}
		if prev != nil && bytes.Compare(prev, id) >= 0 {
			return nil, fmt.Errorf("%w: entries not sorted at %q", ErrInvalidArchive, id)
		}
		end := entry.DataOffset() + entry.DataSize()
		if end < entry.DataOffset() || end > dataLen {
			return nil, fmt.Errorf("%w: entry %q outside data section", ErrInvalidArchive, id)
		}
		prev = id
	}

	return &index{root: root}, nil
}

// name returns the pack name stored in the index.
func (idx *index) name() string {
	return string(idx.root.Name())
}

// len returns the number of entries.
func (idx *index) len() int {
	return idx.root.EntriesLength()
}

// lookup returns the entry with the given id.
func (idx *index) lookup(id string) (fb.Entry, bool) {
	key := []byte(id)
	n := idx.root.EntriesLength()
	var entry fb.Entry
	i := sort.Search(n, func(i int) bool {
		idx.root.Entries(&entry, i)
		return bytes.Compare(entry.Id(), key) >= 0
	})
	if i >= n {
		return fb.Entry{}, false
	}
	idx.root.Entries(&entry, i)
	if !bytes.Equal(entry.Id(), key) {
		return fb.Entry{}, false
	}
	return entry, true
}

// entries returns an iterator over all entries in id order.
func (idx *index) entries() iter.Seq[fb.Entry] {
	return func(yield func(fb.Entry) bool) {
		var entry fb.Entry
		for i := range idx.root.EntriesLength() {
			if !idx.root.Entries(&entry, i) {
				return
			}
			if !yield(entry) {
				return
			}
		}
	}
}
