// Package cache provides content-addressed storage for fetched pack layers.
//
// Keys are OCI digests of the stored bytes. Because keys name the content,
// a reader re-verifies the bytes against the key on every hit and treats a
// mismatch as a miss.
package cache

import (
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"
)

// Cache stores content by digest.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the content stored under d, or nil, false.
	Get(d digest.Digest) ([]byte, bool)

	// Put stores content under d.
	Put(d digest.Digest, content []byte) error
}

// Deleter is implemented by caches that can drop a single entry.
type Deleter interface {
	Delete(d digest.Digest) error
}

// Pruner is implemented by caches that can shrink to a byte budget.
type Pruner interface {
	// Prune removes entries until at most targetBytes remain and returns
	// the bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// Verified returns the content stored under d when it still hashes to d.
// A corrupt entry is dropped when c implements Deleter.
func Verified(c Cache, d digest.Digest) ([]byte, bool) {
	data, ok := c.Get(d)
	if !ok {
		return nil, false
	}
	if err := d.Validate(); err != nil {
		return nil, false
	}
	if d.Algorithm().FromBytes(data) != d {
		if del, ok := c.(Deleter); ok {
			_ = del.Delete(d)
		}
		return nil, false
	}
	return data, true
}

// Memory is an in-process Cache bounded by total bytes. When full, the
// oldest entries are dropped first.
type Memory struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	order    []digest.Digest
	entries  map[digest.Digest][]byte
}

// NewMemory creates a Memory cache holding at most maxBytes. Zero or
// negative means unbounded.
func NewMemory(maxBytes int64) *Memory {
	return &Memory{maxBytes: maxBytes, entries: make(map[digest.Digest][]byte)}
}

var (
	_ Cache   = (*Memory)(nil)
	_ Deleter = (*Memory)(nil)
)

// Get returns the content stored under d.
func (m *Memory) Get(d digest.Digest) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[d]
	return data, ok
}

// Put stores content under d. Content larger than the bound is not stored.
func (m *Memory) Put(d digest.Digest, content []byte) error {
	n := int64(len(content))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[d]; ok {
		return nil
	}
	if m.maxBytes > 0 && n > m.maxBytes {
		return nil
	}
	for m.maxBytes > 0 && m.size+n > m.maxBytes && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		m.size -= int64(len(m.entries[oldest]))
		delete(m.entries, oldest)
	}
	m.entries[d] = content
	m.order = append(m.order, d)
	m.size += n
	return nil
}

// Delete removes the entry for d, if any.
func (m *Memory) Delete(d digest.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[d]
	if !ok {
		return nil
	}
	delete(m.entries, d)
	m.size -= int64(len(data))
	m.order = slices.DeleteFunc(m.order, func(o digest.Digest) bool { return o == d })
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
