package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// Size returns the total bytes stored in the cache.
func (c *Cache) Size() (int64, error) {
	_, total, err := c.walk()
	return total, err
}

// Prune removes the least recently written entries until the cache holds
// at most targetBytes. It returns the bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	targetBytes = max(targetBytes, 0)
	entries, total, err := c.walk()
	if err != nil || total <= targetBytes {
		return 0, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	var freed int64
	for _, e := range entries {
		if total-freed <= targetBytes {
			break
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return freed, err
		}
		freed += e.size
	}
	return freed, nil
}

func (c *Cache) walk() ([]cacheEntry, int64, error) {
	var entries []cacheEntry
	var total int64
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		entries = append(entries, cacheEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	return entries, total, err
}
