package assets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/assets/pack"
	"github.com/meigma/assets/platform"
)

// AddAssetFromPackage registers entry of p as pack:<name>/<entry>, with the
// entry's MIME type and metadata and its bytes as the buffer. Any asset
// under the same id is replaced.
func (r *Registry) AddAssetFromPackage(p *pack.Pack, entry string) (ID, error) {
	id, b, err := r.packBundle(p, entry)
	if err != nil {
		return ID{}, err
	}
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", b.mime)
	return id, nil
}

// materialize registers entry of p unless an asset already holds its id,
// and returns the live bundle.
func (r *Registry) materialize(p *pack.Pack, entry string) (*Bundle, error) {
	id, b, err := r.packBundle(p, entry)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.assets[id.String()]; ok {
		return existing, nil
	}
	r.assets[id.String()] = b
	r.log().Debug("materialized pack entry", "id", id, "mime", b.mime)
	return b, nil
}

func (r *Registry) packBundle(p *pack.Pack, entry string) (ID, *Bundle, error) {
	if p == nil {
		return ID{}, nil, errors.New("assets: nil pack")
	}
	id := PackEntryID(p.Name(), entry)
	rec, err := p.Record(entry)
	if err != nil {
		if errors.Is(err, pack.ErrEntryNotExist) {
			return ID{}, nil, fmt.Errorf("%w: %s", ErrAssetNotExist, id)
		}
		return ID{}, nil, fmt.Errorf("asset %s: %w", id, err)
	}
	data, err := p.Buffer(entry)
	if err != nil {
		return ID{}, nil, fmt.Errorf("asset %s: %w", id, err)
	}

	b := NewBundle(rec.MIME, rec.Metadata)
	b.source = SourcePack + p.Name()
	b.FillBuffer(data)
	return id, b, nil
}

// ImportPackage registers p under its name, replacing any pack of the same
// name. Assets already materialized from a replaced pack are kept.
func (r *Registry) ImportPackage(p *pack.Pack) error {
	if p == nil {
		return errors.New("assets: import nil pack")
	}
	r.mu.Lock()
	r.packs[p.Name()] = p
	r.mu.Unlock()
	r.log().Debug("imported pack", "pack", p.Name(), "entries", p.Len(), "synthesized", p.Synthesized())
	return nil
}

// ImportPackageFromBuffer opens a pack archive and imports it.
func (r *Registry) ImportPackageFromBuffer(data []byte) (*pack.Pack, error) {
	p, err := pack.Open(data, r.packOpts...)
	if err != nil {
		return nil, fmt.Errorf("assets: open pack: %w", err)
	}
	return p, r.ImportPackage(p)
}

// ImportPackageFromData64URL opens a pack archive encoded as a data URL and
// imports it.
func (r *Registry) ImportPackageFromData64URL(s string) (*pack.Pack, error) {
	p, err := pack.OpenDataURL(s, r.packOpts...)
	if err != nil {
		return nil, fmt.Errorf("assets: open pack: %w", err)
	}
	return p, r.ImportPackage(p)
}

// ImportPackageFromURL fetches a pack archive and imports it.
func (r *Registry) ImportPackageFromURL(ctx context.Context, url string) (*pack.Pack, error) {
	p, err := r.OpenPackageFromURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return p, r.ImportPackage(p)
}

// OpenPackageFromURL fetches and opens a pack archive without importing it.
func (r *Registry) OpenPackageFromURL(ctx context.Context, url string) (*pack.Pack, error) {
	resp, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	p, err := pack.Open(resp.Body, r.packOpts...)
	if err != nil {
		return nil, fmt.Errorf("assets: open pack from %s: %w", url, err)
	}
	r.log().Debug("fetched pack", "url", url, "pack", p.Name(), "size", p.Size())
	return p, nil
}

// ImportPackageFromBlob reads a pack archive from blob and imports it.
func (r *Registry) ImportPackageFromBlob(ctx context.Context, blob *platform.Blob) (*pack.Pack, error) {
	if blob == nil {
		return nil, errors.New("assets: import pack from nil blob")
	}
	data, err := r.codec.ReadBlob(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("assets: read pack blob: %w", err)
	}
	return r.ImportPackageFromBuffer(data)
}

// PackageExists reports whether a pack named name is imported.
func (r *Registry) PackageExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packs[name]
	return ok
}

// Package returns the imported pack named name.
func (r *Registry) Package(name string) (*pack.Pack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[name]
	return p, ok
}

// PackageNames returns the imported pack names in lexical order.
func (r *Registry) PackageNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.packs))
	for name := range r.packs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// RemovePackage removes every pack:<name>/* asset and then the pack itself.
// Unknown names are ignored.
func (r *Registry) RemovePackage(name string) {
	prefix := PackPrefix + name + "/"

	r.mu.Lock()
	if _, ok := r.packs[name]; !ok {
		r.mu.Unlock()
		return
	}
	removed := 0
	for key := range r.assets {
		if strings.HasPrefix(key, prefix) {
			delete(r.assets, key)
			removed++
		}
	}
	delete(r.packs, name)
	r.mu.Unlock()

	r.log().Debug("removed pack", "pack", name, "assets", removed)
}
