package catalog

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/assets"
	"github.com/meigma/assets/platform"
)

// DefaultLoadConcurrency bounds parallel loads in Preload.
const DefaultLoadConcurrency = 4

// Resolver makes catalog-declared assets addressable before they are
// fetched.
//
// Importing a manifest records where each pack and standalone asset lives
// and what it is declared to contain. Nothing is fetched until an asset is
// loaded, either explicitly or by requesting a representation.
type Resolver struct {
	reg         *assets.Registry
	logger      *slog.Logger
	concurrency int

	mu         sync.RWMutex
	root       *url.URL
	packs      map[string]string // pack name -> absolute URL
	records    map[string]assets.Record
	standalone map[string]string // asset id -> absolute URL

	loads singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithRootURL sets the URL that relative manifest URLs resolve against.
func WithRootURL(root string) Option {
	return func(r *Resolver) error {
		return r.SetRootURL(root)
	}
}

// WithLogger sets the logger for catalog events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) error {
		r.logger = logger
		return nil
	}
}

// WithLoadConcurrency bounds the number of parallel loads in Preload.
func WithLoadConcurrency(n int) Option {
	return func(r *Resolver) error {
		if n < 1 {
			return fmt.Errorf("catalog: load concurrency must be positive, got %d", n)
		}
		r.concurrency = n
		return nil
	}
}

// New creates a Resolver that materializes assets into reg.
func New(reg *assets.Registry, opts ...Option) (*Resolver, error) {
	if reg == nil {
		return nil, errors.New("catalog: nil registry")
	}
	r := &Resolver{
		reg:         reg,
		concurrency: DefaultLoadConcurrency,
		packs:       make(map[string]string),
		records:     make(map[string]assets.Record),
		standalone:  make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Registry returns the registry assets are loaded into.
func (r *Resolver) Registry() *assets.Registry {
	return r.reg
}

// SetRootURL resolves root against the current root and makes the result
// the new root, so relative values navigate from the previous location.
func (r *Resolver) SetRootURL(root string) error {
	ref, err := url.Parse(root)
	if err != nil {
		return fmt.Errorf("catalog: parse root URL %q: %w", root, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root != nil {
		ref = r.root.ResolveReference(ref)
	}
	r.root = ref
	return nil
}

// RootURL returns the current root URL, or "" if none is set.
func (r *Resolver) RootURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.root == nil {
		return ""
	}
	return r.root.String()
}

// ImportCatalog records the declarations of m and returns its name.
// Relative URLs are resolved against the current root. No I/O is performed.
func (r *Resolver) ImportCatalog(m *Manifest) (string, error) {
	r.mu.RLock()
	base := r.root
	r.mu.RUnlock()
	return r.importCatalog(m, base)
}

// ImportCatalogFromURL fetches a manifest with the registry fetcher and
// imports it. Relative URLs inside it resolve against the manifest's own
// location.
func (r *Resolver) ImportCatalogFromURL(ctx context.Context, rawURL string) (string, error) {
	r.mu.RLock()
	abs, err := resolve(r.root, rawURL)
	r.mu.RUnlock()
	if err != nil {
		return "", err
	}

	resp, err := r.reg.Fetcher().Fetch(ctx, abs)
	if err != nil {
		return "", &assets.FetchError{URL: abs, Err: err}
	}
	m, err := Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("catalog %s: %w", abs, err)
	}
	base, err := url.Parse(abs)
	if err != nil {
		return "", fmt.Errorf("catalog: parse %q: %w", abs, err)
	}
	return r.importCatalog(m, base)
}

func (r *Resolver) importCatalog(m *Manifest, base *url.URL) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	packs := make(map[string]string, len(m.Packages))
	records := make(map[string]assets.Record)
	standalone := make(map[string]string, len(m.Assets))
	for name, decl := range m.Packages {
		abs, err := resolve(base, decl.URL)
		if err != nil {
			return "", fmt.Errorf("%w: pack %q: %w", ErrInvalidManifest, name, err)
		}
		packs[name] = abs
		for entry, e := range decl.Assets {
			records[assets.PackEntryID(name, entry).String()] = e.Record()
		}
	}
	for id, decl := range m.Assets {
		abs, err := resolve(base, decl.URL)
		if err != nil {
			return "", fmt.Errorf("%w: asset %q: %w", ErrInvalidManifest, id, err)
		}
		standalone[id] = abs
		records[id] = decl.Record()
	}

	r.mu.Lock()
	maps.Copy(r.packs, packs)
	maps.Copy(r.records, records)
	maps.Copy(r.standalone, standalone)
	r.mu.Unlock()

	r.log().Debug("imported catalog", "name", m.Name(), "packs", len(packs), "assets", len(records))
	return m.Name(), nil
}

func resolve(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", ref, err)
	}
	if base == nil {
		return parsed.String(), nil
	}
	return base.ResolveReference(parsed).String(), nil
}

// AssetRecord returns the declared record of id without fetching anything.
func (r *Resolver) AssetRecord(id assets.ID) (assets.Record, error) {
	r.mu.RLock()
	rec, ok := r.records[id.String()]
	_, packDeclared := r.packs[id.Pack()]
	r.mu.RUnlock()
	if ok {
		return cloneRecord(rec), nil
	}
	if id.Kind() == assets.IDPack && !packDeclared {
		return assets.Record{}, fmt.Errorf("%w: %s (asset %s)", assets.ErrPackageNotExist, id.Pack(), id)
	}
	return assets.Record{}, fmt.Errorf("%w: %s", assets.ErrAssetNotExist, id)
}

func cloneRecord(rec assets.Record) assets.Record {
	out := rec
	out.Metadata = maps.Clone(rec.Metadata)
	if rec.Offset != nil {
		off := *rec.Offset
		out.Offset = &off
	}
	return out
}

// AssetExists reports whether the catalog declares id.
func (r *Resolver) AssetExists(id assets.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id.String()]
	return ok
}

// AssetLoaded reports whether the registry holds a bundle for id with at
// least one representation.
func (r *Resolver) AssetLoaded(id assets.ID) bool {
	kinds, ok := r.reg.AssetKinds(id)
	return ok && !kinds.Empty()
}

// PackageNames returns the declared pack names in lexical order.
func (r *Resolver) PackageNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.packs))
}

// AssetIDs returns every declared asset id in lexical order.
func (r *Resolver) AssetIDs() []assets.ID {
	r.mu.RLock()
	keys := slices.Sorted(maps.Keys(r.records))
	r.mu.RUnlock()

	ids := make([]assets.ID, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, assets.MustParseID(key))
	}
	return ids
}

// LoadAsset makes id available in the registry, fetching its pack or URL
// if needed. It is a no-op for assets that are already loaded.
func (r *Resolver) LoadAsset(ctx context.Context, id assets.ID) error {
	if r.AssetLoaded(id) {
		return nil
	}
	if id.Kind() == assets.IDPack {
		return r.loadPackEntry(ctx, id)
	}
	return r.loadStandalone(ctx, id)
}

func (r *Resolver) loadStandalone(ctx context.Context, id assets.ID) error {
	r.mu.RLock()
	src, ok := r.standalone[id.String()]
	rec := r.records[id.String()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", assets.ErrAssetNotExist, id)
	}

	_, err, _ := r.loads.Do("asset:"+id.String(), func() (any, error) {
		if r.AssetLoaded(id) {
			return nil, nil
		}
		opts := []assets.AssetOption{assets.WithID(id), assets.WithMetadata(rec.Metadata)}
		if rec.MIME != "" {
			opts = append(opts, assets.WithMIME(rec.MIME))
		}
		r.log().Debug("loading asset", "id", id, "url", src)
		_, err := r.reg.AddAssetFromURL(ctx, src, opts...)
		return nil, err
	})
	return err
}

func (r *Resolver) loadPackEntry(ctx context.Context, id assets.ID) error {
	name := id.Pack()
	r.mu.RLock()
	src, packDeclared := r.packs[name]
	_, entryDeclared := r.records[id.String()]
	r.mu.RUnlock()
	if !packDeclared {
		return fmt.Errorf("%w: %s (asset %s)", assets.ErrPackageNotExist, name, id)
	}
	if !entryDeclared {
		return fmt.Errorf("%w: %s", assets.ErrAssetNotExist, id)
	}

	if !r.reg.PackageExists(name) {
		_, err, _ := r.loads.Do("pack:"+name, func() (any, error) {
			if r.reg.PackageExists(name) {
				return nil, nil
			}
			r.log().Debug("loading pack", "pack", name, "url", src)
			p, err := r.reg.OpenPackageFromURL(ctx, src)
			if err != nil {
				return nil, err
			}
			if p.Name() != name {
				return nil, fmt.Errorf("%w: %s declares %q, fetched pack is %q", assets.ErrPackNameMismatch, src, name, p.Name())
			}
			return nil, r.reg.ImportPackage(p)
		})
		if err != nil {
			return err
		}
	}

	_, err := r.reg.Asset(ctx, id)
	return err
}

// Preload loads ids concurrently, or every declared asset when ids is
// empty. It returns the first error encountered.
func (r *Resolver) Preload(ctx context.Context, ids ...assets.ID) error {
	if len(ids) == 0 {
		ids = r.AssetIDs()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			return r.LoadAsset(ctx, id)
		})
	}
	return g.Wait()
}

// AssetAsBuffer loads id and returns its byte content.
func (r *Resolver) AssetAsBuffer(ctx context.Context, id assets.ID) ([]byte, error) {
	if err := r.LoadAsset(ctx, id); err != nil {
		return nil, err
	}
	return r.reg.AssetAsBuffer(ctx, id)
}

// AssetAsImage loads id and returns its decoded image.
func (r *Resolver) AssetAsImage(ctx context.Context, id assets.ID) (image.Image, error) {
	if err := r.LoadAsset(ctx, id); err != nil {
		return nil, err
	}
	return r.reg.AssetAsImage(ctx, id)
}

// AssetAsBlobURL loads id and returns an object URL for it.
func (r *Resolver) AssetAsBlobURL(ctx context.Context, id assets.ID) (string, error) {
	if err := r.LoadAsset(ctx, id); err != nil {
		return "", err
	}
	return r.reg.AssetAsBlobURL(ctx, id)
}

// AssetAsData64URL loads id and returns it as a base64 data URL.
func (r *Resolver) AssetAsData64URL(ctx context.Context, id assets.ID) (string, error) {
	if err := r.LoadAsset(ctx, id); err != nil {
		return "", err
	}
	return r.reg.AssetAsData64URL(ctx, id)
}

// AssetAsBlob loads id and returns it as a blob.
func (r *Resolver) AssetAsBlob(ctx context.Context, id assets.ID) (*platform.Blob, error) {
	if err := r.LoadAsset(ctx, id); err != nil {
		return nil, err
	}
	return r.reg.AssetAsBlob(ctx, id)
}
