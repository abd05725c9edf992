package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/pack"
	"github.com/meigma/assets/platform"
)

// Record describes a pack entry or catalog declaration without its content.
type Record = pack.Record

// Registry maps asset ids to representation bundles.
//
// Representations are produced on first request and cached on the bundle
// for as long as the asset exists. Concurrent requests for the same missing
// representation are not collapsed: each converts independently and the
// first result to be committed is kept.
type Registry struct {
	codec    platform.Codec
	fetcher  fetch.Fetcher
	conv     *Converter
	newID    IDGenerator
	packOpts []pack.Option
	logger   *slog.Logger

	mu     sync.RWMutex
	assets map[string]*Bundle
	packs  map[string]*pack.Pack
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		assets: make(map[string]*Bundle),
		packs:  make(map[string]*pack.Pack),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.codec == nil {
		r.codec = platform.NewHeadless()
	}
	if r.fetcher == nil {
		r.fetcher = fetch.NewDefault(r.codec, fetch.WithLogger(r.logger))
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	r.conv = NewConverter(r.codec, r.fetcher, WithConverterLogger(r.logger))
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Codec returns the platform codec.
func (r *Registry) Codec() platform.Codec {
	return r.codec
}

// Fetcher returns the fetcher used for URL ingestion and pack imports.
func (r *Registry) Fetcher() fetch.Fetcher {
	return r.fetcher
}

// Converter returns the converter backing the registry.
func (r *Registry) Converter() *Converter {
	return r.conv
}

// put registers b under id, replacing any prior asset.
func (r *Registry) put(id ID, b *Bundle) {
	r.mu.Lock()
	r.assets[id.String()] = b
	r.mu.Unlock()
}

func (r *Registry) newBundle(o assetOptions, source string) (ID, *Bundle) {
	id := o.id
	if id.IsZero() {
		id = OpaqueID(r.newID())
	}
	b := NewBundle(o.mime, nil)
	b.metadata = o.metadata
	b.source = source
	return id, b
}

// AddAsset registers an asset with no representations, replacing any asset
// under the same id. Without WithID a fresh id is generated.
func (r *Registry) AddAsset(opts ...AssetOption) ID {
	id, b := r.newBundle(applyAssetOptions(opts), "")
	r.put(id, b)
	r.log().Debug("added asset", "id", id)
	return id
}

// AddAssetFromBuffer registers data as a new asset. The MIME type defaults
// to application/octet-stream.
func (r *Registry) AddAssetFromBuffer(data []byte, opts ...AssetOption) ID {
	id, b := r.newBundle(applyAssetOptions(opts), SourceBuffer)
	b.SetMIME(DefaultMIME)
	b.FillBuffer(data)
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", b.mime)
	return id
}

// AddAssetFromImage registers img as a new asset. The MIME type defaults to
// image/png.
func (r *Registry) AddAssetFromImage(img image.Image, opts ...AssetOption) (ID, error) {
	if img == nil {
		return ID{}, errors.New("assets: add nil image")
	}
	id, b := r.newBundle(applyAssetOptions(opts), SourceImage)
	b.SetMIME(DefaultImageMIME)
	b.FillImage(img)
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", b.mime)
	return id, nil
}

// AddAssetFromBlob registers blob as a new asset. The MIME type defaults to
// the blob type. Named files are recorded with a file:<name> provenance.
func (r *Registry) AddAssetFromBlob(blob *platform.Blob, opts ...AssetOption) (ID, error) {
	if blob == nil {
		return ID{}, errors.New("assets: add nil blob")
	}
	source := SourceBlob
	if blob.IsFile() {
		source = SourceFile + blob.Name()
	}
	id, b := r.newBundle(applyAssetOptions(opts), source)
	b.SetMIME(blob.Type())
	b.FillBlob(blob)
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", b.mime)
	return id, nil
}

// AddAssetFromData64URL registers a base64 data URL as a new asset. The MIME
// type defaults to the one declared in the URL header.
func (r *Registry) AddAssetFromData64URL(s string, opts ...AssetOption) (ID, error) {
	if !dataurl.IsDataURL(s) || !strings.Contains(s, ",") {
		return ID{}, fmt.Errorf("assets: add data URL: %w", dataurl.ErrInvalid)
	}
	id, b := r.newBundle(applyAssetOptions(opts), SourceData64URL)
	b.SetMIME(dataurl.MediaType(s))
	b.SetMIME(DefaultMIME)
	b.FillData64URL(s)
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", b.mime)
	return id, nil
}

// AddAssetFromURL fetches url and registers its content.
//
// The id is url:<sha256 of url> unless WithID is given, so adding the same
// URL twice yields the same id; the second call replaces the first asset and
// fetches again. The MIME type comes from the response unless WithMIME is
// given. Any prior asset under the id is removed before the fetch, and the
// new asset is registered only once its content has arrived, so a failed
// fetch leaves no asset under the id.
func (r *Registry) AddAssetFromURL(ctx context.Context, url string, opts ...AssetOption) (ID, error) {
	o := applyAssetOptions(opts)
	if o.id.IsZero() {
		o.id = URLID(url)
	}
	id, b := r.newBundle(o, SourceURL+url)
	r.RemoveAsset(id)

	fetched, err := r.conv.URLToBuffer(ctx, url)
	if err != nil {
		return ID{}, err
	}

	b.SetMIME(fetched.MIME)
	b.FillBuffer(fetched.Data)
	r.put(id, b)
	r.log().Debug("added asset", "id", id, "source", b.source, "mime", fetched.MIME, "size", len(fetched.Data))
	return id, nil
}

// Asset returns a snapshot of the bundle registered under id.
//
// Pack ids that are not registered yet are materialized from the imported
// pack of the same name.
func (r *Registry) Asset(ctx context.Context, id ID) (*Bundle, error) {
	live, err := r.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return live.clone(), nil
}

// resolve returns the live bundle for id.
func (r *Registry) resolve(ctx context.Context, id ID) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	r.mu.RLock()
	b, ok := r.assets[id.String()]
	p := r.packs[id.Pack()]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}
	if id.Kind() != IDPack {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotExist, id)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s (asset %s)", ErrPackageNotExist, id.Pack(), id)
	}
	return r.materialize(p, id.Entry())
}

// AssetExists reports whether id is registered or names an entry of an
// imported pack. It never materializes anything.
func (r *Registry) AssetExists(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.assets[id.String()]; ok {
		return true
	}
	if id.Kind() != IDPack {
		return false
	}
	p, ok := r.packs[id.Pack()]
	return ok && p.Exists(id.Entry())
}

// AssetRegistered reports whether a bundle is registered under id. Unlike
// AssetExists it ignores entries of imported packs that were never accessed.
func (r *Registry) AssetRegistered(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assets[id.String()]
	return ok
}

// AssetKinds returns the representations present on the bundle registered
// under id. Like AssetRegistered it never materializes pack entries.
func (r *Registry) AssetKinds(id ID) (KindSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.assets[id.String()]
	if !ok {
		return 0, false
	}
	return b.present, true
}

// RemoveAsset detaches id from the registry. Representation values handed
// out earlier stay valid.
func (r *Registry) RemoveAsset(id ID) {
	r.mu.Lock()
	delete(r.assets, id.String())
	r.mu.Unlock()
	r.log().Debug("removed asset", "id", id)
}

// AssetIDs returns the registered ids in lexical order.
func (r *Registry) AssetIDs() []ID {
	r.mu.RLock()
	keys := make([]string, 0, len(r.assets))
	for key := range r.assets {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	ids := make([]ID, 0, len(keys))
	for _, key := range keys {
		if id, err := ParseID(key); err == nil {
			ids = append(ids, id)
		} else {
			ids = append(ids, OpaqueID(key))
		}
	}
	return ids
}

// AssetIDFromBlob returns the id of the asset holding blob.
func (r *Registry) AssetIDFromBlob(blob *platform.Blob) (ID, bool) {
	return r.find(func(b *Bundle) bool {
		return b.present.Has(KindBlob) && b.blob == blob
	})
}

// AssetIDFromBlobURL returns the id of the asset holding the object URL.
func (r *Registry) AssetIDFromBlobURL(url string) (ID, bool) {
	return r.find(func(b *Bundle) bool {
		return b.present.Has(KindBlobURL) && b.blobURL == url
	})
}

func (r *Registry) find(match func(*Bundle) bool) (ID, bool) {
	if r == nil {
		return ID{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, b := range r.assets {
		if match(b) {
			id, err := ParseID(key)
			if err != nil {
				return OpaqueID(key), true
			}
			return id, true
		}
	}
	return ID{}, false
}

// AssetAsBuffer returns the byte content of id.
//
// A buffer derived from an image is encoded in the bundle's MIME type when
// the codec has an encoder for it. Other image types (image/webp, for
// example) produce PNG bytes while the bundle keeps its declared MIME.
func (r *Registry) AssetAsBuffer(ctx context.Context, id ID) ([]byte, error) {
	b, err := r.ensure(ctx, id, KindBuffer)
	if err != nil {
		return nil, err
	}
	data, _ := b.Buffer()
	return data, nil
}

// AssetAsImage returns the decoded image of id. The image is shared and
// must not be modified.
func (r *Registry) AssetAsImage(ctx context.Context, id ID) (image.Image, error) {
	b, err := r.ensure(ctx, id, KindImage)
	if err != nil {
		return nil, err
	}
	return b.image, nil
}

// AssetAsBlobURL returns an object URL for id. The URL stays resolvable for
// the lifetime of the codec.
func (r *Registry) AssetAsBlobURL(ctx context.Context, id ID) (string, error) {
	b, err := r.ensure(ctx, id, KindBlobURL)
	if err != nil {
		return "", err
	}
	return b.blobURL, nil
}

// AssetAsData64URL returns id as a base64 data URL.
func (r *Registry) AssetAsData64URL(ctx context.Context, id ID) (string, error) {
	b, err := r.ensure(ctx, id, KindData64URL)
	if err != nil {
		return "", err
	}
	return b.data64URL, nil
}

// AssetAsBlob returns id as a blob.
func (r *Registry) AssetAsBlob(ctx context.Context, id ID) (*platform.Blob, error) {
	b, err := r.ensure(ctx, id, KindBlob)
	if err != nil {
		return nil, err
	}
	return b.blob, nil
}

// AssetAs returns a snapshot of id with representation k populated.
func (r *Registry) AssetAs(ctx context.Context, id ID, k Kind) (*Bundle, error) {
	return r.ensure(ctx, id, k)
}

// ensure converts a copy of the live bundle and commits the new slots only
// on success.
func (r *Registry) ensure(ctx context.Context, id ID, k Kind) (*Bundle, error) {
	live, err := r.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	work := live.clone()
	r.mu.RUnlock()
	if work.present.Has(k) {
		r.log().Debug("representation cached", "id", id, "kind", k)
		return work, nil
	}

	r.log().Debug("representation missing", "id", id, "kind", k, "have", work.present)
	if err := r.conv.Ensure(ctx, work, k); err != nil {
		r.revokeUnused(work, live)
		return nil, fmt.Errorf("asset %s: %w", id, err)
	}

	r.mu.Lock()
	live.merge(work)
	snap := live.clone()
	r.mu.Unlock()
	r.revokeUnused(work, snap)
	return snap, nil
}

// revokeUnused releases an object URL minted during a conversion that was
// not committed.
func (r *Registry) revokeUnused(work, kept *Bundle) {
	if !work.present.Has(KindBlobURL) {
		return
	}
	r.mu.RLock()
	owned := kept.present.Has(KindBlobURL) && kept.blobURL == work.blobURL
	r.mu.RUnlock()
	if !owned {
		r.codec.RevokeObjectURL(work.blobURL)
	}
}
