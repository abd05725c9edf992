// Package oci stores asset packs as OCI artifacts.
//
// A pack is published as an image manifest with an empty config and a single
// layer of media type [pack.MediaType]. [Fetcher] serves
// oci://<registry>/<repository>:<tag> (or @<digest>) URLs by resolving the
// manifest and returning the verified pack layer.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/assets/cache"
	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/pack"
)

// Scheme is the URL scheme served by Fetcher.
const Scheme = "oci"

// ArtifactType marks manifests that carry an asset pack.
const ArtifactType = "application/vnd.meigma.assets.pack.artifact.v1"

// DefaultMaxLayerSize bounds pack layers read by Fetcher.
const DefaultMaxLayerSize int64 = 512 << 20 // 512 MB

const maxManifestSize = 4 << 20

// Fetcher pulls and pushes pack artifacts.
type Fetcher struct {
	plainHTTP  bool
	userAgent  string
	anonymous  bool
	credStore  credentials.Store
	maxBytes   int64
	cache      cache.Cache
	cacheLimit int64
	logger     *slog.Logger
	authClient *auth.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
func WithPlainHTTP(enabled bool) Option {
	return func(f *Fetcher) {
		f.plainHTTP = enabled
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithAnonymous disables credential lookups.
func WithAnonymous() Option {
	return func(f *Fetcher) {
		f.anonymous = true
	}
}

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) Option {
	return func(f *Fetcher) {
		f.credStore = store
	}
}

// WithStaticCredentials sets username/password credentials for a registry.
func WithStaticCredentials(host, username, password string) Option {
	return WithCredentialStore(StaticCredentials(host, username, password))
}

// WithDockerConfig reads credentials from ~/.docker/config.json. A missing
// or unreadable config leaves the fetcher without credentials.
func WithDockerConfig() Option {
	return func(f *Fetcher) {
		store, err := DockerCredentialStore()
		if err != nil {
			return
		}
		f.credStore = store
	}
}

// WithMaxLayerSize bounds the pack layer size. Zero or negative disables
// the limit.
func WithMaxLayerSize(limit int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = limit
	}
}

// WithLayerCache keeps pulled pack layers in c, keyed by layer digest.
// Cached layers are re-verified on every hit.
func WithLayerCache(c cache.Cache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithLayerCacheLimit prunes the layer cache down to maxBytes after each
// write. It applies only to caches implementing cache.Pruner. Zero or
// negative disables pruning.
func WithLayerCacheLimit(maxBytes int64) Option {
	return func(f *Fetcher) {
		f.cacheLimit = maxBytes
	}
}

// WithLogger sets the logger for registry events.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent: "meigma-assets/1.0",
		maxBytes:  DefaultMaxLayerSize,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if f.anonymous || f.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return f.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{f.userAgent},
		},
	}
	return f
}

func (f *Fetcher) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

var _ fetch.Fetcher = (*Fetcher)(nil)

// ParseURL parses oci://<registry>/<repository>(:<tag>|@<digest>).
func ParseURL(rawURL string) (registry.Reference, error) {
	rest, ok := strings.CutPrefix(rawURL, Scheme+"://")
	if !ok {
		return registry.Reference{}, fmt.Errorf("%w: %q: want %s://", ErrInvalidReference, rawURL, Scheme)
	}
	ref, err := registry.ParseReference(rest)
	if err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if ref.Reference == "" {
		return registry.Reference{}, fmt.Errorf("%w: %q has no tag or digest", ErrInvalidReference, rawURL)
	}
	return ref, nil
}

func (f *Fetcher) repository(ref registry.Reference) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = f.plainHTTP
	repo.Client = f.authClient
	return repo, nil
}

// Fetch resolves the manifest behind rawURL and returns the pack layer.
// The response Content-Type is the layer media type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Response, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	repo, err := f.repository(ref)
	if err != nil {
		return nil, err
	}

	manifestDesc, rc, err := repo.FetchReference(ctx, ref.Reference)
	if err != nil {
		return nil, mapError(err)
	}
	manifest, err := decodeManifest(rc, manifestDesc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	layer, err := packLayer(manifest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	if f.maxBytes > 0 && layer.Size > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, layer.Digest, layer.Size)
	}

	data, err := f.layer(ctx, repo, layer)
	if err != nil {
		return nil, err
	}

	f.log().Debug("pulled pack", "ref", ref.String(), "digest", layer.Digest, "size", len(data))
	header := make(http.Header)
	header.Set("Content-Type", layer.MediaType)
	header.Set("Docker-Content-Digest", layer.Digest.String())
	return &fetch.Response{URL: rawURL, Header: header, Body: data}, nil
}

func decodeManifest(r io.Reader, desc ocispec.Descriptor) (ocispec.Manifest, error) {
	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Manifest{}, fmt.Errorf("%w: unsupported media type %s", ErrManifestInvalid, desc.MediaType)
	}
	limit := desc.Size
	if limit <= 0 || limit > maxManifestSize {
		limit = maxManifestSize
	}
	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(r, limit)).Decode(&manifest); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	return manifest, nil
}

func packLayer(manifest ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, layer := range manifest.Layers {
		if layer.MediaType == pack.MediaType {
			return layer, nil
		}
	}
	return ocispec.Descriptor{}, ErrNoPackLayer
}

// layer returns the layer content from the cache or the registry.
func (f *Fetcher) layer(ctx context.Context, repo *remote.Repository, layer ocispec.Descriptor) ([]byte, error) {
	if f.cache != nil {
		if data, ok := cache.Verified(f.cache, layer.Digest); ok {
			f.log().Debug("layer cache hit", "digest", layer.Digest)
			return data, nil
		}
	}
	data, err := f.fetchLayer(ctx, repo, layer)
	if err != nil {
		return nil, err
	}
	f.storeLayer(layer.Digest, data)
	return data, nil
}

// storeLayer writes data to the layer cache and enforces the size limit.
// Cache failures are logged and never fail the fetch.
func (f *Fetcher) storeLayer(d digest.Digest, data []byte) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Put(d, data); err != nil {
		f.log().Warn("layer cache write failed", "digest", d, "error", err)
		return
	}
	if f.cacheLimit <= 0 {
		return
	}
	p, ok := f.cache.(cache.Pruner)
	if !ok {
		return
	}
	freed, err := p.Prune(f.cacheLimit)
	if err != nil {
		f.log().Warn("layer cache prune failed", "limit", f.cacheLimit, "error", err)
		return
	}
	if freed > 0 {
		f.log().Debug("layer cache pruned", "freed", freed, "limit", f.cacheLimit)
	}
}

func (f *Fetcher) fetchLayer(ctx context.Context, repo *remote.Repository, layer ocispec.Descriptor) ([]byte, error) {
	if err := layer.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid layer digest %q: %v", ErrManifestInvalid, layer.Digest, err)
	}
	rc, err := repo.Fetch(ctx, layer)
	if err != nil {
		return nil, mapError(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, layer.Size+1))
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", layer.Digest, err)
	}
	if int64(len(data)) != layer.Size {
		return nil, fmt.Errorf("%w: layer %s is %d bytes, want %d", ErrDigestMismatch, layer.Digest, len(data), layer.Size)
	}
	if got := layer.Digest.Algorithm().FromBytes(data); got != layer.Digest {
		return nil, fmt.Errorf("%w: layer %s hashed to %s", ErrDigestMismatch, layer.Digest, got)
	}
	return data, nil
}

// Push publishes a pack archive under rawURL, which must carry a tag.
// It returns the manifest descriptor.
func (f *Fetcher) Push(ctx context.Context, rawURL string, archive []byte, annotations map[string]string) (ocispec.Descriptor, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	if ref.ValidateReferenceAsTag() != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: push requires a tag, got %q", ErrInvalidReference, ref.Reference)
	}
	p, err := pack.Open(archive)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("oci: push: %w", err)
	}
	repo, err := f.repository(ref)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	layer := ocispec.Descriptor{
		MediaType: pack.MediaType,
		Digest:    digest.FromBytes(archive),
		Size:      int64(len(archive)),
		Annotations: map[string]string{
			ocispec.AnnotationTitle: p.Name() + ".pack",
		},
	}
	if err := pushIfMissing(ctx, repo, layer, archive); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := pushIfMissing(ctx, repo, ocispec.DescriptorEmptyJSON, ocispec.DescriptorEmptyJSON.Data); err != nil {
		return ocispec.Descriptor{}, err
	}

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       ocispec.DescriptorEmptyJSON,
		Layers:       []ocispec.Descriptor{layer},
		Annotations:  annotations,
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("marshal manifest: %w", err)
	}
	desc := ocispec.Descriptor{
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Digest:       digest.FromBytes(manifestJSON),
		Size:         int64(len(manifestJSON)),
	}
	if err := repo.PushReference(ctx, desc, bytes.NewReader(manifestJSON), ref.Reference); err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}

	f.log().Debug("pushed pack", "ref", ref.String(), "pack", p.Name(), "digest", desc.Digest)
	return desc, nil
}

func pushIfMissing(ctx context.Context, repo *remote.Repository, desc ocispec.Descriptor, data []byte) error {
	exists, err := repo.Exists(ctx, desc)
	if err != nil {
		return mapError(err)
	}
	if exists {
		return nil
	}
	if err := repo.Push(ctx, desc, bytes.NewReader(data)); err != nil {
		return mapError(err)
	}
	return nil
}
