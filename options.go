package assets

import (
	"log/slog"
	"maps"

	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/pack"
	"github.com/meigma/assets/platform"
)

// Option configures a Registry.
type Option func(*Registry)

// IDGenerator returns a fresh collision-resistant identifier on each call.
type IDGenerator func() string

// WithCodec sets the platform codec. The default is a headless codec.
func WithCodec(codec platform.Codec) Option {
	return func(r *Registry) {
		r.codec = codec
	}
}

// WithFetcher sets the fetcher used for URL ingestion, object URL reads and
// pack imports. The default serves http, https, data, file and blob URLs.
func WithFetcher(f fetch.Fetcher) Option {
	return func(r *Registry) {
		r.fetcher = f
	}
}

// WithIDGenerator sets the generator for asset ids. The default issues
// random UUIDs.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithLogger sets the logger for registry events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithPackOptions sets the options used when opening imported packs.
func WithPackOptions(opts ...pack.Option) Option {
	return func(r *Registry) {
		r.packOpts = append(r.packOpts, opts...)
	}
}

// AssetOption configures an added asset.
type AssetOption func(*assetOptions)

type assetOptions struct {
	id       ID
	mime     string
	metadata map[string]any
}

// WithID registers the asset under id instead of a generated or derived one.
func WithID(id ID) AssetOption {
	return func(o *assetOptions) {
		o.id = id
	}
}

// WithMIME sets the MIME type, overriding any inferred one.
func WithMIME(mime string) AssetOption {
	return func(o *assetOptions) {
		o.mime = mime
	}
}

// WithMetadata attaches opaque metadata to the asset.
func WithMetadata(metadata map[string]any) AssetOption {
	return func(o *assetOptions) {
		o.metadata = maps.Clone(metadata)
	}
}

func applyAssetOptions(opts []AssetOption) assetOptions {
	var o assetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
