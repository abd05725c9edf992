package pack

import "log/slog"

// Default limits applied by Open.
const (
	DefaultMaxEntrySize     uint64 = 256 << 20 // 256 MB
	DefaultMaxDecoderMemory uint64 = 512 << 20 // 512 MB
)

// Option configures a Pack.
type Option func(*Pack)

// WithMaxEntrySize limits the stored and decoded size of a single entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(p *Pack) {
		p.maxEntrySize = limit
	}
}

// WithMaxDecoderMemory limits the memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(p *Pack) {
		p.maxDecoderMemory = limit
	}
}

// WithLogger sets the logger for pack operations.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pack) {
		p.logger = logger
	}
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCompression sets the compression used for entries (default: zstd).
func WithCompression(c Compression) BuilderOption {
	return func(b *Builder) {
		b.compression = c
	}
}

// WithSkipCompression adds predicates that keep matching entries uncompressed.
// DefaultSkipCompression(1024) is always applied.
func WithSkipCompression(fns ...SkipCompressionFunc) BuilderOption {
	return func(b *Builder) {
		b.skip = append(b.skip, fns...)
	}
}

// WithEncoderLevel sets the zstd encoder level.
func WithEncoderLevel(level int) BuilderOption {
	return func(b *Builder) {
		b.level = level
	}
}
