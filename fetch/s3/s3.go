// Package s3 serves s3://<bucket>/<key> URLs from Amazon S3 or an
// S3-compatible store such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/meigma/assets/fetch"
)

// Scheme is the URL scheme served by Fetcher.
const Scheme = "s3"

var (
	// ErrInvalidURL is returned when a URL is not s3://<bucket>/<key>.
	ErrInvalidURL = errors.New("s3: invalid URL")

	// ErrNotFound is returned when the bucket or key does not exist.
	ErrNotFound = errors.New("s3: object not found")
)

// API is the subset of the S3 client used by Fetcher.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// Config selects the AWS region and an optional custom endpoint.
type Config struct {
	Region   string
	Endpoint string // for MinIO, LocalStack and similar
}

// Fetcher reads objects from S3.
type Fetcher struct {
	client   API
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxBytes bounds object size. Zero or negative disables the limit.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher using the default AWS credential chain.
func New(ctx context.Context, cfg Config, opts ...Option) (*Fetcher, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts...), nil
}

// NewWithClient creates a Fetcher around an existing client.
func NewWithClient(client API, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   client,
		maxBytes: fetch.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
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

// ParseURL splits s3://<bucket>/<key>.
func ParseURL(rawURL string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(rawURL, Scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURL, rawURL)
	}
	return bucket, key, nil
}

// Fetch downloads the object behind rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Response, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(rawURL, err)
	}
	defer func() { _ = out.Body.Close() }()

	if f.maxBytes > 0 && aws.ToInt64(out.ContentLength) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", fetch.ErrTooLarge, rawURL, aws.ToInt64(out.ContentLength))
	}
	body := io.Reader(out.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(out.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", rawURL, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", fetch.ErrTooLarge, rawURL, f.maxBytes)
	}

	header := make(http.Header)
	if ct := aws.ToString(out.ContentType); ct != "" {
		header.Set("Content-Type", ct)
	}
	if etag := aws.ToString(out.ETag); etag != "" {
		header.Set("ETag", etag)
	}
	f.log().Debug("fetched object", "bucket", bucket, "key", key, "size", len(data))
	return &fetch.Response{URL: rawURL, Header: header, Body: data}, nil
}

func mapError(rawURL string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: %s: %v", ErrNotFound, rawURL, err)
		}
	}
	return fmt.Errorf("s3: get %s: %w", rawURL, err)
}
