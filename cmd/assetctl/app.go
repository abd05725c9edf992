package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/meigma/assets"
	"github.com/meigma/assets/cache/disk"
	"github.com/meigma/assets/catalog"
	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/fetch/oci"
	"github.com/meigma/assets/fetch/s3"
	"github.com/meigma/assets/internal/config"
	"github.com/meigma/assets/platform"
)

type app struct {
	out io.Writer
}

// env holds what every command needs, built from the loaded config.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	oci      *oci.Fetcher
	registry *assets.Registry
}

func (a *app) setup(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg := config.NewDefaultConfig()
	if err := config.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	codec := platform.NewHeadless()
	httpOpts := []fetch.HTTPOption{
		fetch.WithUserAgent(cfg.HTTP.UserAgent),
		fetch.WithLogger(logger),
	}
	if cfg.HTTP.MaxBytes > 0 {
		httpOpts = append(httpOpts, fetch.WithMaxBytes(cfg.HTTP.MaxBytes))
	}
	for k, v := range cfg.HTTP.Headers {
		httpOpts = append(httpOpts, fetch.WithHeader(k, v))
	}
	mux := fetch.NewDefault(codec, httpOpts...)

	ociOpts := []oci.Option{
		oci.WithPlainHTTP(cfg.OCI.PlainHTTP),
		oci.WithUserAgent(cfg.HTTP.UserAgent),
		oci.WithLogger(logger),
	}
	switch {
	case cfg.OCI.HasStaticCredentials():
		ociOpts = append(ociOpts, oci.WithStaticCredentials(cfg.OCI.Registry, cfg.OCI.Username, cfg.OCI.Password))
	case cfg.OCI.DockerConfig:
		ociOpts = append(ociOpts, oci.WithDockerConfig())
	default:
		ociOpts = append(ociOpts, oci.WithAnonymous())
	}
	if dir := cfg.OCI.CacheDir; dir != "" {
		layers, err := disk.New(dir)
		if err != nil {
			return nil, fmt.Errorf("open layer cache: %w", err)
		}
		ociOpts = append(ociOpts, oci.WithLayerCache(layers), oci.WithLayerCacheLimit(cfg.OCI.CacheMaxBytes))
	}
	ociFetcher := oci.New(ociOpts...)
	mux.Handle(ociFetcher, oci.Scheme)

	if cfg.S3.Enabled {
		s3Fetcher, err := s3.New(ctx, s3.Config{Region: cfg.S3.Region, Endpoint: cfg.S3.Endpoint}, s3.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		mux.Handle(s3Fetcher, s3.Scheme)
	}

	reg := assets.New(
		assets.WithCodec(codec),
		assets.WithFetcher(mux),
		assets.WithLogger(logger),
	)
	logger.Debug("configured", "schemes", strings.Join(mux.Schemes(), ","))
	return &env{cfg: cfg, logger: logger, oci: ociFetcher, registry: reg}, nil
}

func (e *env) resolver() (*catalog.Resolver, error) {
	opts := []catalog.Option{
		catalog.WithLogger(e.logger),
		catalog.WithLoadConcurrency(e.cfg.Catalog.LoadConcurrency),
	}
	if root := e.cfg.Catalog.RootURL; root != "" {
		opts = append(opts, catalog.WithRootURL(root))
	}
	return catalog.New(e.registry, opts...)
}

// toURL turns a local path into a file URL and leaves URLs untouched.
func toURL(arg string) (string, error) {
	if scheme, _, ok := strings.Cut(arg, ":"); ok && len(scheme) > 1 && !strings.ContainsAny(scheme, `/\`) {
		return arg, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.NArg() != n {
		return fmt.Errorf("%s: expected %d argument(s): %s", cmd.Name, n, cmd.ArgsUsage)
	}
	return nil
}
