package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/urfave/cli/v3"

	"github.com/meigma/assets/cache/disk"
	"github.com/meigma/assets/internal/config"
)

func (a *app) openLayerCache(cmd *cli.Command) (*disk.Cache, *config.Config, error) {
	cfg := config.NewDefaultConfig()
	if err := config.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.OCI.CacheDir == "" {
		return nil, nil, errors.New("oci.cache_dir is not configured")
	}
	c, err := disk.New(cfg.OCI.CacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open layer cache: %w", err)
	}
	return c, cfg, nil
}

func (a *app) cacheSize(_ context.Context, cmd *cli.Command) error {
	c, _, err := a.openLayerCache(cmd)
	if err != nil {
		return err
	}
	size, err := c.Size()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, size)
	return nil
}

func (a *app) cachePrune(_ context.Context, cmd *cli.Command) error {
	c, cfg, err := a.openLayerCache(cmd)
	if err != nil {
		return err
	}
	limit := cfg.OCI.CacheMaxBytes
	if cmd.IsSet("max-bytes") {
		limit = cmd.Int("max-bytes")
	}
	if limit < 0 {
		return fmt.Errorf("max-bytes must not be negative, got %d", limit)
	}
	freed, err := c.Prune(limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "freed %d bytes\n", freed)
	return nil
}

func (a *app) cacheRemove(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("%s: expected at least one digest", cmd.Name)
	}
	c, _, err := a.openLayerCache(cmd)
	if err != nil {
		return err
	}
	for _, arg := range cmd.Args().Slice() {
		d, err := digest.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid digest %q: %w", arg, err)
		}
		if err := c.Delete(d); err != nil {
			return err
		}
	}
	return nil
}
