// Command assetctl builds, inspects and publishes asset packs and resolves
// assets through catalogs.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := newCommand(os.Stdout)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("assetctl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	a := &app{out: out}
	return &cli.Command{
		Name:  "assetctl",
		Usage: "Build, publish and resolve asset packs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "assetctl.yaml",
				Value:       "assetctl.yaml",
				Sources:     cli.EnvVars("ASSETCTL_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "pack",
				Usage: "Work with pack archives",
				Commands: []*cli.Command{
					{
						Name:      "create",
						Usage:     "Pack every file under a directory",
						ArgsUsage: "<dir>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Pack name (defaults to the directory name)"},
							&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file", Required: true},
							&cli.StringFlag{Name: "compression", Usage: "zstd or none", Value: "zstd"},
						},
						Action: a.packCreate,
					},
					{
						Name:      "inspect",
						Usage:     "List the entries of a pack",
						ArgsUsage: "<path-or-url>",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
						},
						Action: a.packInspect,
					},
					{
						Name:      "push",
						Usage:     "Publish a pack to an OCI registry",
						ArgsUsage: "<file> <oci://registry/repo:tag>",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{Name: "annotation", Aliases: []string{"a"}, Usage: "key=value manifest annotation"},
						},
						Action: a.packPush,
					},
				},
			},
			{
				Name:  "catalog",
				Usage: "Work with catalogs",
				Commands: []*cli.Command{
					{
						Name:      "inspect",
						Usage:     "List the assets a catalog declares",
						ArgsUsage: "<path-or-url>",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
						},
						Action: a.catalogInspect,
					},
				},
			},
			{
				Name:  "cache",
				Usage: "Manage the OCI layer cache",
				Commands: []*cli.Command{
					{
						Name:   "size",
						Usage:  "Print the bytes held by the layer cache",
						Action: a.cacheSize,
					},
					{
						Name:  "prune",
						Usage: "Remove the oldest layers until the cache fits a budget",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "max-bytes", Usage: "Byte budget (defaults to oci.cache_max_bytes; 0 empties the cache)"},
						},
						Action: a.cachePrune,
					},
					{
						Name:      "rm",
						Usage:     "Remove cached layers by digest",
						ArgsUsage: "<digest>...",
						Action:    a.cacheRemove,
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Resolve an asset and print or save it",
				ArgsUsage: "<id-or-url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "catalog", Usage: "Catalog to resolve ids against"},
					&cli.StringFlag{Name: "as", Usage: "buffer, image, blobUrl, data64Url or blob", Value: "buffer"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write a buffer to this file instead of stdout"},
				},
				Action: a.get,
			},
		},
	}
}
