package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type assetView struct {
	ID       string         `json:"id"`
	MIME     string         `json:"mime"`
	Length   int64          `json:"length"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (a *app) catalogInspect(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	e, err := a.setup(ctx, cmd)
	if err != nil {
		return err
	}
	r, err := e.resolver()
	if err != nil {
		return err
	}
	u, err := toURL(cmd.Args().First())
	if err != nil {
		return err
	}
	name, err := r.ImportCatalogFromURL(ctx, u)
	if err != nil {
		return err
	}

	ids := r.AssetIDs()
	views := make([]assetView, 0, len(ids))
	for _, id := range ids {
		rec, err := r.AssetRecord(id)
		if err != nil {
			return err
		}
		views = append(views, assetView{ID: id.String(), MIME: rec.MIME, Length: rec.Length, Metadata: rec.Metadata})
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"name": name, "packages": r.PackageNames(), "assets": views})
	}

	fmt.Fprintf(a.out, "catalog %q: %d packages, %d assets\n", name, len(r.PackageNames()), len(views))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMIME\tLENGTH")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", v.ID, v.MIME, v.Length)
	}
	return tw.Flush()
}
