package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/meigma/assets"
)

func (a *app) get(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	kind, err := assets.ParseKind(cmd.String("as"))
	if err != nil {
		return err
	}
	e, err := a.setup(ctx, cmd)
	if err != nil {
		return err
	}

	arg := cmd.Args().First()
	var id assets.ID
	if c := cmd.String("catalog"); c != "" {
		id, err = e.loadFromCatalog(ctx, c, arg)
	} else {
		var u string
		if u, err = toURL(arg); err == nil {
			id, err = e.registry.AddAssetFromURL(ctx, u)
		}
	}
	if err != nil {
		return err
	}

	b, err := e.registry.AssetAs(ctx, id, kind)
	if err != nil {
		return err
	}
	return a.writeAsset(b, kind, cmd.String("out"))
}

func (e *env) loadFromCatalog(ctx context.Context, catalogArg, idArg string) (assets.ID, error) {
	r, err := e.resolver()
	if err != nil {
		return assets.ID{}, err
	}
	u, err := toURL(catalogArg)
	if err != nil {
		return assets.ID{}, err
	}
	if _, err := r.ImportCatalogFromURL(ctx, u); err != nil {
		return assets.ID{}, err
	}
	id, err := assets.ParseID(idArg)
	if err != nil {
		return assets.ID{}, err
	}
	if err := r.LoadAsset(ctx, id); err != nil {
		return assets.ID{}, err
	}
	return id, nil
}

func (a *app) writeAsset(b *assets.Bundle, kind assets.Kind, out string) error {
	var err error
	switch kind {
	case assets.KindBuffer:
		data, _ := b.Buffer()
		if out != "" {
			return os.WriteFile(out, data, 0o644) //nolint:gosec // assets are not secret
		}
		_, err = a.out.Write(data)
	case assets.KindImage:
		img, _ := b.Image()
		bounds := img.Bounds()
		_, err = fmt.Fprintf(a.out, "%s %dx%d\n", b.MIME(), bounds.Dx(), bounds.Dy())
	case assets.KindBlob:
		blob, _ := b.Blob()
		_, err = fmt.Fprintf(a.out, "%s %d bytes\n", blob.Type(), blob.Size())
	case assets.KindBlobURL:
		u, _ := b.BlobURL()
		_, err = fmt.Fprintln(a.out, u)
	case assets.KindData64URL:
		s, _ := b.Data64URL()
		_, err = fmt.Fprintln(a.out, s)
	default:
		err = fmt.Errorf("%w: %s", assets.ErrNotImplemented, kind)
	}
	return err
}
