package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/meigma/assets/pack"
)

func (a *app) packCreate(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	e, err := a.setup(ctx, cmd)
	if err != nil {
		return err
	}
	dir := cmd.Args().First()

	name := cmd.String("name")
	if name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
	}

	var opts []pack.BuilderOption
	switch c := cmd.String("compression"); c {
	case "zstd":
		opts = append(opts, pack.WithCompression(pack.CompressionZstd))
	case "none":
		opts = append(opts, pack.WithCompression(pack.CompressionNone))
	default:
		return fmt.Errorf("unknown compression %q", c)
	}

	b, err := buildFromDir(os.DirFS(dir), name, opts...)
	if err != nil {
		return err
	}
	archive, err := b.Bytes()
	if err != nil {
		return err
	}
	out := cmd.String("out")
	if err := os.WriteFile(out, archive, 0o644); err != nil { //nolint:gosec // archives are not secret
		return fmt.Errorf("write %s: %w", out, err)
	}
	e.logger.Info("pack created", "name", name, "entries", b.Len(), "size", len(archive), "out", out)
	return nil
}

// buildFromDir adds every regular file in fsys, keyed by its slash path.
func buildFromDir(fsys fs.FS, name string, opts ...pack.BuilderOption) (*pack.Builder, error) {
	b := pack.NewBuilder(name, opts...)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		return b.Add(p, data, detectMIME(p, data), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return b, nil
}

func detectMIME(name string, data []byte) string {
	if typ := mime.TypeByExtension(path.Ext(name)); typ != "" {
		return typ
	}
	return http.DetectContentType(data)
}

type entryView struct {
	ID       string         `json:"id"`
	MIME     string         `json:"mime"`
	Length   int64          `json:"length"`
	Offset   *int64         `json:"offset,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (a *app) packInspect(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	e, err := a.setup(ctx, cmd)
	if err != nil {
		return err
	}
	u, err := toURL(cmd.Args().First())
	if err != nil {
		return err
	}
	p, err := e.registry.OpenPackageFromURL(ctx, u)
	if err != nil {
		return err
	}

	views := make([]entryView, 0, p.Len())
	for id, rec := range p.Records() {
		views = append(views, entryView{ID: id, MIME: rec.MIME, Length: rec.Length, Offset: rec.Offset, Metadata: rec.Metadata})
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"name": p.Name(), "size": p.Size(), "entries": views})
	}

	fmt.Fprintf(a.out, "pack %s (%d bytes, %d entries)\n", p.Name(), p.Size(), p.Len())
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMIME\tLENGTH")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", v.ID, v.MIME, v.Length)
	}
	return tw.Flush()
}

func (a *app) packPush(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	e, err := a.setup(ctx, cmd)
	if err != nil {
		return err
	}
	archive, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	annotations, err := parseAnnotations(cmd.StringSlice("annotation"))
	if err != nil {
		return err
	}

	desc, err := e.oci.Push(ctx, cmd.Args().Get(1), archive, annotations)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, desc.Digest)
	return nil
}

func parseAnnotations(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid annotation %q: want key=value", pair)
		}
		out[k] = v
	}
	return out, nil
}
