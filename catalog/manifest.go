package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/meigma/assets"
)

// ErrInvalidManifest is returned when a manifest cannot be parsed or
// declares something the resolver cannot serve.
var ErrInvalidManifest = errors.New("catalog: invalid manifest")

// Manifest declares packs and standalone assets without their content.
type Manifest struct {
	Info     *Info                  `json:"info,omitempty" yaml:"info,omitempty"`
	Packages map[string]PackageDecl `json:"packages,omitempty" yaml:"packages,omitempty"`
	Assets   map[string]AssetDecl   `json:"assets,omitempty" yaml:"assets,omitempty"`
}

// Info carries descriptive manifest fields.
type Info struct {
	Name string `json:"name" yaml:"name"`
}

// PackageDecl declares a pack and the entries it is expected to hold.
type PackageDecl struct {
	URL    string               `json:"url" yaml:"url"`
	Assets map[string]EntryDecl `json:"assets,omitempty" yaml:"assets,omitempty"`
}

// EntryDecl declares one pack entry.
type EntryDecl struct {
	MIME     string         `json:"mime" yaml:"mime"`
	Length   int64          `json:"length" yaml:"length"`
	Offset   *int64         `json:"offset,omitempty" yaml:"offset,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Record returns the declaration as an asset record.
func (e EntryDecl) Record() assets.Record {
	rec := assets.Record{
		MIME:     e.MIME,
		Length:   e.Length,
		Metadata: maps.Clone(e.Metadata),
	}
	if e.Offset != nil {
		off := *e.Offset
		rec.Offset = &off
	}
	return rec
}

// AssetDecl declares a standalone asset fetched from its own URL.
type AssetDecl struct {
	URL      string         `json:"url" yaml:"url"`
	MIME     string         `json:"mime" yaml:"mime"`
	Length   int64          `json:"length" yaml:"length"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Record returns the declaration as an asset record.
func (a AssetDecl) Record() assets.Record {
	return assets.Record{
		MIME:     a.MIME,
		Length:   a.Length,
		Metadata: maps.Clone(a.Metadata),
	}
}

// Name returns the declared catalog name, or "".
func (m *Manifest) Name() string {
	if m == nil || m.Info == nil {
		return ""
	}
	return m.Info.Name
}

// Validate checks that every declaration can be resolved.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrInvalidManifest)
	}
	for name, p := range m.Packages {
		if name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("%w: invalid pack name %q", ErrInvalidManifest, name)
		}
		if p.URL == "" {
			return fmt.Errorf("%w: pack %q has no url", ErrInvalidManifest, name)
		}
		for entry := range p.Assets {
			if entry == "" {
				return fmt.Errorf("%w: pack %q declares an empty entry id", ErrInvalidManifest, name)
			}
		}
	}
	for id, a := range m.Assets {
		parsed, err := assets.ParseID(id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		if parsed.Kind() == assets.IDPack {
			return fmt.Errorf("%w: standalone asset %q uses the pack: prefix", ErrInvalidManifest, id)
		}
		if a.URL == "" {
			return fmt.Errorf("%w: asset %q has no url", ErrInvalidManifest, id)
		}
	}
	return nil
}

// Parse decodes a manifest. Input starting with '{' is read as JSON with
// optional comments and trailing commas; anything else as YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(jsonc.ToJSON(trimmed), &m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	} else if err := yaml.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReadFile reads and parses a manifest file.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
