// Package assets is an in-memory registry for binary assets that can be
// retrieved interchangeably as a byte buffer, a decoded image, an object
// URL, a base64 data URL or a blob.
//
// Representations are produced on first request by a [Converter] and cached
// on the asset for as long as it exists. Nothing is materialized that was not
// asked for.
//
// # Identifiers
//
// Every asset has an [ID]. Two shapes carry meaning:
//   - pack:<name>/<entry> names an entry of an imported pack; the asset is
//     created from the pack on first access.
//   - url:<digest> is derived from the URL an asset was fetched from, so the
//     same URL always maps to the same id.
//
// Any other string is opaque.
//
// # Quick Start
//
//	reg := assets.New()
//	id := reg.AddAssetFromBuffer(pngBytes, assets.WithMIME("image/png"))
//	s, err := reg.AssetAsData64URL(ctx, id)
//	img, err := reg.AssetAsImage(ctx, id)
//
// Import a pack and read one of its entries:
//
//	if _, err := reg.ImportPackageFromURL(ctx, "https://cdn.example.com/ui.pack"); err != nil {
//	    return err
//	}
//	data, err := reg.AssetAsBuffer(ctx, assets.PackEntryID("ui", "logo.png"))
//
// The catalog subpackage declares packs and standalone assets up front and
// defers every fetch until an asset is requested.
package assets
