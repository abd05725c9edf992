// Package catalog resolves declared assets lazily.
//
// A [Manifest] names packs with their origin URLs and expected entries, and
// standalone assets with their own URLs:
//
//	info:
//	  name: ui
//	packages:
//	  icons:
//	    url: packs/icons.pack
//	    assets:
//	      close.png: {mime: image/png, length: 192}
//	assets:
//	  banner:
//	    url: img/banner.jpg
//	    mime: image/jpeg
//	    length: 40211
//
// A [Resolver] answers record and existence queries from the manifest alone.
// Requesting a representation fetches the pack or URL on first use and
// registers the result in an [assets.Registry].
package catalog
