// Package platform abstracts the host facilities the asset converter relies
// on: reading blob contents, minting dereferenceable object URLs for blobs,
// and decoding or encoding bitmaps.
//
// [Headless] implements [Codec] in pure Go with the standard image codecs and
// an in-memory object-URL table, so conversions run identically in servers,
// CLIs and tests.
package platform
