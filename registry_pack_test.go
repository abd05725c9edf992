package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assets/internal/testutil"
	"github.com/meigma/assets/pack"
	"github.com/meigma/assets/platform"
)

func buildPack(t *testing.T, name string, entries map[string]string) []byte {
	t.Helper()
	b := pack.NewBuilder(name)
	for id, content := range entries {
		require.NoError(t, b.Add(id, []byte(content), "text/plain", map[string]any{"entry": id}))
	}
	archive, err := b.Bytes()
	require.NoError(t, err)
	return archive
}

func TestRegistry_PackEntryMaterializesLazily(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	p, err := r.ImportPackageFromBuffer(buildPack(t, "ui", map[string]string{"hello.txt": "hello"}))
	require.NoError(t, err)
	assert.Equal(t, "ui", p.Name())
	assert.True(t, r.PackageExists("ui"))

	id := PackEntryID("ui", "hello.txt")
	assert.True(t, r.AssetExists(id))
	assert.Empty(t, r.AssetIDs())

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", b.MIME())
	assert.Equal(t, "pack:ui", b.Source())
	assert.Equal(t, map[string]any{"entry": "hello.txt"}, b.Metadata())
	assert.Equal(t, []ID{id}, r.AssetIDs())

	s, err := r.AssetAsData64URL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "data:text/plain;base64,aGVsbG8=", s)

	b, err = r.Asset(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Has(KindData64URL))
}

func TestRegistry_PackErrors(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.ImportPackageFromBuffer(buildPack(t, "ui", map[string]string{"a": "a"}))
	require.NoError(t, err)

	_, err = r.AssetAsBuffer(ctx, PackEntryID("missing", "a"))
	require.ErrorIs(t, err, ErrPackageNotExist)
	assert.Contains(t, err.Error(), "missing")

	_, err = r.AssetAsBuffer(ctx, PackEntryID("ui", "b"))
	require.ErrorIs(t, err, ErrAssetNotExist)
	assert.False(t, r.AssetExists(PackEntryID("ui", "b")))

	_, err = r.ImportPackageFromBuffer([]byte("junk"))
	require.ErrorIs(t, err, pack.ErrInvalidArchive)

	_, err = r.AddAssetFromPackage(nil, "a")
	require.Error(t, err)
}

func TestRegistry_RemovePackageCascades(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.ImportPackageFromBuffer(buildPack(t, "a", map[string]string{"x": "ax", "y": "ay"}))
	require.NoError(t, err)
	_, err = r.ImportPackageFromBuffer(buildPack(t, "b", map[string]string{"x": "bx"}))
	require.NoError(t, err)
	loose := r.AddAssetFromBuffer([]byte("loose"))

	for _, id := range []ID{PackEntryID("a", "x"), PackEntryID("a", "y"), PackEntryID("b", "x")} {
		_, err := r.AssetAsBuffer(ctx, id)
		require.NoError(t, err)
	}

	r.RemovePackage("a")
	assert.False(t, r.PackageExists("a"))
	assert.False(t, r.AssetExists(PackEntryID("a", "x")))
	assert.False(t, r.AssetExists(PackEntryID("a", "y")))
	assert.True(t, r.AssetExists(PackEntryID("b", "x")))
	assert.True(t, r.AssetExists(loose))
	assert.Equal(t, []string{"b"}, r.PackageNames())

	_, err = r.AssetAsBuffer(ctx, PackEntryID("a", "x"))
	require.ErrorIs(t, err, ErrPackageNotExist)

	r.RemovePackage("never-imported")
	assert.True(t, r.PackageExists("b"))
}

func TestRegistry_ImportPackageReplaceKeepsMaterialized(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.ImportPackageFromBuffer(buildPack(t, "ui", map[string]string{"a": "old", "b": "old b"}))
	require.NoError(t, err)
	_, err = r.AssetAsBuffer(ctx, PackEntryID("ui", "a"))
	require.NoError(t, err)

	_, err = r.ImportPackageFromBuffer(buildPack(t, "ui", map[string]string{"a": "new", "b": "new b"}))
	require.NoError(t, err)

	got, err := r.AssetAsBuffer(ctx, PackEntryID("ui", "a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)
	got, err = r.AssetAsBuffer(ctx, PackEntryID("ui", "b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new b"), got)
}

func TestRegistry_ImportPackageSources(t *testing.T) {
	t.Parallel()

	r, _, fetcher := newTestRegistry(t)
	ctx := context.Background()

	fetcher.Set("https://cdn/remote.pack", "", buildPack(t, "remote", map[string]string{"a": "r"}))
	p, err := r.ImportPackageFromURL(ctx, "https://cdn/remote.pack")
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Name())

	_, err = r.ImportPackageFromURL(ctx, "https://cdn/missing.pack")
	require.ErrorIs(t, err, ErrFetchFailed)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "https://cdn/missing.pack", fetchErr.URL)

	builder := pack.NewBuilder("inline")
	require.NoError(t, builder.Add("a", []byte("i"), "text/plain", nil))
	s, err := builder.DataURL()
	require.NoError(t, err)
	_, err = r.ImportPackageFromData64URL(s)
	require.NoError(t, err)

	blob := platform.NewFile("local.pack", buildPack(t, "local", map[string]string{"a": "l"}), pack.MediaType)
	_, err = r.ImportPackageFromBlob(ctx, blob)
	require.NoError(t, err)

	synth, err := builder.Pack()
	require.NoError(t, err)
	require.NoError(t, r.ImportPackage(synth))
	rec, err := synth.Record("a")
	require.NoError(t, err)
	assert.Nil(t, rec.Offset)

	assert.Equal(t, []string{"inline", "local", "remote"}, r.PackageNames())
	for _, name := range r.PackageNames() {
		_, err := r.AssetAsBuffer(ctx, PackEntryID(name, "a"))
		require.NoError(t, err, name)
	}
}

func TestRegistry_AddAssetFromPackage(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	p, err := pack.Open(buildPack(t, "detached", map[string]string{"a": "content"}))
	require.NoError(t, err)

	id, err := r.AddAssetFromPackage(p, "a")
	require.NoError(t, err)
	assert.Equal(t, "pack:detached/a", id.String())
	assert.False(t, r.PackageExists("detached"))

	got, err := r.AssetAsBuffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)

	_, err = r.AddAssetFromPackage(p, "zzz")
	require.ErrorIs(t, err, ErrAssetNotExist)
}

func TestRegistry_RoundTrips(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	original := testutil.PNG(t, 8, 8)
	src := r.AddAssetFromBuffer(original, WithMIME("image/png"))

	t.Run("data64url", func(t *testing.T) {
		s, err := r.AssetAsData64URL(ctx, src)
		require.NoError(t, err)
		id, err := r.AddAssetFromData64URL(s)
		require.NoError(t, err)
		got, err := r.AssetAsBuffer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, original, got)
	})

	t.Run("blob", func(t *testing.T) {
		blob, err := r.AssetAsBlob(ctx, src)
		require.NoError(t, err)
		id, err := r.AddAssetFromBlob(blob)
		require.NoError(t, err)
		got, err := r.AssetAsBuffer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, original, got)
	})

	t.Run("image", func(t *testing.T) {
		img, err := r.AssetAsImage(ctx, src)
		require.NoError(t, err)
		id, err := r.AddAssetFromImage(img)
		require.NoError(t, err)
		encoded, err := r.AssetAsBuffer(ctx, id)
		require.NoError(t, err)

		again := r.AddAssetFromBuffer(encoded, WithMIME("image/png"))
		decoded, err := r.AssetAsImage(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, img.Bounds(), decoded.Bounds())
		r1, g1, b1, a1 := img.At(3, 3).RGBA()
		r2, g2, b2, a2 := decoded.At(3, 3).RGBA()
		assert.Equal(t, [4]uint32{r1, g1, b1, a1}, [4]uint32{r2, g2, b2, a2})
	})
}

func TestRegistry_BlobURLRoundTrip(t *testing.T) {
	t.Parallel()

	r := New()
	ctx := context.Background()
	original := []byte("object url body")
	src := r.AddAssetFromBuffer(original, WithMIME("text/plain"))

	url, err := r.AssetAsBlobURL(ctx, src)
	require.NoError(t, err)

	id, err := r.AddAssetFromURL(ctx, url)
	require.NoError(t, err)
	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", b.MIME())
	got, _ := b.Buffer()
	assert.Equal(t, original, got)
}
