package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/internal/dataurl"
	"github.com/meigma/assets/internal/testutil"
	"github.com/meigma/assets/platform"
)

func newTestRegistry(t *testing.T) (*Registry, *testutil.CountingCodec, *testutil.MockFetcher) {
	t.Helper()
	codec := testutil.NewCountingCodec()
	fetcher := testutil.NewMockFetcher()
	var seq atomic.Int64
	r := New(
		WithCodec(codec),
		WithFetcher(fetcher),
		WithIDGenerator(func() string { return fmt.Sprintf("asset-%d", seq.Add(1)) }),
	)
	return r, codec, fetcher
}

func TestRegistry_AddAssetIsEmpty(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	id := r.AddAsset(WithMIME("image/png"))
	assert.Equal(t, "asset-1", id.String())
	assert.True(t, r.AssetExists(id))

	ctx := context.Background()
	for _, k := range AllKinds {
		_, err := r.AssetAs(ctx, id, k)
		require.ErrorIs(t, err, ErrEmptyAsset, k.String())
	}
	_, err := r.AssetAsImage(ctx, id)
	require.ErrorIs(t, err, ErrEmptyAsset)
}

func TestRegistry_AddAssetReplaces(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	id := r.AddAssetFromBuffer([]byte("first"))
	r.AddAssetFromBuffer([]byte("second"), WithID(id))

	got, err := r.AssetAsBuffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	r.AddAsset(WithID(id))
	_, err = r.AssetAsBuffer(context.Background(), id)
	require.ErrorIs(t, err, ErrEmptyAsset)
}

func TestRegistry_Defaults(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	img, err := png.Decode(bytes.NewReader(testutil.PNG(t, 2, 2)))
	require.NoError(t, err)

	bufID := r.AddAssetFromBuffer([]byte("x"), WithMetadata(map[string]any{"k": "v"}))
	imgID, err := r.AddAssetFromImage(img)
	require.NoError(t, err)
	blobID, err := r.AddAssetFromBlob(platform.NewBlob([]byte("b"), "text/csv"))
	require.NoError(t, err)
	fileID, err := r.AddAssetFromBlob(platform.NewFile("notes.txt", []byte("f"), "text/plain"))
	require.NoError(t, err)
	dataID, err := r.AddAssetFromData64URL("data:text/html;base64,PGI+")
	require.NoError(t, err)

	tests := []struct {
		id     ID
		mime   string
		source string
		kind   Kind
	}{
		{bufID, DefaultMIME, SourceBuffer, KindBuffer},
		{imgID, DefaultImageMIME, SourceImage, KindImage},
		{blobID, "text/csv", SourceBlob, KindBlob},
		{fileID, "text/plain", "file:notes.txt", KindBlob},
		{dataID, "text/html", SourceData64URL, KindData64URL},
	}
	for _, tt := range tests {
		b, err := r.Asset(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.mime, b.MIME(), tt.id.String())
		assert.Equal(t, tt.source, b.Source(), tt.id.String())
		assert.Equal(t, KindSet(0).With(tt.kind), b.Kinds(), tt.id.String())
	}

	b, err := r.Asset(ctx, bufID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, b.Metadata())

	_, err = r.AddAssetFromData64URL("not a data url")
	require.Error(t, err)
	_, err = r.AddAssetFromBlob(nil)
	require.Error(t, err)
}

func TestRegistry_CachesRepresentations(t *testing.T) {
	t.Parallel()

	r, codec, _ := newTestRegistry(t)
	ctx := context.Background()
	id := r.AddAssetFromBuffer(testutil.PNG(t, 3, 3), WithMIME("image/png"))

	img, err := r.AssetAsImage(ctx, id)
	require.NoError(t, err)
	calls := codec.Total()
	assert.Positive(t, calls)

	again, err := r.AssetAsImage(ctx, id)
	require.NoError(t, err)
	assert.Same(t, img, again)

	url, err := r.AssetAsBlobURL(ctx, id)
	require.NoError(t, err)
	_, err = r.AssetAsBlob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, calls, codec.Total())

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	for _, k := range []Kind{KindBuffer, KindBlob, KindBlobURL, KindImage} {
		assert.True(t, b.Has(k), k.String())
	}
	got, ok := b.BlobURL()
	require.True(t, ok)
	assert.Equal(t, url, got)
}

func TestRegistry_SnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	id := r.AddAssetFromBuffer([]byte("abc"), WithMetadata(map[string]any{"n": 1}))

	got, err := r.AssetAsBuffer(ctx, id)
	require.NoError(t, err)
	got[0] = 'X'

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	b.FillData64URL("data:text/plain;base64,eA==")
	b.Metadata()["n"] = 2

	again, err := r.AssetAsBuffer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)

	fresh, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.False(t, fresh.Has(KindData64URL))
	assert.Equal(t, map[string]any{"n": 1}, fresh.Metadata())
}

func TestRegistry_BufferFromImageWithoutEncoder(t *testing.T) {
	t.Parallel()

	r := New()
	ctx := context.Background()
	img, err := png.Decode(bytes.NewReader(testutil.PNG(t, 2, 2)))
	require.NoError(t, err)
	id, err := r.AddAssetFromImage(img, WithMIME("image/webp"))
	require.NoError(t, err)

	data, err := r.AssetAsBuffer(ctx, id)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "buffer should hold PNG bytes")

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", b.MIME())
}

func TestRegistry_NotAnImage(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	id := r.AddAssetFromBuffer([]byte("hello"), WithMIME("text/plain"))

	_, err := r.AssetAsImage(context.Background(), id)
	require.ErrorIs(t, err, ErrNotAnImage)
	assert.Contains(t, err.Error(), id.String())
}

func TestRegistry_FailedConversionLeavesBundle(t *testing.T) {
	t.Parallel()

	r, _, fetcher := newTestRegistry(t)
	ctx := context.Background()
	fetcher.Fail("blob:test/broken", errors.New("boom"))

	id := r.AddAsset(WithMIME("image/png"))
	r.mu.Lock()
	r.assets[id.String()].FillBlobURL("blob:test/broken")
	r.mu.Unlock()

	_, err := r.AssetAsData64URL(ctx, id)
	require.ErrorIs(t, err, ErrFetchFailed)

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, KindSet(0).With(KindBlobURL), b.Kinds())
}

func TestRegistry_FailedImageDecodeRevokesObjectURL(t *testing.T) {
	t.Parallel()

	r, codec, _ := newTestRegistry(t)
	ctx := context.Background()
	id := r.AddAssetFromBuffer([]byte("not really a png"), WithMIME("image/png"))

	_, err := r.AssetAsImage(ctx, id)
	require.ErrorIs(t, err, platform.ErrUnsupportedImage)

	b, err := r.Asset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, KindSet(0).With(KindBuffer), b.Kinds())
	assert.Equal(t, 0, codec.Codec.(*platform.Headless).Len())
}

func TestRegistry_AddAssetFromURL(t *testing.T) {
	t.Parallel()

	r, _, fetcher := newTestRegistry(t)
	ctx := context.Background()
	const u = "https://cdn.example.com/logo.png"
	fetcher.Set(u, "image/png", []byte("v1"))

	first, err := r.AddAssetFromURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, URLID(u), first)

	fetcher.Set(u, "image/png", []byte("v2"))
	second, err := r.AddAssetFromURL(ctx, u, WithMIME("image/x-custom"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, fetcher.Calls(u))

	b, err := r.Asset(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "image/x-custom", b.MIME())
	assert.Equal(t, "url:"+u, b.Source())
	data, _ := b.Buffer()
	assert.Equal(t, []byte("v2"), data)

	custom := MustParseID("declared")
	got, err := r.AddAssetFromURL(ctx, u, WithID(custom))
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}

func TestRegistry_AddAssetFromURLFailure(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	const u = "https://cdn.example.com/missing.png"

	_, err := r.AddAssetFromURL(ctx, u)
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.False(t, r.AssetExists(URLID(u)))

	_, err = r.AssetAsBuffer(ctx, URLID(u))
	require.ErrorIs(t, err, ErrAssetNotExist)
}

func TestRegistry_AddAssetFromURLRegistersAfterFetch(t *testing.T) {
	t.Parallel()

	const u = "https://cdn.example.com/slow.txt"
	started := make(chan struct{})
	release := make(chan struct{})
	slow := fetch.Func(func(ctx context.Context, url string) (*fetch.Response, error) {
		close(started)
		<-release
		header := nethttp.Header{}
		header.Set("Content-Type", "text/plain")
		return &fetch.Response{URL: url, Header: header, Body: []byte("late")}, nil
	})
	r := New(WithFetcher(slow))
	ctx := context.Background()
	old := r.AddAssetFromBuffer([]byte("stale"), WithID(URLID(u)))

	done := make(chan error, 1)
	go func() {
		_, err := r.AddAssetFromURL(ctx, u)
		done <- err
	}()
	<-started

	assert.False(t, r.AssetRegistered(old))
	_, ok := r.AssetKinds(old)
	assert.False(t, ok)
	_, err := r.AssetAsBuffer(ctx, old)
	require.ErrorIs(t, err, ErrAssetNotExist)

	close(release)
	require.NoError(t, <-done)

	kinds, ok := r.AssetKinds(old)
	require.True(t, ok)
	assert.True(t, kinds.Has(KindBuffer))
	data, err := r.AssetAsBuffer(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), data)
}

func TestRegistry_RemoveAsset(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	id := r.AddAssetFromBuffer([]byte("x"))
	blob, err := r.AssetAsBlob(ctx, id)
	require.NoError(t, err)

	r.RemoveAsset(id)
	assert.False(t, r.AssetExists(id))
	_, err = r.Asset(ctx, id)
	require.ErrorIs(t, err, ErrAssetNotExist)

	data, err := r.Codec().ReadBlob(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestRegistry_LookupByBlob(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	blob := platform.NewBlob([]byte("b"), "text/plain")
	id, err := r.AddAssetFromBlob(blob)
	require.NoError(t, err)

	got, ok := r.AssetIDFromBlob(blob)
	require.True(t, ok)
	assert.Equal(t, id, got)

	url, err := r.AssetAsBlobURL(ctx, id)
	require.NoError(t, err)
	got, ok = r.AssetIDFromBlobURL(url)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = r.AssetIDFromBlob(platform.NewBlob([]byte("b"), "text/plain"))
	assert.False(t, ok)
	assert.Equal(t, []ID{id}, r.AssetIDs())
}

func TestRegistry_ConcurrentConversions(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	want := []byte("concurrent payload")
	id, err := r.AddAssetFromData64URL(dataurl.Encode("text/plain", want))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Go(func() {
			results[i], errs[i] = r.AssetAsBuffer(ctx, id)
		})
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestRegistry_UnknownAsset(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	_, err := r.AssetAsBuffer(context.Background(), OpaqueID("nope"))
	require.ErrorIs(t, err, ErrAssetNotExist)
	assert.Contains(t, err.Error(), "nope")

	_, err = r.Asset(context.Background(), ID{})
	require.ErrorIs(t, err, ErrInvalidID)
}
