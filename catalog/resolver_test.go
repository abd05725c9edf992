package catalog

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assets"
	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/internal/testutil"
	"github.com/meigma/assets/pack"
)

type testServer struct {
	*httptest.Server
	hits  sync.Map // path -> *atomic.Int64
	total atomic.Int64
}

func (s *testServer) Hits(path string) int64 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func newTestServer(t *testing.T, routes map[string]func(nethttp.ResponseWriter)) *testServer {
	t.Helper()
	s := &testServer{}
	s.Server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, req *nethttp.Request) {
		s.total.Add(1)
		v, _ := s.hits.LoadOrStore(req.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		route, ok := routes[req.URL.Path]
		if !ok {
			nethttp.NotFound(w, req)
			return
		}
		route(w)
	}))
	t.Cleanup(s.Close)
	return s
}

func serve(contentType string, body []byte) func(nethttp.ResponseWriter) {
	return func(w nethttp.ResponseWriter) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}
}

func packArchive(t *testing.T, name string, entries map[string][]byte) []byte {
	t.Helper()
	b := pack.NewBuilder(name)
	for id, data := range entries {
		require.NoError(t, b.Add(id, data, "image/png", map[string]any{"from": "pack"}))
	}
	archive, err := b.Bytes()
	require.NoError(t, err)
	return archive
}

func e2eManifest() *Manifest {
	return &Manifest{
		Info: &Info{Name: "demo"},
		Packages: map[string]PackageDecl{
			"P": {
				URL: "packs/p.pack",
				Assets: map[string]EntryDecl{
					"img": {MIME: "image/png", Length: 192, Metadata: map[string]any{"alt": "icon"}},
				},
			},
		},
		Assets: map[string]AssetDecl{
			"logo": {URL: "img/logo.txt", MIME: "text/x-logo", Length: 4, Metadata: map[string]any{"k": "v"}},
		},
	}
}

func TestResolver_EndToEnd(t *testing.T) {
	t.Parallel()

	img := testutil.PNG(t, 8, 8)
	srv := newTestServer(t, map[string]func(nethttp.ResponseWriter){
		"/cdn/packs/p.pack": serve(pack.MediaType, packArchive(t, "P", map[string][]byte{"img": img})),
		"/cdn/img/logo.txt": serve("text/plain", []byte("LOGO")),
	})

	r, err := New(assets.New(), WithRootURL(srv.URL+"/cdn/"))
	require.NoError(t, err)

	name, err := r.ImportCatalog(e2eManifest())
	require.NoError(t, err)
	assert.Equal(t, "demo", name)

	id := assets.PackEntryID("P", "img")
	rec, err := r.AssetRecord(id)
	require.NoError(t, err)
	assert.Equal(t, assets.Record{MIME: "image/png", Length: 192, Metadata: map[string]any{"alt": "icon"}}, rec)
	assert.Nil(t, rec.Offset)
	assert.True(t, r.AssetExists(id))
	assert.False(t, r.AssetLoaded(id))
	assert.Zero(t, srv.total.Load())

	got, err := r.AssetAsBuffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, img, got)
	assert.True(t, r.AssetLoaded(id))
	assert.Equal(t, int64(1), srv.Hits("/cdn/packs/p.pack"))

	_, err = r.AssetAsImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.Hits("/cdn/packs/p.pack"))

	logo := assets.MustParseID("logo")
	assert.False(t, r.AssetLoaded(logo))
	data, err := r.AssetAsBuffer(context.Background(), logo)
	require.NoError(t, err)
	assert.Equal(t, []byte("LOGO"), data)

	bundle, err := r.Registry().Asset(context.Background(), logo)
	require.NoError(t, err)
	assert.Equal(t, "text/x-logo", bundle.MIME())
	assert.Equal(t, map[string]any{"k": "v"}, bundle.Metadata())
	assert.Equal(t, "url:"+srv.URL+"/cdn/img/logo.txt", bundle.Source())
}

func TestResolver_QueriesNeverFetch(t *testing.T) {
	t.Parallel()

	fetcher := testutil.NewMockFetcher()
	r, err := New(assets.New(assets.WithFetcher(fetcher)), WithRootURL("https://cdn.example.com/"))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)

	for _, id := range r.AssetIDs() {
		_, err := r.AssetRecord(id)
		require.NoError(t, err)
		assert.True(t, r.AssetExists(id))
		assert.False(t, r.AssetLoaded(id))
	}
	assert.False(t, r.AssetExists(assets.PackEntryID("P", "other")))
	assert.Equal(t, []string{"P"}, r.PackageNames())
	assert.Zero(t, fetcher.Total())
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()

	fetcher := testutil.NewMockFetcher()
	fetcher.Set("https://cdn.example.com/packs/p.pack", pack.MediaType,
		packArchive(t, "Q", map[string][]byte{"img": []byte("x")}))
	r, err := New(assets.New(assets.WithFetcher(fetcher)), WithRootURL("https://cdn.example.com/"))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)
	ctx := context.Background()

	err = r.LoadAsset(ctx, assets.PackEntryID("P", "img"))
	require.ErrorIs(t, err, assets.ErrPackNameMismatch)
	assert.False(t, r.Registry().PackageExists("Q"))
	assert.False(t, r.Registry().PackageExists("P"))

	err = r.LoadAsset(ctx, assets.PackEntryID("nope", "img"))
	require.ErrorIs(t, err, assets.ErrPackageNotExist)
	_, err = r.AssetRecord(assets.PackEntryID("nope", "img"))
	require.ErrorIs(t, err, assets.ErrPackageNotExist)

	err = r.LoadAsset(ctx, assets.PackEntryID("P", "undeclared"))
	require.ErrorIs(t, err, assets.ErrAssetNotExist)
	_, err = r.AssetRecord(assets.MustParseID("undeclared"))
	require.ErrorIs(t, err, assets.ErrAssetNotExist)

	err = r.LoadAsset(ctx, assets.MustParseID("logo"))
	require.ErrorIs(t, err, assets.ErrFetchFailed)
	assert.False(t, r.AssetLoaded(assets.MustParseID("logo")))
}

func TestResolver_LoadAssetIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := testutil.NewMockFetcher()
	const packURL = "https://cdn.example.com/packs/p.pack"
	fetcher.Set(packURL, pack.MediaType, packArchive(t, "P", map[string][]byte{"img": []byte("x")}))
	r, err := New(assets.New(assets.WithFetcher(fetcher)), WithRootURL("https://cdn.example.com/"))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)

	id := assets.PackEntryID("P", "img")
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, r.LoadAsset(context.Background(), id))
		})
	}
	wg.Wait()
	require.NoError(t, r.LoadAsset(context.Background(), id))

	assert.Equal(t, 1, fetcher.Calls(packURL))
	assert.True(t, r.AssetLoaded(id))
}

func TestResolver_StandaloneLoadInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	slow := fetch.Func(func(ctx context.Context, url string) (*fetch.Response, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		header := nethttp.Header{}
		header.Set("Content-Type", "text/plain")
		return &fetch.Response{URL: url, Header: header, Body: []byte("LOGO")}, nil
	})
	r, err := New(assets.New(assets.WithFetcher(slow)), WithRootURL("https://cdn.example.com/"))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)

	ctx := context.Background()
	id := assets.MustParseID("logo")
	results := make(chan []byte, 2)
	errs := make(chan error, 2)
	get := func() {
		data, err := r.AssetAsBuffer(ctx, id)
		results <- data
		errs <- err
	}

	go get()
	<-started
	assert.False(t, r.AssetLoaded(id))
	assert.True(t, r.AssetExists(id))

	go get()
	close(release)
	for range 2 {
		require.NoError(t, <-errs)
		assert.Equal(t, []byte("LOGO"), <-results)
	}
	assert.True(t, r.AssetLoaded(id))
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolver_EmptyBundleIsNotLoaded(t *testing.T) {
	t.Parallel()

	fetcher := testutil.NewMockFetcher()
	fetcher.Set("https://cdn.example.com/img/logo.txt", "text/plain", []byte("LOGO"))
	reg := assets.New(assets.WithFetcher(fetcher))
	r, err := New(reg, WithRootURL("https://cdn.example.com/"))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)

	id := assets.MustParseID("logo")
	reg.AddAsset(assets.WithID(id))
	assert.False(t, r.AssetLoaded(id))

	data, err := r.AssetAsBuffer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("LOGO"), data)
	assert.True(t, r.AssetLoaded(id))
}

func TestResolver_Preload(t *testing.T) {
	t.Parallel()

	fetcher := testutil.NewMockFetcher()
	fetcher.Set("https://cdn.example.com/packs/p.pack", pack.MediaType,
		packArchive(t, "P", map[string][]byte{"img": []byte("x")}))
	fetcher.Set("https://cdn.example.com/img/logo.txt", "text/plain", []byte("LOGO"))
	r, err := New(assets.New(assets.WithFetcher(fetcher)),
		WithRootURL("https://cdn.example.com/"), WithLoadConcurrency(2))
	require.NoError(t, err)
	_, err = r.ImportCatalog(e2eManifest())
	require.NoError(t, err)

	require.NoError(t, r.Preload(context.Background()))
	for _, id := range r.AssetIDs() {
		assert.True(t, r.AssetLoaded(id), id.String())
	}

	fetcher.Fail("https://cdn.example.com/img/logo.txt", errors.New("down"))
	r.Registry().RemoveAsset(assets.MustParseID("logo"))
	err = r.Preload(context.Background(), assets.MustParseID("logo"))
	require.ErrorIs(t, err, assets.ErrFetchFailed)
}

func TestResolver_RootURL(t *testing.T) {
	t.Parallel()

	r, err := New(assets.New())
	require.NoError(t, err)
	assert.Empty(t, r.RootURL())

	require.NoError(t, r.SetRootURL("https://cdn.example.com/v1/"))
	require.NoError(t, r.SetRootURL("catalogs/"))
	assert.Equal(t, "https://cdn.example.com/v1/catalogs/", r.RootURL())
	require.NoError(t, r.SetRootURL("../other/"))
	assert.Equal(t, "https://cdn.example.com/v1/other/", r.RootURL())

	_, err = r.ImportCatalog(&Manifest{Assets: map[string]AssetDecl{
		"a": {URL: "a.txt", MIME: "text/plain"},
		"b": {URL: "https://elsewhere.example.com/b.txt"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v1/other/a.txt", r.standalone["a"])
	assert.Equal(t, "https://elsewhere.example.com/b.txt", r.standalone["b"])

	_, err = New(assets.New(), WithLoadConcurrency(0))
	require.Error(t, err)
	_, err = New(nil)
	require.Error(t, err)
}

func TestResolver_ImportCatalogFromURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]func(nethttp.ResponseWriter){
		"/site/catalog.yaml": serve("application/yaml", []byte("info:\n  name: remote\nassets:\n  a:\n    url: files/a.txt\n    mime: text/plain\n")),
		"/site/files/a.txt":  serve("text/plain", []byte("A")),
	})

	r, err := New(assets.New())
	require.NoError(t, err)
	name, err := r.ImportCatalogFromURL(context.Background(), srv.URL+"/site/catalog.yaml")
	require.NoError(t, err)
	assert.Equal(t, "remote", name)

	got, err := r.AssetAsBuffer(context.Background(), assets.MustParseID("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), got)

	_, err = r.ImportCatalogFromURL(context.Background(), srv.URL+"/site/missing.yaml")
	require.ErrorIs(t, err, assets.ErrFetchFailed)
}
