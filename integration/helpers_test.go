//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/assets"
	"github.com/meigma/assets/fetch"
	"github.com/meigma/assets/fetch/oci"
	"github.com/meigma/assets/internal/testutil"
	"github.com/meigma/assets/pack"
	"github.com/meigma/assets/platform"
)

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container
// on first use.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// testRef returns a unique oci:// URL for a test.
func testRef(addr, name string) string {
	return fmt.Sprintf("%s://%s/test/%s:latest", oci.Scheme, addr, name)
}

// newRegistry returns an asset registry whose fetcher serves oci:// URLs
// through f alongside the default schemes.
func newRegistry(f *oci.Fetcher) *assets.Registry {
	codec := platform.NewHeadless()
	mux := fetch.NewDefault(codec).Handle(f, oci.Scheme)
	return assets.New(assets.WithCodec(codec), assets.WithFetcher(mux))
}

// buildPack returns an archive holding a small PNG and a text entry.
func buildPack(tb testing.TB, name string) []byte {
	tb.Helper()

	b := pack.NewBuilder(name)
	require.NoError(tb, b.Add("logo.png", testutil.PNG(tb, 8, 8), "image/png", map[string]any{"alt": "logo"}))
	require.NoError(tb, b.Add("strings/en.json", []byte(`{"hello":"world"}`), "application/json", nil))
	archive, err := b.Bytes()
	require.NoError(tb, err)
	return archive
}
