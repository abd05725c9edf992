package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("ASSETS_TEST_REGISTRY_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
catalog:
  root_url: https://cdn.example.com/assets/
oci:
  registry: ghcr.io
  username: bot
  password: ${ASSETS_TEST_REGISTRY_PASSWORD}
s3:
  enabled: true
  region: eu-west-1
`), 0o600))

	cfg := NewDefaultConfig()
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)
	assert.Equal(t, "https://cdn.example.com/assets/", cfg.Catalog.RootURL)
	assert.Equal(t, 4, cfg.Catalog.LoadConcurrency)
	assert.Equal(t, "s3cret", cfg.OCI.Password)
	assert.True(t, cfg.OCI.HasStaticCredentials())
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, "assetctl/1.0", cfg.HTTP.UserAgent)
}

func TestLoadOptional_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	require.NoError(t, LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
	assert.Equal(t, NewDefaultConfig(), cfg)

	require.NoError(t, LoadOptional("", cfg))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	require.Error(t, Load("/nonexistent/config.yaml", NewDefaultConfig()))

	require.Error(t, Parse([]byte("log: [unclosed"), NewDefaultConfig()))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"relative root", func(c *Config) { c.Catalog.RootURL = "assets/" }},
		{"zero concurrency", func(c *Config) { c.Catalog.LoadConcurrency = 0 }},
		{"negative max bytes", func(c *Config) { c.HTTP.MaxBytes = -1 }},
		{"negative cache max bytes", func(c *Config) { c.OCI.CacheMaxBytes = -1 }},
		{"username without registry", func(c *Config) { c.OCI.Username = "bot"; c.OCI.Password = "pw" }},
		{"docker and static", func(c *Config) {
			c.OCI = OCIConfig{DockerConfig: true, Registry: "ghcr.io", Username: "bot", Password: "pw"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, NewDefaultConfig().Validate())
}

func TestLogConfig_EmptyFormatDefaultsText(t *testing.T) {
	t.Parallel()

	c := LogConfig{}
	require.NoError(t, c.Validate())
	assert.Equal(t, LogFormatText, c.Format)

	var buf bytes.Buffer
	c.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	c.Format = LogFormatJSON
	buf.Reset()
	c.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
