// Package config loads assetctl configuration from YAML with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that check themselves
// after loading.
type Validator interface {
	Validate() error
}

// Load reads filename, expands $VAR references and decodes it into target.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", filename, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))), target)
}

// LoadOptional is Load, except a missing file leaves target untouched
// and is validated as is.
func LoadOptional[T any](filename string, target *T) error {
	if filename != "" {
		_, err := os.Stat(filename)
		if err == nil {
			return Load(filename, target)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat config file %s: %w", filename, err)
		}
	}
	return validate(target)
}

// Parse decodes YAML into target and validates it.
func Parse[T any](data []byte, target *T) error {
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return validate(target)
}

func validate[T any](target *T) error {
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the assetctl configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Catalog CatalogConfig `yaml:"catalog"`
	HTTP    HTTPConfig    `yaml:"http"`
	OCI     OCIConfig     `yaml:"oci"`
	S3      S3Config      `yaml:"s3"`
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.OCI.Validate(); err != nil {
		return fmt.Errorf("oci: %w", err)
	}
	return nil
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  slog.Level `yaml:"level"`
	Format string     `yaml:"format"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	if c.Format == "" {
		c.Format = LogFormatText
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Format, validation.In(LogFormatText, LogFormatJSON)),
	)
}

// CatalogConfig configures the catalog resolver.
type CatalogConfig struct {
	RootURL         string `yaml:"root_url"`
	LoadConcurrency int    `yaml:"load_concurrency"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RootURL, validation.By(absoluteURL)),
		validation.Field(&c.LoadConcurrency, validation.Required, validation.Min(1)),
	)
}

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	UserAgent string            `yaml:"user_agent"`
	MaxBytes  int64             `yaml:"max_bytes"`
	Headers   map[string]string `yaml:"headers"`
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// OCIConfig configures registry access for oci:// URLs.
type OCIConfig struct {
	PlainHTTP    bool   `yaml:"plain_http"`
	DockerConfig bool   `yaml:"docker_config"`
	Registry     string `yaml:"registry"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CacheDir     string `yaml:"cache_dir"`
	// CacheMaxBytes bounds the layer cache; zero means unbounded.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
}

// HasStaticCredentials reports whether a username and password are set.
func (c *OCIConfig) HasStaticCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Validate validates the OCI configuration.
func (c *OCIConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Registry, validation.When(c.Username != "", validation.Required)),
		validation.Field(&c.Password, validation.When(c.Username != "", validation.Required)),
		validation.Field(&c.CacheMaxBytes, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	if c.DockerConfig && c.HasStaticCredentials() {
		return errors.New("docker_config and static credentials are mutually exclusive")
	}
	return nil
}

// S3Config configures s3:// URLs. Region and Endpoint fall back to the
// AWS SDK defaults when empty.
type S3Config struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: LogFormatText,
		},
		Catalog: CatalogConfig{
			LoadConcurrency: 4,
		},
		HTTP: HTTPConfig{
			UserAgent: "assetctl/1.0",
		},
	}
}

// NewLogger builds a slog.Logger writing to w per the log configuration.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if strings.EqualFold(c.Format, LogFormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if !u.IsAbs() {
		return errors.New("must be an absolute URL")
	}
	return nil
}
