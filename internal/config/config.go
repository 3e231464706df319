package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/newrelic-exporter/internal/extract"
	"github.com/obsidianstack/newrelic-exporter/internal/logger"
	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddress    = ":9126"
	DefaultMetricsPath      = "/metrics"
	DefaultEndpoint         = upstream.DefaultEndpoint
	DefaultTimeout          = upstream.DefaultTimeout
	DefaultDeploymentWindow = extract.DefaultDeploymentWindow
	DefaultLogLevel         = "info"
	DefaultLogFormat        = logger.FormatJSON
)

// ErrInvalidConfig marks configuration that must stop the process before it
// serves anything.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full exporter configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	NewRelic NewRelicConfig `yaml:"newrelic"`
	Exporter ExporterConfig `yaml:"exporter"`
	Log      LogConfig      `yaml:"log"`
}

// NewRelicConfig holds the upstream settings.
type NewRelicConfig struct {
	// Endpoint is the NerdGraph URL. The EU region uses
	// https://api.eu.newrelic.com/graphql.
	Endpoint string `yaml:"endpoint"`

	// APIKey is the user API key. Prefer APIKeyEnv or the APIKEY
	// environment variable over storing the key in the file.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv is the name of an environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// AccountNumber scopes the deployment query. It must be an integer.
	AccountNumber string `yaml:"account_number"`

	// Timeout bounds each query.
	Timeout time.Duration `yaml:"timeout"`

	// DeploymentWindow is how far back deployments are reported.
	DeploymentWindow time.Duration `yaml:"deployment_window"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS dial options for the upstream connection.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this behind an intercepting proxy you control.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ExporterConfig holds the exposition server settings.
type ExporterConfig struct {
	// ListenAddress is host:port for the HTTP server.
	ListenAddress string `yaml:"listen_address"`

	// MetricsPath is the path the exposition is served on.
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig controls process logging. Level is hot-reloaded.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// Key returns the API key, resolving APIKeyEnv when the literal is empty.
func (n NewRelicConfig) Key() string {
	if n.APIKey != "" || n.APIKeyEnv == "" {
		return n.APIKey
	}
	return os.Getenv(n.APIKeyEnv)
}

// AccountID parses AccountNumber.
func (n NewRelicConfig) AccountID() (int64, error) {
	s := strings.TrimSpace(n.AccountNumber)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("newrelic.account_number %q is not an integer", n.AccountNumber)
	}
	if id <= 0 {
		return 0, fmt.Errorf("newrelic.account_number must be positive, got %d", id)
	}
	return id, nil
}

// Load reads and parses the YAML config file at path. An empty path yields
// the defaults. Credentials are not required here; see Validate.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate checks the complete configuration, credentials included.
func (c *Config) Validate() error {
	if err := validate(c); err != nil {
		return fmt.Errorf("config: %w: %w", ErrInvalidConfig, err)
	}
	if c.NewRelic.Key() == "" {
		return fmt.Errorf("config: %w: newrelic api key is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.NewRelic.AccountNumber) == "" {
		return fmt.Errorf("config: %w: newrelic account number is required", ErrInvalidConfig)
	}
	if _, err := c.NewRelic.AccountID(); err != nil {
		return fmt.Errorf("config: %w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		NewRelic: NewRelicConfig{
			Endpoint:         DefaultEndpoint,
			Timeout:          DefaultTimeout,
			DeploymentWindow: DefaultDeploymentWindow,
		},
		Exporter: ExporterConfig{
			ListenAddress: DefaultListenAddress,
			MetricsPath:   DefaultMetricsPath,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// validate checks structural constraints that do not depend on credentials.
func validate(cfg *Config) error {
	if cfg.NewRelic.Endpoint == "" {
		return errors.New("newrelic.endpoint is required")
	}
	if !strings.HasPrefix(cfg.NewRelic.Endpoint, "http://") && !strings.HasPrefix(cfg.NewRelic.Endpoint, "https://") {
		return fmt.Errorf("newrelic.endpoint %q must be an http(s) URL", cfg.NewRelic.Endpoint)
	}
	if cfg.NewRelic.Timeout <= 0 {
		return errors.New("newrelic.timeout must be positive")
	}
	if cfg.NewRelic.DeploymentWindow < time.Second {
		return errors.New("newrelic.deployment_window must be at least 1s")
	}
	if _, _, err := net.SplitHostPort(cfg.Exporter.ListenAddress); err != nil {
		return fmt.Errorf("exporter.listen_address %q: %w", cfg.Exporter.ListenAddress, err)
	}
	if !strings.HasPrefix(cfg.Exporter.MetricsPath, "/") {
		return fmt.Errorf("exporter.metrics_path %q must start with /", cfg.Exporter.MetricsPath)
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case logger.FormatJSON, logger.FormatText:
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
