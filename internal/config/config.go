// Package config provides configuration loading and management for the
// subgraph directory server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graphfoundry/subgraph-directory/internal/telemetry"
	"github.com/graphfoundry/subgraph-directory/internal/tiers"
)

// EnvPrefix is the prefix for environment variables read through viper
const EnvPrefix = "SUBGRAPH_DIRECTORY"

const (
	// DefaultPollInterval is the default interval between poll cycles
	DefaultPollInterval = "30s"

	// DefaultPageSize is the default page size used when draining the
	// network subgraph
	DefaultPageSize = 200

	// DefaultClientTimeout is the default per-request HTTP timeout
	DefaultClientTimeout = "10s"

	// DefaultClientMaxTries is the default number of attempts per page
	// request, including the first one
	DefaultClientMaxTries = 3

	// DefaultAddress is the default listen address for the API server
	DefaultAddress = ":8080"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// MinVersion is the minimum server version this config file was
	// written for. The serve command refuses to start an older release.
	MinVersion string `yaml:"minVersion,omitempty"`

	// NetworkSubgraph configures the upstream source polled for
	// deployment records
	NetworkSubgraph NetworkSubgraphConfig `yaml:"networkSubgraph"`

	// Server configures the HTTP API surface
	Server *ServerConfig `yaml:"server,omitempty"`

	// Tiers is the ordered billing tier table served by the tier
	// lookup endpoints
	Tiers []tiers.Tier `yaml:"tiers,omitempty"`

	// Telemetry configures tracing and metrics export
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// NetworkSubgraphConfig defines the upstream network subgraph settings
type NetworkSubgraphConfig struct {
	// Endpoint is the GraphQL endpoint URL of the network subgraph
	Endpoint string `yaml:"endpoint"`

	// AuthTokenFile is the path to a file containing a bearer token sent
	// with every upstream request. The file content is trimmed of
	// surrounding whitespace.
	AuthTokenFile string `yaml:"authTokenFile,omitempty"`

	// PollInterval is the interval between poll cycles (e.g. "30s", "1m")
	PollInterval string `yaml:"pollInterval,omitempty"`

	// PageSize is the number of deployment records requested per page
	PageSize int `yaml:"pageSize,omitempty"`

	// Timeout is the per-request HTTP timeout (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxTries is the number of attempts per page request, including the
	// first one
	MaxTries int `yaml:"maxTries,omitempty"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	// Address is the listen address in "host:port" form
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetAuthToken returns the upstream bearer token using the following priority:
// 1. Read from AuthTokenFile if specified
// 2. Read from SUBGRAPH_DIRECTORY_AUTH_TOKEN environment variable
//
// An empty string with no error means no token is configured; upstream
// requests are then sent unauthenticated.
func (n *NetworkSubgraphConfig) GetAuthToken() (string, error) {
	if n.AuthTokenFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(n.AuthTokenFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read auth token from file %s: %w", n.AuthTokenFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	return os.Getenv("SUBGRAPH_DIRECTORY_AUTH_TOKEN"), nil
}

// GetPollInterval returns the parsed poll interval, using the default if
// not specified
func (n *NetworkSubgraphConfig) GetPollInterval() time.Duration {
	interval := n.PollInterval
	if interval == "" {
		interval = DefaultPollInterval
	}
	// Validation guarantees this parses.
	d, _ := time.ParseDuration(interval)
	return d
}

// GetPageSize returns the page size, using the default if not specified
func (n *NetworkSubgraphConfig) GetPageSize() int {
	if n.PageSize == 0 {
		return DefaultPageSize
	}
	return n.PageSize
}

// GetTimeout returns the parsed request timeout, using the default if not
// specified
func (n *NetworkSubgraphConfig) GetTimeout() time.Duration {
	timeout := n.Timeout
	if timeout == "" {
		timeout = DefaultClientTimeout
	}
	d, _ := time.ParseDuration(timeout)
	return d
}

// GetMaxTries returns the attempt count, using the default if not specified
func (n *NetworkSubgraphConfig) GetMaxTries() int {
	if n.MaxTries == 0 {
		return DefaultClientMaxTries
	}
	return n.MaxTries
}

// GetAddress returns the listen address, using the default if not specified
func (s *ServerConfig) GetAddress() string {
	if s == nil || s.Address == "" {
		return DefaultAddress
	}
	return s.Address
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateNetworkSubgraph(); err != nil {
		return err
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// validateNetworkSubgraph validates the upstream source configuration
func (c *Config) validateNetworkSubgraph() error {
	n := &c.NetworkSubgraph

	if n.Endpoint == "" {
		return fmt.Errorf("networkSubgraph.endpoint is required")
	}

	parsed, err := url.Parse(n.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("networkSubgraph.endpoint must be a valid URL, got %q", n.Endpoint)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("networkSubgraph.endpoint must use http or https, got %q", parsed.Scheme)
	}

	if n.PollInterval != "" {
		d, err := time.ParseDuration(n.PollInterval)
		if err != nil {
			return fmt.Errorf("networkSubgraph.pollInterval must be a valid duration (e.g., '30s', '1m'): %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("networkSubgraph.pollInterval must be positive, got %q", n.PollInterval)
		}
	}

	if n.PageSize < 0 {
		return fmt.Errorf("networkSubgraph.pageSize must not be negative, got %d", n.PageSize)
	}

	if n.Timeout != "" {
		d, err := time.ParseDuration(n.Timeout)
		if err != nil {
			return fmt.Errorf("networkSubgraph.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("networkSubgraph.timeout must be positive, got %q", n.Timeout)
		}
	}

	if n.MaxTries < 0 {
		return fmt.Errorf("networkSubgraph.maxTries must not be negative, got %d", n.MaxTries)
	}

	return nil
}
