// Package config provides configuration loading and validation for the
// registry server.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "AOPKG"

// Config is the root configuration structure.
type Config struct {
	// Address is the listen address for the HTTP server.
	Address string `yaml:"address,omitempty"`

	// DataDir is the directory artifacts are written to.
	DataDir string `yaml:"dataDir,omitempty"`

	Log    LogConfig    `yaml:"log,omitempty"`
	GitHub GitHubConfig `yaml:"github,omitempty"`
	OAuth  OAuthConfig  `yaml:"oauth,omitempty"`

	// Database is optional; without it the server runs on the in-memory
	// store, which does not survive restarts.
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// GitHubConfig holds the release-listing endpoint used by the webhook
// ingestion path. The base URL is configurable so tests can point the
// fetcher at a fake endpoint.
type GitHubConfig struct {
	APIBaseURL string `yaml:"apiBaseURL,omitempty"`
}

// OAuthConfig holds the identity-exchange collaborator endpoints. These
// were process-wide lazy globals once; constructing them here keeps the
// core testable with injected fakes.
type OAuthConfig struct {
	ClientID     string `yaml:"clientID,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	AuthorizeURL string `yaml:"authorizeURL,omitempty"`
	TokenURL     string `yaml:"tokenURL,omitempty"`
	UserURL      string `yaml:"userURL,omitempty"`
}

// DatabaseConfig defines the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password,omitempty"`
	PasswordFile string `yaml:"passwordFile,omitempty"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"sslMode,omitempty"`
}

// Defaults applied after loading.
const (
	defaultAddress    = ":7575"
	defaultDataDir    = "./data"
	defaultAPIBaseURL = "https://api.github.com"
	defaultSSLMode    = "require"
)

// Load reads a YAML configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with defaults only, for running without
// a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.GitHub.APIBaseURL == "" {
		c.GitHub.APIBaseURL = defaultAPIBaseURL
	}
	if c.Database != nil && c.Database.SSLMode == "" {
		c.Database.SSLMode = defaultSSLMode
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if !strings.HasPrefix(c.GitHub.APIBaseURL, "http://") && !strings.HasPrefix(c.GitHub.APIBaseURL, "https://") {
		return fmt.Errorf("github.apiBaseURL must be an http(s) URL")
	}
	if c.Database != nil {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database port is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	return nil
}

// GetPassword resolves the database password using file, then environment,
// then inline config, in that order.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(d.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if pw := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); pw != "" {
		return pw, nil
	}
	return d.Password, nil
}

// ConnString builds a pgx-compatible connection string.
func (d *DatabaseConfig) ConnString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, password, d.Host, d.Port, d.Database, d.SSLMode,
	), nil
}
