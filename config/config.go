// Package config loads pagecap configuration from a YAML file, with
// sane defaults when no file is given.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagecap configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
	Output  OutputConfig  `yaml:"output"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AuthPasswordHash is a bcrypt hash; when set, the API requires
	// Basic Auth with the matching password.
	AuthPasswordHash string `yaml:"auth_password_hash"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote string `yaml:"remote"` // ws:// URL of an external Chrome
	// DisableStealth opens plain tabs; stealth pages are the default.
	DisableStealth  bool          `yaml:"disable_stealth"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// CaptureConfig controls the capture engine.
type CaptureConfig struct {
	Disabled       bool          `yaml:"disabled"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Retries        int           `yaml:"retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
}

// OutputConfig controls where and how composites are written.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // png | tiff | bmp | pdf
}

// StoreConfig controls the capture history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

func (c *Config) defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8086"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1920
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 1080
	}
	if c.Capture.Retries <= 0 {
		c.Capture.Retries = 3
	}
	if c.Capture.RetryBaseDelay <= 0 {
		c.Capture.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.Capture.SettleDelay <= 0 {
		c.Capture.SettleDelay = 50 * time.Millisecond
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "captures"
	}
	if c.Output.Format == "" {
		c.Output.Format = "png"
	}
	if c.Store.Path == "" {
		c.Store.Path = "db/captures.db"
	}
}

// Load reads a YAML configuration file. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.defaults()
	return &cfg, nil
}
