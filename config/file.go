// Package config reads kimport's settings from ~/.kimport/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/kimport/media"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user settings directory under the home directory.
const DirName = ".kimport"

// Config is the structure of ~/.kimport/config.yaml.
type Config struct {
	Vault   VaultConfig   `yaml:"vault" json:"vault"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Import  ImportConfig  `yaml:"import" json:"import"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	AI      AIConfig      `yaml:"ai" json:"ai"`
	API     APIConfig     `yaml:"api" json:"api"`
}

// VaultConfig locates the notes directory.
type VaultConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// StorageConfig locates the subscription database.
type StorageConfig struct {
	Sources struct {
		Type string `yaml:"type" json:"type"`
		DSN  string `yaml:"dsn" json:"dsn"`
	} `yaml:"sources" json:"sources"`
}

// ImportConfig holds import defaults. Sources may override some of them.
type ImportConfig struct {
	ImageMode media.ImageMode `yaml:"image_mode" json:"image_mode"`
	Comments  bool            `yaml:"comments" json:"comments"`
	MaxPosts  int             `yaml:"max_posts" json:"max_posts"`
	PageDelay string          `yaml:"page_delay" json:"page_delay"`

	// DisableAfter is the number of consecutive failed syncs after which
	// a source is disabled. Zero never disables.
	DisableAfter int `yaml:"disable_after" json:"disable_after"`
}

// HTTPConfig configures the shared fetch client. Cookies maps a domain
// such as "naver.com" to the Cookie header sent to it.
type HTTPConfig struct {
	UserAgent string            `yaml:"user_agent" json:"user_agent"`
	Timeout   string            `yaml:"timeout" json:"timeout"`
	Cookies   map[string]string `yaml:"cookies" json:"cookies"`
}

// AIConfig configures the optional enrichment step. Enabled turns on tag
// and excerpt suggestions; FixLayout additionally rewrites paragraph
// breaks.
type AIConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	FixLayout bool   `yaml:"fix_layout" json:"fix_layout"`
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"api_key" json:"api_key,omitempty"`
}

// APIConfig configures the local HTTP bridge.
type APIConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the settings used when no config file exists. Paths are
// relative to the user's home directory when it can be determined.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{}
	cfg.Vault.Dir = filepath.Join(home, "kimport")
	cfg.Storage.Sources.Type = "sqlite"
	cfg.Storage.Sources.DSN = filepath.Join(home, DirName, "sources.db")
	cfg.Import = ImportConfig{
		ImageMode:    media.ImageOriginal,
		Comments:     true,
		MaxPosts:     50,
		PageDelay:    "300ms",
		DisableAfter: 5,
	}
	cfg.HTTP.Timeout = "30s"
	cfg.AI.Model = "gemini-2.0-flash"
	cfg.API.Addr = "127.0.0.1:8787"
	return cfg
}

// Path returns the location of the config file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName, "config.yaml"), nil
}

// LoadConfigFile loads ~/.kimport/config.yaml over the defaults. A missing
// file is not an error.
func LoadConfigFile() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile loads the config file at configPath over the defaults. Keys
// absent from the file keep their default values.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	switch c.Import.ImageMode {
	case media.ImageAsIs, media.ImageOriginal, media.ImageLocal:
	default:
		return fmt.Errorf("import.image_mode must be %q, %q or %q", media.ImageAsIs, media.ImageOriginal, media.ImageLocal)
	}
	if c.Import.MaxPosts < 0 {
		return errors.New("import.max_posts must not be negative")
	}
	if _, err := c.PageDelay(); err != nil {
		return err
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Storage.Sources.Type != "" && c.Storage.Sources.Type != "sqlite" {
		return fmt.Errorf("storage.sources.type %q is not supported", c.Storage.Sources.Type)
	}
	return nil
}

// PageDelay returns the pause between list pages.
func (c *Config) PageDelay() (time.Duration, error) {
	return parseDuration("import.page_delay", c.Import.PageDelay)
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() (time.Duration, error) {
	return parseDuration("http.timeout", c.HTTP.Timeout)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a duration such as 300ms or 1s", key)
	}
	return d, nil
}
