package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/httpdirfs-go/internal/util"
	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration values for the HTTP-backed
// filesystem.
type Config struct {
	// URL is the base address of the HTTP(S) server whose directory tree
	// is mounted. httpfs.NewFilesystem appends a trailing slash if it is
	// missing.
	URL string

	// MetaCacheTTL is the freshness window for cached directory listings.
	MetaCacheTTL time.Duration

	// Proxy, if non-empty, is used for all outgoing requests.
	Proxy string

	LogLvl util.LogLevel

	MountOptions MountOptions
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field
// descriptions.
type ConfigOverride struct {
	URL          *string        `yaml:"url,omitempty" json:"url,omitempty"`
	MetaCacheTTL *time.Duration `yaml:"meta_cache_ttl,omitempty" json:"meta_cache_ttl,omitempty"`
	Proxy        *string        `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	LogLvl       *util.LogLevel
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MetaCacheTTL: DefaultMetaCacheTTL,
		LogLvl:       util.InfoLevel,
		MountOptions: MountOptions{
			Name:   "httpdirfs",
			FsName: "httpdirfs",
		},
	}
}

// NewConfig builds a Config from defaults merged with an optional override.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
func (c *Config) Merge(override *ConfigOverride) {
	if override.URL != nil {
		c.URL = *override.URL
	}
	if override.MetaCacheTTL != nil {
		c.MetaCacheTTL = *override.MetaCacheTTL
	}
	if override.Proxy != nil {
		c.Proxy = *override.Proxy
	}
	if override.LogLvl != nil {
		c.LogLvl = *override.LogLvl
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without
// merging. Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with
// defaults. This is a convenience function combining NewDefaultConfig,
// LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
