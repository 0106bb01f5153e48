// Package config provides configuration loading and structs for kazoeru.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kazoeru/internal/models"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Index    IndexConfig    `yaml:"index"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
}

// IndexConfig says what to index, where to put the index, and how.
type IndexConfig struct {
	Source      string   `yaml:"source"`
	Location    string   `yaml:"location"`
	Mode        string   `yaml:"mode"`
	Engine      string   `yaml:"engine"`
	Extensions  []string `yaml:"extensions"`
	RichFormats bool     `yaml:"rich_formats"`
}

// BuildMode parses Mode.
func (c *IndexConfig) BuildMode() (models.BuildMode, error) {
	return models.ParseBuildMode(c.Mode)
}

// AnalysisConfig selects the analyzer that turns contents into terms.
type AnalysisConfig struct {
	Analyzer  string `yaml:"analyzer"`
	Positions *bool  `yaml:"positions"`
}

// PositionsOrDefault returns whether to record term positions; defaults to true when unset.
func (a *AnalysisConfig) PositionsOrDefault() bool {
	if a.Positions != nil {
		return *a.Positions
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// Debounce is how long the source must be quiet before a rebuild.
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration with paths resolved against dir.
func Default(dir string) *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.expandPaths(dir)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a build.
func (c *Config) Validate() error {
	if _, err := c.Index.BuildMode(); err != nil {
		return fmt.Errorf("index.mode: %w", err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", apperrors.ErrInvalidInput, c.Server.Port)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce must not be negative", apperrors.ErrInvalidInput)
	}
	return nil
}

func (c *Config) expandPaths(configDir string) {
	c.Index.Source = expandPath(c.Index.Source, configDir)
	c.Index.Location = expandPath(c.Index.Location, configDir)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
