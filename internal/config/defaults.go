package config

import (
	"time"

	"github.com/hyperjump/kazoeru/internal/keyword"
	"github.com/hyperjump/kazoeru/internal/storage"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Index.Source == "" {
		cfg.Index.Source = "./docs"
	}
	if cfg.Index.Location == "" {
		cfg.Index.Location = "./indexes"
	}
	if cfg.Index.Mode == "" {
		cfg.Index.Mode = "create"
	}
	if cfg.Index.Engine == "" {
		cfg.Index.Engine = storage.DefaultEngine
	}
	if cfg.Analysis.Analyzer == "" {
		cfg.Analysis.Analyzer = keyword.DefaultAnalyzer
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
