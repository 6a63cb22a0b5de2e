package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// FileName is the per-project configuration file
	FileName = ".classindex.kdl"

	// EnvDBPath overrides the database location
	EnvDBPath = "CLASSINDEX_DB_PATH"
)

// Config holds indexing, watching and lookup settings for one project
type Config struct {
	Project Project
	Index   Index
	Watch   Watch
	Search  Search
	Include []string // doublestar patterns; empty means every .class and .jar
	Exclude []string
}

// Project identifies the class path root and its database
type Project struct {
	Root   string
	DBPath string
}

// Index controls the indexing pipeline
type Index struct {
	Workers              int
	BatchSize            int
	MaxFileSize          int64
	IndexStringConstants bool
	EnumerateStrings     bool
}

// Watch controls the file watcher
type Watch struct {
	Enabled    bool
	DebounceMs int
}

// Search controls lookups
type Search struct {
	CacheSize int
}

// ConfigError reports an invalid setting
type ConfigError struct {
	Section string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config %s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("config %s.%s: %v", e.Section, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns the built-in settings for root
func Default(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Index: Index{
			Workers:          runtime.NumCPU(),
			BatchSize:        50,
			MaxFileSize:      64 * 1024 * 1024,
			EnumerateStrings: true,
		},
		Watch: Watch{
			DebounceMs: 300,
		},
		Search: Search{
			CacheSize: 4096,
		},
		Include: []string{},
		Exclude: []string{},
	}
}

// Load reads .classindex.kdl from projectRoot when present, applies environment
// overrides and validates the result.
func Load(projectRoot string) (*Config, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		absRoot = projectRoot
	}

	cfg := Default(absRoot)
	path := filepath.Join(absRoot, FileName)
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := parseKDL(string(content), cfg); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides
func ApplyEnv(cfg *Config) {
	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.Project.DBPath = p
	}
}

// Validate checks settings and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Project.Root == "" {
		return &ConfigError{Section: "project", Field: "root", Err: errors.New("cannot be empty")}
	}
	if c.Index.Workers < 0 {
		return &ConfigError{Section: "index", Field: "workers", Err: fmt.Errorf("must not be negative, got %d", c.Index.Workers)}
	}
	if c.Index.Workers == 0 {
		c.Index.Workers = runtime.NumCPU()
	}
	if c.Index.BatchSize < 0 {
		return &ConfigError{Section: "index", Field: "batch_size", Err: fmt.Errorf("must not be negative, got %d", c.Index.BatchSize)}
	}
	if c.Index.BatchSize == 0 {
		c.Index.BatchSize = 50
	}
	if c.Index.MaxFileSize <= 0 {
		return &ConfigError{Section: "index", Field: "max_file_size", Err: fmt.Errorf("must be positive, got %d", c.Index.MaxFileSize)}
	}
	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Section: "watch", Field: "debounce_ms", Err: fmt.Errorf("must not be negative, got %d", c.Watch.DebounceMs)}
	}
	if c.Search.CacheSize < 0 {
		return &ConfigError{Section: "search", Field: "cache_size", Err: fmt.Errorf("must not be negative, got %d", c.Search.CacheSize)}
	}
	for _, p := range append(append([]string{}, c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return &ConfigError{Section: "patterns", Err: fmt.Errorf("invalid glob %q", p)}
		}
	}
	return nil
}
