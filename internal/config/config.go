package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the cxxmodel.yaml (or cxxmodel.toml) configuration.
type Config struct {
	Repo          string          `yaml:"repo" toml:"repo"`
	Ignore        []string        `yaml:"ignore" toml:"ignore"`
	Extensions    []string        `yaml:"extensions" toml:"extensions"`
	Workers       int             `yaml:"workers" toml:"workers"`
	Projects      []ProjectConfig `yaml:"projects" toml:"projects"`
	Render        RenderConfig    `yaml:"render" toml:"render"`
	LineCacheSize int             `yaml:"line_cache_size" toml:"line_cache_size"`
	Watch         WatchConfig     `yaml:"watch" toml:"watch"`
	Output        OutputConfig    `yaml:"output" toml:"output"`
	Log           LogConfig       `yaml:"log" toml:"log"`
}

// ProjectConfig describes one project: a source root parsed under one or
// more preprocessor contexts.
type ProjectConfig struct {
	Name        string          `yaml:"name" toml:"name"`
	Root        string          `yaml:"root" toml:"root"` // relative to Repo
	Contexts    []ContextConfig `yaml:"contexts" toml:"contexts"`
	IncludeDirs []string        `yaml:"include_dirs" toml:"include_dirs"`
}

// ContextConfig is one set of predefined macros.
type ContextConfig struct {
	Name    string            `yaml:"name" toml:"name"`
	Defines map[string]string `yaml:"defines" toml:"defines"`
}

// RenderConfig tunes the AST-to-model renderer.
type RenderConfig struct {
	LocalBlocks   bool `yaml:"local_blocks" toml:"local_blocks"`
	GlobalResolve bool `yaml:"global_resolve" toml:"global_resolve"`
	DumpOnError   bool `yaml:"dump_on_error" toml:"dump_on_error"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms" toml:"debounce_ms"`
}

// OutputConfig controls where and how output artifacts are generated.
type OutputConfig struct {
	Dir              string `yaml:"dir" toml:"dir"`
	Compress         bool   `yaml:"compress" toml:"compress"`
	MaxOutlineTokens int    `yaml:"max_outline_tokens" toml:"max_outline_tokens"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Repo: ".",
		Ignore: []string{
			".git/**",
			"build/**",
			"out/**",
			"third_party/**",
			"**/CMakeFiles/**",
			".cxxmodel/**",
		},
		Workers:       runtime.NumCPU(),
		LineCacheSize: 256,
		Render: RenderConfig{
			GlobalResolve: true,
		},
		Watch: WatchConfig{
			DebounceMS: 200,
		},
		Output: OutputConfig{
			Dir:              ".cxxmodel",
			MaxOutlineTokens: 4000,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a configuration file from the given path. Files ending in .toml
// are TOML, everything else YAML. Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Ensure required defaults
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = ".cxxmodel"
	}
	if cfg.Output.MaxOutlineTokens == 0 {
		cfg.Output.MaxOutlineTokens = 4000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.LineCacheSize <= 0 {
		cfg.LineCacheSize = 256
	}
	if cfg.Watch.DebounceMS <= 0 {
		cfg.Watch.DebounceMS = 200
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks project and context names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate project %q", p.Name)
		}
		seen[p.Name] = true
		ctxs := make(map[string]bool, len(p.Contexts))
		for j, ctx := range p.Contexts {
			if ctx.Name == "" {
				return fmt.Errorf("project %q: context %d has no name", p.Name, j)
			}
			if ctxs[ctx.Name] {
				return fmt.Errorf("project %q: duplicate context %q", p.Name, ctx.Name)
			}
			ctxs[ctx.Name] = true
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// EffectiveProjects returns the configured projects, or a single project
// named after the repository covering all of it when none are configured.
func (c *Config) EffectiveProjects() []ProjectConfig {
	if len(c.Projects) > 0 {
		return c.Projects
	}
	name := filepath.Base(c.Repo)
	if abs, err := filepath.Abs(c.Repo); err == nil {
		name = filepath.Base(abs)
	}
	return []ProjectConfig{{Name: name, Root: "."}}
}
