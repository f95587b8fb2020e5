package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version     int         `toml:"version"`
	Project     Project     `toml:"project"`
	Environment Environment `toml:"environment"`
	Overrides   []Override  `toml:"overrides"`
	Crawl       Crawl       `toml:"crawl"`
	History     History     `toml:"history"`
	Output      Output      `toml:"output"`
	Telemetry   Telemetry   `toml:"telemetry"`
}

// Project is the tree the entry file lives in.
type Project struct {
	Name        string `toml:"name"`
	Root        string `toml:"root"`
	HistoryRoot string `toml:"history_root"`
	Entry       string `toml:"entry"`
}

// Environment pins the interpreter layout. Explicit directories win over
// what the interpreter probe reports.
type Environment struct {
	Python       string   `toml:"python"`
	Probe        *bool    `toml:"probe"`
	SearchPaths  []string `toml:"search_paths"`
	Stdlib       []string `toml:"stdlib"`
	SitePackages []string `toml:"site_packages"`
	Builtins     []string `toml:"builtins"`
}

type Override struct {
	Prefix      string `toml:"prefix"`
	Project     string `toml:"project"`
	Root        string `toml:"root"`
	Entry       string `toml:"entry"`
	HistoryRoot string `toml:"history_root"`
}

type Crawl struct {
	MaxSteps           int      `toml:"max_steps"`
	ImplicitSubmodules *bool    `toml:"implicit_submodules"`
	Exclude            []string `toml:"exclude"`
	CacheSize          int      `toml:"cache_size"`
}

type History struct {
	Enabled    *bool  `toml:"enabled"`
	CachePath  string `toml:"cache_path"`
	GitBinary  string `toml:"git_binary"`
	MaxCommits int    `toml:"max_commits"`
}

type Output struct {
	Tree       string `toml:"tree"`
	AuthorsTSV string `toml:"authors_tsv"`
	Summary    *bool  `toml:"summary"`
}

type Telemetry struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
	Metrics      string `toml:"metrics"`
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func (c Crawl) Implicit() bool { return boolOr(c.ImplicitSubmodules, true) }
func (h History) IsEnabled() bool { return boolOr(h.Enabled, true) }
func (o Output) ShowSummary() bool { return boolOr(o.Summary, true) }
func (e Environment) ShouldProbe() bool { return boolOr(e.Probe, true) }

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Write encodes cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
