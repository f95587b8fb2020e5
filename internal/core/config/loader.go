package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultCacheSize = 256
	defaultGit       = "git"
	defaultPython    = "python3"
)

// Load reads path, fills defaults and validates. Relative paths in the file
// are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalize(&cfg)
	ApplyEnvOverrides(&cfg)

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	resolvePaths(&cfg, base)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs every section validator in order.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateProject,
		validateOverrides,
		validateCrawl,
		validateHistory,
		validateTelemetry,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Project.Root) == "" {
		cfg.Project.Root = "."
	}
	if strings.TrimSpace(cfg.Environment.Python) == "" {
		cfg.Environment.Python = defaultPython
	}
	if cfg.Crawl.CacheSize <= 0 {
		cfg.Crawl.CacheSize = defaultCacheSize
	}
	if strings.TrimSpace(cfg.History.GitBinary) == "" {
		cfg.History.GitBinary = defaultGit
	}
	if strings.TrimSpace(cfg.History.CachePath) == "" {
		cfg.History.CachePath = filepath.Join(".materiality", "history.db")
	}
	for i := range cfg.Overrides {
		o := &cfg.Overrides[i]
		if strings.TrimSpace(o.Entry) == "" {
			o.Entry = filepath.ToSlash(filepath.Join(strings.ReplaceAll(o.Prefix, ".", "/"), "__init__.py"))
		}
		if strings.TrimSpace(o.Project) == "" {
			o.Project = o.Prefix
		}
	}
}

func normalize(cfg *Config) {
	cfg.Project.Name = strings.TrimSpace(cfg.Project.Name)
	cfg.Project.Root = strings.TrimSpace(cfg.Project.Root)
	cfg.Project.HistoryRoot = strings.TrimSpace(cfg.Project.HistoryRoot)
	cfg.Project.Entry = strings.TrimSpace(cfg.Project.Entry)
	for i := range cfg.Overrides {
		o := &cfg.Overrides[i]
		o.Prefix = strings.Trim(strings.TrimSpace(o.Prefix), ".")
		o.Project = strings.TrimSpace(o.Project)
		o.Root = strings.TrimSpace(o.Root)
		o.Entry = strings.TrimSpace(o.Entry)
		o.HistoryRoot = strings.TrimSpace(o.HistoryRoot)
	}
	cfg.Crawl.Exclude = trimAll(cfg.Crawl.Exclude)
	cfg.Environment.SearchPaths = trimAll(cfg.Environment.SearchPaths)
	cfg.Environment.Stdlib = trimAll(cfg.Environment.Stdlib)
	cfg.Environment.SitePackages = trimAll(cfg.Environment.SitePackages)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func resolvePaths(cfg *Config, base string) {
	cfg.Project.Root = ResolveRelative(base, cfg.Project.Root)
	if cfg.Project.HistoryRoot != "" {
		cfg.Project.HistoryRoot = ResolveRelative(base, cfg.Project.HistoryRoot)
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	for i := range cfg.Overrides {
		if cfg.Overrides[i].Root != "" {
			cfg.Overrides[i].Root = ResolveRelative(base, cfg.Overrides[i].Root)
		}
	}
	for _, list := range []*[]string{&cfg.Environment.SearchPaths, &cfg.Environment.Stdlib, &cfg.Environment.SitePackages} {
		for i, dir := range *list {
			(*list)[i] = ResolveRelative(base, dir)
		}
	}
	if !filepath.IsAbs(cfg.History.CachePath) {
		cfg.History.CachePath = ResolveRelative(cfg.Project.Root, cfg.History.CachePath)
	}
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}
