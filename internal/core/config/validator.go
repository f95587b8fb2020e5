package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateProject(cfg *Config) error {
	if strings.TrimSpace(cfg.Project.Root) == "" {
		return fmt.Errorf("project.root must not be empty")
	}
	if entry := cfg.Project.Entry; entry != "" && filepath.Ext(entry) != ".py" {
		return fmt.Errorf("project.entry must be a .py file, got %q", entry)
	}
	return nil
}

func validateOverrides(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Overrides))
	for i, o := range cfg.Overrides {
		ref := fmt.Sprintf("overrides[%d]", i)
		if o.Prefix == "" {
			return fmt.Errorf("%s.prefix must not be empty", ref)
		}
		for _, part := range strings.Split(o.Prefix, ".") {
			if !isIdentifier(part) {
				return fmt.Errorf("%s.prefix %q is not a dotted module name", ref, o.Prefix)
			}
		}
		if o.Root == "" {
			return fmt.Errorf("%s.root must not be empty", ref)
		}
		if filepath.IsAbs(o.Entry) {
			return fmt.Errorf("%s.entry must be relative to root, got %q", ref, o.Entry)
		}
		if seen[o.Prefix] {
			return fmt.Errorf("duplicate override prefix %q", o.Prefix)
		}
		seen[o.Prefix] = true
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case r > 127:
		default:
			return false
		}
	}
	return true
}

func validateCrawl(cfg *Config) error {
	if cfg.Crawl.MaxSteps < 0 {
		return fmt.Errorf("crawl.max_steps must be >= 0, got %d", cfg.Crawl.MaxSteps)
	}
	for _, pattern := range cfg.Crawl.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("crawl.exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.MaxCommits < 0 {
		return fmt.Errorf("history.max_commits must be >= 0, got %d", cfg.History.MaxCommits)
	}
	if cfg.History.IsEnabled() && strings.TrimSpace(cfg.History.GitBinary) == "" {
		return fmt.Errorf("history.git_binary must not be empty when history is enabled")
	}
	return nil
}

func validateTelemetry(cfg *Config) error {
	endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
	if endpoint == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return fmt.Errorf("telemetry.otlp_endpoint must be host:port, got %q", endpoint)
	}
	return nil
}
