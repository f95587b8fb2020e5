package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: MATERIALITY_[SECTION]_[KEY] (e.g., MATERIALITY_HISTORY_GIT_BINARY).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Project.Root, "MATERIALITY_PROJECT_ROOT")
	setEnvString(&cfg.Project.Entry, "MATERIALITY_PROJECT_ENTRY")

	setEnvString(&cfg.Environment.Python, "MATERIALITY_ENVIRONMENT_PYTHON")

	setEnvInt(&cfg.Crawl.MaxSteps, "MATERIALITY_CRAWL_MAX_STEPS")

	setEnvString(&cfg.History.CachePath, "MATERIALITY_HISTORY_CACHE_PATH")
	setEnvString(&cfg.History.GitBinary, "MATERIALITY_HISTORY_GIT_BINARY")
	setEnvInt(&cfg.History.MaxCommits, "MATERIALITY_HISTORY_MAX_COMMITS")
	setEnvBoolPtr(&cfg.History.Enabled, "MATERIALITY_HISTORY_ENABLED")

	setEnvString(&cfg.Telemetry.OTLPEndpoint, "MATERIALITY_TELEMETRY_OTLP_ENDPOINT")
	setEnvString(&cfg.Telemetry.Metrics, "MATERIALITY_TELEMETRY_METRICS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.TrimSpace(val)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}
