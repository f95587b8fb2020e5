package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"materiality/internal/core/config"
	"materiality/internal/core/ports"
	"materiality/internal/data/history"
	"materiality/internal/engine/resolver"
	"materiality/internal/engine/source"
)

// App owns the long-lived pieces of an analysis: configuration, the parsed
// source cache and the history layer. Each Run builds its own graph.
type App struct {
	Config *config.Config

	logger   *slog.Logger
	provider *source.Provider
	env      *resolver.Environment
	commits  history.CommitSource
	store    *history.Store
	runs     ports.RunStore
	history  *history.Repository
	now      func() time.Time
}

type Option func(*App)

// WithEnvironment skips the interpreter probe and uses env as is.
func WithEnvironment(env resolver.Environment) Option {
	return func(a *App) { a.env = &env }
}

// WithCommitSource replaces the git CLI miner.
func WithCommitSource(src history.CommitSource) Option {
	return func(a *App) { a.commits = src }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &App{Config: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg.Project.Root = root
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(root)
	}
	if cfg.History.CachePath != "" && !filepath.IsAbs(cfg.History.CachePath) {
		cfg.History.CachePath = filepath.Join(root, cfg.History.CachePath)
	}

	provider, err := source.NewProvider(cfg.Crawl.CacheSize)
	if err != nil {
		return nil, err
	}
	a.provider = provider

	if !cfg.History.IsEnabled() {
		return a, nil
	}
	if a.commits == nil {
		a.commits = history.NewMiner(cfg.History.GitBinary, cfg.History.MaxCommits)
	}
	store, err := history.Open(cfg.History.CachePath)
	if err != nil {
		a.logger.Warn("history cache disabled", "path", cfg.History.CachePath, "error", err)
	} else {
		a.store = store
		a.runs = history.NewAdapter(store)
	}
	a.history = history.NewRepository(a.commits, a.store, a.logger)
	return a, nil
}

// Runs lists persisted runs, oldest first.
func (a *App) Runs(ctx context.Context, since time.Time, limit int) ([]history.Run, error) {
	if a.runs == nil {
		return nil, fmt.Errorf("run history is not available")
	}
	return a.runs.ListRuns(ctx, since, limit)
}

func (a *App) Close() error {
	return a.store.Close()
}
