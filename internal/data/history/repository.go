package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"materiality/internal/shared/observability"
)

// CommitSource mines commits from a working tree.
type CommitSource interface {
	Head(ctx context.Context, dir string) (string, error)
	Mine(ctx context.Context, dir string) ([]Commit, error)
}

// Repository holds one history index per project.
type Repository struct {
	source CommitSource
	store  *Store
	logger *slog.Logger

	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRepository builds a Repository. A nil store disables the mined-commit cache.
func NewRepository(source CommitSource, store *Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		source:  source,
		store:   store,
		logger:  logger,
		indexes: make(map[string]*Index),
	}
}

// Load mines (or reads from cache) the history of project rooted at dir.
// Loading a project twice is a no-op.
func (r *Repository) Load(ctx context.Context, project, dir string) error {
	r.mu.RLock()
	_, done := r.indexes[project]
	r.mu.RUnlock()
	if done {
		return nil
	}

	head, err := r.source.Head(ctx, dir)
	if err != nil {
		return err
	}

	if r.store != nil {
		start := time.Now()
		commits, ok, err := r.store.LoadMined(ctx, project, head)
		if err != nil {
			r.logger.Warn("history cache unreadable", "project", project, "error", err)
		} else if ok {
			observability.HistoryMineDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
			r.logger.Debug("history loaded from cache", "project", project, "head", head, "commits", len(commits))
			r.Add(project, commits)
			return nil
		}
	}

	start := time.Now()
	commits, err := r.source.Mine(ctx, dir)
	if err != nil {
		return err
	}
	observability.HistoryMineDuration.WithLabelValues("git").Observe(time.Since(start).Seconds())
	r.logger.Info("history mined", "project", project, "head", head, "commits", len(commits))

	if r.store != nil {
		if err := r.store.SaveMined(ctx, project, head, commits); err != nil {
			r.logger.Warn("history cache not saved", "project", project, "error", err)
		}
	}
	r.Add(project, commits)
	return nil
}

// Add indexes commits for project, replacing any previous index.
func (r *Repository) Add(project string, commits []Commit) {
	ix := NewIndex(r.logger)
	ix.AddCommits(commits)
	r.mu.Lock()
	r.indexes[project] = ix
	r.mu.Unlock()
}

func (r *Repository) index(project string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ix, ok := r.indexes[project]
	return ix, ok
}

func (r *Repository) FileHistory(project, relPath string) (*FileRecord, bool) {
	ix, ok := r.index(project)
	if !ok {
		return nil, false
	}
	return ix.File(relPath)
}

func (r *Repository) RepositoryTotals(project string) (*Totals, bool) {
	ix, ok := r.index(project)
	if !ok {
		return nil, false
	}
	return ix.Totals(), true
}
