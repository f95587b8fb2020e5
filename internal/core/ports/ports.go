package ports

import (
	"context"
	"time"

	"materiality/internal/data/history"
	"materiality/internal/engine/resolver"
	"materiality/internal/engine/source"
)

// SourceLoader produces parsed units for Python files.
type SourceLoader interface {
	Load(path string) (*source.Unit, error)
}

// ImportResolver drives import references to a terminal state.
type ImportResolver interface {
	Resolve(ref *resolver.ImportReference)
}

// HistorySource answers per-file and per-repository change questions.
type HistorySource interface {
	FileHistory(project, relPath string) (*history.FileRecord, bool)
	RepositoryTotals(project string) (*history.Totals, bool)
}

// RunStore persists completed materiality runs.
type RunStore interface {
	SaveRun(ctx context.Context, run history.Run) error
	ListRuns(ctx context.Context, since time.Time, limit int) ([]history.Run, error)
}
