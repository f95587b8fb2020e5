package history

import (
	"context"
	"time"
)

// Adapter bridges Store to the core RunStore port.
type Adapter struct {
	store *Store
}

func NewAdapter(store *Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) SaveRun(ctx context.Context, run Run) error {
	return a.store.SaveRun(ctx, run)
}

func (a *Adapter) ListRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	return a.store.ListRuns(ctx, since, limit)
}
