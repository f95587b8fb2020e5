package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store caches mined commits per project head and records completed runs.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func projectKey(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		return "default"
	}
	return project
}

// SaveMined replaces the cached commits of a project with those mined at head.
func (s *Store) SaveMined(ctx context.Context, project, head string, commits []Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := projectKey(project)
	return s.withRetry("save mined history", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_changes WHERE project_key = ?`, key); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO file_changes (
  project_key, seq, commit_hash, author_name, author_email, ts_utc, path, old_path, added, removed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		seq := 0
		for _, c := range commits {
			ts := c.When.UTC().Format(time.RFC3339Nano)
			for _, fc := range c.Files {
				if _, err := stmt.ExecContext(ctx, key, seq, c.Hash, c.AuthorName, c.AuthorEmail, ts, fc.Path, fc.OldPath, fc.Added, fc.Removed); err != nil {
					return err
				}
				seq++
			}
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO mined_heads (project_key, head, commit_count, mined_at_utc) VALUES (?, ?, ?, ?)
ON CONFLICT(project_key) DO UPDATE SET
  head=excluded.head,
  commit_count=excluded.commit_count,
  mined_at_utc=excluded.mined_at_utc
`, key, head, len(commits), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// LoadMined returns the cached commits for project when they were mined at head.
// Commits without file rows are not cached and do not come back.
func (s *Store) LoadMined(ctx context.Context, project, head string) ([]Commit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := projectKey(project)
	var cached string
	err := s.withRetry("load mined head", func() error {
		return s.db.QueryRowContext(ctx, `SELECT head FROM mined_heads WHERE project_key = ?`, key).Scan(&cached)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cached != head {
		return nil, false, nil
	}

	var rows *sql.Rows
	err = s.withRetry("load mined history", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT commit_hash, author_name, author_email, ts_utc, path, old_path, added, removed
FROM file_changes
WHERE project_key = ?
ORDER BY seq ASC
`, key)
		return qErr
	})
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	commits := make([]Commit, 0)
	for rows.Next() {
		var (
			hash, name, email, tsRaw string
			fc                       FileChange
		)
		if err := rows.Scan(&hash, &name, &email, &tsRaw, &fc.Path, &fc.OldPath, &fc.Added, &fc.Removed); err != nil {
			return nil, false, fmt.Errorf("scan file change row: %w", err)
		}
		if n := len(commits); n == 0 || commits[n-1].Hash != hash {
			ts, err := time.Parse(time.RFC3339Nano, tsRaw)
			if err != nil {
				return nil, false, fmt.Errorf("parse change timestamp %q: %w", tsRaw, err)
			}
			commits = append(commits, Commit{Hash: hash, AuthorName: name, AuthorEmail: email, When: ts})
		}
		last := &commits[len(commits)-1]
		last.Files = append(last.Files, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate file change rows: %w", err)
	}
	return commits, true, nil
}

func (s *Store) SaveRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}

	query := `
INSERT INTO runs (
  run_id, ts_utc, entry, project_key, file_count, line_count, author_count,
  reachable_changes, repository_changes, ratio
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  ts_utc=excluded.ts_utc,
  entry=excluded.entry,
  project_key=excluded.project_key,
  file_count=excluded.file_count,
  line_count=excluded.line_count,
  author_count=excluded.author_count,
  reachable_changes=excluded.reachable_changes,
  repository_changes=excluded.repository_changes,
  ratio=excluded.ratio
`
	return s.withRetry("save run", func() error {
		_, err := s.db.ExecContext(
			ctx,
			query,
			run.ID,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			run.Entry,
			projectKey(run.Project),
			run.Files,
			run.Lines,
			run.Authors,
			run.ReachableChanges,
			run.RepositoryChanges,
			run.Ratio,
		)
		return err
	})
}

// ListRuns returns runs at or after since, oldest first. A limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  run_id, ts_utc, entry, project_key, file_count, line_count, author_count,
  reachable_changes, repository_changes, ratio
FROM runs
`
	args := make([]any, 0, 2)
	if !since.IsZero() {
		base += " WHERE ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, run_id ASC"
	if limit > 0 {
		base += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("list runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			tsRaw string
			run   Run
		)
		if err := rows.Scan(
			&run.ID,
			&tsRaw,
			&run.Entry,
			&run.Project,
			&run.Files,
			&run.Lines,
			&run.Authors,
			&run.ReachableChanges,
			&run.RepositoryChanges,
			&run.Ratio,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
