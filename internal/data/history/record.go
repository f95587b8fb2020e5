package history

import (
	"log/slog"
	"sort"
	"time"
)

// Commit is one mined commit with its per-file line counts.
type Commit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	When        time.Time
	Files       []FileChange
}

type FileChange struct {
	Path    string
	OldPath string
	Added   int
	Removed int
}

type Change struct {
	Commit string
	Path   string
	Author *Author
	Stats  ChangeStats
	When   time.Time
}

// AuthorStats pairs a display identity with that author's changes.
type AuthorStats struct {
	Author string
	Stats  ChangeStats
}

type authorTally struct {
	order []*Author
	stats map[*Author]*ChangeStats
}

func (t *authorTally) add(a *Author, s ChangeStats) {
	if t.stats == nil {
		t.stats = make(map[*Author]*ChangeStats)
	}
	cur, ok := t.stats[a]
	if !ok {
		cur = &ChangeStats{}
		t.stats[a] = cur
		t.order = append(t.order, a)
	}
	*cur = cur.Merge(s)
}

func (t *authorTally) list() []AuthorStats {
	out := make([]AuthorStats, 0, len(t.order))
	for _, a := range t.order {
		out = append(out, AuthorStats{Author: a.Identity(), Stats: *t.stats[a]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Author < out[j].Author })
	return out
}

// FileRecord is the history of one repository-relative path.
type FileRecord struct {
	Path    string
	Stats   ChangeStats
	Oldest  time.Time
	Newest  time.Time
	Changes []Change

	authors authorTally
}

func (f *FileRecord) add(c Change) {
	f.Changes = append(f.Changes, c)
	f.Stats = f.Stats.Merge(c.Stats)
	f.authors.add(c.Author, c.Stats)
	if f.Oldest.IsZero() || c.When.Before(f.Oldest) {
		f.Oldest = c.When
	}
	if c.When.After(f.Newest) {
		f.Newest = c.When
	}
}

// Authors returns per-author stats sorted by identity.
func (f *FileRecord) Authors() []AuthorStats {
	return f.authors.list()
}

func (f *FileRecord) AuthorSet() []string {
	stats := f.Authors()
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Author
	}
	return out
}

// Age is the span between the oldest and newest change.
func (f *FileRecord) Age() time.Duration {
	if f.Oldest.IsZero() {
		return 0
	}
	return f.Newest.Sub(f.Oldest)
}

// Totals summarises a whole repository.
type Totals struct {
	Stats   ChangeStats
	Files   int
	Commits int
	Oldest  time.Time
	Newest  time.Time

	authors authorTally
}

func (t *Totals) Authors() []AuthorStats {
	return t.authors.list()
}

// Index holds the mined history of one project.
type Index struct {
	book    *AuthorBook
	files   map[string]*FileRecord
	renamed map[string]string
	totals  Totals
}

func NewIndex(logger *slog.Logger) *Index {
	return &Index{
		book:    NewAuthorBook(logger),
		files:   make(map[string]*FileRecord),
		renamed: make(map[string]string),
	}
}

// AddCommits indexes commits given newest first, as git log prints them.
// Changes made before a rename are filed under the newest path.
func (ix *Index) AddCommits(commits []Commit) {
	for _, c := range commits {
		ix.addCommit(c)
	}
}

func (ix *Index) addCommit(c Commit) {
	author := ix.book.Find(c.AuthorName, c.AuthorEmail)
	touched := false
	for _, fc := range c.Files {
		path := ix.current(fc.Path)
		if fc.OldPath != "" && fc.OldPath != fc.Path {
			ix.renamed[fc.OldPath] = path
		}
		stats := NewChangeStats(fc.Added, fc.Removed)
		change := Change{Commit: c.Hash, Path: path, Author: author, Stats: stats, When: c.When}

		rec, ok := ix.files[path]
		if !ok {
			rec = &FileRecord{Path: path}
			ix.files[path] = rec
		}
		rec.add(change)
		author.Stats = author.Stats.Merge(stats)
		ix.totals.Stats = ix.totals.Stats.Merge(stats)
		ix.totals.authors.add(author, stats)
		touched = true
	}
	if !touched {
		return
	}
	ix.totals.Commits++
	ix.totals.Files = len(ix.files)
	if ix.totals.Oldest.IsZero() || c.When.Before(ix.totals.Oldest) {
		ix.totals.Oldest = c.When
	}
	if c.When.After(ix.totals.Newest) {
		ix.totals.Newest = c.When
	}
}

func (ix *Index) current(path string) string {
	seen := make(map[string]bool)
	for {
		next, ok := ix.renamed[path]
		if !ok || seen[path] {
			return path
		}
		seen[path] = true
		path = next
	}
}

func (ix *Index) File(path string) (*FileRecord, bool) {
	rec, ok := ix.files[ix.current(path)]
	return rec, ok
}

func (ix *Index) Totals() *Totals {
	return &ix.totals
}

func (ix *Index) Authors() []*Author {
	return ix.book.Authors()
}
