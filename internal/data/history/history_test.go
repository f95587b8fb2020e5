package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = "COMMIT\x1fc3\x1fAda\x1fada@example.com\x1f2026-03-03T10:00:00Z\n" +
	"\n" +
	"4\t1\tpkg/{util.py => helpers.py}\n" +
	"-\t-\tlogo.png\n" +
	"COMMIT\x1fc2\x1fAda Lovelace\x1fada@example.com\x1f2026-03-02T10:00:00Z\n" +
	"\n" +
	"2\t0\tpkg/util.py\n" +
	"1\t1\tmain.py\n" +
	"COMMIT\x1fc1\x1fBob\x1fbob@example.com\x1f2026-03-01T10:00:00Z\n" +
	"\n" +
	"10\t0\tpkg/util.py\n" +
	"5\t0\tmain.py\n"

func TestChangeStats_MergeIsAssociativeAndCommutative(t *testing.T) {
	a := NewChangeStats(3, 1)
	b := NewChangeStats(0, 4)
	c := ChangeStats{Added: 2, Removed: 2, Count: 5}

	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
	assert.Equal(t, a.Merge(b), b.Merge(a))
	assert.Equal(t, a, a.Merge(ChangeStats{}))
	assert.True(t, ChangeStats{}.IsZero())

	sum := a.Merge(b)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 8, sum.Changes())
	assert.Equal(t, -2, sum.Delta())
	assert.Equal(t, "(+3,-5)", sum.String())

	sum.Add(1, 0)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, 4, sum.Added)
}

func TestAuthorBook_MergesByNameOrEmail(t *testing.T) {
	book := NewAuthorBook(nil)
	first := book.Find("Ada", "ada@example.com")
	second := book.Find("Ada Lovelace", "ada@example.com")
	third := book.Find("Ada Lovelace", "ada@work.example.com")
	other := book.Find("Bob", "bob@example.com")

	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.NotSame(t, first, other)
	assert.Len(t, book.Authors(), 2)

	assert.Equal(t, "Ada Lovelace", first.Name())
	assert.Equal(t, "ada@example.com", first.Email())
	assert.Equal(t, "Ada Lovelace <ada@example.com>", first.Identity())
	assert.Equal(t, []string{"Ada", "Ada Lovelace"}, first.Names())
	assert.Equal(t, []string{"ada@example.com", "ada@work.example.com"}, first.Emails())
}

func TestParseLog_RenamesAndBinaryRows(t *testing.T) {
	commits, err := ParseLog([]byte(sampleLog))
	require.NoError(t, err)
	require.Len(t, commits, 3)

	newest := commits[0]
	assert.Equal(t, "c3", newest.Hash)
	assert.Equal(t, "Ada", newest.AuthorName)
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), newest.When.UTC())
	require.Len(t, newest.Files, 1, "binary rows are skipped")
	assert.Equal(t, FileChange{Path: "pkg/helpers.py", OldPath: "pkg/util.py", Added: 4, Removed: 1}, newest.Files[0])

	assert.Len(t, commits[1].Files, 2)
	assert.Len(t, commits[2].Files, 2)
}

func TestParseLog_MalformedHeader(t *testing.T) {
	_, err := ParseLog([]byte("COMMIT\x1fabc\x1fonly-two\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed commit header")
}

func TestSplitRename(t *testing.T) {
	cases := []struct {
		spec, path, old string
	}{
		{"a.py", "a.py", ""},
		{"a.py => b.py", "b.py", "a.py"},
		{"pkg/{a.py => b.py}", "pkg/b.py", "pkg/a.py"},
		{"{old => new}/mod.py", "new/mod.py", "old/mod.py"},
		{"src/{ => sub}/mod.py", "src/sub/mod.py", "src/mod.py"},
		{"src/{sub => }/mod.py", "src/mod.py", "src/sub/mod.py"},
	}
	for _, tc := range cases {
		path, old := splitRename(tc.spec)
		assert.Equal(t, tc.path, path, tc.spec)
		assert.Equal(t, tc.old, old, tc.spec)
	}
}

func TestIndex_FollowsRenamesToNewestPath(t *testing.T) {
	commits, err := ParseLog([]byte(sampleLog))
	require.NoError(t, err)

	ix := NewIndex(nil)
	ix.AddCommits(commits)

	rec, ok := ix.File("pkg/helpers.py")
	require.True(t, ok)
	assert.Equal(t, ChangeStats{Added: 16, Removed: 1, Count: 3}, rec.Stats)
	assert.Len(t, rec.Changes, 3)
	assert.Equal(t, 48*time.Hour, rec.Age())

	viaOld, ok := ix.File("pkg/util.py")
	require.True(t, ok)
	assert.Same(t, rec, viaOld)

	authors := rec.Authors()
	require.Len(t, authors, 2)
	assert.Equal(t, "Ada <ada@example.com>", authors[0].Author)
	assert.Equal(t, ChangeStats{Added: 6, Removed: 1, Count: 2}, authors[0].Stats)
	assert.Equal(t, "Bob <bob@example.com>", authors[1].Author)

	totals := ix.Totals()
	assert.Equal(t, 3, totals.Commits)
	assert.Equal(t, 2, totals.Files)
	assert.Equal(t, ChangeStats{Added: 22, Removed: 2, Count: 5}, totals.Stats)
	assert.Len(t, totals.Authors(), 2)
	assert.Len(t, ix.Authors(), 2)
}

type fakeSource struct {
	head    string
	commits []Commit
	mined   int
}

func (f *fakeSource) Head(context.Context, string) (string, error) { return f.head, nil }

func (f *fakeSource) Mine(context.Context, string) ([]Commit, error) {
	f.mined++
	return f.commits, nil
}

func TestRepository_LoadUsesCacheForSameHead(t *testing.T) {
	commits, err := ParseLog([]byte(sampleLog))
	require.NoError(t, err)

	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	src := &fakeSource{head: "c3", commits: commits}

	first := NewRepository(src, store, nil)
	require.NoError(t, first.Load(ctx, "app", "/repo"))
	require.NoError(t, first.Load(ctx, "app", "/repo"))
	assert.Equal(t, 1, src.mined)

	second := NewRepository(src, store, nil)
	require.NoError(t, second.Load(ctx, "app", "/repo"))
	assert.Equal(t, 1, src.mined, "same head should be served from the store")

	rec, ok := second.FileHistory("app", "pkg/helpers.py")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Stats.Count)

	totals, ok := second.RepositoryTotals("app")
	require.True(t, ok)
	assert.Equal(t, 3, totals.Commits)

	_, ok = second.RepositoryTotals("other")
	assert.False(t, ok)

	src.head = "c4"
	third := NewRepository(src, store, nil)
	require.NoError(t, third.Load(ctx, "app", "/repo"))
	assert.Equal(t, 2, src.mined, "a new head is mined again")
}

func TestStore_SaveLoadMinedRoundTrip(t *testing.T) {
	commits, err := ParseLog([]byte(sampleLog))
	require.NoError(t, err)

	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveMined(ctx, "app", "c3", commits))

	got, ok, err := store.LoadMined(ctx, "app", "c3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 3)
	assert.Equal(t, commits[0].Files, got[0].Files)
	assert.Equal(t, commits[2].AuthorEmail, got[2].AuthorEmail)
	assert.True(t, commits[1].When.Equal(got[1].When))

	_, ok, err = store.LoadMined(ctx, "app", "other-head")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.LoadMined(ctx, "unknown", "c3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveAndListRuns(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	runs := NewAdapter(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(ctx, Run{ID: "r1", Timestamp: base, Entry: "main.py", Project: "app", Files: 3, Lines: 40, ReachableChanges: 10, RepositoryChanges: 20, Ratio: 0.5}))
	require.NoError(t, runs.SaveRun(ctx, Run{ID: "r2", Timestamp: base.Add(time.Hour), Entry: "main.py", Project: "app", Files: 4, Lines: 42, Authors: 2}))
	require.NoError(t, runs.SaveRun(ctx, Run{ID: "r1", Timestamp: base, Entry: "main.py", Project: "app", Files: 5}))

	all, err := runs.ListRuns(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ID)
	assert.Equal(t, 5, all[0].Files, "saving the same id upserts")
	assert.True(t, base.Equal(all[0].Timestamp))

	recent, err := runs.ListRuns(ctx, base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].ID)
	assert.Equal(t, 2, recent[0].Authors)

	limited, err := runs.ListRuns(ctx, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.Error(t, store.SaveRun(ctx, Run{}))
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := Open(tmpDir)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}
