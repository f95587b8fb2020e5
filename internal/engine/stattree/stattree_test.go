package stattree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"materiality/internal/data/history"
	"materiality/internal/engine/index"
	"materiality/internal/engine/registry"
	"materiality/internal/engine/resolver"
	"materiality/internal/engine/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newWalk(t *testing.T, root string, hist *history.Repository) *Walk {
	t.Helper()
	provider, err := source.NewProvider(32)
	require.NoError(t, err)
	reg := registry.New(provider, index.New(nil), registry.Project{Name: "main", Root: root}, nil, nil)
	env := resolver.Environment{ProjectRoots: []string{root}}
	res := resolver.New(resolver.NewPathFinder(env), resolver.NewCrawlArea(env), resolver.WithSymbolLookup(reg))
	if hist == nil {
		return New(reg, res, nil, nil)
	}
	return New(reg, res, hist, nil)
}

func cyclicProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, root, map[string]string{
		"main.py": "import a\nimport b\n",
		"a.py":    "import b\nimport main\n",
		"b.py":    "",
	})
	return root
}

func sampleHistory() *history.Repository {
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := history.NewRepository(nil, nil, nil)
	repo.Add("main", []history.Commit{
		{Hash: "c2", AuthorName: "Ada", AuthorEmail: "ada@example.com", When: day.Add(24 * time.Hour), Files: []history.FileChange{
			{Path: "a.py", Added: 3, Removed: 1},
		}},
		{Hash: "c1", AuthorName: "Bob", AuthorEmail: "bob@example.com", When: day, Files: []history.FileChange{
			{Path: "a.py", Added: 2},
			{Path: "b.py", Added: 5},
			{Path: "other.py", Added: 10},
		}},
	})
	return repo
}

func TestAggregate_CyclesExpandOnce(t *testing.T) {
	root := cyclicProject(t)
	w := newWalk(t, root, nil)

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)

	assert.Equal(t, "main", tree.Key)
	assert.False(t, tree.Repeat)
	require.Len(t, tree.Children, 2)

	a := tree.Children[0]
	assert.Equal(t, "a", a.Key)
	require.Len(t, a.Children, 2)
	assert.Equal(t, "b", a.Children[0].Key)
	assert.False(t, a.Children[0].Repeat)
	assert.Equal(t, "main", a.Children[1].Key)
	assert.True(t, a.Children[1].Repeat)
	assert.Empty(t, a.Children[1].Children)

	b := tree.Children[1]
	assert.Equal(t, "b", b.Key)
	assert.True(t, b.Repeat)

	assert.Equal(t, 2, w.Visits("main"))
	assert.Equal(t, 1, w.Visits("a"))
	assert.Equal(t, 2, w.Visits("b"))
	assert.Equal(t, 0, w.Visits("missing"))
	assert.Len(t, w.Expanded(), 3)
}

func TestAggregate_SameStemInDifferentDirectories(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"main.py":         "import helper\nimport tools.helper\n",
		"helper.py":       "x = 1\n",
		"tools/helper.py": "y = 2\n",
	})
	w := newWalk(t, root, nil)

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "helper", tree.Children[0].Key)
	assert.Equal(t, "tools.helper", tree.Children[1].Key)
	assert.False(t, tree.Children[0].Repeat)
	assert.False(t, tree.Children[1].Repeat)
	assert.Equal(t, 1, w.Visits("helper"))
	assert.Equal(t, 1, w.Visits("tools.helper"))

	s := Summarize(tree, nil)
	assert.Equal(t, 3, s.Files)
	assert.Equal(t, 4, s.Lines)
}

func TestAggregate_SameFileUnderTwoNamesCountsOnce(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"main.py":  "import lib.x\nimport x\n",
		"lib/x.py": "",
	})
	provider, err := source.NewProvider(32)
	require.NoError(t, err)
	reg := registry.New(provider, index.New(nil), registry.Project{Name: "main", Root: root}, nil, nil)
	env := resolver.Environment{ProjectRoots: []string{root, filepath.Join(root, "lib")}}
	res := resolver.New(resolver.NewPathFinder(env), resolver.NewCrawlArea(env), resolver.WithSymbolLookup(reg))
	w := New(reg, res, nil, nil)

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "lib.x", tree.Children[0].Key)
	assert.False(t, tree.Children[0].Repeat)
	assert.Equal(t, "lib.x", tree.Children[1].Key)
	assert.True(t, tree.Children[1].Repeat)
	assert.Equal(t, 2, w.Visits("lib.x"))

	assert.Equal(t, 2, Summarize(tree, nil).Files)
}

func TestAggregate_WithPathsDropsOtherEdges(t *testing.T) {
	root := cyclicProject(t)
	provider, err := source.NewProvider(32)
	require.NoError(t, err)
	reg := registry.New(provider, index.New(nil), registry.Project{Name: "main", Root: root}, nil, nil)
	env := resolver.Environment{ProjectRoots: []string{root}}
	res := resolver.New(resolver.NewPathFinder(env), resolver.NewCrawlArea(env), resolver.WithSymbolLookup(reg))
	w := New(reg, res, nil, nil, WithPaths([]string{
		filepath.Join(root, "main.py"),
		filepath.Join(root, "a.py"),
	}))

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "a", tree.Children[0].Key)
	require.Len(t, tree.Children[0].Children, 1)
	assert.True(t, tree.Children[0].Children[0].Repeat)
	assert.Zero(t, w.Visits("b"))

	s := Summarize(tree, nil)
	assert.Equal(t, 2, s.Files)
}

func TestSummarize_ReachableAgainstRepository(t *testing.T) {
	root := cyclicProject(t)
	hist := sampleHistory()
	w := newWalk(t, root, hist)

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.NotNil(t, tree.Children[0].History)
	assert.Equal(t, "a.py", tree.Children[0].RelPath)
	assert.Equal(t, "main", tree.Children[0].Project)

	s := Summarize(tree, hist)
	assert.Equal(t, 3, s.Files)
	assert.Equal(t, 4, s.Lines)
	assert.Equal(t, 1, s.Untracked)
	assert.Zero(t, s.Missing)
	assert.Equal(t, history.ChangeStats{Added: 10, Removed: 1, Count: 3}, s.Reachable)
	assert.Equal(t, history.ChangeStats{Added: 20, Removed: 1, Count: 4}, s.Repository)
	assert.InDelta(t, 11.0/21.0, s.Ratio, 1e-9)

	assert.Equal(t, 2, s.AgedFiles)
	assert.Equal(t, time.Duration(0), s.ShortestAge)
	assert.Equal(t, 24*time.Hour, s.LongestAge)
	assert.Equal(t, 12*time.Hour, s.AverageAge)

	require.Len(t, s.Projects, 1)
	assert.Equal(t, "main", s.Projects[0].Name)
	assert.Equal(t, 3, s.Projects[0].Files)
	assert.InDelta(t, s.Ratio, s.Projects[0].Ratio, 1e-9)

	require.Len(t, s.Authors, 2)
	assert.Equal(t, AuthorRow{
		Project:    "main",
		Author:     "Ada <ada@example.com>",
		Reachable:  history.ChangeStats{Added: 3, Removed: 1, Count: 1},
		Repository: history.ChangeStats{Added: 3, Removed: 1, Count: 1},
	}, s.Authors[0])
	assert.Equal(t, AuthorRow{
		Project:    "main",
		Author:     "Bob <bob@example.com>",
		Reachable:  history.ChangeStats{Added: 7, Count: 2},
		Repository: history.ChangeStats{Added: 17, Count: 3},
	}, s.Authors[1])
}

func TestAggregate_MissingModulesAreCounted(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"main.py":      "import compiled\n",
		"compiled.pyc": "not bytecode",
	})
	w := newWalk(t, root, nil)

	tree, err := w.Aggregate(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	assert.Error(t, tree.Children[0].Err)

	s := Summarize(tree, nil)
	assert.Equal(t, 1, s.Files)
	assert.Equal(t, 1, s.Missing)
	assert.Zero(t, s.Ratio)
}

func TestAggregate_EntryFailureIsReturned(t *testing.T) {
	w := newWalk(t, t.TempDir(), nil)
	_, err := w.Aggregate(filepath.Join(t.TempDir(), "absent.py"))
	assert.Error(t, err)
}

func TestSummarize_NilTree(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil, nil))
}
