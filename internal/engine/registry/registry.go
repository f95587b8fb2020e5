package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"materiality/internal/core/errors"
	"materiality/internal/core/ports"
	"materiality/internal/engine/index"
	"materiality/internal/engine/resolver"
	"materiality/internal/shared/observability"
	"materiality/internal/shared/util"
)

// Project is a source tree whose git history is mined.
type Project struct {
	Name        string
	Root        string
	HistoryRoot string
}

func (p Project) HistoryDir() string {
	if p.HistoryRoot == "" {
		return p.Root
	}
	return p.HistoryRoot
}

type Stats struct {
	FirstLine int
	LastLine  int
	Lines     int
	Scopes    int
	Symbols   int
	Imports   int
}

type ModuleRecord struct {
	Path        string
	Name        string
	Project     string
	Overridden  bool
	Root        *index.Scope
	Imports     []*resolver.ImportReference
	Stats       Stats
	Diagnostics []index.Diagnostic
}

// Registry builds one record per requested path and keeps it for its lifetime.
type Registry struct {
	loader    ports.SourceLoader
	indexer   *index.Indexer
	overrides *resolver.Overrides
	projects  []Project
	records   map[string]*ModuleRecord
	failures  map[string]error
	logger    *slog.Logger
}

func New(loader ports.SourceLoader, indexer *index.Indexer, main Project, overrides *resolver.Overrides, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	projects := []Project{cleanProject(main)}
	for _, o := range overrides.All() {
		projects = append(projects, cleanProject(Project{Name: o.Project, Root: o.Root, HistoryRoot: o.HistoryDir()}))
	}
	sort.SliceStable(projects, func(i, j int) bool { return len(projects[i].Root) > len(projects[j].Root) })

	return &Registry{
		loader:    loader,
		indexer:   indexer,
		overrides: overrides,
		projects:  projects,
		records:   make(map[string]*ModuleRecord),
		failures:  make(map[string]error),
		logger:    logger,
	}
}

func cleanProject(p Project) Project {
	if p.Root != "" {
		p.Root = filepath.Clean(p.Root)
	}
	if p.HistoryRoot != "" {
		p.HistoryRoot = filepath.Clean(p.HistoryRoot)
	}
	return p
}

// Get returns the record for path, building it on first request. When the
// module name falls under an override the override checkout is indexed
// instead of the requested file.
func (r *Registry) Get(path string) (*ModuleRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve module path")
	}
	if rec, ok := r.records[abs]; ok {
		return rec, nil
	}
	if err, ok := r.failures[abs]; ok {
		return nil, err
	}

	name := resolver.ModuleNameForPath(abs)
	buildPath := abs
	overridden := false
	if o, ok := r.overrides.Longest(name); ok && !util.WithinDir(abs, o.Root) {
		if target, exact := o.PathFor(name); exact {
			buildPath, overridden = target, true
			if rec, ok := r.records[target]; ok {
				r.records[abs] = rec
				return rec, nil
			}
		}
	}

	rec, err := r.build(buildPath, name)
	if err != nil {
		r.failures[abs] = err
		return nil, err
	}
	rec.Overridden = overridden
	r.records[abs] = rec
	r.records[buildPath] = rec
	observability.RegistryRecords.Set(float64(r.Len()))
	return rec, nil
}

// Lookup returns an already built record without building.
func (r *Registry) Lookup(path string) (*ModuleRecord, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	rec, ok := r.records[abs]
	return rec, ok
}

func (r *Registry) build(path, name string) (*ModuleRecord, error) {
	srcPath, err := sourceFor(path)
	if err != nil {
		return nil, err
	}
	if srcPath != path {
		name = resolver.ModuleNameForPath(srcPath)
	}
	unit, err := r.loader.Load(srcPath)
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	mod, err := r.indexer.Index(unit)
	if err != nil {
		r.logger.Warn("indexing failed", "path", srcPath, "error", err)
		return nil, errors.AddContext(err, errors.CtxModule, name)
	}

	symbols := 0
	mod.Root.Walk(func(s *index.Scope) bool {
		symbols += s.SymbolCount()
		return true
	})
	rec := &ModuleRecord{
		Path:    srcPath,
		Name:    name,
		Root:    mod.Root,
		Imports: mod.Imports,
		Stats: Stats{
			FirstLine: mod.Root.FirstLine,
			LastLine:  mod.Root.LastLine,
			Lines:     unit.LineCount(),
			Scopes:    mod.Root.Count(),
			Symbols:   symbols,
			Imports:   len(mod.Imports),
		},
		Diagnostics: mod.Diagnostics,
	}
	if p, _, ok := r.ProjectFor(srcPath); ok {
		rec.Project = p.Name
	}
	r.logger.Debug("module indexed", "path", srcPath, "module", name, "imports", len(mod.Imports))
	return rec, nil
}

// sourceFor maps bytecode to the source it was compiled from.
func sourceFor(path string) (string, error) {
	if filepath.Ext(path) != ".pyc" {
		return path, nil
	}
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), ".pyc")
	candidates := []string{filepath.Join(dir, stem+".py")}
	if filepath.Base(dir) == "__pycache__" {
		if i := strings.Index(stem, "."); i > 0 {
			stem = stem[:i]
		}
		candidates = append(candidates, filepath.Join(filepath.Dir(dir), stem+".py"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.AddContext(errors.New(errors.CodeNotSupported, "bytecode without source"), errors.CtxPath, path)
}

// ProjectFor places path in the project with the longest matching root and
// returns the path relative to that project's history root.
func (r *Registry) ProjectFor(path string) (Project, string, bool) {
	for _, p := range r.projects {
		if p.Root == "" || !util.WithinDir(path, p.Root) {
			continue
		}
		rel := util.SlashRel(p.HistoryDir(), path)
		if rel == "" {
			return p, "", false
		}
		return p, rel, true
	}
	return Project{}, "", false
}

func (r *Registry) Projects() []Project {
	return append([]Project(nil), r.projects...)
}

// DefinesSymbol reports whether the module at path binds or imports symbol.
func (r *Registry) DefinesSymbol(path, symbol string) (bool, error) {
	rec, err := r.Get(path)
	if err != nil {
		return false, err
	}
	return rec.Root.Defines(symbol), nil
}

// Records returns distinct records ordered by path.
func (r *Registry) Records() []*ModuleRecord {
	seen := make(map[*ModuleRecord]bool)
	var out []*ModuleRecord
	for _, key := range util.SortedStringKeys(r.records) {
		rec := r.records[key]
		if seen[rec] {
			continue
		}
		seen[rec] = true
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (r *Registry) Len() int {
	return len(r.Records())
}

// Failures returns the paths whose records could not be built.
func (r *Registry) Failures() map[string]error {
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}
