package app

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"materiality/internal/core/errors"
	"materiality/internal/core/ports"
	"materiality/internal/data/history"
	"materiality/internal/engine/crawler"
	"materiality/internal/engine/index"
	"materiality/internal/engine/registry"
	"materiality/internal/engine/resolver"
	"materiality/internal/engine/stattree"
	"materiality/internal/shared/observability"
	"materiality/internal/shared/util"
	"materiality/internal/ui/report"
)

// Result is everything one materiality run produced.
type Result struct {
	RunID    string
	Entry    string
	Project  string
	Steps    int
	Checked  []string
	Failures map[string]error
	Roots    []*registry.ModuleRecord
	Tree     *stattree.Node
	Summary  stattree.Summary
}

// Run crawls the import graph from entry, loads history for every project
// the crawl reached and folds the reachable tree against it.
func (a *App) Run(ctx context.Context, entry string) (*Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Run", trace.WithAttributes(attribute.String("entry", entry)))
	defer span.End()

	if entry == "" {
		entry = a.Config.Project.Entry
	}
	if entry == "" {
		return nil, errors.New(errors.CodeValidationError, "entry file is required")
	}
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(a.Config.Project.Root, entry)
	}
	entry, err := filepath.Abs(entry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve entry path")
	}
	if !util.IsFile(entry) {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "entry file not found"), errors.CtxPath, entry)
	}

	env := a.environment(ctx, entry)
	overrides := a.overrides()
	area := resolver.NewCrawlArea(env)
	area.AddProjectRoot(a.Config.Project.Root)
	for _, o := range overrides.All() {
		area.AddProjectRoot(o.Root)
	}

	project := registry.Project{
		Name:        a.Config.Project.Name,
		Root:        a.Config.Project.Root,
		HistoryRoot: a.Config.Project.HistoryRoot,
	}
	reg := registry.New(a.provider, index.New(a.logger), project, overrides, a.logger)
	res := resolver.New(resolver.NewPathFinder(env), area,
		resolver.WithOverrides(overrides),
		resolver.WithSymbolLookup(reg),
		resolver.WithLogger(a.logger),
	)

	c, err := a.crawl(ctx, reg, res, entry)
	if err != nil {
		return nil, err
	}

	var hist ports.HistorySource
	if a.history != nil {
		a.loadHistory(ctx, reg, c.Records())
		hist = a.history
	}

	walk := stattree.New(reg, res, hist, a.logger, stattree.WithPaths(c.PathsChecked()))
	tree, err := walk.Aggregate(entry)
	if err != nil {
		return nil, err
	}
	result := &Result{
		RunID:    uuid.NewString(),
		Entry:    entry,
		Project:  project.Name,
		Steps:    c.Steps(),
		Checked:  c.PathsChecked(),
		Failures: c.Failures(),
		Roots:    c.Roots(),
		Tree:     tree,
		Summary:  stattree.Summarize(tree, hist),
	}
	span.SetAttributes(
		attribute.Int("files", result.Summary.Files),
		attribute.Float64("ratio", result.Summary.Ratio),
	)

	a.saveRun(ctx, result)
	if err := a.writeOutputs(result); err != nil {
		return result, err
	}
	return result, nil
}

func (a *App) crawl(ctx context.Context, reg *registry.Registry, res *resolver.Resolver, entry string) (*crawler.Crawler, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.crawl")
	defer span.End()

	opts := crawler.Options{
		ImplicitSubmodules: a.Config.Crawl.Implicit(),
		Exclude:            a.Config.Crawl.Exclude,
	}
	c, err := crawler.New(reg, res, entry, opts, a.logger)
	if err != nil {
		return nil, err
	}
	steps, err := c.Run(ctx, a.Config.Crawl.MaxSteps)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("steps", steps), attribute.Int("records", reg.Len()))
	a.logger.Info("crawl finished", "entry", entry, "steps", steps, "frontier", len(c.Frontier()), "failures", len(c.Failures()))
	return c, nil
}

// loadHistory mines each project that owns at least one crawled record.
// A project without history only loses its change stats.
func (a *App) loadHistory(ctx context.Context, reg *registry.Registry, records []*registry.ModuleRecord) {
	ctx, span := observability.Tracer.Start(ctx, "app.loadHistory")
	defer span.End()

	used := make(map[string]bool)
	for _, rec := range records {
		used[rec.Project] = true
	}
	for _, p := range reg.Projects() {
		if !used[p.Name] {
			continue
		}
		if err := a.history.Load(ctx, p.Name, p.HistoryDir()); err != nil {
			a.logger.Warn("history unavailable", "project", p.Name, "dir", p.HistoryDir(), "error", err)
		}
	}
}

func (a *App) saveRun(ctx context.Context, r *Result) {
	if a.runs == nil {
		return
	}
	s := r.Summary
	run := history.Run{
		ID:                r.RunID,
		Timestamp:         a.now().UTC(),
		Entry:             r.Entry,
		Project:           r.Project,
		Files:             s.Files,
		Lines:             s.Lines,
		Authors:           len(s.Authors),
		ReachableChanges:  s.Reachable.Changes(),
		RepositoryChanges: s.Repository.Changes(),
		Ratio:             s.Ratio,
	}
	if err := a.runs.SaveRun(ctx, run); err != nil {
		a.logger.Warn("run not recorded", "run", r.RunID, "error", err)
	}
}

func (a *App) writeOutputs(r *Result) error {
	out := a.Config.Output
	if out.Tree != "" {
		path := resolveOutput(a.Config.Project.Root, out.Tree)
		if err := util.WriteStringWithDirs(path, report.RenderTree(r.Tree), 0o644); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write tree"), errors.CtxPath, path)
		}
		a.logger.Info("tree written", "path", path)
	}
	if out.AuthorsTSV != "" {
		path := resolveOutput(a.Config.Project.Root, out.AuthorsTSV)
		if err := util.WriteStringWithDirs(path, report.RenderAuthorTSV(r.Summary.Authors), 0o644); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write authors"), errors.CtxPath, path)
		}
		a.logger.Info("authors written", "path", path)
	}
	if metrics := a.Config.Telemetry.Metrics; metrics != "" {
		path := resolveOutput(a.Config.Project.Root, metrics)
		if err := observability.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics not written", "path", path, "error", err)
		}
	}
	return nil
}

func resolveOutput(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
