package crawler

import (
	"container/heap"
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"materiality/internal/core/errors"
	"materiality/internal/core/ports"
	"materiality/internal/engine/registry"
	"materiality/internal/engine/resolver"
	"materiality/internal/shared/observability"
	"materiality/internal/shared/util"

	"github.com/gobwas/glob"
)

type Options struct {
	// ImplicitSubmodules skips a reference whose canonical name is a strict
	// textual prefix of another reference in the same module, e.g. "pkg"
	// next to "pkg.sub".
	ImplicitSubmodules bool
	Exclude            []string
}

func DefaultOptions() Options {
	return Options{ImplicitSubmodules: true}
}

// Crawler walks the import graph from an entry file one path at a time.
type Crawler struct {
	registry *registry.Registry
	resolver ports.ImportResolver
	opts     Options
	excludes []glob.Glob
	checked  map[string]bool
	frontier map[string]bool
	queue    pathHeap
	failures map[string]error
	steps    int
	logger   *slog.Logger
}

func New(reg *registry.Registry, res ports.ImportResolver, entry string, opts Options, logger *slog.Logger) (*Crawler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve entry path")
	}
	c := &Crawler{
		registry: reg,
		resolver: res,
		opts:     opts,
		checked:  make(map[string]bool),
		frontier: map[string]bool{abs: true},
		queue:    pathHeap{abs},
		failures: make(map[string]error),
		logger:   logger,
	}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "invalid exclude pattern"), "pattern", pattern)
		}
		c.excludes = append(c.excludes, g)
	}
	return c, nil
}

func (c *Crawler) Done() bool {
	return len(c.frontier) == 0
}

// Step processes one frontier path. A returned error describes that path
// only; the crawl stays usable.
func (c *Crawler) Step() (*registry.ModuleRecord, error) {
	if c.Done() {
		return nil, nil
	}
	path := heap.Pop(&c.queue).(string)
	delete(c.frontier, path)
	c.checked[path] = true
	c.steps++
	observability.CrawlStepsTotal.Inc()

	rec, err := c.registry.Get(path)
	if err != nil {
		c.failures[path] = err
		c.logger.Warn("skipping module", "path", path, "error", err)
		return nil, err
	}
	c.checked[rec.Path] = true

	for _, ref := range rec.Imports {
		c.resolver.Resolve(ref)
	}
	implicit := c.implicit(rec.Imports)
	for _, ref := range rec.Imports {
		if !ref.Resolved() {
			continue
		}
		if implicit[ref] {
			c.logger.Debug("skipping implicit submodule import", "path", rec.Path, "module", ref.Canonical())
			continue
		}
		paths := ref.CrawlPaths()
		if len(paths) == 0 {
			c.logger.Debug("resolved import has no crawlable file", "path", rec.Path, "module", ref.Canonical(), "target", ref.Path())
		}
		for _, p := range paths {
			c.enqueue(p)
		}
	}
	return rec, nil
}

// Run steps until the frontier is empty, maxSteps is reached (0 means no
// limit) or ctx is cancelled. It returns the number of steps taken.
func (c *Crawler) Run(ctx context.Context, maxSteps int) (int, error) {
	taken := 0
	for !c.Done() {
		if maxSteps > 0 && taken >= maxSteps {
			c.logger.Warn("crawl step limit reached", "steps", taken, "remaining", len(c.frontier))
			break
		}
		if err := ctx.Err(); err != nil {
			return taken, err
		}
		_, _ = c.Step()
		taken++
	}
	return taken, nil
}

func (c *Crawler) implicit(refs []*resolver.ImportReference) map[*resolver.ImportReference]bool {
	if !c.opts.ImplicitSubmodules {
		return nil
	}
	out := make(map[*resolver.ImportReference]bool)
	for _, ref := range refs {
		if !ref.Resolved() {
			continue
		}
		for _, other := range refs {
			if other == ref || !other.Resolved() {
				continue
			}
			if other.Canonical() != ref.Canonical() && strings.HasPrefix(other.Canonical(), ref.Canonical()) {
				out[ref] = true
				break
			}
		}
	}
	return out
}

func (c *Crawler) enqueue(path string) {
	path = filepath.Clean(path)
	if c.checked[path] || c.frontier[path] {
		return
	}
	slash := filepath.ToSlash(path)
	for _, g := range c.excludes {
		if g.Match(slash) {
			c.logger.Debug("excluded from crawl", "path", path)
			return
		}
	}
	c.frontier[path] = true
	heap.Push(&c.queue, path)
}

// pathHeap pops the smallest path first so a step-limited crawl is
// reproducible.
type pathHeap []string

func (h pathHeap) Len() int { return len(h) }
func (h pathHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h pathHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x any) { *h = append(*h, x.(string)) }

func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// PathsChecked lists every path taken from the frontier, sorted.
func (c *Crawler) PathsChecked() []string {
	return util.SortedStringKeys(c.checked)
}

func (c *Crawler) Frontier() []string {
	return util.SortedStringKeys(c.frontier)
}

func (c *Crawler) Steps() int {
	return c.steps
}

func (c *Crawler) Failures() map[string]error {
	out := make(map[string]error, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}

// Records returns the distinct records built for checked paths.
func (c *Crawler) Records() []*registry.ModuleRecord {
	seen := make(map[*registry.ModuleRecord]bool)
	var out []*registry.ModuleRecord
	for _, p := range c.PathsChecked() {
		rec, ok := c.registry.Lookup(p)
		if !ok || seen[rec] {
			continue
		}
		seen[rec] = true
		out = append(out, rec)
	}
	return out
}

// Roots lists checked records that no other checked record imports.
func (c *Crawler) Roots() []*registry.ModuleRecord {
	records := c.Records()
	imported := make(map[*registry.ModuleRecord]bool)
	for _, rec := range records {
		for _, ref := range rec.Imports {
			for _, p := range ref.CrawlPaths() {
				target, ok := c.registry.Lookup(p)
				if ok && target != rec {
					imported[target] = true
				}
			}
		}
	}
	var roots []*registry.ModuleRecord
	for _, rec := range records {
		if !imported[rec] {
			roots = append(roots, rec)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Path < roots[j].Path })
	return roots
}
