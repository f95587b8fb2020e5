package stattree

import (
	"log/slog"
	"path/filepath"

	"materiality/internal/core/ports"
	"materiality/internal/data/history"
	"materiality/internal/engine/registry"
)

// RecordSource is the part of the registry the walk needs.
type RecordSource interface {
	Get(path string) (*registry.ModuleRecord, error)
	ProjectFor(path string) (registry.Project, string, bool)
}

// Node is one module in the reachability tree. A Repeat node marks a module
// already expanded elsewhere in the same walk and carries no children.
type Node struct {
	Key      string
	Path     string
	Project  string
	RelPath  string
	Stats    registry.Stats
	History  *history.FileRecord
	Children []*Node
	Repeat   bool
	Err      error
}

// Walk aggregates one tree. Visit counts are kept per walk.
type Walk struct {
	records  RecordSource
	resolver ports.ImportResolver
	history  ports.HistorySource
	logger   *slog.Logger

	within map[string]bool

	visits map[string]int
	owners map[string]string
	keys   map[string]string
	order  []*Node
}

type Option func(*Walk)

// WithPaths limits the walk to the given paths. Edges to any other path are
// dropped. The entry is always walked.
func WithPaths(paths []string) Option {
	return func(w *Walk) {
		w.within = make(map[string]bool, len(paths))
		for _, p := range paths {
			w.within[filepath.Clean(p)] = true
		}
	}
}

// New builds a Walk. A nil history source leaves every node without history.
func New(records RecordSource, resolver ports.ImportResolver, hist ports.HistorySource, logger *slog.Logger, opts ...Option) *Walk {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Walk{
		records:  records,
		resolver: resolver,
		history:  hist,
		logger:   logger,
		visits:   make(map[string]int),
		owners:   make(map[string]string),
		keys:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Aggregate builds the tree rooted at entry. Only a failure to build the
// entry itself is returned; failures below it are kept on the node.
func (w *Walk) Aggregate(entry string) (*Node, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, err
	}
	root := &Node{Path: abs}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec, err := w.records.Get(n.Path)
		if err != nil {
			if n == root {
				return nil, err
			}
			w.logger.Warn("module skipped in stat tree", "path", n.Path, "error", err)
			n.Key = n.Path
			n.Err = err
			continue
		}
		n.Key = w.key(n.Key, rec)
		w.visits[n.Key]++
		if w.visits[n.Key] > 1 {
			n.Path = rec.Path
			n.Repeat = true
			continue
		}
		w.fill(n, rec)
		w.order = append(w.order, n)

		for _, ref := range rec.Imports {
			w.resolver.Resolve(ref)
			primary := ref.Path()
			for _, p := range ref.CrawlPaths() {
				if w.within != nil && !w.within[filepath.Clean(p)] {
					w.logger.Debug("edge outside crawled paths", "from", rec.Path, "path", p)
					continue
				}
				child := &Node{Path: p}
				if p == primary {
					child.Key = ref.Canonical()
				}
				for _, m := range ref.MemberModules() {
					if m.Path == p {
						child.Key = m.Name
					}
				}
				n.Children = append(n.Children, child)
			}
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return root, nil
}

// key picks the visit key for rec: the canonical name the node was reached
// by, else the record name. A file keeps the first key it was given, and a
// name already claimed by another file falls back to the file path.
func (w *Walk) key(reached string, rec *registry.ModuleRecord) string {
	if k, ok := w.keys[rec.Path]; ok {
		return k
	}
	name := reached
	if name == "" {
		name = rec.Name
	}
	if owner, ok := w.owners[name]; name == "" || (ok && owner != rec.Path) {
		name = rec.Path
	}
	w.owners[name] = rec.Path
	w.keys[rec.Path] = name
	return name
}

func (w *Walk) fill(n *Node, rec *registry.ModuleRecord) {
	n.Path = rec.Path
	n.Stats = rec.Stats
	n.Project = rec.Project
	p, rel, ok := w.records.ProjectFor(rec.Path)
	if !ok {
		return
	}
	n.Project = p.Name
	n.RelPath = rel
	if w.history == nil {
		return
	}
	if fr, ok := w.history.FileHistory(p.Name, rel); ok {
		n.History = fr
	}
}

// Visits reports how many times key was reached during the walk.
func (w *Walk) Visits(key string) int {
	return w.visits[key]
}

// Expanded returns the expanded nodes in visit order.
func (w *Walk) Expanded() []*Node {
	return append([]*Node(nil), w.order...)
}
