package stattree

import (
	"sort"
	"time"

	"materiality/internal/core/ports"
	"materiality/internal/data/history"
)

// AuthorRow compares an author's reachable changes with all their changes
// in the same project.
type AuthorRow struct {
	Project    string
	Author     string
	Reachable  history.ChangeStats
	Repository history.ChangeStats
}

type ProjectSummary struct {
	Name       string
	Files      int
	Lines      int
	Reachable  history.ChangeStats
	Repository history.ChangeStats
	Ratio      float64
}

// Summary is the fold of a stat tree.
type Summary struct {
	Files      int
	Lines      int
	Missing    int
	Untracked  int
	Reachable  history.ChangeStats
	Repository history.ChangeStats
	Ratio      float64

	AgedFiles   int
	ShortestAge time.Duration
	LongestAge  time.Duration
	AverageAge  time.Duration

	Authors  []AuthorRow
	Projects []ProjectSummary
}

type fold struct {
	files     int
	lines     int
	missing   int
	untracked int
	reachable history.ChangeStats
	ages      []time.Duration
	// project -> author -> stats
	authors  map[string]map[string]history.ChangeStats
	projects map[string]*ProjectSummary
}

func newFold() *fold {
	return &fold{
		authors:  make(map[string]map[string]history.ChangeStats),
		projects: make(map[string]*ProjectSummary),
	}
}

func (f *fold) merge(o *fold) {
	f.files += o.files
	f.lines += o.lines
	f.missing += o.missing
	f.untracked += o.untracked
	f.reachable = f.reachable.Merge(o.reachable)
	f.ages = append(f.ages, o.ages...)
	for project, byAuthor := range o.authors {
		for author, s := range byAuthor {
			f.author(project, author, s)
		}
	}
	for name, p := range o.projects {
		cur := f.project(name)
		cur.Files += p.Files
		cur.Lines += p.Lines
		cur.Reachable = cur.Reachable.Merge(p.Reachable)
	}
}

func (f *fold) author(project, author string, s history.ChangeStats) {
	byAuthor, ok := f.authors[project]
	if !ok {
		byAuthor = make(map[string]history.ChangeStats)
		f.authors[project] = byAuthor
	}
	byAuthor[author] = byAuthor[author].Merge(s)
}

func (f *fold) project(name string) *ProjectSummary {
	p, ok := f.projects[name]
	if !ok {
		p = &ProjectSummary{Name: name}
		f.projects[name] = p
	}
	return p
}

func leaf(n *Node) *fold {
	f := newFold()
	switch {
	case n.Repeat:
		return f
	case n.Err != nil:
		f.missing = 1
		return f
	}
	f.files = 1
	f.lines = n.Stats.Lines
	p := f.project(n.Project)
	p.Files = 1
	p.Lines = n.Stats.Lines
	if n.History == nil {
		f.untracked = 1
		return f
	}
	f.reachable = n.History.Stats
	p.Reachable = n.History.Stats
	f.ages = append(f.ages, n.History.Age())
	for _, a := range n.History.Authors() {
		f.author(n.Project, a.Author, a.Stats)
	}
	return f
}

// Summarize folds the tree bottom-up. Repository totals come from hist, one
// per project seen in the tree; a nil hist leaves them zero.
func Summarize(root *Node, hist ports.HistorySource) Summary {
	if root == nil {
		return Summary{}
	}
	type frame struct {
		node     *Node
		expanded bool
	}
	folds := make(map[*Node]*fold)
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !top.expanded {
			stack = append(stack, frame{node: top.node, expanded: true})
			for _, c := range top.node.Children {
				stack = append(stack, frame{node: c})
			}
			continue
		}
		f := leaf(top.node)
		for _, c := range top.node.Children {
			f.merge(folds[c])
			delete(folds, c)
		}
		folds[top.node] = f
	}
	return finish(folds[root], hist)
}

func finish(f *fold, hist ports.HistorySource) Summary {
	s := Summary{
		Files:     f.files,
		Lines:     f.lines,
		Missing:   f.missing,
		Untracked: f.untracked,
		Reachable: f.reachable,
		AgedFiles: len(f.ages),
	}

	if len(f.ages) > 0 {
		var total time.Duration
		s.ShortestAge, s.LongestAge = f.ages[0], f.ages[0]
		for _, a := range f.ages {
			total += a
			if a < s.ShortestAge {
				s.ShortestAge = a
			}
			if a > s.LongestAge {
				s.LongestAge = a
			}
		}
		s.AverageAge = total / time.Duration(len(f.ages))
	}

	names := make([]string, 0, len(f.projects))
	for name := range f.projects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := *f.projects[name]
		var repoAuthors map[string]history.ChangeStats
		if hist != nil {
			if totals, ok := hist.RepositoryTotals(name); ok {
				p.Repository = totals.Stats
				repoAuthors = make(map[string]history.ChangeStats)
				for _, a := range totals.Authors() {
					repoAuthors[a.Author] = a.Stats
				}
			}
		}
		p.Ratio = ratio(p.Reachable, p.Repository)
		s.Repository = s.Repository.Merge(p.Repository)
		s.Projects = append(s.Projects, p)

		seen := make(map[string]bool)
		for author, reach := range f.authors[name] {
			s.Authors = append(s.Authors, AuthorRow{Project: name, Author: author, Reachable: reach, Repository: repoAuthors[author]})
			seen[author] = true
		}
		for author, repo := range repoAuthors {
			if !seen[author] {
				s.Authors = append(s.Authors, AuthorRow{Project: name, Author: author, Repository: repo})
			}
		}
	}
	sort.Slice(s.Authors, func(i, j int) bool {
		if s.Authors[i].Project != s.Authors[j].Project {
			return s.Authors[i].Project < s.Authors[j].Project
		}
		return s.Authors[i].Author < s.Authors[j].Author
	})
	s.Ratio = ratio(s.Reachable, s.Repository)
	return s
}

// ratio compares line volume (added + removed).
func ratio(part, whole history.ChangeStats) float64 {
	if whole.Changes() == 0 {
		return 0
	}
	return float64(part.Changes()) / float64(whole.Changes())
}
