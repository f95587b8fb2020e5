package resolver

import "path/filepath"

type AreaKind int

const (
	AreaOutside AreaKind = iota
	AreaSitePackages
	AreaStdlib
	AreaProject
)

// CrawlArea decides which files belong to the analysed world. Site-packages
// are checked before the stdlib because they usually live beneath it.
type CrawlArea struct {
	sitePackages []string
	stdlib       []string
	projects     []string
}

func NewCrawlArea(env Environment) *CrawlArea {
	return &CrawlArea{
		sitePackages: cleanAll(env.SitePackages),
		stdlib:       cleanAll(env.Stdlib),
		projects:     cleanAll(env.ProjectRoots),
	}
}

// AddProjectRoot marks dir as crawlable project code.
func (a *CrawlArea) AddProjectRoot(dir string) {
	a.projects = appendUnique(a.projects, filepath.Clean(dir))
}

func (a *CrawlArea) Classify(path string) AreaKind {
	switch {
	case withinAny(path, a.sitePackages):
		return AreaSitePackages
	case withinAny(path, a.stdlib):
		return AreaStdlib
	case withinAny(path, a.projects):
		return AreaProject
	default:
		return AreaOutside
	}
}

func (a *CrawlArea) Contains(path string) bool {
	k := a.Classify(path)
	return k == AreaSitePackages || k == AreaProject
}

func cleanAll(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		if d != "" {
			out = appendUnique(out, filepath.Clean(d))
		}
	}
	return out
}
