package app

import (
	"context"
	"path/filepath"

	"materiality/internal/engine/resolver"
)

// environment builds the lookup layout for an entry file. The entry's
// directory comes first, as it does for a script run by the interpreter.
func (a *App) environment(ctx context.Context, entry string) resolver.Environment {
	var env resolver.Environment
	switch {
	case a.env != nil:
		env = *a.env
	case a.Config.Environment.ShouldProbe():
		probed, err := resolver.ProbeInterpreter(ctx, a.Config.Environment.Python)
		if err != nil {
			a.logger.Warn("interpreter probe failed, using configured paths only", "python", a.Config.Environment.Python, "error", err)
		} else {
			env = probed
		}
	}

	cfg := a.Config.Environment
	if len(cfg.Stdlib) > 0 {
		env.Stdlib = append([]string(nil), cfg.Stdlib...)
	}
	if len(cfg.SitePackages) > 0 {
		env.SitePackages = append([]string(nil), cfg.SitePackages...)
	}
	if len(cfg.Builtins) > 0 {
		env.Builtins = append([]string(nil), cfg.Builtins...)
	}

	roots := []string{filepath.Dir(entry)}
	roots = append(roots, cfg.SearchPaths...)
	roots = append(roots, env.ProjectRoots...)
	env.ProjectRoots = roots
	return env
}

func (a *App) overrides() *resolver.Overrides {
	list := make([]resolver.Override, 0, len(a.Config.Overrides))
	for _, o := range a.Config.Overrides {
		list = append(list, resolver.Override{
			Prefix:      o.Prefix,
			Project:     o.Project,
			Root:        o.Root,
			Entry:       o.Entry,
			HistoryRoot: o.HistoryRoot,
		})
	}
	return resolver.NewOverrides(list)
}
