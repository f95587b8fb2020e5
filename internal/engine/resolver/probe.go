package resolver

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"

	"materiality/internal/core/errors"
	"materiality/internal/shared/util"
)

const probeScript = `import json, sys, sysconfig
p = sysconfig.get_paths()
print(json.dumps({
    "path": sys.path,
    "stdlib": p.get("stdlib", ""),
    "platstdlib": p.get("platstdlib", ""),
    "purelib": p.get("purelib", ""),
    "platlib": p.get("platlib", ""),
    "builtins": sorted(sys.builtin_module_names),
}))`

type probeOutput struct {
	Path       []string `json:"path"`
	Stdlib     string   `json:"stdlib"`
	PlatStdlib string   `json:"platstdlib"`
	Purelib    string   `json:"purelib"`
	Platlib    string   `json:"platlib"`
	Builtins   []string `json:"builtins"`
}

// ProbeInterpreter asks a real interpreter for its import layout.
func ProbeInterpreter(ctx context.Context, python string) (Environment, error) {
	if python == "" {
		python = "python3"
	}
	out, err := exec.CommandContext(ctx, python, "-c", probeScript).Output()
	if err != nil {
		return Environment{}, errors.Wrap(err, errors.CodeNotSupported, "probe python interpreter "+python)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Environment, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return Environment{}, errors.Wrap(err, errors.CodeInternal, "decode interpreter probe")
	}

	var env Environment
	site := nonEmpty(probe.Purelib, probe.Platlib)
	stdlib := nonEmpty(probe.Stdlib, probe.PlatStdlib)
	env.SitePackages = append(env.SitePackages, site...)
	env.Stdlib = append(env.Stdlib, stdlib...)
	env.Builtins = probe.Builtins

	for _, entry := range probe.Path {
		if entry == "" || strings.HasSuffix(entry, ".zip") {
			continue
		}
		entry = filepath.Clean(entry)
		switch {
		case containsDir(site, entry) || isSitePackages(entry):
			env.SitePackages = appendUnique(env.SitePackages, entry)
		case withinAny(entry, stdlib):
			env.Stdlib = appendUnique(env.Stdlib, entry)
		default:
			env.ProjectRoots = appendUnique(env.ProjectRoots, entry)
		}
	}
	return env, nil
}

func isSitePackages(dir string) bool {
	base := filepath.Base(dir)
	return base == "site-packages" || base == "dist-packages"
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = appendUnique(out, filepath.Clean(v))
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	if containsDir(list, v) {
		return list
	}
	return append(list, v)
}

func containsDir(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func withinAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if util.WithinDir(path, dir) {
			return true
		}
	}
	return false
}
