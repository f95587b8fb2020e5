package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"materiality/internal/shared/util"
)

type LoaderKind int

const (
	LoaderSource LoaderKind = iota
	LoaderBytecode
	LoaderExtension
	LoaderNamespace
	LoaderBuiltin
	LoaderFrozen
)

func (k LoaderKind) String() string {
	switch k {
	case LoaderSource:
		return "source"
	case LoaderBytecode:
		return "bytecode"
	case LoaderExtension:
		return "extension"
	case LoaderNamespace:
		return "namespace"
	case LoaderBuiltin:
		return "builtin"
	default:
		return "frozen"
	}
}

// ModuleSpec is what a finder knows about an importable name. Origin is empty
// for namespace packages; Locations is set only for packages.
type ModuleSpec struct {
	Name      string
	Origin    string
	Loader    LoaderKind
	Locations []string
}

func (s *ModuleSpec) IsPackage() bool {
	return len(s.Locations) > 0
}

// ModuleFinder looks up a dotted name the way the interpreter would. A miss of
// the final component is (nil, nil); broken parents are a *FinderError.
type ModuleFinder interface {
	Find(name string) (*ModuleSpec, error)
}

type FinderErrorKind int

const (
	FinderNotFound FinderErrorKind = iota
	FinderAttribute
	FinderValue
)

type FinderError struct {
	Kind FinderErrorKind
	Name string
	Msg  string
}

func (e *FinderError) Error() string {
	return fmt.Sprintf("find %s: %s", e.Name, e.Msg)
}

func (e *FinderError) Reason() IgnoreReason {
	switch e.Kind {
	case FinderAttribute:
		return ReasonAttributeError
	case FinderValue:
		return ReasonValueError
	default:
		return ReasonNotFoundError
	}
}

// Environment describes the interpreter layout imports are looked up in.
type Environment struct {
	ProjectRoots []string
	Stdlib       []string
	SitePackages []string
	Builtins     []string
}

// SearchPath is the lookup order: project roots, stdlib, site-packages.
func (e Environment) SearchPath() []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range [][]string{e.ProjectRoots, e.Stdlib, e.SitePackages} {
		for _, dir := range group {
			if dir == "" {
				continue
			}
			dir = filepath.Clean(dir)
			if seen[dir] {
				continue
			}
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

// PathFinder resolves names against an Environment on disk.
type PathFinder struct {
	search   []string
	builtins map[string]bool
}

func NewPathFinder(env Environment) *PathFinder {
	builtins := make(map[string]bool)
	names := env.Builtins
	if len(names) == 0 {
		names = DefaultBuiltins()
	}
	for _, name := range names {
		builtins[name] = true
	}
	return &PathFinder{search: env.SearchPath(), builtins: builtins}
}

var extensionSuffixes = []string{".so", ".pyd"}

func (f *PathFinder) Find(name string) (*ModuleSpec, error) {
	if name == "" || strings.HasPrefix(name, ".") {
		return nil, &FinderError{Kind: FinderValue, Name: name, Msg: "empty or relative module name"}
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return nil, &FinderError{Kind: FinderValue, Name: name, Msg: "empty module name component"}
		}
	}

	if f.builtins[parts[0]] {
		if len(parts) == 1 {
			loader := LoaderBuiltin
			if strings.HasPrefix(name, "_frozen") || name == "zipimport" {
				loader = LoaderFrozen
			}
			return &ModuleSpec{Name: name, Origin: loader.String(), Loader: loader}, nil
		}
		return nil, &FinderError{Kind: FinderAttribute, Name: name, Msg: fmt.Sprintf("module %q has no attribute __path__", parts[0])}
	}

	locations := f.search
	var spec *ModuleSpec
	for i, part := range parts {
		qualified := strings.Join(parts[:i+1], ".")
		if i > 0 {
			if !spec.IsPackage() {
				return nil, &FinderError{Kind: FinderNotFound, Name: name, Msg: fmt.Sprintf("%q is not a package", spec.Name)}
			}
			locations = spec.Locations
		}
		spec = findIn(qualified, part, locations)
		if spec == nil {
			if i == len(parts)-1 {
				return nil, nil
			}
			return nil, &FinderError{Kind: FinderNotFound, Name: name, Msg: fmt.Sprintf("no module named %q", qualified)}
		}
	}
	return spec, nil
}

func findIn(qualified, part string, locations []string) *ModuleSpec {
	var namespace []string
	for _, loc := range locations {
		pkgDir := filepath.Join(loc, part)
		if init := filepath.Join(pkgDir, "__init__.py"); util.IsFile(init) {
			return &ModuleSpec{Name: qualified, Origin: init, Loader: LoaderSource, Locations: []string{pkgDir}}
		}
		if file := filepath.Join(loc, part+".py"); util.IsFile(file) {
			return &ModuleSpec{Name: qualified, Origin: file, Loader: LoaderSource}
		}
		if ext := findExtension(loc, part); ext != "" {
			return &ModuleSpec{Name: qualified, Origin: ext, Loader: LoaderExtension}
		}
		if file := filepath.Join(loc, part+".pyc"); util.IsFile(file) {
			return &ModuleSpec{Name: qualified, Origin: file, Loader: LoaderBytecode}
		}
		if util.IsDir(pkgDir) {
			namespace = append(namespace, pkgDir)
		}
	}
	if len(namespace) > 0 {
		return &ModuleSpec{Name: qualified, Loader: LoaderNamespace, Locations: namespace}
	}
	return nil
}

func findExtension(dir, part string) string {
	for _, suffix := range extensionSuffixes {
		if plain := filepath.Join(dir, part+suffix); util.IsFile(plain) {
			return plain
		}
		matches, err := filepath.Glob(filepath.Join(dir, part+".*"+suffix))
		if err == nil && len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

// isPackageDir reports whether dir holds an __init__.py marker.
func isPackageDir(dir string) bool {
	return util.IsFile(filepath.Join(dir, "__init__.py"))
}
