package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"materiality/internal/shared/observability"
	"materiality/internal/shared/util"
)

// SymbolLookup answers whether a package marker file defines a name.
type SymbolLookup interface {
	DefinesSymbol(path, symbol string) (bool, error)
}

type pathKind int

const (
	pathNone pathKind = iota
	pathOverride
	pathRelative
	pathOrigin
)

type outcome struct {
	resolved   bool
	strategy   Strategy
	canonical  string
	path       string
	kind       pathKind
	members    []string
	memberMods []MemberModule
	reason     IgnoreReason
	detail     string
}

func ignored(reason IgnoreReason, canonical, detail string) outcome {
	return outcome{reason: reason, canonical: canonical, detail: detail}
}

type Resolver struct {
	finder    ModuleFinder
	area      *CrawlArea
	overrides *Overrides
	symbols   SymbolLookup
	logger    *slog.Logger
}

type Option func(*Resolver)

func WithOverrides(o *Overrides) Option {
	return func(r *Resolver) { r.overrides = o }
}

func WithSymbolLookup(s SymbolLookup) Option {
	return func(r *Resolver) { r.symbols = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func New(finder ModuleFinder, area *CrawlArea, opts ...Option) *Resolver {
	r := &Resolver{finder: finder, area: area, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.area == nil {
		r.area = NewCrawlArea(Environment{})
	}
	return r
}

// Resolve drives ref to a terminal state. Terminal references are left alone.
func (r *Resolver) Resolve(ref *ImportReference) {
	if !ref.NeedsResolution() {
		return
	}

	var o outcome
	if ref.IsRelative() {
		o = r.relative(ref, ref.Level)
		o.strategy = StrategyRelative
	} else {
		o = r.absolute(ref)
	}
	r.apply(ref, o)
	observability.ResolutionsTotal.WithLabelValues(ref.State().String(), string(ref.Reason())).Inc()
}

func (r *Resolver) apply(ref *ImportReference, o outcome) {
	if !o.resolved {
		ref.ignore(o.reason, o.canonical, o.detail)
		level := slog.LevelDebug
		if o.reason.IsException() || o.reason == ReasonRelativeUnresolved {
			level = slog.LevelInfo
		}
		r.logger.Log(context.Background(), level, "import ignored", "file", ref.File, "line", ref.Line, "import", ref.String(), "detail", o.detail)
		return
	}
	ref.resolve(o.strategy, o.canonical, func(dst *ImportReference) {
		switch o.kind {
		case pathOverride:
			dst.overridePath = o.path
		case pathRelative:
			dst.relativePath = o.path
		case pathOrigin:
			dst.originPath = o.path
		}
		dst.members = o.members
		dst.memberMods = o.memberMods
	})
	r.logger.Debug("import resolved", "file", ref.File, "line", ref.Line, "import", ref.String(), "path", ref.Path(), "strategy", string(o.strategy))
}

func (r *Resolver) absolute(ref *ImportReference) outcome {
	if o, ok := r.overrides.First(ref.Module); ok {
		return r.viaOverride(ref, o)
	}

	if sym, ok := singleSymbol(ref); ok {
		full := ref.Module + "." + sym
		if spec, err := r.finder.Find(full); err == nil && spec != nil && spec.Origin != "" && spec.Loader != LoaderNamespace {
			o := r.classify(full, spec)
			if o.resolved {
				return o
			}
		}
	}

	found, spec, tail, reason, detail := r.findSpec(ref.Module)
	if spec != nil {
		o := r.classify(found, spec)
		o.members = tail
		if o.resolved && found == ref.Module && spec.IsPackage() && len(ref.Symbols) > 1 {
			o.memberMods = r.submoduleMembers(ref, found)
		}
		return o
	}

	if reason == ReasonNotFound {
		if fb := r.relative(ref, 1); fb.resolved {
			fb.strategy = StrategyFallback
			return fb
		}
		if IsStandardLibrary(ref.Module) {
			return ignored(ReasonSystemLibrary, ref.Module, "standard library module")
		}
	}
	return ignored(reason, ref.Module, detail)
}

func (r *Resolver) viaOverride(ref *ImportReference, o Override) outcome {
	path, exact := o.PathFor(ref.Module)
	canonical := ref.Module
	var members []string
	if !exact {
		canonical = o.Prefix
		rest := strings.TrimPrefix(strings.TrimPrefix(ref.Module, o.Prefix), ".")
		if rest != "" {
			members = strings.Split(rest, ".")
		}
	} else if sym, ok := singleSymbol(ref); ok {
		if sub, subExact := o.PathFor(ref.Module + "." + sym); subExact && sub != path {
			path, canonical = sub, ref.Module+"."+sym
		}
	}
	return outcome{
		resolved:  true,
		strategy:  StrategyOverride,
		canonical: canonical,
		path:      path,
		kind:      pathOverride,
		members:   members,
	}
}

// findSpec asks the finder for name, stripping the last component after each
// miss. Only the final single-component attempt may turn an error into the
// ignore reason.
func (r *Resolver) findSpec(name string) (string, *ModuleSpec, []string, IgnoreReason, string) {
	var tail []string
	for {
		spec, err := r.finder.Find(name)
		if spec != nil {
			return name, spec, tail, ReasonNone, ""
		}
		i := strings.LastIndex(name, ".")
		if i < 0 {
			if err != nil {
				var fe *FinderError
				if stderrors.As(err, &fe) {
					return name, nil, tail, fe.Reason(), fe.Error()
				}
				return name, nil, tail, ReasonNotFoundError, err.Error()
			}
			return name, nil, tail, ReasonNotFound, fmt.Sprintf("no module named %q", name)
		}
		tail = append([]string{name[i+1:]}, tail...)
		name = name[:i]
	}
}

func (r *Resolver) classify(name string, spec *ModuleSpec) outcome {
	switch spec.Loader {
	case LoaderBuiltin, LoaderFrozen:
		return ignored(ReasonSystemLibrary, name, spec.Loader.String()+" module")
	case LoaderNamespace:
		for _, loc := range spec.Locations {
			if r.area.Contains(loc) {
				return outcome{resolved: true, strategy: StrategyEnvironment, canonical: name}
			}
		}
		return ignored(ReasonSystemLibrary, name, "namespace package outside crawl area")
	}
	if !r.area.Contains(spec.Origin) {
		return ignored(ReasonSystemLibrary, name, "origin outside crawl area: "+spec.Origin)
	}
	return outcome{resolved: true, strategy: StrategyEnvironment, canonical: name, path: spec.Origin, kind: pathOrigin}
}

func (r *Resolver) submoduleMembers(ref *ImportReference, pkg string) []MemberModule {
	var out []MemberModule
	for _, sym := range ref.Symbols {
		if sym == "*" {
			continue
		}
		full := pkg + "." + sym
		spec, err := r.finder.Find(full)
		if err != nil || spec == nil || spec.Origin == "" || !r.area.Contains(spec.Origin) {
			continue
		}
		out = append(out, MemberModule{Symbol: sym, Name: full, Path: spec.Origin})
	}
	return out
}

// relative resolves ref as if it were written with the given level.
func (r *Resolver) relative(ref *ImportReference, level int) outcome {
	dir := filepath.Dir(ref.File)
	for i := 0; i < level; i++ {
		if i > 0 {
			dir = filepath.Dir(dir)
		}
		if !isPackageDir(dir) {
			return ignored(ReasonRelativeUnresolved, ref.Module, fmt.Sprintf("%s is not a package", dir))
		}
	}

	var comps []string
	if ref.Module != "" {
		comps = strings.Split(ref.Module, ".")
	}
	cur := dir
	for i, comp := range comps {
		if file := filepath.Join(cur, comp+".py"); util.IsFile(file) {
			return outcome{
				resolved:  true,
				canonical: ModuleNameForPath(file),
				path:      file,
				kind:      pathRelative,
				members:   comps[i+1:],
			}
		}
		next := filepath.Join(cur, comp)
		if !util.IsDir(next) {
			return ignored(ReasonRelativeUnresolved, ref.Module, fmt.Sprintf("no module %q in %s", comp, cur))
		}
		cur = next
	}

	if !isPackageDir(cur) {
		return ignored(ReasonRelativeUnresolved, ref.Module, fmt.Sprintf("%s is not a package", cur))
	}
	init := filepath.Join(cur, "__init__.py")

	if sym, ok := singleSymbol(ref); ok {
		if sub := submodulePath(cur, sym); sub != "" {
			return outcome{resolved: true, canonical: ModuleNameForPath(sub), path: sub, kind: pathRelative}
		}
	}

	var mods []MemberModule
	for _, sym := range ref.Symbols {
		if sym == "*" {
			continue
		}
		if sub := submodulePath(cur, sym); sub != "" {
			mods = append(mods, MemberModule{Symbol: sym, Name: ModuleNameForPath(sub), Path: sub})
			continue
		}
		if !r.defines(init, sym) {
			return ignored(ReasonRelativeUnresolved, ref.Module, fmt.Sprintf("%s does not define %q", init, sym))
		}
	}
	return outcome{
		resolved:   true,
		canonical:  ModuleNameForPath(init),
		path:       init,
		kind:       pathRelative,
		memberMods: mods,
	}
}

func (r *Resolver) defines(init, sym string) bool {
	if r.symbols == nil {
		return true
	}
	ok, err := r.symbols.DefinesSymbol(init, sym)
	if err != nil {
		r.logger.Warn("cannot inspect package marker, assuming symbol exists", "path", init, "symbol", sym, "error", err)
		return true
	}
	return ok
}

func submodulePath(dir, name string) string {
	if file := filepath.Join(dir, name+".py"); util.IsFile(file) {
		return file
	}
	if init := filepath.Join(dir, name, "__init__.py"); util.IsFile(init) {
		return init
	}
	return ""
}

func singleSymbol(ref *ImportReference) (string, bool) {
	if len(ref.Symbols) != 1 || ref.Symbols[0] == "*" {
		return "", false
	}
	return ref.Symbols[0], true
}
