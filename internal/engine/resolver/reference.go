package resolver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

type State int

const (
	StateUnresolved State = iota
	StateResolved
	StateIgnored
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateIgnored:
		return "ignored"
	default:
		return "unresolved"
	}
}

type IgnoreReason string

const (
	ReasonNone               IgnoreReason = ""
	ReasonNotFound           IgnoreReason = "not-found"
	ReasonSystemLibrary      IgnoreReason = "system-library"
	ReasonRelativeUnresolved IgnoreReason = "relative-unresolved"
	ReasonAttributeError     IgnoreReason = "exception:attribute"
	ReasonNotFoundError      IgnoreReason = "exception:not-found"
	ReasonValueError         IgnoreReason = "exception:value"
)

func (r IgnoreReason) IsException() bool {
	return strings.HasPrefix(string(r), "exception:")
}

type Strategy string

const (
	StrategyNone        Strategy = ""
	StrategyOverride    Strategy = "override"
	StrategyEnvironment Strategy = "environment"
	StrategyRelative    Strategy = "relative"
	StrategyFallback    Strategy = "fallback"
)

// MemberModule is a from-imported symbol that turned out to be a submodule.
type MemberModule struct {
	Symbol string
	Name   string
	Path   string
}

// ImportReference is one import statement's view of a module. The exported
// fields are fixed at indexing time; resolution fills the rest exactly once.
type ImportReference struct {
	File    string
	Module  string
	Symbols []string
	Aliases map[string]string
	Level   int
	Line    int

	state        State
	canonical    string
	overridePath string
	relativePath string
	originPath   string
	members      []string
	memberMods   []MemberModule
	reason       IgnoreReason
	strategy     Strategy
	detail       string
}

func (r *ImportReference) State() State { return r.state }
func (r *ImportReference) Resolved() bool { return r.state == StateResolved }
func (r *ImportReference) Ignored() bool { return r.state == StateIgnored }
func (r *ImportReference) NeedsResolution() bool { return r.state == StateUnresolved }
func (r *ImportReference) Canonical() string { return r.canonical }
func (r *ImportReference) Reason() IgnoreReason { return r.reason }
func (r *ImportReference) Strategy() Strategy { return r.strategy }
func (r *ImportReference) Detail() string { return r.detail }
func (r *ImportReference) IsRelative() bool { return r.Level > 0 }
func (r *ImportReference) IsStar() bool { return len(r.Symbols) == 1 && r.Symbols[0] == "*" }
func (r *ImportReference) Members() []string { return append([]string(nil), r.members...) }
func (r *ImportReference) MemberModules() []MemberModule {
	return append([]MemberModule(nil), r.memberMods...)
}

// Path returns the override path, then the relative path, then the origin
// reported by the environment.
func (r *ImportReference) Path() string {
	switch {
	case r.overridePath != "":
		return r.overridePath
	case r.relativePath != "":
		return r.relativePath
	default:
		return r.originPath
	}
}

// Alias returns the local name a symbol is bound to.
func (r *ImportReference) Alias(symbol string) string {
	if alias, ok := r.Aliases[symbol]; ok {
		return alias
	}
	return symbol
}

// BoundNames lists the names this import introduces into its scope.
func (r *ImportReference) BoundNames() []string {
	if len(r.Symbols) == 0 {
		if alias, ok := r.Aliases[r.Module]; ok {
			return []string{alias}
		}
		head, _, _ := strings.Cut(r.Module, ".")
		return []string{head}
	}
	names := make([]string, 0, len(r.Symbols))
	for _, sym := range r.Symbols {
		if sym == "*" {
			continue
		}
		names = append(names, r.Alias(sym))
	}
	return names
}

// Binds reports whether the import makes name available, star imports count.
func (r *ImportReference) Binds(name string) bool {
	if r.IsStar() {
		return true
	}
	for _, bound := range r.BoundNames() {
		if bound == name {
			return true
		}
	}
	return false
}

// CrawlPaths lists the source files resolution located, primary path first.
func (r *ImportReference) CrawlPaths() []string {
	if r.state != StateResolved {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] || !Crawlable(p) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	add(r.Path())
	for _, m := range r.memberMods {
		add(m.Path)
	}
	return out
}

// Crawlable reports whether path is Python source or bytecode.
func Crawlable(path string) bool {
	switch filepath.Ext(path) {
	case ".py", ".pyc":
		return true
	}
	return false
}

func (r *ImportReference) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat(".", r.Level))
	b.WriteString(r.Module)
	if len(r.Symbols) > 0 {
		syms := make([]string, len(r.Symbols))
		for i, s := range r.Symbols {
			if alias := r.Alias(s); alias != s {
				s = s + " as " + alias
			}
			syms[i] = s
		}
		fmt.Fprintf(&b, " import %s", strings.Join(syms, ", "))
	}
	switch r.state {
	case StateResolved:
		fmt.Fprintf(&b, " -> %s", r.canonical)
	case StateIgnored:
		fmt.Fprintf(&b, " (%s)", r.reason)
	}
	return b.String()
}

func (r *ImportReference) resolve(strategy Strategy, canonical string, set func(*ImportReference)) {
	if r.state != StateUnresolved {
		return
	}
	r.state = StateResolved
	r.strategy = strategy
	r.canonical = canonical
	if set != nil {
		set(r)
	}
	sort.SliceStable(r.memberMods, func(i, j int) bool { return r.memberMods[i].Symbol < r.memberMods[j].Symbol })
}

func (r *ImportReference) ignore(reason IgnoreReason, canonical, detail string) {
	if r.state != StateUnresolved {
		return
	}
	r.state = StateIgnored
	r.reason = reason
	r.canonical = canonical
	r.detail = detail
}

// Provenance tells whether an import was declared in a scope or inherited
// from an enclosing one.
type Provenance int

const (
	ProvenanceLocal Provenance = iota
	ProvenanceInherited
)

func (p Provenance) String() string {
	if p == ProvenanceInherited {
		return "inherited"
	}
	return "local"
}

// ImportContext is an immutable pairing of a reference with its provenance.
type ImportContext struct {
	ref        *ImportReference
	provenance Provenance
}

func NewImportContext(ref *ImportReference, p Provenance) ImportContext {
	return ImportContext{ref: ref, provenance: p}
}

func (c ImportContext) Ref() *ImportReference { return c.ref }
func (c ImportContext) Provenance() Provenance { return c.provenance }

// Recontextualize returns a copy with a different provenance.
func (c ImportContext) Recontextualize(p Provenance) ImportContext {
	return ImportContext{ref: c.ref, provenance: p}
}
