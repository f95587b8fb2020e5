package index

import (
	"materiality/internal/engine/resolver"
)

type Kind int

const (
	KindModule Kind = iota
	KindFunction
	KindClass
	KindStructural
	KindExpression
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindStructural:
		return "structural"
	default:
		return "expression"
	}
}

// Scope is a node of the indexed tree. Only module, function and class
// scopes own symbols and imports; structural and expression scopes exist for
// line spans and nesting.
type Scope struct {
	Kind      Kind
	Name      string
	Text      string
	FirstLine int
	LastLine  int
	Parent    *Scope
	Children  []*Scope
	Imports   []*resolver.ImportReference

	symbols map[string]*Scope
	order   []string
}

func newScope(kind Kind, name string, first, last int, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Name: name, FirstLine: first, LastLine: last, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, s)
		parent.expand(first, last)
	}
	return s
}

func (s *Scope) expand(first, last int) {
	for cur := s; cur != nil; cur = cur.Parent {
		changed := false
		if first < cur.FirstLine {
			cur.FirstLine = first
			changed = true
		}
		if last > cur.LastLine {
			cur.LastLine = last
			changed = true
		}
		if !changed {
			return
		}
	}
}

// IsBindingScope reports whether the scope owns a symbol table.
func (s *Scope) IsBindingScope() bool {
	return s.Kind == KindModule || s.Kind == KindFunction || s.Kind == KindClass
}

// Enclosing returns the nearest binding scope, s itself when it is one.
func (s *Scope) Enclosing() *Scope {
	cur := s
	for cur != nil && !cur.IsBindingScope() {
		cur = cur.Parent
	}
	return cur
}

// Bind records name in the enclosing binding scope. Rebinding keeps the
// original position and replaces the value.
func (s *Scope) Bind(name string, value *Scope) {
	target := s.Enclosing()
	if target.symbols == nil {
		target.symbols = make(map[string]*Scope)
	}
	if _, ok := target.symbols[name]; !ok {
		target.order = append(target.order, name)
	}
	target.symbols[name] = value
}

func (s *Scope) addImport(ref *resolver.ImportReference) {
	target := s.Enclosing()
	target.Imports = append(target.Imports, ref)
}

func (s *Scope) Lookup(name string) (*Scope, bool) {
	v, ok := s.symbols[name]
	return v, ok
}

// SymbolNames returns bound names in first-binding order.
func (s *Scope) SymbolNames() []string {
	return append([]string(nil), s.order...)
}

func (s *Scope) SymbolCount() int {
	return len(s.order)
}

// Defines reports whether name is bound, imported or possibly star-imported
// in this scope.
func (s *Scope) Defines(name string) bool {
	if _, ok := s.symbols[name]; ok {
		return true
	}
	for _, ref := range s.Imports {
		if ref.Binds(name) {
			return true
		}
	}
	return false
}

func (s *Scope) Lines() int {
	if s.LastLine < s.FirstLine {
		return 0
	}
	return s.LastLine - s.FirstLine + 1
}

// Walk visits s and its descendants in pre-order until fn returns false.
func (s *Scope) Walk(fn func(*Scope) bool) {
	stack := []*Scope{s}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			return
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Count returns the number of scopes in the subtree rooted at s.
func (s *Scope) Count() int {
	n := 0
	s.Walk(func(*Scope) bool {
		n++
		return true
	})
	return n
}

// ImportsFor returns the imports declared anywhere inside the scope bound to
// symbol, e.g. the function-level imports of a def.
func (s *Scope) ImportsFor(symbol string) []*resolver.ImportReference {
	bound, ok := s.Lookup(symbol)
	if !ok || bound == nil {
		return nil
	}
	var out []*resolver.ImportReference
	bound.Walk(func(cur *Scope) bool {
		out = append(out, cur.Imports...)
		return true
	})
	return out
}

// VisibleImports lists the scope's own imports followed by those inherited
// from enclosing binding scopes, innermost first.
func (s *Scope) VisibleImports() []resolver.ImportContext {
	var out []resolver.ImportContext
	start := s.Enclosing()
	for cur := start; cur != nil; cur = cur.Parent {
		if !cur.IsBindingScope() {
			continue
		}
		for _, ref := range cur.Imports {
			ctx := resolver.NewImportContext(ref, resolver.ProvenanceLocal)
			if cur != start {
				ctx = ctx.Recontextualize(resolver.ProvenanceInherited)
			}
			out = append(out, ctx)
		}
	}
	return out
}

// Interesting reports whether the subtree holds any import.
func (s *Scope) Interesting() bool {
	found := false
	s.Walk(func(cur *Scope) bool {
		if len(cur.Imports) > 0 {
			found = true
			return false
		}
		return true
	})
	return found
}
