package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"materiality/internal/core/errors"
	"materiality/internal/engine/resolver"
	"materiality/internal/engine/source"
	"materiality/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ErrNotBindable marks assignment targets that never introduce a name, such
// as subscripts.
var ErrNotBindable = stderrors.New("target does not bind a name")

type unknownTargetError struct {
	kind string
}

func (e *unknownTargetError) Error() string {
	return fmt.Sprintf("unsupported assignment target %q", e.kind)
}

type Diagnostic struct {
	Level   slog.Level
	Line    int
	Message string
}

// Module is the indexed form of one file.
type Module struct {
	Path        string
	Root        *Scope
	Imports     []*resolver.ImportReference
	Diagnostics []Diagnostic
}

type Indexer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{logger: logger}
}

// Index builds the scope tree of unit. An error means the file violated a
// structural invariant and nothing of it should be used.
func (ix *Indexer) Index(unit *source.Unit) (*Module, error) {
	start := time.Now()
	defer func() { observability.IndexDuration.Observe(time.Since(start).Seconds()) }()

	root := unit.Root()
	b := &builder{unit: unit, logger: ix.logger.With("path", unit.Path)}
	mod := newScope(KindModule, strings.TrimSuffix(filepath.Base(unit.Path), filepath.Ext(unit.Path)), lineOf(root), endLineOf(root), nil)
	if err := b.statements(root, mod); err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, unit.Path)
	}

	var imports []*resolver.ImportReference
	mod.Walk(func(s *Scope) bool {
		imports = append(imports, s.Imports...)
		return true
	})
	sort.SliceStable(imports, func(i, j int) bool { return imports[i].Line < imports[j].Line })

	return &Module{Path: unit.Path, Root: mod, Imports: imports, Diagnostics: b.diagnostics}, nil
}

type builder struct {
	unit        *source.Unit
	logger      *slog.Logger
	diagnostics []Diagnostic
}

func (b *builder) text(node *sitter.Node) string {
	return b.unit.Content(node)
}

func (b *builder) report(level slog.Level, node *sitter.Node, format string, args ...any) {
	d := Diagnostic{Level: level, Line: lineOf(node), Message: fmt.Sprintf(format, args...)}
	b.diagnostics = append(b.diagnostics, d)
	b.logger.Log(context.Background(), level, d.Message, "line", d.Line)
}

func (b *builder) invariant(node *sitter.Node, msg string) error {
	err := errors.New(errors.CodeInvariant, msg)
	return errors.AddContext(err, errors.CtxLine, lineOf(node))
}

func (b *builder) statements(container *sitter.Node, scope *Scope) error {
	for i := uint(0); i < container.NamedChildCount(); i++ {
		if err := b.statement(container.NamedChild(i), scope); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) statement(node *sitter.Node, scope *Scope) error {
	switch c := Classify(node.Kind()); c {
	case ConstructImport:
		b.importStatement(node, scope)
	case ConstructImportFrom:
		b.importFrom(node, scope)
	case ConstructFunction:
		return b.definition(node, KindFunction, scope)
	case ConstructClass:
		return b.definition(node, KindClass, scope)
	case ConstructDecorated:
		def := node.ChildByFieldName("definition")
		if def == nil {
			return b.invariant(node, "decorator without a definition")
		}
		return b.statement(def, scope)
	case ConstructExpression:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if Classify(child.Kind()) == ConstructAssignment {
				if err := b.assignment(child, scope); err != nil {
					return err
				}
			}
		}
	case ConstructAssignment:
		return b.assignment(node, scope)
	case ConstructStructural:
		return b.structural(node, scope)
	case ConstructBlock:
		return b.statements(node, scope)
	case ConstructError:
		b.report(slog.LevelWarn, node, "syntax error region, indexing what parsed")
		return b.statements(node, scope)
	case ConstructOther:
	default:
		panic(fmt.Sprintf("index: unhandled construct %d for %s", c, node.Kind()))
	}
	return nil
}

func (b *builder) structural(node *sitter.Node, scope *Scope) error {
	s := newScope(KindStructural, node.Kind(), lineOf(node), endLineOf(node), scope)
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch Classify(child.Kind()) {
		case ConstructBlock:
			if err := b.statements(child, s); err != nil {
				return err
			}
		case ConstructStructural:
			if err := b.structural(child, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) definition(node *sitter.Node, kind Kind, scope *Scope) error {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return b.invariant(node, kind.String()+" definition without a name")
	}
	name := b.text(nameNode)
	s := newScope(kind, name, lineOf(node), endLineOf(node), scope)
	scope.Bind(name, s)
	if body := node.ChildByFieldName("body"); body != nil {
		return b.statements(body, s)
	}
	return nil
}

func (b *builder) assignment(node *sitter.Node, scope *Scope) error {
	left := node.ChildByFieldName("left")
	if left == nil {
		return b.invariant(node, "assignment without a target")
	}
	lefts := []*sitter.Node{left}
	right := node.ChildByFieldName("right")
	for right != nil && right.Kind() == "assignment" {
		next := right.ChildByFieldName("left")
		if next == nil {
			return b.invariant(right, "chained assignment without a target")
		}
		lefts = append(lefts, next)
		right = right.ChildByFieldName("right")
	}

	for _, target := range lefts {
		names, err := b.targets(target)
		if err != nil {
			var unknown *unknownTargetError
			switch {
			case stderrors.Is(err, ErrNotBindable):
				continue
			case stderrors.As(err, &unknown):
				b.report(slog.LevelWarn, target, "%v", err)
				continue
			default:
				return err
			}
		}
		b.bind(names, right, scope)
	}
	return nil
}

// bind pairs names with values positionally. Excess names take the last
// consumed value.
func (b *builder) bind(names []string, right *sitter.Node, scope *Scope) {
	if len(names) == 0 {
		return
	}
	if right == nil {
		for _, name := range names {
			scope.Bind(name, nil)
		}
		return
	}

	values := []*sitter.Node{right}
	if len(names) > 1 && (right.Kind() == "tuple" || right.Kind() == "expression_list") {
		values = b.namedChildren(right)
	}
	if len(names) != len(values) {
		if len(values) == 1 {
			b.report(slog.LevelDebug, right, "many names to one value: %d names", len(names))
		} else {
			b.report(slog.LevelWarn, right, "arity mismatch: %d names, %d values", len(names), len(values))
		}
	}
	if len(values) == 0 {
		for _, name := range names {
			scope.Bind(name, nil)
		}
		return
	}

	scopes := make([]*Scope, 0, len(values))
	for i, name := range names {
		for len(scopes) <= i && len(scopes) < len(values) {
			scopes = append(scopes, b.expression(values[len(scopes)], scope))
		}
		scope.Bind(name, scopes[min(i, len(scopes)-1)])
	}
}

func (b *builder) expression(node *sitter.Node, scope *Scope) *Scope {
	s := newScope(KindExpression, node.Kind(), lineOf(node), endLineOf(node), scope)
	s.Text = b.text(node)
	return s
}

func (b *builder) targets(node *sitter.Node) ([]string, error) {
	switch node.Kind() {
	case "identifier":
		return []string{b.text(node)}, nil
	case "attribute":
		object := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if object == nil || attr == nil {
			return nil, b.invariant(node, "attribute target without object or attribute")
		}
		base, err := b.targets(object)
		if err != nil {
			return nil, err
		}
		if len(base) != 1 {
			return nil, b.invariant(node, fmt.Sprintf("attribute base binds %d names", len(base)))
		}
		return []string{base[0] + "." + b.text(attr)}, nil
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		var names []string
		for _, child := range b.namedChildren(node) {
			sub, err := b.targets(child)
			if stderrors.Is(err, ErrNotBindable) {
				continue
			}
			if err != nil {
				return nil, err
			}
			names = append(names, sub...)
		}
		return names, nil
	case "parenthesized_expression", "list_splat_pattern", "list_splat":
		children := b.namedChildren(node)
		if len(children) != 1 {
			return nil, &unknownTargetError{kind: node.Kind()}
		}
		return b.targets(children[0])
	case "subscript":
		return nil, ErrNotBindable
	default:
		return nil, &unknownTargetError{kind: node.Kind()}
	}
}

func (b *builder) importStatement(node *sitter.Node, scope *Scope) {
	for _, child := range b.namedChildren(node) {
		ref := b.newRef(node)
		switch child.Kind() {
		case "dotted_name":
			ref.Module = b.text(child)
		case "aliased_import":
			ref.Module = b.text(child.ChildByFieldName("name"))
			ref.Aliases = map[string]string{ref.Module: b.text(child.ChildByFieldName("alias"))}
		default:
			continue
		}
		scope.addImport(ref)
	}
}

func (b *builder) importFrom(node *sitter.Node, scope *Scope) {
	ref := b.newRef(node)
	moduleNode := node.ChildByFieldName("module_name")
	if node.Kind() == "future_import_statement" {
		ref.Module = "__future__"
		moduleNode = nil
	}
	if moduleNode != nil {
		if moduleNode.Kind() == "relative_import" {
			for _, part := range b.namedChildren(moduleNode) {
				switch part.Kind() {
				case "import_prefix":
					ref.Level = strings.Count(b.text(part), ".")
				case "dotted_name":
					ref.Module = b.text(part)
				}
			}
		} else {
			ref.Module = b.text(moduleNode)
		}
	}

	for _, child := range b.namedChildren(node) {
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			ref.Symbols = append(ref.Symbols, b.text(child))
		case "aliased_import":
			sym := b.text(child.ChildByFieldName("name"))
			ref.Symbols = append(ref.Symbols, sym)
			if ref.Aliases == nil {
				ref.Aliases = make(map[string]string)
			}
			ref.Aliases[sym] = b.text(child.ChildByFieldName("alias"))
		case "wildcard_import":
			ref.Symbols = append(ref.Symbols, "*")
		}
	}
	scope.addImport(ref)
}

func (b *builder) newRef(node *sitter.Node) *resolver.ImportReference {
	return &resolver.ImportReference{File: b.unit.Path, Line: lineOf(node)}
}

func (b *builder) namedChildren(node *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func lineOf(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// endLineOf does not count the line a trailing newline opens.
func endLineOf(node *sitter.Node) int {
	end := node.EndPosition()
	row := int(end.Row) + 1
	if end.Column == 0 && end.Row > node.StartPosition().Row {
		row--
	}
	return row
}
