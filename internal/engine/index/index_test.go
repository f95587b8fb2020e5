package index

import (
	"log/slog"
	"strings"
	"testing"

	"materiality/internal/engine/resolver"
	"materiality/internal/engine/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexSource(t *testing.T, src string) *Module {
	t.Helper()
	unit, err := source.Parse("/proj/mod.py", []byte(src))
	require.NoError(t, err)
	t.Cleanup(unit.Close)

	mod, err := New(nil).Index(unit)
	require.NoError(t, err)
	return mod
}

func symbolText(t *testing.T, s *Scope, name string) string {
	t.Helper()
	v, ok := s.Lookup(name)
	require.True(t, ok, "symbol %s not bound", name)
	require.NotNil(t, v, "symbol %s has no value", name)
	return v.Text
}

func TestImportForms(t *testing.T) {
	mod := indexSource(t, strings.Join([]string{
		"import a, b",
		"import a.b as c",
		"from m import x, y as z",
		"from . import sib",
		"from ..pkg.sub import thing",
		"from star import *",
		"from __future__ import annotations",
	}, "\n")+"\n")

	require.Len(t, mod.Imports, 8)

	assert.Equal(t, "a", mod.Imports[0].Module)
	assert.Equal(t, "b", mod.Imports[1].Module)
	assert.Empty(t, mod.Imports[0].Symbols)

	assert.Equal(t, "a.b", mod.Imports[2].Module)
	assert.Equal(t, []string{"c"}, mod.Imports[2].BoundNames())

	from := mod.Imports[3]
	assert.Equal(t, "m", from.Module)
	assert.Equal(t, []string{"x", "y"}, from.Symbols)
	assert.Equal(t, "z", from.Alias("y"))
	assert.Equal(t, []string{"x", "z"}, from.BoundNames())
	assert.Equal(t, 3, from.Line)

	rel := mod.Imports[4]
	assert.Equal(t, 1, rel.Level)
	assert.Equal(t, "", rel.Module)
	assert.Equal(t, []string{"sib"}, rel.Symbols)

	deep := mod.Imports[5]
	assert.Equal(t, 2, deep.Level)
	assert.Equal(t, "pkg.sub", deep.Module)
	assert.Equal(t, []string{"thing"}, deep.Symbols)

	assert.True(t, mod.Imports[6].IsStar())
	assert.Equal(t, "__future__", mod.Imports[7].Module)
	assert.Equal(t, []string{"annotations"}, mod.Imports[7].Symbols)

	for _, ref := range mod.Imports {
		assert.Equal(t, "/proj/mod.py", ref.File)
		assert.True(t, ref.NeedsResolution())
	}
}

func TestTupleValueExplodes(t *testing.T) {
	mod := indexSource(t, "a, b = (1, 2)\n")
	assert.Equal(t, "1", symbolText(t, mod.Root, "a"))
	assert.Equal(t, "2", symbolText(t, mod.Root, "b"))
	assert.Empty(t, mod.Diagnostics)
}

func TestBareTupleValueExplodes(t *testing.T) {
	mod := indexSource(t, "a, b = 1, 2\n")
	assert.Equal(t, "1", symbolText(t, mod.Root, "a"))
	assert.Equal(t, "2", symbolText(t, mod.Root, "b"))
}

func TestManyNamesToOneValue(t *testing.T) {
	mod := indexSource(t, "a, b = f()\n")
	assert.Equal(t, "f()", symbolText(t, mod.Root, "a"))
	assert.Equal(t, "f()", symbolText(t, mod.Root, "b"))

	va, _ := mod.Root.Lookup("a")
	vb, _ := mod.Root.Lookup("b")
	assert.Same(t, va, vb)

	require.Len(t, mod.Diagnostics, 1)
	assert.Equal(t, slog.LevelDebug, mod.Diagnostics[0].Level)
	assert.Contains(t, mod.Diagnostics[0].Message, "many names to one value")
}

func TestArityMismatchWarns(t *testing.T) {
	mod := indexSource(t, "a, b, c = 1, 2\n")
	assert.Equal(t, "1", symbolText(t, mod.Root, "a"))
	assert.Equal(t, "2", symbolText(t, mod.Root, "b"))
	assert.Equal(t, "2", symbolText(t, mod.Root, "c"))
	require.Len(t, mod.Diagnostics, 1)
	assert.Equal(t, slog.LevelWarn, mod.Diagnostics[0].Level)
}

func TestSubscriptTargetBindsNothing(t *testing.T) {
	mod := indexSource(t, "x[0] = 1\n")
	assert.Empty(t, mod.Root.SymbolNames())
	assert.Empty(t, mod.Diagnostics)
}

func TestChainedAssignment(t *testing.T) {
	mod := indexSource(t, "a = b = 3\n")
	assert.Equal(t, []string{"a", "b"}, mod.Root.SymbolNames())
	assert.Equal(t, "3", symbolText(t, mod.Root, "a"))
	assert.Equal(t, "3", symbolText(t, mod.Root, "b"))
}

func TestAttributeAndStarredTargets(t *testing.T) {
	mod := indexSource(t, "obj.attr = 1\nfirst, *rest = items\n")
	names := mod.Root.SymbolNames()
	assert.Contains(t, names, "obj.attr")
	assert.Contains(t, names, "first")
	assert.Contains(t, names, "rest")
}

func TestUnsupportedTargetWarns(t *testing.T) {
	mod := indexSource(t, "a.b().c = 1\n")
	assert.Empty(t, mod.Root.SymbolNames())
	require.Len(t, mod.Diagnostics, 1)
	assert.Equal(t, slog.LevelWarn, mod.Diagnostics[0].Level)
}

func TestAnnotatedWithoutValue(t *testing.T) {
	mod := indexSource(t, "x: int\ny: int = 4\n")
	v, ok := mod.Root.Lookup("x")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "4", symbolText(t, mod.Root, "y"))
}

func TestDefinitionsBindScopes(t *testing.T) {
	mod := indexSource(t, strings.Join([]string{
		"@decorator",
		"def f():",
		"    import json",
		"    return json",
		"",
		"class C:",
		"    attr = 1",
	}, "\n")+"\n")

	f, ok := mod.Root.Lookup("f")
	require.True(t, ok)
	assert.Equal(t, KindFunction, f.Kind)
	assert.Equal(t, 2, f.FirstLine)
	assert.Equal(t, 4, f.LastLine)

	c, ok := mod.Root.Lookup("C")
	require.True(t, ok)
	assert.Equal(t, KindClass, c.Kind)
	assert.True(t, c.Defines("attr"))
	assert.False(t, mod.Root.Defines("attr"))

	require.Len(t, mod.Imports, 1)
	assert.Empty(t, mod.Root.Imports)
	assert.Equal(t, []*resolver.ImportReference{mod.Imports[0]}, mod.Root.ImportsFor("f"))
	assert.Empty(t, mod.Root.ImportsFor("C"))
	assert.Empty(t, mod.Root.ImportsFor("missing"))
	assert.True(t, mod.Root.Interesting())
	assert.False(t, c.Interesting())
}

func TestStructuralBlocksForwardToEnclosingScope(t *testing.T) {
	mod := indexSource(t, strings.Join([]string{
		"try:",
		"    import simplejson as json",
		"except ImportError:",
		"    import json",
		"if json:",
		"    flag = True",
		"else:",
		"    flag = False",
	}, "\n")+"\n")

	assert.Len(t, mod.Root.Imports, 2)
	assert.True(t, mod.Root.Defines("json"))
	assert.Equal(t, "False", symbolText(t, mod.Root, "flag"))

	var structural []*Scope
	for _, child := range mod.Root.Children {
		if child.Kind == KindStructural {
			structural = append(structural, child)
		}
	}
	require.Len(t, structural, 2)
	assert.Equal(t, 1, structural[0].FirstLine)
	assert.Equal(t, 4, structural[0].LastLine)
	assert.Equal(t, 1, mod.Root.FirstLine)
	assert.Equal(t, 8, mod.Root.LastLine)
	assert.Equal(t, 8, mod.Root.Lines())
}

func TestVisibleImports(t *testing.T) {
	mod := indexSource(t, "import os\n\ndef f():\n    import sys\n    if sys:\n        pass\n")
	f, _ := mod.Root.Lookup("f")

	visible := f.Children[0].VisibleImports()
	require.Len(t, visible, 2)
	assert.Equal(t, "sys", visible[0].Ref().Module)
	assert.Equal(t, resolver.ProvenanceLocal, visible[0].Provenance())
	assert.Equal(t, "os", visible[1].Ref().Module)
	assert.Equal(t, resolver.ProvenanceInherited, visible[1].Provenance())

	again := visible[1].Recontextualize(resolver.ProvenanceLocal)
	assert.Equal(t, resolver.ProvenanceLocal, again.Provenance())
	assert.Equal(t, resolver.ProvenanceInherited, visible[1].Provenance())
	assert.Same(t, visible[1].Ref(), again.Ref())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ConstructOther, Classify("lambda"))
	assert.Equal(t, ConstructImportFrom, Classify("future_import_statement"))
	assert.Equal(t, ConstructStructural, Classify("with_statement"))
}

func TestIndexingIsRepeatable(t *testing.T) {
	a := indexSource(t, "import os\nx = 1\n")
	b := indexSource(t, "import os\nx = 1\n")
	assert.Equal(t, a.Root.SymbolNames(), b.Root.SymbolNames())
	assert.Equal(t, a.Root.Count(), b.Root.Count())
}
