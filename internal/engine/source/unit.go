package source

import (
	"bytes"

	"materiality/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Unit is one decoded, parsed Python file. Callers must Close it to release
// the tree-sitter tree.
type Unit struct {
	Path     string
	Text     []byte
	Encoding string

	tree *sitter.Tree
}

var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

// Parse builds a Unit from already decoded UTF-8 text.
func Parse(path string, text []byte) (*Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(pythonLanguage); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load python grammar")
	}

	tree := parser.Parse(text, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parser returned no tree"), errors.CtxPath, path)
	}
	return &Unit{Path: path, Text: text, Encoding: defaultEncoding, tree: tree}, nil
}

func (u *Unit) Root() *sitter.Node {
	return u.tree.RootNode()
}

// HasSyntaxErrors reports whether tree-sitter had to recover from errors.
func (u *Unit) HasSyntaxErrors() bool {
	return u.tree.RootNode().HasError()
}

// Content returns the source text covered by node.
func (u *Unit) Content(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(u.Text[node.StartByte():node.EndByte()])
}

// LineCount counts physical lines, a trailing newline does not open a new one.
func (u *Unit) LineCount() int {
	if len(u.Text) == 0 {
		return 0
	}
	n := bytes.Count(u.Text, []byte("\n"))
	if u.Text[len(u.Text)-1] != '\n' {
		n++
	}
	return n
}

func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}
