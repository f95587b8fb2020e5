package report

import (
	"fmt"
	"io"
	"strings"

	"materiality/internal/engine/stattree"
)

// WriteTree prints the stat tree one module per line, children nested under
// "|-- " and "`-- " branches.
func WriteTree(w io.Writer, root *stattree.Node) error {
	_, err := io.WriteString(w, RenderTree(root))
	return err
}

func RenderTree(root *stattree.Node) string {
	if root == nil {
		return ""
	}
	type frame struct {
		node   *stattree.Node
		prefix string
		branch string
	}
	var buf strings.Builder
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		buf.WriteString(f.prefix)
		buf.WriteString(f.branch)
		buf.WriteString(nodeLine(f.node))
		buf.WriteByte('\n')

		childPrefix := f.prefix
		switch f.branch {
		case "|-- ":
			childPrefix += "|   "
		case "`-- ":
			childPrefix += "    "
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			branch := "|-- "
			if i == len(f.node.Children)-1 {
				branch = "`-- "
			}
			stack = append(stack, frame{node: f.node.Children[i], prefix: childPrefix, branch: branch})
		}
	}
	return buf.String()
}

func nodeLine(n *stattree.Node) string {
	where := n.RelPath
	if where == "" {
		where = n.Path
	}
	switch {
	case n.Err != nil:
		return fmt.Sprintf("%s (missing: %v)", n.Key, n.Err)
	case n.Repeat:
		return fmt.Sprintf("%s (repeat)", n.Key)
	case n.History == nil:
		return fmt.Sprintf("%s %s [%d lines] untracked", n.Key, where, n.Stats.Lines)
	}
	return fmt.Sprintf("%s %s [%d lines] %s x%d", n.Key, where, n.Stats.Lines, n.History.Stats, n.History.Stats.Count)
}
