package cuttree

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/danielpatrickdp/cutflow/internal/format"
)

// #region report
// WriteCuts renders the tree with each cut's latest pass flag, weight and
// registered systematics. Indentation follows depth; " +" marks a branch under
// a parent with several children and " |" continues it.
func (t *Tree) WriteCuts(w io.Writer, mode format.Mode) error {
	tb := format.NewTable(mode)
	tb.Header("Cut name", "pass", "weight", "systs")
	t.root.cutRows(tb, 0, nil)
	tb.AlignRight(2, 3)
	_, err := fmt.Fprintln(w, tb.String())
	return err
}

func (n *Node) cutRows(tb *format.Table, indent int, multichild []int) {
	var b strings.Builder
	for i := 0; i < indent; i++ {
		switch {
		case slices.Contains(multichild, i+1) && indent == i+1:
			b.WriteString(" +")
		case slices.Contains(multichild, i+1):
			b.WriteString(" |")
		default:
			b.WriteString("  ")
		}
	}
	b.WriteString(n.name)

	pass := 0
	if n.pass {
		pass = 1
	}
	tb.Row(b.String(), pass, fmt.Sprintf("%.5f", n.weight), strings.Join(n.Systematics(), " "))

	if len(n.children) > 1 {
		multichild = append(slices.Clone(multichild), indent+1)
	}
	for _, c := range n.children {
		c.cutRows(tb, indent+1, multichild)
	}
}

// #endregion report
