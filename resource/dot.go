package resource

import (
	"fmt"
	"io"
)

// DumpDOT writes a Graphviz DOT representation of the subtree rooted
// at n, the Go port of the source's sid_resource_dump_all_in_dot. Not
// part of the wire surface. No command or monitor endpoint in this
// repository calls it; the monitor snapshot carries worker state only.
func (n *Node) DumpDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph resources {"); err != nil {
		return err
	}
	if err := dumpNode(w, n); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func dumpNode(w io.Writer, n *Node) error {
	if _, err := fmt.Fprintf(w, "  %q [label=%q];\n", n.FullID(), n.id+"\\n("+n.typ.Name+")"); err != nil {
		return err
	}
	for _, c := range n.Children() {
		if _, err := fmt.Fprintf(w, "  %q -> %q;\n", n.FullID(), c.FullID()); err != nil {
			return err
		}
		if err := dumpNode(w, c); err != nil {
			return err
		}
	}
	return nil
}
