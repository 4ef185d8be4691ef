package pose

import (
	"strings"
)

// Dump renders the tree one node per line in pre-order. Each line is
// indented by one tab per level below the root and shows the label path
// from the root's child down to the node, e.g. "\t\t<Deck><Slot A1>".
// The root line shows only the root label.
func (t *Tracker) Dump() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.nodes.root == noIndex {
		return ""
	}

	var b strings.Builder
	var path []string
	t.nodes.preorder(t.nodes.root, func(idx int32, depth int) {
		n := t.nodes.get(idx)
		if depth == 0 {
			b.WriteString(n.label)
			b.WriteByte('\n')
			return
		}
		path = append(path[:depth-1], n.label)
		b.WriteString(strings.Repeat("\t", depth))
		for _, p := range path {
			b.WriteString(p)
		}
		b.WriteByte('\n')
	})
	return b.String()
}

func (t *Tracker) String() string {
	return t.Dump()
}
