// Package planner builds, per rule, the join tree over core atoms that
// minimizes intermediate-join width (spec §4.4): a default body-order
// chain, and — when planning is requested — a Prim maximum-overlap
// spanning tree searched over root choice and child-order permutations.
package planner

import (
	"fmt"
	"strings"

	"github.com/flowlog-db/flowlog/internal/catalog"
)

// Node is one join-tree node: a core atom plus an ordered list of
// children. The last child is the "planning-side" of the join at this
// node; the atom plus the other children form the "leftover-side"
// (spec §4.4, §4.5).
type Node struct {
	AtomIndex int // index into the rule's catalog.PositiveAtoms
	Children  []*Node

	vars map[string]bool // memoized union of variables under this subtree
}

// Tree is a fully built join tree for one rule, plus its computed width
// and depth used to compare candidate shapes.
type Tree struct {
	Root       *Node
	Width      int
	Depth      int
	RootAtom   int // candidate-root atom index, for the final index tiebreak
}

func atomVars(cat *catalog.Catalog, atomIdx int) map[string]bool {
	set := map[string]bool{}
	for _, v := range cat.PositiveAtoms[atomIdx].Vars() {
		set[v] = true
	}
	return set
}

func varsOfSubtree(cat *catalog.Catalog, n *Node) map[string]bool {
	if n.vars != nil {
		return n.vars
	}
	set := atomVars(cat, n.AtomIndex)
	for _, c := range n.Children {
		for v := range varsOfSubtree(cat, c) {
			set[v] = true
		}
	}
	n.vars = set
	return set
}

func union(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func intersectCount(a, b map[string]bool) int {
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

// Width computes the node's width per spec §4.4: the max of (a) the
// width of the leftover-side with its last child detached, (b) the width
// of the planning-side (last child) subtree, and (c) the arity of the
// intermediate join — the size of the intersection of the planning side's
// variables with the leftover side's variables union the caller-requested
// export variables. Leaves have width 0.
func Width(cat *catalog.Catalog, n *Node, exportVars map[string]bool) int {
	if len(n.Children) == 0 {
		return 0
	}
	last := n.Children[len(n.Children)-1]
	rest := n.Children[:len(n.Children)-1]
	leftover := &Node{AtomIndex: n.AtomIndex, Children: rest}

	leftoverVars := varsOfSubtree(cat, leftover)
	planningVars := varsOfSubtree(cat, last)

	a := Width(cat, leftover, exportVars)
	b := Width(cat, last, exportVars)
	needed := union(leftoverVars, exportVars)
	arity := intersectCount(planningVars, needed)

	return max3(a, b, arity)
}

// Depth returns the tree's height: 0 for a leaf, else 1 + the maximum
// child depth.
func Depth(n *Node) int {
	if len(n.Children) == 0 {
		return 0
	}
	best := 0
	for _, c := range n.Children {
		if d := Depth(c); d > best {
			best = d
		}
	}
	return best + 1
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// String renders the tree with box-drawing connectors, the Go analogue of
// the original optimizer's Display impl (SPEC_FULL.md Supplemented
// Feature 2).
func (t *Tree) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan (width=%d depth=%d root=%d):\n", t.Width, t.Depth, t.RootAtom)
	renderNode(&b, t.Root, "")
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, prefix string) {
	fmt.Fprintf(b, "%s[atom %d]\n", prefix, n.AtomIndex)
	for i, c := range n.Children {
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(n.Children)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}
		b.WriteString(prefix + connector)
		b.WriteString(fmt.Sprintf("child %d:\n", i))
		renderNode(b, c, childPrefix)
	}
}
