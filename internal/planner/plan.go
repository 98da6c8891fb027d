package planner

import (
	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// maxPermutedChildren bounds how many children at one node the
// permutation search tries exhaustively. Realistic rule bodies have a
// handful of core atoms; beyond this the search keeps the Prim-assigned
// order for that node rather than factorially exploding (the original's
// own codegen limits, reading/src/config.rs's PROD_MAX, play the same
// role of capping combinatorial join-shape search).
const maxPermutedChildren = 6

// Build constructs the join tree for a rule's core atoms (spec §4.4).
// wantPlan selects between the cheap default chain and the Prim-searched
// tree-width-minimizing shape; headVars is the set of variables the rule
// head exports, which participates in the root width computation.
func Build(cat *catalog.Catalog, wantPlan bool, headVars []string) (*Tree, error) {
	core := cat.CoreAtoms()
	if len(core) == 0 {
		ferrors.Invariant("catalog has no core atoms")
	}

	exportVars := map[string]bool{}
	for _, v := range headVars {
		exportVars[v] = true
	}

	if !wantPlan || len(core) == 1 {
		return defaultChain(cat, core, exportVars), nil
	}

	var best *Tree
	for _, root := range core {
		parent := primMaxSpanningTree(cat, core, root)
		node := buildFromParent(root, core, parent)
		optimizeChildOrder(cat, node, exportVars)

		t := &Tree{
			Root:     node,
			RootAtom: root,
			Depth:    Depth(node),
		}
		t.Width = Width(cat, node, exportVars)

		if best == nil || better(t, best) {
			best = t
		}
	}

	logrus.WithFields(logrus.Fields{
		"width": best.Width,
		"depth": best.Depth,
		"root":  best.RootAtom,
	}).Debug("join tree planned")

	return best, nil
}

// better reports whether candidate improves on current: lower width wins,
// ties broken by lower depth, then by lower root-atom index (spec §4.4
// step 3).
func better(candidate, current *Tree) bool {
	if candidate.Width != current.Width {
		return candidate.Width < current.Width
	}
	if candidate.Depth != current.Depth {
		return candidate.Depth < current.Depth
	}
	return candidate.RootAtom < current.RootAtom
}

// defaultChain builds the spec §4.4 step 1 shape: atoms in body order,
// the rightmost (last) atom as root, each earlier atom nested one level
// deeper as the sole child of the next.
func defaultChain(cat *catalog.Catalog, core []int, exportVars map[string]bool) *Tree {
	var build func(remaining []int) *Node
	build = func(remaining []int) *Node {
		if len(remaining) == 1 {
			return &Node{AtomIndex: remaining[0]}
		}
		last := remaining[len(remaining)-1]
		return &Node{
			AtomIndex: last,
			Children:  []*Node{build(remaining[:len(remaining)-1])},
		}
	}
	root := build(core)
	return &Tree{
		Root:     root,
		RootAtom: core[len(core)-1],
		Depth:    Depth(root),
		Width:    Width(cat, root, exportVars),
	}
}

// optimizeChildOrder walks the tree bottom-up, and at each node with more
// than one child tries every permutation of child order, keeping whichever
// minimizes this node's width (spec §4.4 step 2's "for every permutation
// of children at every node, recompute width and depth").
func optimizeChildOrder(cat *catalog.Catalog, n *Node, exportVars map[string]bool) {
	for _, c := range n.Children {
		optimizeChildOrder(cat, c, exportVars)
	}
	if len(n.Children) <= 1 || len(n.Children) > maxPermutedChildren {
		return
	}

	best := append([]*Node(nil), n.Children...)
	bestWidth := Width(cat, n, exportVars)

	permute(n.Children, func(order []*Node) {
		n.Children = order
		w := Width(cat, n, exportVars)
		if w < bestWidth {
			bestWidth = w
			best = append([]*Node(nil), order...)
		}
	})

	n.Children = best
}

// permute calls f once per permutation of xs (Heap's algorithm), restoring
// xs's original order before returning.
func permute(xs []*Node, f func([]*Node)) {
	n := len(xs)
	c := make([]int, n)
	work := append([]*Node(nil), xs...)
	f(append([]*Node(nil), work...))
	i := 0
	for i < n {
		if c[i] < i {
			if i%2 == 0 {
				work[0], work[i] = work[i], work[0]
			} else {
				work[c[i]], work[i] = work[i], work[c[i]]
			}
			f(append([]*Node(nil), work...))
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}
