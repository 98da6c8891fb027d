package planner

import (
	"container/heap"

	"github.com/flowlog-db/flowlog/internal/catalog"
)

// overlapEdge is a candidate Prim frontier edge: extending the tree from
// `from` (already in the tree) to `to` (not yet in the tree), with weight
// the size of their variable-set intersection. Isolated atoms — zero
// overlap with anything already in the tree — are still reachable, with
// weight 0, so every atom ends up attached somewhere (spec §4.4 step 2).
type overlapEdge struct {
	from, to int
	weight   int
}

type edgeHeap []overlapEdge

func (h edgeHeap) Len() int { return len(h) }
func (h edgeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight // max-heap
	}
	return h[i].to < h[j].to // deterministic tiebreak
}
func (h edgeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *edgeHeap) Push(x interface{}) { *h = append(*h, x.(overlapEdge)) }
func (h *edgeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// primMaxSpanningTree returns a parent map over core-atom indices, rooted
// at root: parent[child] = atom it attaches to, built by repeatedly adding
// the highest-overlap edge from the current tree to an atom not yet in it
// (spec §4.4 step 2). Ties on weight break toward the lower atom index,
// which in practice favors shallower, earlier-declared atoms — the
// practical stand-in for "shallowest-depth placement" before the tree's
// actual shape is known.
//
// An atom with zero variable overlap with every other atom (a true
// cartesian-product participant, not merely the current frontier's
// weakest edge) is excluded from that greedy process and instead attached
// directly to root with weight 0, per spec §4.4 step 2's "isolated nodes
// attached to the root with weight 0" — left to the ordinary frontier,
// two such atoms would still race for a weight-0 edge decided by
// edgeHeap's to-ascending tiebreak, which can park one of them under a
// non-root node the heap happened to pop first instead of under root.
func primMaxSpanningTree(cat *catalog.Catalog, atoms []int, root int) map[int]int {
	varsOf := map[int]map[string]bool{}
	for _, a := range atoms {
		varsOf[a] = atomVars(cat, a)
	}

	isolated := map[int]bool{}
	for _, a := range atoms {
		if a == root {
			continue
		}
		iso := true
		for _, b := range atoms {
			if b != a && intersectCount(varsOf[a], varsOf[b]) > 0 {
				iso = false
				break
			}
		}
		isolated[a] = iso
	}

	inTree := map[int]bool{root: true}
	parent := map[int]int{}
	for a, iso := range isolated {
		if iso {
			parent[a] = root
			inTree[a] = true
		}
	}

	var frontier edgeHeap
	pushFrontier := func(from int) {
		for _, to := range atoms {
			if inTree[to] || isolated[to] {
				continue
			}
			w := intersectCount(varsOf[from], varsOf[to])
			heap.Push(&frontier, overlapEdge{from: from, to: to, weight: w})
		}
	}
	pushFrontier(root)

	for len(inTree) < len(atoms) {
		if frontier.Len() == 0 {
			break
		}
		e := heap.Pop(&frontier).(overlapEdge)
		if inTree[e.to] {
			continue
		}
		inTree[e.to] = true
		parent[e.to] = e.from
		pushFrontier(e.to)
	}

	return parent
}

// buildFromParent converts a Prim parent map into a Node tree rooted at
// root, with each node's children initially in ascending atom-index order
// (permutation search reorders them afterward).
func buildFromParent(root int, atoms []int, parent map[int]int) *Node {
	children := map[int][]int{}
	for _, a := range atoms {
		if p, ok := parent[a]; ok {
			children[p] = append(children[p], a)
		}
	}
	var build func(int) *Node
	build = func(a int) *Node {
		kids := children[a]
		n := &Node{AtomIndex: a}
		for _, k := range kids {
			n.Children = append(n.Children, build(k))
		}
		return n
	}
	return build(root)
}
