package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
)

// TestPrimAttachesIsolatedAtomToRoot covers spec §4.4 step 2's "isolated
// nodes attached to the root with weight 0": D shares no variable with A
// or B, so it must parent directly under whatever root Prim is asked to
// build from, never under a non-root node the frontier heap's to-ascending
// tiebreak happens to pop first.
func TestPrimAttachesIsolatedAtomToRoot(t *testing.T) {
	// A(x,y), B(y,z), D(p,q) :- D is isolated from A and B.
	rule := ast.Rule{
		Head: ast.Head{Relation: "P", Args: []ast.HeadArg{
			{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("z")},
		}},
		Atoms: []ast.Atom{
			{Relation: "A", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "B", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
			{Relation: "D", Args: []ast.Term{ast.VarTerm("p"), ast.VarTerm("q")}},
		},
	}
	c, err := catalog.Build(rule)
	require.NoError(t, err)

	parent := primMaxSpanningTree(c, []int{0, 1, 2}, 0)
	require.Equal(t, 0, parent[2], "isolated atom D must attach directly to the tree root")
}

// TestPrimTwoIsolatedAtomsBothAttachToRoot guards against the frontier
// heap parking one isolated atom under the other instead of under root,
// which a pure weight-0 tiebreak on `to` alone cannot prevent.
func TestPrimTwoIsolatedAtomsBothAttachToRoot(t *testing.T) {
	// A(x,y), D(p,q), E(r,s) :- D and E are each isolated from A and from
	// each other.
	rule := ast.Rule{
		Head: ast.Head{Relation: "P", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}}},
		Atoms: []ast.Atom{
			{Relation: "A", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "D", Args: []ast.Term{ast.VarTerm("p"), ast.VarTerm("q")}},
			{Relation: "E", Args: []ast.Term{ast.VarTerm("r"), ast.VarTerm("s")}},
		},
	}
	c, err := catalog.Build(rule)
	require.NoError(t, err)

	parent := primMaxSpanningTree(c, []int{0, 1, 2}, 0)
	require.Equal(t, 0, parent[1])
	require.Equal(t, 0, parent[2])
}
