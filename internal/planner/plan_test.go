package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
)

func chainRule() ast.Rule {
	// P(x,y,z,w) :- A(x,y), B(y,z), C(z,w).
	return ast.Rule{
		Head: ast.Head{Relation: "P", Args: []ast.HeadArg{
			{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("w")},
		}},
		Atoms: []ast.Atom{
			{Relation: "A", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "B", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
			{Relation: "C", Args: []ast.Term{ast.VarTerm("z"), ast.VarTerm("w")}},
		},
	}
}

func TestDefaultChainRootIsLastAtom(t *testing.T) {
	c, err := catalog.Build(chainRule())
	require.NoError(t, err)
	tree, err := Build(c, false, []string{"x", "w"})
	require.NoError(t, err)
	require.Equal(t, 2, tree.RootAtom)
}

func TestPlannedTreeWidthNeverExceedsChain(t *testing.T) {
	c, err := catalog.Build(chainRule())
	require.NoError(t, err)
	chain, err := Build(c, false, []string{"x", "w"})
	require.NoError(t, err)
	planned, err := Build(c, true, []string{"x", "w"})
	require.NoError(t, err)
	require.LessOrEqual(t, planned.Width, chain.Width)
}

// TestChainTreeShapeMatchesExpectedNodes asserts the exact join-tree shape
// (atom indices and child order) produced for chainRule's default
// body-order tree. testify's require.Equal (reflect.DeepEqual under the
// hood) would also walk Node's memoized, lazily-populated `vars` field and
// every nested *Node pointer without a readable diff on mismatch; cmp.Diff
// with cmpopts.IgnoreUnexported(Node{}) compares only the shape that
// matters (AtomIndex/Children) and reports which node differs by path.
func TestChainTreeShapeMatchesExpectedNodes(t *testing.T) {
	c, err := catalog.Build(chainRule())
	require.NoError(t, err)
	tree, err := Build(c, false, []string{"x", "w"})
	require.NoError(t, err)

	// A(x,y), B(y,z), C(z,w): default chain rooted at the last atom (C),
	// each node's single child is the atom before it in body order.
	expected := &Node{
		AtomIndex: 2,
		Children: []*Node{
			{
				AtomIndex: 1,
				Children: []*Node{
					{AtomIndex: 0},
				},
			},
		},
	}

	if diff := cmp.Diff(expected, tree.Root, cmpopts.IgnoreUnexported(Node{})); diff != "" {
		t.Errorf("chain tree shape mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleCoreAtomTreeIsLeaf(t *testing.T) {
	rule := ast.Rule{
		Head:  ast.Head{Relation: "Q", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}}},
		Atoms: []ast.Atom{{Relation: "A", Args: []ast.Term{ast.VarTerm("x")}}},
	}
	c, err := catalog.Build(rule)
	require.NoError(t, err)
	tree, err := Build(c, true, []string{"x"})
	require.NoError(t, err)
	require.Empty(t, tree.Root.Children)
	require.Equal(t, 0, tree.Width)
}
