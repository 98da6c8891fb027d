package xform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/planner"
)

func twoAtomJoinRule() ast.Rule {
	// Path(x,z) :- Edge(x,y), Edge(y,z).
	return ast.Rule{
		Head: ast.Head{Relation: "Path", Args: []ast.HeadArg{
			{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("z")},
		}},
		Atoms: []ast.Atom{
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
		},
	}
}

func singleAtomRule() ast.Rule {
	// Small(x) :- Big(x, y), y > 10.
	return ast.Rule{
		Head: ast.Head{Relation: "Small", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}}},
		Atoms: []ast.Atom{
			{Relation: "Big", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
		},
		Comparisons: []ast.Comparison{
			{Op: ast.Gt, Left: ast.ArithVar("y"), Right: ast.ArithConst(10)},
		},
	}
}

func negationRule() ast.Rule {
	// Lonely(x) :- Node(x), !Marked(x).
	return ast.Rule{
		Head: ast.Head{Relation: "Lonely", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}}},
		Atoms: []ast.Atom{
			{Relation: "Node", Args: []ast.Term{ast.VarTerm("x")}},
			{Relation: "Marked", Args: []ast.Term{ast.VarTerm("x")}, Negated: true},
		},
	}
}

func buildPlan(t *testing.T, rule ast.Rule) *Plan {
	t.Helper()
	cat, err := catalog.Build(rule)
	require.NoError(t, err)
	headVars := make([]string, len(rule.Head.Args))
	for i, ha := range rule.Head.Args {
		headVars[i] = ha.Expr.Head.Var
	}
	tree, err := planner.Build(cat, rule.WantPlan, headVars)
	require.NoError(t, err)
	plan, err := Synthesize(cat, tree, headVars)
	require.NoError(t, err)
	return plan
}

func TestSynthesizeTwoAtomJoinProducesOneJoinAndHeadMap(t *testing.T) {
	plan := buildPlan(t, twoAtomJoinRule())
	require.Equal(t, HeadMap, plan.Root.Kind)

	var sawJoin bool
	for _, n := range plan.Nodes {
		switch n.Kind {
		case JnKvKv, JnKvK, JnKKv, JnKK, Cartesian:
			sawJoin = true
		}
	}
	require.True(t, sawJoin, "expected at least one join transformation in %+v", plan.Nodes)
}

func TestSynthesizeSingleAtomFusesComparisonIntoReshape(t *testing.T) {
	plan := buildPlan(t, singleAtomRule())
	require.Equal(t, HeadMap, plan.Root.Kind)
	require.NotEmpty(t, plan.Nodes)

	var sawComparison bool
	for _, n := range plan.Nodes {
		if n.Flow != nil && len(n.Flow.Comparisons) > 0 {
			sawComparison = true
		}
	}
	require.True(t, sawComparison, "expected the y > 10 filter fused into a reshape flow")
}

func TestSynthesizeNegationProducesAntijoin(t *testing.T) {
	plan := buildPlan(t, negationRule())
	require.Equal(t, HeadMap, plan.Root.Kind)

	var sawAntijoin bool
	for _, n := range plan.Nodes {
		if n.Kind == NjKvK || n.Kind == NjKK {
			sawAntijoin = true
		}
	}
	require.True(t, sawAntijoin, "expected an antijoin transformation in %+v", plan.Nodes)
}

func TestCollectionSignatureHashIsDeterministic(t *testing.T) {
	sig := BaseAtomSignature("Edge")
	require.Equal(t, sig.Hash(), sig.Hash())

	other := BaseAtomSignature("Edge")
	require.Equal(t, sig.Hash(), other.Hash())

	different := BaseAtomSignature("Node")
	require.NotEqual(t, sig.Hash(), different.Hash())
}
