package compile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/driver"
	"github.com/flowlog-db/flowlog/internal/engine"
	"github.com/flowlog-db/flowlog/internal/xform"
)

func transitiveClosureProgram() *ast.Program {
	r0 := ast.Rule{
		Head:  ast.Head{Relation: "Path", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("y")}}},
		Atoms: []ast.Atom{{Relation: "Edge", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}}},
		Index: 0,
	}
	r1 := ast.Rule{
		Head: ast.Head{Relation: "Path", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("z")}}},
		Atoms: []ast.Atom{
			{Relation: "Path", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
		},
		Index: 1,
	}
	return &ast.Program{
		EDB:   []ast.RelationDecl{{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		IDB:   []ast.RelationDecl{{Name: "Path", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		Rules: []ast.Rule{r0, r1},
	}
}

func TestCompileProducesOneRecursiveStratum(t *testing.T) {
	plan, err := Compile(transitiveClosureProgram(), Options{})
	require.NoError(t, err)
	require.Len(t, plan.Strata.Rules, 2)
	require.Len(t, plan.Schedule.Strata, 2)
	require.True(t, plan.Schedule.Strata[1].Recursive)
}

func TestCompileRejectsUndeclaredRelation(t *testing.T) {
	program := transitiveClosureProgram()
	program.Rules[0].Atoms[0].Relation = "Ghost"

	_, err := Compile(program, Options{})
	require.Error(t, err)
}

func TestCompileOptLevelOverridesPerRulePlanAnnotation(t *testing.T) {
	program := transitiveClosureProgram()
	program.Rules[1].WantPlan = false

	level := 2
	plan, err := Compile(program, Options{OptLevel: &level})
	require.NoError(t, err)
	require.NotNil(t, plan)
}

func TestExpandSIPLeavesNonAnnotatedRuleUnchanged(t *testing.T) {
	program := transitiveClosureProgram()
	expanded, err := expandSIP(program, Options{})
	require.NoError(t, err)
	require.Len(t, expanded.Rules, len(program.Rules))
	require.Equal(t, program.IDB, expanded.IDB)
}

func TestExpandSIPRewritesThreeAtomAnnotatedRule(t *testing.T) {
	// Chain(w,z) :- Edge(w,x), Edge(x,y), Edge(y,z). with SIP requested.
	rule := ast.Rule{
		Head: ast.Head{Relation: "Chain", Args: []ast.HeadArg{{Expr: ast.ArithVar("w")}, {Expr: ast.ArithVar("z")}}},
		Atoms: []ast.Atom{
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("w"), ast.VarTerm("x")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
		},
		WantSIP: true,
		Index:   0,
	}
	program := &ast.Program{
		EDB:   []ast.RelationDecl{{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		IDB:   []ast.RelationDecl{{Name: "Chain", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		Rules: []ast.Rule{rule},
	}

	expanded, err := expandSIP(program, Options{})
	require.NoError(t, err)
	require.Greater(t, len(expanded.Rules), 1, "a 3-atom SIP rule should expand into reducers plus a final rule")
	require.Greater(t, len(expanded.IDB), len(program.IDB), "reducer relations must be declared as new IDBs")

	for i, r := range expanded.Rules {
		require.Equal(t, i, r.Index)
	}
}

// threeHopChainProgram builds Chain(w,z):-Edge(w,x),Edge(x,y),Edge(y,z),
// with SIP rewriting set per withSIP, for TestCompileSIPEquivalence.
func threeHopChainProgram(withSIP bool) *ast.Program {
	rule := ast.Rule{
		Head: ast.Head{Relation: "Chain", Args: []ast.HeadArg{{Expr: ast.ArithVar("w")}, {Expr: ast.ArithVar("z")}}},
		Atoms: []ast.Atom{
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("w"), ast.VarTerm("x")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
			{Relation: "Edge", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
		},
		WantSIP: withSIP,
		Index:   0,
	}
	return &ast.Program{
		EDB:   []ast.RelationDecl{{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		IDB:   []ast.RelationDecl{{Name: "Chain", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		Rules: []ast.Rule{rule},
	}
}

// TestCompileSIPEquivalence covers scenario 6: compiling and running the
// same program with and without SIP rewriting produces identical final IDB
// contents, since SIP only changes how a rule's reducer chain narrows its
// joins, never which bindings satisfy the original rule.
func TestCompileSIPEquivalence(t *testing.T) {
	run := func(withSIP bool) map[[2]int64]bool {
		plan, err := Compile(threeHopChainProgram(withSIP), Options{})
		require.NoError(t, err)

		store := engine.New()
		store.Load(xform.BaseAtomSignature("Edge").Hash(), 0, []engine.Row{
			{engine.IntValue(1), engine.IntValue(2)},
			{engine.IntValue(2), engine.IntValue(3)},
			{engine.IntValue(3), engine.IntValue(4)},
			{engine.IntValue(4), engine.IntValue(5)},
		})

		d := driver.New(store, nil)
		require.NoError(t, d.Run(plan.Schedule))

		rel := store.Get(xform.BaseAtomSignature("Chain").Hash())
		require.NotNil(t, rel)
		got := map[[2]int64]bool{}
		rel.Each(func(_, v engine.Row) {
			got[[2]int64{v[0].Int, v[1].Int}] = true
		})
		return got
	}

	require.Equal(t, run(false), run(true))
}
