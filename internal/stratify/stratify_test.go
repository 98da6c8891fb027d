package stratify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
)

func atom(rel string, vars ...string) ast.Atom {
	args := make([]ast.Term, len(vars))
	for i, v := range vars {
		args[i] = ast.VarTerm(v)
	}
	return ast.Atom{Relation: rel, Args: args}
}

func negAtom(rel string, vars ...string) ast.Atom {
	a := atom(rel, vars...)
	a.Negated = true
	return a
}

func headOf(rel string, vars ...string) ast.Head {
	args := make([]ast.HeadArg, len(vars))
	for i, v := range vars {
		args[i] = ast.HeadArg{Expr: ast.ArithVar(v)}
	}
	return ast.Head{Relation: rel, Args: args}
}

func TestBuildRecursiveTransitiveClosure(t *testing.T) {
	program := &ast.Program{
		EDB: []ast.RelationDecl{{Name: "arc", Attrs: []ast.Attr{{Name: "a"}, {Name: "b"}}}},
		IDB: []ast.RelationDecl{{Name: "tc", Attrs: []ast.Attr{{Name: "a"}, {Name: "b"}}}},
		Rules: []ast.Rule{
			{Head: headOf("tc", "x", "y"), Atoms: []ast.Atom{atom("arc", "x", "y")}, Index: 0},
			{Head: headOf("tc", "x", "z"), Atoms: []ast.Atom{atom("arc", "x", "y"), atom("tc", "y", "z")}, Index: 1},
		},
	}
	s, err := Build(program)
	require.NoError(t, err)
	require.Len(t, s.Rules, 2)
	require.True(t, s.Recursive[1])
	require.Equal(t, [][]int{{0}, {1}}, s.Rules)
}

func TestBuildStratifiedNegationOrdersAfterDependency(t *testing.T) {
	program := &ast.Program{
		EDB: []ast.RelationDecl{{Name: "E", Attrs: []ast.Attr{{Name: "x"}}}},
		IDB: []ast.RelationDecl{
			{Name: "R", Attrs: []ast.Attr{{Name: "x"}}},
			{Name: "S", Attrs: []ast.Attr{{Name: "x"}}},
		},
		Rules: []ast.Rule{
			{Head: headOf("R", "x"), Atoms: []ast.Atom{atom("E", "x")}, Index: 0},
			{Head: headOf("S", "x"), Atoms: []ast.Atom{atom("E", "x"), negAtom("R", "x")}, Index: 1},
		},
	}
	s, err := Build(program)
	require.NoError(t, err)
	require.Len(t, s.Rules, 2)
	require.Equal(t, []int{0}, s.Rules[0])
	require.Equal(t, []int{1}, s.Rules[1])
	require.False(t, s.Recursive[0])
	require.False(t, s.Recursive[1])
}

func TestBuildRejectsInconsistentHeadArity(t *testing.T) {
	program := &ast.Program{
		Rules: []ast.Rule{
			{Head: headOf("P", "x"), Atoms: []ast.Atom{atom("E", "x")}, Index: 0},
			{Head: headOf("P", "x", "y"), Atoms: []ast.Atom{atom("F", "x", "y")}, Index: 1},
		},
	}
	_, err := Build(program)
	require.Error(t, err)
}

func TestBuildRejectsInconsistentHeadAggregation(t *testing.T) {
	aggHead := ast.Head{
		Relation: "total",
		Args: []ast.HeadArg{
			{Expr: ast.ArithVar("g")},
			{Expr: ast.ArithVar("v"), Agg: ast.AggSum},
		},
	}
	program := &ast.Program{
		Rules: []ast.Rule{
			{Head: aggHead, Atoms: []ast.Atom{atom("t", "g", "v")}, Index: 0},
			{Head: headOf("total", "g", "v"), Atoms: []ast.Atom{atom("u", "g", "v")}, Index: 1},
		},
	}
	_, err := Build(program)
	require.Error(t, err)
}
