package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
)

func writeTransitiveClosureProgram(t *testing.T, dir string) string {
	t.Helper()
	program := ast.Program{
		EDB: []ast.RelationDecl{{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		IDB: []ast.RelationDecl{{Name: "Path", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}},
		Rules: []ast.Rule{
			{
				Head:  ast.Head{Relation: "Path", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("y")}}},
				Atoms: []ast.Atom{{Relation: "Edge", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}}},
				Index: 0,
			},
			{
				Head: ast.Head{Relation: "Path", Args: []ast.HeadArg{{Expr: ast.ArithVar("x")}, {Expr: ast.ArithVar("z")}}},
				Atoms: []ast.Atom{
					{Relation: "Path", Args: []ast.Term{ast.VarTerm("x"), ast.VarTerm("y")}},
					{Relation: "Edge", Args: []ast.Term{ast.VarTerm("y"), ast.VarTerm("z")}},
				},
				Index: 1,
			},
		},
	}

	data, err := json.Marshal(program)
	require.NoError(t, err)
	path := filepath.Join(dir, "program.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunFlowlogEndToEndTransitiveClosure(t *testing.T) {
	dir := t.TempDir()
	programPath := writeTransitiveClosureProgram(t, dir)

	factsDir := filepath.Join(dir, "facts")
	require.NoError(t, os.MkdirAll(factsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(factsDir, "Edge"), []byte("1,2\n2,3\n"), 0o644))

	outDir := filepath.Join(dir, "out")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"-p", programPath,
		"-f", factsDir,
		"-c", outDir,
	})
	require.NoError(t, cmd.Execute())

	out, err := os.ReadFile(filepath.Join(outDir, "Path.csv"))
	require.NoError(t, err)
	require.Equal(t, "1,2\n1,3\n2,3\n", string(out))
}

func TestRunFlowlogRequiresProgramAndFacts(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	require.Error(t, cmd.Execute())
}
