package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/engine"
)

func TestReadRelationParsesIntegerColumns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Edge"), []byte("1,2\n2,3\n\n3,4\n"), 0o644))

	decl := ast.RelationDecl{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}
	rows, err := ReadRelation(dir, decl, ",")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, int64(1), rows[0][0].Int)
	require.Equal(t, int64(2), rows[0][1].Int)
}

func TestReadRelationFallsBackToFactsExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Edge.facts"), []byte("1,2\n"), 0o644))

	decl := ast.RelationDecl{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}
	rows, err := ReadRelation(dir, decl, ",")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestReadRelationRejectsArityMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Edge"), []byte("1,2,3\n"), 0o644))

	decl := ast.RelationDecl{Name: "Edge", Attrs: []ast.Attr{{Type: ast.Number}, {Type: ast.Number}}}
	_, err := ReadRelation(dir, decl, ",")
	require.Error(t, err)
}

func TestReadRelationMissingFileReturnsMissingEDBError(t *testing.T) {
	dir := t.TempDir()
	decl := ast.RelationDecl{Name: "Ghost", Attrs: []ast.Attr{{Type: ast.Number}}}
	_, err := ReadRelation(dir, decl, ",")
	require.Error(t, err)
}

func TestWriteAllProducesCSVAndSizeSummary(t *testing.T) {
	dir := t.TempDir()
	dumps := []RelationDump{
		{Name: "Path", Rows: []engine.Row{
			{engine.IntValue(1), engine.IntValue(2)},
			{engine.IntValue(2), engine.IntValue(3)},
		}},
		{Name: "Empty"},
	}
	require.NoError(t, WriteAll(dir, dumps, ","))

	pathCSV, err := os.ReadFile(filepath.Join(dir, "Path.csv"))
	require.NoError(t, err)
	require.Equal(t, "1,2\n2,3\n", string(pathCSV))

	sizes, err := os.ReadFile(filepath.Join(dir, "sizes.txt"))
	require.NoError(t, err)
	require.Equal(t, "Empty: 0\nPath: 2\n", string(sizes))
}

func TestDumpRelationReassemblesKeyAndValue(t *testing.T) {
	store := engine.New()
	sig := uint64(42)
	store.Load(sig, 1, []engine.Row{
		{engine.IntValue(1), engine.IntValue(2)},
	})

	dump := DumpRelation("Path", store.Get(sig))
	require.Len(t, dump.Rows, 1)
	require.Equal(t, int64(1), dump.Rows[0][0].Int)
	require.Equal(t, int64(2), dump.Rows[0][1].Int)
}
