// Package facts implements spec §6's fact-file input and output
// boundary: loading one delimited file per EDB relation into engine.Row
// values, and writing one CSV file plus a size-summary file per IDB
// relation once the engine reaches its fixed point.
//
// Grounded on reading/src/reader.rs's reader/read_row_N (line-splitting,
// per-column integer parse, arity check against the declaration) and
// reading/src/inspect.rs's write_relation_to_file/printsize (one output
// file per relation, a separate size-summary listing).
package facts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/engine"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// DefaultDelimiter is used when the CLI's -d flag is not given.
const DefaultDelimiter = ","

// ReadRelation loads dir/<decl.Name> (or dir/<decl.Name>.facts if that
// exists instead — both naming conventions appear across the original's
// test fixtures) into rows, one engine.Row per non-empty line, validating
// every row's column count against decl's declared arity.
func ReadRelation(dir string, decl ast.RelationDecl, delimiter string) ([]engine.Row, error) {
	path, err := resolveFactPath(dir, decl.Name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.ErrMissingEDB.New(decl.Name, err.Error())
	}
	defer f.Close()

	var rows []engine.Row
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		row, err := parseRow(decl, line, delimiter, lineNo)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// resolveFactPath tries <dir>/<name> first, then <dir>/<name>.facts.
func resolveFactPath(dir, name string) (string, error) {
	plain := filepath.Join(dir, name)
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	withExt := filepath.Join(dir, name+".facts")
	if _, err := os.Stat(withExt); err == nil {
		return withExt, nil
	}
	return "", ferrors.ErrMissingEDB.New(name, plain)
}

func parseRow(decl ast.RelationDecl, line, delimiter string, lineNo int) (engine.Row, error) {
	cols := strings.Split(line, delimiter)
	if len(cols) != decl.Arity() {
		return nil, ferrors.ErrArityMismatch.New(decl.Name, lineNo, decl.Arity(), len(cols))
	}

	row := make(engine.Row, len(cols))
	for i, col := range cols {
		if decl.Attrs[i].Type == ast.String {
			row[i] = engine.StringValue(col)
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(col), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("relation %q row %d column %d: %w", decl.Name, lineNo, i+1, err)
		}
		row[i] = engine.IntValue(n)
	}
	return row, nil
}

// ReadAll loads every EDB relation in program from dir, keyed by relation
// name. workers is accepted for CLI-surface fidelity with spec §6's -w
// flag and spec §5's SPMD partitioning model, but internal/engine.InMemory
// evaluates every worker's share in one process, so there is nothing here
// to partition; a true multi-worker Store would call engine.PartitionOf
// per row instead of loading the full relation once.
func ReadAll(dir string, edb []ast.RelationDecl, delimiter string, workers int) (map[string][]engine.Row, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	out := map[string][]engine.Row{}
	for _, decl := range edb {
		rows, err := ReadRelation(dir, decl, delimiter)
		if err != nil {
			return nil, err
		}
		out[decl.Name] = rows
	}
	return out, nil
}
