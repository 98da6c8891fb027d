package facts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowlog-db/flowlog/internal/engine"
)

// RelationDump is one IDB relation's materialized rows, ready to write.
type RelationDump struct {
	Name string
	Rows []engine.Row
}

// WriteAll writes one <dir>/<name>.csv per dump, one row per line using
// delimiter, plus a single <dir>/sizes.txt listing "<name>: <count>" per
// relation in name order (spec §6's size-summary file).
//
// Grounded on reading/src/inspect.rs's write_relation_to_file (one file
// per relation) and printsize (a separate size line per relation); this
// reimplementation writes the size summary to one file instead of stdout
// since a batch compiler has no interactive console to address.
func WriteAll(dir string, dumps []RelationDump, delimiter string) error {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	sorted := append([]RelationDump{}, dumps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	sizes, err := os.Create(filepath.Join(dir, "sizes.txt"))
	if err != nil {
		return fmt.Errorf("creating size-summary file: %w", err)
	}
	defer sizes.Close()

	for _, d := range sorted {
		if err := writeRelationCSV(dir, d, delimiter); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(sizes, "%s: %d\n", d.Name, len(d.Rows)); err != nil {
			return fmt.Errorf("writing size summary for %s: %w", d.Name, err)
		}
	}
	return nil
}

func writeRelationCSV(dir string, d RelationDump, delimiter string) error {
	path := filepath.Join(dir, d.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", path, err)
	}
	defer f.Close()

	for _, row := range d.Rows {
		for i, v := range row {
			if i > 0 {
				if _, err := f.WriteString(delimiter); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
			}
			if _, err := f.WriteString(v.String()); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
		}
		if _, err := f.WriteString("\n"); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// DumpRelation reads every row out of rel (Relation.Each yields key and
// value halves; DumpRelation reassembles them into flat output rows in
// key-then-value column order, matching the original's flat row output).
// Rows come back sorted by their encoded form: Relation.Each walks a map
// in no defined order, and output meant for a file needs to be stable from
// run to run.
func DumpRelation(name string, rel *engine.Relation) RelationDump {
	if rel == nil {
		return RelationDump{Name: name}
	}
	var rows []engine.Row
	rel.Each(func(key, value engine.Row) {
		row := make(engine.Row, 0, len(key)+len(value))
		row = append(row, key...)
		row = append(row, value...)
		rows = append(rows, row)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Encode() < rows[j].Encode() })
	return RelationDump{Name: name, Rows: rows}
}
