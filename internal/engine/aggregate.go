package engine

import "github.com/flowlog-db/flowlog/internal/ast"

// GroupReduce implements spec §4.7's aggregation boundary: src is a flat
// row relation whose last column is the value to aggregate and whose
// remaining columns (left to right) form the group-by key. It returns a
// fresh relation with one row per distinct key, `(key..., aggregate)`.
//
// Grounded on executing/src/aggregation.rs's group-reduce dispatch and its
// MIN-semiring specialization (`min` emits updates only when the minimum
// strictly decreases — trivial here since InMemory recomputes from
// scratch each call rather than incrementally, but the specialized
// reducer is kept distinct per spec §4.7 and DESIGN.md's Open Question 3
// resolution: this engine's only weight type is boolean-presence, so the
// MIN-specialization is always the one taken for `min`).
func GroupReduce(src *Relation, kind ast.AggKind) *Relation {
	groups := map[string][]Value{}
	groupKeyRows := map[string]Row{}

	src.Each(func(_ Row, row Row) {
		if len(row) == 0 {
			return
		}
		keyCols := row[:len(row)-1]
		val := row[len(row)-1]
		ks := Row(keyCols).Encode()
		groupKeyRows[ks] = append(Row{}, keyCols...)
		groups[ks] = append(groups[ks], val)
	})

	out := newRelation(0)
	for ks, values := range groups {
		agg := reduce(kind, values)
		row := append(append(Row{}, groupKeyRows[ks]...), agg)
		out.Insert(nil, row)
	}
	return out
}

func reduce(kind ast.AggKind, values []Value) Value {
	switch kind {
	case ast.AggMin:
		return minReduce(values)
	case ast.AggMax:
		best := values[0]
		for _, v := range values[1:] {
			if v.Compare(best) > 0 {
				best = v
			}
		}
		return best
	case ast.AggCount:
		return IntValue(int64(len(values)))
	case ast.AggSum:
		var sum int64
		for _, v := range values {
			sum += v.Int
		}
		return IntValue(sum)
	default:
		return values[0]
	}
}

// minReduce is the MIN-semiring specialization: a plain linear scan here
// (the in-memory engine recomputes GroupReduce from scratch on every call
// rather than maintaining an incremental reducer), but kept as its own
// function so a future incremental engine can replace it with a reducer
// that only updates on strict decrease without touching the other
// aggregation kinds.
func minReduce(values []Value) Value {
	best := values[0]
	for _, v := range values[1:] {
		if v.Compare(best) < 0 {
			best = v
		}
	}
	return best
}
