package engine

import (
	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
	"github.com/flowlog-db/flowlog/internal/xform"
)

// Store is the fixed operator vocabulary an external incremental
// relational engine must expose (spec §1). Apply dispatches a single
// xform.Transformation against its already-materialized operands; Load
// seeds a base relation with an EDB's facts; Threshold applies the
// distinct operator.
//
// Grounded on executing/src/dataflow.rs's program_execution dispatch loop
// and executing/src/jn.rs's join/antijoin-by-shape dispatch.
type Store interface {
	Get(sig uint64) *Relation
	Apply(t *xform.Transformation) (int, error)
	Load(sig uint64, keyWidth int, rows []Row) *Relation
	Threshold(sig uint64)
	// Alias merges every row already materialized under from into the
	// relation stored under to, creating to if necessary. This is how the
	// driver concatenates several rules' HeadMap outputs — each synthesized
	// under its own plan-local signature — into one relation's canonical,
	// relation-name-addressed storage (spec §4.7 "multiple rules producing
	// the same head are concatenated").
	Alias(from, to uint64) int
	// Reduce collapses the relation stored under sig in place, replacing
	// its flat (group-by columns..., value) rows with one row per distinct
	// group-by key, the value reduced by kind (spec §4.7's aggregation
	// boundary; see GroupReduce). A no-op when sig has no rows.
	Reduce(sig uint64, kind ast.AggKind)
}

// InMemory is the one concrete Store this repository ships: an in-memory
// evaluator, every collection a Go map-backed Relation. Apply always
// evaluates over the full operand relations; it keeps no per-iteration
// deltas, so a recursive stratum is evaluated naively.
type InMemory struct {
	relations map[uint64]*Relation
}

// New builds an empty in-memory store.
func New() *InMemory {
	return &InMemory{relations: map[uint64]*Relation{}}
}

func (m *InMemory) Get(sig uint64) *Relation { return m.relations[sig] }

func (m *InMemory) Load(sig uint64, keyWidth int, rows []Row) *Relation {
	rel := newRelation(keyWidth)
	for _, row := range rows {
		key := Row(append(Row{}, row[:keyWidth]...))
		val := Row(append(Row{}, row[keyWidth:]...))
		rel.Insert(key, val)
	}
	m.relations[sig] = rel
	return rel
}

func (m *InMemory) Threshold(sig uint64) {
	// Every Relation is already set-valued by construction (Insert
	// dedupes); nothing further to collapse.
	_ = m.relations[sig]
}

func (m *InMemory) Alias(from, to uint64) int {
	src := m.relations[from]
	if src == nil {
		return 0
	}
	dst, ok := m.relations[to]
	if !ok {
		dst = newRelation(src.KeyWidth)
		m.relations[to] = dst
	}
	added := 0
	src.Each(func(key, value Row) {
		if dst.Insert(key, value) {
			added++
		}
	})
	return added
}

func (m *InMemory) Reduce(sig uint64, kind ast.AggKind) {
	rel := m.relations[sig]
	if rel == nil || rel.Len() == 0 {
		return
	}
	m.relations[sig] = GroupReduce(rel, kind)
}

// Apply executes t and merges its output into m.relations, keyed by the
// output collection's signature hash.
func (m *InMemory) Apply(t *xform.Transformation) (int, error) {
	out := newRelation(len(t.Flow.OutKey))

	switch t.Kind {
	case xform.RowToRow, xform.RowToK, xform.RowToKv, xform.KvToKv, xform.KvToK:
		m.applyReshape(t, out)
	case xform.JnKvKv, xform.JnKvK, xform.JnKKv, xform.JnKK, xform.Cartesian:
		m.applyJoin(t, out)
	case xform.NjKvK, xform.NjKK:
		m.applyAntijoin(t, out)
	case xform.HeadMap:
		m.applyHeadMap(t, out)
	default:
		ferrors.Invariant("unknown transformation kind %v", t.Kind)
	}

	h := t.Output.Signature.Hash()
	existing, ok := m.relations[h]
	if !ok {
		m.relations[h] = out
		return out.Len(), nil
	}
	added := 0
	out.Each(func(key, value Row) {
		if existing.Insert(key, value) {
			added++
		}
	})
	return added, nil
}

func (m *InMemory) applyReshape(t *xform.Transformation, out *Relation) {
	in := m.relations[t.Input.Signature.Hash()]
	if in == nil {
		return
	}
	in.Each(func(key, value Row) {
		if !passesBaseFilters(t.Flow, key, value, nil, nil) {
			return
		}
		if !passesComparisons(t.Flow.Comparisons, key, value, nil, nil) {
			return
		}
		outKey := evalOperands(t.Flow.OutKey, key, value, nil, nil)
		outVal := evalOperands(t.Flow.OutValue, key, value, nil, nil)
		out.Insert(outKey, outVal)
	})
}

func (m *InMemory) applyJoin(t *xform.Transformation, out *Relation) {
	left := m.relations[t.Left.Signature.Hash()]
	right := m.relations[t.Right.Signature.Hash()]
	if left == nil || right == nil {
		return
	}

	if t.Kind == xform.Cartesian {
		left.Each(func(lk, lv Row) {
			right.Each(func(rk, rv Row) {
				if !passesComparisons(t.Flow.Comparisons, lk, lv, rk, rv) {
					return
				}
				outKey := evalOperands(t.Flow.OutKey, lk, lv, rk, rv)
				outVal := evalOperands(t.Flow.OutValue, lk, lv, rk, rv)
				out.Insert(outKey, outVal)
			})
		})
		return
	}

	left.Each(func(lk, lv Row) {
		rightValues, ok := right.Lookup(lk)
		if !ok {
			return
		}
		for _, rv := range rightValues {
			if !passesComparisons(t.Flow.Comparisons, lk, lv, lk, rv) {
				continue
			}
			outKey := evalOperands(t.Flow.OutKey, lk, lv, lk, rv)
			outVal := evalOperands(t.Flow.OutValue, lk, lv, lk, rv)
			out.Insert(outKey, outVal)
		}
	})
}

func (m *InMemory) applyAntijoin(t *xform.Transformation, out *Relation) {
	left := m.relations[t.Left.Signature.Hash()]
	right := m.relations[t.Right.Signature.Hash()]
	if left == nil {
		return
	}
	left.Each(func(lk, lv Row) {
		if right != nil {
			if _, present := right.Lookup(lk); present {
				return
			}
		}
		outKey := evalOperands(t.Flow.OutKey, lk, lv, nil, nil)
		outVal := evalOperands(t.Flow.OutValue, lk, lv, nil, nil)
		out.Insert(outKey, outVal)
	})
}

func (m *InMemory) applyHeadMap(t *xform.Transformation, out *Relation) {
	in := m.relations[t.Input.Signature.Hash()]
	if in == nil {
		return
	}
	in.Each(func(key, value Row) {
		row := make(Row, len(t.Flow.HeadExprs))
		for i, expr := range t.Flow.HeadExprs {
			row[i] = evalArith(expr, key, value, nil, nil)
		}
		out.Insert(nil, row)
	})
}

func passesBaseFilters(flow *xform.Flow, lk, lv, rk, rv Row) bool {
	for _, c := range flow.ConstEq {
		if evalOperand(c.Col, lk, lv, rk, rv) != ValueFromTerm(c.Const) {
			return false
		}
	}
	for _, a := range flow.VarEqAlias {
		if evalOperand(a.From, lk, lv, rk, rv) != evalOperand(a.To, lk, lv, rk, rv) {
			return false
		}
	}
	return true
}

func passesComparisons(cmps []xform.ComparisonRef, lk, lv, rk, rv Row) bool {
	for _, c := range cmps {
		left := evalArith(c.Left, lk, lv, rk, rv)
		right := evalArith(c.Right, lk, lv, rk, rv)
		if !compareOk(c.Op, left, right) {
			return false
		}
	}
	return true
}

func compareOk(op ast.CompareOp, l, r Value) bool {
	cmp := l.Compare(r)
	switch op {
	case ast.Eq:
		return cmp == 0
	case ast.Neq:
		return cmp != 0
	case ast.Gt:
		return cmp > 0
	case ast.Gte:
		return cmp >= 0
	case ast.Lt:
		return cmp < 0
	case ast.Lte:
		return cmp <= 0
	default:
		ferrors.Invariant("unknown comparison operator %v", op)
		return false
	}
}

func evalOperands(ops []xform.Operand, lk, lv, rk, rv Row) Row {
	out := make(Row, len(ops))
	for i, op := range ops {
		out[i] = evalOperand(op, lk, lv, rk, rv)
	}
	return out
}

func evalOperand(op xform.Operand, lk, lv, rk, rv Row) Value {
	if op.IsConst {
		return ValueFromTerm(op.Const)
	}
	key, val := lk, lv
	if op.Right {
		key, val = rk, rv
	}
	if op.IsValueSide {
		return val[op.Index]
	}
	return key[op.Index]
}

func evalArith(a xform.ArithRef, lk, lv, rk, rv Row) Value {
	acc := evalOperand(a.Head, lk, lv, rk, rv)
	for _, link := range a.Chain {
		factor := evalOperand(link.Factor, lk, lv, rk, rv)
		acc = applyArithOp(link.Op, acc, factor)
	}
	return acc
}

func applyArithOp(op ast.ArithOp, a, b Value) Value {
	switch op {
	case ast.Add:
		return IntValue(a.Int + b.Int)
	case ast.Sub:
		return IntValue(a.Int - b.Int)
	case ast.Mul:
		return IntValue(a.Int * b.Int)
	case ast.Div:
		if b.Int == 0 {
			ferrors.Invariant("division by zero in rule arithmetic")
		}
		return IntValue(a.Int / b.Int)
	case ast.Mod:
		if b.Int == 0 {
			ferrors.Invariant("modulo by zero in rule arithmetic")
		}
		return IntValue(a.Int % b.Int)
	default:
		ferrors.Invariant("unknown arithmetic operator %v", op)
		return Value{}
	}
}
