// Package engine is the external incremental relational engine spec §1
// deliberately keeps out of scope as a physical dataflow runtime ("an
// external incremental relational engine exposing a fixed operator
// vocabulary"). Store is that fixed vocabulary, expressed as a Go
// interface; InMemory is the one concrete, in-memory implementation this
// repository ships.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// Value is one column of an engine Row: a tagged union of an integer or a
// string (spec §9 DESIGN NOTES' fixed/dynamic-arity Open Question — see
// DESIGN.md's resolution). Kept as a small comparable struct rather than
// interface{} so Row slices never box through an interface on the hot
// arithmetic path.
type Value struct {
	IsString bool
	Int      int64
	Str      string
}

// IntValue builds an integer-typed value.
func IntValue(v int64) Value { return Value{Int: v} }

// StringValue builds a string-typed value.
func StringValue(v string) Value { return Value{IsString: true, Str: v} }

// ValueFromTerm converts a constant ast.Term into its engine Value.
// Invariant-panics if t is not a constant: a non-constant term reaching
// the engine is a synthesis bug, not a runtime data error.
func ValueFromTerm(t ast.Term) Value {
	if !t.IsConst {
		ferrors.Invariant("ValueFromTerm called on a non-constant term")
	}
	if t.IsString {
		return StringValue(t.StrConst)
	}
	return IntValue(t.IntConst)
}

func (v Value) String() string {
	if v.IsString {
		return v.Str
	}
	return strconv.FormatInt(v.Int, 10)
}

// Compare orders two values of the same type; used by the min/max
// aggregation reducers.
func (v Value) Compare(other Value) int {
	if v.IsString {
		return strings.Compare(v.Str, other.Str)
	}
	switch {
	case v.Int < other.Int:
		return -1
	case v.Int > other.Int:
		return 1
	default:
		return 0
	}
}

// Row is a dynamic-arity tuple of engine values.
type Row []Value

// Encode renders a Row into a deterministic string key, used to dedup rows
// within a Relation's set semantics (every collection in this system is a
// set, per spec §3 — multiplicities never accumulate).
func (r Row) Encode() string {
	var b strings.Builder
	for i, v := range r {
		if i > 0 {
			b.WriteByte(0)
		}
		if v.IsString {
			b.WriteByte('s')
			b.WriteString(v.Str)
		} else {
			fmt.Fprintf(&b, "i%d", v.Int)
		}
	}
	return b.String()
}

func concatRows(a, b Row) Row {
	out := make(Row, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
