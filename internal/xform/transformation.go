package xform

import (
	"fmt"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// Kind is the closed sum of transformation variants (spec §3). Dispatch at
// scheduling and driving time is a single switch over Kind; there is no
// dynamic polymorphism (spec §9 "Tagged-variant operators").
type Kind int

const (
	RowToRow Kind = iota
	RowToK
	RowToKv
	KvToKv
	KvToK
	JnKvKv
	JnKvK
	JnKKv
	JnKK
	Cartesian
	NjKvK
	NjKK
	HeadMap
)

func (k Kind) String() string {
	names := [...]string{
		"RowToRow", "RowToK", "RowToKv", "KvToKv", "KvToK",
		"JnKvKv", "JnKvK", "JnKKv", "JnKK", "Cartesian", "NjKvK", "NjKK", "HeadMap",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Transformation is one node in the per-rule plan DAG (spec §3). Unary
// kinds set Input; binary kinds (the Jn*, Cartesian, and Nj* family) set
// Left and Right; HeadMap sets Input to the root's exported shape.
type Transformation struct {
	Kind   Kind
	Output *Collection
	Input  *Collection
	Left   *Collection
	Right  *Collection
	Flow   *Flow

	// AggKind is set only on a HeadMap transformation whose rule head
	// aggregates (spec §4.7): the per-rule flat row this transformation
	// emits is the pre-aggregate (group-by columns..., value) contribution,
	// and the driver runs engine.GroupReduce over the relation's full
	// concatenated contributions once the stratum settles. Zero value
	// (ast.NoAgg) for every non-aggregating head.
	AggKind ast.AggKind
}

// String renders "<kind> <output> <- <input(s)>", the per-node line
// Schedule.String lists under its stratum.
func (t *Transformation) String() string {
	switch {
	case t.Left != nil || t.Right != nil:
		return fmt.Sprintf("%s %s <- %s, %s", t.Kind, t.Output, t.Left, t.Right)
	case t.Input != nil:
		return fmt.Sprintf("%s %s <- %s", t.Kind, t.Output, t.Input)
	default:
		return fmt.Sprintf("%s %s", t.Kind, t.Output)
	}
}

// unaryKind picks RowToRow/RowToK/RowToKv or KvToKv/KvToK based on
// whether the input and output carry a key, mirroring the original's
// kv_to_kv dispatcher.
func unaryKind(inputIsRow bool, outKeyEmpty, outValueEmpty bool) Kind {
	switch {
	case inputIsRow && outKeyEmpty:
		return RowToRow
	case inputIsRow && outValueEmpty:
		return RowToK
	case inputIsRow:
		return RowToKv
	case outValueEmpty:
		return KvToK
	default:
		return KvToKv
	}
}

// NewReshape builds a unary reshape transformation producing out from in,
// dispatching on key/value emptiness per spec §3's RowToRow/RowToK/RowToKv/KvToKv/KvToK
// family.
func NewReshape(in, out *Collection, flow *Flow) *Transformation {
	return &Transformation{
		Kind:   unaryKind(in.IsRow(), out.IsRow(), out.IsSet()),
		Output: out,
		Input:  in,
		Flow:   flow,
	}
}

// joinKind picks among JnKvKv/JnKvK/JnKKv/JnKK/Cartesian based on each
// operand's key/value shape, mirroring the original's join dispatcher.
func joinKind(left, right *Collection) Kind {
	if len(left.Key) == 0 && len(right.Key) == 0 {
		return Cartesian
	}
	if left.IsRow() || right.IsRow() {
		ferrors.Invariant("join operands must be arranged (non-row) collections")
	}
	leftHasValue := !left.IsSet()
	rightHasValue := !right.IsSet()
	switch {
	case leftHasValue && rightHasValue:
		return JnKvKv
	case leftHasValue && !rightHasValue:
		return JnKvK
	case !leftHasValue && rightHasValue:
		return JnKKv
	default:
		return JnKK
	}
}

// NewJoin builds a binary join transformation.
func NewJoin(left, right, out *Collection, flow *Flow) *Transformation {
	return &Transformation{
		Kind:   joinKind(left, right),
		Output: out,
		Left:   left,
		Right:  right,
		Flow:   flow,
	}
}

// antijoinKind picks NjKvK or NjKK: the right operand of an antijoin must
// be key-only (spec §3).
func antijoinKind(left *Collection) Kind {
	if left.IsSet() {
		return NjKK
	}
	return NjKvK
}

// NewAntijoin builds a binary antijoin transformation. right must be a
// key-only collection (its Value is empty); a right operand carrying values
// is an invariant violation and panics.
func NewAntijoin(left, right, out *Collection, flow *Flow) *Transformation {
	if !right.IsSet() {
		ferrors.Invariant("antijoin right operand %s must be key-only", right)
	}
	return &Transformation{
		Kind:   antijoinKind(left),
		Output: out,
		Left:   left,
		Right:  right,
		Flow:   flow,
	}
}

// NewHeadMap builds the root HeadMap transformation applying head
// arithmetic to produce the rule's output row (spec §4.5). aggKind is
// ast.NoAgg for a plain (non-aggregating) head.
func NewHeadMap(in, out *Collection, flow *Flow, aggKind ast.AggKind) *Transformation {
	flow.Shape = ShapeHead
	return &Transformation{
		Kind:    HeadMap,
		Output:  out,
		Input:   in,
		Flow:    flow,
		AggKind: aggKind,
	}
}
