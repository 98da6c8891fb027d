package xform

import (
	"fmt"
	"strings"

	"github.com/flowlog-db/flowlog/internal/ast"
)

// Operand is an input-column descriptor (spec §4.5): a reference to one
// column of an operand row, or a literal constant. Right distinguishes
// the right-hand operand of a binary (join/antijoin) flow; it is ignored
// by unary reshape flows. No variable name is ever carried — only shape.
type Operand struct {
	IsConst bool
	Const   ast.Term

	Right       bool
	IsValueSide bool
	Index       int
}

func ConstOperand(t ast.Term) Operand { return Operand{IsConst: true, Const: t} }

func KeyOperand(idx int) Operand   { return Operand{Index: idx} }
func ValueOperand(idx int) Operand { return Operand{IsValueSide: true, Index: idx} }

func RightKeyOperand(idx int) Operand   { return Operand{Right: true, Index: idx} }
func RightValueOperand(idx int) Operand { return Operand{Right: true, IsValueSide: true, Index: idx} }

func (o Operand) String() string {
	if o.IsConst {
		return fmt.Sprintf("c(%v)", o.Const)
	}
	side := "k"
	if o.IsValueSide {
		side = "v"
	}
	if o.Right {
		return fmt.Sprintf("r.%s%d", side, o.Index)
	}
	return fmt.Sprintf("l.%s%d", side, o.Index)
}

// ArithRef is an arithmetic expression over operands: a head factor plus a
// chain of (operator, factor) links, mirroring ast.Arith but addressed by
// column instead of variable name (spec §4.5's "head arithmetic" flow
// shape).
type ArithRef struct {
	Head  Operand
	Chain []ArithLink
}

type ArithLink struct {
	Op     ast.ArithOp
	Factor Operand
}

func (a ArithRef) String() string {
	var b strings.Builder
	b.WriteString(a.Head.String())
	for _, l := range a.Chain {
		fmt.Fprintf(&b, "%s%s", opSym(l.Op), l.Factor.String())
	}
	return b.String()
}

func opSym(op ast.ArithOp) string {
	switch op {
	case ast.Add:
		return "+"
	case ast.Sub:
		return "-"
	case ast.Mul:
		return "*"
	case ast.Div:
		return "/"
	case ast.Mod:
		return "%"
	default:
		return "?"
	}
}

// ComparisonRef is a comparison predicate fused into a flow, addressed by
// operand columns instead of variable names.
type ComparisonRef struct {
	Op    ast.CompareOp
	Left  ArithRef
	Right ArithRef
}

func (c ComparisonRef) String() string {
	return fmt.Sprintf("%s%s%s", c.Left, cmpSym(c.Op), c.Right)
}

func cmpSym(op ast.CompareOp) string {
	switch op {
	case ast.Eq:
		return "=="
	case ast.Neq:
		return "!="
	case ast.Gt:
		return ">"
	case ast.Gte:
		return ">="
	case ast.Lt:
		return "<"
	case ast.Lte:
		return "<="
	default:
		return "?"
	}
}

// ConstEqRef is a constant-equality base filter addressed by column.
type ConstEqRef struct {
	Col   Operand
	Const ast.Term
}

// AliasRef is a variable-equality base filter: two operand columns that
// must be equal.
type AliasRef struct {
	From, To Operand
}

// FlowShape names which of the three declarative flow shapes a Flow
// represents (spec §4.5).
type FlowShape int

const (
	// ShapeReshape is a unary key-value reshape: output key/value
	// signatures, base filters, and comparisons addressed by a single
	// operand side.
	ShapeReshape FlowShape = iota
	// ShapeJoin is a binary join/antijoin reshape: output key/value plus
	// comparisons addressed by (left-or-right, column).
	ShapeJoin
	// ShapeHead is the head-arithmetic flow at the plan root.
	ShapeHead
)

// Flow is the declarative description of how a Transformation's output is
// assembled from its inputs (spec §4.5). No flow contains variable names;
// every reference is by column.
type Flow struct {
	Shape FlowShape

	OutKey   []Operand
	OutValue []Operand

	ConstEq    []ConstEqRef
	VarEqAlias []AliasRef

	Comparisons []ComparisonRef

	HeadExprs []ArithRef
}

// String renders a column-index-only description of the flow, used
// verbatim as a CollectionSignature's FlowDesc.
func (f *Flow) String() string {
	var b strings.Builder
	for _, k := range f.OutKey {
		fmt.Fprintf(&b, "k%s,", k)
	}
	b.WriteString(";")
	for _, v := range f.OutValue {
		fmt.Fprintf(&b, "v%s,", v)
	}
	for _, c := range f.ConstEq {
		fmt.Fprintf(&b, ";=%s:%v", c.Col, c.Const)
	}
	for _, a := range f.VarEqAlias {
		fmt.Fprintf(&b, ";eq%s=%s", a.From, a.To)
	}
	for _, c := range f.Comparisons {
		fmt.Fprintf(&b, ";cmp%s", c)
	}
	for _, h := range f.HeadExprs {
		fmt.Fprintf(&b, ";h%s", h)
	}
	return b.String()
}

// Flip swaps left/right operand annotations in a join flow, the idiomatic
// equivalent of the original's jn_flip: used to canonicalize which
// operand the engine treats as the (typically larger) left side of a
// join when the planner's leftover/planning split puts the bigger operand
// on the right.
func (f *Flow) Flip() *Flow {
	flip := func(o Operand) Operand {
		if !o.IsConst {
			o.Right = !o.Right
		}
		return o
	}
	out := &Flow{Shape: f.Shape}
	for _, k := range f.OutKey {
		out.OutKey = append(out.OutKey, flip(k))
	}
	for _, v := range f.OutValue {
		out.OutValue = append(out.OutValue, flip(v))
	}
	for _, c := range f.Comparisons {
		out.Comparisons = append(out.Comparisons, ComparisonRef{
			Op:    c.Op,
			Left:  flipArith(c.Left, flip),
			Right: flipArith(c.Right, flip),
		})
	}
	return out
}

func flipArith(a ArithRef, flip func(Operand) Operand) ArithRef {
	out := ArithRef{Head: flip(a.Head)}
	for _, l := range a.Chain {
		out.Chain = append(out.Chain, ArithLink{Op: l.Op, Factor: flip(l.Factor)})
	}
	return out
}
