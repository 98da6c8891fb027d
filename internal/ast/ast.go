// Package ast holds the program representation the compile pipeline
// operates on: relation declarations, rules, atoms, predicates, and head
// arguments. The textual grammar and parser are out of scope; this package
// exposes only the data types and a small set of constructors, the same
// split sql/plan draws between its plan node types and the parser that
// builds them.
package ast

// ColumnType is the declared type of a relation attribute.
type ColumnType int

const (
	// Number is an integer-valued attribute.
	Number ColumnType = iota
	// String is a string-valued attribute.
	String
)

// Attr is one declared column of a relation.
type Attr struct {
	Name string
	Type ColumnType
}

// RelationDecl is a `.in` or `.printsize` declaration.
type RelationDecl struct {
	Name  string
	Attrs []Attr
	// ReadAs records the optional `read as <path>` clause of an EDB
	// declaration. internal/facts does not consult it: the fact file is
	// always looked up as `<facts-dir>/<name>`, then `<facts-dir>/<name>.facts`.
	ReadAs string
}

// Arity reports the declared column count.
func (r RelationDecl) Arity() int { return len(r.Attrs) }

// OptLevel mirrors the `-O` CLI flag (spec §6): 0 none, 1 SIP, 2 plan, 3
// both. Per-rule annotations (`.sip`, `.plan`, `.optimize`) are the
// rule-local equivalent and are overridden when any level (0 included) is
// passed on the command line.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptSIP
	OptPlan
	OptBoth
)

// WantsSIP reports whether SIP rewriting applies at this level.
func (o OptLevel) WantsSIP() bool { return o == OptSIP || o == OptBoth }

// WantsPlan reports whether join-tree planning applies at this level.
func (o OptLevel) WantsPlan() bool { return o == OptPlan || o == OptBoth }

// ArithOp is an arithmetic operator over integer values.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Mod
)

// CompareOp is a comparison predicate operator.
type CompareOp int

const (
	Eq CompareOp = iota
	Neq
	Gt
	Gte
	Lt
	Lte
)

// AggKind names a head-position aggregation function.
type AggKind int

const (
	NoAgg AggKind = iota
	AggMin
	AggMax
	AggCount
	AggSum
)

func (k AggKind) String() string {
	switch k {
	case NoAgg:
		return "none"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	default:
		return "?"
	}
}

// Term is either a variable reference or an integer constant, the leaf of
// an arithmetic chain and the argument of an atom.
type Term struct {
	// Var is the variable name; empty if this term is a constant.
	Var string
	// IsConst reports whether this term is a literal rather than a
	// variable. IsPlaceholder further distinguishes the "don't care" `_`
	// symbol, which is neither a named variable nor a constant.
	IsConst      bool
	IsPlaceholder bool
	// IntConst or StrConst holds the literal value when IsConst is true;
	// IntConst for integer literals, StrConst for string literals (mutually
	// exclusive, selected by IsString).
	IntConst int64
	StrConst string
	IsString bool
}

// VarTerm builds a variable-reference term.
func VarTerm(name string) Term { return Term{Var: name} }

// IntTerm builds an integer-constant term.
func IntTerm(v int64) Term { return Term{IsConst: true, IntConst: v} }

// StrTerm builds a string-constant term.
func StrTerm(v string) Term { return Term{IsConst: true, IsString: true, StrConst: v} }

// Placeholder builds a "don't care" term.
func Placeholder() Term { return Term{IsPlaceholder: true} }

// ArithTerm is one link of an arithmetic chain: an operator applied to a
// following factor. The chain itself is represented as a leading factor
// plus a list of (operator, factor) links, per spec §4.5's flow shape.
type ArithTerm struct {
	Op     ArithOp
	Factor Term
}

// Arith is an arithmetic expression: `factor (op factor)*`.
type Arith struct {
	Head  Term
	Chain []ArithTerm
}

// ArithConst builds a single-factor arithmetic expression from an integer.
func ArithConst(v int64) Arith { return Arith{Head: IntTerm(v)} }

// ArithVar builds a single-factor arithmetic expression from a variable.
func ArithVar(name string) Arith { return Arith{Head: VarTerm(name)} }

// Atom is a positive or negated occurrence of a relation in a rule body.
type Atom struct {
	Relation string
	Args     []Term
	Negated  bool
}

// Vars returns the set of variable names this atom binds, in left-to-right
// order with duplicates removed. Constants and placeholders contribute
// nothing.
func (a Atom) Vars() []string {
	seen := make(map[string]bool, len(a.Args))
	var out []string
	for _, t := range a.Args {
		if t.IsConst || t.IsPlaceholder || t.Var == "" {
			continue
		}
		if !seen[t.Var] {
			seen[t.Var] = true
			out = append(out, t.Var)
		}
	}
	return out
}

// Comparison is a body predicate of the form `expr op expr`.
type Comparison struct {
	Op    CompareOp
	Left  Arith
	Right Arith
}

// Vars returns every variable referenced by either side of the comparison.
func (c Comparison) Vars() []string {
	seen := map[string]bool{}
	var out []string
	add := func(a Arith) {
		terms := append([]Term{a.Head}, func() []Term {
			var fs []Term
			for _, l := range a.Chain {
				fs = append(fs, l.Factor)
			}
			return fs
		}()...)
		for _, t := range terms {
			if t.Var != "" && !seen[t.Var] {
				seen[t.Var] = true
				out = append(out, t.Var)
			}
		}
	}
	add(c.Left)
	add(c.Right)
	return out
}

// HeadArg is one argument in a rule head: a plain variable, an arithmetic
// expression, or — only as the last head argument — an aggregation.
type HeadArg struct {
	Agg  AggKind
	Expr Arith
}

// Head is the rule's consequent: a relation name plus head arguments.
type Head struct {
	Relation string
	Args     []HeadArg
}

// IsAggregating reports whether the last head argument aggregates.
func (h Head) IsAggregating() bool {
	if len(h.Args) == 0 {
		return false
	}
	return h.Args[len(h.Args)-1].Agg != NoAgg
}

// Rule is one `.rule` clause: a head, a body of positive/negated atoms and
// comparisons, and optional per-rule optimization annotations.
type Rule struct {
	Head        Head
	Atoms       []Atom
	Comparisons []Comparison

	WantSIP  bool
	WantPlan bool

	// Index is this rule's position in Program.Rules, used throughout the
	// pipeline (stratification, catalogs) to identify rules by integer id
	// rather than by pointer.
	Index int
}

// PositiveAtoms returns the rule's non-negated atoms, in body order.
func (r Rule) PositiveAtoms() []Atom {
	var out []Atom
	for _, a := range r.Atoms {
		if !a.Negated {
			out = append(out, a)
		}
	}
	return out
}

// NegatedAtoms returns the rule's negated atoms, in body order.
func (r Rule) NegatedAtoms() []Atom {
	var out []Atom
	for _, a := range r.Atoms {
		if a.Negated {
			out = append(out, a)
		}
	}
	return out
}

// Program is a fully-declared FlowLog source: EDB/IDB schemas plus rules.
type Program struct {
	EDB   []RelationDecl
	IDB   []RelationDecl
	Rules []Rule
}

// Relation looks up a declared relation (EDB or IDB) by name.
func (p *Program) Relation(name string) (RelationDecl, bool) {
	for _, d := range p.EDB {
		if d.Name == name {
			return d, true
		}
	}
	for _, d := range p.IDB {
		if d.Name == name {
			return d, true
		}
	}
	return RelationDecl{}, false
}

// IsEDB reports whether name is declared as an EDB relation.
func (p *Program) IsEDB(name string) bool {
	for _, d := range p.EDB {
		if d.Name == name {
			return true
		}
	}
	return false
}
