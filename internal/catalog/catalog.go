package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// Catalog is the normalized form of one rule's body, built once at compile
// time and never mutated afterward (spec §3's Catalog lifecycle).
type Catalog struct {
	Rule ast.Rule

	// PositiveAtoms and NegatedAtoms mirror Rule.Atoms split by polarity,
	// in original body order, giving Sig.BodyPos its meaning.
	PositiveAtoms []ast.Atom
	NegatedAtoms  []ast.Atom

	// SigToName is the rule-local signature-to-name mapping (spec §3).
	SigToName map[Sig]string

	// CoreAtom is the core-atom bitmap, indexed by position in
	// PositiveAtoms.
	CoreAtom []bool

	// ArgPresence[varName][atomIndex] is the first non-filtered signature
	// at which varName occurs in PositiveAtoms[atomIndex], when it occurs
	// there at all.
	ArgPresence map[string]map[int]Sig

	// ConstEq holds constant-equality base filters: signature to literal.
	ConstEq map[Sig]ast.Term

	// VarEqAlias holds within-atom variable-equality aliases: a repeated
	// occurrence's signature mapped to the atom's first occurrence of that
	// variable.
	VarEqAlias map[Sig]Sig

	// Placeholder is the set of signatures bound to the "don't care"
	// symbol.
	Placeholder map[Sig]bool

	// Comparisons carries the rule's comparison predicates through
	// unchanged; each is partitioned against join trees downstream by its
	// Vars().
	Comparisons []ast.Comparison
}

// Build constructs the Catalog for one rule (spec §4.1). It returns
// ferrors.ErrUnsafeNegation if a negated atom binds a variable that never
// occurs positively.
func Build(rule ast.Rule) (*Catalog, error) {
	c := &Catalog{
		Rule:          rule,
		PositiveAtoms: rule.PositiveAtoms(),
		NegatedAtoms:  rule.NegatedAtoms(),
		SigToName:     map[Sig]string{},
		ArgPresence:   map[string]map[int]Sig{},
		ConstEq:       map[Sig]ast.Term{},
		VarEqAlias:    map[Sig]Sig{},
		Placeholder:   map[Sig]bool{},
		Comparisons:   rule.Comparisons,
	}

	safeVars := map[string]bool{}

	for i, atom := range c.PositiveAtoms {
		firstInAtom := map[string]Sig{}
		for j, term := range atom.Args {
			sig := Sig{Polarity: Positive, BodyPos: i, ColumnIndex: j}
			switch {
			case term.IsConst:
				c.ConstEq[sig] = term
			case term.IsPlaceholder:
				c.Placeholder[sig] = true
			default:
				c.SigToName[sig] = term.Var
				safeVars[term.Var] = true
				if first, ok := firstInAtom[term.Var]; ok {
					c.VarEqAlias[sig] = first
				} else {
					firstInAtom[term.Var] = sig
				}
				if c.ArgPresence[term.Var] == nil {
					c.ArgPresence[term.Var] = map[int]Sig{}
				}
				if _, ok := c.ArgPresence[term.Var][i]; !ok {
					c.ArgPresence[term.Var][i] = sig
				}
			}
		}
	}

	for i, atom := range c.NegatedAtoms {
		firstInAtom := map[string]Sig{}
		for j, term := range atom.Args {
			sig := Sig{Polarity: Negated, BodyPos: i, ColumnIndex: j}
			switch {
			case term.IsConst:
				c.ConstEq[sig] = term
			case term.IsPlaceholder:
				c.Placeholder[sig] = true
			default:
				if !safeVars[term.Var] {
					return nil, ferrors.ErrUnsafeNegation.New(
						ruleLabel(rule), term.Var, atom.Relation)
				}
				c.SigToName[sig] = term.Var
				if first, ok := firstInAtom[term.Var]; ok {
					c.VarEqAlias[sig] = first
				} else {
					firstInAtom[term.Var] = sig
				}
			}
		}
	}

	c.CoreAtom = computeCoreAtomBitmap(c.PositiveAtoms)

	logrus.WithFields(logrus.Fields{
		"rule":        ruleLabel(rule),
		"core_atoms":  countTrue(c.CoreAtom),
		"pos_atoms":   len(c.PositiveAtoms),
		"neg_atoms":   len(c.NegatedAtoms),
		"comparisons": len(c.Comparisons),
	}).Debug("catalog built")

	return c, nil
}

// computeCoreAtomBitmap marks an atom non-core iff its variable set is a
// (possibly non-strict, tie-broken) subset of another positive atom's
// (spec §4.1 step 3, §4.4). Equal variable sets break ties by body
// position: the later atom loses core status.
func computeCoreAtomBitmap(atoms []ast.Atom) []bool {
	varSets := make([]map[string]bool, len(atoms))
	for i, a := range atoms {
		set := map[string]bool{}
		for _, v := range a.Vars() {
			set[v] = true
		}
		varSets[i] = set
	}

	core := make([]bool, len(atoms))
	for i := range atoms {
		core[i] = true
	}

	for i := range atoms {
		for j := range atoms {
			if i == j {
				continue
			}
			if isSubset(varSets[i], varSets[j]) {
				equal := isSubset(varSets[j], varSets[i])
				if !equal || i > j {
					core[i] = false
				}
			}
		}
	}

	if countTrue(core) == 0 && len(core) > 0 {
		// All atoms compared equal to each other; the invariant "core-atom
		// bitmap has ≥1 true entry per rule" (spec §3) requires the
		// earliest survive.
		core[0] = true
	}

	return core
}

func isSubset(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func ruleLabel(r ast.Rule) string {
	return fmt.Sprintf("%s/%d", r.Head.Relation, r.Index)
}

// CoreAtoms returns the positive atoms flagged core, in body order, paired
// with their index in PositiveAtoms.
func (c *Catalog) CoreAtoms() []int {
	var out []int
	for i, isCore := range c.CoreAtom {
		if isCore {
			out = append(out, i)
		}
	}
	return out
}

// SubAtoms returns, for a given core atom index (into PositiveAtoms), the
// indices of positive atoms whose variable set is a subset of the core
// atom's — usable as semijoin filters (spec GLOSSARY "Sub-atom").
func (c *Catalog) SubAtoms(coreIdx int) []int {
	coreVars := map[string]bool{}
	for _, v := range c.PositiveAtoms[coreIdx].Vars() {
		coreVars[v] = true
	}
	var out []int
	for i, atom := range c.PositiveAtoms {
		if i == coreIdx {
			continue
		}
		if c.CoreAtom[i] {
			continue
		}
		set := map[string]bool{}
		for _, v := range atom.Vars() {
			set[v] = true
		}
		if isSubset(set, coreVars) {
			out = append(out, i)
		}
	}
	return out
}

// String renders the catalog for debugging, mirroring the original
// implementation's Display of core/non-core atoms and base filters
// (SPEC_FULL.md Supplemented Feature 1).
func (c *Catalog) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "catalog for %s:\n", ruleLabel(c.Rule))
	for i, a := range c.PositiveAtoms {
		tag := "sub"
		if c.CoreAtom[i] {
			tag = "core"
		}
		fmt.Fprintf(&b, "  [%s] %d: %s(%s)\n", tag, i, a.Relation, strings.Join(a.Vars(), ","))
	}
	for i, a := range c.NegatedAtoms {
		fmt.Fprintf(&b, "  [neg] %d: !%s(%s)\n", i, a.Relation, strings.Join(a.Vars(), ","))
	}
	if len(c.ConstEq) > 0 {
		fmt.Fprintf(&b, "  const-eq:\n")
		keys := sortedSigs(c.ConstEq)
		for _, s := range keys {
			fmt.Fprintf(&b, "    %s = %v\n", s, c.ConstEq[s])
		}
	}
	if len(c.VarEqAlias) > 0 {
		fmt.Fprintf(&b, "  var-eq alias:\n")
		keys := sortedAliasSigs(c.VarEqAlias)
		for _, s := range keys {
			fmt.Fprintf(&b, "    %s = %s\n", s, c.VarEqAlias[s])
		}
	}
	return b.String()
}

func sortedSigs(m map[Sig]ast.Term) []Sig {
	out := make([]Sig, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedAliasSigs(m map[Sig]Sig) []Sig {
	out := make([]Sig, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
