package catalog

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// Rewrite expands a rule into the forward/backward chain of reducer rules
// described in spec §4.2, when it has at least three core atoms and SIP is
// requested. It returns nil, nil, nil when SIP does not apply — the caller
// should then use the original rule unmodified.
//
// Grounded on catalog/src/rule.rs's sideways/reducer pass: a forward pass
// over core atoms in body order builds each atom's forward-reduced form by
// absorbing its sub-atoms, subsumed negations, local comparisons, and
// projections of earlier core atoms; a backward pass repeats in reverse,
// additionally projecting in later (now forward-reduced) core atoms.
// Trivial reducer rules — bodies containing only the base atom — are
// elided, and every absorbed sub-atom/negation/comparison is marked
// consumed so the final rewritten rule does not duplicate it.
func Rewrite(c *Catalog) ([]ast.Rule, []ast.RelationDecl, error) {
	core := c.CoreAtoms()
	if len(core) < 3 {
		return nil, nil, nil
	}
	if c.Rule.Head.IsAggregating() {
		return nil, nil, ferrors.ErrSIPOnAggregation.New(ruleLabel(c.Rule))
	}

	consumedSub := map[int]bool{}
	consumedNeg := map[int]bool{}
	consumedCmp := map[int]bool{}

	curRel := map[int]string{}
	for _, idx := range core {
		curRel[idx] = c.PositiveAtoms[idx].Relation
	}

	varSet := func(idx int) map[string]bool {
		set := map[string]bool{}
		for _, v := range c.PositiveAtoms[idx].Vars() {
			set[v] = true
		}
		return set
	}

	var newRules []ast.Rule
	var newDecls []ast.RelationDecl

	runPass := func(order []int, tag string) {
		for pos, coreIdx := range order {
			target := varSet(coreIdx)
			base := c.PositiveAtoms[coreIdx]
			base.Relation = curRel[coreIdx]
			body := []ast.Atom{base}

			for _, subIdx := range c.SubAtoms(coreIdx) {
				if consumedSub[subIdx] {
					continue
				}
				body = append(body, c.PositiveAtoms[subIdx])
				consumedSub[subIdx] = true
			}

			for negIdx, negAtom := range c.NegatedAtoms {
				if consumedNeg[negIdx] {
					continue
				}
				if isSubsetSlice(negAtom.Vars(), target) {
					body = append(body, negAtom)
					consumedNeg[negIdx] = true
				}
			}

			var cmps []ast.Comparison
			for cmpIdx, cmp := range c.Comparisons {
				if consumedCmp[cmpIdx] {
					continue
				}
				if isSubsetSlice(cmp.Vars(), target) {
					cmps = append(cmps, cmp)
					consumedCmp[cmpIdx] = true
				}
			}

			for _, otherPos := range priorPositions(order, pos) {
				otherIdx := order[otherPos]
				other := varSet(otherIdx)
				shared := intersect(other, target)
				if len(shared) == 0 {
					continue
				}
				body = append(body, projectAtom(c.PositiveAtoms[otherIdx], curRel[otherIdx], shared))
			}

			if len(body) == 1 && len(cmps) == 0 {
				continue
			}

			name := fmt.Sprintf("%s_sip%s%d_%d", c.Rule.Head.Relation, tag, c.Rule.Index, coreIdx)
			vars := c.PositiveAtoms[coreIdx].Vars()
			newRules = append(newRules, ast.Rule{
				Head:        ast.Head{Relation: name, Args: headArgsForVars(vars)},
				Atoms:       body,
				Comparisons: cmps,
				Index:       -1,
			})
			newDecls = append(newDecls, ast.RelationDecl{Name: name, Attrs: attrsForVars(vars)})
			curRel[coreIdx] = name
		}
	}

	runPass(core, "Nf")

	reversed := make([]int, len(core))
	for i, v := range core {
		reversed[len(core)-1-i] = v
	}
	runPass(reversed, "Nb")

	finalAtoms := make([]ast.Atom, 0, len(c.Rule.Atoms))
	coreSet := map[int]bool{}
	for _, idx := range core {
		coreSet[idx] = true
	}
	for i, atom := range c.PositiveAtoms {
		if coreSet[i] {
			a := atom
			a.Relation = curRel[i]
			finalAtoms = append(finalAtoms, a)
			continue
		}
		if consumedSub[i] {
			continue
		}
		finalAtoms = append(finalAtoms, atom)
	}
	for i, atom := range c.NegatedAtoms {
		if consumedNeg[i] {
			continue
		}
		finalAtoms = append(finalAtoms, atom)
	}

	var finalCmps []ast.Comparison
	for i, cmp := range c.Comparisons {
		if consumedCmp[i] {
			continue
		}
		finalCmps = append(finalCmps, cmp)
	}

	finalRule := c.Rule
	finalRule.Atoms = finalAtoms
	finalRule.Comparisons = finalCmps
	newRules = append(newRules, finalRule)

	logrus.WithFields(logrus.Fields{
		"rule":        ruleLabel(c.Rule),
		"reducers":    len(newRules) - 1,
		"core_atoms":  len(core),
	}).Debug("SIP rewrite applied")

	return newRules, newDecls, nil
}

func priorPositions(order []int, pos int) []int {
	out := make([]int, pos)
	for i := 0; i < pos; i++ {
		out[i] = i
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func isSubsetSlice(vars []string, set map[string]bool) bool {
	for _, v := range vars {
		if !set[v] {
			return false
		}
	}
	return true
}

// projectAtom rebuilds atom under a new relation name, replacing every
// variable argument not in keep with a placeholder (spec §4.2: "an
// occurrence of Cⱼ projected to only the shared variables, with other
// positions replaced by placeholders").
func projectAtom(atom ast.Atom, relation string, keep map[string]bool) ast.Atom {
	args := make([]ast.Term, len(atom.Args))
	for i, t := range atom.Args {
		if !t.IsConst && !t.IsPlaceholder && !keep[t.Var] {
			args[i] = ast.Placeholder()
			continue
		}
		args[i] = t
	}
	return ast.Atom{Relation: relation, Args: args, Negated: atom.Negated}
}

func headArgsForVars(vars []string) []ast.HeadArg {
	out := make([]ast.HeadArg, len(vars))
	for i, v := range vars {
		out[i] = ast.HeadArg{Expr: ast.ArithVar(v)}
	}
	return out
}

func attrsForVars(vars []string) []ast.Attr {
	out := make([]ast.Attr, len(vars))
	for i, v := range vars {
		out[i] = ast.Attr{Name: v, Type: ast.Number}
	}
	return out
}
