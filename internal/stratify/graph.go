// Package stratify builds the rule-dependency graph, computes strongly
// connected components via Kosaraju's algorithm, and merges strata per
// spec §4.3.
package stratify

import "github.com/flowlog-db/flowlog/internal/ast"

// DependencyGraph maps a rule index to the set of rule indices whose head
// it depends on, through either a positive or a negated body atom. The two
// polarities share one graph for SCC purposes (spec §4.3 step 2 computes
// SCCs "of the union graph"); NegatedEdge records every edge contributed
// by a negated body atom (the same edge may also have a positive source).
// Stratification itself does not read NegatedEdge.
type DependencyGraph struct {
	Deps        map[int]map[int]bool
	NegatedEdge map[[2]int]bool
}

// BuildGraph constructs the dependency graph over program.Rules: rule r
// depends on rule s iff s's head relation appears as a positive or negated
// body atom of r.
func BuildGraph(program *ast.Program) *DependencyGraph {
	headRules := map[string][]int{}
	for _, r := range program.Rules {
		headRules[r.Head.Relation] = append(headRules[r.Head.Relation], r.Index)
	}

	g := &DependencyGraph{
		Deps:        map[int]map[int]bool{},
		NegatedEdge: map[[2]int]bool{},
	}
	for _, r := range program.Rules {
		g.Deps[r.Index] = map[int]bool{}
	}

	for _, r := range program.Rules {
		for _, atom := range r.Atoms {
			defs, ok := headRules[atom.Relation]
			if !ok {
				continue // EDB atom, no rule defines it
			}
			for _, s := range defs {
				g.Deps[r.Index][s] = true
				if atom.Negated {
					g.NegatedEdge[[2]int{r.Index, s}] = true
				}
			}
		}
	}
	return g
}

// Transpose returns the reverse of deps: for rule r -> s, produces s -> r.
func Transpose(deps map[int]map[int]bool) map[int]map[int]bool {
	t := make(map[int]map[int]bool, len(deps))
	for r, ss := range deps {
		for s := range ss {
			if t[s] == nil {
				t[s] = map[int]bool{}
			}
			t[s][r] = true
		}
	}
	return t
}
