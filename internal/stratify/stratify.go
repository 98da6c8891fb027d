package stratify

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// Strata is the stratified form of a program: rules grouped into an
// ordered sequence of strata, each evaluated to completion before the
// next, with a recursive/non-recursive flag per stratum.
type Strata struct {
	Program *ast.Program
	Graph   *DependencyGraph

	// Rules holds, per stratum, the indices of the rules it contains.
	Rules [][]int
	// Recursive[i] reports whether stratum i is recursive: its rule set
	// has more than one member, or a rule in it depends (directly or via
	// the SCC) on itself.
	Recursive []bool
}

// Build stratifies program (spec §4.3): Kosaraju SCC over the rule
// dependency graph, reverse-topological emission, then a greedy merge of
// adjacent strata with no unmet dependency.
//
// Grounded on strata/src/stratification.rs's Strata::from_parser:
// processing_order_dfs computes forward finish order, assigning_scc_dfs
// walks the transposed graph in reverse finish order to assign SCC ids,
// and the trailing merge loop repeatedly folds every currently-dependency-free
// stratum into one combined non-recursive stratum while keeping each
// dependency-free recursive stratum separate.
func Build(program *ast.Program) (*Strata, error) {
	if err := checkHeadArityConsistency(program); err != nil {
		return nil, err
	}
	if err := checkHeadAggConsistency(program); err != nil {
		return nil, err
	}

	g := BuildGraph(program)

	n := len(program.Rules)
	visited := make([]bool, n)
	var order []int
	ids := ruleIDsSorted(g.Deps)
	for _, id := range ids {
		processingOrderDFS(&order, visited, g.Deps, id)
	}
	reverse(order)

	transpose := Transpose(g.Deps)
	ruleSCCs := map[int][]int{}
	var sccOrder []int
	assigned := make([]bool, n)
	for _, ruleID := range order {
		assigningSCCDFS(transpose, ruleSCCs, &sccOrder, assigned, ruleID, ruleID)
	}
	reverse(sccOrder)

	var strata [][]int
	var recursive []bool
	for _, sccID := range sccOrder {
		scc, ok := ruleSCCs[sccID]
		if !ok {
			continue
		}
		strata = append(strata, scc)
		selfLoop := g.Deps[sccID][sccID]
		recursive = append(recursive, len(scc) > 1 || selfLoop)
	}

	mergedRules, mergedRecursive := mergeStrata(strata, recursive, g.Deps)

	s := &Strata{
		Program:   program,
		Graph:     g,
		Rules:     mergedRules,
		Recursive: mergedRecursive,
	}

	logrus.WithField("strata", len(s.Rules)).Debug("stratification complete")
	return s, nil
}

func processingOrderDFS(order *[]int, visited []bool, deps map[int]map[int]bool, ruleID int) {
	if visited[ruleID] {
		return
	}
	visited[ruleID] = true
	for _, dep := range sortedKeys(deps[ruleID]) {
		processingOrderDFS(order, visited, deps, dep)
	}
	*order = append(*order, ruleID)
}

func assigningSCCDFS(transpose map[int]map[int]bool, sccs map[int][]int, sccOrder *[]int, assigned []bool, ruleID, sccID int) {
	if assigned[ruleID] {
		return
	}
	assigned[ruleID] = true

	if _, ok := sccs[sccID]; !ok {
		*sccOrder = append(*sccOrder, sccID)
	}
	sccs[sccID] = append(sccs[sccID], ruleID)

	for _, rev := range sortedKeys(transpose[ruleID]) {
		assigningSCCDFS(transpose, sccs, sccOrder, assigned, rev, sccID)
	}
}

// mergeStrata implements spec §4.3 step 4: repeatedly collect every
// stratum with no remaining inter-stratum dependency, batch its
// non-recursive members into one combined stratum, keep each recursive
// member separate, then remove their rules from all remaining dependency
// sets and repeat.
func mergeStrata(strata [][]int, recursive []bool, deps map[int]map[int]bool) ([][]int, []bool) {
	strataDeps := make([]map[int]bool, len(strata))
	for i, stratum := range strata {
		inThis := map[int]bool{}
		for _, r := range stratum {
			inThis[r] = true
		}
		d := map[int]bool{}
		for _, r := range stratum {
			for dep := range deps[r] {
				if !inThis[dep] {
					d[dep] = true
				}
			}
		}
		strataDeps[i] = d
	}

	merged := make([]bool, len(strata))
	var outRules [][]int
	var outRecursive []bool

	remaining := len(strata)
	for remaining > 0 {
		var nextNonRecursive []int
		var nextRecursive [][]int

		for i, stratum := range strata {
			if merged[i] || len(strataDeps[i]) != 0 {
				continue
			}
			merged[i] = true
			remaining--
			if recursive[i] {
				nextRecursive = append(nextRecursive, append([]int(nil), stratum...))
			} else {
				nextNonRecursive = append(nextNonRecursive, stratum...)
			}
		}

		mergedSet := map[int]bool{}
		for _, r := range nextNonRecursive {
			mergedSet[r] = true
		}
		for _, s := range nextRecursive {
			for _, r := range s {
				mergedSet[r] = true
			}
		}
		for i := range strataDeps {
			for r := range mergedSet {
				delete(strataDeps[i], r)
			}
		}

		if len(nextNonRecursive) > 0 {
			outRules = append(outRules, nextNonRecursive)
			outRecursive = append(outRecursive, false)
		}
		for _, s := range nextRecursive {
			outRules = append(outRules, s)
			outRecursive = append(outRecursive, true)
		}
	}

	return outRules, outRecursive
}

func checkHeadArityConsistency(program *ast.Program) error {
	arity := map[string]int{}
	ruleIdx := map[string]int{}
	for _, r := range program.Rules {
		a := len(r.Head.Args)
		if prev, ok := arity[r.Head.Relation]; ok && prev != a {
			return ferrors.ErrInconsistentHeadArity.New(
				r.Head.Relation, prev, ruleIdx[r.Head.Relation], a, r.Index)
		}
		arity[r.Head.Relation] = a
		ruleIdx[r.Head.Relation] = r.Index
	}
	return nil
}

// checkHeadAggConsistency rejects a program where two rules defining the
// same IDB head disagree on aggregation (internal/driver reduces a head
// relation once, by a single AggKind shared across every contributing
// rule).
func checkHeadAggConsistency(program *ast.Program) error {
	agg := map[string]ast.AggKind{}
	ruleIdx := map[string]int{}
	for _, r := range program.Rules {
		var kind ast.AggKind
		if r.Head.IsAggregating() {
			kind = r.Head.Args[len(r.Head.Args)-1].Agg
		}
		if prev, ok := agg[r.Head.Relation]; ok && prev != kind {
			return ferrors.ErrInconsistentHeadAgg.New(
				r.Head.Relation, prev, ruleIdx[r.Head.Relation], kind, r.Index)
		}
		agg[r.Head.Relation] = kind
		ruleIdx[r.Head.Relation] = r.Index
	}
	return nil
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func ruleIDsSorted(m map[int]map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func reverse(xs []int) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
