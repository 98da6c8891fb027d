package xform

import (
	"sort"

	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

func setOf(vars []string) map[string]bool {
	out := map[string]bool{}
	for _, v := range vars {
		out[v] = true
	}
	return out
}

func union2(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func subtractSet(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if !b[k] {
			out[k] = true
		}
	}
	return out
}

func isSubsetOf(vars []string, set map[string]bool) bool {
	for _, v := range vars {
		if !set[v] {
			return false
		}
	}
	return true
}

// intersectSlice returns the variables present in both sets, in
// deterministic (sorted) order — the join key is a set, and sorting gives
// every caller-facing column list a stable, reproducible order.
func intersectSlice(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// restrictTo returns the members of needed that are actually bound within
// universe, in sorted order.
func restrictTo(needed, universe map[string]bool) []string {
	var out []string
	for k := range needed {
		if universe[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func setDiffList(set map[string]bool, minus []string) []string {
	m := map[string]bool{}
	for k := range set {
		m[k] = true
	}
	for _, k := range minus {
		delete(m, k)
	}
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func findSigInCollection(cat *catalog.Catalog, col *Collection, varName string) (catalog.Sig, bool) {
	for _, s := range col.Key {
		if cat.SigToName[s] == varName {
			return s, true
		}
	}
	for _, s := range col.Value {
		if cat.SigToName[s] == varName {
			return s, true
		}
	}
	return catalog.Sig{}, false
}

func containsSig(col *Collection, sig catalog.Sig) bool {
	for _, s := range col.Key {
		if s == sig {
			return true
		}
	}
	for _, s := range col.Value {
		if s == sig {
			return true
		}
	}
	return false
}

func operandFor(col *Collection, sig catalog.Sig) Operand {
	for i, s := range col.Key {
		if s == sig {
			return KeyOperand(i)
		}
	}
	for i, s := range col.Value {
		if s == sig {
			return ValueOperand(i)
		}
	}
	ferrors.Invariant("signature %v absent from collection %s", sig, col)
	return Operand{}
}

// sigsFromCollections resolves each variable name to the signature bound
// to it in whichever of cols first carries it, in the order given.
func sigsFromCollections(cat *catalog.Catalog, vars []string, cols ...*Collection) []catalog.Sig {
	out := make([]catalog.Sig, 0, len(vars))
	for _, v := range vars {
		found := false
		for _, c := range cols {
			if s, ok := findSigInCollection(cat, c, v); ok {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			ferrors.Invariant("variable %q not present in any input collection", v)
		}
	}
	return out
}

func diffSigs(all, minus []catalog.Sig) []catalog.Sig {
	rm := map[catalog.Sig]bool{}
	for _, s := range minus {
		rm[s] = true
	}
	var out []catalog.Sig
	for _, s := range all {
		if !rm[s] {
			out = append(out, s)
		}
	}
	return out
}
