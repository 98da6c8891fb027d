// Package schedule implements spec §4.6: per-stratum linearization of the
// transformation DAGs synthesized by internal/xform, with cross-stratum
// common-subexpression sharing and the enter-scope computation a recursive
// stratum needs before its driver opens a nested timestamp scope.
//
// Grounded on planning/src/strata.rs's GroupStrataQueryPlan::new,
// construct_non_recursive, and construct_recursive.
package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/stratify"
	"github.com/flowlog-db/flowlog/internal/xform"
)

// StratumPlan is one stratum's linearized, deduplicated transformation
// list, ready for internal/driver to dispatch.
type StratumPlan struct {
	Index     int
	Recursive bool

	// Transformations is the post-order list of transformations first
	// emitted in this stratum — already deduplicated against every earlier
	// stratum (and, within the stratum, against earlier rules) by
	// collection-signature hash.
	Transformations []*xform.Transformation

	// EnterScope lists the IDB relation names, materialized by a strictly
	// earlier stratum, that a base-atom read inside this stratum depends
	// on. A recursive stratum's nested timestamp scope cannot see an outer
	// scope's collections without being explicitly brought in first — the
	// idiomatic ".enter()" a nested differential-dataflow scope needs
	// before combining an outer collection with a recursive variable
	// (spec §4.7). Always empty for a non-recursive stratum.
	EnterScope []string

	// HeadContributions maps a head relation name to every HeadMap
	// transformation in this stratum producing it, in rule order — the
	// per-rule contributions the driver concatenates into that relation's
	// recursive variable (spec §4.7 "multiple rules producing the same
	// head are concatenated").
	HeadContributions map[string][]*xform.Transformation
}

// Schedule is the full cross-stratum plan.
type Schedule struct {
	Strata []*StratumPlan
}

// String renders every stratum in turn, box-drawing each one's
// transformation list under an "[ent] a && b" enter-scope line (when
// non-empty) or "[∅]" when the stratum has nothing new to apply.
//
// Grounded on planning/src/strata.rs's GroupStrataQueryPlan::Display.
func (s *Schedule) String() string {
	parts := make([]string, len(s.Strata))
	for i, sp := range s.Strata {
		parts[i] = sp.String()
	}
	return strings.Join(parts, "\n")
}

// String renders this stratum's enter-scope line followed by one
// box-drawn line per transformation.
func (sp *StratumPlan) String() string {
	var b strings.Builder
	if len(sp.EnterScope) > 0 {
		b.WriteString("[ent] ")
		b.WriteString(strings.Join(sp.EnterScope, " && "))
		b.WriteString("\n")
	}
	if len(sp.Transformations) == 0 {
		b.WriteString("[∅]")
		return b.String()
	}
	for i, t := range sp.Transformations {
		prefix := "├── "
		if i == len(sp.Transformations)-1 {
			prefix = "└── "
		}
		fmt.Fprintf(&b, "%s%s", prefix, t)
		if i < len(sp.Transformations)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Build linearizes rulePlans (one synthesized xform.Plan per rule, indexed
// by ast.Rule.Index) into per-stratum schedules, in stratum order.
//
// dedupSeen is the cross-stratum CSE "seen" set (spec §4.6); disableSharing
// resets it per stratum instead of letting it run across strata (spec §4.6
// "disable-sharing mode keeps per-stratum state separate"). priorHeads
// tracks which IDB relations were fully computed by a stratum strictly
// earlier than the one being scheduled, independent of disableSharing:
// enter-scope is about where a relation's data physically lives, not about
// whether re-deriving its reads is deduplicated.
func Build(strata *stratify.Strata, rulePlans []*xform.Plan, disableSharing bool) *Schedule {
	dedupSeen := map[uint64]bool{}
	priorHeads := map[string]bool{}

	out := &Schedule{}
	for stratumIdx, ruleIndices := range strata.Rules {
		recursive := strata.Recursive[stratumIdx]
		sp := &StratumPlan{
			Index:             stratumIdx,
			Recursive:         recursive,
			HeadContributions: map[string][]*xform.Transformation{},
		}

		if disableSharing {
			dedupSeen = map[uint64]bool{}
		}

		enterScope := map[string]bool{}
		thisStratumHeads := map[string]bool{}

		for _, ruleIdx := range ruleIndices {
			plan := rulePlans[ruleIdx]
			if plan == nil {
				continue
			}
			for _, t := range plan.Nodes {
				h := t.Output.Signature.Hash()
				if dedupSeen[h] {
					continue
				}
				dedupSeen[h] = true
				sp.Transformations = append(sp.Transformations, t)

				if recursive {
					collectBaseAtomRelations(t.Output.Signature, priorHeads, enterScope)
				}
			}

			relation := plan.Root.Output.Signature.Base
			thisStratumHeads[relation] = true
			sp.HeadContributions[relation] = append(sp.HeadContributions[relation], plan.Root)
		}

		for name := range enterScope {
			sp.EnterScope = append(sp.EnterScope, name)
		}
		sort.Strings(sp.EnterScope)

		for name := range thisStratumHeads {
			priorHeads[name] = true
		}

		logrus.WithFields(logrus.Fields{
			"stratum":     stratumIdx,
			"recursive":   recursive,
			"transforms":  len(sp.Transformations),
			"enter_scope": len(sp.EnterScope),
		}).Debug("scheduled stratum")

		out.Strata = append(out.Strata, sp)
	}

	return out
}

// collectBaseAtomRelations walks a collection signature's provenance tree
// looking for base-atom leaves whose relation name was materialized by an
// earlier stratum, recording each into enterScope.
func collectBaseAtomRelations(sig *xform.CollectionSignature, priorHeads map[string]bool, enterScope map[string]bool) {
	if sig == nil {
		return
	}
	if sig.Kind == xform.SigBaseAtom {
		if priorHeads[sig.Base] {
			enterScope[sig.Base] = true
		}
		return
	}
	collectBaseAtomRelations(sig.Input, priorHeads, enterScope)
	collectBaseAtomRelations(sig.Left, priorHeads, enterScope)
	collectBaseAtomRelations(sig.Right, priorHeads, enterScope)
}
