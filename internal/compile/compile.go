// Package compile wires the full pipeline of spec §4 together: SIP
// rewriting, stratification, join-tree planning, transformation
// synthesis, and per-stratum scheduling, turning a parsed ast.Program into
// a schedule.Schedule internal/driver can execute.
//
// Grounded on planning/src/lib.rs's top-level `compile` entrypoint, the
// one place the original chains sideways/strata/planning/executing
// together before handing off to the dataflow runtime.
package compile

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/ferrors"
	"github.com/flowlog-db/flowlog/internal/planner"
	"github.com/flowlog-db/flowlog/internal/schedule"
	"github.com/flowlog-db/flowlog/internal/stratify"
	"github.com/flowlog-db/flowlog/internal/xform"
)

// Options controls the optimization knobs the CLI's -O and --no-sharing
// flags expose (spec §6).
type Options struct {
	// OptLevel overrides every rule's .sip/.plan annotations when non-nil:
	// 0 none, 1 SIP only, 2 plan only, 3 both. A nil OptLevel leaves each
	// rule's own WantSIP/WantPlan annotation in force.
	OptLevel *int

	// DisableSharing turns off cross-stratum common-subexpression sharing
	// in internal/schedule (the --no-sharing flag).
	DisableSharing bool
}

// CompiledPlan is the fully resolved artifact internal/driver runs.
type CompiledPlan struct {
	Program  *ast.Program
	Strata   *stratify.Strata
	Schedule *schedule.Schedule

	// Catalogs holds each expanded rule's per-rule catalog, indexed by its
	// (post-SIP-expansion) Rule.Index — kept around for -debug-catalog
	// rather than recomputed, since Compile already builds one per rule.
	Catalogs []*catalog.Catalog
}

// Compile runs the full compile-time pipeline over program, producing a
// schedule ready to drive. It is the single hand-off point between the
// textual/parsed front end (out of scope) and the dataflow back end
// (internal/engine, internal/driver).
func Compile(program *ast.Program, opts Options) (*CompiledPlan, error) {
	if err := validateRelations(program); err != nil {
		return nil, err
	}

	expanded, err := expandSIP(program, opts)
	if err != nil {
		return nil, err
	}

	strata, err := stratify.Build(expanded)
	if err != nil {
		return nil, err
	}

	rulePlans := make([]*xform.Plan, len(expanded.Rules))
	catalogs := make([]*catalog.Catalog, len(expanded.Rules))
	for _, rule := range expanded.Rules {
		cat, err := catalog.Build(rule)
		if err != nil {
			return nil, err
		}
		catalogs[rule.Index] = cat

		headVars := make([]string, len(rule.Head.Args))
		for i, ha := range rule.Head.Args {
			headVars[i] = ha.Expr.Head.Var
		}

		wantPlan := rule.WantPlan
		if opts.OptLevel != nil {
			wantPlan = *opts.OptLevel == 2 || *opts.OptLevel == 3
		}

		tree, err := planner.Build(cat, wantPlan, headVars)
		if err != nil {
			return nil, err
		}

		plan, err := xform.Synthesize(cat, tree, headVars)
		if err != nil {
			return nil, err
		}
		rulePlans[rule.Index] = plan
	}

	sched := schedule.Build(strata, rulePlans, opts.DisableSharing)

	logrus.WithFields(logrus.Fields{
		"rules":  len(expanded.Rules),
		"strata": len(sched.Strata),
	}).Info("compiled program")

	return &CompiledPlan{Program: expanded, Strata: strata, Schedule: sched, Catalogs: catalogs}, nil
}

// validateRelations rejects a rule body referencing a relation with
// neither an EDB nor an IDB declaration (ferrors.ErrUnknownRelation), the
// one catalog-adjacent check spec §3's per-rule Catalog has no reason to
// perform on its own (it only ever sees one rule at a time, never the
// full program's declared relation set).
func validateRelations(program *ast.Program) error {
	declared := map[string]bool{}
	for _, d := range program.EDB {
		declared[d.Name] = true
	}
	for _, d := range program.IDB {
		declared[d.Name] = true
	}
	for _, rule := range program.Rules {
		for _, atom := range rule.Atoms {
			if !declared[atom.Relation] {
				return ferrors.ErrUnknownRelation.New(ruleHeadLabel(rule), atom.Relation)
			}
		}
	}
	return nil
}

func ruleHeadLabel(r ast.Rule) string {
	return r.Head.Relation
}

// effectiveWantSIP applies opts.OptLevel's override (1 or 3 enables SIP)
// over rule's own .sip/.optimize annotation.
func effectiveWantSIP(rule ast.Rule, opts Options) bool {
	if opts.OptLevel != nil {
		return *opts.OptLevel == 1 || *opts.OptLevel == 3
	}
	return rule.WantSIP
}

// expandSIP rewrites every rule whose effective SIP annotation is set
// into its forward/backward reducer chain (catalog.Rewrite), renumbering
// Rule.Index across the whole expanded rule list and folding in the new
// intermediate IDB declarations the reducers introduce.
func expandSIP(program *ast.Program, opts Options) (*ast.Program, error) {
	var newRules []ast.Rule
	var newDecls []ast.RelationDecl

	for _, rule := range program.Rules {
		cat, err := catalog.Build(rule)
		if err != nil {
			return nil, err
		}

		if !effectiveWantSIP(rule, opts) {
			newRules = append(newRules, rule)
			continue
		}

		rewritten, decls, err := catalog.Rewrite(cat)
		if err != nil {
			return nil, err
		}
		if rewritten == nil {
			newRules = append(newRules, rule)
			continue
		}
		newRules = append(newRules, rewritten...)
		newDecls = append(newDecls, decls...)
	}

	for i := range newRules {
		newRules[i].Index = i
	}

	sort.Slice(newDecls, func(i, j int) bool { return newDecls[i].Name < newDecls[j].Name })

	out := &ast.Program{
		EDB:   program.EDB,
		IDB:   append(append([]ast.RelationDecl{}, program.IDB...), newDecls...),
		Rules: newRules,
	}
	return out, nil
}
