// Package driver implements spec §4.7: dispatching a schedule.Schedule
// onto an engine.Store, stratum by stratum. A non-recursive stratum
// applies every transformation once, in dependency order; a recursive
// stratum iterates its transformations to a fixpoint, the in-memory
// analogue of opening a nested differential-dataflow scope and looping
// its variables until no worker reports new output.
//
// Grounded on executing/src/dataflow.rs's program_execution: the
// non-recursive branch is a single forward pass, the recursive branch is
// a `loop { ... if no changes { break } }` around the stratum's operators.
package driver

import (
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/engine"
	"github.com/flowlog-db/flowlog/internal/schedule"
	"github.com/flowlog-db/flowlog/internal/xform"
)

// Driver dispatches a Schedule onto a Store.
type Driver struct {
	store   engine.Store
	tracer  opentracing.Tracer
	maxIter int
}

// New builds a driver over store, tracing spans with tracer. A nil tracer
// falls back to opentracing.NoopTracer.
func New(store engine.Store, tracer opentracing.Tracer) *Driver {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return &Driver{store: store, tracer: tracer, maxIter: defaultMaxIterations}
}

// defaultMaxIterations bounds a recursive stratum's fixpoint loop as a
// safety net against a scheduling bug producing an ever-growing relation;
// a genuinely stratified, monotone program always reaches a fixpoint long
// before this.
const defaultMaxIterations = 100000

// Run executes every stratum of sched in order, returning the first error
// encountered. Strata run sequentially: spec §4.3's stratification
// guarantees stratum i's inputs are fully settled before stratum i+1
// begins.
func (d *Driver) Run(sched *schedule.Schedule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = errors.Errorf("panic while driving schedule: %v", r)
		}
	}()

	for _, sp := range sched.Strata {
		if err := d.runStratum(sp); err != nil {
			return errors.Wrapf(err, "stratum %d", sp.Index)
		}
	}
	return nil
}

func (d *Driver) runStratum(sp *schedule.StratumPlan) error {
	span := d.tracer.StartSpan("stratum")
	span.SetTag("index", sp.Index)
	span.SetTag("recursive", sp.Recursive)
	defer span.Finish()

	log := logrus.WithFields(logrus.Fields{
		"stratum":   sp.Index,
		"recursive": sp.Recursive,
	})
	log.Info("entering stratum")

	if sp.Recursive {
		iterations, err := d.runRecursive(sp)
		if err != nil {
			return err
		}
		log.WithField("iterations", iterations).Info("stratum reached fixpoint")
		return nil
	}

	if err := d.runOnce(sp); err != nil {
		return err
	}
	log.Info("stratum complete")
	return nil
}

// runOnce applies every transformation in sp exactly once, then merges
// each rule's HeadMap output into its head relation's canonical storage.
// Used for a non-recursive stratum, where a single forward pass already
// reaches a fixpoint.
func (d *Driver) runOnce(sp *schedule.StratumPlan) error {
	for _, t := range sp.Transformations {
		if _, err := d.store.Apply(t); err != nil {
			return errors.Wrapf(err, "applying %s", t.Output.Signature.DebugName())
		}
	}
	d.concatenateHeads(sp)
	d.thresholdHeads(sp)
	d.reduceAggregates(sp)
	return nil
}

// runRecursive iterates sp's transformations until a full pass adds no new
// rows to any relation, then thresholds every head relation this stratum
// produced (spec §4.7's distinct-before-export). EnterScope relations are
// already materialized under their canonical BaseAtomSignature by an
// earlier stratum's concatenateHeads call (or by the initial fact load for
// an EDB); nothing further is needed to bring them into this stratum's
// reads, since InMemory has no real nested-scope isolation to cross.
func (d *Driver) runRecursive(sp *schedule.StratumPlan) (int, error) {
	for iter := 0; iter < d.maxIter; iter++ {
		total := 0
		for _, t := range sp.Transformations {
			n, err := d.store.Apply(t)
			if err != nil {
				return iter, errors.Wrapf(err, "applying %s", t.Output.Signature.DebugName())
			}
			total += n
		}
		total += d.concatenateHeads(sp)

		if total == 0 {
			d.thresholdHeads(sp)
			d.reduceAggregates(sp)
			return iter + 1, nil
		}
	}
	return d.maxIter, errors.Errorf("stratum did not reach a fixpoint within %d iterations", d.maxIter)
}

// concatenateHeads merges every rule's HeadMap output for each head
// relation produced in sp into that relation's canonical, relation-name
// addressed storage (spec §4.7 "multiple rules producing the same head
// are concatenated"), returning the total number of newly added rows.
func (d *Driver) concatenateHeads(sp *schedule.StratumPlan) int {
	total := 0
	for relation, heads := range sp.HeadContributions {
		canonical := xform.BaseAtomSignature(relation).Hash()
		for _, h := range heads {
			total += d.store.Alias(h.Output.Signature.Hash(), canonical)
		}
	}
	return total
}

func (d *Driver) thresholdHeads(sp *schedule.StratumPlan) {
	for relation := range sp.HeadContributions {
		d.store.Threshold(xform.BaseAtomSignature(relation).Hash())
	}
}

// reduceAggregates collapses each aggregating head relation in sp down to
// one row per group-by key (spec §4.7). Every rule contributing to a given
// head relation carries the same AggKind — stratify.Build's
// checkHeadAggConsistency rejects a program where two rules disagree on a
// head's aggregation before this ever runs — so the first contribution's
// AggKind speaks for the whole relation. Called once per non-recursive
// stratum pass, or once after a recursive stratum's fixpoint loop
// converges; never mid-loop, since the min/max/sum reduction is only
// correct over the stratum's final, settled set of contributions.
func (d *Driver) reduceAggregates(sp *schedule.StratumPlan) {
	for relation, heads := range sp.HeadContributions {
		if len(heads) == 0 {
			continue
		}
		kind := heads[0].AggKind
		if kind == ast.NoAgg {
			continue
		}
		d.store.Reduce(xform.BaseAtomSignature(relation).Hash(), kind)
	}
}
