// Package ferrors defines the error taxonomy used across the compile
// pipeline and the dataflow driver. Each compile-time failure is a Kind
// with a formatted message; callers type-switch with errors.Is against the
// Kind, the same idiom the mysql-server auth package uses for permission
// errors.
package ferrors

import (
	"fmt"

	"github.com/pkg/errors"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrParse surfaces a program-text syntax error with a line/column hint.
	ErrParse = goerrors.NewKind("parse error at %s: %s")

	// ErrUnsafeNegation is raised when a negated atom binds a variable that
	// does not also occur in some positive atom of the same rule.
	ErrUnsafeNegation = goerrors.NewKind("unsafe negation in rule %q: variable %q in negated atom %q never appears positively")

	// ErrMissingEDB is raised when a declared EDB relation has no backing
	// fact file under the configured facts directory.
	ErrMissingEDB = goerrors.NewKind("missing EDB fact file for relation %q: %s")

	// ErrArityMismatch is raised when an input row's column count does not
	// match its relation's declared arity.
	ErrArityMismatch = goerrors.NewKind("arity mismatch for %q at row %d: expected %d columns, got %d")

	// ErrOutOfRangeArity is a warning-grade condition: a relation's arity
	// exceeds the fixed-size specialization threshold. It is recovered by
	// auto-enabling fat-mode, never fatal on its own.
	ErrOutOfRangeArity = goerrors.NewKind("relation %q has arity %d, exceeding the fixed-arity threshold; falling back to dynamic-arity rows")

	// ErrInconsistentHeadArity is raised when two rules defining the same
	// IDB head disagree on arity. The original source takes "first rule
	// wins"; this reimplementation rejects it (DESIGN.md Open Question 2).
	ErrInconsistentHeadArity = goerrors.NewKind("relation %q is defined with inconsistent arities: %d (rule %d) vs %d (rule %d)")

	// ErrSIPOnAggregation forbids combining SIP rewriting with an
	// aggregating head (DESIGN.md Open Question 1).
	ErrSIPOnAggregation = goerrors.NewKind("rule %q: SIP rewriting is not supported on a rule with an aggregating head")

	// ErrInconsistentHeadAgg is raised when two rules defining the same
	// IDB head disagree on whether (or how) that head aggregates: the
	// driver reduces a head relation once per its single AggKind, so
	// rules contributing to it must agree.
	ErrInconsistentHeadAgg = goerrors.NewKind("relation %q is defined with inconsistent aggregation: %s (rule %d) vs %s (rule %d)")

	// ErrUnknownRelation is raised when a rule body references a relation
	// with neither an EDB (.in) nor an IDB (.printsize) declaration.
	ErrUnknownRelation = goerrors.NewKind("rule %q references undeclared relation %q")
)

// Invariant panics with a stack-traced internal error. It marks conditions
// that the compile pipeline's own algorithms should make unreachable — a
// signature missing from the argument-presence map, a join tree node with
// no children, a collection signature seen twice in one transformation's
// input list.
func Invariant(format string, args ...interface{}) {
	panic(errors.WithStack(internalError{msg: fmt.Sprintf(format, args...)}))
}

type internalError struct {
	msg string
}

func (e internalError) Error() string {
	return "internal invariant violation: " + e.msg
}

// Recover turns a panicked Invariant (or any other panic) into an error,
// for use in a deferred call at the boundary between the compile pipeline
// and the CLI entrypoint.
func Recover(dst *error) {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			*dst = err
			return
		}
		*dst = errors.Errorf("panic: %v", r)
	}
}
