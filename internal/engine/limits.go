package engine

// Build-time codegen limits from the original implementation
// (reading/src/config.rs), kept as named constants for spec-surface
// completeness even though InMemory's single dynamic-arity Row (see
// row.go) has no per-arity dispatch table to bound — see DESIGN.md's
// fixed/dynamic-arity Open Question resolution.
const (
	// KVMax is the largest key-value arity the original's codegen
	// specialized.
	KVMax = 12
	// RowMax is the largest flat-row arity the original's codegen
	// specialized.
	RowMax = 16
	// ProdMax bounds join-side cartesian-product fanout the planner's
	// child-permutation search considered tractable.
	ProdMax = 6
	// FallbackArity is the arity at which the original's codegen gave up
	// specializing and fell back to a boxed, dynamic-arity row — the
	// representation this engine always uses.
	FallbackArity = 24
)
