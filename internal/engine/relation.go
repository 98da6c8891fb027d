package engine

// Relation is one materialized collection: a set of (key, value) row pairs
// sharing a key width. KeyWidth == 0 means a flat row stream (spec §3's
// "empty key means a flat row stream"); every row is then stored under the
// single empty key. Relations are always set-valued — insertion is
// idempotent, which is this engine's standing implementation of spec
// §4.7's "apply set-threshold (the engine's distinct operator)": every
// Relation is already distinct by construction, so Threshold is a no-op
// confirmation rather than a separate pass.
type Relation struct {
	KeyWidth int

	// byKey maps an encoded key to every (deduplicated) value row sharing
	// it. For a key-only (set) relation, each entry's value rows are all
	// the empty Row{}, recording presence only.
	byKey map[string][]Row
	// keys recalls the literal key Row for each encoded key string, so
	// callers can reconstruct full rows without re-deriving key columns.
	keys map[string]Row
	// seen deduplicates by the full (key++value) encoding, independent of
	// byKey's per-key slice scan, so repeated Insert calls during
	// fixed-point iteration stay cheap.
	seen map[string]bool

	size int
}

func newRelation(keyWidth int) *Relation {
	return &Relation{
		KeyWidth: keyWidth,
		byKey:    map[string][]Row{},
		keys:     map[string]Row{},
		seen:     map[string]bool{},
	}
}

// Insert adds one (key, value) pair if not already present, reporting
// whether it was new.
func (r *Relation) Insert(key, value Row) bool {
	full := key.Encode() + "\x01" + value.Encode()
	if r.seen[full] {
		return false
	}
	r.seen[full] = true
	ks := key.Encode()
	if _, ok := r.keys[ks]; !ok {
		r.keys[ks] = key
	}
	r.byKey[ks] = append(r.byKey[ks], value)
	r.size++
	return true
}

// Len reports the total number of distinct (key, value) rows.
func (r *Relation) Len() int { return r.size }

// Lookup returns the value rows stored under key, and whether that key is
// present at all.
func (r *Relation) Lookup(key Row) ([]Row, bool) {
	ks := key.Encode()
	vs, ok := r.byKey[ks]
	return vs, ok
}

// Each iterates every (key, value) pair.
func (r *Relation) Each(fn func(key, value Row)) {
	for ks, values := range r.byKey {
		key := r.keys[ks]
		for _, v := range values {
			fn(key, v)
		}
	}
}

// Keys iterates every distinct key (ignoring value rows), the natural
// iteration form of a key-only relation.
func (r *Relation) Keys(fn func(key Row)) {
	for ks := range r.byKey {
		fn(r.keys[ks])
	}
}
