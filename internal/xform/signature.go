// Package xform implements the Collection/CollectionSignature data model
// of spec §3 and the top-down transformation-tree synthesis of spec §4.5:
// turning a planner.Tree into a DAG of Transformation nodes, each
// describing a semijoin, join, antijoin, or head-arithmetic map purely in
// terms of column positions.
package xform

import (
	"fmt"
	"strings"

	"github.com/mitchellh/hashstructure"

	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/ferrors"
)

// SigKind distinguishes the four collection-signature variants of spec §3:
// a base atom, a unary transformation's output, a join's output, or an
// antijoin's output.
type SigKind int

const (
	SigBaseAtom SigKind = iota
	SigUnary
	SigJoin
	SigAntijoin
)

// CollectionSignature is the identity of an intermediate or base relation
// in the dataflow. Two structurally identical transformations produce
// equal signatures and thereby share storage (spec §3, §9 "Collection-signature-based
// memoization"). FlowDesc is a column-index-only rendering of the
// transformation that produced this collection — no variable names ever
// appear in it, so two joins on differently-named but positionally
// identical operands dedupe automatically.
type CollectionSignature struct {
	Kind     SigKind
	Base     string
	Input    *CollectionSignature
	Left     *CollectionSignature
	Right    *CollectionSignature
	FlowDesc string
}

// Hash returns a stable structural hash, used by the scheduler's CSE
// "seen" set (internal/schedule) in place of deriving Hash on a Rust enum.
func (s *CollectionSignature) Hash() uint64 {
	h, err := hashstructure.Hash(s, nil)
	if err != nil {
		ferrors.Invariant("collection signature hash failed: %v", err)
	}
	return h
}

// String renders the full signature, including embedded flow
// descriptions, uniquely identifying this collection.
func (s *CollectionSignature) String() string {
	switch s.Kind {
	case SigBaseAtom:
		return "atom:" + s.Base
	case SigUnary:
		return fmt.Sprintf("%s|%s|", s.Input.String(), s.FlowDesc)
	case SigJoin:
		return fmt.Sprintf("(%s ⋈|%s| %s)", s.Left.String(), s.FlowDesc, s.Right.String())
	case SigAntijoin:
		return fmt.Sprintf("(%s ▷|%s| %s)", s.Left.String(), s.FlowDesc, s.Right.String())
	default:
		return "?"
	}
}

// DebugName strips the embedded `|...|` flow descriptions from String for
// human-readable logs (SPEC_FULL.md Supplemented Feature 3).
func (s *CollectionSignature) DebugName() string {
	full := s.String()
	var b strings.Builder
	inPipe := false
	for _, r := range full {
		if r == '|' {
			inPipe = !inPipe
			continue
		}
		if !inPipe {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BaseAtomSignature builds the signature for an EDB/IDB relation read
// directly, unreshaped.
func BaseAtomSignature(relation string) *CollectionSignature {
	return &CollectionSignature{Kind: SigBaseAtom, Base: relation}
}

// Collection pairs a signature with the ordered key and value argument
// signatures that give it shape (spec §3). Arity is (len(Key), len(Value));
// empty key means a flat row stream, empty value means a set, otherwise a
// key→value dictionary.
type Collection struct {
	Signature *CollectionSignature
	Key       []catalog.Sig
	Value     []catalog.Sig
}

// IsRow reports whether this collection has no key (a flat row stream).
func (c *Collection) IsRow() bool { return len(c.Key) == 0 }

// IsSet reports whether this collection has no value (a bare key set).
func (c *Collection) IsSet() bool { return len(c.Value) == 0 }

func (c *Collection) String() string {
	return fmt.Sprintf("%s[k=%d,v=%d]", c.Signature.DebugName(), len(c.Key), len(c.Value))
}
