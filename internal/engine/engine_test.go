package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/xform"
)

func TestRelationInsertDedupes(t *testing.T) {
	rel := newRelation(1)
	require.True(t, rel.Insert(Row{IntValue(1)}, Row{IntValue(2)}))
	require.False(t, rel.Insert(Row{IntValue(1)}, Row{IntValue(2)}))
	require.Equal(t, 1, rel.Len())
}

func TestApplyReshapeProjectsAndFilters(t *testing.T) {
	m := New()
	base := xform.BaseAtomSignature("Big")
	baseHash := base.Hash()
	m.Load(baseHash, 0, []Row{
		{IntValue(1), IntValue(20)},
		{IntValue(2), IntValue(5)},
	})

	out := &xform.Collection{Signature: &xform.CollectionSignature{Kind: xform.SigUnary, Input: base}}
	flow := &xform.Flow{
		Shape:    xform.ShapeReshape,
		OutValue: []xform.Operand{xform.ValueOperand(0)},
		Comparisons: []xform.ComparisonRef{{
			Op:   ast.Gt,
			Left: xform.ArithRef{Head: xform.ValueOperand(1)},
			Right: xform.ArithRef{Head: xform.Operand{IsConst: true, Const: ast.IntTerm(10)}},
		}},
	}
	out.Signature.FlowDesc = flow.String()
	tr := xform.NewReshape(&xform.Collection{Signature: base}, out, flow)

	n, err := m.Apply(tr)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rel := m.Get(out.Signature.Hash())
	require.Equal(t, 1, rel.Len())
	rel.Each(func(_, v Row) {
		require.Equal(t, int64(1), v[0].Int)
	})
}

func TestApplyJoinMatchesOnKey(t *testing.T) {
	m := New()
	leftSig := &xform.CollectionSignature{Kind: xform.SigBaseAtom, Base: "L"}
	rightSig := &xform.CollectionSignature{Kind: xform.SigBaseAtom, Base: "R"}
	m.Load(leftSig.Hash(), 1, []Row{{IntValue(1), IntValue(100)}, {IntValue(2), IntValue(200)}})
	m.Load(rightSig.Hash(), 1, []Row{{IntValue(1), IntValue(900)}})

	out := &xform.Collection{Signature: &xform.CollectionSignature{Kind: xform.SigJoin, Left: leftSig, Right: rightSig}}
	flow := &xform.Flow{
		Shape:    xform.ShapeJoin,
		OutKey:   []xform.Operand{xform.KeyOperand(0)},
		OutValue: []xform.Operand{xform.ValueOperand(0), xform.RightValueOperand(0)},
	}
	out.Signature.FlowDesc = flow.String()
	leftCol := &xform.Collection{Signature: leftSig, Key: []catalog.Sig{{}}, Value: []catalog.Sig{{}}}
	rightCol := &xform.Collection{Signature: rightSig, Key: []catalog.Sig{{}}, Value: []catalog.Sig{{}}}
	tr := xform.NewJoin(leftCol, rightCol, out, flow)

	n, err := m.Apply(tr)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestApplyAntijoinFiltersMatches(t *testing.T) {
	m := New()
	leftSig := &xform.CollectionSignature{Kind: xform.SigBaseAtom, Base: "Node"}
	rightSig := &xform.CollectionSignature{Kind: xform.SigBaseAtom, Base: "Marked"}
	m.Load(leftSig.Hash(), 1, []Row{{IntValue(1)}, {IntValue(2)}})
	m.Load(rightSig.Hash(), 1, []Row{{IntValue(1)}})

	out := &xform.Collection{Signature: &xform.CollectionSignature{Kind: xform.SigAntijoin, Left: leftSig, Right: rightSig}}
	flow := &xform.Flow{Shape: xform.ShapeJoin, OutKey: []xform.Operand{xform.KeyOperand(0)}}
	out.Signature.FlowDesc = flow.String()
	tr := xform.NewAntijoin(&xform.Collection{Signature: leftSig}, &xform.Collection{Signature: rightSig}, out, flow)

	n, err := m.Apply(tr)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rel := m.Get(out.Signature.Hash())
	rel.Each(func(k, _ Row) {
		require.Equal(t, int64(2), k[0].Int)
	})
}

func TestGroupReduceSum(t *testing.T) {
	src := newRelation(0)
	src.Insert(nil, Row{IntValue(1), IntValue(10)})
	src.Insert(nil, Row{IntValue(1), IntValue(20)})
	src.Insert(nil, Row{IntValue(2), IntValue(5)})

	out := GroupReduce(src, ast.AggSum)
	require.Equal(t, 2, out.Len())

	totals := map[int64]int64{}
	out.Each(func(_, row Row) {
		totals[row[0].Int] = row[1].Int
	})
	require.Equal(t, int64(30), totals[1])
	require.Equal(t, int64(5), totals[2])
}

func TestGroupReduceMin(t *testing.T) {
	src := newRelation(0)
	src.Insert(nil, Row{IntValue(1), IntValue(10)})
	src.Insert(nil, Row{IntValue(1), IntValue(3)})

	out := GroupReduce(src, ast.AggMin)
	out.Each(func(_, row Row) {
		require.Equal(t, int64(3), row[1].Int)
	})
}

func TestPartitionOfIsDeterministic(t *testing.T) {
	row := Row{IntValue(42)}
	p1 := PartitionOf(row, 4)
	p2 := PartitionOf(row, 4)
	require.Equal(t, p1, p2)
	require.GreaterOrEqual(t, p1, 0)
	require.Less(t, p1, 4)
}
