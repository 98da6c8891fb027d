package xform

import (
	"github.com/flowlog-db/flowlog/internal/ast"
	"github.com/flowlog-db/flowlog/internal/catalog"
	"github.com/flowlog-db/flowlog/internal/ferrors"
	"github.com/flowlog-db/flowlog/internal/planner"
)

// Plan is the synthesized output for one rule: every Transformation node
// reachable from Root (the HeadMap), in the order they were produced —
// leaves first — ready for the scheduler to deduplicate and linearize
// (spec §4.6).
type Plan struct {
	Root  *Transformation
	Nodes []*Transformation
}

type state struct {
	consumedComparison map[int]bool
	consumedNegation   map[int]bool
	consumedSubAtom    map[int]bool
	nodes              []*Transformation
}

func (s *state) emit(t *Transformation) *Transformation {
	s.nodes = append(s.nodes, t)
	return t
}

// Synthesize walks tree top-down, producing the transformation tree for
// one rule (spec §4.5): semijoin/antijoin chains at leaves, fused-comparison
// joins and post-join antijoins at internal nodes, and a final HeadMap at
// the root applying the rule's head arithmetic.
//
// Grounded on planning/src/rule.rs's RuleQueryPlan::recursive_transformations
// and per_atom_recursive_semijoins_and_antijoins, and on spec §4.5's own
// prose description of the leftover-side/planning-side recursion.
func Synthesize(cat *catalog.Catalog, tree *planner.Tree, headVars []string) (*Plan, error) {
	st := &state{
		consumedComparison: map[int]bool{},
		consumedNegation:    map[int]bool{},
		consumedSubAtom:     map[int]bool{},
	}

	root := synthNode(cat, tree.Root, nil, headVars, st)

	headOut := headRowCollection(cat)
	headFlow := buildHeadFlow(cat, root)
	headOut.Signature.Input = root.Signature
	headOut.Signature.FlowDesc = headFlow.String()
	headMap := NewHeadMap(root, headOut, headFlow, headAggKind(cat))
	st.emit(headMap)

	return &Plan{Root: headMap, Nodes: st.nodes}, nil
}

func nodeVars(cat *catalog.Catalog, n *planner.Node) map[string]bool {
	set := map[string]bool{}
	var walk func(*planner.Node)
	walk = func(nn *planner.Node) {
		for _, v := range cat.PositiveAtoms[nn.AtomIndex].Vars() {
			set[v] = true
		}
		for _, c := range nn.Children {
			walk(c)
		}
	}
	walk(n)
	return set
}

// synthNode implements spec §4.5's per-node synthesis. keyVars/valueVars
// are the shape requested by the caller (the parent join, or the rule
// head at the root).
func synthNode(cat *catalog.Catalog, n *planner.Node, keyVars, valueVars []string, st *state) *Collection {
	if len(n.Children) == 0 {
		return synthLeaf(cat, n.AtomIndex, keyVars, valueVars, st)
	}

	last := n.Children[len(n.Children)-1]
	leftover := &planner.Node{AtomIndex: n.AtomIndex, Children: n.Children[:len(n.Children)-1]}

	leftoverVars := nodeVars(cat, leftover)
	planningVars := nodeVars(cat, last)
	activeVars := union2(leftoverVars, planningVars)

	var straddling []ast.Comparison
	for i, cmp := range cat.Comparisons {
		if st.consumedComparison[i] {
			continue
		}
		vars := cmp.Vars()
		if !isSubsetOf(vars, activeVars) {
			continue
		}
		onLeftover := isSubsetOf(vars, leftoverVars)
		onPlanning := isSubsetOf(vars, planningVars)
		if onLeftover || onPlanning {
			// Fully resolvable on one side; it will be picked up again
			// when that side is recursed into (or at the enclosing leaf),
			// so leave it unconsumed here.
			continue
		}
		straddling = append(straddling, cmp)
		st.consumedComparison[i] = true
	}

	var postJoinNeg []int
	for i, neg := range cat.NegatedAtoms {
		if st.consumedNegation[i] {
			continue
		}
		vars := neg.Vars()
		if isSubsetOf(vars, activeVars) && !isSubsetOf(vars, leftoverVars) && !isSubsetOf(vars, planningVars) {
			postJoinNeg = append(postJoinNeg, i)
		}
	}

	joinKeyVars := intersectSlice(leftoverVars, planningVars)
	joinKeySet := setOf(joinKeyVars)

	needed := union2(setOf(keyVars), setOf(valueVars))
	for _, cmp := range straddling {
		needed = union2(needed, setOf(cmp.Vars()))
	}
	for _, negIdx := range postJoinNeg {
		needed = union2(needed, setOf(cat.NegatedAtoms[negIdx].Vars()))
	}
	needed = subtractSet(needed, joinKeySet)

	leftoverValue := restrictTo(needed, leftoverVars)
	planningValue := restrictTo(needed, planningVars)

	leftoverCol := synthNode(cat, leftover, joinKeyVars, leftoverValue, st)
	planningCol := synthNode(cat, last, joinKeyVars, planningValue, st)

	outValueSet := union2(setOf(keyVars), setOf(valueVars))
	for _, negIdx := range postJoinNeg {
		outValueSet = union2(outValueSet, setOf(cat.NegatedAtoms[negIdx].Vars()))
	}
	outValueVars := setDiffList(outValueSet, joinKeyVars)

	joinOut := &Collection{
		Signature: &CollectionSignature{Kind: SigJoin, Left: leftoverCol.Signature, Right: planningCol.Signature},
		Key:       sigsFromCollections(cat, joinKeyVars, leftoverCol, planningCol),
		Value:     sigsFromCollections(cat, outValueVars, leftoverCol, planningCol),
	}
	joinFlow := buildJoinFlow(cat, leftoverCol, planningCol, joinOut, straddling)
	joinOut.Signature.FlowDesc = joinFlow.String()
	st.emit(NewJoin(leftoverCol, planningCol, joinOut, joinFlow))

	cur := joinOut
	for _, negIdx := range postJoinNeg {
		st.consumedNegation[negIdx] = true
		negAtom := cat.NegatedAtoms[negIdx]
		arranged := arrangeByVars(cat, cur, negAtom.Vars())
		negCol := synthNegationLookup(negAtom)

		out := &Collection{
			Signature: &CollectionSignature{Kind: SigAntijoin, Left: arranged.Signature, Right: negCol.Signature},
			Key:       arranged.Key,
			Value:     arranged.Value,
		}
		flow := &Flow{Shape: ShapeJoin}
		out.Signature.FlowDesc = flow.String()
		st.emit(NewAntijoin(arranged, negCol, out, flow))
		cur = out
	}

	return reshapeTo(cat, cur, keyVars, valueVars)
}

// synthLeaf implements spec §4.5's leaf-atom rules: a chain of sub-atom
// semijoins, a chain of subsumed-negation antijoins, then a final reshape
// applying base filters and single-side comparisons, projected to the
// requested shape.
func synthLeaf(cat *catalog.Catalog, atomIdx int, keyVars, valueVars []string, st *state) *Collection {
	atom := cat.PositiveAtoms[atomIdx]
	allSigs := make([]catalog.Sig, len(atom.Args))
	for j := range atom.Args {
		allSigs[j] = catalog.Sig{Polarity: catalog.Positive, BodyPos: atomIdx, ColumnIndex: j}
	}
	cur := &Collection{
		Signature: BaseAtomSignature(atom.Relation),
		Value:     allSigs,
	}

	for _, subIdx := range cat.SubAtoms(atomIdx) {
		if st.consumedSubAtom[subIdx] {
			continue
		}
		st.consumedSubAtom[subIdx] = true
		subVars := cat.PositiveAtoms[subIdx].Vars()

		arranged := arrangeByVars(cat, cur, subVars)
		subKeyCol := synthSubAtomKey(cat, subIdx)

		out := &Collection{
			Signature: &CollectionSignature{Kind: SigJoin, Left: arranged.Signature, Right: subKeyCol.Signature},
			Key:       arranged.Key,
			Value:     arranged.Value,
		}
		flow := &Flow{Shape: ShapeJoin}
		out.Signature.FlowDesc = flow.String()
		st.emit(NewJoin(arranged, subKeyCol, out, flow))
		cur = out
	}

	for negIdx, negAtom := range cat.NegatedAtoms {
		if st.consumedNegation[negIdx] {
			continue
		}
		if !isSubsetOf(negAtom.Vars(), setOf(atom.Vars())) {
			continue
		}
		st.consumedNegation[negIdx] = true
		arranged := arrangeByVars(cat, cur, negAtom.Vars())
		negCol := synthNegationLookup(negAtom)
		out := &Collection{
			Signature: &CollectionSignature{Kind: SigAntijoin, Left: arranged.Signature, Right: negCol.Signature},
			Key:       arranged.Key,
			Value:     arranged.Value,
		}
		flow := &Flow{Shape: ShapeJoin}
		out.Signature.FlowDesc = flow.String()
		st.emit(NewAntijoin(arranged, negCol, out, flow))
		cur = out
	}

	var ownComparisons []ast.Comparison
	atomVarSet := setOf(atom.Vars())
	for i, cmp := range cat.Comparisons {
		if st.consumedComparison[i] {
			continue
		}
		if isSubsetOf(cmp.Vars(), atomVarSet) {
			st.consumedComparison[i] = true
			ownComparisons = append(ownComparisons, cmp)
		}
	}

	return reshapeToWithComparisons(cat, cur, keyVars, valueVars, ownComparisons)
}

// synthNegationLookup builds the key-only collection a negated atom's
// antijoin filters against: the negated relation's own row stream,
// arranged by its full column list.
func synthNegationLookup(negAtom ast.Atom) *Collection {
	sigs := make([]catalog.Sig, len(negAtom.Args))
	for j := range negAtom.Args {
		sigs[j] = catalog.Sig{Polarity: catalog.Negated, ColumnIndex: j}
	}
	base := &Collection{Signature: BaseAtomSignature(negAtom.Relation), Value: sigs}
	out := &Collection{
		Signature: &CollectionSignature{Kind: SigUnary, Input: base.Signature},
		Key:       sigs,
	}
	flow := &Flow{Shape: ShapeReshape}
	out.Signature.FlowDesc = flow.String()
	return out
}

func synthSubAtomKey(cat *catalog.Catalog, subIdx int) *Collection {
	atom := cat.PositiveAtoms[subIdx]
	sigs := make([]catalog.Sig, len(atom.Args))
	for j := range atom.Args {
		sigs[j] = catalog.Sig{Polarity: catalog.Positive, BodyPos: subIdx, ColumnIndex: j}
	}
	base := &Collection{Signature: BaseAtomSignature(atom.Relation), Value: sigs}
	out := &Collection{
		Signature: &CollectionSignature{Kind: SigUnary, Input: base.Signature},
		Key:       sigs,
	}
	flow := &Flow{Shape: ShapeReshape}
	out.Signature.FlowDesc = flow.String()
	return out
}

// arrangeByVars reshapes cur into a key-value collection keyed by vars, a
// prerequisite for joining or antijoining against it.
func arrangeByVars(cat *catalog.Catalog, cur *Collection, vars []string) *Collection {
	keySigs := sigsFromCollections(cat, vars, cur)
	valueSigs := diffSigs(append(append([]catalog.Sig{}, cur.Key...), cur.Value...), keySigs)
	out := &Collection{
		Signature: &CollectionSignature{Kind: SigUnary, Input: cur.Signature},
		Key:       keySigs,
		Value:     valueSigs,
	}
	flow := buildReshapeFlow(cat, cur, out)
	out.Signature.FlowDesc = flow.String()
	return out
}

// reshapeTo applies the base filters (const-eq, var-eq) whose columns are
// present in cur, projecting cur to the caller's requested key/value shape
// (spec §4.5 leaf step 3). It adds no comparisons: synthLeaf fuses a leaf's
// own comparisons via reshapeToWithComparisons, and synthNode fuses
// straddling ones into the join.
func reshapeTo(cat *catalog.Catalog, cur *Collection, keyVars, valueVars []string) *Collection {
	return reshapeToWithComparisons(cat, cur, keyVars, valueVars, nil)
}

func reshapeToWithComparisons(cat *catalog.Catalog, cur *Collection, keyVars, valueVars []string, comparisons []ast.Comparison) *Collection {
	keySigs := sigsFromCollections(cat, keyVars, cur)
	valueSigs := sigsFromCollections(cat, valueVars, cur)

	out := &Collection{
		Signature: &CollectionSignature{Kind: SigUnary, Input: cur.Signature},
		Key:       keySigs,
		Value:     valueSigs,
	}
	flow := buildReshapeFlow(cat, cur, out)
	for _, cmp := range comparisons {
		flow.Comparisons = append(flow.Comparisons, ComparisonRef{
			Op:    cmp.Op,
			Left:  arithRefSided(cat, cur, cur, cmp.Left),
			Right: arithRefSided(cat, cur, cur, cmp.Right),
		})
	}
	out.Signature.FlowDesc = flow.String()
	return out
}

func headRowCollection(cat *catalog.Catalog) *Collection {
	n := len(cat.Rule.Head.Args)
	sigs := make([]catalog.Sig, n)
	for i := range sigs {
		sigs[i] = catalog.Sig{Polarity: catalog.Positive, BodyPos: -1, ColumnIndex: i}
	}
	return &Collection{
		Signature: &CollectionSignature{Kind: SigUnary, Base: cat.Rule.Head.Relation},
		Value:     sigs,
	}
}

// headAggKind reports the rule's head aggregation, if any — always the
// last head argument's Agg (spec §4.5's "aggregation, only in the last
// head position").
func headAggKind(cat *catalog.Catalog) ast.AggKind {
	if !cat.Rule.Head.IsAggregating() {
		return ast.NoAgg
	}
	args := cat.Rule.Head.Args
	return args[len(args)-1].Agg
}

func buildHeadFlow(cat *catalog.Catalog, root *Collection) *Flow {
	flow := &Flow{Shape: ShapeHead}
	for _, ha := range cat.Rule.Head.Args {
		flow.HeadExprs = append(flow.HeadExprs, arithRefFromArith(cat, root, ha.Expr))
	}
	return flow
}

func arithRefFromArith(cat *catalog.Catalog, root *Collection, a ast.Arith) ArithRef {
	out := ArithRef{Head: operandForTerm(cat, root, a.Head)}
	for _, link := range a.Chain {
		out.Chain = append(out.Chain, ArithLink{Op: link.Op, Factor: operandForTerm(cat, root, link.Factor)})
	}
	return out
}

func operandForTerm(cat *catalog.Catalog, col *Collection, t ast.Term) Operand {
	if t.IsConst {
		return ConstOperand(t)
	}
	if t.IsPlaceholder {
		ferrors.Invariant("head argument cannot be a placeholder")
	}
	if s, ok := findSigInCollection(cat, col, t.Var); ok {
		return operandFor(col, s)
	}
	ferrors.Invariant("head variable %q not found in synthesized plan output", t.Var)
	return Operand{}
}

// buildReshapeFlow describes a unary reshape from in to out, plus every
// const-equality and variable-equality base filter whose signatures are
// present in in (spec §4.5 leaf step 3).
func buildReshapeFlow(cat *catalog.Catalog, in, out *Collection) *Flow {
	flow := &Flow{Shape: ShapeReshape}
	for _, s := range out.Key {
		flow.OutKey = append(flow.OutKey, operandFor(in, s))
	}
	for _, s := range out.Value {
		flow.OutValue = append(flow.OutValue, operandFor(in, s))
	}
	for sig, constVal := range cat.ConstEq {
		if containsSig(in, sig) {
			flow.ConstEq = append(flow.ConstEq, ConstEqRef{Col: operandFor(in, sig), Const: constVal})
		}
	}
	for sig, target := range cat.VarEqAlias {
		if containsSig(in, sig) && containsSig(in, target) {
			flow.VarEqAlias = append(flow.VarEqAlias, AliasRef{From: operandFor(in, sig), To: operandFor(in, target)})
		}
	}
	return flow
}

// buildJoinFlow describes a binary join from left/right to out, fusing in
// the straddling comparisons (spec §4.5 step 5).
func buildJoinFlow(cat *catalog.Catalog, left, right, out *Collection, comparisons []ast.Comparison) *Flow {
	flow := &Flow{Shape: ShapeJoin}
	for _, s := range out.Key {
		flow.OutKey = append(flow.OutKey, operandForEitherSide(left, right, s))
	}
	for _, s := range out.Value {
		flow.OutValue = append(flow.OutValue, operandForEitherSide(left, right, s))
	}
	for _, cmp := range comparisons {
		flow.Comparisons = append(flow.Comparisons, ComparisonRef{
			Op:    cmp.Op,
			Left:  arithRefSided(cat, left, right, cmp.Left),
			Right: arithRefSided(cat, left, right, cmp.Right),
		})
	}
	return flow
}

func operandForEitherSide(left, right *Collection, sig catalog.Sig) Operand {
	if containsSig(left, sig) {
		return operandFor(left, sig)
	}
	if containsSig(right, sig) {
		o := operandFor(right, sig)
		o.Right = true
		return o
	}
	ferrors.Invariant("signature %v absent from both join operands", sig)
	return Operand{}
}

func arithRefSided(cat *catalog.Catalog, left, right *Collection, a ast.Arith) ArithRef {
	out := ArithRef{Head: operandForVarEitherSide(cat, left, right, a.Head)}
	for _, link := range a.Chain {
		out.Chain = append(out.Chain, ArithLink{Op: link.Op, Factor: operandForVarEitherSide(cat, left, right, link.Factor)})
	}
	return out
}

func operandForVarEitherSide(cat *catalog.Catalog, left, right *Collection, t ast.Term) Operand {
	if t.IsConst {
		return ConstOperand(t)
	}
	if s, ok := findSigInCollection(cat, left, t.Var); ok {
		return operandFor(left, s)
	}
	if s, ok := findSigInCollection(cat, right, t.Var); ok {
		o := operandFor(right, s)
		o.Right = true
		return o
	}
	ferrors.Invariant("variable %q not found on either join side", t.Var)
	return Operand{}
}
