package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseLeaf(id string) Node {
	return Node{ID: id, IsAction: true, Action: ActionRelease}
}

func holdLeaf(id string) Node {
	return Node{ID: id, IsAction: true, Action: ActionHold}
}

func TestTree_Validate_RejectsActionOutsideAlphabet(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{ID: "n0", IsAction: true, Action: ActionPostCollateral},
		},
	}
	err := tree.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestTree_Validate_RejectsUndefinedParam(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{
				ID:        "n0",
				Cond:      &Expr{Kind: ExprCompare, Op: OpGt, Left: FieldValue("tx_amount"), Right: ParamValue("threshold")},
				TrueNext:  1,
				FalseNext: 2,
			},
			releaseLeaf("n1"),
			holdLeaf("n2"),
		},
	}
	err := tree.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined parameter")
}

func TestTree_Validate_RejectsCycle(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{ID: "n0", Cond: &Expr{Kind: ExprCompare, Op: OpGt, Left: ConstValue(1), Right: ConstValue(0)}, TrueNext: 1, FalseNext: 0},
			releaseLeaf("n1"),
		},
	}
	err := tree.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTree_Validate_RejectsExcessiveDepth(t *testing.T) {
	var nodes []Node
	n := 20
	for i := 0; i < n; i++ {
		nodes = append(nodes, Node{
			ID:        idOf(i),
			Cond:      &Expr{Kind: ExprCompare, Op: OpGt, Left: ConstValue(1), Right: ConstValue(0)},
			TrueNext:  i + 1,
			FalseNext: i + 1,
		})
	}
	nodes = append(nodes, releaseLeaf(idOf(n)))

	tree := &Tree{Kind: PaymentTree, Root: 0, Nodes: nodes, MaxDepth: 15}
	err := tree.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func idOf(i int) string {
	return "n" + string(rune('a'+i))
}

func TestTree_Validate_OK(t *testing.T) {
	tree := &Tree{
		Kind:   PaymentTree,
		Root:   0,
		Params: map[string]float64{"threshold": 10000},
		Nodes: []Node{
			{
				ID:        "n0",
				Cond:      &Expr{Kind: ExprCompare, Op: OpGt, Left: FieldValue("tx_amount"), Right: ParamValue("threshold")},
				TrueNext:  1,
				FalseNext: 2,
			},
			holdLeaf("n1"),
			releaseLeaf("n2"),
		},
	}
	assert.NoError(t, tree.Validate())
}

func TestEval_SimpleCompareRoutesCorrectly(t *testing.T) {
	tree := &Tree{
		Kind:   PaymentTree,
		Root:   0,
		Params: map[string]float64{"threshold": 10000},
		Nodes: []Node{
			{
				ID:        "n0",
				Cond:      &Expr{Kind: ExprCompare, Op: OpGt, Left: FieldValue("tx_amount"), Right: ParamValue("threshold")},
				TrueNext:  1,
				FalseNext: 2,
			},
			holdLeaf("n1"),
			releaseLeaf("n2"),
		},
	}
	require.NoError(t, tree.Validate())

	big, err := Eval(tree, "tx1", "A", Context{"tx_amount": 50000})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, big.Tag)

	small, err := Eval(tree, "tx2", "A", Context{"tx_amount": 100})
	require.NoError(t, err)
	assert.Equal(t, ActionRelease, small.Tag)
}

func TestEval_AndOrNotShortCircuit(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{
				ID: "n0",
				Cond: &Expr{Kind: ExprAnd, Sub: []*Expr{
					{Kind: ExprCompare, Op: OpGe, Left: FieldValue("balance"), Right: ConstValue(0)},
					{Kind: ExprNot, Sub: []*Expr{
						{Kind: ExprCompare, Op: OpLt, Left: FieldValue("balance"), Right: ConstValue(0)},
					}},
				}},
				TrueNext:  1,
				FalseNext: 2,
			},
			releaseLeaf("n1"),
			holdLeaf("n2"),
		},
	}
	require.NoError(t, tree.Validate())

	result, err := Eval(tree, "tx1", "A", Context{"balance": 100})
	require.NoError(t, err)
	assert.Equal(t, ActionRelease, result.Tag)
}

func TestEval_MissingFieldFallsBackWithError(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{
				ID:        "n0",
				Cond:      &Expr{Kind: ExprCompare, Op: OpGt, Left: FieldValue("nonexistent_field"), Right: ConstValue(0)},
				TrueNext:  1,
				FalseNext: 1,
			},
			holdLeaf("n1"),
		},
	}
	require.NoError(t, tree.Validate())

	_, err := Eval(tree, "tx1", "A", Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present in evaluation context")
}

func TestEval_DivisionByZero_ErrorPolicy(t *testing.T) {
	tree := &Tree{
		Kind: BankTree,
		Root: 0,
		Div0: Div0Error,
		Nodes: []Node{
			{
				ID: "n0",
				Cond: &Expr{Kind: ExprCompare, Op: OpGt, Left: computeDiv(FieldValue("numerator"), FieldValue("denominator")), Right: ConstValue(0)},
				TrueNext:  1,
				FalseNext: 1,
			},
			{ID: "n1", IsAction: true, Action: ActionNoAction},
		},
	}
	require.NoError(t, tree.Validate())

	_, err := Eval(tree, "", "A", Context{"numerator": 5, "denominator": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestEval_DivisionByZero_ZeroPolicy(t *testing.T) {
	tree := &Tree{
		Kind: BankTree,
		Root: 0,
		Div0: Div0Zero,
		Nodes: []Node{
			{
				ID: "n0",
				Cond: &Expr{Kind: ExprCompare, Op: OpEq, Left: computeDiv(FieldValue("numerator"), FieldValue("denominator")), Right: ConstValue(0)},
				TrueNext:  1,
				FalseNext: 1,
			},
			{ID: "n1", IsAction: true, Action: ActionNoAction},
		},
	}
	require.NoError(t, tree.Validate())

	result, err := Eval(tree, "", "A", Context{"numerator": 5, "denominator": 0})
	require.NoError(t, err)
	assert.Equal(t, ActionNoAction, result.Tag)
}

func computeDiv(a, b Value) Value {
	return Value{Kind: ValueCompute, BinOp: OpDiv, A: &a, B: &b}
}

func TestEval_EpsilonToleranceOnEquality(t *testing.T) {
	tree := &Tree{
		Kind: PaymentTree,
		Root: 0,
		Nodes: []Node{
			{
				ID:        "n0",
				Cond:      &Expr{Kind: ExprCompare, Op: OpEq, Left: FieldValue("v"), Right: ConstValue(1.0)},
				TrueNext:  1,
				FalseNext: 2,
			},
			releaseLeaf("n1"),
			holdLeaf("n2"),
		},
	}
	require.NoError(t, tree.Validate())

	result, err := Eval(tree, "tx1", "A", Context{"v": 1.0 + 1e-12})
	require.NoError(t, err)
	assert.Equal(t, ActionRelease, result.Tag, "values within epsilon must compare equal")
}

func TestEval_ActionParamsResolveConstsParamsAndCompute(t *testing.T) {
	half := computeDiv(FieldValue("tx_amount"), ConstValue(2))
	tree := &Tree{
		Kind:   PaymentTree,
		Root:   0,
		Params: map[string]float64{"min_split": 100},
		Nodes: []Node{
			{
				ID:     "n0",
				IsAction: true,
				Action: ActionSplit,
				Params: map[string]Value{
					"part_amount": half,
					"min_split":   ParamValue("min_split"),
				},
			},
		},
	}
	require.NoError(t, tree.Validate())

	result, err := Eval(tree, "tx1", "A", Context{"tx_amount": 500})
	require.NoError(t, err)
	assert.Equal(t, ActionSplit, result.Tag)
	assert.Equal(t, 250.0, result.Params["part_amount"])
	assert.Equal(t, 100.0, result.Params["min_split"])
}
