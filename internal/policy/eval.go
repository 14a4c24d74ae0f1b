package policy

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/simcash/simcash/internal/simerr"
)

// epsilon is the float equality tolerance mandates for
// Compare's == and != operators.
const epsilon = 1e-9

// ActionResult is the outcome of walking a Tree to an Action leaf: the
// action tag plus its resolved (float) parameters. Callers translate
// the tag into a domain effect (release a transaction, post collateral,
// set a bank register, ...).
type ActionResult struct {
	Tag    ActionTag
	Params map[string]float64
}

// Context is the per-evaluation field namespace. Field names are tree-
// kind specific (e.g. payment_tree sees tx_amount, agent_balance;
// bank_tree sees queue1_depth, tick) — the caller assembles exactly the
// fields its tree kind exposes, field tables.
type Context map[string]float64

// Eval walks tree from its root to an Action leaf, evaluating each
// Condition node's expression against ctx, and returns the leaf's
// resolved ActionResult. A bounded iteration count (MaxDepth+1) guards
// against any cycle validation missed; tree.Validate should already
// have rejected such trees, so hitting the bound here indicates a
// defensive catch, not an expected path.
//
// Any evaluation failure (missing field, unresolvable parameter, or a
// division by zero under Div0Error) returns a *simerr.PolicyEvaluationError.
// The caller is expected to treat that as "fail this transaction
// conservatively to Hold" rather than propagate it as fatal.
func Eval(tree *Tree, txID, agentID string, ctx Context) (ActionResult, error) {
	idx := tree.Root
	maxDepth := tree.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 15
	}

	for steps := 0; steps <= maxDepth; steps++ {
		n := tree.Nodes[idx]
		if n.IsAction {
			params := make(map[string]float64, len(n.Params))
			for name, v := range n.Params {
				val, err := evalValue(tree, txID, agentID, ctx, v)
				if err != nil {
					return ActionResult{}, err
				}
				params[name] = val
			}
			return ActionResult{Tag: n.Action, Params: params}, nil
		}

		result, err := evalExpr(tree, txID, agentID, ctx, n.Cond)
		if err != nil {
			return ActionResult{}, err
		}
		if result {
			idx = n.TrueNext
		} else {
			idx = n.FalseNext
		}
	}

	return ActionResult{}, &simerr.PolicyEvaluationError{
		TreeKind: string(tree.Kind),
		TxID:     txID,
		AgentID:  agentID,
		Reason:   "tree walk exceeded max depth without reaching an action",
	}
}

func evalExpr(tree *Tree, txID, agentID string, ctx Context, e *Expr) (bool, error) {
	switch e.Kind {
	case ExprCompare:
		left, err := evalValue(tree, txID, agentID, ctx, e.Left)
		if err != nil {
			return false, err
		}
		right, err := evalValue(tree, txID, agentID, ctx, e.Right)
		if err != nil {
			return false, err
		}
		return compare(e.Op, left, right), nil

	case ExprAnd:
		for _, s := range e.Sub {
			r, err := evalExpr(tree, txID, agentID, ctx, s)
			if err != nil {
				return false, err
			}
			if !r {
				return false, nil // short-circuit
			}
		}
		return true, nil

	case ExprOr:
		for _, s := range e.Sub {
			r, err := evalExpr(tree, txID, agentID, ctx, s)
			if err != nil {
				return false, err
			}
			if r {
				return true, nil // short-circuit
			}
		}
		return false, nil

	case ExprNot:
		r, err := evalExpr(tree, txID, agentID, ctx, e.Sub[0])
		if err != nil {
			return false, err
		}
		return !r, nil

	default:
		return false, &simerr.PolicyEvaluationError{
			TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
			Reason: fmt.Sprintf("unknown expression kind %q", e.Kind),
		}
	}
}

func compare(op CompareOp, left, right float64) bool {
	switch op {
	case OpEq:
		return floats.EqualWithinAbs(left, right, epsilon)
	case OpNe:
		return !floats.EqualWithinAbs(left, right, epsilon)
	case OpLt:
		return left < right-epsilon
	case OpLe:
		return left <= right+epsilon
	case OpGt:
		return left > right+epsilon
	case OpGe:
		return left >= right-epsilon
	default:
		return false
	}
}

func evalValue(tree *Tree, txID, agentID string, ctx Context, v Value) (float64, error) {
	switch v.Kind {
	case ValueConst:
		return v.Const, nil

	case ValueField:
		val, ok := ctx[v.Field]
		if !ok {
			return 0, &simerr.PolicyEvaluationError{
				TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
				Reason: fmt.Sprintf("field %q not present in evaluation context", v.Field),
			}
		}
		return val, nil

	case ValueParam:
		val, ok := tree.Params[v.Param]
		if !ok {
			return 0, &simerr.PolicyEvaluationError{
				TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
				Reason: fmt.Sprintf("parameter %q not declared on tree", v.Param),
			}
		}
		return val, nil

	case ValueCompute:
		a, err := evalValue(tree, txID, agentID, ctx, *v.A)
		if err != nil {
			return 0, err
		}
		b, err := evalValue(tree, txID, agentID, ctx, *v.B)
		if err != nil {
			return 0, err
		}
		switch v.BinOp {
		case OpAdd:
			return a + b, nil
		case OpSub:
			return a - b, nil
		case OpMul:
			return a * b, nil
		case OpDiv:
			if b == 0 {
				if tree.Div0 == Div0Zero {
					return 0, nil
				}
				return 0, &simerr.PolicyEvaluationError{
					TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
					Reason: "division by zero",
				}
			}
			return a / b, nil
		case OpMin:
			return minFloat(a, b), nil
		case OpMax:
			return maxFloat(a, b), nil
		case OpClamp:
			lo, err := evalValue(tree, txID, agentID, ctx, *v.ClampLo)
			if err != nil {
				return 0, err
			}
			hi, err := evalValue(tree, txID, agentID, ctx, *v.ClampHi)
			if err != nil {
				return 0, err
			}
			return minFloat(maxFloat(a, lo), hi), nil
		default:
			return 0, &simerr.PolicyEvaluationError{
				TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
				Reason: fmt.Sprintf("unknown binary operator %q", v.BinOp),
			}
		}

	default:
		return 0, &simerr.PolicyEvaluationError{
			TreeKind: string(tree.Kind), TxID: txID, AgentID: agentID,
			Reason: fmt.Sprintf("unknown value kind %q", v.Kind),
		}
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
