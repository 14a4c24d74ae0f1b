package config

import (
	"encoding/json"
	"fmt"

	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
	"github.com/simcash/simcash/internal/txn"
)

// exprDoc/valueDoc mirror policy.Expr/policy.Value's JSON shape. Only
// the fields relevant to Kind are expected to be set in the document;
// parseExpr/parseValue read the discriminator field first.
type exprDoc struct {
	Kind  string    `json:"kind"`
	Op    string    `json:"op"`
	Left  *valueDoc `json:"left"`
	Right *valueDoc `json:"right"`
	Sub   []exprDoc `json:"sub"`
}

type valueDoc struct {
	Kind    string    `json:"kind"`
	Const   float64   `json:"const"`
	Field   string    `json:"field"`
	Param   string    `json:"param"`
	BinOp   string    `json:"op"`
	A       *valueDoc `json:"a"`
	B       *valueDoc `json:"b"`
	ClampLo *valueDoc `json:"clamp_lo"`
	ClampHi *valueDoc `json:"clamp_hi"`
}

func parseExpr(raw json.RawMessage) (*policy.Expr, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing condition expression")
	}
	var doc exprDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	return doc.toExpr()
}

func (d *exprDoc) toExpr() (*policy.Expr, error) {
	switch d.Kind {
	case "compare":
		if d.Left == nil || d.Right == nil {
			return nil, fmt.Errorf("compare expression requires left and right")
		}
		left, err := d.Left.toValue()
		if err != nil {
			return nil, err
		}
		right, err := d.Right.toValue()
		if err != nil {
			return nil, err
		}
		op, err := parseCompareOp(d.Op)
		if err != nil {
			return nil, err
		}
		return &policy.Expr{Kind: policy.ExprCompare, Op: op, Left: *left, Right: *right}, nil
	case "and", "or":
		sub := make([]*policy.Expr, 0, len(d.Sub))
		for i := range d.Sub {
			child, err := d.Sub[i].toExpr()
			if err != nil {
				return nil, err
			}
			sub = append(sub, child)
		}
		kind := policy.ExprAnd
		if d.Kind == "or" {
			kind = policy.ExprOr
		}
		return &policy.Expr{Kind: kind, Sub: sub}, nil
	case "not":
		if len(d.Sub) != 1 {
			return nil, fmt.Errorf("not expression requires exactly one sub-expression")
		}
		child, err := d.Sub[0].toExpr()
		if err != nil {
			return nil, err
		}
		return &policy.Expr{Kind: policy.ExprNot, Sub: []*policy.Expr{child}}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", d.Kind)
	}
}

func (d *valueDoc) toValue() (*policy.Value, error) {
	if d == nil {
		return nil, fmt.Errorf("missing value")
	}
	switch d.Kind {
	case "const":
		v := policy.ConstValue(d.Const)
		return &v, nil
	case "field":
		if d.Field == "" {
			return nil, fmt.Errorf("field value requires a field name")
		}
		v := policy.FieldValue(d.Field)
		return &v, nil
	case "param":
		if d.Param == "" {
			return nil, fmt.Errorf("param value requires a param name")
		}
		v := policy.ParamValue(d.Param)
		return &v, nil
	case "compute":
		if d.A == nil || d.B == nil {
			return nil, fmt.Errorf("compute value requires a and b")
		}
		a, err := d.A.toValue()
		if err != nil {
			return nil, err
		}
		b, err := d.B.toValue()
		if err != nil {
			return nil, err
		}
		binOp, err := parseBinOp(d.BinOp)
		if err != nil {
			return nil, err
		}
		v := &policy.Value{Kind: policy.ValueCompute, BinOp: binOp, A: a, B: b}
		if binOp == policy.OpClamp {
			if d.ClampLo == nil || d.ClampHi == nil {
				return nil, fmt.Errorf("clamp value requires clamp_lo and clamp_hi")
			}
			lo, err := d.ClampLo.toValue()
			if err != nil {
				return nil, err
			}
			hi, err := d.ClampHi.toValue()
			if err != nil {
				return nil, err
			}
			v.ClampLo = lo
			v.ClampHi = hi
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", d.Kind)
	}
}

func parseCompareOp(s string) (policy.CompareOp, error) {
	switch policy.CompareOp(s) {
	case policy.OpEq, policy.OpNe, policy.OpLt, policy.OpLe, policy.OpGt, policy.OpGe:
		return policy.CompareOp(s), nil
	default:
		return "", fmt.Errorf("unknown comparison operator %q", s)
	}
}

func parseBinOp(s string) (policy.BinOp, error) {
	switch policy.BinOp(s) {
	case policy.OpAdd, policy.OpSub, policy.OpMul, policy.OpDiv, policy.OpMin, policy.OpMax, policy.OpClamp:
		return policy.BinOp(s), nil
	default:
		return "", fmt.Errorf("unknown arithmetic operator %q", s)
	}
}

func parseBand(s string) (txn.PriorityBand, error) {
	switch s {
	case "Low":
		return txn.BandLow, nil
	case "Normal":
		return txn.BandNormal, nil
	case "Urgent":
		return txn.BandUrgent, nil
	default:
		return 0, fmt.Errorf("unknown priority band %q", s)
	}
}

func moneyOf(cents int64) money.Cents { return money.Cents(cents) }
