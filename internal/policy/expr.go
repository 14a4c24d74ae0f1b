package policy

// ExprKind discriminates the Expr union of grammar:
//
//	Expr := Compare(op, Value, Value) | And([Expr]) | Or([Expr]) | Not(Expr)
type ExprKind string

const (
	ExprCompare ExprKind = "compare"
	ExprAnd     ExprKind = "and"
	ExprOr      ExprKind = "or"
	ExprNot     ExprKind = "not"
)

// CompareOp is one of the six comparison operators.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Expr is a boolean expression node. Exactly one of the field groups
// is populated, selected by Kind:
//   - ExprCompare: Op, Left, Right
//   - ExprAnd/ExprOr: Sub (any length, short-circuit evaluated)
//   - ExprNot: Sub[0]
type Expr struct {
	Kind  ExprKind
	Op    CompareOp
	Left  Value
	Right Value
	Sub   []*Expr
}

// ValueKind discriminates the Value union:
//
//	Value := Const(n) | Field(name) | Param(name) | Compute(BinOp, Value, Value)
type ValueKind string

const (
	ValueConst   ValueKind = "const"
	ValueField   ValueKind = "field"
	ValueParam   ValueKind = "param"
	ValueCompute ValueKind = "compute"
)

// BinOp is one of the arithmetic operators Compute supports.
type BinOp string

const (
	OpAdd   BinOp = "+"
	OpSub   BinOp = "-"
	OpMul   BinOp = "*"
	OpDiv   BinOp = "/"
	OpMin   BinOp = "min"
	OpMax   BinOp = "max"
	OpClamp BinOp = "clamp" // clamp(A, lo, hi): the loader builds this direct form with ClampLo/ClampHi set from clamp_lo/clamp_hi (any Value kind); Eval computes min(max(A, lo), hi).
)

// Value is a scalar expression. Exactly one field group is populated,
// selected by Kind:
//   - ValueConst: Const
//   - ValueField: Field
//   - ValueParam: Param
//   - ValueCompute: BinOp, A, B (and ClampLo/ClampHi when BinOp==clamp)
type Value struct {
	Kind  ValueKind
	Const float64
	Field string
	Param string

	BinOp BinOp
	A, B  *Value

	ClampLo, ClampHi *Value
}

// ConstValue is a convenience constructor.
func ConstValue(n float64) Value { return Value{Kind: ValueConst, Const: n} }

// FieldValue is a convenience constructor.
func FieldValue(name string) Value { return Value{Kind: ValueField, Field: name} }

// ParamValue is a convenience constructor.
func ParamValue(name string) Value { return Value{Kind: ValueParam, Param: name} }
