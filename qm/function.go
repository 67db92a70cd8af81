package qm

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/types"
)

// FunctionOp tags a pure QM operator. A single Function node type
// carries the op as data rather than each
// operator getting its own Go struct: the lowerer (sqlgen) and the
// reference interpreter (refengine) both switch exhaustively on FunctionOp, which gives the same
// completeness guarantee a sealed-enum-per-operator design would,
// with far fewer node kinds to thread through hashing/serialization.
type FunctionOp int

const (
	OpEQ FunctionOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
	OpNot
	OpIn
	OpIsNull
	OpAdd
	OpSubtract
	OpMultiply
	OpTrueDivide
	OpFloorDivide
	OpNegate
	OpStringContains
	OpYearFromDate
	OpMonthFromDate
	OpDayFromDate
	OpToFirstOfMonth
	OpToFirstOfYear
	OpDateAddDays
	OpDateAddMonths
	OpDateAddYears
	OpDateDifferenceInDays
	OpDateDifferenceInMonths
	OpDateDifferenceInYears
	OpCastToInt
	OpCastToFloat
	OpMinimumOf
	OpMaximumOf
)

var functionOpNames = [...]string{
	"EQ", "NE", "LT", "LE", "GT", "GE",
	"And", "Or", "Not", "In", "IsNull",
	"Add", "Subtract", "Multiply", "TrueDivide", "FloorDivide", "Negate",
	"StringContains",
	"YearFromDate", "MonthFromDate", "DayFromDate",
	"ToFirstOfMonth", "ToFirstOfYear",
	"DateAddDays", "DateAddMonths", "DateAddYears",
	"DateDifferenceInDays", "DateDifferenceInMonths", "DateDifferenceInYears",
	"CastToInt", "CastToFloat",
	"MinimumOf", "MaximumOf",
}

func (op FunctionOp) String() string {
	if int(op) < len(functionOpNames) {
		return functionOpNames[op]
	}
	return fmt.Sprintf("FunctionOp(%d)", int(op))
}

// Function is a pure operator node over one or more series operands.
type Function struct {
	Op   FunctionOp
	Args []SeriesNode
	typ  types.Type
}

func (n *Function) Kind() NodeKind { return KindFunction }
func (n *Function) Children() []Node {
	out := make([]Node, len(n.Args))
	for i, a := range n.Args {
		out[i] = a
	}
	return out
}
func (n *Function) ElementType() types.Type { return n.typ }
func (n *Function) isSeries()               {}

// NewFunction validates arity and operand types for op and returns
// the constructed node, or a *TypeError describing the mismatch.
func NewFunction(op FunctionOp, args ...SeriesNode) (*Function, error) {
	resultType, err := validateFunction(op, args)
	if err != nil {
		return nil, err
	}
	operands := make([]Node, len(args))
	for i, a := range args {
		operands[i] = a
	}
	if err := checkOperandDomains(op.String(), operands); err != nil {
		return nil, err
	}
	return &Function{Op: op, Args: args, typ: resultType}, nil
}

func validateFunction(op FunctionOp, args []SeriesNode) (types.Type, error) {
	name := op.String()
	switch op {
	case OpEQ, OpNE:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().Equal(args[1].ElementType()) {
			return types.Type{}, newTypeError(name, fmt.Sprintf("operand types differ: %s vs %s", args[0].ElementType(), args[1].ElementType()))
		}
		return types.Bool(), nil

	case OpLT, OpLE, OpGT, OpGE:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().Equal(args[1].ElementType()) {
			return types.Type{}, newTypeError(name, fmt.Sprintf("operand types differ: %s vs %s", args[0].ElementType(), args[1].ElementType()))
		}
		if !args[0].ElementType().IsOrderable() {
			return types.Type{}, newTypeError(name, fmt.Sprintf("type %s is not orderable", args[0].ElementType()))
		}
		return types.Bool(), nil

	case OpAnd, OpOr:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if err := requireBool(name, args...); err != nil {
			return types.Type{}, err
		}
		return types.Bool(), nil

	case OpNot:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		if err := requireBool(name, args...); err != nil {
			return types.Type{}, err
		}
		return types.Bool(), nil

	case OpIn:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		setArg, ok := args[1].(*Value)
		if !ok || !setArg.IsSet() {
			return types.Type{}, newTypeError(name, "second operand must be a set of literals")
		}
		if !args[0].ElementType().Equal(setArg.ElementType()) {
			return types.Type{}, newTypeError(name, fmt.Sprintf("element type %s does not match set element type %s", args[0].ElementType(), setArg.ElementType()))
		}
		return types.Bool(), nil

	case OpIsNull:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		return types.Bool(), nil

	case OpAdd, OpSubtract, OpMultiply:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().IsNumeric() || !args[1].ElementType().IsNumeric() {
			return types.Type{}, newTypeError(name, "operands must be numeric")
		}
		if !args[0].ElementType().Equal(args[1].ElementType()) {
			return types.Type{}, newTypeError(name, fmt.Sprintf("operand types differ: %s vs %s", args[0].ElementType(), args[1].ElementType()))
		}
		return args[0].ElementType(), nil

	case OpTrueDivide:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().IsNumeric() || !args[1].ElementType().IsNumeric() {
			return types.Type{}, newTypeError(name, "operands must be numeric")
		}
		return types.Float(), nil

	case OpFloorDivide:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().IsNumeric() || !args[1].ElementType().IsNumeric() {
			return types.Type{}, newTypeError(name, "operands must be numeric")
		}
		if !args[0].ElementType().Equal(args[1].ElementType()) {
			return types.Type{}, newTypeError(name, fmt.Sprintf("operand types differ: %s vs %s", args[0].ElementType(), args[1].ElementType()))
		}
		return args[0].ElementType(), nil

	case OpNegate:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		if !args[0].ElementType().IsNumeric() {
			return types.Type{}, newTypeError(name, "operand must be numeric")
		}
		return args[0].ElementType(), nil

	case OpStringContains:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if args[0].ElementType().Kind != types.KindStr || args[1].ElementType().Kind != types.KindStr {
			return types.Type{}, newTypeError(name, "operands must be str")
		}
		return types.Bool(), nil

	case OpYearFromDate, OpMonthFromDate, OpDayFromDate:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		if err := requireDate(name, args[0]); err != nil {
			return types.Type{}, err
		}
		return types.Int(), nil

	case OpToFirstOfMonth, OpToFirstOfYear:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		if err := requireDate(name, args[0]); err != nil {
			return types.Type{}, err
		}
		return types.Date(), nil

	case OpDateAddDays, OpDateAddMonths, OpDateAddYears:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if err := requireDate(name, args[0]); err != nil {
			return types.Type{}, err
		}
		if args[1].ElementType().Kind != types.KindInt {
			return types.Type{}, newTypeError(name, "duration operand must be int")
		}
		return types.Date(), nil

	case OpDateDifferenceInDays, OpDateDifferenceInMonths, OpDateDifferenceInYears:
		if err := requireArity(name, args, 2); err != nil {
			return types.Type{}, err
		}
		if err := requireDate(name, args[0]); err != nil {
			return types.Type{}, err
		}
		if err := requireDate(name, args[1]); err != nil {
			return types.Type{}, err
		}
		return types.Int(), nil

	case OpCastToInt:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		k := args[0].ElementType().Kind
		if k != types.KindFloat && k != types.KindStr {
			return types.Type{}, newTypeError(name, "operand must be float or str")
		}
		return types.Int(), nil

	case OpCastToFloat:
		if err := requireArity(name, args, 1); err != nil {
			return types.Type{}, err
		}
		k := args[0].ElementType().Kind
		if k != types.KindInt && k != types.KindStr {
			return types.Type{}, newTypeError(name, "operand must be int or str")
		}
		return types.Float(), nil

	case OpMinimumOf, OpMaximumOf:
		// Empty variadic input is a construction error, not a null
		// result, so a caller can never silently receive a
		// type-less value.
		if len(args) == 0 {
			return types.Type{}, newTypeError(name, "requires at least one argument")
		}
		elem := args[0].ElementType()
		for _, a := range args[1:] {
			if !a.ElementType().Equal(elem) {
				return types.Type{}, newTypeError(name, fmt.Sprintf("all operands must share a type, got %s and %s", elem, a.ElementType()))
			}
		}
		if !elem.IsOrderable() {
			return types.Type{}, newTypeError(name, fmt.Sprintf("type %s is not orderable", elem))
		}
		return elem, nil

	default:
		return types.Type{}, newTypeError(name, "unknown operator")
	}
}

func requireArity(op string, args []SeriesNode, n int) error {
	if len(args) != n {
		return newTypeError(op, fmt.Sprintf("expects %d argument(s), got %d", n, len(args)))
	}
	return nil
}

func requireBool(op string, args ...SeriesNode) error {
	for _, a := range args {
		if a.ElementType().Kind != types.KindBool {
			return newTypeError(op, fmt.Sprintf("operand must be bool, got %s", a.ElementType()))
		}
	}
	return nil
}

func requireDate(op string, n SeriesNode) error {
	k := n.ElementType().Kind
	if k != types.KindDate && k != types.KindDatetime {
		return newTypeError(op, fmt.Sprintf("operand must be date, got %s", n.ElementType()))
	}
	return nil
}
