package refengine

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/types"
)

// EvalSeries evaluates n against row, which must belong to n's domain
// (a patient-domain row for patient-domain series, an event-domain row
// drawn from n's own underlying frame otherwise). Returns a Go nil for
// SQL NULL.
func EvalSeries(n qm.SeriesNode, row Row, db *Database) (any, error) {
	switch v := n.(type) {
	case *qm.SelectColumn:
		return row.Cols[v.Name], nil

	case *qm.Value:
		if v.IsSet() {
			return v.Set, nil
		}
		return v.Scalar, nil

	case *qm.AggregateExists:
		rows, err := EvalFrame(v.Source, db)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.PatientID == row.PatientID {
				return true, nil
			}
		}
		return false, nil

	case *qm.AggregateCount:
		rows, err := EvalFrame(v.Source, db)
		if err != nil {
			return nil, err
		}
		var n int64
		for _, r := range rows {
			if r.PatientID == row.PatientID {
				n++
			}
		}
		return n, nil

	case *qm.AggregateValue:
		return evalAggregateValue(v, row, db)

	case *qm.Function:
		return evalFunction(v, row, db)

	case *qm.Case:
		return evalCase(v, row, db)

	default:
		return nil, fmt.Errorf("refengine: unhandled series kind %T", n)
	}
}

// underlyingFrame locates the frame an event-domain series' columns
// are drawn from, mirroring sqlgen.underlyingFrame.
func underlyingFrame(n qm.Node) (qm.FrameNode, bool) {
	found := qm.Find(n, func(n qm.Node) bool {
		_, ok := n.(*qm.SelectColumn)
		return ok
	})
	if len(found) == 0 {
		return nil, false
	}
	return found[0].(*qm.SelectColumn).Source, true
}

func evalAggregateValue(v *qm.AggregateValue, row Row, db *Database) (any, error) {
	frame, ok := underlyingFrame(v.Source)
	if !ok {
		return nil, fmt.Errorf("refengine: AggregateValue operand has no underlying table column")
	}
	rows, err := EvalFrame(frame, db)
	if err != nil {
		return nil, err
	}
	var values []any
	for _, r := range rows {
		if r.PatientID != row.PatientID {
			continue
		}
		val, err := EvalSeries(v.Source, r, db)
		if err != nil {
			return nil, err
		}
		if val != nil {
			values = append(values, val)
		}
	}
	if len(values) == 0 {
		if v.Op == qm.AggCombineAsSet {
			return []any{}, nil
		}
		return nil, nil
	}
	switch v.Op {
	case qm.AggMin:
		return reduceOrdered(values, func(cmp int) bool { return cmp < 0 }), nil
	case qm.AggMax:
		return reduceOrdered(values, func(cmp int) bool { return cmp > 0 }), nil
	case qm.AggSum:
		return sumValues(values), nil
	case qm.AggMean:
		return sumFloat(values) / float64(len(values)), nil
	case qm.AggCombineAsSet:
		return values, nil
	default:
		return nil, fmt.Errorf("refengine: unhandled aggregate op %s", v.Op)
	}
}

func reduceOrdered(values []any, want func(cmp int) bool) any {
	best := values[0]
	for _, v := range values[1:] {
		if want(compareValues(v, best)) {
			best = v
		}
	}
	return best
}

func sumValues(values []any) any {
	if _, ok := values[0].(float64); ok {
		return sumFloat(values)
	}
	var total int64
	for _, v := range values {
		total += toInt64(v)
	}
	return total
}

func sumFloat(values []any) float64 {
	var total float64
	for _, v := range values {
		total += toFloat64(v)
	}
	return total
}

func evalCase(v *qm.Case, row Row, db *Database) (any, error) {
	for _, branch := range v.Cases {
		cond, err := EvalSeries(branch.Condition, row, db)
		if err != nil {
			return nil, err
		}
		if b, ok := cond.(bool); ok && b {
			return EvalSeries(branch.Value, row, db)
		}
	}
	if v.Default == nil {
		return nil, nil
	}
	return EvalSeries(v.Default, row, db)
}

func evalFunction(v *qm.Function, row Row, db *Database) (any, error) {
	args := make([]any, len(v.Args))
	for i, a := range v.Args {
		val, err := EvalSeries(a, row, db)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}

	// IsNull never yields null; And, Or and Not below apply their own
	// rules to null operands.
	if v.Op == qm.OpIsNull {
		return args[0] == nil, nil
	}

	switch v.Op {
	case qm.OpAnd:
		return evalAnd(args[0], args[1]), nil
	case qm.OpOr:
		return evalOr(args[0], args[1]), nil
	case qm.OpNot:
		if args[0] == nil {
			return nil, nil
		}
		return !args[0].(bool), nil
	}

	// Every remaining operator propagates null: any null operand makes
	// the whole expression null.
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}

	switch v.Op {
	case qm.OpEQ:
		return compareValues(args[0], args[1]) == 0, nil
	case qm.OpNE:
		return compareValues(args[0], args[1]) != 0, nil
	case qm.OpLT:
		return compareValues(args[0], args[1]) < 0, nil
	case qm.OpLE:
		return compareValues(args[0], args[1]) <= 0, nil
	case qm.OpGT:
		return compareValues(args[0], args[1]) > 0, nil
	case qm.OpGE:
		return compareValues(args[0], args[1]) >= 0, nil

	case qm.OpIn:
		set, _ := args[1].([]any)
		for _, s := range set {
			if compareValues(args[0], s) == 0 {
				return true, nil
			}
		}
		return false, nil

	case qm.OpAdd:
		return arith(args[0], args[1], func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }), nil
	case qm.OpSubtract:
		return arith(args[0], args[1], func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }), nil
	case qm.OpMultiply:
		return arith(args[0], args[1], func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }), nil
	case qm.OpTrueDivide:
		d := toFloat64(args[1])
		if d == 0 {
			return nil, nil
		}
		return toFloat64(args[0]) / d, nil
	case qm.OpFloorDivide:
		return floorDivide(args[0], args[1]), nil
	case qm.OpNegate:
		if f, ok := args[0].(float64); ok {
			return -f, nil
		}
		return -toInt64(args[0]), nil

	case qm.OpStringContains:
		return stringContains(args[0].(string), args[1].(string)), nil

	case qm.OpYearFromDate:
		return int64(mustDate(args[0]).Year), nil
	case qm.OpMonthFromDate:
		return int64(mustDate(args[0]).Month), nil
	case qm.OpDayFromDate:
		return int64(mustDate(args[0]).Day), nil
	case qm.OpToFirstOfMonth:
		d := mustDate(args[0])
		return types.NewDate(d.Year, d.Month, 1), nil
	case qm.OpToFirstOfYear:
		d := mustDate(args[0])
		return types.NewDate(d.Year, 1, 1), nil

	case qm.OpDateAddDays:
		return mustDate(args[0]).AddDays(int(toInt64(args[1]))), nil
	case qm.OpDateAddMonths:
		return mustDate(args[0]).AddMonths(int(toInt64(args[1]))), nil
	case qm.OpDateAddYears:
		return mustDate(args[0]).AddYears(int(toInt64(args[1]))), nil

	case qm.OpDateDifferenceInDays:
		return int64(types.DiffDays(mustDate(args[0]), mustDate(args[1]))), nil
	case qm.OpDateDifferenceInMonths:
		return int64(types.DiffMonths(mustDate(args[0]), mustDate(args[1]))), nil
	case qm.OpDateDifferenceInYears:
		return int64(types.DiffYears(mustDate(args[0]), mustDate(args[1]))), nil

	case qm.OpCastToInt:
		return castToInt(args[0]), nil
	case qm.OpCastToFloat:
		return castToFloat(args[0]), nil

	case qm.OpMinimumOf:
		return reduceOrdered(args, func(cmp int) bool { return cmp < 0 }), nil
	case qm.OpMaximumOf:
		return reduceOrdered(args, func(cmp int) bool { return cmp > 0 }), nil

	default:
		return nil, fmt.Errorf("refengine: unhandled function op %s", v.Op)
	}
}

// evalAnd/evalOr implement SQL three-valued logic: And(false, null) is
// false and Or(true, null) is true even though one operand is null.
func evalAnd(a, b any) any {
	if a == false || b == false {
		return false
	}
	if a == nil || b == nil {
		return nil
	}
	return true
}

func evalOr(a, b any) any {
	if a == true || b == true {
		return true
	}
	if a == nil || b == nil {
		return nil
	}
	return false
}

func arith(a, b any, intOp func(int64, int64) int64, floatOp func(float64, float64) float64) any {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok || bok {
		if !aok {
			af = toFloat64(a)
		}
		if !bok {
			bf = toFloat64(b)
		}
		return floatOp(af, bf)
	}
	return intOp(toInt64(a), toInt64(b))
}

func floorDivide(a, b any) any {
	if af, ok := a.(float64); ok {
		bf := toFloat64(b)
		if bf == 0 {
			return nil
		}
		q := af / bf
		return float64(int64(q)) - boolFloat(q < 0 && q != float64(int64(q)))
	}
	bi := toInt64(b)
	if bi == 0 {
		return nil
	}
	ai := toInt64(a)
	q := ai / bi
	if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
		q--
	}
	return q
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func stringContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return substr == ""
}

func mustDate(v any) types.DateValue {
	d, _ := v.(types.DateValue)
	return d
}

func castToInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	case string:
		var n int64
		fmt.Sscanf(val, "%d", &n)
		return n
	default:
		return 0
	}
}

func castToFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case float64:
		return val
	case string:
		var f float64
		fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
