// Package colspec infers the output column metadata a dataset writer
// needs for one variable: its type, whether it can be null, and any
// categories/range promoted from the source table's declared
// constraints. Grounded on sqldef's schema.Column constraint model
// (NotNull/Check), reused here as the input to inference rather than
// as DDL to regenerate.
package colspec

import (
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

// Spec is one variable's inferred output column shape.
type Spec struct {
	Name       string
	Type       types.Type
	Nullable   bool
	Categories []string // promoted from a Categorical source constraint, if any
	HasRange   bool
	Min, Max   float64 // promoted from a ClosedRange source constraint, if any
}

// Infer derives Spec for a named variable series. Nullability
// defaults to true and is narrowed to false only for node shapes that
// can structurally never produce null (counts, existence checks, and
// a handful of functions whose operands are themselves provably
// non-null); this errs toward over-marking nullable rather than
// risking a writer that rejects a legitimate null.
func Infer(name string, n qm.SeriesNode) Spec {
	return Spec{
		Name:     name,
		Type:     n.ElementType(),
		Nullable: isNullable(n),
	}
}

// InferFromColumn is Infer for a variable that is exactly a
// SelectColumn off a known table schema, additionally promoting the
// source column's Categorical/ClosedRange constraints.
func InferFromColumn(name string, sc *qm.SelectColumn, col schema.Column) Spec {
	spec := Infer(name, sc)
	if _, ok := col.HasConstraint(schema.NotNull); ok {
		spec.Nullable = false
	}
	if c, ok := col.HasConstraint(schema.Categorical); ok {
		spec.Categories = append([]string(nil), c.Categories...)
	}
	if c, ok := col.HasConstraint(schema.ClosedRange); ok && c.HasMin && c.HasMax {
		spec.HasRange = true
		spec.Min = c.Min
		spec.Max = c.Max
	}
	return spec
}

func isNullable(n qm.Node) bool {
	switch v := n.(type) {
	case *qm.AggregateCount, *qm.AggregateExists:
		return false
	case *qm.Value:
		return false
	case *qm.Function:
		switch v.Op {
		case qm.OpIsNull:
			return false
		case qm.OpAnd, qm.OpOr, qm.OpNot:
			return true
		}
		return anyNullable(v.Args)
	case *qm.Case:
		if v.Default != nil && isNullable(v.Default) {
			return true
		}
		if v.Default == nil {
			return true
		}
		for _, c := range v.Cases {
			if isNullable(c.Value) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func anyNullable(args []qm.SeriesNode) bool {
	for _, a := range args {
		if isNullable(a) {
			return true
		}
	}
	return false
}
