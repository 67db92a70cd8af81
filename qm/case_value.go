package qm

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/types"
)

// CaseBranch is one (condition, value) pair of a Case expression.
type CaseBranch struct {
	Condition SeriesNode
	Value     SeriesNode
}

// Case evaluates Cases in insertion order; the first branch whose
// Condition is true wins, and Default (possibly nil, meaning
// null-typed) is returned otherwise.
type Case struct {
	Cases   []CaseBranch
	Default SeriesNode
	typ     types.Type
}

// NewCase validates that every branch condition is bool and every
// branch value (and Default, if present) shares a common type.
func NewCase(cases []CaseBranch, def SeriesNode) (*Case, error) {
	if len(cases) == 0 {
		return nil, newTypeError("Case", "requires at least one branch")
	}
	var typ types.Type
	for i, c := range cases {
		if c.Condition.ElementType().Kind != types.KindBool {
			return nil, newTypeError("Case", fmt.Sprintf("branch %d condition must be bool, got %s", i, c.Condition.ElementType()))
		}
		if i == 0 {
			typ = c.Value.ElementType()
		} else if !c.Value.ElementType().Equal(typ) {
			return nil, newTypeError("Case", fmt.Sprintf("branch %d value type %s does not match branch 0 type %s", i, c.Value.ElementType(), typ))
		}
	}
	if def != nil && !def.ElementType().Equal(typ) {
		return nil, newTypeError("Case", fmt.Sprintf("default type %s does not match branch type %s", def.ElementType(), typ))
	}
	seen := map[string]bool{}
	for _, c := range cases {
		h := Hash(c.Condition)
		if seen[h] {
			return nil, newTypeError("Case", "duplicate condition in case branches")
		}
		seen[h] = true
	}
	operands := make([]Node, 0, len(cases)*2+1)
	for _, c := range cases {
		operands = append(operands, c.Condition, c.Value)
	}
	if def != nil {
		operands = append(operands, def)
	}
	if err := checkOperandDomains("Case", operands); err != nil {
		return nil, err
	}
	return &Case{Cases: cases, Default: def, typ: typ}, nil
}

func (n *Case) Kind() NodeKind { return KindCase }
func (n *Case) Children() []Node {
	out := make([]Node, 0, len(n.Cases)*2+1)
	for _, c := range n.Cases {
		out = append(out, c.Condition, c.Value)
	}
	if n.Default != nil {
		out = append(out, n.Default)
	}
	return out
}
func (n *Case) ElementType() types.Type { return n.typ }
func (n *Case) isSeries()               {}

// Value is a literal: either a single scalar or a frozen set of
// literals. The zero value's Set is nil, meaning Scalar is in effect.
type Value struct {
	Scalar any
	Set    []any
	typ    types.Type
}

func NewScalarValue(v any) (*Value, error) {
	spec, err := types.GetTypeSpec(v)
	if err != nil {
		return nil, newTypeError("Value", err.Error())
	}
	prim, ok := spec.(types.PrimitiveSpec)
	if !ok {
		return nil, newTypeError("Value", "scalar value must be a primitive literal")
	}
	return &Value{Scalar: v, typ: prim.Type}, nil
}

func NewSetValue(values []any) (*Value, error) {
	spec, err := types.GetTypeSpec(values)
	if err != nil {
		return nil, newTypeError("Value", err.Error())
	}
	setSpec, ok := spec.(types.SetSpec)
	if !ok {
		return nil, newTypeError("Value", "expected a set of literals")
	}
	elemSpec, ok := setSpec.Elem.(types.PrimitiveSpec)
	if !ok {
		return nil, newTypeError("Value", "set elements must be primitive literals")
	}
	return &Value{Set: values, typ: elemSpec.Type}, nil
}

func (n *Value) Kind() NodeKind          { return KindValue }
func (n *Value) Children() []Node        { return nil }
func (n *Value) ElementType() types.Type { return n.typ }
func (n *Value) isSeries()               {}
func (n *Value) IsSet() bool             { return n.Set != nil }
