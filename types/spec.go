package types

import (
	"fmt"
	"strings"
)

// Spec is a type specification: either a concrete primitive, a
// parametric container (Series, Set, Mapping), a type variable that
// binds on first match, or the universal Any used only as a matcher
// wildcard. Operator signatures are expressed in terms of Spec so a
// single signature like "Series[T], Value[T] -> Series[T]" can be
// checked against concrete call-site argument types.
type Spec interface {
	specString() string
}

type PrimitiveSpec struct{ Type Type }

func (s PrimitiveSpec) specString() string { return s.Type.String() }

// SeriesSpec is an event- or patient-domain series of Elem.
type SeriesSpec struct{ Elem Spec }

func (s SeriesSpec) specString() string { return "Series[" + SpecString(s.Elem) + "]" }

// ValueSpec is a single static (non-series) literal value of Elem.
type ValueSpec struct{ Elem Spec }

func (s ValueSpec) specString() string { return "Value[" + SpecString(s.Elem) + "]" }

// SetSpec is a frozen set of Elem, as used by In/NotIn operands.
type SetSpec struct{ Elem Spec }

func (s SetSpec) specString() string { return "Set[" + SpecString(s.Elem) + "]" }

// MappingSpec is an ordered key->value mapping, as used by Case.
type MappingSpec struct{ Key, Value Spec }

func (s MappingSpec) specString() string {
	return "Mapping[" + SpecString(s.Key) + ", " + SpecString(s.Value) + "]"
}

// VarSpec is a type variable. The same name occurring more than once
// in a signature must bind to the same concrete Spec.
type VarSpec struct{ Name string }

func (s VarSpec) specString() string { return s.Name }

// AnySpec matches any candidate without binding anything. It is used
// internally by the lattice top and never appears in a public
// operator signature.
type AnySpec struct{}

func (s AnySpec) specString() string { return "Any" }

func SpecString(s Spec) string {
	if s == nil {
		return "<nil>"
	}
	return s.specString()
}

// Bindings records type-variable assignments accumulated while
// matching a call's arguments against its signature.
type Bindings map[string]Spec

// Match checks candidate against target, binding any VarSpec in
// target on first encounter and requiring consistency with bindings
// already made (possibly by earlier arguments of the same call). It
// returns an error describing the mismatch on failure.
func Match(candidate, target Spec, bindings Bindings) error {
	switch t := target.(type) {
	case AnySpec:
		return nil

	case VarSpec:
		if bound, ok := bindings[t.Name]; ok {
			if !specsEqual(bound, candidate) {
				return fmt.Errorf(
					"types: type variable %s bound to %s, cannot also match %s",
					t.Name, SpecString(bound), SpecString(candidate),
				)
			}
			return nil
		}
		bindings[t.Name] = candidate
		return nil

	case PrimitiveSpec:
		c, ok := candidate.(PrimitiveSpec)
		if !ok || !c.Type.Equal(t.Type) {
			return mismatch(candidate, target)
		}
		return nil

	case SeriesSpec:
		c, ok := candidate.(SeriesSpec)
		if !ok {
			return mismatch(candidate, target)
		}
		return Match(c.Elem, t.Elem, bindings)

	case ValueSpec:
		c, ok := candidate.(ValueSpec)
		if !ok {
			return mismatch(candidate, target)
		}
		return Match(c.Elem, t.Elem, bindings)

	case SetSpec:
		c, ok := candidate.(SetSpec)
		if !ok {
			return mismatch(candidate, target)
		}
		return Match(c.Elem, t.Elem, bindings)

	case MappingSpec:
		c, ok := candidate.(MappingSpec)
		if !ok {
			return mismatch(candidate, target)
		}
		if err := Match(c.Key, t.Key, bindings); err != nil {
			return err
		}
		return Match(c.Value, t.Value, bindings)

	default:
		return fmt.Errorf("types: unhandled target spec %T", target)
	}
}

func specsEqual(a, b Spec) bool {
	err := Match(b, a, Bindings{})
	return err == nil && !containsVar(a)
}

func containsVar(s Spec) bool {
	switch v := s.(type) {
	case VarSpec:
		return true
	case SeriesSpec:
		return containsVar(v.Elem)
	case ValueSpec:
		return containsVar(v.Elem)
	case SetSpec:
		return containsVar(v.Elem)
	case MappingSpec:
		return containsVar(v.Key) || containsVar(v.Value)
	default:
		return false
	}
}

func mismatch(candidate, target Spec) error {
	return fmt.Errorf("types: expected %s, got %s", SpecString(target), SpecString(candidate))
}

// ResolveVars substitutes bound type variables into a return-type
// spec, e.g. turning "Series[T]" into "Series[int]" once T has bound
// to int while matching the arguments.
func ResolveVars(s Spec, bindings Bindings) (Spec, error) {
	switch v := s.(type) {
	case VarSpec:
		bound, ok := bindings[v.Name]
		if !ok {
			return nil, fmt.Errorf("types: unbound type variable %s", v.Name)
		}
		return bound, nil
	case SeriesSpec:
		elem, err := ResolveVars(v.Elem, bindings)
		if err != nil {
			return nil, err
		}
		return SeriesSpec{Elem: elem}, nil
	case ValueSpec:
		elem, err := ResolveVars(v.Elem, bindings)
		if err != nil {
			return nil, err
		}
		return ValueSpec{Elem: elem}, nil
	case SetSpec:
		elem, err := ResolveVars(v.Elem, bindings)
		if err != nil {
			return nil, err
		}
		return SetSpec{Elem: elem}, nil
	case MappingSpec:
		key, err := ResolveVars(v.Key, bindings)
		if err != nil {
			return nil, err
		}
		val, err := ResolveVars(v.Value, bindings)
		if err != nil {
			return nil, err
		}
		return MappingSpec{Key: key, Value: val}, nil
	default:
		return s, nil
	}
}

// GetTypeSpec derives the runtime Spec of a Go value used as a QM
// literal. Heterogeneous slices/maps (elements whose specs differ)
// are rejected, matching the source behaviour that a Set or Mapping
// type parameter must be uniform.
func GetTypeSpec(value any) (Spec, error) {
	switch v := value.(type) {
	case bool:
		return PrimitiveSpec{Type: Bool()}, nil
	case int, int32, int64:
		return PrimitiveSpec{Type: Int()}, nil
	case float32, float64:
		return PrimitiveSpec{Type: Float()}, nil
	case string:
		return PrimitiveSpec{Type: Str()}, nil
	case CodedValue:
		return PrimitiveSpec{Type: Code(v.System)}, nil
	case DateValue:
		return PrimitiveSpec{Type: Date()}, nil
	case []any:
		return setSpecOf(v)
	default:
		return nil, fmt.Errorf("types: cannot derive type spec for %T", value)
	}
}

func setSpecOf(values []any) (Spec, error) {
	if len(values) == 0 {
		return SetSpec{Elem: AnySpec{}}, nil
	}
	var elem Spec
	var kinds []string
	for _, v := range values {
		s, err := GetTypeSpec(v)
		if err != nil {
			return nil, err
		}
		if elem == nil {
			elem = s
		} else if !specsEqual(elem, s) {
			kinds = append(kinds, SpecString(s))
			return nil, fmt.Errorf(
				"types: heterogeneous set: %s mixed with %s",
				SpecString(elem), strings.Join(kinds, ", "),
			)
		}
	}
	return SetSpec{Elem: elem}, nil
}

// CodedValue is a validated clinical code literal.
type CodedValue struct {
	System CodeSystem
	Value  string
}

// DateValue is a calendar date literal, kept distinct from time.Time
// so date-only arithmetic never has to worry about a time component.
type DateValue struct {
	Year, Month, Day int
}
