// Package types implements ehrQL's runtime type system: the primitive
// type lattice, the Code family, and typespec construction/matching
// used by query-model node construction to validate operator arguments.
package types

import (
	"fmt"
	"regexp"
)

// Kind is a primitive type tag. bool is deliberately not a subtype of
// int: the lattice has no implicit numeric promotion from bool.
type Kind int

const (
	KindAny Kind = iota // internal top type, never surfaced to users
	KindBool
	KindInt
	KindFloat
	KindStr
	KindDate
	KindDatetime
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindDate:
		return "date"
	case KindDatetime:
		return "datetime"
	case KindCode:
		return "code"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CodeSystem identifies a clinical coding system. Each system has its
// own value format, validated by regex on construction.
type CodeSystem string

const (
	CTV3     CodeSystem = "ctv3"
	SNOMEDCT CodeSystem = "snomedct"
	ICD10    CodeSystem = "icd10"
	OPCS4    CodeSystem = "opcs4"
	BNF      CodeSystem = "bnf"
	DMD      CodeSystem = "dmd"
)

var codePatterns = map[CodeSystem]*regexp.Regexp{
	CTV3:     regexp.MustCompile(`^[A-Za-z0-9.]{1,7}$`),
	SNOMEDCT: regexp.MustCompile(`^[0-9]{6,18}$`),
	ICD10:    regexp.MustCompile(`^[A-Z][0-9]{2}(\.?[0-9A-Z]{1,3})?$`),
	OPCS4:    regexp.MustCompile(`^[A-Z][0-9]{1,3}(\.[0-9]{1,2})?$`),
	BNF:      regexp.MustCompile(`^[0-9A-Za-z]{6,15}$`),
	DMD:      regexp.MustCompile(`^[0-9]{6,18}$`),
}

// ValidateCodeValue checks value against the format expected by system.
func ValidateCodeValue(system CodeSystem, value string) error {
	pattern, ok := codePatterns[system]
	if !ok {
		return fmt.Errorf("types: unknown code system %q", system)
	}
	if !pattern.MatchString(value) {
		return fmt.Errorf("types: value %q is not a valid %s code", value, system)
	}
	return nil
}

// Type is a concrete (non-parametric, non-variable) primitive type:
// the element type carried by a Series, a Value, or a table column.
type Type struct {
	Kind   Kind
	System CodeSystem // meaningful only when Kind == KindCode
}

func Bool() Type     { return Type{Kind: KindBool} }
func Int() Type      { return Type{Kind: KindInt} }
func Float() Type    { return Type{Kind: KindFloat} }
func Str() Type      { return Type{Kind: KindStr} }
func Date() Type     { return Type{Kind: KindDate} }
func Datetime() Type { return Type{Kind: KindDatetime} }
func Code(system CodeSystem) Type {
	return Type{Kind: KindCode, System: system}
}

func (t Type) String() string {
	if t.Kind == KindCode {
		return fmt.Sprintf("code[%s]", t.System)
	}
	return t.Kind.String()
}

// Equal reports whether two concrete types are identical. Two Code
// types are equal only if they share a code system.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	if t.Kind == KindCode {
		return t.System == other.System
	}
	return true
}

// IsNumeric reports whether values of t support arithmetic.
func (t Type) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindFloat
}

// IsOrderable reports whether values of t can be used as a sort key
// directly. Booleans are not orderable without the {null,false,true}
// -> {0,1,2} mapping transform.StabilizeSort applies to bool
// tie-breakers (see its tieBreakKey). qm.NewSort accepts Bool and Code
// keys as well as the kinds listed here.
func (t Type) IsOrderable() bool {
	switch t.Kind {
	case KindInt, KindFloat, KindStr, KindDate, KindDatetime:
		return true
	default:
		return false
	}
}
