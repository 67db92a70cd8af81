package qm

import (
	"github.com/opensafely-core/ehrql-go/types"
)

// SelectColumn projects one column from a frame; its domain is the
// source frame's domain.
type SelectColumn struct {
	Source FrameNode
	Name   string
	typ    types.Type
}

func NewSelectColumn(source FrameNode, name string, colType types.Type) (*SelectColumn, error) {
	return &SelectColumn{Source: source, Name: name, typ: colType}, nil
}

func (n *SelectColumn) Kind() NodeKind          { return KindSelectColumn }
func (n *SelectColumn) Children() []Node        { return []Node{n.Source} }
func (n *SelectColumn) ElementType() types.Type { return n.typ }
func (n *SelectColumn) isSeries()               {}

// AggregateExists is AggregateByPatient.Exists: true iff source has
// at least one row for the patient.
type AggregateExists struct {
	Source FrameNode
}

func NewAggregateExists(source FrameNode) (*AggregateExists, error) {
	return &AggregateExists{Source: source}, nil
}

func (n *AggregateExists) Kind() NodeKind          { return KindAggregateExists }
func (n *AggregateExists) Children() []Node        { return []Node{n.Source} }
func (n *AggregateExists) ElementType() types.Type { return types.Bool() }
func (n *AggregateExists) isSeries()               {}

// AggregateCount is AggregateByPatient.Count: the number of rows in
// source per patient (0 if none).
type AggregateCount struct {
	Source FrameNode
}

func NewAggregateCount(source FrameNode) (*AggregateCount, error) {
	return &AggregateCount{Source: source}, nil
}

func (n *AggregateCount) Kind() NodeKind          { return KindAggregateCount }
func (n *AggregateCount) Children() []Node        { return []Node{n.Source} }
func (n *AggregateCount) ElementType() types.Type { return types.Int() }
func (n *AggregateCount) isSeries()               {}

// ValueAggregateOp is one of the column-collapsing aggregations.
type ValueAggregateOp int

const (
	AggMin ValueAggregateOp = iota
	AggMax
	AggSum
	AggMean
	AggCombineAsSet
)

func (op ValueAggregateOp) String() string {
	names := [...]string{"Min", "Max", "Sum", "Mean", "CombineAsSet"}
	if int(op) < len(names) {
		return names[op]
	}
	return "ValueAggregateOp(?)"
}

// AggregateValue is AggregateByPatient.{Min,Max,Sum,Mean,CombineAsSet}:
// collapses the event-domain Source series to one value per patient.
type AggregateValue struct {
	Op     ValueAggregateOp
	Source SeriesNode
	typ    types.Type
}

func NewAggregateValue(op ValueAggregateOp, source SeriesNode) (*AggregateValue, error) {
	elem := source.ElementType()
	var result types.Type
	switch op {
	case AggMin, AggMax:
		result = elem
	case AggSum:
		if !elem.IsNumeric() {
			return nil, newTypeError("AggregateSum", "operand must be numeric")
		}
		result = elem
	case AggMean:
		if !elem.IsNumeric() {
			return nil, newTypeError("AggregateMean", "operand must be numeric")
		}
		// Mean always returns float,
		// regardless of dialect integer-averaging quirks.
		result = types.Float()
	case AggCombineAsSet:
		result = elem
	default:
		return nil, newTypeError("AggregateValue", "unknown aggregate op")
	}
	return &AggregateValue{Op: op, Source: source, typ: result}, nil
}

func (n *AggregateValue) Kind() NodeKind          { return KindAggregateValue }
func (n *AggregateValue) Children() []Node        { return []Node{n.Source} }
func (n *AggregateValue) ElementType() types.Type { return n.typ }
func (n *AggregateValue) isSeries()               {}
