// Package builder is ehrql-go's surface API: the friendly Frame/Series
// wrappers a dataset definition is actually written against, sitting
// on top of the raw qm constructors. Every method here is a thin,
// named-method substitute for the operator overloading ehrQL's Python
// surface gets for free (Python's `__eq__`, `__add__`, etc.),
// translated into Go the way idiomatic Go libraries do it: explicit
// methods, explicit errors, no magic.
package builder

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

// Series wraps one qm.SeriesNode with the surface's fluent methods.
type Series struct {
	node qm.SeriesNode
	err  error
}

// Wrap lifts a raw qm.SeriesNode into the surface API.
func Wrap(n qm.SeriesNode) Series { return Series{node: n} }

// Node returns the underlying qm node, or the first construction
// error encountered building this series.
func (s Series) Node() (qm.SeriesNode, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.node, nil
}

func (s Series) chain(n qm.SeriesNode, err error) Series {
	if s.err != nil {
		return s
	}
	if err != nil {
		return Series{err: err}
	}
	return Series{node: n}
}

func fn2(op qm.FunctionOp, a, b Series) Series {
	if a.err != nil {
		return a
	}
	if b.err != nil {
		return b
	}
	f, err := qm.NewFunction(op, a.node, b.node)
	return a.chain(nodeOrNil(f), err)
}

func fn1(op qm.FunctionOp, a Series) Series {
	if a.err != nil {
		return a
	}
	f, err := qm.NewFunction(op, a.node)
	return a.chain(nodeOrNil(f), err)
}

func nodeOrNil(f *qm.Function) qm.SeriesNode {
	if f == nil {
		return nil
	}
	return f
}

func (s Series) Eq(other Series) Series             { return fn2(qm.OpEQ, s, other) }
func (s Series) Ne(other Series) Series             { return fn2(qm.OpNE, s, other) }
func (s Series) Lt(other Series) Series             { return fn2(qm.OpLT, s, other) }
func (s Series) Le(other Series) Series             { return fn2(qm.OpLE, s, other) }
func (s Series) Gt(other Series) Series             { return fn2(qm.OpGT, s, other) }
func (s Series) Ge(other Series) Series             { return fn2(qm.OpGE, s, other) }
func (s Series) And(other Series) Series            { return fn2(qm.OpAnd, s, other) }
func (s Series) Or(other Series) Series             { return fn2(qm.OpOr, s, other) }
func (s Series) Not() Series                        { return fn1(qm.OpNot, s) }
func (s Series) IsNull() Series                     { return fn1(qm.OpIsNull, s) }
func (s Series) Add(other Series) Series            { return fn2(qm.OpAdd, s, other) }
func (s Series) Sub(other Series) Series            { return fn2(qm.OpSubtract, s, other) }
func (s Series) Mul(other Series) Series            { return fn2(qm.OpMultiply, s, other) }
func (s Series) TrueDiv(other Series) Series        { return fn2(qm.OpTrueDivide, s, other) }
func (s Series) FloorDiv(other Series) Series        { return fn2(qm.OpFloorDivide, s, other) }
func (s Series) Negate() Series                     { return fn1(qm.OpNegate, s) }
func (s Series) Contains(substr Series) Series      { return fn2(qm.OpStringContains, s, substr) }
func (s Series) CastToInt() Series                  { return fn1(qm.OpCastToInt, s) }
func (s Series) CastToFloat() Series                { return fn1(qm.OpCastToFloat, s) }
func (s Series) YearFromDate() Series                { return fn1(qm.OpYearFromDate, s) }
func (s Series) MonthFromDate() Series                { return fn1(qm.OpMonthFromDate, s) }
func (s Series) DayFromDate() Series                  { return fn1(qm.OpDayFromDate, s) }
func (s Series) ToFirstOfMonth() Series               { return fn1(qm.OpToFirstOfMonth, s) }
func (s Series) ToFirstOfYear() Series                { return fn1(qm.OpToFirstOfYear, s) }
func (s Series) DateDifferenceInDays(other Series) Series {
	return fn2(qm.OpDateDifferenceInDays, s, other)
}
func (s Series) DateDifferenceInMonths(other Series) Series {
	return fn2(qm.OpDateDifferenceInMonths, s, other)
}
func (s Series) DateDifferenceInYears(other Series) Series {
	return fn2(qm.OpDateDifferenceInYears, s, other)
}

// In builds a membership test against a literal set.
func (s Series) In(values []any) Series {
	if s.err != nil {
		return s
	}
	set, err := qm.NewSetValue(values)
	if err != nil {
		return Series{err: err}
	}
	return fn2(qm.OpIn, s, Series{node: set})
}

// MinimumOf and MaximumOf combine one or more series into one.
func MinimumOf(args ...Series) Series { return variadic(qm.OpMinimumOf, args) }
func MaximumOf(args ...Series) Series { return variadic(qm.OpMaximumOf, args) }

func variadic(op qm.FunctionOp, args []Series) Series {
	nodes := make([]qm.SeriesNode, len(args))
	for i, a := range args {
		if a.err != nil {
			return a
		}
		nodes[i] = a.node
	}
	f, err := qm.NewFunction(op, nodes...)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: f}
}

// Scalar builds a literal single-value Series from a Go value.
func Scalar(v any) Series {
	val, err := qm.NewScalarValue(v)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: val}
}

// Duration is a calendar-unit offset applied to a date by
// Duration.AddTo, mirroring ehrQL's days()/months()/years() duration
// helpers.
type Duration struct {
	n    int
	unit durationUnit
}

type durationUnit int

const (
	unitDays durationUnit = iota
	unitMonths
	unitYears
)

func Days(n int) Duration   { return Duration{n: n, unit: unitDays} }
func Weeks(n int) Duration  { return Duration{n: n * 7, unit: unitDays} }
func Months(n int) Duration { return Duration{n: n, unit: unitMonths} }
func Years(n int) Duration  { return Duration{n: n, unit: unitYears} }

// AddTo returns date + d, applying the right DateAdd* operator for
// d's unit.
func (d Duration) AddTo(date Series) Series {
	op := qm.OpDateAddDays
	switch d.unit {
	case unitMonths:
		op = qm.OpDateAddMonths
	case unitYears:
		op = qm.OpDateAddYears
	}
	return fn2(op, date, Scalar(d.n))
}

// Branch is one (condition, value) arm of a Case expression.
type Branch struct {
	Cond  Series
	Value Series
}

// Case builds a Case expression; def is the value used when no branch
// condition matches (nil leaves the result null-typed, matching
// qm.NewCase's own default-less construction, see DESIGN.md's Open
// Question resolution).
func Case(branches []Branch, def *Series) Series {
	qmBranches := make([]qm.CaseBranch, len(branches))
	for i, b := range branches {
		if b.Cond.err != nil {
			return b.Cond
		}
		if b.Value.err != nil {
			return b.Value
		}
		qmBranches[i] = qm.CaseBranch{Condition: b.Cond.node, Value: b.Value.node}
	}
	var defNode qm.SeriesNode
	if def != nil {
		if def.err != nil {
			return *def
		}
		defNode = def.node
	}
	c, err := qm.NewCase(qmBranches, defNode)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: c}
}

// Frame wraps a qm.FrameNode with the surface's fluent methods.
type Frame struct {
	node qm.FrameNode
	err  error
}

func WrapFrame(n qm.FrameNode) Frame { return Frame{node: n} }

func (f Frame) Node() (qm.FrameNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.node, nil
}

// Table opens an event-domain frame over a registered table.
func Table(reg *schema.Registry, tableName string) Frame {
	s, err := reg.Table(tableName)
	if err != nil {
		return Frame{err: fmt.Errorf("builder: %w", err)}
	}
	t, err := qm.NewSelectTable(tableName, s)
	if err != nil {
		return Frame{err: err}
	}
	return Frame{node: t}
}

// PatientTable opens a patient-domain frame over a registered table.
func PatientTable(reg *schema.Registry, tableName string) Frame {
	s, err := reg.Table(tableName)
	if err != nil {
		return Frame{err: fmt.Errorf("builder: %w", err)}
	}
	t, err := qm.NewSelectPatientTable(tableName, s)
	if err != nil {
		return Frame{err: err}
	}
	return Frame{node: t}
}

// Column projects a named column off f as a Series of the given type.
func (f Frame) Column(name string, typ types.Type) Series {
	if f.err != nil {
		return Series{err: f.err}
	}
	c, err := qm.NewSelectColumn(f.node, name, typ)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: c}
}

// Where restricts f to rows matching cond.
func (f Frame) Where(cond Series) Frame {
	if f.err != nil {
		return f
	}
	if cond.err != nil {
		return Frame{err: cond.err}
	}
	filtered, err := qm.NewFilter(f.node, cond.node)
	if err != nil {
		return Frame{err: err}
	}
	return Frame{node: filtered}
}

// Exists reports, per patient, whether f has any row.
func (f Frame) Exists() Series {
	if f.err != nil {
		return Series{err: f.err}
	}
	a, err := qm.NewAggregateExists(f.node)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: a}
}

// Count counts f's rows per patient.
func (f Frame) Count() Series {
	if f.err != nil {
		return Series{err: f.err}
	}
	a, err := qm.NewAggregateCount(f.node)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: a}
}

// SortedFrame wraps a qm.Sort, the only frame shape a pick may start
// from.
type SortedFrame struct {
	node *qm.Sort
	err  error
}

// SortBy stacks by on top of f's existing sort chain (none, the first
// time this is called); the outermost call is the highest-priority
// key.
func (f Frame) SortBy(by Series) SortedFrame {
	if f.err != nil {
		return SortedFrame{err: f.err}
	}
	if by.err != nil {
		return SortedFrame{err: by.err}
	}
	s, err := qm.NewSort(f.node, by.node)
	if err != nil {
		return SortedFrame{err: err}
	}
	return SortedFrame{node: s}
}

func (sf SortedFrame) SortBy(by Series) SortedFrame {
	if sf.err != nil {
		return sf
	}
	if by.err != nil {
		return SortedFrame{err: by.err}
	}
	s, err := qm.NewSort(sf.node, by.node)
	if err != nil {
		return SortedFrame{err: err}
	}
	return SortedFrame{node: s}
}

// First and Last collapse the sort chain to one patient-domain frame.
func (sf SortedFrame) First() Frame { return sf.pick(qm.FIRST) }
func (sf SortedFrame) Last() Frame  { return sf.pick(qm.LAST) }

func (sf SortedFrame) pick(pos qm.PickPosition) Frame {
	if sf.err != nil {
		return Frame{err: sf.err}
	}
	p, err := qm.NewPickOneRowPerPatient(sf.node, pos)
	if err != nil {
		return Frame{err: err}
	}
	return Frame{node: p}
}

// AggregateValue produces one of the column-collapsing aggregates
// over a series already reduced to an event-domain column.
func AggregateValue(op qm.ValueAggregateOp, source Series) Series {
	if source.err != nil {
		return source
	}
	a, err := qm.NewAggregateValue(op, source.node)
	if err != nil {
		return Series{err: err}
	}
	return Series{node: a}
}
