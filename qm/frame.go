package qm

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

// SelectTable is an event-domain source table.
type SelectTable struct {
	TableName string
	Schema    schema.TableSchema
}

func NewSelectTable(tableName string, s schema.TableSchema) (*SelectTable, error) {
	if s.PatientDomain {
		return nil, newTypeError("SelectTable", fmt.Sprintf("table %q is a patient table; use SelectPatientTable", tableName))
	}
	return &SelectTable{TableName: tableName, Schema: s}, nil
}

func (n *SelectTable) Kind() NodeKind   { return KindSelectTable }
func (n *SelectTable) Children() []Node { return nil }
func (n *SelectTable) isFrame()         {}

// SelectPatientTable is a patient-domain source table.
type SelectPatientTable struct {
	TableName string
	Schema    schema.TableSchema
}

func NewSelectPatientTable(tableName string, s schema.TableSchema) (*SelectPatientTable, error) {
	return &SelectPatientTable{TableName: tableName, Schema: s}, nil
}

func (n *SelectPatientTable) Kind() NodeKind   { return KindSelectPatientTable }
func (n *SelectPatientTable) Children() []Node { return nil }
func (n *SelectPatientTable) isFrame()         {}

// InlinePatientTable is literal patient-domain data embedded in the
// query: a finite, restartable sequence of tuples with arity matching
// the schema.
type InlinePatientTable struct {
	Rows   [][]any
	Schema schema.TableSchema
}

func NewInlinePatientTable(rows [][]any, s schema.TableSchema) (*InlinePatientTable, error) {
	for i, row := range rows {
		if len(row) != len(s.Columns) {
			return nil, newTypeError("InlinePatientTable",
				fmt.Sprintf("row %d has arity %d, schema %q has %d columns", i, len(row), s.Name, len(s.Columns)))
		}
	}
	return &InlinePatientTable{Rows: rows, Schema: s}, nil
}

func (n *InlinePatientTable) Kind() NodeKind   { return KindInlinePatientTable }
func (n *InlinePatientTable) Children() []Node { return nil }
func (n *InlinePatientTable) isFrame()         {}

// Filter restricts a frame to rows matching condition. The event
// domain is unchanged; the condition must share the source's domain
// or be patient-domain.
type Filter struct {
	Source    FrameNode
	Condition SeriesNode
}

func NewFilter(source FrameNode, condition SeriesNode) (*Filter, error) {
	if condition.ElementType().Kind != types.KindBool {
		return nil, newTypeError("Filter", fmt.Sprintf("condition must be bool, got %s", condition.ElementType()))
	}
	sourceDomain := DomainOf(source)
	condDomain := DomainOf(condition)
	if !sourceDomain.CompatibleWith(condDomain) {
		return nil, newDomainError("Filter", fmt.Sprintf("condition domain %s incompatible with source domain %s", condDomain, sourceDomain))
	}
	return &Filter{Source: source, Condition: condition}, nil
}

func (n *Filter) Kind() NodeKind   { return KindFilter }
func (n *Filter) Children() []Node { return []Node{n.Source, n.Condition} }
func (n *Filter) isFrame()         {}

// Sort stacks on top of a frame's existing sort chain. Constructing
// Sort(Sort(...)) makes the outer call the highest priority key.
type Sort struct {
	Source FrameNode
	By     SeriesNode
}

func NewSort(source FrameNode, by SeriesNode) (*Sort, error) {
	if k := by.ElementType().Kind; !by.ElementType().IsOrderable() && k != types.KindBool && k != types.KindCode {
		return nil, newTypeError("Sort", fmt.Sprintf("type %s does not support ordering", by.ElementType()))
	}
	sourceDomain := DomainOf(source)
	byDomain := DomainOf(by)
	if !sourceDomain.CompatibleWith(byDomain) {
		return nil, newDomainError("Sort", fmt.Sprintf("sort key domain %s incompatible with source domain %s", byDomain, sourceDomain))
	}
	return &Sort{Source: source, By: by}, nil
}

func (n *Sort) Kind() NodeKind   { return KindSort }
func (n *Sort) Children() []Node { return []Node{n.Source, n.By} }
func (n *Sort) isFrame()         {}

// PickPosition selects the first or last row of each patient's
// partition once ordered by the Sort chain.
type PickPosition int

const (
	FIRST PickPosition = iota
	LAST
)

func (p PickPosition) String() string {
	if p == FIRST {
		return "FIRST"
	}
	return "LAST"
}

// PickOneRowPerPatient collapses an event frame to patient domain by
// picking one row per patient from a Sort chain; its source must
// always be a Sort. SelectedColumns is populated by
// transform.AttachSelectedColumns and is empty at construction time.
type PickOneRowPerPatient struct {
	Source          *Sort
	Position        PickPosition
	SelectedColumns []*SelectColumn
}

func NewPickOneRowPerPatient(source *Sort, position PickPosition) (*PickOneRowPerPatient, error) {
	return &PickOneRowPerPatient{Source: source, Position: position}, nil
}

// WithSelectedColumns returns a new PickOneRowPerPatient with
// SelectedColumns replaced; used by transform.AttachSelectedColumns,
// which rebuilds rather than mutates (see package qm doc comment).
func (n *PickOneRowPerPatient) WithSelectedColumns(cols []*SelectColumn) *PickOneRowPerPatient {
	return &PickOneRowPerPatient{Source: n.Source, Position: n.Position, SelectedColumns: cols}
}

// WithSourceAndSelected returns a new PickOneRowPerPatient with both
// Source and SelectedColumns replaced; used by transform.StabilizeSort
// when it splices tie-breaking Sort nodes beneath the existing chain.
func (n *PickOneRowPerPatient) WithSourceAndSelected(source *Sort, cols []*SelectColumn) *PickOneRowPerPatient {
	return &PickOneRowPerPatient{Source: source, Position: n.Position, SelectedColumns: cols}
}

func (n *PickOneRowPerPatient) Kind() NodeKind { return KindPickOneRowPerPatient }
func (n *PickOneRowPerPatient) Children() []Node {
	children := []Node{n.Source}
	for _, c := range n.SelectedColumns {
		children = append(children, c)
	}
	return children
}
func (n *PickOneRowPerPatient) isFrame() {}
