// Package schema implements the table-schema registry: the contract
// a backend definition supplies describing its available tables and
// columns. It is a plain in-memory struct set, deliberately dumb — no
// persistence, no migration — mirroring how sqldef's own schema.Table
// is just a name plus an ordered column list, not a live external
// service. Constraints are declarative metadata consumed by
// colspec inference; they are never enforced at query time.
package schema

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/types"
)

// ConstraintKind tags one of the declarative per-column constraints.
type ConstraintKind int

const (
	NotNull ConstraintKind = iota
	Unique
	Categorical
	FirstOfMonth
	Regex
	ClosedRange
)

// Constraint is declarative metadata about a column's expected
// values. Only the fields relevant to Kind are populated.
type Constraint struct {
	Kind        ConstraintKind
	Categories  []string // Categorical
	Pattern     string   // Regex
	Min, Max    float64  // ClosedRange
	HasMin      bool
	HasMax      bool
}

// Column describes one table column: its element type plus any
// declarative constraints.
type Column struct {
	Name        string
	Type        types.Type
	Constraints []Constraint
}

func (c Column) HasConstraint(kind ConstraintKind) (Constraint, bool) {
	for _, con := range c.Constraints {
		if con.Kind == kind {
			return con, true
		}
	}
	return Constraint{}, false
}

// TableSchema is an ordered mapping from column name to Column.
type TableSchema struct {
	Name    string
	Columns []Column
	// PatientDomain is true for tables whose rows are already
	// one-per-patient (SelectPatientTable sources).
	PatientDomain bool
}

// Column looks up a column by name, returning an error shaped like a
// schema-mismatch: an unknown column name referenced by a dataset
// definition.
func (s TableSchema) Column(name string) (Column, error) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("schema: table %q has no column %q", s.Name, name)
}

func (s TableSchema) HasColumn(name string) bool {
	_, err := s.Column(name)
	return err == nil
}

// Registry is the set of named tables the compiler may select from.
// Unknown names cause a compile-time (construction-time) error.
type Registry struct {
	tables map[string]TableSchema
}

func NewRegistry() *Registry {
	return &Registry{tables: map[string]TableSchema{}}
}

func (r *Registry) Register(s TableSchema) *Registry {
	r.tables[s.Name] = s
	return r
}

func (r *Registry) Table(name string) (TableSchema, error) {
	s, ok := r.tables[name]
	if !ok {
		return TableSchema{}, fmt.Errorf("schema: unknown table %q", name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}
