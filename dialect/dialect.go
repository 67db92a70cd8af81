// Package dialect defines the contract a backend SQL engine must
// satisfy to run a lowered query plan, the generalization of sqldef's
// adapter.Database interface (one implementation per
// database/<engine>/database.go) to ehrql-go's two principal
// dialects.
package dialect

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Dialect renders dialect-specific SQL fragments and drives
// connection/statement lifecycle for one backend engine. sqlgen
// produces a database-agnostic Plan; a Dialect turns that plan into
// text this specific engine accepts, and knows how to run it.
type Dialect interface {
	// Name identifies the dialect for logging and error messages,
	// e.g. "mssql" or "sqlite".
	Name() string

	// Open returns a live connection using the dialect's driver.
	Open(ctx context.Context, dsn string) (*sql.DB, error)

	// QuoteIdent quotes an identifier (table or column name) for
	// inclusion in generated SQL.
	QuoteIdent(name string) string

	// CreateTempTable returns the DDL to create a staging table named
	// name with the given column names/SQL types, scoped per this
	// dialect's temp-table idiom (e.g. MSSQL's "#" prefix vs SQLite's
	// plain table in a throwaway database).
	CreateTempTable(name string, columns []ColumnDef) string

	// DropTempTable returns the DDL to drop a staging table.
	DropTempTable(name string) string

	// StagingTableRef returns the quoted reference to a staging table
	// previously created with CreateTempTable, for use in INSERT/SELECT
	// statements naming it (as opposed to the DDL CreateTempTable and
	// DropTempTable already emit themselves).
	StagingTableRef(name string) string

	// DateLiteral formats a date/datetime literal for inline use in
	// generated SQL.
	DateLiteral(isoDate string, isDatetime bool) string

	// FloorDivideExpr wraps a pre-rendered numerator/denominator pair
	// in this dialect's integer-floor-division idiom.
	FloorDivideExpr(numerator, denominator string) string

	// MeanAggExpr wraps a pre-rendered column expression in this
	// dialect's float-averaging idiom (some engines average integers
	// as integers unless explicitly cast).
	MeanAggExpr(column string) string

	// SQLType returns this dialect's column type name for a query
	// model element type, used when emitting CREATE TABLE DDL for
	// staging tables.
	SQLType(kind ColumnKind) string
}

// ColumnKind is the subset of types.Kind relevant to SQL type mapping
// plus the extra "datetime" distinction a types.Type.Kind already
// carries; duplicated here (rather than importing package types) so
// dialect stays independent of the query-model type system and only
// deals with the small set of SQL-visible primitive shapes.
type ColumnKind int

const (
	ColBool ColumnKind = iota
	ColInt
	ColFloat
	ColStr
	ColDate
	ColDatetime
	ColCode
)

// ColumnDef is one staging-table column: a name plus the SQL type to
// declare it with.
type ColumnDef struct {
	Name string
	Kind ColumnKind
}

// NewStagingName returns a process-unique staging table name, suffixed
// with a fresh uuid so concurrent runs against the same backend never
// collide.
func NewStagingName(label string) string {
	return label + "_" + uuid.NewString()
}
