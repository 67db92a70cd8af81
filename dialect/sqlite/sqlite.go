// Package sqlite implements dialect.Dialect over modernc.org/sqlite,
// grounded on sqldef's adapter/sqlite3 (now swapped from mattn's cgo
// driver to the pure-Go one, see DESIGN.md). Staging tables here are
// SQLite TEMP tables under their plain name, so they are visible only
// on the connection that created them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/opensafely-core/ehrql-go/dialect"
)

type Dialect struct{}

func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() string { return "sqlite" }

func (d *Dialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connecting: %w", err)
	}
	return db, nil
}

func (d *Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) CreateTempTable(name string, columns []dialect.ColumnDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TABLE %s (\n", d.StagingTableRef(name))
	for i, c := range columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "  %s %s", d.QuoteIdent(c.Name), d.SQLType(c.Kind))
	}
	b.WriteString("\n)")
	return b.String()
}

func (d *Dialect) DropTempTable(name string) string {
	return fmt.Sprintf("DROP TABLE %s", d.StagingTableRef(name))
}

func (d *Dialect) StagingTableRef(name string) string {
	return d.QuoteIdent(name)
}

// DateLiteral relies on SQLite's own ISO-8601 string storage for
// date/datetime columns; no CAST wrapper is needed, unlike MSSQL.
func (d *Dialect) DateLiteral(isoDate string, isDatetime bool) string {
	return fmt.Sprintf("'%s'", isoDate)
}

// FloorDivideExpr casts the numerator to REAL, divides by a
// NULLIF-guarded denominator, floors the quotient and casts it back
// to INTEGER. SQLite's integer "/" truncates toward zero, which
// differs from flooring when the quotient is negative; FLOOR keeps
// the two dialects' semantics aligned.
func (d *Dialect) FloorDivideExpr(numerator, denominator string) string {
	return fmt.Sprintf("CAST(FLOOR(CAST(%s AS REAL) / NULLIF(%s, 0)) AS INTEGER)", numerator, denominator)
}

// MeanAggExpr: SQLite's AVG() already returns a float for integer
// columns, so no cast wrapper is required, unlike MSSQL.
func (d *Dialect) MeanAggExpr(column string) string {
	return fmt.Sprintf("AVG(%s)", column)
}

func (d *Dialect) SQLType(kind dialect.ColumnKind) string {
	switch kind {
	case dialect.ColBool:
		return "INTEGER"
	case dialect.ColInt:
		return "INTEGER"
	case dialect.ColFloat:
		return "REAL"
	case dialect.ColStr, dialect.ColCode, dialect.ColDate, dialect.ColDatetime:
		return "TEXT"
	default:
		return "TEXT"
	}
}
