// Package mssql implements dialect.Dialect for SQL Server, grounded
// on sqldef's database/mssql/database.go (connection setup, temp
// table naming, quoting) now generalized from schema-diffing to
// query lowering.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/opensafely-core/ehrql-go/dialect"
)

type Dialect struct{}

func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() string { return "mssql" }

func (d *Dialect) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: opening connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql: connecting: %w", err)
	}
	return db, nil
}

// QuoteIdent brackets an identifier, doubling any embedded "]" per
// T-SQL's own escaping rule.
func (d *Dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// CreateTempTable uses the "#" local-temp-table prefix MSSQL requires.
func (d *Dialect) CreateTempTable(name string, columns []dialect.ColumnDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", d.StagingTableRef(name))
	for i, c := range columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "  %s %s NULL", d.QuoteIdent(c.Name), d.SQLType(c.Kind))
	}
	b.WriteString("\n)")
	return b.String()
}

func (d *Dialect) DropTempTable(name string) string {
	return fmt.Sprintf("DROP TABLE %s", d.StagingTableRef(name))
}

func (d *Dialect) StagingTableRef(name string) string {
	return d.QuoteIdent("#" + name)
}

func (d *Dialect) DateLiteral(isoDate string, isDatetime bool) string {
	if isDatetime {
		return fmt.Sprintf("CONVERT(DATETIME2, '%s', 126)", isoDate)
	}
	return fmt.Sprintf("CONVERT(DATE, '%s', 23)", isoDate)
}

// FloorDivideExpr divides as FLOAT by a NULLIF-guarded denominator and
// applies FLOOR (rounding toward negative infinity), since MSSQL has
// no dedicated "//" operator.
func (d *Dialect) FloorDivideExpr(numerator, denominator string) string {
	return fmt.Sprintf("FLOOR(CAST(%s AS FLOAT) / NULLIF(%s, 0))", numerator, denominator)
}

// MeanAggExpr casts to FLOAT before AVG: MSSQL's AVG(int) truncates to
// an integer result otherwise.
func (d *Dialect) MeanAggExpr(column string) string {
	return fmt.Sprintf("AVG(CAST(%s AS FLOAT))", column)
}

func (d *Dialect) SQLType(kind dialect.ColumnKind) string {
	switch kind {
	case dialect.ColBool:
		return "BIT"
	case dialect.ColInt:
		return "BIGINT"
	case dialect.ColFloat:
		return "FLOAT"
	case dialect.ColStr, dialect.ColCode:
		return "NVARCHAR(4000)"
	case dialect.ColDate:
		return "DATE"
	case dialect.ColDatetime:
		return "DATETIME2"
	default:
		return "NVARCHAR(4000)"
	}
}
