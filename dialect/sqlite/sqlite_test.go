package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opensafely-core/ehrql-go/dialect"
)

func TestQuoteIdentDoublesEmbeddedQuotes(t *testing.T) {
	d := New()
	assert.Equal(t, `"patients"`, d.QuoteIdent("patients"))
	assert.Equal(t, `"a""b"`, d.QuoteIdent(`a"b`))
}

func TestCreateTempTableListsColumnsWithSQLTypes(t *testing.T) {
	d := New()
	ddl := d.CreateTempTable("staging_1", []dialect.ColumnDef{
		{Name: "patient_id", Kind: dialect.ColStr},
		{Name: "n", Kind: dialect.ColInt},
	})
	assert.Contains(t, ddl, `CREATE TEMP TABLE "staging_1"`)
	assert.Contains(t, ddl, `"patient_id" TEXT`)
	assert.Contains(t, ddl, `"n" INTEGER`)
}

func TestDropTempTable(t *testing.T) {
	d := New()
	assert.Equal(t, `DROP TABLE "staging_1"`, d.DropTempTable("staging_1"))
}

func TestStagingTableRefMatchesCreateAndDropIdentifier(t *testing.T) {
	d := New()
	ref := d.StagingTableRef("staging_1")
	assert.Equal(t, `"staging_1"`, ref)
	assert.Contains(t, d.CreateTempTable("staging_1", nil), ref)
	assert.Contains(t, d.DropTempTable("staging_1"), ref)
}

func TestDateLiteralIsPlainQuotedString(t *testing.T) {
	d := New()
	assert.Equal(t, "'2020-01-01'", d.DateLiteral("2020-01-01", false))
	assert.Equal(t, "'2020-01-01T00:00:00'", d.DateLiteral("2020-01-01T00:00:00", true))
}

func TestSQLTypeMapping(t *testing.T) {
	d := New()
	assert.Equal(t, "INTEGER", d.SQLType(dialect.ColBool))
	assert.Equal(t, "INTEGER", d.SQLType(dialect.ColInt))
	assert.Equal(t, "REAL", d.SQLType(dialect.ColFloat))
	assert.Equal(t, "TEXT", d.SQLType(dialect.ColStr))
	assert.Equal(t, "TEXT", d.SQLType(dialect.ColDate))
}

func TestFloorDivideExprGuardsZeroDenominator(t *testing.T) {
	d := New()
	expr := d.FloorDivideExpr("a", "b")
	assert.Contains(t, expr, "NULLIF(b, 0)")
	assert.Contains(t, expr, "FLOOR")
}

func TestMeanAggExprWrapsAVG(t *testing.T) {
	d := New()
	assert.Equal(t, "AVG(x)", d.MeanAggExpr("x"))
}
