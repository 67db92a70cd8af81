package colspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

func eventsSchema() schema.TableSchema {
	return schema.TableSchema{
		Name: "clinical_events",
		Columns: []schema.Column{
			{Name: "code", Type: types.Code("snomedct")},
		},
	}
}

func selectColumn(t *testing.T) *qm.SelectColumn {
	t.Helper()
	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	col, err := qm.NewSelectColumn(events, "code", types.Code("snomedct"))
	require.NoError(t, err)
	return col
}

func TestInferAggregateCountAndExistsAreNotNullable(t *testing.T) {
	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	count, err := qm.NewAggregateCount(events)
	require.NoError(t, err)
	exists, err := qm.NewAggregateExists(events)
	require.NoError(t, err)

	assert.False(t, Infer("n", count).Nullable)
	assert.False(t, Infer("has_event", exists).Nullable)
}

func TestInferIsNullResultIsNotNullable(t *testing.T) {
	col := selectColumn(t)
	isNull, err := qm.NewFunction(qm.OpIsNull, col)
	require.NoError(t, err)
	assert.False(t, Infer("code_is_null", isNull).Nullable)
}

// Regression test for a bug caught during development: And/Or/Not must
// stay nullable under SQL's three-valued logic (And(false, null) is
// false, but And(null, null) is null), unlike IsNull which can never
// itself be null.
func TestInferLogicalOpsRemainNullable(t *testing.T) {
	col := selectColumn(t)
	isNull, err := qm.NewFunction(qm.OpIsNull, col)
	require.NoError(t, err)
	lit, err := qm.NewScalarValue(true)
	require.NoError(t, err)

	and, err := qm.NewFunction(qm.OpAnd, isNull, lit)
	require.NoError(t, err)
	or, err := qm.NewFunction(qm.OpOr, isNull, lit)
	require.NoError(t, err)
	not, err := qm.NewFunction(qm.OpNot, isNull)
	require.NoError(t, err)

	assert.True(t, Infer("and", and).Nullable)
	assert.True(t, Infer("or", or).Nullable)
	assert.True(t, Infer("not", not).Nullable)
}

func TestInferCaseWithoutDefaultIsNullable(t *testing.T) {
	col := selectColumn(t)
	cond, err := qm.NewFunction(qm.OpIsNull, col)
	require.NoError(t, err)
	val, err := qm.NewScalarValue("x")
	require.NoError(t, err)
	c, err := qm.NewCase([]qm.CaseBranch{{Condition: cond, Value: val}}, nil)
	require.NoError(t, err)
	assert.True(t, Infer("c", c).Nullable)
}

func TestInferCaseWithNonNullDefaultAndValuesIsNotNullable(t *testing.T) {
	col := selectColumn(t)
	cond, err := qm.NewFunction(qm.OpIsNull, col)
	require.NoError(t, err)
	val, err := qm.NewScalarValue("x")
	require.NoError(t, err)
	def, err := qm.NewScalarValue("y")
	require.NoError(t, err)
	c, err := qm.NewCase([]qm.CaseBranch{{Condition: cond, Value: val}}, def)
	require.NoError(t, err)
	assert.False(t, Infer("c", c).Nullable)
}

func TestInferFromColumnPromotesConstraints(t *testing.T) {
	col := selectColumn(t)
	schemaCol := schema.Column{
		Name: "code",
		Type: types.Code("snomedct"),
		Constraints: []schema.Constraint{
			{Kind: schema.NotNull},
			{Kind: schema.Categorical, Categories: []string{"A", "B"}},
			{Kind: schema.ClosedRange, Min: 0, Max: 100, HasMin: true, HasMax: true},
		},
	}
	spec := InferFromColumn("code", col, schemaCol)
	assert.False(t, spec.Nullable)
	assert.Equal(t, []string{"A", "B"}, spec.Categories)
	assert.True(t, spec.HasRange)
	assert.Equal(t, 0.0, spec.Min)
	assert.Equal(t, 100.0, spec.Max)
}
