package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

func testRegistry() *schema.Registry {
	return schema.NewRegistry().
		Register(schema.TableSchema{
			Name:          "patients",
			PatientDomain: true,
			Columns: []schema.Column{
				{Name: "date_of_birth", Type: types.Date()},
			},
		}).
		Register(schema.TableSchema{
			Name: "clinical_events",
			Columns: []schema.Column{
				{Name: "date", Type: types.Date()},
				{Name: "code", Type: types.Code("snomedct")},
			},
		})
}

func TestFrameColumnAndFunctionBuildAValidNode(t *testing.T) {
	reg := testRegistry()
	events := Table(reg, "clinical_events")
	code := events.Column("code", types.Code("snomedct"))
	isSet := code.Eq(Scalar(types.CodedValue{System: types.SNOMEDCT, Value: "A"}))

	node, err := isSet.Node()
	require.NoError(t, err)
	assert.IsType(t, &qm.Function{}, node)
}

func TestFrameMethodsPropagateErrorInsteadOfPanicking(t *testing.T) {
	reg := testRegistry()
	missing := Table(reg, "no_such_table")
	col := missing.Column("x", types.Int())
	_, err := col.Node()
	assert.Error(t, err)
}

func TestSeriesErrorShortCircuitsChainedCalls(t *testing.T) {
	reg := testRegistry()
	missing := Table(reg, "no_such_table")
	col := missing.Column("x", types.Int())

	chained := col.Add(Scalar(1)).Eq(Scalar(2)).Not()
	_, err := chained.Node()
	assert.Error(t, err)
}

func TestSortByFirstLastBuildsPickOneRowPerPatient(t *testing.T) {
	reg := testRegistry()
	events := Table(reg, "clinical_events")
	dateCol := events.Column("date", types.Date())

	picked := events.SortBy(dateCol).First()
	node, err := picked.Node()
	require.NoError(t, err)
	_, ok := node.(*qm.PickOneRowPerPatient)
	assert.True(t, ok)
}

func TestWhereBuildsFilter(t *testing.T) {
	reg := testRegistry()
	events := Table(reg, "clinical_events")
	code := events.Column("code", types.Code("snomedct"))
	filtered := events.Where(code.Eq(Scalar(types.CodedValue{System: types.SNOMEDCT, Value: "A"})))

	node, err := filtered.Node()
	require.NoError(t, err)
	_, ok := node.(*qm.Filter)
	assert.True(t, ok)
}

func TestCaseBuildsCaseNodeWithDefault(t *testing.T) {
	reg := testRegistry()
	events := Table(reg, "clinical_events")
	code := events.Column("code", types.Code("snomedct"))
	cond := code.Eq(Scalar(types.CodedValue{System: types.SNOMEDCT, Value: "A"}))
	def := Scalar("other")

	result := Case([]Branch{{Cond: cond, Value: Scalar("matched")}}, &def)
	node, err := result.Node()
	require.NoError(t, err)
	c, ok := node.(*qm.Case)
	require.True(t, ok)
	assert.NotNil(t, c.Default)
}

func TestDurationAddToPicksCorrectOperator(t *testing.T) {
	lit := Scalar(types.NewDate(2020, 1, 1))
	result := Months(3).AddTo(lit)
	node, err := result.Node()
	require.NoError(t, err)
	f, ok := node.(*qm.Function)
	require.True(t, ok)
	assert.Equal(t, qm.OpDateAddMonths, f.Op)
}
