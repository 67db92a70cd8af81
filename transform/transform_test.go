package transform

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
			{Name: "date", Type: types.Date()},
			{Name: "code", Type: types.Code("snomedct")},
			{Name: "is_primary", Type: types.Bool()},
		},
	}
}

func buildPick(t *testing.T) (*qm.PickOneRowPerPatient, qm.FrameNode) {
	t.Helper()
	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	dateCol, err := qm.NewSelectColumn(events, "date", types.Date())
	require.NoError(t, err)
	sorted, err := qm.NewSort(events, dateCol)
	require.NoError(t, err)
	pick, err := qm.NewPickOneRowPerPatient(sorted, qm.FIRST)
	require.NoError(t, err)
	return pick, events
}

func TestAttachSelectedColumnsCollectsAndDedupsAcrossRoots(t *testing.T) {
	pick, _ := buildPick(t)
	code1, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)
	code2, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)
	isPrimary, err := qm.NewSelectColumn(pick, "is_primary", types.Bool())
	require.NoError(t, err)

	roots, err := AttachSelectedColumns([]qm.Node{code1, code2, isPrimary})
	require.NoError(t, err)
	require.Len(t, roots, 3)

	newPick := roots[0].(*qm.SelectColumn).Source.(*qm.PickOneRowPerPatient)
	names := map[string]bool{}
	for _, c := range newPick.SelectedColumns {
		names[c.Name] = true
	}
	assert.Equal(t, map[string]bool{"code": true, "is_primary": true}, names)

	// Every root's pick is the same rebuilt node (shared by pointer
	// identity via the memoized Rebuilder), so the second root sees the
	// first root's columns too.
	assert.Same(t, newPick, roots[1].(*qm.SelectColumn).Source)
	assert.Same(t, newPick, roots[2].(*qm.SelectColumn).Source)
}

func TestAttachSelectedColumnsSourcesOffPicksOwnSort(t *testing.T) {
	pick, _ := buildPick(t)
	code, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)

	roots, err := AttachSelectedColumns([]qm.Node{code})
	require.NoError(t, err)

	newPick := roots[0].(*qm.SelectColumn).Source.(*qm.PickOneRowPerPatient)
	for _, c := range newPick.SelectedColumns {
		assert.True(t, qm.Equal(c.Source, newPick.Source))
	}
}

func TestStabilizeSortAppendsMissingSelectedColumnsInNameOrder(t *testing.T) {
	pick, _ := buildPick(t)
	code, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)
	isPrimary, err := qm.NewSelectColumn(pick, "is_primary", types.Bool())
	require.NoError(t, err)

	attached, err := AttachSelectedColumns([]qm.Node{code, isPrimary})
	require.NoError(t, err)

	stabilized, err := StabilizeSort(attached)
	require.NoError(t, err)

	newPick := stabilized[0].(*qm.SelectColumn).Source.(*qm.PickOneRowPerPatient)

	// Chain from outermost to innermost: original date sort, then the
	// new tie-breakers in ascending name order (code before is_primary),
	// with is_primary wrapped in a Case because it's bool.
	outer := newPick.Source
	dateSort, ok := outer.By.(*qm.SelectColumn)
	require.True(t, ok)
	assert.Equal(t, "date", dateSort.Name)

	codeSort, ok := outer.Source.(*qm.Sort)
	require.True(t, ok)
	codeCol, ok := codeSort.By.(*qm.SelectColumn)
	require.True(t, ok)
	assert.Equal(t, "code", codeCol.Name)

	primarySort, ok := codeSort.Source.(*qm.Sort)
	require.True(t, ok)
	_, isCase := primarySort.By.(*qm.Case)
	assert.True(t, isCase, "bool tie-breaker must be wrapped in a Case")
}

func TestStabilizeSortSkipsColumnsAlreadyUsedAsSortKeys(t *testing.T) {
	pick, _ := buildPick(t)
	dateCol, err := qm.NewSelectColumn(pick, "date", types.Date())
	require.NoError(t, err)

	attached, err := AttachSelectedColumns([]qm.Node{dateCol})
	require.NoError(t, err)
	stabilized, err := StabilizeSort(attached)
	require.NoError(t, err)

	newPick := stabilized[0].(*qm.SelectColumn).Source.(*qm.PickOneRowPerPatient)
	// "date" is already the sort key; no extra tie-breaker needed, so
	// the chain is exactly one Sort deep.
	_, innerIsSort := newPick.Source.Source.(*qm.Sort)
	assert.False(t, innerIsSort)
}
