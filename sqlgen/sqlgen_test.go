package sqlgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/ehrql-go/dialect/sqlite"
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/sqlgen"
	"github.com/opensafely-core/ehrql-go/types"
)

func patientsSchema() schema.TableSchema {
	return schema.TableSchema{
		Name:          "patients",
		PatientDomain: true,
		Columns: []schema.Column{
			{Name: "date_of_birth", Type: types.Date()},
		},
	}
}

func eventsSchema() schema.TableSchema {
	return schema.TableSchema{
		Name: "clinical_events",
		Columns: []schema.Column{
			{Name: "date", Type: types.Date()},
			{Name: "code", Type: types.Code("snomedct")},
		},
	}
}

func TestCompileDatasetProducesSelectWithPatientIDAndVariables(t *testing.T) {
	patients, err := qm.NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := qm.NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	isNull, err := qm.NewFunction(qm.OpIsNull, dob)
	require.NoError(t, err)
	population, err := qm.NewFunction(qm.OpNot, isNull)
	require.NoError(t, err)

	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	exists, err := qm.NewAggregateExists(events)
	require.NoError(t, err)

	c := sqlgen.New(sqlite.New())
	query, err := c.CompileDataset("patients", population, map[string]qm.SeriesNode{"has_event": exists})
	require.NoError(t, err)

	assert.Contains(t, query, "SELECT")
	assert.Contains(t, query, `"patients"`)
	assert.Contains(t, query, `"patient_id"`)
	assert.Contains(t, query, "EXISTS")
	assert.Contains(t, query, `"has_event"`)
}

func TestCompileDatasetPickLowersToRowNumber(t *testing.T) {
	patients, err := qm.NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := qm.NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	isNull, err := qm.NewFunction(qm.OpIsNull, dob)
	require.NoError(t, err)
	population, err := qm.NewFunction(qm.OpNot, isNull)
	require.NoError(t, err)

	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	dateCol, err := qm.NewSelectColumn(events, "date", types.Date())
	require.NoError(t, err)
	sorted, err := qm.NewSort(events, dateCol)
	require.NoError(t, err)
	pick, err := qm.NewPickOneRowPerPatient(sorted, qm.FIRST)
	require.NoError(t, err)
	code, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)

	c := sqlgen.New(sqlite.New())
	query, err := c.CompileDataset("patients", population, map[string]qm.SeriesNode{"first_code": code})
	require.NoError(t, err)

	assert.Contains(t, query, "ROW_NUMBER() OVER (PARTITION BY")
	assert.Contains(t, query, "ORDER BY")
	assert.Contains(t, query, "ASC")
}

func TestCompileDatasetPickLastUsesDescending(t *testing.T) {
	patients, err := qm.NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := qm.NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	population, err := qm.NewFunction(qm.OpNot, mustIsNull(t, dob))
	require.NoError(t, err)

	events, err := qm.NewSelectTable("clinical_events", eventsSchema())
	require.NoError(t, err)
	dateCol, err := qm.NewSelectColumn(events, "date", types.Date())
	require.NoError(t, err)
	sorted, err := qm.NewSort(events, dateCol)
	require.NoError(t, err)
	pick, err := qm.NewPickOneRowPerPatient(sorted, qm.LAST)
	require.NoError(t, err)
	code, err := qm.NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)

	c := sqlgen.New(sqlite.New())
	query, err := c.CompileDataset("patients", population, map[string]qm.SeriesNode{"last_code": code})
	require.NoError(t, err)
	assert.Contains(t, query, "DESC")
}

func mustIsNull(t *testing.T, s qm.SeriesNode) qm.SeriesNode {
	t.Helper()
	f, err := qm.NewFunction(qm.OpIsNull, s)
	require.NoError(t, err)
	return f
}
