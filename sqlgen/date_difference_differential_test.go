package sqlgen_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/opensafely-core/ehrql-go/dialect/sqlite"
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/refengine"
	"github.com/opensafely-core/ehrql-go/sqlgen"
	"github.com/opensafely-core/ehrql-go/types"
)

// TestDateDifferenceInYearsAgreesBetweenSQLAndReferenceEngine lowers an
// age-at-a-fixed-date calculation through sqlgen, runs the compiled
// SQL against a live in-memory SQLite database, and checks every
// patient's result against refengine's independent evaluation of the
// same graph. The seed data spans the case a naive year-component
// subtraction gets wrong: a patient whose birthday falls after the
// index date's month and day.
func TestDateDifferenceInYearsAgreesBetweenSQLAndReferenceEngine(t *testing.T) {
	patients, err := qm.NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := qm.NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	isNull, err := qm.NewFunction(qm.OpIsNull, dob)
	require.NoError(t, err)
	population, err := qm.NewFunction(qm.OpNot, isNull)
	require.NoError(t, err)

	indexDate, err := qm.NewScalarValue(types.NewDate(2020, 3, 2))
	require.NoError(t, err)
	ageAtIndex, err := qm.NewFunction(qm.OpDateDifferenceInYears, indexDate, dob)
	require.NoError(t, err)

	seed := map[string]types.DateValue{
		"1": types.NewDate(2000, 9, 2),  // birthday after index month/day: 19, not a naive 20
		"2": types.NewDate(2000, 1, 2),  // birthday before index month/day: a clean 20
		"3": types.NewDate(2010, 3, 2),  // exactly N years earlier, no overshoot: exactly 10
	}
	want := map[string]int64{"1": 19, "2": 20, "3": 10}

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.ExecContext(ctx, `CREATE TABLE patients (patient_id TEXT, date_of_birth TEXT)`)
	require.NoError(t, err)
	for id, d := range seed {
		_, err := db.ExecContext(ctx, `INSERT INTO patients (patient_id, date_of_birth) VALUES (?, ?)`, id, d.String())
		require.NoError(t, err)
	}

	query, err := sqlgen.New(sqlite.New()).CompileDataset("patients", population, map[string]qm.SeriesNode{"age_at_index": ageAtIndex})
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, query)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]int64{}
	for rows.Next() {
		var id string
		var age int64
		require.NoError(t, rows.Scan(&id, &age))
		got[id] = age
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, len(seed))

	refDB := &refengine.Database{Tables: map[string][]refengine.Row{}}
	for id, d := range seed {
		row := refengine.Row{PatientID: id, Cols: map[string]any{"date_of_birth": d}}
		refDB.Tables["patients"] = append(refDB.Tables["patients"], row)

		refAge, err := refengine.EvalSeries(ageAtIndex, row, refDB)
		require.NoError(t, err)
		assert.Equal(t, refAge, got[id], "patient %s: sqlgen/refengine disagree", id)
	}

	for id, age := range want {
		assert.Equal(t, age, got[id], "patient %s", id)
	}
}
