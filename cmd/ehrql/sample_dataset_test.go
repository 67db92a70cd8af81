package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/opensafely-core/ehrql-go/colspec"
	"github.com/opensafely-core/ehrql-go/dialect"
	"github.com/opensafely-core/ehrql-go/dialect/sqlite"
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

func sampleRegistry() *schema.Registry {
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
				{Name: "snomedct_code", Type: types.Code("snomedct")},
			},
		})
}

func TestBuildSampleDatasetProducesThreeVariables(t *testing.T) {
	population, variables, err := buildSampleDataset(sampleRegistry())
	require.NoError(t, err)
	require.NoError(t, qm.ValidatePopulation(population))
	assert.Len(t, variables, 3)
	assert.Contains(t, variables, "age_at_index")
	assert.Contains(t, variables, "has_diabetes_diagnosis")
	assert.Contains(t, variables, "first_diabetes_code")
}

func TestCompileSampleDatasetProducesSelectStatement(t *testing.T) {
	query, err := compileSampleDataset(sampleRegistry(), sqlite.New())
	require.NoError(t, err)
	assert.Contains(t, query, "SELECT")
	assert.Contains(t, query, `"age_at_index"`)
	assert.Contains(t, query, `"has_diabetes_diagnosis"`)
	assert.Contains(t, query, `"first_diabetes_code"`)
}

func TestVariableNamesReturnsSortedNames(t *testing.T) {
	_, variables, err := buildSampleDataset(sampleRegistry())
	require.NoError(t, err)
	names := variableNames(variables)
	assert.Equal(t, []string{"age_at_index", "first_diabetes_code", "has_diabetes_diagnosis"}, names)
}

func TestColumnKindMapsEachQueryModelType(t *testing.T) {
	assert.Equal(t, dialect.ColBool, columnKind(types.Bool()))
	assert.Equal(t, dialect.ColInt, columnKind(types.Int()))
	assert.Equal(t, dialect.ColFloat, columnKind(types.Float()))
	assert.Equal(t, dialect.ColStr, columnKind(types.Str()))
	assert.Equal(t, dialect.ColDate, columnKind(types.Date()))
	assert.Equal(t, dialect.ColDatetime, columnKind(types.Datetime()))
	assert.Equal(t, dialect.ColCode, columnKind(types.Code("snomedct")))
}

func TestMaterializeStagingRoundTripsRowsThroughAFreshTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1) // TEMP TABLEs are connection-scoped in SQLite

	ctx := context.Background()
	d := sqlite.New()
	specs := []colspec.Spec{{Name: "n", Type: types.Int()}}
	query := "SELECT 'p1' AS patient_id, 1 AS n"

	source, cleanup, err := materializeStaging(ctx, db, d, query, specs)
	require.NoError(t, err)
	defer cleanup(ctx)

	var patientID string
	var n int
	row := db.QueryRowContext(ctx, source)
	require.NoError(t, row.Scan(&patientID, &n))
	assert.Equal(t, "p1", patientID)
	assert.Equal(t, 1, n)
}
