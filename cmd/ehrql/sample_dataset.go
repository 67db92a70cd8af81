package main

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/opensafely-core/ehrql-go/builder"
	"github.com/opensafely-core/ehrql-go/colspec"
	"github.com/opensafely-core/ehrql-go/dialect"
	"github.com/opensafely-core/ehrql-go/fileformat"
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/reader"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/sqlgen"
	"github.com/opensafely-core/ehrql-go/tempsched"
	"github.com/opensafely-core/ehrql-go/types"
)

// diabetesCodes is a small stand-in codelist (the kind normally loaded
// from a CSV codelist file; codelist provenance tooling is out of
// scope here).
var diabetesCodes = []any{
	types.CodedValue{System: "snomedct", Value: "73211009"},
	types.CodedValue{System: "snomedct", Value: "44054006"},
}

// buildSampleDataset assembles a demonstration dataset: every patient
// with a recorded date of birth, their age on a fixed index date,
// whether they have ever had a diabetes diagnosis, and the code of
// their first diabetes diagnosis if any. It exercises every surface
// package together (schema, builder, transform via Dataset.Build,
// sqlgen) the way a user's own dataset-definition file would.
func buildSampleDataset(reg *schema.Registry) (population qm.SeriesNode, variables map[string]qm.SeriesNode, err error) {
	patients := builder.PatientTable(reg, "patients")
	dob := patients.Column("date_of_birth", types.Date())

	events := builder.Table(reg, "clinical_events")
	code := events.Column("snomedct_code", types.Code("snomedct"))
	diabetesEvents := events.Where(code.In(diabetesCodes))

	indexDate := builder.Scalar(types.NewDate(2020, 1, 1))
	ageAtIndex := indexDate.DateDifferenceInYears(dob)

	hasDiabetes := diabetesEvents.Exists()

	firstDiabetesEvent := diabetesEvents.SortBy(diabetesEvents.Column("date", types.Date())).First()
	firstDiabetesCode := firstDiabetesEvent.Column("snomedct_code", types.Code("snomedct"))

	ds := builder.NewDataset()
	ds.DefinePopulation(dob.IsNull().Not())
	ds.AddVariable("age_at_index", ageAtIndex)
	ds.AddVariable("has_diabetes_diagnosis", hasDiabetes)
	ds.AddVariable("first_diabetes_code", firstDiabetesCode)
	return ds.Build()
}

func compileSampleDataset(reg *schema.Registry, d dialect.Dialect) (string, error) {
	population, variables, err := buildSampleDataset(reg)
	if err != nil {
		return "", fmt.Errorf("ehrql: building sample dataset: %w", err)
	}
	return sqlgen.New(d).CompileDataset("patients", population, variables)
}

// runSampleDataset compiles, runs and streams the sample dataset to
// CSV (stdout, or a file if output is non-empty), using reader to
// page through results and colspec to label the output columns.
func runSampleDataset(ctx context.Context, db *sql.DB, d dialect.Dialect, reg *schema.Registry, output string) error {
	population, variables, err := buildSampleDataset(reg)
	if err != nil {
		return fmt.Errorf("ehrql: building sample dataset: %w", err)
	}
	query, err := sqlgen.New(d).CompileDataset("patients", population, variables)
	if err != nil {
		return fmt.Errorf("ehrql: compiling sample dataset: %w", err)
	}

	names := variableNames(variables)
	specs := make([]colspec.Spec, len(names))
	for i, name := range names {
		specs[i] = colspec.Infer(name, variables[name])
	}

	// MSSQL has no inline LIMIT/OFFSET paging over an arbitrary
	// subquery, so its results are first materialized into a staging
	// table (tempsched schedules the single build step, dialect.
	// NewStagingName picks a collision-free name) and paged from
	// there; SQLite pages the compiled query directly.
	source := query
	cleanup := func(context.Context) error { return nil }
	if d.Name() == "mssql" {
		var err error
		source, cleanup, err = materializeStaging(ctx, db, d, query, specs)
		if err != nil {
			return err
		}
	}
	defer cleanup(ctx)

	pkIdent := d.QuoteIdent(sqlgen.PatientIDColumn)
	pageSQL := fmt.Sprintf("SELECT * FROM (%s) AS page WHERE %s > ? ORDER BY %s LIMIT ?",
		source, pkIdent, pkIdent)

	fetch := func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error) {
		return db.QueryContext(ctx, pageSQL, afterKey, limit)
	}
	scan := func(rows *sql.Rows) (reader.Row, error) {
		dest := make([]any, len(names)+1)
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return reader.Row{}, err
		}
		key, _ := dest[0].(string)
		return reader.Row{Key: key, Values: dest[1:]}, nil
	}
	r := reader.New(fetch, scan, reader.Config{BatchSize: 1000})

	w, closeOut, err := openOutput(output)
	if err != nil {
		return err
	}
	defer closeOut()

	cw := fileformat.NewCSVWriter(w)
	if err := cw.WriteHeader(specs); err != nil {
		return err
	}
	if err := r.Each(ctx, func(row reader.Row) error {
		return cw.WriteRow(row)
	}); err != nil {
		return fmt.Errorf("ehrql: reading results: %w", err)
	}
	return cw.Close()
}

// materializeStaging builds a single staging table holding query's
// results and returns a SELECT reading it back plus a cleanup func
// that drops it. tempsched.Schedule is overkill for one step, but it
// is the same scheduling path a multi-stage compile (e.g. a dataset
// with more than one PickOneRowPerPatient) would route every staging
// table through, so this keeps the one-table and many-table cases on
// one code path instead of special-casing the common case.
func materializeStaging(ctx context.Context, db *sql.DB, d dialect.Dialect, query string, specs []colspec.Spec) (source string, cleanup func(context.Context) error, err error) {
	name := dialect.NewStagingName("results")

	columns := make([]dialect.ColumnDef, len(specs)+1)
	columns[0] = dialect.ColumnDef{Name: sqlgen.PatientIDColumn, Kind: dialect.ColStr}
	for i, s := range specs {
		columns[i+1] = dialect.ColumnDef{Name: s.Name, Kind: columnKind(s.Type)}
	}

	layers, _ := tempsched.Schedule([]tempsched.Step{{Name: name}})
	for _, layer := range layers {
		for _, step := range layer {
			if _, err := db.ExecContext(ctx, d.CreateTempTable(step, columns)); err != nil {
				return "", nil, fmt.Errorf("ehrql: creating staging table: %w", err)
			}
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s %s", d.StagingTableRef(name), query)
	if _, err := db.ExecContext(ctx, insert); err != nil {
		return "", nil, fmt.Errorf("ehrql: materializing staging table: %w", err)
	}

	cleanup = func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, d.DropTempTable(name))
		return err
	}
	return fmt.Sprintf("SELECT * FROM %s", d.StagingTableRef(name)), cleanup, nil
}

// columnKind maps a query-model type onto the SQL-visible shape a
// staging table column needs, the same narrowing dialect.ColumnKind's
// own doc comment describes.
func columnKind(t types.Type) dialect.ColumnKind {
	switch t.Kind {
	case types.KindBool:
		return dialect.ColBool
	case types.KindInt:
		return dialect.ColInt
	case types.KindFloat:
		return dialect.ColFloat
	case types.KindDate:
		return dialect.ColDate
	case types.KindDatetime:
		return dialect.ColDatetime
	case types.KindCode:
		return dialect.ColCode
	default:
		return dialect.ColStr
	}
}

func variableNames(variables map[string]qm.SeriesNode) []string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
