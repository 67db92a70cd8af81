package qm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/ehrql-go/schema"
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

func eventsSchema(name string) schema.TableSchema {
	return schema.TableSchema{
		Name: name,
		Columns: []schema.Column{
			{Name: "date", Type: types.Date()},
			{Name: "code", Type: types.Code("snomedct")},
		},
	}
}

func TestNewFunctionRejectsTypeMismatch(t *testing.T) {
	patients, err := NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	lit, err := NewScalarValue(1)
	require.NoError(t, err)

	_, err = NewFunction(OpEQ, dob, lit)
	require.Error(t, err)
	var typeErr *TypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestNewFunctionRejectsIncompatibleDomains(t *testing.T) {
	events1, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	events2, err := NewSelectTable("medications", eventsSchema("medications"))
	require.NoError(t, err)

	code1, err := NewSelectColumn(events1, "code", types.Code("snomedct"))
	require.NoError(t, err)
	code2, err := NewSelectColumn(events2, "code", types.Code("snomedct"))
	require.NoError(t, err)

	_, err = NewFunction(OpEQ, code1, code2)
	require.Error(t, err)
	var domainErr *DomainError
	assert.ErrorAs(t, err, &domainErr)
}

func TestNewFunctionAllowsPatientDomainMixedWithEventDomain(t *testing.T) {
	events, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	eventDate, err := NewSelectColumn(events, "date", types.Date())
	require.NoError(t, err)
	lit, err := NewScalarValue(types.NewDate(2020, 1, 1))
	require.NoError(t, err)

	f, err := NewFunction(OpGT, eventDate, lit)
	require.NoError(t, err)
	assert.False(t, HasOneRowPerPatient(f))
}

func TestNewCaseRejectsIncompatibleDomains(t *testing.T) {
	events1, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	events2, err := NewSelectTable("medications", eventsSchema("medications"))
	require.NoError(t, err)
	cond1, err := NewSelectColumn(events1, "code", types.Code("snomedct"))
	require.NoError(t, err)
	cond2, err := NewSelectColumn(events2, "code", types.Code("snomedct"))
	require.NoError(t, err)
	eq1, err := NewFunction(OpIsNull, cond1)
	require.NoError(t, err)
	eq2, err := NewFunction(OpIsNull, cond2)
	require.NoError(t, err)
	val, err := NewScalarValue("x")
	require.NoError(t, err)

	_, err = NewCase([]CaseBranch{{Condition: eq1, Value: val}}, nil)
	require.NoError(t, err)

	_, err = NewCase([]CaseBranch{
		{Condition: eq1, Value: val},
		{Condition: eq2, Value: val},
	}, nil)
	require.Error(t, err)
	var domainErr *DomainError
	assert.ErrorAs(t, err, &domainErr)
}

func TestNewCaseRejectsDuplicateCondition(t *testing.T) {
	patients, err := NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	isNull, err := NewFunction(OpIsNull, dob)
	require.NoError(t, err)
	v1, err := NewScalarValue("a")
	require.NoError(t, err)
	v2, err := NewScalarValue("b")
	require.NoError(t, err)

	_, err = NewCase([]CaseBranch{
		{Condition: isNull, Value: v1},
		{Condition: isNull, Value: v2},
	}, nil)
	require.Error(t, err)
}

func TestHashEqualStructural(t *testing.T) {
	patients, err := NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	a, err := NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	b, err := NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	assert.True(t, Equal(a, b))

	other, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	otherCol, err := NewSelectColumn(other, "date", types.Date())
	require.NoError(t, err)
	assert.False(t, Equal(a, otherCol))
}

func TestValidatePopulationRejectsConstantTrue(t *testing.T) {
	lit, err := NewScalarValue(true)
	require.NoError(t, err)
	err = ValidatePopulation(lit)
	require.Error(t, err)
	var popErr *PopulationError
	assert.ErrorAs(t, err, &popErr)
}

func TestValidatePopulationRejectsEventDomain(t *testing.T) {
	events, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	codeCol, err := NewSelectColumn(events, "code", types.Code("snomedct"))
	require.NoError(t, err)
	isNull, err := NewFunction(OpIsNull, codeCol)
	require.NoError(t, err)

	err = ValidatePopulation(isNull)
	require.Error(t, err)
}

func TestValidatePopulationAcceptsPatientDomainBool(t *testing.T) {
	patients, err := NewSelectPatientTable("patients", patientsSchema())
	require.NoError(t, err)
	dob, err := NewSelectColumn(patients, "date_of_birth", types.Date())
	require.NoError(t, err)
	notNull, err := NewFunction(OpNot, mustIsNull(t, dob))
	require.NoError(t, err)

	assert.NoError(t, ValidatePopulation(notNull))
}

func mustIsNull(t *testing.T, s SeriesNode) SeriesNode {
	t.Helper()
	f, err := NewFunction(OpIsNull, s)
	require.NoError(t, err)
	return f
}

func TestSelectColumnOffPickOneRowPerPatient(t *testing.T) {
	patients, err := NewSelectTable("clinical_events", eventsSchema("clinical_events"))
	require.NoError(t, err)
	dateCol, err := NewSelectColumn(patients, "date", types.Date())
	require.NoError(t, err)
	sorted, err := NewSort(patients, dateCol)
	require.NoError(t, err)
	pick, err := NewPickOneRowPerPatient(sorted, FIRST)
	require.NoError(t, err)

	cols, err := NewSelectColumn(pick, "code", types.Code("snomedct"))
	require.NoError(t, err)
	assert.Equal(t, FIRST, pick.Position)
	assert.NotNil(t, cols)
}
