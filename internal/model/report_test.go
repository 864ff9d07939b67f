package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationReport(t *testing.T) {
	report := NewValidationReport([]ValidationResult{
		{Check: "schema", Passed: true, Severity: SeverityInfo},
		{Check: "outliers", Passed: false, Severity: SeverityWarning},
		{Check: "la_code", Passed: false, Severity: SeverityError},
		{Check: "extra", Passed: false, Severity: SeverityInfo},
	})
	assert.False(t, report.Passed)
	assert.Equal(t, ValidationSummary{Checks: 4, Passed: 1, Failed: 3, Errors: 1, Warnings: 1, Infos: 1}, report.Summary)

	warnOnly := NewValidationReport([]ValidationResult{{Check: "outliers", Severity: SeverityWarning}})
	assert.True(t, warnOnly.Passed)

	empty := NewValidationReport(nil)
	assert.True(t, empty.Passed)
	assert.NotNil(t, empty.Results)
}

func TestSetRowsAndSample(t *testing.T) {
	rows := make([]int, 50)
	for i := range rows {
		rows[i] = i * 2
	}
	var r ValidationResult
	r.SetRows(rows)
	assert.Equal(t, 50, r.AffectedRows)
	assert.Len(t, r.SampleRows, SampleLimit)
	assert.Equal(t, 0, r.SampleRows[0])
	assert.Nil(t, Sample(nil))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "excluded")
}

func TestBlocking(t *testing.T) {
	assert.False(t, ValidationResult{Passed: true, Excluded: []int{1}}.Blocking())
	assert.True(t, ValidationResult{Excluded: []int{1}}.Blocking())
	assert.True(t, ValidationResult{TableLevel: true, Severity: SeverityError}.Blocking())
	assert.False(t, ValidationResult{TableLevel: true, Severity: SeverityWarning}.Blocking())
	assert.False(t, ValidationResult{Severity: SeverityWarning, Rows: []int{1}}.Blocking())
}

func TestSeverityJSON(t *testing.T) {
	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"warning"`), &s))
	assert.Equal(t, SeverityWarning, s)
	assert.True(t, IsConfiguration(json.Unmarshal([]byte(`"fatal"`), &s)))
}

func TestDerivationSummaryMessage(t *testing.T) {
	s := NewDerivationSummary("per_capita", "per_capita", 3, 2, 0)
	assert.Equal(t, 1, s.Missing)
	assert.Equal(t, "1 of 3 rows had no derived value for per_capita", s.Message)
}
