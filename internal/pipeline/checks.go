package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
)

// Defaults for the tunable checks.
const (
	DefaultNullRateThreshold = 0.05
	DefaultOutlierK          = 1.5

	// Below this many non-null values quartiles are not meaningful.
	minOutlierValues = 4
	// Cap on distinct codes listed in check details.
	maxListedCodes = 10
)

// NullRateConfig configures CheckNullRate. A zero Severity means warning.
type NullRateConfig struct {
	Threshold float64
	Severity  model.Severity
}

// OutlierConfig configures CheckOutliers. A zero K means DefaultOutlierK.
type OutlierConfig struct {
	K float64
}

// RangeConfig bounds a numeric column; nil bounds are open.
type RangeConfig struct {
	Min      *float64
	Max      *float64
	Severity model.Severity
}

func severityOr(s, def model.Severity) model.Severity {
	if s == "" {
		return def
	}
	return s
}

// tableLevel reports a check that could not run against the table at all
// (missing or wrong-typed column). Every row is affected.
func tableLevel(check string, columns []string, t *model.Table, format string, args ...interface{}) model.ValidationResult {
	r := model.ValidationResult{
		Check:      check,
		Columns:    columns,
		Severity:   model.SeverityError,
		TableLevel: true,
		Message:    fmt.Sprintf(format, args...),
	}
	r.SetRows(allRows(t.Len()))
	return r
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// excludeOnError marks the affected rows for removal when a failed check is error-severity.
func excludeOnError(r *model.ValidationResult) {
	if !r.Passed && r.Severity == model.SeverityError {
		r.Excluded = r.Rows
	}
}

// CheckNullRate fails when the share of null cells across columns exceeds the threshold.
func CheckNullRate(t *model.Table, columns []string, cfg NullRateConfig) model.ValidationResult {
	const check = "null_rate"
	for _, c := range columns {
		if !t.HasColumn(c) {
			return tableLevel(check, columns, t, "column %q not found", c)
		}
	}

	perColumn := make(map[string]int, len(columns))
	var rows []int
	nulls := 0
	for row := 0; row < t.Len(); row++ {
		hit := false
		for _, c := range columns {
			if t.IsNull(row, c) {
				perColumn[c]++
				nulls++
				hit = true
			}
		}
		if hit {
			rows = append(rows, row)
		}
	}

	cells := t.Len() * len(columns)
	rate := 0.0
	if cells > 0 {
		rate = float64(nulls) / float64(cells)
	}

	r := model.ValidationResult{
		Check:    check,
		Columns:  columns,
		Passed:   rate <= cfg.Threshold,
		Severity: severityOr(cfg.Severity, model.SeverityWarning),
		Details: map[string]interface{}{
			"null_count": nulls,
			"null_rate":  rate,
			"threshold":  cfg.Threshold,
			"per_column": perColumn,
			"cells":      cells,
		},
	}
	r.SetRows(rows)
	if r.Passed {
		r.Message = fmt.Sprintf("%d null values (%.2f%%) within threshold %.2f%%", nulls, rate*100, cfg.Threshold*100)
	} else {
		r.Message = fmt.Sprintf("%d null values (%.2f%%) exceed threshold %.2f%%", nulls, rate*100, cfg.Threshold*100)
	}
	excludeOnError(&r)
	return r
}

// CheckOutliers flags values outside [Q1 - k*IQR, Q3 + k*IQR]. Quartiles are the
// nearest-rank values of the sorted non-null column.
func CheckOutliers(t *model.Table, column string, cfg OutlierConfig) model.ValidationResult {
	const check = "outlier"
	columns := []string{column}
	col, ok := t.Column(column)
	if !ok {
		return tableLevel(check, columns, t, "column %q not found", column)
	}
	if !col.Type.Numeric() {
		return tableLevel(check, columns, t, "column %q is %s, not numeric", column, col.Type)
	}
	k := cfg.K
	if k == 0 {
		k = DefaultOutlierK
	}

	var values stats.Float64Data
	var index []int
	for row := 0; row < t.Len(); row++ {
		if v, ok := t.Float(row, column); ok {
			values = append(values, v)
			index = append(index, row)
		}
	}

	r := model.ValidationResult{Check: check, Columns: columns, Passed: true, Severity: model.SeverityWarning}
	if len(values) < minOutlierValues {
		r.Message = fmt.Sprintf("insufficient values for quartiles (%d non-null)", len(values))
		r.Details = map[string]interface{}{"values": len(values)}
		return r
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1, q3 := nearestQuantile(sorted, 0.25), nearestQuantile(sorted, 0.75)
	iqr := q3 - q1
	lower, upper := q1-k*iqr, q3+k*iqr

	var rows []int
	for i, v := range values {
		if v < lower || v > upper {
			rows = append(rows, index[i])
		}
	}
	r.SetRows(rows)
	r.Passed = len(rows) == 0
	r.Details = map[string]interface{}{
		"q1":          q1,
		"q3":          q3,
		"iqr":         iqr,
		"k":           k,
		"lower_bound": lower,
		"upper_bound": upper,
		"values":      len(values),
	}
	if lo, err := stats.Min(values); err == nil {
		r.Details["observed_min"] = lo
	}
	if hi, err := stats.Max(values); err == nil {
		r.Details["observed_max"] = hi
	}
	r.Message = fmt.Sprintf("%d values outside [%g, %g]", len(rows), lower, upper)
	return r
}

// nearestQuantile picks the sorted value at index round(q*(n-1)).
func nearestQuantile(sorted []float64, q float64) float64 {
	return sorted[int(math.Round(q*float64(len(sorted)-1)))]
}

// CheckDateRange fails with error severity when any year lies outside [minYear, maxYear].
// Null values are left to the null-rate check.
func CheckDateRange(t *model.Table, column string, minYear, maxYear int) model.ValidationResult {
	const check = "date_range"
	columns := []string{column}
	col, ok := t.Column(column)
	if !ok {
		return tableLevel(check, columns, t, "column %q not found", column)
	}
	if !col.Type.Temporal() {
		return tableLevel(check, columns, t, "column %q is %s, want int year or date", column, col.Type)
	}

	var rows []int
	lo, hi := math.MaxInt, math.MinInt
	for row := 0; row < t.Len(); row++ {
		y, ok := t.Year(row, column)
		if !ok {
			continue
		}
		if y < lo {
			lo = y
		}
		if y > hi {
			hi = y
		}
		if y < minYear || y > maxYear {
			rows = append(rows, row)
		}
	}

	r := model.ValidationResult{
		Check:    check,
		Columns:  columns,
		Passed:   len(rows) == 0,
		Severity: model.SeverityError,
		Details:  map[string]interface{}{"min": minYear, "max": maxYear},
	}
	if lo <= hi {
		r.Details["observed_min"] = lo
		r.Details["observed_max"] = hi
	}
	r.SetRows(rows)
	r.Message = fmt.Sprintf("%d values outside [%d, %d]", len(rows), minYear, maxYear)
	excludeOnError(&r)
	return r
}

// CheckRange flags numeric values outside the configured bounds. A zero Severity means warning.
func CheckRange(t *model.Table, column string, cfg RangeConfig) model.ValidationResult {
	const check = "range"
	columns := []string{column}
	col, ok := t.Column(column)
	if !ok {
		return tableLevel(check, columns, t, "column %q not found", column)
	}
	if !col.Type.Numeric() {
		return tableLevel(check, columns, t, "column %q is %s, not numeric", column, col.Type)
	}

	var rows []int
	for row := 0; row < t.Len(); row++ {
		v, ok := t.Float(row, column)
		if !ok {
			continue
		}
		if (cfg.Min != nil && v < *cfg.Min) || (cfg.Max != nil && v > *cfg.Max) {
			rows = append(rows, row)
		}
	}

	r := model.ValidationResult{
		Check:    check,
		Columns:  columns,
		Passed:   len(rows) == 0,
		Severity: severityOr(cfg.Severity, model.SeverityWarning),
		Details:  map[string]interface{}{},
	}
	bounds := []string{"-inf", "+inf"}
	if cfg.Min != nil {
		r.Details["min"] = *cfg.Min
		bounds[0] = fmt.Sprint(*cfg.Min)
	}
	if cfg.Max != nil {
		r.Details["max"] = *cfg.Max
		bounds[1] = fmt.Sprint(*cfg.Max)
	}
	r.SetRows(rows)
	r.Message = fmt.Sprintf("%d values outside [%s, %s]", len(rows), bounds[0], bounds[1])
	excludeOnError(&r)
	return r
}

// CheckGeoCodes validates a code column at level. Malformed codes are errors and their
// rows are excluded; well-formed codes missing from lookup are warnings. With a nil
// lookup only the format is checked.
func CheckGeoCodes(t *model.Table, column string, level geo.Level, lookup *geo.Lookup) model.ValidationResult {
	check := level.String() + "_code"
	columns := []string{column}
	col, ok := t.Column(column)
	if !ok {
		return tableLevel(check, columns, t, "column %q not found", column)
	}
	if col.Type != model.TypeString {
		return tableLevel(check, columns, t, "column %q is %s, want string codes", column, col.Type)
	}

	var invalidRows, unknownRows, rows []int
	invalidCodes := map[string]bool{}
	unknownCodes := map[string]bool{}
	for row := 0; row < t.Len(); row++ {
		code, ok := t.String(row, column)
		if !ok {
			continue
		}
		switch {
		case !geo.ValidCode(level, code):
			invalidRows = append(invalidRows, row)
			invalidCodes[code] = true
			rows = append(rows, row)
		case lookup != nil && !lookup.Contains(level, code):
			unknownRows = append(unknownRows, row)
			unknownCodes[geo.NormalizeCode(level, code)] = true
			rows = append(rows, row)
		}
	}

	r := model.ValidationResult{
		Check:   check,
		Columns: columns,
		Passed:  len(rows) == 0,
		Details: map[string]interface{}{
			"invalid_rows":  len(invalidRows),
			"unknown_rows":  len(unknownRows),
			"invalid_codes": listCodes(invalidCodes),
			"unknown_codes": listCodes(unknownCodes),
			"lookup":        lookup != nil,
		},
	}
	r.SetRows(rows)
	switch {
	case len(invalidRows) > 0:
		r.Severity = model.SeverityError
		r.Excluded = invalidRows
	case len(unknownRows) > 0:
		r.Severity = model.SeverityWarning
	default:
		r.Severity = model.SeverityError
	}
	r.Message = fmt.Sprintf("%d malformed and %d unknown %s codes", len(invalidRows), len(unknownRows), strings.ToUpper(level.String()))
	return r
}

func listCodes(set map[string]bool) []string {
	codes := make([]string, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	if len(codes) > maxListedCodes {
		codes = codes[:maxListedCodes]
	}
	return codes
}

// CheckSchema compares declared columns with expected ones. Missing or incompatible
// columns fail at error severity; extra columns alone pass and are reported as info.
func CheckSchema(t *model.Table, expected []model.Column) model.ValidationResult {
	const check = "schema"
	want := make(map[string]bool, len(expected))
	var missing, mismatched, extra []string
	names := make([]string, 0, len(expected))
	for _, exp := range expected {
		want[exp.Name] = true
		names = append(names, exp.Name)
		got, ok := t.Column(exp.Name)
		if !ok {
			missing = append(missing, exp.Name)
			continue
		}
		if !exp.Type.Accepts(got.Type) {
			mismatched = append(mismatched, fmt.Sprintf("%s (want %s, got %s)", exp.Name, exp.Type, got.Type))
		}
	}
	for _, col := range t.Columns() {
		if !want[col.Name] {
			extra = append(extra, col.Name)
		}
	}

	details := map[string]interface{}{
		"missing_columns":       missing,
		"mismatched_columns":    mismatched,
		"extra_columns":         extra,
		"expected_column_count": len(expected),
	}
	if len(missing) > 0 || len(mismatched) > 0 {
		r := tableLevel(check, names, t, "%d missing and %d incompatible columns", len(missing), len(mismatched))
		r.Details = details
		return r
	}

	r := model.ValidationResult{Check: check, Columns: names, Passed: true, Severity: model.SeverityError, Details: details}
	if len(extra) > 0 {
		r.Severity = model.SeverityInfo
		r.Message = fmt.Sprintf("schema matches; %d extra columns tolerated: %s", len(extra), strings.Join(extra, ", "))
	} else {
		r.Message = "schema matches"
	}
	return r
}

// CheckAllowedValues flags string values outside the allowed vocabulary. A zero
// Severity means warning.
func CheckAllowedValues(t *model.Table, column string, allowed []string, severity model.Severity) model.ValidationResult {
	const check = "allowed_values"
	columns := []string{column}
	col, ok := t.Column(column)
	if !ok {
		return tableLevel(check, columns, t, "column %q not found", column)
	}
	if col.Type != model.TypeString {
		return tableLevel(check, columns, t, "column %q is %s, want string", column, col.Type)
	}

	vocab := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		vocab[a] = true
	}
	var rows []int
	unexpected := map[string]bool{}
	for row := 0; row < t.Len(); row++ {
		v, ok := t.String(row, column)
		if !ok || vocab[v] {
			continue
		}
		rows = append(rows, row)
		unexpected[v] = true
	}

	r := model.ValidationResult{
		Check:    check,
		Columns:  columns,
		Passed:   len(rows) == 0,
		Severity: severityOr(severity, model.SeverityWarning),
		Details: map[string]interface{}{
			"unexpected_values": listCodes(unexpected),
			"vocabulary_size":   len(vocab),
		},
	}
	r.SetRows(rows)
	r.Message = fmt.Sprintf("%d rows carry values outside the vocabulary", len(rows))
	excludeOnError(&r)
	return r
}
