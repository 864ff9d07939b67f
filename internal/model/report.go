package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SampleLimit caps the row indices carried in serialized samples.
const SampleLimit = 20

// Severity grades a failed validation check.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return WrapConfig("parse_severity", err)
	}
	if raw == "" {
		*s = ""
		return nil
	}
	if !Severity(raw).Valid() {
		return ConfigErrorf("parse_severity", "unknown severity %q", raw)
	}
	*s = Severity(raw)
	return nil
}

// ValidationResult is the outcome of one check over a table.
type ValidationResult struct {
	Check        string                 `json:"check"`
	Columns      []string               `json:"columns,omitempty"`
	Passed       bool                   `json:"passed"`
	Severity     Severity               `json:"severity"`
	AffectedRows int                    `json:"affected_rows"`
	SampleRows   []int                  `json:"sample_rows,omitempty"`
	TableLevel   bool                   `json:"table_level,omitempty"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`

	// Rows holds every affected row index, ascending.
	Rows []int `json:"-"`
	// Excluded holds the rows that must not reach aggregation.
	Excluded []int `json:"-"`
}

// SetRows records the affected rows and fills the count and bounded sample.
func (r *ValidationResult) SetRows(rows []int) {
	r.Rows = rows
	r.AffectedRows = len(rows)
	r.SampleRows = Sample(rows)
}

// Blocking reports whether the result removes rows from the pipeline.
func (r ValidationResult) Blocking() bool {
	return !r.Passed && (len(r.Excluded) > 0 || (r.TableLevel && r.Severity == SeverityError))
}

// Sample returns at most SampleLimit leading entries of rows.
func Sample(rows []int) []int {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows)
	if n > SampleLimit {
		n = SampleLimit
	}
	return append([]int(nil), rows[:n]...)
}

// ValidationSummary counts results by outcome.
type ValidationSummary struct {
	Checks   int `json:"checks"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// ValidationReport composes results; Passed is false iff an error-severity result failed.
type ValidationReport struct {
	Passed  bool               `json:"passed"`
	Results []ValidationResult `json:"results"`
	Summary ValidationSummary  `json:"summary"`
}

// NewValidationReport summarizes results in the order given.
func NewValidationReport(results []ValidationResult) ValidationReport {
	report := ValidationReport{Passed: true, Results: results}
	if report.Results == nil {
		report.Results = []ValidationResult{}
	}
	report.Summary.Checks = len(results)
	for _, r := range results {
		if r.Passed {
			report.Summary.Passed++
			continue
		}
		report.Summary.Failed++
		switch r.Severity {
		case SeverityError:
			report.Summary.Errors++
			report.Passed = false
		case SeverityWarning:
			report.Summary.Warnings++
		default:
			report.Summary.Infos++
		}
	}
	return report
}

// UnresolvedReport discloses rows an aggregation could not place in any group.
type UnresolvedReport struct {
	Rows   int                `json:"rows"`
	Codes  []string           `json:"codes,omitempty"`
	Sample []int              `json:"sample_rows,omitempty"`
	Mass   map[string]float64 `json:"mass,omitempty"`
}

// DerivationSummary states how many rows received a derived value.
type DerivationSummary struct {
	Column    string `json:"column"`
	Operation string `json:"operation"`
	Rows      int    `json:"rows"`
	Derived   int    `json:"derived"`
	Missing   int    `json:"missing"`
	ZeroBase  int    `json:"zero_base,omitempty"`
	Message   string `json:"message"`
}

// NewDerivationSummary builds the "N of M rows had no derived value" line.
func NewDerivationSummary(column, op string, rows, derived, zeroBase int) DerivationSummary {
	missing := rows - derived
	return DerivationSummary{
		Column:    column,
		Operation: op,
		Rows:      rows,
		Derived:   derived,
		Missing:   missing,
		ZeroBase:  zeroBase,
		Message:   fmt.Sprintf("%d of %d rows had no derived value for %s", missing, rows, column),
	}
}

// PipelineReport is the validation report plus what the pipeline did with the rows.
type PipelineReport struct {
	RunID     string      `json:"run_id"`
	Kind      DatasetKind `json:"kind"`
	Freshness *time.Time  `json:"freshness,omitempty"`
	ValidationReport
	RowsIn          int                 `json:"rows_in"`
	RowsOut         int                 `json:"rows_out"`
	RowsDropped     int                 `json:"rows_dropped"`
	RowsFlagged     int                 `json:"rows_flagged"`
	DroppedSample   []int               `json:"dropped_sample,omitempty"`
	FlaggedSample   []int               `json:"flagged_sample,omitempty"`
	Derivations     []DerivationSummary `json:"derivations,omitempty"`
	UnresolvedCount int                 `json:"unresolved_count"`
	Unresolved      *UnresolvedReport   `json:"unresolved,omitempty"`
}
