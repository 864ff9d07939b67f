package pipeline

import (
	"golang.org/x/sync/errgroup"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
)

// Validator runs rules against a table on a bounded set of workers.
type Validator struct {
	lookup  *geo.Lookup
	workers int
}

// NewValidator returns a validator resolving geo codes against lookup (which may be nil).
func NewValidator(lookup *geo.Lookup, workers int) *Validator {
	if workers < 1 {
		workers = 1
	}
	return &Validator{lookup: lookup, workers: workers}
}

// RunAllValidations checks t against schema (skipped when nil) and rules, returning one
// report. Data-quality findings never produce an error; misconfigured rules do.
func RunAllValidations(t *model.Table, schema []model.Column, rules []Rule, lookup *geo.Lookup) (model.ValidationReport, error) {
	if schema != nil {
		rules = append([]Rule{{Name: "schema", Type: RuleSchema, Expected: schema}}, rules...)
	}
	return NewValidator(lookup, 1).Run(t, rules)
}

// ValidateKind runs the default rule table for kind.
func (v *Validator) ValidateKind(t *model.Table, kind model.DatasetKind, th Thresholds, taxonomy *SectorTaxonomy) (model.ValidationReport, error) {
	rules, err := DefaultRules(kind, th, taxonomy)
	if err != nil {
		return model.ValidationReport{}, err
	}
	return v.Run(t, rules)
}

// Run executes every rule. Results keep rule order regardless of which worker ran them.
// An empty table passes trivially.
func (v *Validator) Run(t *model.Table, rules []Rule) (model.ValidationReport, error) {
	if t == nil {
		return model.ValidationReport{}, model.ConfigErrorf("validate", "no table supplied")
	}
	if err := ValidateRules(rules); err != nil {
		return model.ValidationReport{}, err
	}
	if t.Len() == 0 {
		return model.NewValidationReport(nil), nil
	}

	results := make([]model.ValidationResult, len(rules))
	var g errgroup.Group
	g.SetLimit(v.workers)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			results[i] = rule.Run(t, v.lookup)
			return nil
		})
	}
	// Checks report findings rather than returning errors.
	_ = g.Wait()

	return model.NewValidationReport(results), nil
}
