package pipeline

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
	"ghg-data-pipeline/pkg/logging"
)

// runNamespace scopes run IDs so identical inputs always map to the same ID.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ghg-data-pipeline/runs"))

// DerivationKind selects a derivation.
type DerivationKind string

const (
	DerivePerCapitaKind        DerivationKind = OpPerCapita
	DerivePerAreaKind          DerivationKind = OpPerArea
	DerivePercentageChangeKind DerivationKind = OpPercentageChange
)

// Derivation is one metric to add to the validated rows.
type Derivation struct {
	Kind        DerivationKind `json:"kind"`
	Numerator   string         `json:"numerator,omitempty"`
	Denominator string         `json:"denominator,omitempty"`
	Value       string         `json:"value,omitempty"`
	Time        string         `json:"time,omitempty"`
	GroupBy     []string       `json:"group_by,omitempty"`
	Out         string         `json:"out"`
	Factor      float64        `json:"factor,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

// AggregationMode selects the grain of the output.
type AggregationMode string

const (
	AggregateNone      AggregationMode = "none"
	AggregateGeography AggregationMode = "geography"
	AggregateTime      AggregationMode = "time"
	AggregateSector    AggregationMode = "sector"
)

// AggregationRequest configures the aggregation stage. Which fields apply depends on Mode.
type AggregationRequest struct {
	Mode         AggregationMode       `json:"mode"`
	GeoColumn    string                `json:"geo_column,omitempty"`
	From         geo.Level             `json:"from"`
	To           geo.Level             `json:"to"`
	Time         *model.TimeBucketSpec `json:"time,omitempty"`
	SectorColumn string                `json:"sector_column,omitempty"`
	Spec         model.AggregationSpec `json:"spec"`
}

// RunRequest is one batch plus everything needed to process it.
type RunRequest struct {
	Kind        model.DatasetKind   `json:"kind"`
	Table       *model.Table        `json:"table"`
	Thresholds  Thresholds          `json:"thresholds"`
	Rules       []Rule              `json:"rules,omitempty"`
	Derivations []Derivation        `json:"derivations,omitempty"`
	Aggregation *AggregationRequest `json:"aggregation,omitempty"`
	Freshness   *time.Time          `json:"freshness,omitempty"`
}

// Pipeline runs validate → derive → aggregate over in-memory batches. It holds only
// read-only configuration and is safe for concurrent use.
type Pipeline struct {
	lookup     *geo.Lookup
	logger     *logging.StructuredLogger
	validator  *Validator
	aggregator *Aggregator
	taxonomy   *SectorTaxonomy
	defaults   Thresholds
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *logging.StructuredLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithValidationWorkers(n int) Option {
	return func(p *Pipeline) { p.validator = NewValidator(p.lookup, n) }
}

func WithAggregationWorkers(n int) Option {
	return func(p *Pipeline) { p.aggregator = NewAggregator(n) }
}

// WithTaxonomy supplies the sector vocabulary used by validation and sector aggregation.
func WithTaxonomy(t *SectorTaxonomy) Option {
	return func(p *Pipeline) { p.taxonomy = t }
}

// WithThresholds sets process-wide threshold defaults; requests may override them.
func WithThresholds(th Thresholds) Option {
	return func(p *Pipeline) { p.defaults = th }
}

// New builds a pipeline resolving codes against lookup, which may be nil when no
// geography checks or roll-ups are needed.
func New(lookup *geo.Lookup, opts ...Option) *Pipeline {
	p := &Pipeline{
		lookup:     lookup,
		logger:     logging.Discard(),
		validator:  NewValidator(lookup, 1),
		aggregator: NewAggregator(1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunPipeline runs a batch through a default pipeline.
func RunPipeline(raw *model.Table, kind model.DatasetKind, lookup *geo.Lookup, agg *AggregationRequest) (*model.Table, *model.PipelineReport, error) {
	return New(lookup).Run(RunRequest{Kind: kind, Table: raw, Aggregation: agg})
}

// Run validates the batch, drops rows that failed an error-severity check, derives the
// requested metrics on the remaining rows and aggregates them. Data-quality problems
// land in the report; only configuration and derivation faults return an error.
func (p *Pipeline) Run(req RunRequest) (*model.Table, *model.PipelineReport, error) {
	if !req.Kind.Valid() {
		return nil, nil, model.ConfigErrorf("run_pipeline", "unknown dataset kind %q", req.Kind)
	}
	if req.Table == nil {
		return nil, nil, model.ConfigErrorf("run_pipeline", "no table supplied")
	}
	if err := p.checkRequest(req); err != nil {
		return nil, nil, err
	}
	log := p.logger.WithFields(logging.Fields{"kind": req.Kind.String()})

	validation, err := p.validate(req)
	if err != nil {
		return nil, nil, err
	}

	dropped, flagged := triage(req.Table.Len(), validation.Results)
	kept := make([]int, 0, req.Table.Len()-len(dropped))
	drop := toSet(dropped)
	for row := 0; row < req.Table.Len(); row++ {
		if !drop[row] {
			kept = append(kept, row)
		}
	}
	working := req.Table.Select(kept)
	log.Debug("validation complete", logging.Fields{
		"checks":  validation.Summary.Checks,
		"failed":  validation.Summary.Failed,
		"dropped": len(dropped),
		"flagged": len(flagged),
	})

	report := &model.PipelineReport{
		Kind:             req.Kind,
		Freshness:        req.Freshness,
		ValidationReport: validation,
		RowsIn:           req.Table.Len(),
		RowsDropped:      len(dropped),
		RowsFlagged:      len(flagged),
		DroppedSample:    model.Sample(dropped),
		FlaggedSample:    model.Sample(flagged),
	}

	for _, d := range req.Derivations {
		res, err := derive(working, d)
		if err != nil {
			log.Warn("derivation failed", logging.Fields{"derivation": string(d.Kind), "out": d.Out})
			return nil, nil, err
		}
		working = res.Table
		report.Derivations = append(report.Derivations, res.Summary(string(d.Kind)))
	}

	output := working
	if req.Aggregation != nil && req.Aggregation.Mode != AggregateNone {
		res, err := p.aggregate(working, req.Aggregation)
		if err != nil {
			return nil, nil, err
		}
		output = res.Table
		unresolved := res.Unresolved
		unresolved.Sample = remap(unresolved.Sample, kept)
		report.Unresolved = &unresolved
		report.UnresolvedCount = unresolved.Rows
	}
	report.RowsOut = output.Len()

	id, err := runID(req)
	if err != nil {
		return nil, nil, err
	}
	report.RunID = id

	fields := logging.Fields{
		"run_id":       report.RunID,
		"rows_in":      report.RowsIn,
		"rows_out":     report.RowsOut,
		"rows_dropped": report.RowsDropped,
		"rows_flagged": report.RowsFlagged,
		"unresolved":   report.UnresolvedCount,
		"passed":       report.Passed,
	}
	if report.Passed {
		log.Info("pipeline run complete", fields)
	} else {
		log.Warn("pipeline run complete with validation errors", fields)
	}
	return output, report, nil
}

// Validate runs only the validation stage of req; derivations and aggregation are ignored.
func (p *Pipeline) Validate(req RunRequest) (model.ValidationReport, error) {
	if !req.Kind.Valid() {
		return model.ValidationReport{}, model.ConfigErrorf("validate", "unknown dataset kind %q", req.Kind)
	}
	if req.Table == nil {
		return model.ValidationReport{}, model.ConfigErrorf("validate", "no table supplied")
	}
	return p.validate(req)
}

func (p *Pipeline) validate(req RunRequest) (model.ValidationReport, error) {
	rules := req.Rules
	if rules == nil {
		var err error
		rules, err = DefaultRules(req.Kind, p.defaults.Merge(req.Thresholds), p.taxonomy)
		if err != nil {
			return model.ValidationReport{}, err
		}
	}
	return p.validator.Run(req.Table, rules)
}

// checkRequest rejects structurally invalid derivation and aggregation settings
// before any data is touched.
func (p *Pipeline) checkRequest(req RunRequest) error {
	const op = "run_pipeline"
	for i, d := range req.Derivations {
		switch d.Kind {
		case DerivePerCapitaKind, DerivePerAreaKind, DerivePercentageChangeKind:
		default:
			return model.ConfigErrorf(op, "derivation %d has unknown kind %q", i, d.Kind)
		}
	}
	agg := req.Aggregation
	if agg == nil {
		return nil
	}
	switch agg.Mode {
	case AggregateNone:
	case AggregateGeography:
		if agg.GeoColumn == "" {
			return model.ConfigErrorf(op, "geography aggregation needs geo_column")
		}
		if p.lookup == nil {
			return model.ConfigErrorf(op, "geography aggregation needs a lookup table")
		}
	case AggregateTime:
		if agg.Time == nil {
			return model.ConfigErrorf(op, "time aggregation needs a bucket spec")
		}
	case AggregateSector:
		if agg.SectorColumn == "" {
			return model.ConfigErrorf(op, "sector aggregation needs sector_column")
		}
		if p.taxonomy == nil {
			return model.ConfigErrorf(op, "sector aggregation needs a taxonomy")
		}
	default:
		return model.ConfigErrorf(op, "unknown aggregation mode %q", agg.Mode)
	}
	return nil
}

func (p *Pipeline) aggregate(t *model.Table, agg *AggregationRequest) (*AggregateResult, error) {
	switch agg.Mode {
	case AggregateGeography:
		return p.aggregator.AggregateGeography(t, agg.GeoColumn, agg.From, agg.To, p.lookup, agg.Spec)
	case AggregateTime:
		return p.aggregator.AggregateTime(t, *agg.Time, agg.Spec)
	case AggregateSector:
		return p.aggregator.AggregateSector(t, agg.SectorColumn, p.taxonomy, agg.Spec)
	}
	return nil, model.ConfigErrorf("run_pipeline", "unknown aggregation mode %q", agg.Mode)
}

func derive(t *model.Table, d Derivation) (*DerivationResult, error) {
	opts := DeriveOptions{Factor: d.Factor, Strict: d.Strict}
	switch d.Kind {
	case DerivePerCapitaKind:
		return DerivePerCapita(t, d.Numerator, d.Denominator, d.Out, opts)
	case DerivePerAreaKind:
		return DerivePerArea(t, d.Numerator, d.Denominator, d.Out, opts)
	case DerivePercentageChangeKind:
		if d.Strict && t.Len() == 0 {
			return nil, model.TransformErrorf(OpPercentageChange, d.Value, "strict mode requires a non-empty table")
		}
		return DerivePercentageChange(t, d.Value, d.Time, d.GroupBy, d.Out)
	}
	return nil, model.ConfigErrorf("derive", "unknown derivation kind %q", d.Kind)
}

// triage splits failed results into rows to drop and rows to flag. A table-level
// error drops everything; otherwise rows excluded by any result are dropped and rows
// affected by any other failed result are flagged.
func triage(n int, results []model.ValidationResult) (dropped, flagged []int) {
	drop := map[int]bool{}
	for _, r := range results {
		if !r.Blocking() {
			continue
		}
		if r.TableLevel && r.Severity == model.SeverityError {
			return allRows(n), nil
		}
		for _, row := range r.Excluded {
			drop[row] = true
		}
	}
	flag := map[int]bool{}
	for _, r := range results {
		if r.Passed {
			continue
		}
		for _, row := range r.Rows {
			if !drop[row] {
				flag[row] = true
			}
		}
	}
	return sortedInts(drop), sortedInts(flag)
}

func sortedInts(set map[int]bool) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func toSet(rows []int) map[int]bool {
	set := make(map[int]bool, len(rows))
	for _, r := range rows {
		set[r] = true
	}
	return set
}

// remap converts indices into the kept table back to indices into the input batch.
func remap(rows, kept []int) []int {
	if len(rows) == 0 {
		return nil
	}
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = kept[r]
	}
	return out
}

// runID derives a UUIDv5 from the request so repeated runs report the same ID.
func runID(req RunRequest) (string, error) {
	fingerprint, err := json.Marshal(req)
	if err != nil {
		return "", model.WrapConfig("run_id", err)
	}
	return uuid.NewSHA1(runNamespace, fingerprint).String(), nil
}
