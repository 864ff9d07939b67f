package model

import (
	"encoding/json"
	"strings"
)

// AggOp is a per-column reduction.
type AggOp string

const (
	OpSum   AggOp = "sum"
	OpMean  AggOp = "mean"
	OpMin   AggOp = "min"
	OpMax   AggOp = "max"
	OpCount AggOp = "count"
)

func (o AggOp) Valid() bool {
	switch o {
	case OpSum, OpMean, OpMin, OpMax, OpCount:
		return true
	}
	return false
}

func (o *AggOp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return WrapConfig("parse_agg_op", err)
	}
	op := AggOp(strings.ToLower(s))
	if op == "avg" || op == "average" {
		op = OpMean
	}
	*o = op
	return nil
}

// AggColumn applies Op to Column, writing the output as As (default "<column>_<op>").
type AggColumn struct {
	Column string `json:"column"`
	Op     AggOp  `json:"op"`
	As     string `json:"as,omitempty"`
}

func (a AggColumn) OutputName() string {
	if a.As != "" {
		return a.As
	}
	return a.Column + "_" + string(a.Op)
}

// RatioMetric is recomputed after grouping as sum(Numerator)/sum(Denominator)*Factor.
type RatioMetric struct {
	Column      string  `json:"column"`
	Numerator   string  `json:"numerator"`
	Denominator string  `json:"denominator"`
	Factor      float64 `json:"factor,omitempty"`
}

func (r RatioMetric) factor() float64 {
	if r.Factor == 0 {
		return 1
	}
	return r.Factor
}

// Apply computes the ratio of two group sums, or nil when the denominator is not positive.
func (r RatioMetric) Apply(num, den float64, haveNum bool) interface{} {
	if !haveNum || den <= 0 {
		return nil
	}
	return num / den * r.factor()
}

// RowCountColumn is emitted for every group.
const RowCountColumn = "row_count"

// AggregationSpec declares grouping columns, per-column reductions and ratio re-derivations.
type AggregationSpec struct {
	GroupBy      []string      `json:"group_by,omitempty"`
	Aggregations []AggColumn   `json:"aggregations,omitempty"`
	Ratios       []RatioMetric `json:"ratios,omitempty"`
}

// Validate checks the spec against t. keyColumns are the output names the caller's own
// grouping key will occupy (e.g. "la_code").
func (s AggregationSpec) Validate(t *Table, keyColumns ...string) error {
	const op = "aggregation_spec"

	outputs := map[string]string{RowCountColumn: "row count"}
	claim := func(name, owner string) error {
		if prev, taken := outputs[name]; taken {
			return ColumnConfigErrorf(op, name, "output produced by both %s and %s", prev, owner)
		}
		outputs[name] = owner
		return nil
	}

	for _, k := range keyColumns {
		if err := claim(k, "grouping key"); err != nil {
			return err
		}
	}
	for _, g := range s.GroupBy {
		if !t.HasColumn(g) {
			return ColumnConfigErrorf(op, g, "group-by column not in table")
		}
		if err := claim(g, "group_by"); err != nil {
			return err
		}
	}

	ratioCols := make(map[string]bool, len(s.Ratios))
	for _, r := range s.Ratios {
		if r.Column == "" {
			return ConfigErrorf(op, "ratio metric without an output column")
		}
		for _, src := range []string{r.Numerator, r.Denominator} {
			col, ok := t.Column(src)
			if !ok {
				return ColumnConfigErrorf(op, src, "ratio %s source column not in table", r.Column)
			}
			if !col.Type.Numeric() {
				return ColumnConfigErrorf(op, src, "ratio %s source column is %s, not numeric", r.Column, col.Type)
			}
		}
		if r.Factor < 0 {
			return ColumnConfigErrorf(op, r.Column, "negative ratio factor %v", r.Factor)
		}
		if err := claim(r.Column, "ratio"); err != nil {
			return err
		}
		ratioCols[r.Column] = true
	}

	seen := make(map[AggColumn]bool, len(s.Aggregations))
	for _, a := range s.Aggregations {
		if !a.Op.Valid() {
			return ColumnConfigErrorf(op, a.Column, "unknown aggregation op %q", a.Op)
		}
		if ratioCols[a.Column] {
			return ColumnConfigErrorf(op, a.Column, "ratio metrics are recomputed from sums, not aggregated with %s", a.Op)
		}
		key := AggColumn{Column: a.Column, Op: a.Op}
		if seen[key] {
			return ColumnConfigErrorf(op, a.Column, "%s requested more than once", a.Op)
		}
		seen[key] = true
		col, ok := t.Column(a.Column)
		if !ok {
			return ColumnConfigErrorf(op, a.Column, "aggregation column not in table")
		}
		if a.Op != OpCount && !col.Type.Numeric() {
			return ColumnConfigErrorf(op, a.Column, "%s needs a numeric column, got %s", a.Op, col.Type)
		}
		if err := claim(a.OutputName(), string(a.Op)+"("+a.Column+")"); err != nil {
			return err
		}
	}
	return nil
}

// MassColumns lists the numeric source columns whose unresolved totals must be disclosed.
func (s AggregationSpec) MassColumns(t *Table) []string {
	var cols []string
	seen := map[string]bool{}
	add := func(c string) {
		col, ok := t.Column(c)
		if ok && col.Type.Numeric() && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, a := range s.Aggregations {
		add(a.Column)
	}
	for _, r := range s.Ratios {
		add(r.Numerator)
		add(r.Denominator)
	}
	return cols
}

// TimeBucket is an inclusive range of calendar years.
type TimeBucket struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (b TimeBucket) Contains(year int) bool { return year >= b.Start && year <= b.End }

// TimeBucketSpec buckets a year/date column either into fixed-size windows aligned on
// Origin, or into explicit Ranges when those are given.
type TimeBucketSpec struct {
	Column string       `json:"column"`
	Size   int          `json:"size,omitempty"`
	Origin int          `json:"origin,omitempty"`
	Ranges []TimeBucket `json:"ranges,omitempty"`
}

// Validate checks the bucket spec against t.
func (s TimeBucketSpec) Validate(t *Table) error {
	const op = "time_bucket"
	col, ok := t.Column(s.Column)
	if !ok {
		return ColumnConfigErrorf(op, s.Column, "time column not in table")
	}
	if !col.Type.Temporal() {
		return ColumnConfigErrorf(op, s.Column, "time column is %s, want int or date", col.Type)
	}
	if len(s.Ranges) == 0 && s.Size < 1 {
		return ColumnConfigErrorf(op, s.Column, "bucket size %d, want >= 1", s.Size)
	}
	for i, r := range s.Ranges {
		if r.Start > r.End {
			return ColumnConfigErrorf(op, s.Column, "range %d starts after it ends", i)
		}
		for j := 0; j < i; j++ {
			prev := s.Ranges[j]
			if r.Start <= prev.End && prev.Start <= r.End {
				return ColumnConfigErrorf(op, s.Column, "ranges %d and %d overlap", j, i)
			}
		}
	}
	return nil
}

// Bucket places a year, reporting false when no bucket holds it.
func (s TimeBucketSpec) Bucket(year int) (TimeBucket, bool) {
	if len(s.Ranges) > 0 {
		for _, r := range s.Ranges {
			if r.Contains(year) {
				return r, true
			}
		}
		return TimeBucket{}, false
	}
	offset := year - s.Origin
	start := s.Origin + floorDiv(offset, s.Size)*s.Size
	return TimeBucket{Start: start, End: start + s.Size - 1}, true
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
