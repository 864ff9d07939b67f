package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ghg-data-pipeline/internal/model"
)

// Derivation operation names, as they appear in reports.
const (
	OpPerCapita        = "per_capita"
	OpPerArea          = "per_area"
	OpPercentageChange = "percentage_change"
)

// KtToTonnes converts kilotonnes to tonnes, the usual per-capita factor.
const KtToTonnes = 1000.0

// DeriveOptions tunes ratio derivations. A zero Factor means 1.
type DeriveOptions struct {
	Factor float64
	Strict bool
}

// DerivationResult is the new table plus a validity flag per row.
type DerivationResult struct {
	Table  *model.Table
	Column string
	Valid  []bool
	// ZeroBase lists rows whose previous value was zero (percentage change only).
	ZeroBase []int
}

// Derived counts rows that received a value.
func (r *DerivationResult) Derived() int {
	n := 0
	for _, ok := range r.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Missing counts rows left null.
func (r *DerivationResult) Missing() int { return len(r.Valid) - r.Derived() }

// Summary renders the result for a pipeline report.
func (r *DerivationResult) Summary(op string) model.DerivationSummary {
	return model.NewDerivationSummary(r.Column, op, len(r.Valid), r.Derived(), len(r.ZeroBase))
}

// DerivePerCapita sets out = numerator / population * factor where population > 0, else null.
func DerivePerCapita(t *model.Table, numerator, population, out string, opts DeriveOptions) (*DerivationResult, error) {
	return deriveRatio(OpPerCapita, t, numerator, population, out, opts)
}

// DerivePerArea sets out = numerator / area * factor where area > 0, else null.
func DerivePerArea(t *model.Table, numerator, area, out string, opts DeriveOptions) (*DerivationResult, error) {
	return deriveRatio(OpPerArea, t, numerator, area, out, opts)
}

func deriveRatio(op string, t *model.Table, numerator, denominator, out string, opts DeriveOptions) (*DerivationResult, error) {
	if t == nil {
		return nil, model.TransformErrorf(op, out, "no table supplied")
	}
	if err := requireNumeric(op, t, numerator, denominator); err != nil {
		return nil, err
	}
	if err := checkOutput(op, out, numerator, denominator); err != nil {
		return nil, err
	}
	if opts.Strict && t.Len() == 0 {
		return nil, model.TransformErrorf(op, numerator, "strict mode requires a non-empty table")
	}
	factor := opts.Factor
	if factor == 0 {
		factor = 1
	}
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, model.TransformErrorf(op, out, "invalid unit factor %v", opts.Factor)
	}

	values := make([]interface{}, t.Len())
	valid := make([]bool, t.Len())
	for row := 0; row < t.Len(); row++ {
		num, okNum := t.Float(row, numerator)
		den, okDen := t.Float(row, denominator)
		if !okNum || !okDen || den <= 0 {
			continue
		}
		v := num / den * factor
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values[row] = v
		valid[row] = true
	}

	derived, err := t.WithColumn(model.Column{Name: out, Type: model.TypeFloat}, values)
	if err != nil {
		return nil, err
	}
	return &DerivationResult{Table: derived, Column: out, Valid: valid}, nil
}

// DerivePercentageChange sets out = (current - previous) / previous * 100 within each
// group ordered by timeCol. The first row of a group, rows with a null value or time,
// and rows whose previous value is null get null. A zero previous value also gives null
// and the row is listed in ZeroBase. Rows sharing a time keep input order.
func DerivePercentageChange(t *model.Table, value, timeCol string, groupCols []string, out string) (*DerivationResult, error) {
	const op = OpPercentageChange
	if t == nil {
		return nil, model.TransformErrorf(op, out, "no table supplied")
	}
	if err := requireNumeric(op, t, value); err != nil {
		return nil, err
	}
	tc, ok := t.Column(timeCol)
	if !ok {
		return nil, model.TransformErrorf(op, timeCol, "time column not in table")
	}
	if !tc.Type.Temporal() {
		return nil, model.TransformErrorf(op, timeCol, "time column is %s, want int or date", tc.Type)
	}
	for _, g := range groupCols {
		if !t.HasColumn(g) {
			return nil, model.TransformErrorf(op, g, "group column not in table")
		}
	}
	if err := checkOutput(op, out, append([]string{value, timeCol}, groupCols...)...); err != nil {
		return nil, err
	}

	groups := map[string][]int{}
	var order []string
	for row := 0; row < t.Len(); row++ {
		if t.IsNull(row, timeCol) {
			continue
		}
		key := groupKey(t, row, groupCols)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	values := make([]interface{}, t.Len())
	valid := make([]bool, t.Len())
	var zeroBase []int
	for _, key := range order {
		rows := groups[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return timeOrdinal(t.Value(rows[i], timeCol)) < timeOrdinal(t.Value(rows[j], timeCol))
		})
		for i := 1; i < len(rows); i++ {
			cur, okCur := t.Float(rows[i], value)
			prev, okPrev := t.Float(rows[i-1], value)
			if !okCur || !okPrev {
				continue
			}
			if prev == 0 {
				zeroBase = append(zeroBase, rows[i])
				continue
			}
			values[rows[i]] = (cur - prev) / prev * 100
			valid[rows[i]] = true
		}
	}
	sort.Ints(zeroBase)

	derived, err := t.WithColumn(model.Column{Name: out, Type: model.TypeFloat}, values)
	if err != nil {
		return nil, err
	}
	return &DerivationResult{Table: derived, Column: out, Valid: valid, ZeroBase: zeroBase}, nil
}

func requireNumeric(op string, t *model.Table, columns ...string) error {
	for _, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			return model.TransformErrorf(op, name, "column not in table")
		}
		if !col.Type.Numeric() {
			return model.TransformErrorf(op, name, "column is %s, not numeric", col.Type)
		}
	}
	return nil
}

func checkOutput(op, out string, sources ...string) error {
	if out == "" {
		return model.TransformErrorf(op, "", "no output column named")
	}
	for _, s := range sources {
		if s == out {
			return model.TransformErrorf(op, out, "output would overwrite a source column")
		}
	}
	return nil
}

func timeOrdinal(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case time.Time:
		return x.Unix()
	}
	return 0
}

// groupKey encodes a row's group values; the type tag keeps "1" and 1 apart.
func groupKey(t *model.Table, row int, cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range cols {
		v := t.Value(row, c)
		if d, ok := v.(time.Time); ok {
			v = d.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%T:%q\x1f", v, fmt.Sprint(v))
	}
	return b.String()
}
