package pipeline

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
)

// Output columns for time aggregation.
const (
	ColPeriodStart = "period_start"
	ColPeriodEnd   = "period_end"
)

// SectorTaxonomy is the canonical sector list plus aliases mapping upstream spellings
// onto it. Matching ignores case and surrounding space.
type SectorTaxonomy struct {
	Sectors []string          `json:"sectors"`
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Validate checks that sectors are unique and every alias targets a sector.
func (s *SectorTaxonomy) Validate() error {
	const op = "sector_taxonomy"
	if s == nil || len(s.Sectors) == 0 {
		return model.ConfigErrorf(op, "no sectors defined")
	}
	known := make(map[string]bool, len(s.Sectors))
	for _, sec := range s.Sectors {
		k := foldSector(sec)
		if k == "" {
			return model.ConfigErrorf(op, "empty sector name")
		}
		if known[k] {
			return model.ConfigErrorf(op, "sector %q listed twice", sec)
		}
		known[k] = true
	}
	for alias, target := range s.Aliases {
		if !known[foldSector(target)] {
			return model.ConfigErrorf(op, "alias %q targets unknown sector %q", alias, target)
		}
	}
	return nil
}

// ParseTaxonomy decodes and validates a JSON taxonomy.
func ParseTaxonomy(data []byte) (*SectorTaxonomy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var tax SectorTaxonomy
	if err := dec.Decode(&tax); err != nil {
		return nil, model.WrapConfig("parse_taxonomy", err)
	}
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	return &tax, nil
}

// Canonical maps a raw sector value onto the taxonomy.
func (s *SectorTaxonomy) Canonical(raw string) (string, bool) {
	if s == nil {
		return "", false
	}
	k := foldSector(raw)
	for _, sec := range s.Sectors {
		if foldSector(sec) == k {
			return sec, true
		}
	}
	for alias, target := range s.Aliases {
		if foldSector(alias) == k {
			return s.Canonical(target)
		}
	}
	return "", false
}

// Vocabulary lists the accepted raw spellings, sorted.
func (s *SectorTaxonomy) Vocabulary() []string {
	if s == nil {
		return nil
	}
	out := append([]string(nil), s.Sectors...)
	for alias := range s.Aliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

func foldSector(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// AggregateResult is an aggregated table plus disclosure of the rows it could not place.
type AggregateResult struct {
	Table      *model.Table           `json:"table"`
	Unresolved model.UnresolvedReport `json:"unresolved"`
	InputRows  int                    `json:"input_rows"`
	Groups     int                    `json:"groups"`
}

// Aggregator reduces groups on a bounded set of workers.
type Aggregator struct {
	workers int
}

func NewAggregator(workers int) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{workers: workers}
}

// keyFunc places a row: the leading key values, or the code that failed to resolve.
type keyFunc func(row int) (key []interface{}, unresolved string, ok bool)

// AggregateGeography rolls rows up from the codes in codeColumn (at level from) to
// their ancestors at level to. Rows whose code does not resolve are excluded from
// totals and disclosed in the unresolved report.
func (a *Aggregator) AggregateGeography(t *model.Table, codeColumn string, from, to geo.Level, lookup *geo.Lookup, spec model.AggregationSpec) (*AggregateResult, error) {
	const op = "aggregate_geography"
	if t == nil {
		return nil, model.ConfigErrorf(op, "no table supplied")
	}
	if !from.Valid() || !to.Valid() || !from.Finer(to) {
		return nil, model.ConfigErrorf(op, "level %s is not finer than %s", from, to)
	}
	if lookup == nil {
		return nil, model.ConfigErrorf(op, "no geography lookup supplied")
	}
	col, ok := t.Column(codeColumn)
	if !ok {
		return nil, model.ColumnConfigErrorf(op, codeColumn, "code column not in table")
	}
	if col.Type != model.TypeString {
		return nil, model.ColumnConfigErrorf(op, codeColumn, "code column is %s, want string", col.Type)
	}
	keyCol := model.Column{Name: to.CodeColumn(), Type: model.TypeString}
	if err := spec.Validate(t, keyCol.Name); err != nil {
		return nil, err
	}

	return a.aggregate(t, []model.Column{keyCol}, spec, func(row int) ([]interface{}, string, bool) {
		code, ok := t.String(row, codeColumn)
		if !ok {
			return nil, "", false
		}
		ancestor, ok := lookup.Ancestor(code, from, to)
		if !ok {
			return nil, geo.NormalizeCode(from, code), false
		}
		return []interface{}{ancestor}, "", true
	})
}

// AggregateTime groups rows into the buckets of buckets.Column. Rows with a null year
// or a year outside every explicit range are disclosed as unresolved.
func (a *Aggregator) AggregateTime(t *model.Table, buckets model.TimeBucketSpec, spec model.AggregationSpec) (*AggregateResult, error) {
	const op = "aggregate_time"
	if t == nil {
		return nil, model.ConfigErrorf(op, "no table supplied")
	}
	if err := buckets.Validate(t); err != nil {
		return nil, err
	}
	keyCols := []model.Column{
		{Name: ColPeriodStart, Type: model.TypeInt},
		{Name: ColPeriodEnd, Type: model.TypeInt},
	}
	if err := spec.Validate(t, ColPeriodStart, ColPeriodEnd); err != nil {
		return nil, err
	}

	return a.aggregate(t, keyCols, spec, func(row int) ([]interface{}, string, bool) {
		year, ok := t.Year(row, buckets.Column)
		if !ok {
			return nil, "", false
		}
		b, ok := buckets.Bucket(year)
		if !ok {
			return nil, strconv.Itoa(year), false
		}
		return []interface{}{int64(b.Start), int64(b.End)}, "", true
	})
}

// AggregateSector groups rows by the canonical sector of sectorColumn. Further
// geography or time grouping comes from spec.GroupBy. Sectors outside the taxonomy
// are disclosed as unresolved.
func (a *Aggregator) AggregateSector(t *model.Table, sectorColumn string, taxonomy *SectorTaxonomy, spec model.AggregationSpec) (*AggregateResult, error) {
	const op = "aggregate_sector"
	if t == nil {
		return nil, model.ConfigErrorf(op, "no table supplied")
	}
	if taxonomy == nil {
		return nil, model.ConfigErrorf(op, "no sector taxonomy supplied")
	}
	if err := taxonomy.Validate(); err != nil {
		return nil, err
	}
	col, ok := t.Column(sectorColumn)
	if !ok {
		return nil, model.ColumnConfigErrorf(op, sectorColumn, "sector column not in table")
	}
	if col.Type != model.TypeString {
		return nil, model.ColumnConfigErrorf(op, sectorColumn, "sector column is %s, want string", col.Type)
	}
	if err := spec.Validate(t, sectorColumn); err != nil {
		return nil, err
	}

	keyCol := model.Column{Name: sectorColumn, Type: model.TypeString}
	return a.aggregate(t, []model.Column{keyCol}, spec, func(row int) ([]interface{}, string, bool) {
		raw, ok := t.String(row, sectorColumn)
		if !ok {
			return nil, "", false
		}
		sector, ok := taxonomy.Canonical(raw)
		if !ok {
			return nil, raw, false
		}
		return []interface{}{sector}, "", true
	})
}

type group struct {
	key  []interface{}
	rows []int
}

func (a *Aggregator) aggregate(t *model.Table, keyCols []model.Column, spec model.AggregationSpec, keyOf keyFunc) (*AggregateResult, error) {
	massCols := spec.MassColumns(t)
	unresolved := model.UnresolvedReport{Mass: map[string]float64{}}
	for _, c := range massCols {
		unresolved.Mass[c] = 0
	}
	var unresolvedRows []int
	codes := map[string]bool{}

	groups := map[string]*group{}
	for row := 0; row < t.Len(); row++ {
		key, code, ok := keyOf(row)
		if !ok {
			unresolvedRows = append(unresolvedRows, row)
			if code != "" {
				codes[code] = true
			}
			for _, c := range massCols {
				if v, ok := t.Float(row, c); ok {
					unresolved.Mass[c] += v
				}
			}
			continue
		}
		for _, g := range spec.GroupBy {
			key = append(key, t.Value(row, g))
		}
		id := encodeKey(key)
		g, exists := groups[id]
		if !exists {
			g = &group{key: key}
			groups[id] = g
		}
		g.rows = append(g.rows, row)
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return compareKeys(ordered[i].key, ordered[j].key) < 0 })

	columns := append([]model.Column(nil), keyCols...)
	for _, g := range spec.GroupBy {
		col, _ := t.Column(g)
		columns = append(columns, col)
	}
	columns = append(columns, model.Column{Name: model.RowCountColumn, Type: model.TypeInt})
	for _, agg := range spec.Aggregations {
		typ := model.TypeFloat
		if agg.Op == model.OpCount {
			typ = model.TypeInt
		}
		columns = append(columns, model.Column{Name: agg.OutputName(), Type: typ})
	}
	for _, r := range spec.Ratios {
		columns = append(columns, model.Column{Name: r.Column, Type: model.TypeFloat})
	}

	rows := make([][]interface{}, len(ordered))
	var eg errgroup.Group
	eg.SetLimit(a.workers)
	for i, g := range ordered {
		i, g := i, g
		eg.Go(func() error {
			rows[i] = reduceGroup(t, g, spec, len(columns))
			return nil
		})
	}
	_ = eg.Wait()

	out, err := model.NewTableFromRows(columns, rows)
	if err != nil {
		return nil, err
	}

	unresolved.Rows = len(unresolvedRows)
	unresolved.Sample = model.Sample(unresolvedRows)
	unresolved.Codes = sortedKeys(codes)
	if len(unresolved.Mass) == 0 {
		unresolved.Mass = nil
	}
	return &AggregateResult{Table: out, Unresolved: unresolved, InputRows: t.Len(), Groups: len(ordered)}, nil
}

// reduceGroup walks the group's rows in input order so float sums are reproducible.
func reduceGroup(t *model.Table, g *group, spec model.AggregationSpec, width int) []interface{} {
	row := make([]interface{}, 0, width)
	row = append(row, g.key...)
	row = append(row, int64(len(g.rows)))

	for _, agg := range spec.Aggregations {
		if agg.Op == model.OpCount {
			n := 0
			for _, r := range g.rows {
				if !t.IsNull(r, agg.Column) {
					n++
				}
			}
			row = append(row, int64(n))
			continue
		}
		vals := make([]float64, 0, len(g.rows))
		for _, r := range g.rows {
			if v, ok := t.Float(r, agg.Column); ok {
				vals = append(vals, v)
			}
		}
		row = append(row, reduce(agg.Op, vals))
	}

	for _, ratio := range spec.Ratios {
		// Only rows carrying both sides contribute.
		var num, den float64
		paired := false
		for _, r := range g.rows {
			n, okN := t.Float(r, ratio.Numerator)
			d, okD := t.Float(r, ratio.Denominator)
			if !okN || !okD {
				continue
			}
			num += n
			den += d
			paired = true
		}
		row = append(row, ratio.Apply(num, den, paired))
	}
	return row
}

func reduce(op model.AggOp, vals []float64) interface{} {
	if len(vals) == 0 {
		return nil
	}
	switch op {
	case model.OpSum:
		return floats.Sum(vals)
	case model.OpMean:
		return floats.Sum(vals) / float64(len(vals))
	case model.OpMin:
		return floats.Min(vals)
	case model.OpMax:
		return floats.Max(vals)
	}
	return nil
}

func encodeKey(key []interface{}) string {
	var b strings.Builder
	for _, v := range key {
		if d, ok := v.(time.Time); ok {
			v = d.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%T:%q\x1f", v, fmt.Sprint(v))
	}
	return b.String()
}

// compareKeys orders keys column by column; nulls sort first.
func compareKeys(a, b []interface{}) int {
	for i := range a {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
