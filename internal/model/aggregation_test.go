package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := EmptyTable([]Column{
		{Name: "la_code", Type: TypeString},
		{Name: "sector", Type: TypeString},
		{Name: "year", Type: TypeInt},
		{Name: "lodged", Type: TypeDate},
		{Name: "emissions", Type: TypeFloat},
		{Name: "population", Type: TypeFloat},
	})
	require.NoError(t, err)
	return tbl
}

func TestAggOpJSON(t *testing.T) {
	var spec AggregationSpec
	require.NoError(t, json.Unmarshal([]byte(`{
		"group_by": ["sector"],
		"aggregations": [{"column": "emissions", "op": "AVG"}, {"column": "emissions", "op": "sum", "as": "total"}]
	}`), &spec))
	assert.Equal(t, OpMean, spec.Aggregations[0].Op)
	assert.Equal(t, "emissions_mean", spec.Aggregations[0].OutputName())
	assert.Equal(t, "total", spec.Aggregations[1].OutputName())
}

func TestAggregationSpecValidate(t *testing.T) {
	tbl := aggTable(t)
	valid := AggregationSpec{
		GroupBy: []string{"sector"},
		Aggregations: []AggColumn{
			{Column: "emissions", Op: OpSum},
			{Column: "emissions", Op: OpMax},
			{Column: "sector", Op: OpCount},
		},
		Ratios: []RatioMetric{{Column: "per_capita", Numerator: "emissions", Denominator: "population"}},
	}
	require.NoError(t, valid.Validate(tbl, "la_code"))

	tests := []struct {
		name string
		spec AggregationSpec
		keys []string
	}{
		{"unknown op", AggregationSpec{Aggregations: []AggColumn{{Column: "emissions", Op: "median"}}}, nil},
		{"missing column", AggregationSpec{Aggregations: []AggColumn{{Column: "nope", Op: OpSum}}}, nil},
		{"sum of text", AggregationSpec{Aggregations: []AggColumn{{Column: "sector", Op: OpSum}}}, nil},
		{"duplicate op", AggregationSpec{Aggregations: []AggColumn{
			{Column: "emissions", Op: OpSum}, {Column: "emissions", Op: OpSum, As: "other"},
		}}, nil},
		{"output clash", AggregationSpec{Aggregations: []AggColumn{
			{Column: "emissions", Op: OpSum, As: "x"}, {Column: "population", Op: OpSum, As: "x"},
		}}, nil},
		{"clash with key", AggregationSpec{Aggregations: []AggColumn{{Column: "emissions", Op: OpSum, As: "la_code"}}}, []string{"la_code"}},
		{"clash with row count", AggregationSpec{Aggregations: []AggColumn{{Column: "emissions", Op: OpSum, As: RowCountColumn}}}, nil},
		{"group by missing", AggregationSpec{GroupBy: []string{"nope"}}, nil},
		{"op on ratio", AggregationSpec{
			Ratios:       []RatioMetric{{Column: "emissions", Numerator: "emissions", Denominator: "population"}},
			Aggregations: []AggColumn{{Column: "emissions", Op: OpMean}},
		}, nil},
		{"ratio over text", AggregationSpec{Ratios: []RatioMetric{{Column: "r", Numerator: "sector", Denominator: "population"}}}, nil},
		{"ratio without name", AggregationSpec{Ratios: []RatioMetric{{Numerator: "emissions", Denominator: "population"}}}, nil},
		{"negative factor", AggregationSpec{Ratios: []RatioMetric{{Column: "r", Numerator: "emissions", Denominator: "population", Factor: -1}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(tbl, tt.keys...)
			require.Error(t, err)
			assert.True(t, IsConfiguration(err))
		})
	}
}

func TestMassColumns(t *testing.T) {
	spec := AggregationSpec{
		Aggregations: []AggColumn{{Column: "emissions", Op: OpSum}, {Column: "sector", Op: OpCount}},
		Ratios:       []RatioMetric{{Column: "r", Numerator: "emissions", Denominator: "population"}},
	}
	assert.Equal(t, []string{"emissions", "population"}, spec.MassColumns(aggTable(t)))
}

func TestRatioApply(t *testing.T) {
	r := RatioMetric{Factor: 1000}
	assert.Equal(t, 100.0, r.Apply(30, 300, true))
	assert.Nil(t, r.Apply(30, 0, true))
	assert.Nil(t, r.Apply(30, -1, true))
	assert.Nil(t, r.Apply(0, 300, false))
	assert.Equal(t, 0.1, RatioMetric{}.Apply(30, 300, true))
}

func TestTimeBucketSpec(t *testing.T) {
	tbl := aggTable(t)

	fixed := TimeBucketSpec{Column: "year", Size: 5, Origin: 2000}
	require.NoError(t, fixed.Validate(tbl))
	b, ok := fixed.Bucket(2013)
	require.True(t, ok)
	assert.Equal(t, TimeBucket{Start: 2010, End: 2014}, b)
	b, _ = fixed.Bucket(1998)
	assert.Equal(t, TimeBucket{Start: 1995, End: 1999}, b)

	ranges := TimeBucketSpec{Column: "lodged", Ranges: []TimeBucket{{2008, 2014}, {2015, 2023}}}
	require.NoError(t, ranges.Validate(tbl))
	b, ok = ranges.Bucket(2015)
	require.True(t, ok)
	assert.Equal(t, 2023, b.End)
	_, ok = ranges.Bucket(2030)
	assert.False(t, ok)

	for _, bad := range []TimeBucketSpec{
		{Column: "nope", Size: 1},
		{Column: "sector", Size: 1},
		{Column: "year"},
		{Column: "year", Ranges: []TimeBucket{{2010, 2005}}},
		{Column: "year", Ranges: []TimeBucket{{2005, 2010}, {2010, 2015}}},
	} {
		assert.True(t, IsConfiguration(bad.Validate(tbl)), "%+v", bad)
	}
}
