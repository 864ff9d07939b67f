package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghg-data-pipeline/internal/model"
)

func TestDerivePerCapita(t *testing.T) {
	tbl := lsoaTable(t,
		[]interface{}{"E01014540", 10.0, 100.0},
		[]interface{}{"E01014541", 20.0, 200.0},
		[]interface{}{"E01014542", nil, 150.0},
	)

	res, err := DerivePerCapita(tbl, "emissions", "population", "per_capita", DeriveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{0.1, 0.1, nil}, column(t, res.Table, "per_capita"))
	assert.Equal(t, []bool{true, true, false}, res.Valid)
	assert.Equal(t, 2, res.Derived())
	assert.Equal(t, 1, res.Missing())
	assert.Equal(t, "1 of 3 rows had no derived value for per_capita", res.Summary(OpPerCapita).Message)

	assert.False(t, tbl.HasColumn("per_capita"), "input table is untouched")
}

func TestDerivePerCapitaInvalidDenominators(t *testing.T) {
	tbl := lsoaTable(t,
		[]interface{}{"E01014540", 10.0, 0.0},
		[]interface{}{"E01014541", 10.0, -5.0},
		[]interface{}{"E01014542", 10.0, nil},
		[]interface{}{"E01033348", 2.5, 2.0},
	)
	res, err := DerivePerCapita(tbl, "emissions", "population", "per_capita", DeriveOptions{Factor: KtToTonnes})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil, nil, nil, 1250.0}, column(t, res.Table, "per_capita"))
	assert.Equal(t, 3, res.Missing())
}

func TestDerivePerArea(t *testing.T) {
	tbl := emissionsTable(t,
		emissionsRecord(bristol, 2021, "Transport", 220, 470, 110),
		emissionsRecord(southGlos, 2021, "Transport", 0, 290, 0),
	)
	res, err := DerivePerArea(tbl, ColEmissions, ColArea, "emissions_per_km2", DeriveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.0, nil}, column(t, res.Table, "emissions_per_km2"))
}

func TestDeriveErrors(t *testing.T) {
	tbl := lsoaTable(t, []interface{}{"E01014540", 10.0, 100.0})

	tests := []struct {
		name string
		run  func() error
	}{
		{"missing numerator", func() error {
			_, err := DerivePerCapita(tbl, "nope", "population", "out", DeriveOptions{})
			return err
		}},
		{"missing denominator", func() error {
			_, err := DerivePerArea(tbl, "emissions", "area", "out", DeriveOptions{})
			return err
		}},
		{"non numeric", func() error {
			_, err := DerivePerCapita(tbl, "lsoa_code", "population", "out", DeriveOptions{})
			return err
		}},
		{"overwrites source", func() error {
			_, err := DerivePerCapita(tbl, "emissions", "population", "emissions", DeriveOptions{})
			return err
		}},
		{"strict on empty", func() error {
			_, err := DerivePerCapita(lsoaTable(t), "emissions", "population", "out", DeriveOptions{Strict: true})
			return err
		}},
		{"negative factor", func() error {
			_, err := DerivePerCapita(tbl, "emissions", "population", "out", DeriveOptions{Factor: -1})
			return err
		}},
		{"percentage change missing time", func() error {
			_, err := DerivePercentageChange(tbl, "emissions", "year", nil, "out")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, model.IsTransformation(err), err.Error())
		})
	}
}

func TestDeriveOnEmptyTable(t *testing.T) {
	res, err := DerivePerCapita(lsoaTable(t), "emissions", "population", "per_capita", DeriveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.True(t, res.Table.HasColumn("per_capita"))
}

func TestDerivePercentageChange(t *testing.T) {
	tbl := emissionsTable(t,
		emissionsRecord(bristol, 2021, "Transport", 110, 1, 1),
		emissionsRecord(bristol, 2020, "Transport", 100, 1, 1),
		emissionsRecord(southGlos, 2020, "Transport", 50, 1, 1),
		emissionsRecord(bristol, 2022, "Transport", 0, 1, 1),
		emissionsRecord(bristol, 2023, "Transport", 40, 1, 1),
	)

	res, err := DerivePercentageChange(tbl, ColEmissions, ColCalendarYear, []string{ColLACode}, "pct_change")
	require.NoError(t, err)

	got := column(t, res.Table, "pct_change")
	require.Len(t, got, 5)
	assert.InDelta(t, 10.0, got[0], 1e-9)
	assert.Nil(t, got[1], "first year in group")
	assert.Nil(t, got[2], "single-row group")
	assert.InDelta(t, -100.0, got[3], 1e-9)
	assert.Nil(t, got[4], "zero previous value")
	assert.Equal(t, []int{4}, res.ZeroBase)
	assert.Equal(t, 1, res.Summary(OpPercentageChange).ZeroBase)
}

func TestDerivePercentageChangeSingleRow(t *testing.T) {
	tbl := emissionsTable(t, emissionsRecord(bristol, 2021, "Transport", 110, 1, 1))
	res, err := DerivePercentageChange(tbl, ColEmissions, ColCalendarYear, nil, "pct_change")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil}, column(t, res.Table, "pct_change"))
	assert.Equal(t, 0, res.Derived())
}

func TestDerivePercentageChangeNullPrevious(t *testing.T) {
	tbl, err := model.NewTableFromRows([]model.Column{
		{Name: "year", Type: model.TypeInt},
		{Name: "value", Type: model.TypeFloat},
	}, [][]interface{}{{2019, 10.0}, {2020, nil}, {2021, 20.0}, {nil, 5.0}})
	require.NoError(t, err)

	res, err := DerivePercentageChange(tbl, "value", "year", nil, "pct")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil, nil, nil, nil}, column(t, res.Table, "pct"))
}
