package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
)

const (
	bristol      = "E06000023"
	southGlos    = "E06000025"
	westOfEng    = "E47000009"
	unknownLA    = "E06000022"
	bristolMSOA  = "E02003043"
	southGlosMSO = "E02006889"
)

func testLookup(t *testing.T) *geo.Lookup {
	t.Helper()
	l, err := geo.NewLookupFromEdges([]geo.Edge{
		{Child: "BS1 1AA", ChildLevel: geo.Postcode, Parent: "E01014540", ParentLevel: geo.LSOA},
		{Child: "E01014540", ChildLevel: geo.LSOA, Parent: bristolMSOA, ParentLevel: geo.MSOA},
		{Child: "E01014541", ChildLevel: geo.LSOA, Parent: bristolMSOA, ParentLevel: geo.MSOA},
		{Child: "E01014542", ChildLevel: geo.LSOA, Parent: bristolMSOA, ParentLevel: geo.MSOA},
		{Child: "E01033348", ChildLevel: geo.LSOA, Parent: southGlosMSO, ParentLevel: geo.MSOA},
		{Child: bristolMSOA, ChildLevel: geo.MSOA, Parent: bristol, ParentLevel: geo.LA},
		{Child: southGlosMSO, ChildLevel: geo.MSOA, Parent: southGlos, ParentLevel: geo.LA},
		{Child: bristol, ChildLevel: geo.LA, Parent: westOfEng, ParentLevel: geo.CA},
		{Child: southGlos, ChildLevel: geo.LA, Parent: westOfEng, ParentLevel: geo.CA},
	})
	require.NoError(t, err)
	return l
}

var lsoaColumns = []model.Column{
	{Name: "lsoa_code", Type: model.TypeString},
	{Name: "emissions", Type: model.TypeFloat},
	{Name: "population", Type: model.TypeFloat},
}

func lsoaTable(t *testing.T, rows ...[]interface{}) *model.Table {
	t.Helper()
	tbl, err := model.NewTableFromRows(lsoaColumns, rows)
	require.NoError(t, err)
	return tbl
}

func emissionsTable(t *testing.T, records ...model.Record) *model.Table {
	t.Helper()
	schema, err := SchemaFor(model.KindEmissions)
	require.NoError(t, err)
	tbl, err := model.NewTable(schema, records)
	require.NoError(t, err)
	return tbl
}

func emissionsRecord(la string, year int, sector string, kt, pop, area float64) model.Record {
	return model.Record{
		ColLACode:       la,
		ColCalendarYear: year,
		ColSector:       sector,
		ColEmissions:    kt,
		ColPopulation:   pop,
		ColArea:         area,
	}
}

func column(t *testing.T, tbl *model.Table, name string) []interface{} {
	t.Helper()
	require.True(t, tbl.HasColumn(name), "missing column %s", name)
	out := make([]interface{}, tbl.Len())
	for i := range out {
		out[i] = tbl.Value(i, name)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
