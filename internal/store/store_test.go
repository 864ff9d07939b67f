package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testReport(id string, kind model.DatasetKind) *model.PipelineReport {
	return &model.PipelineReport{
		RunID: id,
		Kind:  kind,
		ValidationReport: model.NewValidationReport([]model.ValidationResult{
			{Check: "schema", Passed: true, Severity: model.SeverityInfo, Message: "ok"},
		}),
		RowsIn:      3,
		RowsOut:     2,
		RowsDropped: 1,
		Unresolved:  &model.UnresolvedReport{Rows: 1, Codes: []string{"E06000022"}},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	out, err := model.NewTable(
		[]model.Column{{Name: "la_code", Type: model.TypeString}, {Name: "emissions_sum", Type: model.TypeFloat}},
		[]model.Record{{"la_code": "E06000023", "emissions_sum": 30.0}},
	)
	require.NoError(t, err)

	require.NoError(t, s.SaveRun(ctx, testReport("run-1", model.KindEmissions), out))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "emissions", run.Kind)
	assert.True(t, run.Passed)
	assert.Equal(t, 3, run.RowsIn)
	assert.Equal(t, 1, run.RowsDropped)
	assert.Equal(t, 1, run.Unresolved)
	assert.Equal(t, model.KindEmissions, run.Report.Kind)
	assert.Equal(t, []string{"E06000023"}, stringColumn(run.Output, "la_code"))
	f, ok := run.Output.Float(0, "emissions_sum")
	require.True(t, ok)
	assert.Equal(t, 30.0, f)
}

func stringColumn(t *model.Table, col string) []string {
	var out []string
	for i := 0; i < t.Len(); i++ {
		s, _ := t.String(i, col)
		out = append(out, s)
	}
	return out
}

func TestSaveRunKeepsFirstCopy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, testReport("run-1", model.KindEmissions), nil))
	second := testReport("run-1", model.KindEmissions)
	second.RowsIn = 99
	require.NoError(t, s.SaveRun(ctx, second, nil))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, run.RowsIn)
	assert.Nil(t, run.Output)
}

func TestSaveRunRequiresID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.SaveRun(context.Background(), &model.PipelineReport{}, nil))
	assert.Error(t, s.SaveRun(context.Background(), nil, nil))
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.NoError(t, s.SaveRun(ctx, testReport(id, model.KindEPCDomestic), nil))
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)
	assert.Equal(t, "epc_domestic", runs[1].Kind)
}

func TestListRunsEmpty(t *testing.T) {
	s := openTestStore(t)
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
}

func TestReplaceAndLoadLookupTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lookup, err := model.NewTable(geo.LookupColumns, []model.Record{
		{"child_code": "E01014485", "child_level": "lsoa", "parent_code": "E06000023", "parent_level": "la"},
		{"child_code": "E06000023", "child_level": "la", "parent_code": "E47000009", "parent_level": "ca"},
	})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceTable(ctx, "geography_lookup", lookup))
	// Replacing twice leaves a single copy.
	require.NoError(t, s.ReplaceTable(ctx, "geography_lookup", lookup))

	loaded, err := s.LoadTable(ctx,
		"SELECT child_code, child_level, parent_code, parent_level FROM geography_lookup ORDER BY child_code",
		geo.LookupColumns)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	l, err := geo.NewLookup(loaded)
	require.NoError(t, err)
	parent, ok := l.Ancestor("E01014485", geo.LSOA, geo.CA)
	require.True(t, ok)
	assert.Equal(t, "E47000009", parent)
}

func TestLoadTableInfersTypes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src, err := model.NewTable([]model.Column{
		{Name: "local_authority_code", Type: model.TypeString},
		{Name: "calendar_year", Type: model.TypeInt},
		{Name: "territorial_emissions_kt_co2e", Type: model.TypeFloat},
	}, []model.Record{
		{"local_authority_code": "E06000023", "calendar_year": 2021, "territorial_emissions_kt_co2e": 12.5},
		{"local_authority_code": "E06000025", "calendar_year": 2022},
	})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceTable(ctx, "emissions", src))

	loaded, err := s.LoadTable(ctx, "SELECT * FROM emissions WHERE calendar_year >= ? ORDER BY calendar_year", nil, 2021)
	require.NoError(t, err)
	assert.Equal(t, src.Columns(), loaded.Columns())
	require.Equal(t, 2, loaded.Len())
	year, ok := loaded.Year(1, "calendar_year")
	require.True(t, ok)
	assert.Equal(t, 2022, year)
	assert.True(t, loaded.IsNull(1, "territorial_emissions_kt_co2e"))
}

func TestLoadTableDeclaredColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src, err := model.NewTable([]model.Column{
		{Name: "a", Type: model.TypeInt},
		{Name: "b", Type: model.TypeString},
	}, []model.Record{{"a": 1, "b": "x"}})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceTable(ctx, "t", src))

	loaded, err := s.LoadTable(ctx, "SELECT a, b FROM t", []model.Column{
		{Name: "a", Type: model.TypeFloat},
		{Name: "c", Type: model.TypeString},
	})
	require.NoError(t, err)
	f, ok := loaded.Float(0, "a")
	require.True(t, ok)
	assert.Equal(t, 1.0, f)
	assert.False(t, loaded.HasColumn("b"))
	assert.True(t, loaded.IsNull(0, "c"))
}

func TestReplaceTableRejectsBadNames(t *testing.T) {
	s := openTestStore(t)
	tbl, err := model.EmptyTable([]model.Column{{Name: "a", Type: model.TypeInt}})
	require.NoError(t, err)

	err = s.ReplaceTable(context.Background(), "x; DROP TABLE pipeline_runs", tbl)
	assert.True(t, model.IsConfiguration(err))

	bad, err := model.EmptyTable([]model.Column{{Name: "a b", Type: model.TypeInt}})
	require.NoError(t, err)
	err = s.ReplaceTable(context.Background(), "ok", bad)
	assert.True(t, model.IsConfiguration(err))
}

func TestInferType(t *testing.T) {
	cases := map[string]model.ColumnType{
		"INTEGER":          model.TypeInt,
		"INT8":             model.TypeInt,
		"REAL":             model.TypeFloat,
		"DOUBLE PRECISION": model.TypeFloat,
		"FLOAT8":           model.TypeFloat,
		"NUMERIC":          model.TypeFloat,
		"BOOL":             model.TypeBool,
		"DATE":             model.TypeDate,
		"TIMESTAMP":        model.TypeDate,
		"TEXT":             model.TypeString,
		"VARCHAR":          model.TypeString,
		"":                 model.TypeString,
	}
	for in, want := range cases {
		assert.Equal(t, want, inferType(in), in)
	}
}

func TestReadCSVInfersColumns(t *testing.T) {
	in := "\ufeffla_code, \"calendar_year\",emissions,sector\n" +
		"E06000023,2021,12.5,Transport\n" +
		"E06000025,2022,,Domestic\n"

	tbl, err := ReadCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Column{
		{Name: "la_code", Type: model.TypeString},
		{Name: "calendar_year", Type: model.TypeInt},
		{Name: "emissions", Type: model.TypeFloat},
		{Name: "sector", Type: model.TypeString},
	}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.IsNull(1, "emissions"))
	s, _ := tbl.String(0, "la_code")
	assert.Equal(t, "E06000023", s)
}

func TestReadCSVDeclaredColumns(t *testing.T) {
	in := "child_code,child_level,parent_code,parent_level,extra\n" +
		"E01014485,lsoa,E06000023,la,ignored\n"

	tbl, err := ReadCSV(strings.NewReader(in), geo.LookupColumns)
	require.NoError(t, err)
	assert.Equal(t, geo.LookupColumns, tbl.Columns())
	assert.Equal(t, 1, tbl.Len())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), nil)
	assert.True(t, model.IsConfiguration(err))

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"), []model.Column{{Name: "c", Type: model.TypeInt}})
	assert.True(t, model.IsConfiguration(err))

	_, err = ReadCSV(strings.NewReader("a\nnot-a-number\n"), []model.Column{{Name: "a", Type: model.TypeInt}})
	assert.True(t, model.IsConfiguration(err))

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"), nil)
	assert.Error(t, err)
}

func TestReadCSVFileMissing(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "nope.csv"), nil)
	assert.Error(t, err)
}
