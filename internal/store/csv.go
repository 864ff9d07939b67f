package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ghg-data-pipeline/internal/model"
	"ghg-data-pipeline/pkg/utils"
)

// ReadCSV reads a headed CSV into a table. With columns given, each declared column must
// appear in the header and extra header columns are dropped. With columns nil, every header
// column is kept and typed as int, float or string from its non-blank cells.
func ReadCSV(r io.Reader, columns []model.Column) (*model.Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.ConfigErrorf("read_csv", "empty CSV, no header row")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, h := range header {
		// Clean header names: strip any UTF-8 BOM and stray quotes
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	var cells [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV read error at line %d: %w", len(cells)+2, err)
		}
		cells = append(cells, rec)
	}

	if columns == nil {
		columns = inferColumns(header, cells)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	for _, c := range columns {
		if _, ok := pos[c.Name]; !ok {
			return nil, model.ColumnConfigErrorf("read_csv", c.Name, "column not in CSV header")
		}
	}

	rows := make([][]interface{}, len(cells))
	for i, rec := range cells {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			v := strings.TrimSpace(rec[pos[c.Name]])
			if v != "" {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return model.NewTableFromRows(columns, rows)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, columns []model.Column) (*model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, columns)
}

func inferColumns(header []string, cells [][]string) []model.Column {
	columns := make([]model.Column, 0, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		typ := model.TypeInt
		for _, rec := range cells {
			switch utils.ParseValue(rec[i]).(type) {
			case nil, int64:
			case float64:
				typ = model.TypeFloat
			default:
				typ = model.TypeString
			}
			if typ == model.TypeString {
				break
			}
		}
		columns = append(columns, model.Column{Name: h, Type: typ})
	}
	return columns
}
