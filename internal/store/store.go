package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ghg-data-pipeline/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run id has no stored report.
var ErrNotFound = errors.New("run not found")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const runsTable = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	passed BOOLEAN NOT NULL,
	rows_in INTEGER NOT NULL,
	rows_out INTEGER NOT NULL,
	rows_dropped INTEGER NOT NULL,
	rows_flagged INTEGER NOT NULL,
	unresolved INTEGER NOT NULL,
	report TEXT NOT NULL,
	output TEXT,
	created_at TIMESTAMP NOT NULL
)`

// Store persists run reports and materializes tables from a sqlite3 or postgres database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string    `db:"id" json:"id"`
	Kind        string    `db:"kind" json:"kind"`
	Passed      bool      `db:"passed" json:"passed"`
	RowsIn      int       `db:"rows_in" json:"rows_in"`
	RowsOut     int       `db:"rows_out" json:"rows_out"`
	RowsDropped int       `db:"rows_dropped" json:"rows_dropped"`
	RowsFlagged int       `db:"rows_flagged" json:"rows_flagged"`
	Unresolved  int       `db:"unresolved" json:"unresolved"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Run is a stored report together with the table the run produced.
type Run struct {
	RunSummary
	Report *model.PipelineReport `json:"report"`
	Output *model.Table          `json:"output,omitempty"`
}

type runRow struct {
	RunSummary
	Report string         `db:"report"`
	Output sql.NullString `db:"output"`
}

// Open connects with the given driver ("sqlite3" or "postgres") and creates the runs table.
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(runsTable); err != nil {
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection is still usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SaveRun stores a report and its output table. Run ids are deterministic, so saving the
// same run twice keeps the first copy.
func (s *Store) SaveRun(ctx context.Context, report *model.PipelineReport, output *model.Table) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("failed to save run: report has no run id")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var outputJSON sql.NullString
	if output != nil {
		b, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("failed to encode output table: %w", err)
		}
		outputJSON = sql.NullString{String: string(b), Valid: true}
	}

	unresolved := 0
	if report.Unresolved != nil {
		unresolved = report.Unresolved.Rows
	}
	query := s.db.Rebind(`INSERT INTO pipeline_runs
		(id, kind, passed, rows_in, rows_out, rows_dropped, rows_flagged, unresolved, report, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	_, err = s.db.ExecContext(ctx, query,
		report.RunID, string(report.Kind), report.Passed, report.RowsIn, report.RowsOut,
		report.RowsDropped, report.RowsFlagged, unresolved, string(reportJSON), outputJSON, s.now())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}
	return nil
}

// GetRun fetches a stored run; ErrNotFound when the id is unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	query := s.db.Rebind(`SELECT id, kind, passed, rows_in, rows_out, rows_dropped, rows_flagged,
		unresolved, report, output, created_at FROM pipeline_runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	run := &Run{RunSummary: row.RunSummary, Report: &model.PipelineReport{}}
	if err := json.Unmarshal([]byte(row.Report), run.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report for run %s: %w", id, err)
	}
	if row.Output.Valid {
		run.Output = &model.Table{}
		if err := json.Unmarshal([]byte(row.Output.String), run.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output for run %s: %w", id, err)
		}
	}
	return run, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	runs := []RunSummary{}
	err := s.db.SelectContext(ctx, &runs, `SELECT id, kind, passed, rows_in, rows_out, rows_dropped,
		rows_flagged, unresolved, created_at FROM pipeline_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// LoadTable runs query and materializes the result. With columns given, those declarations
// are used and result columns outside them are ignored; a declared column the query does not
// return is null in every row. With columns nil, types are inferred from the driver's
// column types.
func (s *Store) LoadTable(ctx context.Context, query string, columns []model.Column, args ...interface{}) (*model.Table, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query table: %w", err)
	}
	defer rows.Close()

	if columns == nil {
		types, err := rows.ColumnTypes()
		if err != nil {
			return nil, fmt.Errorf("failed to read column types: %w", err)
		}
		for _, ct := range types {
			columns = append(columns, model.Column{Name: ct.Name(), Type: inferType(ct.DatabaseTypeName())})
		}
	}
	declared := make(map[string]bool, len(columns))
	for _, c := range columns {
		declared[c.Name] = true
	}

	var records []model.Record
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records), err)
		}
		rec := make(model.Record, len(columns))
		for k, v := range raw {
			if declared[k] {
				rec[k] = v
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return model.NewTable(columns, records)
}

// inferType maps a driver type name onto a column type; unknown names become strings.
func inferType(dbType string) model.ColumnType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "INT"):
		return model.TypeInt
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return model.TypeFloat
	case strings.Contains(t, "BOOL"):
		return model.TypeBool
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIMESTAMP"):
		return model.TypeDate
	default:
		return model.TypeString
	}
}

// ReplaceTable drops name and recreates it from t, all in one transaction.
func (s *Store) ReplaceTable(ctx context.Context, name string, t *model.Table) error {
	if !identPattern.MatchString(name) {
		return model.ConfigErrorf("replace_table", "invalid table name %q", name)
	}
	cols := t.Columns()
	defs := make([]string, len(cols))
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		if !identPattern.MatchString(c.Name) {
			return model.ColumnConfigErrorf("replace_table", c.Name, "invalid column name")
		}
		defs[i] = c.Name + " " + sqlType(c.Type)
		names[i] = c.Name
		marks[i] = "?"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	insert := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(names, ", "), strings.Join(marks, ", ")))
	for i := 0; i < t.Len(); i++ {
		args := make([]interface{}, len(cols))
		for j, c := range cols {
			args[j] = t.Value(i, c.Name)
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

func sqlType(t model.ColumnType) string {
	switch t {
	case model.TypeInt:
		return "INTEGER"
	case model.TypeFloat:
		return "DOUBLE PRECISION"
	case model.TypeBool:
		return "BOOLEAN"
	case model.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}
