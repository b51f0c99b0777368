package core

import (
	"context"
	"database/sql/driver"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tablegate/internal/logging"
)

// ListTables returns the names of the tables in the public schema, sorted.
func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	st := s.build.listTables()

	rows, err := s.db.Query(ctx, st.SQL)
	if err != nil {
		return nil, &ExecutionError{Op: OpListTables, Row: -1, Err: err}
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &ExecutionError{Op: OpListTables, Row: -1, Err: err}
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ReadTable returns every row of table in engine order. Column order follows
// the table definition. The result is never nil.
func (s *Service) ReadTable(ctx context.Context, table string) ([]Record, error) {
	var columns []string
	out := []Record{}

	err := s.StreamTable(ctx, table,
		func(cols []string) error {
			columns = cols
			return nil
		},
		func(values []any) error {
			rec := make(Record, len(columns))
			for i, col := range columns {
				rec[i] = Field{Name: col, Value: jsonValue(values[i])}
			}
			out = append(out, rec)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StreamTable runs the same query as ReadTable and hands the column names to
// onColumns once, then each row to onRow. UUID values arrive as canonical
// strings. An error from either callback stops the scan and is returned.
func (s *Service) StreamTable(ctx context.Context, table string, onColumns func([]string) error, onRow func([]any) error) error {
	if table == "" {
		return invalid("Table name is required")
	}
	st, err := s.build.selectAll(table)
	if err != nil {
		return err
	}

	rows, err := s.db.Query(ctx, st.SQL)
	if err != nil {
		return &ExecutionError{Op: OpReadTable, Table: table, Row: -1, Err: err}
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	columns := make([]string, len(fds))
	for i, fd := range fds {
		columns[i] = fd.Name
	}
	if err := onColumns(columns); err != nil {
		return err
	}

	n := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return &ExecutionError{Op: OpReadTable, Table: table, Row: n, Err: err}
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		if err := onRow(values); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return &ExecutionError{Op: OpReadTable, Table: table, Row: -1, Err: err}
	}

	logging.FromContext(ctx).Debug("table read", "table", table, "rows", n)
	return nil
}

// CreateTable creates table with the given columns unless it already exists.
// Column types are passed through verbatim; an empty column list is allowed.
func (s *Service) CreateTable(ctx context.Context, table string, columns []ColumnSpec) error {
	if table == "" {
		return invalid("Table name and columns are required")
	}
	st, err := s.build.createTable(table, columns)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, st.SQL); err != nil {
		return &ExecutionError{Op: OpCreateTable, Table: table, Row: -1, Err: err}
	}

	logging.FromContext(ctx).Info("table created", "table", table, "columns", len(columns))
	return nil
}

// DeleteTable drops table if it exists.
func (s *Service) DeleteTable(ctx context.Context, table string) error {
	if table == "" {
		return invalid("Table name is required")
	}
	st, err := s.build.dropTable(table)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, st.SQL); err != nil {
		return &ExecutionError{Op: OpDropTable, Table: table, Row: -1, Err: err}
	}

	logging.FromContext(ctx).Info("table dropped", "table", table)
	return nil
}

// Ping checks that the pool can reach the database.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return &ExecutionError{Op: OpPing, Row: -1, Err: err}
	}
	return nil
}

// normalizeValue renders engine values that do not encode usefully as JSON.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]uint8:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

// jsonValue maps values JSON cannot represent to null. NaN and the
// infinities are valid float4/float8 values.
func jsonValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return v
}

// FormatCell renders a value read from the engine as CSV cell text.
// NULL becomes the empty string.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case [16]uint8:
		return uuid.UUID(t).String()
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return FormatCell(dv)
	default:
		return fmt.Sprint(v)
	}
}
