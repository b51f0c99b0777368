package core

// csv.go turns an uploaded CSV stream into insert records.
//
// The stream is decoded through golang.org/x/text so a UTF-8 byte order mark
// is dropped and invalid UTF-8 is replaced with U+FFFD before the CSV reader
// sees it. Spreadsheet exports often wrap cells as ="value"; CleanCell undoes
// that.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// InsertCSV inserts the rows of a CSV document into table using the same
// protocol as InsertBatch. The first row names the columns; empty cells bind
// NULL.
func (s *Service) InsertCSV(ctx context.Context, table string, r io.Reader) (BatchResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return BatchResult{}, err
	}
	return s.InsertBatch(ctx, table, rows)
}

// ParseCSV reads a header row and the data rows that follow it. Blank lines
// are skipped. A short row binds NULL for its missing cells.
func ParseCSV(r io.Reader) ([]Record, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("No data to upload.")
	}
	if err != nil {
		return nil, invalid(fmt.Sprintf("invalid csv: %v", err))
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = CleanCell(h)
	}

	var rows []Record
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid(fmt.Sprintf("invalid csv: %v", err))
		}
		if isEmptyRow(rec) {
			continue
		}

		row := make(Record, 0, len(columns))
		for i, col := range columns {
			var v any
			if i < len(rec) {
				if cell := CleanCell(rec[i]); cell != "" {
					v = cell
				}
			}
			row = row.Set(col, v)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, invalid("No data to upload.")
	}
	return rows, nil
}

// CleanCell trims whitespace and strips the ="..." wrapper spreadsheet
// programs add to keep values textual.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		return s[2 : len(s)-1]
	}
	return s
}

func isEmptyRow(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
