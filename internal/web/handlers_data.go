package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/tablegate/internal/core"
	"github.com/JonMunkholm/tablegate/internal/logging"
)

// handleHealth reports whether the database answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("health check failed", "error", err)
		writeText(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// handleListTables returns the public table names as a JSON array.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err, "Error fetching table names")
		return
	}
	writeJSON(w, r, names)
}

// handleTableData returns every row of a table as a JSON array of objects.
func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)

	rows, err := s.service.ReadTable(r.Context(), table)
	if err != nil {
		s.respondError(w, r, err, fmt.Sprintf("Error fetching data from %s", table))
		return
	}
	writeJSON(w, r, rows)
}

// exportFlushInterval is the number of rows written between flushes.
const exportFlushInterval = 1000

// handleExportTable streams a table as CSV. Errors before the first byte is
// written get a normal error response; later errors can only be logged.
func (s *Server) handleExportTable(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)
	csvWriter := csv.NewWriter(w)
	started := false
	rowCount := 0

	err := s.service.StreamTable(r.Context(), table,
		func(columns []string) error {
			filename := fmt.Sprintf("%s_%s.csv", table, time.Now().Format("20060102_150405"))
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			w.WriteHeader(http.StatusOK)
			started = true
			return csvWriter.Write(columns)
		},
		func(values []any) error {
			record := make([]string, len(values))
			for i, v := range values {
				record[i] = core.FormatCell(v)
			}
			if err := csvWriter.Write(record); err != nil {
				return err
			}

			rowCount++
			if rowCount%exportFlushInterval == 0 {
				csvWriter.Flush()
				if err := csvWriter.Error(); err != nil {
					return err
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
			return nil
		},
	)

	if !started {
		if err != nil {
			s.respondError(w, r, err, fmt.Sprintf("Error fetching data from %s", table))
		}
		return
	}

	csvWriter.Flush()
	if err == nil {
		err = csvWriter.Error()
	}
	if err != nil && !errors.Is(err, r.Context().Err()) {
		logging.FromContext(r.Context()).Error("export aborted",
			"table", table,
			"rows", rowCount,
			"error", err,
		)
	}
}
