package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/tablegate/internal/core"
	"github.com/JonMunkholm/tablegate/internal/logging"
)

// handleCreateTable creates a table from {tableName, columns:[{name,type}]}.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	const missing = "Table name and columns are required"

	var req CreateTableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeText(w, http.StatusBadRequest, missing)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		if topLevelMissing(err) {
			writeText(w, http.StatusBadRequest, missing)
			return
		}
		writeText(w, http.StatusBadRequest, translateValidation(err, s.trans))
		return
	}

	if err := s.service.CreateTable(r.Context(), req.TableName, req.Columns); err != nil {
		s.respondError(w, r, err, fmt.Sprintf("Error creating table %s", req.TableName))
		return
	}
	writeText(w, http.StatusCreated, fmt.Sprintf("Table %s created successfully", req.TableName))
}

// handleDeleteTable drops a table if it exists.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)

	if err := s.service.DeleteTable(r.Context(), table); err != nil {
		s.respondError(w, r, err, fmt.Sprintf("Error deleting table %s", table))
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Table %s deleted successfully", table))
}

// handleUpdateTable applies a keyed update batch given as a JSON array of records.
func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)

	var rows []core.Record
	if err := decodeJSON(r, &rows); err != nil || len(rows) == 0 {
		writeText(w, http.StatusBadRequest, "Invalid data format.")
		return
	}

	res, err := s.service.UpdateBatch(r.Context(), table, rows)
	if err != nil {
		s.respondError(w, r, err, "Error updating table data")
		return
	}

	logging.FromContext(r.Context()).Debug("update batch done", "batch_id", res.BatchID.String(), "rows", res.Rows)
	writeText(w, http.StatusOK, "Table data updated successfully")
}

// uploadRequest is the JSON body of POST /upload/{tableName}.
type uploadRequest struct {
	Data []core.Record `json:"data"`
}

// handleUpload inserts a batch given either as {data:[...]} or as a CSV body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	const noData = "No data to upload."
	table := tableParam(r)

	var (
		res core.BatchResult
		err error
	)

	if isCSV(r) {
		res, err = s.service.InsertCSV(r.Context(), table, r.Body)
	} else {
		var req uploadRequest
		if decErr := decodeJSON(r, &req); decErr != nil || len(req.Data) == 0 {
			writeText(w, http.StatusBadRequest, noData)
			return
		}
		res, err = s.service.InsertBatch(r.Context(), table, req.Data)
	}

	if err != nil {
		s.respondError(w, r, err, "Failed to upload data.")
		return
	}

	logging.FromContext(r.Context()).Debug("insert batch done", "batch_id", res.BatchID.String(), "rows", res.Rows)
	writeText(w, http.StatusOK, "Data uploaded successfully!")
}
