package web

// Shared helpers used across handlers.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablegate/internal/logging"
)

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// writeJSON encodes v as a 200 JSON response. v is encoded before any
// header is sent so an encoding failure still becomes a 500.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "path", r.URL.Path, "error", err)
		writeText(w, http.StatusInternalServerError, "Error encoding response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// tableParam returns the decoded {tableName} path segment.
// chi routes on RawPath when the path holds escapes, leaving them in the parameter.
func tableParam(r *http.Request) string {
	name := chi.URLParam(r, "tableName")
	if r.URL.RawPath != "" {
		if dec, err := url.PathUnescape(name); err == nil {
			name = dec
		}
	}
	return name
}

// decodeJSON decodes the request body into v, rejecting trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

// isCSV reports whether the request body is declared as CSV.
func isCSV(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "text/csv" || mt == "application/csv"
}
