package web

// errors.go maps service errors to plain-text responses.
//
//  1. *core.ValidationError -> 400 with the validation message
//  2. anything else         -> 500 with the route's failure text, plus
//     " (row N)" when a single row is at fault
//
// The engine's error text stays in the server log beside its MapError code.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tablegate/internal/core"
	"github.com/JonMunkholm/tablegate/internal/logging"
)

// respondError writes err as a plain-text response. failure is the message
// the route uses for execution errors.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	logger := logging.FromContext(r.Context())

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		logger.Warn("request rejected",
			"path", r.URL.Path,
			"method", r.Method,
			"reason", ve.Error(),
		)
		writeText(w, http.StatusBadRequest, ve.Error())
		return
	}

	class := core.MapError(err)
	row := core.FailedRow(err)

	// Batch failures are already logged by the service with their batch ID.
	level := slog.LevelError
	if core.IsBatchError(err) {
		level = slog.LevelDebug
	}
	logger.Log(r.Context(), level, "request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"code", class.Code,
		"class", class.Message,
		"row", row,
		"error", err,
	)

	writeText(w, http.StatusInternalServerError, failureMessage(failure, row))
}

func failureMessage(failure string, row int) string {
	if row < 0 {
		return failure
	}
	return fmt.Sprintf("%s (row %d)", failure, row)
}
