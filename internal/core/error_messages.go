package core

// # Error Codes Reference
//
// MapError classifies failures for server-side logs. Codes never reach the
// HTTP response body; an operator reading a 500 in the access log looks up
// the batch_id and finds the code beside it.
//
// # Database Errors (DB001-DB099)
//
// Classified by SQLSTATE when the error chain holds a *pgconn.PgError:
//
//	DB001 - Unique violation (23505)
//	DB002 - Foreign key violation (23503)
//	DB003 - Not null violation (23502)
//	DB004 - Other integrity constraint (class 23)
//	DB005 - Undefined table (42P01)
//	DB006 - Undefined column (42703)
//	DB007 - Data exception, a value the column type rejects (class 22, 42804)
//	DB008 - Syntax error, usually a bad column type in create-table (42601)
//	DB009 - Deadlock or serialization failure (class 40)
//	DB010 - Connection failure (class 08, or a refused/reset dial)
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled by the client
//	REQ002 - Request deadline exceeded
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logged error text.

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorClass is the log classification of a failure.
type ErrorClass struct {
	Code    string // Stable code for support reference
	Message string // Short description
}

var (
	classUnique       = ErrorClass{Code: "DB001", Message: "duplicate value for a unique column"}
	classForeignKey   = ErrorClass{Code: "DB002", Message: "referenced row does not exist"}
	classNotNull      = ErrorClass{Code: "DB003", Message: "required column is null"}
	classConstraint   = ErrorClass{Code: "DB004", Message: "constraint violated"}
	classNoTable      = ErrorClass{Code: "DB005", Message: "table does not exist"}
	classNoColumn     = ErrorClass{Code: "DB006", Message: "column does not exist"}
	classBadValue     = ErrorClass{Code: "DB007", Message: "value rejected by column type"}
	classSyntax       = ErrorClass{Code: "DB008", Message: "statement syntax error"}
	classConflict     = ErrorClass{Code: "DB009", Message: "conflicting concurrent transaction"}
	classConnection   = ErrorClass{Code: "DB010", Message: "database connection failed"}
	classCancelled    = ErrorClass{Code: "REQ001", Message: "request cancelled"}
	classDeadline     = ErrorClass{Code: "REQ002", Message: "request timed out"}
	defaultErrorClass = ErrorClass{Code: "ERR000", Message: "unexpected error"}
)

// errorPattern maps a lowercase substring of an error's text to a class.
// Used when no SQLSTATE is available. The first match wins.
type errorPattern struct {
	pattern string
	class   ErrorClass
}

var errorPatterns = []errorPattern{
	{"duplicate key", classUnique},
	{"violates unique", classUnique},
	{"violates foreign key", classForeignKey},
	{"violates not-null", classNotNull},
	{"does not exist", classNoTable},
	{"connection refused", classConnection},
	{"connection reset", classConnection},
	{"deadlock", classConflict},
	{"context canceled", classCancelled},
	{"context deadline exceeded", classDeadline},
}

// MapError classifies err. A nil error yields the zero ErrorClass.
func MapError(err error) ErrorClass {
	if err == nil {
		return ErrorClass{}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if c, ok := classifySQLState(pgErr.Code); ok {
			return c
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return classCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return classDeadline
	}

	msg := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(msg, ep.pattern) {
			return ep.class
		}
	}

	return defaultErrorClass
}

func classifySQLState(code string) (ErrorClass, bool) {
	switch code {
	case pgerrcode.UniqueViolation:
		return classUnique, true
	case pgerrcode.ForeignKeyViolation:
		return classForeignKey, true
	case pgerrcode.NotNullViolation:
		return classNotNull, true
	case pgerrcode.UndefinedTable:
		return classNoTable, true
	case pgerrcode.UndefinedColumn:
		return classNoColumn, true
	case pgerrcode.DatatypeMismatch:
		return classBadValue, true
	case pgerrcode.SyntaxError:
		return classSyntax, true
	case pgerrcode.QueryCanceled:
		return classCancelled, true
	}

	switch {
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return classConstraint, true
	case pgerrcode.IsDataException(code):
		return classBadValue, true
	case pgerrcode.IsTransactionRollback(code):
		return classConflict, true
	case pgerrcode.IsConnectionException(code):
		return classConnection, true
	}

	return ErrorClass{}, false
}
