package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablegate/internal/config"
	"github.com/JonMunkholm/tablegate/internal/core"
)

const listTablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            5000,
			ShutdownTimeout: time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Security: config.SecurityConfig{CORSAllowedOrigins: []string{"*"}},
		Rate:     config.RateLimitConfig{RequestsPerMinute: 100},
		SQL:      config.SQLConfig{IdentifierPolicy: "quote"},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

// newTestServer returns a server over an exact-match pgxmock pool.
func newTestServer(t *testing.T, cfg *config.Config) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(
		pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual),
	)
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	svc, err := core.NewService(mock, core.Options{IdentifierPolicy: cfg.SQL.IdentifierPolicy})
	require.NoError(t, err)

	srv := NewServer(svc, cfg)
	t.Cleanup(func() {
		if srv.limiter != nil {
			srv.limiter.Stop()
		}
	})
	return srv, mock
}

func do(srv *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestListTables(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(listTablesSQL).
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("people"))

	rec := do(srv, http.MethodGet, "/tables", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["orders","people"]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables_Failure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(listTablesSQL).WillReturnError(errors.New("connection refused"))

	rec := do(srv, http.MethodGet, "/tables", "", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching table names", rec.Body.String())
}

func TestTableData(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "people"`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "id"}).AddRow("Ann", int64(1)))

	rec := do(srv, http.MethodGet, "/table-data/people", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[{\"name\":\"Ann\",\"id\":1}]\n", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableData_EscapedName(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "my table"`).WillReturnRows(pgxmock.NewRows([]string{"id"}))

	rec := do(srv, http.MethodGet, "/table-data/my%20table", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableData_NonFiniteFloat(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "scores"`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "score", "ratio", "low"}).
			AddRow(int64(1), math.NaN(), float32(math.Inf(1)), math.Inf(-1)).
			AddRow(int64(2), 1.5, float32(0.25), -2.0))

	rec := do(srv, http.MethodGet, "/table-data/scores", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`[{"id":1,"score":null,"ratio":null,"low":null},{"id":2,"score":1.5,"ratio":0.25,"low":-2}]`,
		rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tables", nil)

	writeJSON(rec, req, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error encoding response", rec.Body.String())
	assert.NotEqual(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTableData_Failure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "ghost"`).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "ghost" does not exist`})

	rec := do(srv, http.MethodGet, "/table-data/ghost", "", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching data from ghost", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestCreateTable(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expectSQL  string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "creates table",
			body:       `{"tableName":"t1","columns":[{"name":"id","type":"integer"},{"name":"name","type":"text"}]}`,
			expectSQL:  `CREATE TABLE IF NOT EXISTS "t1" ("id" integer, "name" text)`,
			wantStatus: http.StatusCreated,
			wantBody:   "Table t1 created successfully",
		},
		{
			name:       "empty column list",
			body:       `{"tableName":"t2","columns":[]}`,
			expectSQL:  `CREATE TABLE IF NOT EXISTS "t2" ()`,
			wantStatus: http.StatusCreated,
			wantBody:   "Table t2 created successfully",
		},
		{
			name:       "missing columns",
			body:       `{"tableName":"t1"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Table name and columns are required",
		},
		{
			name:       "missing table name",
			body:       `{"columns":[{"name":"id","type":"integer"}]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Table name and columns are required",
		},
		{
			name:       "malformed body",
			body:       `{"tableName":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Table name and columns are required",
		},
		{
			name:       "column without type",
			body:       `{"tableName":"t1","columns":[{"name":"id"}]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "type is a required field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, mock := newTestServer(t, testConfig())
			if tt.expectSQL != "" {
				mock.ExpectExec(tt.expectSQL).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
			}

			rec := do(srv, http.MethodPost, "/create-table", "application/json", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateTable_EngineFailure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "t1" ("id" nonsense)`).
		WillReturnError(&pgconn.PgError{Code: "42704", Message: `type "nonsense" does not exist`})

	rec := do(srv, http.MethodPost, "/create-table", "application/json",
		`{"tableName":"t1","columns":[{"name":"id","type":"nonsense"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error creating table t1", rec.Body.String())
}

func TestCreateTable_StrictPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.SQL.IdentifierPolicy = "strict"
	srv, mock := newTestServer(t, cfg)

	rec := do(srv, http.MethodPost, "/create-table", "application/json",
		`{"tableName":"bad name","columns":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid identifier")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTable(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectExec(`DROP TABLE IF EXISTS "t1"`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "t1"`).WillReturnError(errors.New("lock timeout"))

	rec := do(srv, http.MethodDelete, "/delete-table/t1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Table t1 deleted successfully", rec.Body.String())

	rec = do(srv, http.MethodDelete, "/delete-table/t1", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error deleting table t1", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTable(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "people" SET "updateField" = $2 WHERE "id" = $1`).
		WithArgs(int64(1), "Ann2").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rec := do(srv, http.MethodPut, "/update-table/people", "application/json",
		`[{"id":1,"updateField":"Ann2"}]`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Table data updated successfully", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTable_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"not an array", `{"id":1}`, "Invalid data format."},
		{"empty array", `[]`, "Invalid data format."},
		{"row is not an object", `[1]`, "Invalid data format."},
		{"null row", `[null]`, "Invalid data format."},
		{"missing updateField", `[{"id":1,"updateField":"x"},{"id":2}]`, "row 1: No unique columns or update fields specified."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, mock := newTestServer(t, testConfig())

			rec := do(srv, http.MethodPut, "/update-table/people", "application/json", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateTable_RowFailure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "people" SET "updateField" = $2 WHERE "id" = $1`).
		WithArgs(int64(1), "Ann2").
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "updateField" does not exist`})
	mock.ExpectRollback()

	rec := do(srv, http.MethodPut, "/update-table/people", "application/json",
		`[{"id":1,"updateField":"Ann2"},{"id":2,"updateField":"Bob2"}]`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error updating table data (row 0)", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_JSON(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	sql := `INSERT INTO "people" ("id", "name") VALUES ($1, $2)`
	mock.ExpectBegin()
	mock.ExpectExec(sql).WithArgs(int64(1), "Ann").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sql).WithArgs(int64(2), "Bob").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec := do(srv, http.MethodPost, "/upload/people", "application/json",
		`{"data":[{"id":1,"name":"Ann"},{"id":2,"name":"Bob"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Data uploaded successfully!", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_RowFailure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	sql := `INSERT INTO "people" ("id", "name") VALUES ($1, $2)`
	mock.ExpectBegin()
	mock.ExpectExec(sql).WithArgs(int64(1), "Ann").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sql).WithArgs(int64(1), "Dup").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	rec := do(srv, http.MethodPost, "/upload/people", "application/json",
		`{"data":[{"id":1,"name":"Ann"},{"id":1,"name":"Dup"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to upload data. (row 1)", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "duplicate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_NoData(t *testing.T) {
	for _, body := range []string{`{}`, `{"data":[]}`, `{"data":[null]}`, `not json`} {
		srv, mock := newTestServer(t, testConfig())

		rec := do(srv, http.MethodPost, "/upload/people", "application/json", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "No data to upload.", rec.Body.String(), body)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestUpload_CSV(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	sql := `INSERT INTO "people" ("id", "name") VALUES ($1, $2)`
	mock.ExpectBegin()
	mock.ExpectExec(sql).WithArgs("1", "Ann").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec := do(srv, http.MethodPost, "/upload/people", "text/csv; charset=utf-8", "\xEF\xBB\xBFid,name\n1,Ann\n")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Data uploaded successfully!", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_EmptyCSV(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(srv, http.MethodPost, "/upload/people", "text/csv", "id,name\n")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No data to upload.", rec.Body.String())
}

func TestExportTable(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "people"`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Ann").
			AddRow(int64(2), nil))

	rec := do(srv, http.MethodGet, "/export/people", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "people_")
	assert.Equal(t, "id,name\n1,Ann\n2,\n", rec.Body.String())
}

func TestExportTable_Failure(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(`SELECT * FROM "ghost"`).WillReturnError(errors.New(`relation "ghost" does not exist`))

	rec := do(srv, http.MethodGet, "/export/ghost", "", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching data from ghost", rec.Body.String())
}

func TestHealth(t *testing.T) {
	srv, mock := newTestServer(t, testConfig())
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	rec := do(srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv, mock := newTestServer(t, cfg)
	mock.ExpectQuery(listTablesSQL).WillReturnRows(pgxmock.NewRows([]string{"table_name"}))
	mock.ExpectPing()

	rec := do(srv, http.MethodGet, "/tables", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = do(srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 1
	srv, mock := newTestServer(t, cfg)
	mock.ExpectQuery(listTablesSQL).WillReturnRows(pgxmock.NewRows([]string{"table_name"}))

	rec := do(srv, http.MethodGet, "/tables", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/tables", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/upload/people", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// requestFailedLevel returns the level of the "request failed" log line.
func requestFailedLevel(t *testing.T, logs *bytes.Buffer) string {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "request failed" {
			return entry["level"].(string)
		}
	}
	t.Fatal("no request failed line logged")
	return ""
}

func TestRespondError_LogLevel(t *testing.T) {
	t.Run("batch failure logged once at error", func(t *testing.T) {
		logs := captureLogs(t)
		srv, mock := newTestServer(t, testConfig())
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "people" ("id") VALUES ($1)`).WithArgs(int64(1)).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		rec := do(srv, http.MethodPost, "/upload/people", "application/json", `{"data":[{"id":1}]}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "DEBUG", requestFailedLevel(t, logs))
		assert.Contains(t, logs.String(), "batch rolled back")
	})

	t.Run("catalog failure logged at error", func(t *testing.T) {
		logs := captureLogs(t)
		srv, mock := newTestServer(t, testConfig())
		mock.ExpectQuery(listTablesSQL).WillReturnError(errors.New("connection refused"))

		rec := do(srv, http.MethodGet, "/tables", "", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "ERROR", requestFailedLevel(t, logs))
	})
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Failed to upload data.", failureMessage("Failed to upload data.", -1))
	assert.Equal(t, "Failed to upload data. (row 3)", failureMessage("Failed to upload data.", 3))
}
