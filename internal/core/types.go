package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the database surface the service needs.
// Satisfied by *pgxpool.Pool and pgxmock.PgxPoolIface.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// ReservedUpdateField is the record key holding the new value in an update
// batch. Every other key of the record is a match condition.
const ReservedUpdateField = "updateField"

// ColumnSpec describes one column of a table to create.
// Type is passed to the engine verbatim.
type ColumnSpec struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// BatchResult reports a committed bulk write.
type BatchResult struct {
	BatchID uuid.UUID // Correlates the batch's log lines
	Rows    int       // Statements executed, one per input row
}

// Op names a service operation in errors and logs.
type Op string

const (
	OpListTables  Op = "list tables"
	OpReadTable   Op = "read table"
	OpCreateTable Op = "create table"
	OpDropTable   Op = "drop table"
	OpInsert      Op = "insert"
	OpUpdate      Op = "update"
	OpPing        Op = "ping"
)
