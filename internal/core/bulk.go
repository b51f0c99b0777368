package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tablegate/internal/logging"
)

// InsertBatch inserts rows into table in one transaction. The column list is
// taken from rows[0]. Either every row is committed or none is.
func (s *Service) InsertBatch(ctx context.Context, table string, rows []Record) (BatchResult, error) {
	if len(rows) == 0 {
		return BatchResult{}, invalid("No data to upload.")
	}
	if table == "" {
		return BatchResult{}, invalid("Table name is required")
	}

	stmts, err := s.build.insert(table, rows)
	if err != nil {
		return BatchResult{}, err
	}
	return s.runBatch(ctx, OpInsert, table, stmts)
}

// UpdateBatch applies one keyed update per row in one transaction. Every row
// must carry ReservedUpdateField and at least one other key; a row that does
// not fails the whole batch before the transaction begins.
func (s *Service) UpdateBatch(ctx context.Context, table string, rows []Record) (BatchResult, error) {
	if len(rows) == 0 {
		return BatchResult{}, invalid("Invalid data format.")
	}
	if table == "" {
		return BatchResult{}, invalid("Table name is required")
	}

	stmts, err := s.build.update(table, rows)
	if err != nil {
		return BatchResult{}, err
	}
	return s.runBatch(ctx, OpUpdate, table, stmts)
}

// runBatch executes stmts as one unit of work and logs the outcome under a
// fresh batch ID.
func (s *Service) runBatch(ctx context.Context, op Op, table string, stmts []Statement) (BatchResult, error) {
	result := BatchResult{BatchID: uuid.New()}
	log := logging.WithFields(ctx,
		"batch_id", result.BatchID.String(),
		"table", table,
		"op", string(op),
	)

	start := time.Now()
	failedAt, err := runInTx(ctx, s.db, stmts)
	if err != nil {
		class := MapError(err)
		log.Error("batch rolled back",
			"row", failedAt,
			"rows", len(stmts),
			"code", class.Code,
			"reason", class.Message,
			"error", err,
		)
		return BatchResult{}, &ExecutionError{Op: op, Table: table, Row: failedAt, Err: err}
	}

	result.Rows = len(stmts)
	log.Info("batch committed", "rows", result.Rows, "duration", time.Since(start))
	return result, nil
}
