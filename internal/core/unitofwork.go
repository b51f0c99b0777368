package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/tablegate/internal/logging"
)

// runInTx executes stmts in order inside one transaction on one pooled
// connection. The first failing statement rolls the transaction back and its
// index is returned with the engine error. Begin and commit failures return
// index -1. The connection goes back to the pool on every path.
func runInTx(ctx context.Context, db DB, stmts []Statement) (int, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return -1, fmt.Errorf("begin transaction: %w", err)
	}

	for i, st := range stmts {
		if _, err := tx.Exec(ctx, st.SQL, st.Args...); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logging.FromContext(ctx).Warn("rollback failed", "error", rbErr, "row", i)
			}
			return i, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return -1, fmt.Errorf("commit transaction: %w", err)
	}
	return -1, nil
}
