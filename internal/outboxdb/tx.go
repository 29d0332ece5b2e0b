package outboxdb

import (
	"context"

	"github.com/uptrace/bun"
)

// RunInTxWithReturnType runs fn in a transaction, committing only when fn succeeds.
func RunInTxWithReturnType[T any](ctx context.Context, db *bun.DB, fn func(tx bun.Tx) (T, error)) (T, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return *new(T), err
	}

	var committed bool
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result, err := fn(tx)
	if err != nil {
		return *new(T), err
	}

	if err := tx.Commit(); err != nil {
		return *new(T), err
	}

	committed = true

	return result, nil
}
