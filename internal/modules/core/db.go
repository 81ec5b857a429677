package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

type TransactionOption func(*sql.TxOptions)

func WithIsolationLevel(isolationLevel sql.IsolationLevel) TransactionOption {
	return func(opts *sql.TxOptions) {
		opts.Isolation = isolationLevel
	}
}

// Tx runs the given function inside a database transaction and commits it
// when the function returns nil. Any error, panic included, rolls the
// transaction back, so a caller like the ledger adapter never leaves a
// half-applied claim behind.
func Tx(
	ctx context.Context,
	db *sql.DB,
	transaction func(context.Context, *sql.Tx) error,
	opts ...TransactionOption,
) (err error) {
	options := sql.TxOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	tx, err := db.BeginTx(ctx, &options)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("transaction panicked with: %v", r)
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Wrap(err, rollbackErr.Error())
			}
		}
	}()

	if err = transaction(ctx, tx); err != nil {
		return rollback(tx, err)
	}

	if err = tx.Commit(); err != nil {
		return rollback(tx, err)
	}

	return nil
}

func rollback(tx *sql.Tx, cause error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
		return fmt.Errorf("%s: %w", rollbackErr.Error(), cause)
	}

	return cause
}
