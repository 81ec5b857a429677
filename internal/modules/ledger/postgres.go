package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coinduel/backend/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
)

// PostgresLedger is a double-entry ledger over three tables: accounts with a
// running balance, an append-only entry log, and an idempotency key table.
// Each call runs in one transaction that claims the idempotency key first -
// a replay sees the key already claimed and commits without touching the
// balance. Accounts are provisioned lazily with the configured starting
// balance, the way the source system seeded fresh profiles.
type PostgresLedger struct {
	db              *sql.DB
	startingBalance int64
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(db *sql.DB, startingBalance int64) *PostgresLedger {
	return &PostgresLedger{db: db, startingBalance: startingBalance}
}

func (l *PostgresLedger) Credit(ctx context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error {
	return l.apply(ctx, accountID, amount, EntryTypeCredit, idempotencyKey)
}

func (l *PostgresLedger) Debit(ctx context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error {
	return l.apply(ctx, accountID, -amount, EntryTypeDebit, idempotencyKey)
}

func (l *PostgresLedger) apply(
	ctx context.Context,
	accountID uuid.UUID,
	delta int64,
	entryType string,
	idempotencyKey string,
) error {
	if delta == 0 {
		return ErrInvalidAmount
	}

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const claimStmt = `
			INSERT INTO
				ledger_idempotency (key_id)
			VALUES
				($1)
			ON CONFLICT DO NOTHING;`
		result, err := tql.Exec(ctx, tx, claimStmt, idempotencyKey)
		if err != nil {
			return err
		}

		claimed, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if claimed == 0 {
			// Already applied. Reported as success, not replayed.
			return nil
		}

		const provisionStmt = `
			INSERT INTO
				ledger_account (id, balance)
			VALUES
				($1, $2)
			ON CONFLICT DO NOTHING;`
		if _, err := tql.Exec(ctx, tx, provisionStmt, accountID, l.startingBalance); err != nil {
			return err
		}

		const lockQuery = `
			SELECT
				balance
			FROM
				ledger_account
			WHERE
				id = $1
			FOR UPDATE;`
		balance, err := tql.QueryFirst[int64](ctx, tx, lockQuery, accountID)
		if err != nil {
			return err
		}

		newBalance := balance + delta

		amount := delta
		if amount < 0 {
			amount = -amount
		}

		const entryStmt = `
			INSERT INTO
				ledger_entry (account_id, amount, entry_type, balance, idempotency_key)
			VALUES
				($1, $2, $3, $4, $5);`
		if _, err := tql.Exec(ctx, tx, entryStmt, accountID, amount, entryType, newBalance, idempotencyKey); err != nil {
			return err
		}

		const updateStmt = `
			UPDATE
				ledger_account
			SET
				balance = $2,
				updated_at = now()
			WHERE
				id = $1;`
		_, err = tql.Exec(ctx, tx, updateStmt, accountID, newBalance)
		return err
	}

	if err := core.Tx(ctx, l.db, txFn); err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const query = `
		SELECT
			balance
		FROM
			ledger_account
		WHERE
			id = $1;`

	balance, err := tql.QueryFirst[int64](ctx, l.db, query, accountID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Not provisioned yet - the first ledger call will seed it.
		return l.startingBalance, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	return balance, nil
}
