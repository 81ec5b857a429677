package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Ledger owns account balances. Credit and Debit are atomic and idempotent
// per supplied key: replaying a call with a key that has already been applied
// is reported as success without moving money again. That contract is what
// makes crash-and-retry during payout safe for the caller.
type Ledger interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error
	Debit(ctx context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

var (
	ErrUnavailable   = errors.New("ledger unavailable")
	ErrInvalidAmount = errors.New("ledger amount must be positive")
)

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)
