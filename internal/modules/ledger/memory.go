package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Entry struct {
	AccountID      uuid.UUID
	Amount         int64
	EntryType      string
	IdempotencyKey string
}

// InMemoryLedger is a map-backed Ledger with the same idempotency contract
// as the postgres adapter. Tests use it to assert on exactly which payouts
// happened.
type InMemoryLedger struct {
	mu              sync.Mutex
	startingBalance int64
	balances        map[uuid.UUID]int64
	applied         map[string]struct{}
	entries         []Entry

	// FailNext makes the next FailNext calls return ErrUnavailable, for
	// exercising settlement retries.
	FailNext int
}

var _ Ledger = (*InMemoryLedger)(nil)

func NewInMemoryLedger(startingBalance int64) *InMemoryLedger {
	return &InMemoryLedger{
		startingBalance: startingBalance,
		balances:        make(map[uuid.UUID]int64),
		applied:         make(map[string]struct{}),
	}
}

func (l *InMemoryLedger) Credit(_ context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error {
	return l.apply(accountID, amount, EntryTypeCredit, idempotencyKey)
}

func (l *InMemoryLedger) Debit(_ context.Context, accountID uuid.UUID, amount int64, idempotencyKey string) error {
	return l.apply(accountID, -amount, EntryTypeDebit, idempotencyKey)
}

func (l *InMemoryLedger) apply(accountID uuid.UUID, delta int64, entryType string, idempotencyKey string) error {
	if delta == 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailNext > 0 {
		l.FailNext--
		return ErrUnavailable
	}

	if _, alreadyApplied := l.applied[idempotencyKey]; alreadyApplied {
		return nil
	}

	if _, found := l.balances[accountID]; !found {
		l.balances[accountID] = l.startingBalance
	}

	l.balances[accountID] += delta
	l.applied[idempotencyKey] = struct{}{}

	amount := delta
	if amount < 0 {
		amount = -amount
	}

	l.entries = append(l.entries, Entry{
		AccountID:      accountID,
		Amount:         amount,
		EntryType:      entryType,
		IdempotencyKey: idempotencyKey,
	})

	return nil
}

func (l *InMemoryLedger) Balance(_ context.Context, accountID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if balance, found := l.balances[accountID]; found {
		return balance, nil
	}

	return l.startingBalance, nil
}

func (l *InMemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}
