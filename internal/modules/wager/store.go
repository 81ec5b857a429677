package wager

import (
	"context"
	"errors"
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/google/uuid"
)

// SessionStore persists wager sessions. CASUpdate writes the given session
// gated on the version the caller read - the stored record keeps its version
// plus one on success, and the write is rejected when another writer got
// there first.
type SessionStore interface {
	Get(ctx context.Context, id string) (domain.Session, error)
	Create(ctx context.Context, session domain.Session) error
	CASUpdate(ctx context.Context, session domain.Session) (bool, error)
	Delete(ctx context.Context, id string, expectedVersion int64) (bool, error)

	FindOldestWaiting(ctx context.Context) (domain.Session, error)
	FindActiveByAccount(ctx context.Context, accountID uuid.UUID) (domain.Session, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.Session, error)
}

// ErrNoChange signals from a transition function that the session is already
// past the point the transition cares about. ApplyTransition treats it as
// success without writing, so redundant invocations never bump the version.
var ErrNoChange = errors.New("session already in target state")

const casRetryLimit = 5

// ApplyTransition reads the session, applies the transition and writes it
// back under compare-and-swap. A losing writer re-reads and re-evaluates the
// guard against current state - it never blindly reapplies a state it
// computed against a stale read. Contention that never resolves within the
// retry budget surfaces as ErrStoreUnavailable.
func ApplyTransition(
	ctx context.Context,
	store SessionStore,
	sessionID string,
	transition func(*domain.Session) error,
) (domain.Session, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		session, err := store.Get(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}

		err = transition(&session)
		switch {
		case errors.Is(err, ErrNoChange):
			return session, nil
		case err != nil:
			return domain.Session{}, err
		}

		ok, err := store.CASUpdate(ctx, session)
		if err != nil {
			return domain.Session{}, err
		}

		if ok {
			session.Version++
			return session, nil
		}
	}

	return domain.Session{}, domain.ErrStoreUnavailable
}
