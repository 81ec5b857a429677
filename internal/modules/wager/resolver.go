package wager

import (
	"context"
	"fmt"
	"time"

	"github.com/coinduel/backend/internal/modules/ledger"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ForfeitPolicy decides what happens to the leaver's stake when a session
// ends in forfeit.
type ForfeitPolicy int

const (
	// ForfeitTransferStake moves the stake the leaver had placed over to the
	// remaining participant. Nothing moves when the leaver never staked.
	ForfeitTransferStake ForfeitPolicy = iota

	// ForfeitKeepStakes completes the session without moving any money.
	ForfeitKeepStakes
)

type ResolverConfig struct {
	// FlipDelay holds the session in flipping before the draw so clients can
	// animate the coin.
	FlipDelay time.Duration

	// SettleTimeout bounds the ledger retry window of a single Settle call.
	// The session stays in flipping past it and the deadline sweep re-drives
	// settlement.
	SettleTimeout time.Duration

	ForfeitPolicy ForfeitPolicy
}

// Resolver drives every session that has a payout decision pending to
// complete: flipping sessions through draw and settlement, marked-forfeit
// sessions through the forfeit transfer. Settle is safe to call redundantly
// and concurrently - the outcome is pinned onto the session record before
// any money moves, and the ledger's idempotency keys make replayed transfers
// no-ops. Only after settlement does the session transition to complete.
type Resolver struct {
	store    SessionStore
	ledger   ledger.Ledger
	notifier Notifier
	random   RandomSource
	logger   *zap.Logger
	config   ResolverConfig
}

func NewResolver(
	store SessionStore,
	l ledger.Ledger,
	notifier Notifier,
	random RandomSource,
	logger *zap.Logger,
	config ResolverConfig,
) *Resolver {
	return &Resolver{
		store:    store,
		ledger:   l,
		notifier: notifier,
		random:   random,
		logger:   logger,
		config:   config,
	}
}

func (r *Resolver) Settle(ctx context.Context, sessionID string) error {
	session, err := r.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	}

	switch {
	case session.IsTerminal():
		return nil
	case session.ForfeitedBy != nil:
		return r.settleForfeit(ctx, session)
	case session.State == domain.StateFlipping:
		return r.resolveFlip(ctx, session)
	default:
		return nil
	}
}

func (r *Resolver) resolveFlip(ctx context.Context, session domain.Session) error {
	if session.Result == nil {
		if r.config.FlipDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.config.FlipDelay):
			}
		}

		result := r.random.DrawBinary()

		updated, err := ApplyTransition(ctx, r.store, session.ID, func(s *domain.Session) error {
			if s.IsTerminal() || s.ForfeitedBy != nil || s.Result != nil {
				// Another writer got the session first - keep its outcome.
				return ErrNoChange
			}

			return s.RecordResult(result)
		})
		if err != nil {
			return err
		}

		session = updated
	}

	switch {
	case session.IsTerminal():
		return nil
	case session.ForfeitedBy != nil:
		return r.settleForfeit(ctx, session)
	case session.Result == nil:
		return nil
	}

	result := *session.Result
	winner := session.Winner(result)
	loser := session.Loser(result)
	if winner == nil || loser == nil || loser.Stake == nil {
		return fmt.Errorf("session %s is flipping without a placed bet pair", session.ID)
	}

	if err := r.transfer(ctx, session, winner, loser, *loser.Stake); err != nil {
		return err
	}

	completed, err := ApplyTransition(ctx, r.store, session.ID, func(s *domain.Session) error {
		if s.IsTerminal() {
			return ErrNoChange
		}

		return s.CompleteNormal()
	})
	if err != nil {
		return err
	}

	r.logger.Info("session resolved",
		zap.String("session_id", session.ID),
		zap.String("result", string(result)),
	)
	r.notifier.Publish(ctx, session.ID, NewSessionView(completed))

	return nil
}

func (r *Resolver) settleForfeit(ctx context.Context, session domain.Session) error {
	if session.IsTerminal() || session.ForfeitedBy == nil {
		return nil
	}

	winner := session.ForfeitWinner()
	leaver := session.Participant(*session.ForfeitedBy)

	if r.config.ForfeitPolicy == ForfeitTransferStake &&
		winner != nil && leaver != nil && leaver.Stake != nil {
		if err := r.transfer(ctx, session, winner, leaver, *leaver.Stake); err != nil {
			return err
		}
	}

	completed, err := ApplyTransition(ctx, r.store, session.ID, func(s *domain.Session) error {
		if s.IsTerminal() {
			return ErrNoChange
		}

		return s.CompleteForfeit()
	})
	if err != nil {
		return err
	}

	r.logger.Info("session forfeited",
		zap.String("session_id", session.ID),
		zap.String("forfeited_by", session.ForfeitedBy.String()),
	)
	r.notifier.Publish(ctx, session.ID, NewSessionView(completed))

	return nil
}

// transfer moves the stake from loser to winner, debit first. Both calls
// carry idempotency keys derived from the session and the participant's
// side, so a replay after a partial failure picks up where it left off
// instead of double-paying.
func (r *Resolver) transfer(
	ctx context.Context,
	session domain.Session,
	winner *domain.Participant,
	loser *domain.Participant,
	amount int64,
) error {
	debitKey := settlementKey(session.ID, loser.BetSide, "loss")
	creditKey := settlementKey(session.ID, winner.BetSide, "win")

	operation := func() error {
		if err := r.ledger.Debit(ctx, loser.AccountID, amount, debitKey); err != nil {
			return err
		}

		return r.ledger.Credit(ctx, winner.AccountID, amount, creditKey)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = r.config.SettleTimeout

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}

	r.logger.Warn("settlement deferred, payout outstanding",
		zap.String("session_id", session.ID),
		zap.Error(err),
	)

	// Leave the session short of complete and record the attempt. The
	// deadline sweep retries settlement with the same keys.
	if _, recordErr := ApplyTransition(ctx, r.store, session.ID, func(s *domain.Session) error {
		if s.IsTerminal() {
			return ErrNoChange
		}

		s.SettleAttempts++
		s.DeadlineAt = time.Now()
		return nil
	}); recordErr != nil {
		r.logger.Error("failed to record settlement attempt", zap.Error(recordErr))
	}

	return fmt.Errorf("%w: %s", domain.ErrLedgerUnavailable, err.Error())
}

func settlementKey(sessionID string, side *domain.Side, fallback string) string {
	if side != nil {
		return sessionID + ":" + string(*side)
	}

	return sessionID + ":" + fallback
}
