package wager

import (
	"context"
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"go.uber.org/zap"
)

const sweepBatchSize = 64

// TimeoutWatcher forces a terminal transition on every session whose
// deadline elapsed. Expiry goes through the same compare-and-swap discipline
// as client actions, so a sweep racing a late bet or a second watcher
// instance is harmless - whoever loses the race re-evaluates against current
// state and backs off.
type TimeoutWatcher struct {
	store    SessionStore
	resolver *Resolver
	notifier Notifier
	logger   *zap.Logger
	interval time.Duration
}

func NewTimeoutWatcher(
	store SessionStore,
	resolver *Resolver,
	notifier Notifier,
	logger *zap.Logger,
	interval time.Duration,
) *TimeoutWatcher {
	return &TimeoutWatcher{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps until the context is cancelled.
func (w *TimeoutWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep expires every session past its deadline. Safe to invoke redundantly.
func (w *TimeoutWatcher) Sweep(ctx context.Context) {
	expired, err := w.store.FindExpired(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		w.logger.Warn("deadline sweep failed", zap.Error(err))
		return
	}

	for _, session := range expired {
		if err := w.expire(ctx, session); err != nil {
			w.logger.Warn("failed to expire session",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}
}

func (w *TimeoutWatcher) expire(ctx context.Context, session domain.Session) error {
	switch {
	case session.IsTerminal():
		return nil

	case session.ForfeitedBy != nil || session.State == domain.StateFlipping:
		// A payout decision is already pending - re-drive settlement.
		return w.resolver.Settle(ctx, session.ID)

	case session.State == domain.StateWaiting:
		return w.expireWaiting(ctx, session)

	case session.State == domain.StateBetting:
		return w.expireBetting(ctx, session)

	default:
		return nil
	}
}

func (w *TimeoutWatcher) expireWaiting(ctx context.Context, session domain.Session) error {
	if len(session.Participants) == 0 {
		_, err := w.store.Delete(ctx, session.ID, session.Version)
		return err
	}

	completed, err := ApplyTransition(ctx, w.store, session.ID, func(s *domain.Session) error {
		if s.IsTerminal() || s.State != domain.StateWaiting || len(s.Participants) >= 2 {
			return ErrNoChange
		}

		return s.CompleteTimeout()
	})
	if err != nil {
		return err
	}

	if completed.IsTerminal() {
		w.logger.Info("session timed out while matching", zap.String("session_id", session.ID))
		w.notifier.Publish(ctx, session.ID, NewSessionView(completed))
	}

	return nil
}

func (w *TimeoutWatcher) expireBetting(ctx context.Context, session domain.Session) error {
	// One placed bet against a silent opponent is a forfeit in the bettor's
	// favor; nobody betting is a plain timeout.
	if staller := session.BettingStaller(); staller != nil {
		stallerID := staller.AccountID

		_, err := ApplyTransition(ctx, w.store, session.ID, func(s *domain.Session) error {
			if s.IsTerminal() || s.ForfeitedBy != nil || s.BettingStaller() == nil {
				return ErrNoChange
			}

			return s.MarkForfeit(stallerID, time.Now())
		})
		if err != nil {
			return err
		}

		return w.resolver.Settle(ctx, session.ID)
	}

	completed, err := ApplyTransition(ctx, w.store, session.ID, func(s *domain.Session) error {
		if s.IsTerminal() || s.State != domain.StateBetting || s.ForfeitedBy != nil {
			return ErrNoChange
		}

		if s.BettingStaller() != nil {
			// A bet slipped in since the read - next sweep handles it.
			return ErrNoChange
		}

		return s.CompleteTimeout()
	})
	if err != nil {
		return err
	}

	if completed.IsTerminal() {
		w.logger.Info("session timed out in betting", zap.String("session_id", session.ID))
		w.notifier.Publish(ctx, session.ID, NewSessionView(completed))
	}

	return nil
}
