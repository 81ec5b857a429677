package commands

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/coinduel/backend/internal/config"
	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type JoinQueueCommand struct {
	AccountID   uuid.UUID
	DisplayName string
	StakeAmount int64
	BetSide     *domain.Side
}

func (c JoinQueueCommand) Validate() error {
	if c.AccountID == uuid.Nil {
		return fmt.Errorf("invalid AccountID - '%s'", c.AccountID)
	}

	if c.DisplayName == "" {
		return fmt.Errorf("invalid DisplayName - '%s'", c.DisplayName)
	}

	if c.BetSide != nil {
		if *c.BetSide != domain.SideHeads && *c.BetSide != domain.SideTails {
			return fmt.Errorf("invalid BetSide - '%s'", *c.BetSide)
		}

		if c.StakeAmount <= 0 {
			return fmt.Errorf("invalid StakeAmount - '%d'", c.StakeAmount)
		}
	}

	return nil
}

type JoinQueueResponse struct {
	SessionID string
}

func HandleJoinQueue(w http.ResponseWriter, r *http.Request) {
	command, err := core.RequestBody[JoinQueueCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	response, err := mediator.Send[JoinQueueCommand, JoinQueueResponse](r.Context(), command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	location := path.Join(r.Host, "wagers", response.SessionID)
	core.WriteCreated(w, r, location)
}

const matchRetryLimit = 5

// JoinQueueCommandHandler is the matcher: it enrolls an account into the
// oldest open session or opens a new one, exactly once per account. A lost
// enrollment race re-matches from scratch against current state.
type JoinQueueCommandHandler struct {
	store    wager.SessionStore
	notifier wager.Notifier
	resolver *wager.Resolver
	config   config.WagerConfiguration
}

func NewJoinQueueCommandHandler(
	store wager.SessionStore,
	notifier wager.Notifier,
	resolver *wager.Resolver,
	config config.WagerConfiguration,
) *JoinQueueCommandHandler {
	return &JoinQueueCommandHandler{store, notifier, resolver, config}
}

func (h *JoinQueueCommandHandler) Handle(
	ctx context.Context,
	request JoinQueueCommand,
) (JoinQueueResponse, error) {
	// A duplicate join lands the caller back in their session instead of
	// erroring or enrolling them twice.
	existing, err := h.store.FindActiveByAccount(ctx, request.AccountID)
	switch {
	case err == nil:
		return JoinQueueResponse{SessionID: existing.ID}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return JoinQueueResponse{}, commandError(err)
	}

	var bet *domain.BetIntent
	if request.BetSide != nil {
		bet = &domain.BetIntent{Side: *request.BetSide, Stake: request.StakeAmount}
	}

	for attempt := 0; attempt < matchRetryLimit; attempt++ {
		candidate, err := h.store.FindOldestWaiting(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return h.openSession(ctx, request, bet)
		case err != nil:
			return JoinQueueResponse{}, commandError(err)
		}

		updated, err := wager.ApplyTransition(ctx, h.store, candidate.ID, func(s *domain.Session) error {
			return s.Enroll(
				request.AccountID,
				request.DisplayName,
				bet,
				time.Now(),
				h.config.BetTimeout,
				h.config.BetTimeout,
			)
		})
		switch {
		case errors.Is(err, domain.ErrAlreadyJoined):
			return JoinQueueResponse{SessionID: candidate.ID}, nil
		case errors.Is(err, domain.ErrSessionFull) || errors.Is(err, domain.ErrNotFound):
			// Lost the race to a third party - re-match from scratch.
			continue
		case err != nil:
			return JoinQueueResponse{}, commandError(err)
		}

		h.notifier.Publish(ctx, updated.ID, wager.NewSessionView(updated))

		if updated.State == domain.StateFlipping {
			// Both bets were pre-declared. Settlement failure here is not a
			// join failure - the deadline sweep re-drives it.
			_ = h.resolver.Settle(ctx, updated.ID)
		}

		return JoinQueueResponse{SessionID: updated.ID}, nil
	}

	return JoinQueueResponse{}, commandError(domain.ErrStoreUnavailable)
}

func (h *JoinQueueCommandHandler) openSession(
	ctx context.Context,
	request JoinQueueCommand,
	bet *domain.BetIntent,
) (JoinQueueResponse, error) {
	session := domain.NewSession(time.Now(), h.config.WaitTimeout)

	if err := session.Enroll(
		request.AccountID,
		request.DisplayName,
		bet,
		time.Now(),
		h.config.BetTimeout,
		h.config.BetTimeout,
	); err != nil {
		return JoinQueueResponse{}, commandError(err)
	}

	if err := h.store.Create(ctx, session); err != nil {
		return JoinQueueResponse{}, commandError(err)
	}

	// The initial duplicate-join check is not atomic with the create, so a
	// racing first-time join by the same account may have opened another
	// session in between. Both racers re-read oldest-first and converge on
	// the same session; the loser drops its own, now-redundant one.
	existing, err := h.store.FindActiveByAccount(ctx, request.AccountID)
	if err == nil && existing.ID != session.ID {
		_, _ = h.store.Delete(ctx, session.ID, session.Version)
		return JoinQueueResponse{SessionID: existing.ID}, nil
	}

	h.notifier.Publish(ctx, session.ID, wager.NewSessionView(session))

	return JoinQueueResponse{SessionID: session.ID}, nil
}
