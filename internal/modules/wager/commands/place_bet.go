package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coinduel/backend/internal/config"
	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type PlaceBetCommand struct {
	SessionID string
	AccountID uuid.UUID
	Side      domain.Side
	Stake     int64
}

func (c PlaceBetCommand) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("invalid SessionID - '%s'", c.SessionID)
	}

	if c.AccountID == uuid.Nil {
		return fmt.Errorf("invalid AccountID - '%s'", c.AccountID)
	}

	if c.Side != domain.SideHeads && c.Side != domain.SideTails {
		return fmt.Errorf("invalid Side - '%s'", c.Side)
	}

	if c.Stake <= 0 {
		return fmt.Errorf("invalid Stake - '%d'", c.Stake)
	}

	return nil
}

func HandlePlaceBet(w http.ResponseWriter, r *http.Request) {
	command, err := core.RequestBody[PlaceBetCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command.SessionID = chi.URLParam(r, "id")

	_, err = mediator.Send[PlaceBetCommand, core.Unit](r.Context(), command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, nil)
}

type PlaceBetCommandHandler struct {
	store    wager.SessionStore
	notifier wager.Notifier
	resolver *wager.Resolver
	config   config.WagerConfiguration
}

func NewPlaceBetCommandHandler(
	store wager.SessionStore,
	notifier wager.Notifier,
	resolver *wager.Resolver,
	config config.WagerConfiguration,
) *PlaceBetCommandHandler {
	return &PlaceBetCommandHandler{store, notifier, resolver, config}
}

func (h *PlaceBetCommandHandler) Handle(
	ctx context.Context,
	request PlaceBetCommand,
) (core.Unit, error) {
	updated, err := wager.ApplyTransition(ctx, h.store, request.SessionID, func(s *domain.Session) error {
		return s.PlaceBet(request.AccountID, request.Side, request.Stake, time.Now(), h.config.BetTimeout)
	})
	if err != nil {
		return core.Unit{}, commandError(err)
	}

	h.notifier.Publish(ctx, updated.ID, wager.NewSessionView(updated))

	if updated.State == domain.StateFlipping {
		// This bet completed the pair. The CAS discipline guarantees only
		// one accepted write lands here, so the flip triggers exactly once;
		// a settlement failure leaves the session in flipping for the
		// deadline sweep to re-drive.
		if err := h.resolver.Settle(ctx, updated.ID); err != nil {
			return core.Unit{}, commandError(err)
		}
	}

	return core.Unit{}, nil
}
