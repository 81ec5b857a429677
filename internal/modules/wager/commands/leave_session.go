package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type LeaveSessionCommand struct {
	SessionID string
	AccountID uuid.UUID
}

func (c LeaveSessionCommand) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("invalid SessionID - '%s'", c.SessionID)
	}

	if c.AccountID == uuid.Nil {
		return fmt.Errorf("invalid AccountID - '%s'", c.AccountID)
	}

	return nil
}

func HandleLeaveSession(w http.ResponseWriter, r *http.Request) {
	command, err := core.RequestBody[LeaveSessionCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command.SessionID = chi.URLParam(r, "id")

	_, err = mediator.Send[LeaveSessionCommand, core.Unit](r.Context(), command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, nil)
}

// LeaveSessionCommandHandler removes a participant. Before matching that is
// a plain removal - there is no opponent to award a win to, and an emptied
// session is deleted outright. During betting it is a forfeit: the leaver
// is marked, the remaining participant wins, and settlement runs before the
// session completes. Once the session is flipping the leave is rejected -
// the flip's own settlement owns the payout from that point.
type LeaveSessionCommandHandler struct {
	store    wager.SessionStore
	notifier wager.Notifier
	resolver *wager.Resolver
}

func NewLeaveSessionCommandHandler(
	store wager.SessionStore,
	notifier wager.Notifier,
	resolver *wager.Resolver,
) *LeaveSessionCommandHandler {
	return &LeaveSessionCommandHandler{store, notifier, resolver}
}

func (h *LeaveSessionCommandHandler) Handle(
	ctx context.Context,
	request LeaveSessionCommand,
) (core.Unit, error) {
	var removed, emptied, forfeited bool

	updated, err := wager.ApplyTransition(ctx, h.store, request.SessionID, func(s *domain.Session) error {
		removed, emptied, forfeited = false, false, false

		if s.IsTerminal() {
			// Leaving a settled session changes nothing.
			return wager.ErrNoChange
		}

		if s.State == domain.StateWaiting {
			empty, err := s.RemoveWaiting(request.AccountID)
			if err != nil {
				return err
			}

			removed, emptied = true, empty
			return nil
		}

		if err := s.MarkForfeit(request.AccountID, time.Now()); err != nil {
			return err
		}

		forfeited = true
		return nil
	})
	if err != nil {
		return core.Unit{}, commandError(err)
	}

	switch {
	case emptied:
		// Nobody left waiting on the session - drop it rather than leaving
		// an empty shell for the sweep.
		if _, err := h.store.Delete(ctx, updated.ID, updated.Version); err != nil {
			return core.Unit{}, commandError(err)
		}

	case removed:
		h.notifier.Publish(ctx, updated.ID, wager.NewSessionView(updated))

	case forfeited:
		if err := h.resolver.Settle(ctx, updated.ID); err != nil {
			return core.Unit{}, commandError(err)
		}
	}

	return core.Unit{}, nil
}
