package queries

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
)

type GetSnapshotQuery struct {
	SessionID string
}

func (q GetSnapshotQuery) Validate() error {
	if q.SessionID == "" {
		return fmt.Errorf("invalid SessionID - '%s'", q.SessionID)
	}

	return nil
}

func HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	query := GetSnapshotQuery{SessionID: chi.URLParam(r, "id")}

	response, err := mediator.Send[GetSnapshotQuery, wager.SessionView](r.Context(), query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetSnapshotQueryHandler struct {
	store wager.SessionStore
}

func NewGetSnapshotQueryHandler(store wager.SessionStore) *GetSnapshotQueryHandler {
	return &GetSnapshotQueryHandler{store}
}

func (h *GetSnapshotQueryHandler) Handle(
	ctx context.Context,
	request GetSnapshotQuery,
) (wager.SessionView, error) {
	session, err := h.store.Get(ctx, request.SessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return wager.SessionView{}, core.NewCommandError(404, err)
	case err != nil:
		return wager.SessionView{}, core.NewCommandError(503, err)
	}

	return wager.NewSessionView(session), nil
}
