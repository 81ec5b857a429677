package queries

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/ledger"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type GetBalanceQuery struct {
	AccountID uuid.UUID
}

func (q GetBalanceQuery) Validate() error {
	if q.AccountID == uuid.Nil {
		return fmt.Errorf("invalid AccountID - '%s'", q.AccountID)
	}

	return nil
}

type GetBalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
}

func HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, fmt.Errorf("invalid account id: %w", err))
		return
	}

	response, err := mediator.Send[GetBalanceQuery, GetBalanceResponse](
		r.Context(),
		GetBalanceQuery{AccountID: accountID},
	)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetBalanceQueryHandler struct {
	ledger ledger.Ledger
}

func NewGetBalanceQueryHandler(l ledger.Ledger) *GetBalanceQueryHandler {
	return &GetBalanceQueryHandler{l}
}

func (h *GetBalanceQueryHandler) Handle(
	ctx context.Context,
	request GetBalanceQuery,
) (GetBalanceResponse, error) {
	balance, err := h.ledger.Balance(ctx, request.AccountID)
	if err != nil {
		return GetBalanceResponse{}, core.NewCommandError(503, err)
	}

	return GetBalanceResponse{AccountID: request.AccountID, Balance: balance}, nil
}
