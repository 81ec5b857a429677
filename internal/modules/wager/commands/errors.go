package commands

import (
	"errors"

	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager/domain"
)

// commandError maps the domain taxonomy onto status-coded command errors at
// the point results leave the slice.
func commandError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyJoined):
		return core.NewCommandError(409, err)
	case errors.Is(err, domain.ErrSessionFull):
		return core.NewCommandError(409, err)
	case errors.Is(err, domain.ErrStakeMismatch):
		return core.NewCommandError(422, err)
	case errors.Is(err, domain.ErrInvalidBet):
		return core.NewCommandError(422, err)
	case errors.Is(err, domain.ErrNotFound):
		return core.NewCommandError(404, err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return core.NewCommandError(503, err)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return core.NewCommandError(503, err)
	default:
		return core.NewCommandError(500, err)
	}
}
