package domain

import "errors"

var (
	ErrAlreadyJoined = errors.New("account is already a participant in the session")
	ErrSessionFull   = errors.New("session already has two participants")
	ErrInvalidBet    = errors.New("invalid bet")
	ErrStakeMismatch = errors.New("stake does not match the opponent's stake")
	ErrNotFound      = errors.New("session not found")

	ErrStoreUnavailable  = errors.New("session store unavailable")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
