package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateWaiting  State = "waiting"
	StateBetting  State = "betting"
	StateFlipping State = "flipping"
	StateComplete State = "complete"
)

type Side string

const (
	SideHeads Side = "heads"
	SideTails Side = "tails"
)

func (s Side) Opposite() Side {
	if s == SideHeads {
		return SideTails
	}

	return SideHeads
}

type TerminationReason string

const (
	ReasonNormal  TerminationReason = "normal"
	ReasonTimeout TerminationReason = "timeout"
	ReasonForfeit TerminationReason = "forfeit"
)

type Participant struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	BetSide     *Side     `json:"bet_side,omitempty"`
	Stake       *int64    `json:"stake,omitempty"`
}

func (p Participant) HasBet() bool {
	return p.BetSide != nil && p.Stake != nil
}

// Session is the single shared mutable record of one wager. All mutation
// goes through the transition methods below, applied under the store's
// compare-and-swap on (ID, Version) - the methods themselves never touch
// Version, the store bumps it on an accepted write.
type Session struct {
	ID             string
	State          State
	Version        int64
	Result         *Side
	Reason         *TerminationReason
	ForfeitedBy    *uuid.UUID
	CreatedAt      time.Time
	DeadlineAt     time.Time
	SettleAttempts int
	Participants   []Participant
}

func NewSession(now time.Time, waitWindow time.Duration) Session {
	return Session{
		ID:         uuid.NewString(),
		State:      StateWaiting,
		CreatedAt:  now,
		DeadlineAt: now.Add(waitWindow),
	}
}

func (s *Session) IsTerminal() bool {
	return s.State == StateComplete
}

func (s *Session) Participant(accountID uuid.UUID) *Participant {
	for i := range s.Participants {
		if s.Participants[i].AccountID == accountID {
			return &s.Participants[i]
		}
	}

	return nil
}

func (s *Session) Opponent(accountID uuid.UUID) *Participant {
	for i := range s.Participants {
		if s.Participants[i].AccountID != accountID {
			return &s.Participants[i]
		}
	}

	return nil
}

func (s *Session) AllBetsPlaced() bool {
	if len(s.Participants) != 2 {
		return false
	}

	for _, p := range s.Participants {
		if !p.HasBet() {
			return false
		}
	}

	return true
}

// Winner returns the participant whose side matches the result. Bets are
// required to be on opposite sides, so for a placed pair this is unambiguous.
func (s *Session) Winner(result Side) *Participant {
	for i := range s.Participants {
		if s.Participants[i].BetSide != nil && *s.Participants[i].BetSide == result {
			return &s.Participants[i]
		}
	}

	return nil
}

func (s *Session) Loser(result Side) *Participant {
	for i := range s.Participants {
		if s.Participants[i].BetSide != nil && *s.Participants[i].BetSide != result {
			return &s.Participants[i]
		}
	}

	return nil
}

// ForfeitWinner is the participant left behind by whoever abandoned the
// session. Nil until MarkForfeit has been applied.
func (s *Session) ForfeitWinner() *Participant {
	if s.ForfeitedBy == nil {
		return nil
	}

	return s.Opponent(*s.ForfeitedBy)
}

// BetIntent is a bet declared up front when joining the queue, applied
// atomically with the enrollment.
type BetIntent struct {
	Side  Side
	Stake int64
}

// Enroll adds an account to a waiting session, with an optional bet declared
// at join time. The second enrollment moves the session to betting and
// re-arms the deadline - and straight on to flipping when both participants
// pre-declared their bets. Any rejection leaves the session untouched.
func (s *Session) Enroll(
	accountID uuid.UUID,
	displayName string,
	bet *BetIntent,
	now time.Time,
	betWindow time.Duration,
	flipWindow time.Duration,
) error {
	if s.State != StateWaiting {
		return ErrSessionFull
	}

	if s.Participant(accountID) != nil {
		return ErrAlreadyJoined
	}

	if len(s.Participants) >= 2 {
		return ErrSessionFull
	}

	participant := Participant{
		AccountID:   accountID,
		DisplayName: displayName,
	}

	if bet != nil {
		var opponent *Participant
		if len(s.Participants) == 1 {
			opponent = &s.Participants[0]
		}

		if err := validateBet(bet.Side, bet.Stake, opponent); err != nil {
			return err
		}

		side := bet.Side
		stake := bet.Stake
		participant.BetSide = &side
		participant.Stake = &stake
	}

	s.Participants = append(s.Participants, participant)

	if len(s.Participants) == 2 {
		s.State = StateBetting
		s.DeadlineAt = now.Add(betWindow)

		if s.AllBetsPlaced() {
			s.State = StateFlipping
			s.DeadlineAt = now.Add(flipWindow)
		}
	}

	return nil
}

func validateBet(side Side, stake int64, opponent *Participant) error {
	if side != SideHeads && side != SideTails {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidBet, side)
	}

	if stake <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidBet)
	}

	if opponent != nil && opponent.BetSide != nil && *opponent.BetSide == side {
		return fmt.Errorf("%w: side %q is already taken", ErrInvalidBet, side)
	}

	if opponent != nil && opponent.Stake != nil && *opponent.Stake != stake {
		return ErrStakeMismatch
	}

	return nil
}

// PlaceBet records a participant's side and stake. Both are immutable once
// set. The second bet moves the session to flipping and re-arms the deadline.
// Rejections leave the session untouched so a failed call never bumps the
// version or re-triggers resolution.
func (s *Session) PlaceBet(accountID uuid.UUID, side Side, stake int64, now time.Time, flipWindow time.Duration) error {
	if s.State != StateBetting || s.ForfeitedBy != nil {
		return fmt.Errorf("%w: session is not accepting bets", ErrInvalidBet)
	}

	participant := s.Participant(accountID)
	if participant == nil {
		return fmt.Errorf("%w: account is not a participant", ErrInvalidBet)
	}

	if participant.HasBet() {
		return fmt.Errorf("%w: bet already placed", ErrInvalidBet)
	}

	if err := validateBet(side, stake, s.Opponent(accountID)); err != nil {
		return err
	}

	participant.BetSide = &side
	participant.Stake = &stake

	if s.AllBetsPlaced() {
		s.State = StateFlipping
		s.DeadlineAt = now.Add(flipWindow)
	}

	return nil
}

// RemoveWaiting takes a participant out of a waiting session. Leaving before
// an opponent shows up is not a forfeit - there is nobody to award a win to.
// The caller deletes the session once it reports empty.
func (s *Session) RemoveWaiting(accountID uuid.UUID) (empty bool, err error) {
	if s.State != StateWaiting {
		return false, fmt.Errorf("%w: session is not waiting", ErrInvalidBet)
	}

	if s.Participant(accountID) == nil {
		return false, ErrNotFound
	}

	remaining := s.Participants[:0]
	for _, p := range s.Participants {
		if p.AccountID != accountID {
			remaining = append(remaining, p)
		}
	}
	s.Participants = remaining

	return len(s.Participants) == 0, nil
}

// MarkForfeit records the abandonment decision without completing the
// session. Recording first and settling after means a crash mid-payout can
// always be replayed against the same winner. The deadline is pulled to now
// so the sweep re-drives settlement promptly if the triggering call dies.
// Only a betting session can be forfeited: once the pair is placed the
// normal resolution owns the payout, and a forfeit racing it would settle
// the same stakes a second time under conflicting idempotency keys.
func (s *Session) MarkForfeit(leaverID uuid.UUID, now time.Time) error {
	if s.State != StateBetting {
		return fmt.Errorf("%w: session cannot be forfeited", ErrInvalidBet)
	}

	if s.Participant(leaverID) == nil {
		return ErrNotFound
	}

	if s.ForfeitedBy != nil {
		if *s.ForfeitedBy == leaverID {
			return nil
		}

		return fmt.Errorf("%w: session is already being forfeited", ErrInvalidBet)
	}

	leaver := leaverID
	s.ForfeitedBy = &leaver
	s.DeadlineAt = now

	return nil
}

// RecordResult pins the coin flip outcome onto the flipping session before
// any money moves. A settlement retry after a crash reuses the recorded
// outcome instead of drawing again, which keeps the ledger idempotency keys
// pointing at the same winner and loser.
func (s *Session) RecordResult(result Side) error {
	if s.State != StateFlipping || s.ForfeitedBy != nil {
		return fmt.Errorf("%w: session is not flipping", ErrInvalidBet)
	}

	if s.Result != nil {
		return fmt.Errorf("%w: result already recorded", ErrInvalidBet)
	}

	s.Result = &result

	return nil
}

func (s *Session) CompleteNormal() error {
	if s.State != StateFlipping || s.Result == nil {
		return fmt.Errorf("%w: session has no settled outcome", ErrInvalidBet)
	}

	reason := ReasonNormal
	s.State = StateComplete
	s.Reason = &reason

	return nil
}

// CompleteForfeit finishes a marked-forfeit session. The remaining
// participant wins and their chosen side becomes the result, heads when they
// never picked one.
func (s *Session) CompleteForfeit() error {
	if s.IsTerminal() || s.ForfeitedBy == nil {
		return fmt.Errorf("%w: session is not being forfeited", ErrInvalidBet)
	}

	result := SideHeads
	if winner := s.ForfeitWinner(); winner != nil && winner.BetSide != nil {
		result = *winner.BetSide
	}

	reason := ReasonForfeit
	s.State = StateComplete
	s.Result = &result
	s.Reason = &reason

	return nil
}

// CompleteTimeout finishes a session nobody acted in: a waiting session that
// never matched, or a betting session where neither side placed a bet.
// No result, no payout.
func (s *Session) CompleteTimeout() error {
	switch {
	case s.State == StateWaiting && len(s.Participants) < 2:
	case s.State == StateBetting && s.ForfeitedBy == nil && !s.anyBetPlaced():
	default:
		return fmt.Errorf("%w: session is not eligible for timeout", ErrInvalidBet)
	}

	reason := ReasonTimeout
	s.State = StateComplete
	s.Reason = &reason

	return nil
}

func (s *Session) anyBetPlaced() bool {
	for _, p := range s.Participants {
		if p.HasBet() {
			return true
		}
	}

	return false
}

// BettingStaller returns the participant who never placed a bet while their
// opponent did. Used by deadline expiry to decide who forfeits.
func (s *Session) BettingStaller() *Participant {
	if s.State != StateBetting || len(s.Participants) != 2 {
		return nil
	}

	var staller *Participant
	var placed int
	for i := range s.Participants {
		if s.Participants[i].HasBet() {
			placed++
		} else {
			staller = &s.Participants[i]
		}
	}

	if placed != 1 {
		return nil
	}

	return staller
}

// Clone returns a deep copy, detaching participants and pointer fields so
// callers can mutate a copy without the store's record changing under them.
func (s Session) Clone() Session {
	clone := s

	clone.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		cp := p
		if p.BetSide != nil {
			side := *p.BetSide
			cp.BetSide = &side
		}
		if p.Stake != nil {
			stake := *p.Stake
			cp.Stake = &stake
		}
		clone.Participants[i] = cp
	}

	if s.Result != nil {
		result := *s.Result
		clone.Result = &result
	}

	if s.Reason != nil {
		reason := *s.Reason
		clone.Reason = &reason
	}

	if s.ForfeitedBy != nil {
		forfeitedBy := *s.ForfeitedBy
		clone.ForfeitedBy = &forfeitedBy
	}

	return clone
}
