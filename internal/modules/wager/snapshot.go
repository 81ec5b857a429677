package wager

import (
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/google/uuid"
)

type ParticipantView struct {
	AccountID   uuid.UUID    `json:"account_id"`
	DisplayName string       `json:"display_name"`
	HasBet      bool         `json:"has_bet"`
	BetSide     *domain.Side `json:"bet_side,omitempty"`
	Stake       *int64       `json:"stake,omitempty"`
}

// SessionView is the snapshot pushed to subscribers and returned by the
// snapshot query. Bet sides stay hidden while the session is still taking
// bets so neither participant can react to the other's pick, and the result
// is withheld until the session is complete - a recorded-but-unsettled
// outcome is an implementation detail.
type SessionView struct {
	ID           string                    `json:"id"`
	State        domain.State              `json:"state"`
	Result       *domain.Side              `json:"result,omitempty"`
	Reason       *domain.TerminationReason `json:"termination_reason,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	DeadlineAt   time.Time                 `json:"deadline_at"`
	Participants []ParticipantView         `json:"participants"`
}

func NewSessionView(session domain.Session) SessionView {
	view := SessionView{
		ID:           session.ID,
		State:        session.State,
		Reason:       session.Reason,
		CreatedAt:    session.CreatedAt,
		DeadlineAt:   session.DeadlineAt,
		Participants: make([]ParticipantView, 0, len(session.Participants)),
	}

	if session.IsTerminal() {
		view.Result = session.Result
	}

	revealBets := session.State == domain.StateFlipping || session.IsTerminal()

	for _, p := range session.Participants {
		participant := ParticipantView{
			AccountID:   p.AccountID,
			DisplayName: p.DisplayName,
			HasBet:      p.HasBet(),
			Stake:       p.Stake,
		}

		if revealBets {
			participant.BetSide = p.BetSide
		}

		view.Participants = append(view.Participants, participant)
	}

	return view
}
