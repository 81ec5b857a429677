package commands

import (
	"context"
	"testing"
	"time"

	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_LeaveSession_Sole_Waiter_Deletes_The_Session(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)
	accountID := uuid.New()

	response, err := h.join.Handle(ctx, JoinQueueCommand{AccountID: accountID, DisplayName: "alice"})
	require.NoError(t, err)

	// Act
	_, err = h.leave.Handle(ctx, LeaveSessionCommand{SessionID: response.SessionID, AccountID: accountID})

	// Assert
	require.NoError(t, err)

	_, err = h.store.Get(ctx, response.SessionID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Empty(t, h.bank.Entries())
}

func Test_LeaveSession_During_Betting_Forfeits_To_The_Opponent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)
	sessionID, alice, bob := bettingPair(t, h)

	_, err := h.bet.Handle(ctx, PlaceBetCommand{
		SessionID: sessionID, AccountID: alice, Side: domain.SideTails, Stake: 10,
	})
	require.NoError(t, err)

	// Act
	_, err = h.leave.Handle(ctx, LeaveSessionCommand{SessionID: sessionID, AccountID: bob})

	// Assert
	require.NoError(t, err)

	session, err := h.store.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, session.State)
	require.Equal(t, domain.ReasonForfeit, *session.Reason)
	require.Equal(t, bob, *session.ForfeitedBy)
	// The remaining participant's own side is the recorded result.
	require.Equal(t, domain.SideTails, *session.Result)

	// Bob never staked, so the forfeit moves no money.
	require.Empty(t, h.bank.Entries())
}

func Test_LeaveSession_By_The_Bettor_Transfers_Their_Stake_To_The_Opponent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)
	sessionID, alice, bob := bettingPair(t, h)

	_, err := h.bet.Handle(ctx, PlaceBetCommand{
		SessionID: sessionID, AccountID: bob, Side: domain.SideTails, Stake: 10,
	})
	require.NoError(t, err)

	// Act
	_, err = h.leave.Handle(ctx, LeaveSessionCommand{SessionID: sessionID, AccountID: bob})

	// Assert
	require.NoError(t, err)

	session, err := h.store.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, session.State)
	require.Equal(t, domain.ReasonForfeit, *session.Reason)
	// Alice never picked a side, so the result falls back to heads.
	require.Equal(t, domain.SideHeads, *session.Result)

	aliceBalance, err := h.bank.Balance(ctx, alice)
	require.NoError(t, err)
	bobBalance, err := h.bank.Balance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(1010), aliceBalance)
	require.Equal(t, int64(990), bobBalance)
}

func Test_LeaveSession_From_Complete_Session_Changes_Nothing(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)
	sessionID, alice, bob := bettingPair(t, h)

	_, err := h.bet.Handle(ctx, PlaceBetCommand{
		SessionID: sessionID, AccountID: alice, Side: domain.SideHeads, Stake: 10,
	})
	require.NoError(t, err)
	_, err = h.bet.Handle(ctx, PlaceBetCommand{
		SessionID: sessionID, AccountID: bob, Side: domain.SideTails, Stake: 10,
	})
	require.NoError(t, err)

	settled, err := h.store.Get(ctx, sessionID)
	require.NoError(t, err)

	// Act
	_, err = h.leave.Handle(ctx, LeaveSessionCommand{SessionID: sessionID, AccountID: bob})

	// Assert
	require.NoError(t, err)

	after, err := h.store.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, settled.Version, after.Version)
	require.Equal(t, domain.ReasonNormal, *after.Reason)
	require.Len(t, h.bank.Entries(), 2)
}

func Test_LeaveSession_While_Flipping_Is_Rejected_And_Settlement_Stays_ZeroSum(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)

	now := time.Now()
	alice := uuid.New()
	bob := uuid.New()

	// A session whose pair is placed but whose payout has not landed yet,
	// the window a leave request can race resolution in.
	session := domain.NewSession(now, time.Minute)
	require.NoError(t, session.Enroll(alice, "alice", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.Enroll(bob, "bob", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.PlaceBet(alice, domain.SideHeads, 10, now, time.Minute))
	require.NoError(t, session.PlaceBet(bob, domain.SideTails, 10, now, time.Minute))
	require.NoError(t, h.store.Create(ctx, session))

	// Act - the losing side tries to bail out before the flip settles.
	_, err := h.leave.Handle(ctx, LeaveSessionCommand{SessionID: session.ID, AccountID: bob})

	// Assert
	require.ErrorIs(t, err, domain.ErrInvalidBet)

	var cmdErr core.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 422, cmdErr.StatusCode)

	pending, err := h.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateFlipping, pending.State)
	require.Nil(t, pending.ForfeitedBy)

	// The normal resolution is the only settlement that runs.
	require.NoError(t, h.resolver.Settle(ctx, session.ID))

	completed, err := h.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
	require.Equal(t, domain.ReasonNormal, *completed.Reason)

	aliceBalance, err := h.bank.Balance(ctx, alice)
	require.NoError(t, err)
	bobBalance, err := h.bank.Balance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(1010), aliceBalance)
	require.Equal(t, int64(990), bobBalance)
	require.Equal(t, int64(2000), aliceBalance+bobBalance)
	require.Len(t, h.bank.Entries(), 2)
}

func Test_LeaveSession_By_NonParticipant_Is_Rejected_With_404(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(domain.SideHeads)
	sessionID, _, _ := bettingPair(t, h)

	// Act
	_, err := h.leave.Handle(ctx, LeaveSessionCommand{SessionID: sessionID, AccountID: uuid.New()})

	// Assert
	require.ErrorIs(t, err, domain.ErrNotFound)
}
