package wager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coinduel/backend/internal/modules/ledger"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedRandom struct {
	side domain.Side
}

func (r fixedRandom) DrawBinary() domain.Side {
	return r.side
}

type recordingNotifier struct {
	mu        sync.Mutex
	snapshots []SessionView
}

func (n *recordingNotifier) Publish(_ context.Context, _ string, snapshot SessionView) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.snapshots = append(n.snapshots, snapshot)
}

func (n *recordingNotifier) published() []SessionView {
	n.mu.Lock()
	defer n.mu.Unlock()

	snapshots := make([]SessionView, len(n.snapshots))
	copy(snapshots, n.snapshots)
	return snapshots
}

func newTestResolver(
	store SessionStore,
	l ledger.Ledger,
	notifier Notifier,
	result domain.Side,
) *Resolver {
	return NewResolver(store, l, notifier, fixedRandom{side: result}, zap.NewNop(), ResolverConfig{
		FlipDelay:     0,
		SettleTimeout: 10 * time.Millisecond,
		ForfeitPolicy: ForfeitTransferStake,
	})
}

// flippingSession stores a two-participant session with opposite bets of the
// given stake and returns it along with the heads and tails account ids.
func flippingSession(t *testing.T, store SessionStore, stake int64) (domain.Session, uuid.UUID, uuid.UUID) {
	t.Helper()

	ctx := context.Background()
	now := time.Now()
	heads := uuid.New()
	tails := uuid.New()

	session := domain.NewSession(now, time.Minute)
	require.NoError(t, session.Enroll(heads, "heads-player", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.Enroll(tails, "tails-player", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.PlaceBet(heads, domain.SideHeads, stake, now, time.Minute))
	require.NoError(t, session.PlaceBet(tails, domain.SideTails, stake, now, time.Minute))
	require.NoError(t, store.Create(ctx, session))

	return session, heads, tails
}

func Test_Resolver_Settle_Pays_Winner_From_Loser_And_Completes(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	notifier := &recordingNotifier{}
	resolver := newTestResolver(store, bank, notifier, domain.SideTails)

	session, heads, tails := flippingSession(t, store, 10)

	// Act
	err := resolver.Settle(ctx, session.ID)

	// Assert
	require.NoError(t, err)

	completed, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
	require.Equal(t, domain.SideTails, *completed.Result)
	require.Equal(t, domain.ReasonNormal, *completed.Reason)

	headsBalance, err := bank.Balance(ctx, heads)
	require.NoError(t, err)
	tailsBalance, err := bank.Balance(ctx, tails)
	require.NoError(t, err)
	require.Equal(t, int64(990), headsBalance)
	require.Equal(t, int64(1010), tailsBalance)

	snapshots := notifier.published()
	require.Len(t, snapshots, 1)
	require.Equal(t, domain.StateComplete, snapshots[0].State)
	require.Equal(t, domain.SideTails, *snapshots[0].Result)
}

func Test_Resolver_Settle_Is_Idempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	resolver := newTestResolver(store, bank, NopNotifier{}, domain.SideHeads)

	session, heads, tails := flippingSession(t, store, 25)
	require.NoError(t, resolver.Settle(ctx, session.ID))

	// Act
	err := resolver.Settle(ctx, session.ID)

	// Assert
	require.NoError(t, err)
	require.Len(t, bank.Entries(), 2)

	headsBalance, err := bank.Balance(ctx, heads)
	require.NoError(t, err)
	tailsBalance, err := bank.Balance(ctx, tails)
	require.NoError(t, err)
	require.Equal(t, int64(1025), headsBalance)
	require.Equal(t, int64(975), tailsBalance)
}

func Test_Resolver_Concurrent_Settles_Move_Money_Once(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	resolver := newTestResolver(store, bank, NopNotifier{}, domain.SideHeads)

	session, heads, tails := flippingSession(t, store, 10)

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = resolver.Settle(ctx, session.ID)
		}()
	}
	wg.Wait()

	// Assert
	require.Len(t, bank.Entries(), 2)

	headsBalance, err := bank.Balance(ctx, heads)
	require.NoError(t, err)
	tailsBalance, err := bank.Balance(ctx, tails)
	require.NoError(t, err)
	require.Equal(t, int64(1010), headsBalance)
	require.Equal(t, int64(990), tailsBalance)

	completed, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
}

func Test_Resolver_Ledger_Outage_Defers_Completion_Then_Retry_Settles(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	resolver := newTestResolver(store, bank, NopNotifier{}, domain.SideHeads)

	session, heads, tails := flippingSession(t, store, 10)
	bank.FailNext = 10

	// Act
	err := resolver.Settle(ctx, session.ID)

	// Assert
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	// The outcome is pinned but the session is held short of complete until
	// the payout lands.
	pending, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateFlipping, pending.State)
	require.Equal(t, domain.SideHeads, *pending.Result)
	require.NotZero(t, pending.SettleAttempts)

	// Act again, ledger recovered
	bank.FailNext = 0
	require.NoError(t, resolver.Settle(ctx, session.ID))

	// Assert
	completed, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
	require.Equal(t, domain.SideHeads, *completed.Result)

	headsBalance, err := bank.Balance(ctx, heads)
	require.NoError(t, err)
	tailsBalance, err := bank.Balance(ctx, tails)
	require.NoError(t, err)
	require.Equal(t, int64(1010), headsBalance)
	require.Equal(t, int64(990), tailsBalance)
}

func Test_Resolver_Settle_Forfeit_Transfers_Placed_Stake(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	notifier := &recordingNotifier{}
	resolver := newTestResolver(store, bank, notifier, domain.SideHeads)

	now := time.Now()
	stayer := uuid.New()
	leaver := uuid.New()

	session := domain.NewSession(now, time.Minute)
	require.NoError(t, session.Enroll(stayer, "stayer", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.Enroll(leaver, "leaver", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.PlaceBet(leaver, domain.SideHeads, 10, now, time.Minute))
	require.NoError(t, session.MarkForfeit(leaver, now))
	require.NoError(t, store.Create(ctx, session))

	// Act
	err := resolver.Settle(ctx, session.ID)

	// Assert
	require.NoError(t, err)

	completed, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
	require.Equal(t, domain.ReasonForfeit, *completed.Reason)
	// The remaining participant wins; no side picked falls back to heads.
	require.Equal(t, domain.SideHeads, *completed.Result)

	stayerBalance, err := bank.Balance(ctx, stayer)
	require.NoError(t, err)
	leaverBalance, err := bank.Balance(ctx, leaver)
	require.NoError(t, err)
	require.Equal(t, int64(1010), stayerBalance)
	require.Equal(t, int64(990), leaverBalance)
}

func Test_Resolver_Settle_Forfeit_Without_Placed_Stake_Moves_No_Money(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)
	resolver := newTestResolver(store, bank, NopNotifier{}, domain.SideHeads)

	now := time.Now()
	stayer := uuid.New()
	leaver := uuid.New()

	session := domain.NewSession(now, time.Minute)
	require.NoError(t, session.Enroll(stayer, "stayer", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.Enroll(leaver, "leaver", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.MarkForfeit(leaver, now))
	require.NoError(t, store.Create(ctx, session))

	// Act
	err := resolver.Settle(ctx, session.ID)

	// Assert
	require.NoError(t, err)
	require.Empty(t, bank.Entries())

	completed, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateComplete, completed.State)
	require.Equal(t, domain.SideHeads, *completed.Result)
}

func Test_Resolver_Settle_Unknown_Session_Is_A_NoOp(t *testing.T) {
	// Arrange
	store := NewMemoryStore()
	resolver := newTestResolver(store, ledger.NewInMemoryLedger(1000), NopNotifier{}, domain.SideHeads)

	// Act
	err := resolver.Settle(context.Background(), uuid.NewString())

	// Assert
	require.NoError(t, err)
}

func Test_SessionView_Hides_Bet_Sides_While_Betting(t *testing.T) {
	// Arrange
	now := time.Now()
	first := uuid.New()

	session := domain.NewSession(now, time.Minute)
	require.NoError(t, session.Enroll(first, "first", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.Enroll(uuid.New(), "second", nil, now, time.Minute, time.Minute))
	require.NoError(t, session.PlaceBet(first, domain.SideHeads, 10, now, time.Minute))

	// Act
	view := NewSessionView(session)

	// Assert
	require.Nil(t, view.Result)
	for _, p := range view.Participants {
		require.Nil(t, p.BetSide)
	}
	require.True(t, view.Participants[0].HasBet)
	require.False(t, view.Participants[1].HasBet)
}

func Test_SessionView_Withholds_Result_Until_Complete(t *testing.T) {
	// Arrange
	store := NewMemoryStore()
	session, _, _ := flippingSession(t, store, 10)
	require.NoError(t, session.RecordResult(domain.SideHeads))

	// Act
	flipping := NewSessionView(session)

	require.NoError(t, session.CompleteNormal())
	complete := NewSessionView(session)

	// Assert
	require.Nil(t, flipping.Result)
	require.NotNil(t, flipping.Participants[0].BetSide)

	require.NotNil(t, complete.Result)
	require.Equal(t, domain.SideHeads, *complete.Result)
}
