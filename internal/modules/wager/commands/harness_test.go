package commands

import (
	"time"

	"github.com/coinduel/backend/internal/config"
	"github.com/coinduel/backend/internal/modules/ledger"
	"github.com/coinduel/backend/internal/modules/wager"
	"github.com/coinduel/backend/internal/modules/wager/domain"

	"go.uber.org/zap"
)

type riggedCoin struct {
	side domain.Side
}

func (c riggedCoin) DrawBinary() domain.Side {
	return c.side
}

// harness wires the command handlers over the in-memory store and ledger,
// with a deterministic coin. Handlers are exercised directly rather than
// through the mediator registry, which is process-global.
type harness struct {
	store    *wager.MemoryStore
	bank     *ledger.InMemoryLedger
	resolver *wager.Resolver
	cfg      config.WagerConfiguration

	join  *JoinQueueCommandHandler
	bet   *PlaceBetCommandHandler
	leave *LeaveSessionCommandHandler
}

func newHarness(result domain.Side) *harness {
	store := wager.NewMemoryStore()
	bank := ledger.NewInMemoryLedger(1000)

	cfg := config.WagerConfiguration{
		WaitTimeout:   2 * time.Minute,
		BetTimeout:    time.Minute,
		SweepInterval: time.Second,
		FlipDelay:     0,
		SettleTimeout: 10 * time.Millisecond,
	}

	resolver := wager.NewResolver(store, bank, wager.NopNotifier{}, riggedCoin{side: result}, zap.NewNop(), wager.ResolverConfig{
		FlipDelay:     cfg.FlipDelay,
		SettleTimeout: cfg.SettleTimeout,
		ForfeitPolicy: wager.ForfeitTransferStake,
	})

	return &harness{
		store:    store,
		bank:     bank,
		resolver: resolver,
		cfg:      cfg,
		join:     NewJoinQueueCommandHandler(store, wager.NopNotifier{}, resolver, cfg),
		bet:      NewPlaceBetCommandHandler(store, wager.NopNotifier{}, resolver, cfg),
		leave:    NewLeaveSessionCommandHandler(store, wager.NopNotifier{}, resolver),
	}
}
