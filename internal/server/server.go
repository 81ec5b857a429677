package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"

	"github.com/coinduel/backend/internal/config"
	"github.com/coinduel/backend/internal/modules/core"
	"github.com/coinduel/backend/internal/modules/ledger"
	ledgerqueries "github.com/coinduel/backend/internal/modules/ledger/queries"
	"github.com/coinduel/backend/internal/modules/wager"
	wagercommands "github.com/coinduel/backend/internal/modules/wager/commands"
	wagerqueries "github.com/coinduel/backend/internal/modules/wager/queries"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/migrate-go"
	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

type Server interface {
	Start() error
	Stop() error
}

var _ Server = &HTTPServer{}

// HTTPServer acts as the composition root for the application.
type HTTPServer struct {
	server      *http.Server
	db          *sql.DB
	redisClient *redis.Client

	watcher     *wager.TimeoutWatcher
	stopWatcher context.CancelFunc
}

func NewHTTPServer(config config.Config) (Server, error) {
	baseCtx := context.Background()

	core.SetLogger(config.Logger)

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate.Run(baseCtx, db, config.MigrationsPath); err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(redisOpts)

	requestLoggingBehavior := core.RequestLoggingBehavior{Logger: config.Logger}
	handlerErrorLoggingBehavior := core.HandlerErrorLoggingBehavior{Logger: config.Logger}
	requestValidationBehavior := core.RequestValidationBehavior{}

	mediator.RegisterPipelineBehavior(&requestLoggingBehavior)
	mediator.RegisterPipelineBehavior(&handlerErrorLoggingBehavior)
	mediator.RegisterPipelineBehavior(&requestValidationBehavior)

	// collaborators

	store := wager.NewPostgresStore(db)
	accountLedger := ledger.NewPostgresLedger(db, config.StartingBalance)
	notifier := wager.NewRedisNotifier(redisClient, config.Logger)

	resolver := wager.NewResolver(
		store,
		accountLedger,
		notifier,
		wager.CryptoRandomSource{},
		config.Logger,
		wager.ResolverConfig{
			FlipDelay:     config.Wager.FlipDelay,
			SettleTimeout: config.Wager.SettleTimeout,
			ForfeitPolicy: wager.ForfeitTransferStake,
		},
	)

	watcher := wager.NewTimeoutWatcher(store, resolver, notifier, config.Logger, config.Wager.SweepInterval)

	// handler registration

	// wager

	joinQueueHandler := wagercommands.NewJoinQueueCommandHandler(store, notifier, resolver, config.Wager)
	err = mediator.RegisterRequestHandler[wagercommands.JoinQueueCommand, wagercommands.JoinQueueResponse](
		joinQueueHandler,
	)
	if err != nil {
		return nil, err
	}

	placeBetHandler := wagercommands.NewPlaceBetCommandHandler(store, notifier, resolver, config.Wager)
	err = mediator.RegisterRequestHandler[wagercommands.PlaceBetCommand, core.Unit](
		placeBetHandler,
	)
	if err != nil {
		return nil, err
	}

	leaveSessionHandler := wagercommands.NewLeaveSessionCommandHandler(store, notifier, resolver)
	err = mediator.RegisterRequestHandler[wagercommands.LeaveSessionCommand, core.Unit](
		leaveSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	getSnapshotHandler := wagerqueries.NewGetSnapshotQueryHandler(store)
	err = mediator.RegisterRequestHandler[wagerqueries.GetSnapshotQuery, wager.SessionView](
		getSnapshotHandler,
	)
	if err != nil {
		return nil, err
	}

	// ledger

	getBalanceHandler := ledgerqueries.NewGetBalanceQueryHandler(accountLedger)
	err = mediator.RegisterRequestHandler[ledgerqueries.GetBalanceQuery, ledgerqueries.GetBalanceResponse](
		getBalanceHandler,
	)
	if err != nil {
		return nil, err
	}

	// http

	router := chi.NewRouter()
	router.Use(core.CorrelationIDHTTPMiddleware)

	router.Post("/wagers/actions/join", wagercommands.HandleJoinQueue)
	router.Put("/wagers/{id}/actions/bet", wagercommands.HandlePlaceBet)
	router.Put("/wagers/{id}/actions/leave", wagercommands.HandleLeaveSession)
	router.Get("/wagers/{id}", wagerqueries.HandleGetSnapshot)

	router.Get("/accounts/{id}/balance", ledgerqueries.HandleGetBalance)

	server := http.Server{
		Addr:    net.JoinHostPort("", fmt.Sprintf("%d", config.Port)),
		Handler: router,
	}

	watcherCtx, stopWatcher := context.WithCancel(baseCtx)
	go watcher.Run(watcherCtx)

	return &HTTPServer{
		server:      &server,
		db:          db,
		redisClient: redisClient,
		watcher:     watcher,
		stopWatcher: stopWatcher,
	}, nil
}

func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop() error {
	s.stopWatcher()

	if err := s.server.Close(); err != nil {
		return err
	}

	if err := s.redisClient.Close(); err != nil {
		return err
	}

	return s.db.Close()
}
