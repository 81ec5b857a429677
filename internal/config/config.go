package config

import (
	"path"
	"time"

	"github.com/coinduel/backend/internal/env"

	"go.uber.org/zap"
)

const (
	PortEnv        = "PORT"
	DatabaseUrlEnv = "DATABASE_URL"
	RedisUrlEnv    = "REDIS_URL"
	RootPathEnv    = "ROOT_PATH"

	WaitTimeoutEnv     = "WAIT_TIMEOUT"
	BetTimeoutEnv      = "BET_TIMEOUT"
	SweepIntervalEnv   = "SWEEP_INTERVAL"
	FlipDelayEnv       = "FLIP_DELAY"
	SettleTimeoutEnv   = "SETTLE_TIMEOUT"
	StartingBalanceEnv = "STARTING_BALANCE"
)

// WagerConfiguration carries the tunables of the session coordinator.
// The deadlines are re-armed on every state change, so WaitTimeout bounds
// how long a lone participant sits in matchmaking and BetTimeout bounds
// each of the betting and flipping phases separately.
type WagerConfiguration struct {
	WaitTimeout   time.Duration
	BetTimeout    time.Duration
	SweepInterval time.Duration
	FlipDelay     time.Duration
	SettleTimeout time.Duration
}

type Config struct {
	Logger *zap.Logger

	Port           int
	DatabaseURL    string
	RedisURL       string
	MigrationsPath string

	StartingBalance int64

	Wager WagerConfiguration
}

func Load() (Config, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return Config{}, err
	}

	port := env.MustGetInt(PortEnv)
	dbURL := env.MustGetString(DatabaseUrlEnv)
	redisURL := env.MustGetString(RedisUrlEnv)

	rootPath := env.MustGetString(RootPathEnv)
	migrationsPath := path.Join(rootPath, "db", "migrations")

	return Config{
		Logger:          logger,
		Port:            port,
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		MigrationsPath:  migrationsPath,
		StartingBalance: env.GetInt64OrDefault(StartingBalanceEnv, 1000),
		Wager: WagerConfiguration{
			WaitTimeout:   env.GetDurationOrDefault(WaitTimeoutEnv, 2*time.Minute),
			BetTimeout:    env.GetDurationOrDefault(BetTimeoutEnv, time.Minute),
			SweepInterval: env.GetDurationOrDefault(SweepIntervalEnv, time.Second),
			FlipDelay:     env.GetDurationOrDefault(FlipDelayEnv, 3*time.Second),
			SettleTimeout: env.GetDurationOrDefault(SettleTimeoutEnv, 10*time.Second),
		},
	}, nil
}
