package wager

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notifier pushes session snapshots to whoever is subscribed. Publishes are
// a side channel, not part of the commit - implementations swallow delivery
// failures and a state transition never rolls back because of one.
type Notifier interface {
	Publish(ctx context.Context, sessionID string, snapshot SessionView)
}

func NotificationChannel(sessionID string) string {
	return "session:" + sessionID
}

// RedisNotifier broadcasts snapshots over redis pub/sub, one channel per
// session.
type RedisNotifier struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client redis.UniversalClient, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, sessionID string, snapshot SessionView) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		n.logger.Error("failed to serialize session snapshot", zap.Error(err), zap.String("session_id", sessionID))
		return
	}

	if err := n.client.Publish(ctx, NotificationChannel(sessionID), payload).Err(); err != nil {
		n.logger.Warn("failed to publish session snapshot", zap.Error(err), zap.String("session_id", sessionID))
	}
}

// NopNotifier drops every snapshot.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, SessionView) {}
