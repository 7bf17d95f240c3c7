// Package redis relays dashboard change events to other processes through Redis.
package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parkpay/backend/services/dashboard-service/internal/models"
)

// Publisher PUBLISHes every event on a channel and keeps the latest aggregates under a key.
type Publisher struct {
	client   goredis.Cmdable
	channel  string
	statsKey string
	logger   *zap.Logger
}

// NewPublisher builds Publisher.
func NewPublisher(client goredis.Cmdable, channel, statsKey string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, channel: channel, statsKey: statsKey, logger: logger}
}

// Publish implements watcher.Sink. Redis failures are logged, never returned.
func (p *Publisher) Publish(ctx context.Context, ev models.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, string(payload)).Err(); err != nil {
		p.logger.Warn("failed to publish event", zap.String("channel", p.channel), zap.Error(err))
	}

	statsPayload, err := json.Marshal(ev.Stats)
	if err != nil {
		p.logger.Error("failed to encode stats", zap.Error(err))
		return
	}
	if err := p.client.Set(ctx, p.statsKey, string(statsPayload), 0).Err(); err != nil {
		p.logger.Warn("failed to store stats", zap.String("key", p.statsKey), zap.Error(err))
	}
}
