package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"voicebridge/internal/call"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes session updates onto a redis pub/sub channel.
// The realtime gateway fans them out to connected clients.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, s call.Session) error {
	if p.rdb == nil {
		return fmt.Errorf("notify: redis client is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("notify: marshal session: %w", err)
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}
