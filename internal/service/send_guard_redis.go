package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSendGuard counts sends per (email, ip) pair in a fixed window.
// Keys carry a hash of the email, never the address itself.
type RedisSendGuard struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisSendGuard(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisSendGuard {
	if prefix == "" {
		prefix = "verification_send_guard"
	}
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RedisSendGuard{client: client, prefix: prefix, limit: limit, window: window}
}

func (g *RedisSendGuard) Allow(ctx context.Context, email, ip string) (bool, error) {
	if g.client == nil {
		return true, nil
	}
	key := g.key(email, ip)
	pipe := g.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("send guard incr: %w", err)
	}
	return incr.Val() <= int64(g.limit), nil
}

func (g *RedisSendGuard) key(email, ip string) string {
	return fmt.Sprintf("%s:%s:%s", g.prefix, hashToken(email), ip)
}
