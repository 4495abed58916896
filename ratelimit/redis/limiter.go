package redislimiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a Redis-backed sliding window of rejected tokens per client, using ZSETs.
// Replicas pointed at the same Redis share one budget per client.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func New(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *Limiter) key(client string) string { return l.prefix + client }

// Blocked reports whether client has reached the failure limit within the window.
func (l *Limiter) Blocked(ctx context.Context, client string) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return false, nil
	}
	if client == "" {
		return false, errors.New("key required")
	}
	start := time.Now().Add(-l.window).UnixMilli()
	count, err := l.rdb.ZCount(ctx, l.key(client), "("+strconv.FormatInt(start, 10), "+inf").Result()
	if err != nil {
		return false, err
	}
	return count >= int64(l.limit), nil
}

// RecordFailure adds one failure for client and trims entries older than the window.
func (l *Limiter) RecordFailure(ctx context.Context, client string) error {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return nil
	}
	if client == "" {
		return errors.New("key required")
	}
	now := time.Now().UnixMilli()
	start := now - l.window.Milliseconds()
	k := l.key(client)
	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", start))
	pipe.Expire(ctx, k, l.window+time.Second)
	_, err := pipe.Exec(ctx)
	return err
}
