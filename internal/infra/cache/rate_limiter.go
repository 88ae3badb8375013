package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// INCR + EXPIREの固定窓。複数インスタンスで共有できる。
type RateLimiter struct {
	rdb    counterStore
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return newRateLimiter(rdb, limit, window, time.Now)
}

func newRateLimiter(rdb counterStore, limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{rdb: rdb, limit: int64(limit), window: window, now: now}
}

// 窓の中でlimit回目までtrue
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	k := windowKey(key, l.now(), l.window)
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	//最初の1回だけ期限を付ける（窓の2倍残して境界の取りこぼしを防ぐ）
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, 2*l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= l.limit, nil
}

func windowKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf(KeyRateLimit, key, now.UnixNano()/int64(window))
}
