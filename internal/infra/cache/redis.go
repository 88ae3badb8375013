package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 固定窓レート制限: ratelimit:{key}:{window番号}
	KeyRateLimit = "ratelimit:%s:%d"

	// イベント処理の重複排除: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// 起動時の疎通確認
func Ping(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
