package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type dedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// 同じイベントを2回処理しないための印
type Deduper struct {
	rdb     dedupStore
	service string
	ttl     time.Duration
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: TTLDedup}
}

// 初めて見たイベントならtrue（印を付ける）
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, d.key(eventID), "1", d.ttl).Result()
}

// 処理に失敗したら印を外して再処理できるようにする
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, d.key(eventID)).Err()
}

func (d *Deduper) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.service, eventID)
}
