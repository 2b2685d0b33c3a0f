package cache

import (
	"context"
	"time"
)

// BytesCache — лучшее-усилие кэш: вызывающий обязан переживать и miss, и error.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
