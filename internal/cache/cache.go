package cache

import (
	"context"
	"time"
)

// DefaultResponseTTL is how long a generated reply stays servable.
const DefaultResponseTTL = time.Hour

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
