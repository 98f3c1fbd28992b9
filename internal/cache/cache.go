// Package cache define la interfaz de cache compartida por los stores
// transitorios (authorization requests, provider configs).
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)

	// Take obtiene y elimina el valor de forma atómica (remove-on-read).
	// Solo un caller concurrente puede observar ok=true para la misma key.
	Take(ctx context.Context, key string) (value []byte, ok bool)
}
