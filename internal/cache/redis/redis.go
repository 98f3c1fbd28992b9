package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Cache struct {
	cli    *goredis.Client
	prefix string
}

func New(addr string, db int, prefix string) *Cache {
	return &Cache{
		cli:    goredis.NewClient(&goredis.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

func (r *Cache) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.cli.Get(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) {
	_ = r.cli.Set(ctx, r.key(k), v, ttl).Err()
}

func (r *Cache) Delete(ctx context.Context, k string) {
	_ = r.cli.Del(ctx, r.key(k)).Err()
}

// Take usa GETDEL: la atomicidad la garantiza redis, no hace falta lock local.
func (r *Cache) Take(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.cli.GetDel(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Ping verifica conectividad (usado en bootstrap).
func (r *Cache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}
