package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Cache struct {
	mu sync.Mutex
	c  *gocache.Cache
}

func New(defaultTTL time.Duration) *Cache {
	return &Cache{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Cache) Get(_ context.Context, k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Cache) Set(_ context.Context, k string, v []byte, ttl time.Duration) {
	m.c.Set(k, v, ttl)
}

func (m *Cache) Delete(_ context.Context, k string) { m.c.Delete(k) }

// Take elimina bajo lock para que solo un caller gane la key.
func (m *Cache) Take(_ context.Context, k string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	m.c.Delete(k)
	b, _ := v.([]byte)
	return b, true
}
