package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTakeRemovesOnRead(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)

	v, ok := c.Take(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	_, ok = c.Take(ctx, "k")
	require.False(t, ok)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

// Solo un goroutine concurrente puede observar el valor.
func TestTakeIsAtomic(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()
	c.Set(ctx, "state", []byte("ctx"), time.Minute)

	const n = 32
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := c.Take(ctx, "state"); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins)
}

func TestTakeExpired(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	_, ok := c.Take(ctx, "k")
	require.False(t, ok)
}
