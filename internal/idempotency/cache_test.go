package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetAfterPut(t *testing.T) {
	c := NewMemoryCache(15*time.Minute, 5*time.Minute)
	defer c.Stop()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k1", []byte(`{"id":"m-1"}`)))
	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"id":"m-1"}`), got)
}

func TestExpiredRecordInvisibleBeforeSweep(t *testing.T) {
	c := NewMemoryCache(15*time.Minute, 5*time.Minute)
	defer c.Stop()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Put(ctx, "k1", []byte("v")))

	c.now = func() time.Time { return base.Add(16 * time.Minute) }
	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired record must not be served even if not yet swept")
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c := NewMemoryCache(15*time.Minute, 5*time.Minute)
	defer c.Stop()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Put(ctx, "old", []byte("a")))

	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, c.Put(ctx, "fresh", []byte("b")))

	c.now = func() time.Time { return base.Add(16 * time.Minute) }
	c.sweep()

	c.mu.RLock()
	_, oldThere := c.records["old"]
	_, freshThere := c.records["fresh"]
	c.mu.RUnlock()
	assert.False(t, oldThere)
	assert.True(t, freshThere)
}

func TestConcurrentPutGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, 20*time.Second)
	defer c.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%10)
			_ = c.Put(ctx, key, []byte(key))
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		got, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(key), got)
	}
}

func TestSweepIntervalBounded(t *testing.T) {
	// A sweep interval above window/3 gets clamped.
	c := NewMemoryCache(15*time.Minute, time.Hour)
	defer c.Stop()
	require.NoError(t, c.Put(context.Background(), "k", []byte("v")))
}
