package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/trafficguard/internal/clock"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *clock.MockClock) {
	mc := clock.NewMockClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewLimiter(Config{MaxPackets: limit, Window: window, Clock: mc}), mc
}

func TestLimitPlusOne(t *testing.T) {
	l, _ := newTestLimiter(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		assert.False(t, l.IsRateLimited("10.0.0.5"), "packet %d should pass", i+1)
	}
	assert.True(t, l.IsRateLimited("10.0.0.5"), "packet 11 should be limited")
	assert.True(t, l.IsRateLimited("10.0.0.5"), "limited packets are not recorded but the window is still full")
}

func TestWindowDecay(t *testing.T) {
	l, mc := newTestLimiter(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		require.False(t, l.IsRateLimited("10.0.0.5"))
	}
	require.True(t, l.IsRateLimited("10.0.0.5"))

	// A timestamp exactly window old is still inside the window.
	mc.Advance(10 * time.Second)
	assert.True(t, l.IsRateLimited("10.0.0.5"))

	mc.Advance(time.Millisecond)
	assert.False(t, l.IsRateLimited("10.0.0.5"))
}

func TestSlidingNotFixedWindow(t *testing.T) {
	l, mc := newTestLimiter(2, 10*time.Second)

	require.False(t, l.IsRateLimited("k")) // t=0
	mc.Advance(6 * time.Second)
	require.False(t, l.IsRateLimited("k")) // t=6
	mc.Advance(5 * time.Second)
	// t=11: the t=0 stamp expired, the t=6 stamp has not.
	assert.False(t, l.IsRateLimited("k"))
	assert.True(t, l.IsRateLimited("k"))
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.False(t, l.IsRateLimited("10.0.0.1"))
	assert.True(t, l.IsRateLimited("10.0.0.1"))
	assert.False(t, l.IsRateLimited("10.0.0.2"))
	assert.Equal(t, 2, l.Len())
}

func TestDisabledLimiterIsNil(t *testing.T) {
	l := NewLimiter(Config{MaxPackets: 0})
	require.Nil(t, l)
	for i := 0; i < 100; i++ {
		assert.False(t, l.IsRateLimited("10.0.0.1"))
	}
	assert.Equal(t, 0, l.Len())
}

func TestIdleTTLFloor(t *testing.T) {
	l := NewLimiter(Config{MaxPackets: 1, Window: time.Minute, IdleTTL: time.Second})
	assert.Equal(t, 2*time.Minute, l.idleTTL)
}

func TestConcurrentSameKey(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if !l.IsRateLimited("shared") {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load())
}

func TestConcurrentManyKeys(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := fmt.Sprintf("10.0.0.%d", g)
			for i := 0; i < 3; i++ {
				assert.False(t, l.IsRateLimited(key))
			}
			assert.True(t, l.IsRateLimited(key))
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 16, l.Len())
}

func TestEvictedWindowIsReplacedNotRevived(t *testing.T) {
	l, _ := newTestLimiter(2, 10*time.Second)

	stale := l.acquire("10.0.0.5")
	l.table.Delete("10.0.0.5")

	require.False(t, l.IsRateLimited("10.0.0.5"))
	v, ok := l.table.Get("10.0.0.5")
	require.True(t, ok)
	current := v.(*window)
	assert.NotSame(t, stale, current)
	assert.Len(t, current.stamp, 1)
	assert.Empty(t, stale.stamp)

	// A later lookup keeps the live window instead of restoring the evicted one.
	assert.Same(t, current, l.acquire("10.0.0.5"))
	assert.Equal(t, 1, l.Len())
}
