package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TestTokenBucket_Allow 測試突發與填充
func TestTokenBucket_Allow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(3, 2, clock.Now)

	t.Run("burst up to capacity", func(t *testing.T) {
		assert.True(t, tb.Allow())
		assert.True(t, tb.Allow())
		assert.True(t, tb.Allow())
		assert.False(t, tb.Allow())
	})

	t.Run("partial refill accumulates", func(t *testing.T) {
		clock.Advance(250 * time.Millisecond)
		assert.False(t, tb.Allow())
		clock.Advance(250 * time.Millisecond)
		assert.True(t, tb.Allow())
		assert.False(t, tb.Allow())
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		clock.Advance(time.Hour)
		assert.Equal(t, 3, tb.Tokens())
		for range 3 {
			assert.True(t, tb.Allow())
		}
		assert.False(t, tb.Allow())
	})
}

// TestTokenBucket_Concurrent 並發取令牌不會超發
func TestTokenBucket_Concurrent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(100, 0, clock.Now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 500 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tb.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}
