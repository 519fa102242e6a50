package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/casbin/caswaf/testutils"
)

// fakeClock lets tests drive the limiter's notion of time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T) (*Limiter, *fakeClock) {
	l := NewLimiter(testutils.NewTestLogger(t))
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.now
	return l, clock
}

func TestExactRateIsNeverBlocked(t *testing.T) {
	assert := assert.New(t)
	l, clock := newTestLimiter(t)

	// Exactly 100 requests per second for three seconds.
	for second := 0; second < 3; second++ {
		for i := 0; i < 100; i++ {
			blocked := l.Check("admin/rate", "198.51.100.7", 100, 60)
			assert.False(blocked, "request %d in second %d was blocked", i, second)
		}
		clock.advance(time.Second)
	}
}

func TestOneRequestOverRateIsBlocked(t *testing.T) {
	assert := assert.New(t)
	l, _ := newTestLimiter(t)

	for i := 0; i < 100; i++ {
		assert.False(l.Check("admin/rate", "198.51.100.7", 100, 60))
	}

	// Request 101 within the same window.
	assert.True(l.Check("admin/rate", "198.51.100.7", 100, 60))
}

func TestBlockOutlastsIdlePeriod(t *testing.T) {
	assert := assert.New(t)
	l, clock := newTestLimiter(t)

	// Arrange: exceed the limit.
	for i := 0; i < 3; i++ {
		l.Check("admin/rate", "198.51.100.7", 2, 30)
	}

	// Act + Assert: no traffic for a while, then a single request. The block
	// is a timed penalty, so it must still be in force.
	clock.advance(29 * time.Second)
	assert.True(l.Check("admin/rate", "198.51.100.7", 2, 30))

	// After the full block duration the client is admitted again.
	clock.advance(2 * time.Second)
	assert.False(l.Check("admin/rate", "198.51.100.7", 2, 30))
}

func TestSeparateIpsAreCountedSeparately(t *testing.T) {
	assert := assert.New(t)
	l, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		l.Check("admin/rate", "198.51.100.7", 2, 30)
	}

	assert.True(l.Check("admin/rate", "198.51.100.7", 2, 30))
	assert.False(l.Check("admin/rate", "198.51.100.8", 2, 30))
}

func TestSeparateRulesAreCountedSeparately(t *testing.T) {
	assert := assert.New(t)
	l, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		l.Check("admin/rate-a", "198.51.100.7", 2, 30)
	}

	assert.True(l.Check("admin/rate-a", "198.51.100.7", 2, 30))
	assert.False(l.Check("admin/rate-b", "198.51.100.7", 2, 30))
}

func TestRateChangeResetsEntry(t *testing.T) {
	assert := assert.New(t)
	l, _ := newTestLimiter(t)

	for i := 0; i < 2; i++ {
		assert.False(l.Check("admin/rate", "198.51.100.7", 2, 30))
	}

	// The rule's configured rate goes up; the stale entry must not carry
	// over its drained bucket.
	assert.False(l.Check("admin/rate", "198.51.100.7", 10, 30))
}

func TestIdleEntriesAreEvicted(t *testing.T) {
	assert := assert.New(t)
	l, clock := newTestLimiter(t)

	for i := 0; i < 50; i++ {
		l.Check("admin/rate", fmt.Sprintf("198.51.100.%d", i), 100, 10)
	}
	assert.Equal(50, l.Len())

	// Far beyond both the block duration and the idle TTL floor.
	clock.advance(time.Hour)
	l.Check("admin/rate", "203.0.113.9", 100, 10)

	assert.Equal(1, l.Len())
}

func TestNonPositiveRateNeverBlocks(t *testing.T) {
	assert := assert.New(t)
	l, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		assert.False(l.Check("admin/rate", "198.51.100.7", 0, 30))
	}
}

func TestConcurrentChecksDoNotRace(t *testing.T) {
	l, _ := newTestLimiter(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ip := fmt.Sprintf("198.51.100.%d", g)
			for i := 0; i < 200; i++ {
				l.Check("admin/rate", ip, 50, 5)
			}
		}(g)
	}
	wg.Wait()
}
