package idempotency

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestCheckMiss(t *testing.T) {
	s := NewStore()

	v, ok := s.Check("unknown")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestRecordAndCheck(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name  string
		value any
	}{
		{"string", "result"},
		{"int", 42},
		{"nil", nil},
		{"struct", struct{ N int }{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Record(tt.name, tt.value)

			v, ok := s.Check(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestRecordOverwrites(t *testing.T) {
	s := NewStore()

	s.Record("k", "first")
	s.Record("k", "second")

	v, ok := s.Check("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, s.Len())
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))

	s.RecordTTL("k", "v", 500*time.Millisecond)

	v, ok := s.Check("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(501 * time.Millisecond)

	_, ok = s.Check("k")
	assert.False(t, ok, "entry must expire after its TTL")
	assert.Equal(t, 0, s.Len(), "expired entry is removed lazily on read")
}

func TestLRUEvictionByLastAccess(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithCapacity(3), WithClock(clock.Now))

	s.Record("oldest", 1)
	clock.Advance(time.Millisecond)
	s.Record("middle", 2)
	clock.Advance(time.Millisecond)
	s.Record("newest", 3)
	clock.Advance(time.Millisecond)

	// Reading the oldest key refreshes it, so the eviction victim is the
	// second-oldest, not the just-read one.
	_, ok := s.Check("oldest")
	require.True(t, ok)

	clock.Advance(time.Millisecond)
	s.Record("extra", 4)

	_, ok = s.Check("middle")
	assert.False(t, ok, "least-recently-accessed entry should have been evicted")

	_, ok = s.Check("oldest")
	assert.True(t, ok, "recently read entry must survive")
	_, ok = s.Check("newest")
	assert.True(t, ok)
	_, ok = s.Check("extra")
	assert.True(t, ok)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(1), s.Stats().Evictions)
}

func TestDoExecutesOnce(t *testing.T) {
	s := NewStore()

	calls := 0
	fn := func() (any, error) {
		calls++
		return "done", nil
	}

	for i := 0; i < 3; i++ {
		v, err := s.Do("op", fn)
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	}

	assert.Equal(t, 1, calls, "the operation must execute exactly once")
}

func TestDoDoesNotCacheFailures(t *testing.T) {
	s := NewStore()
	boom := errors.New("transient")

	calls := 0
	_, err := s.Do("op", func() (any, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := s.Do("op", func() (any, error) {
		calls++
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, 2, calls, "failures must not block retries")
}

func TestPurgeExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))

	s.RecordTTL("short", 1, time.Second)
	s.RecordTTL("long", 2, time.Hour)

	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, s.PurgeExpired())
	assert.Equal(t, 1, s.Len())

	_, ok := s.Check("long")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	s := NewStore()

	s.Record("k", "v")
	s.Check("k")
	s.Check("missing")

	stats := s.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestReset(t *testing.T) {
	s := NewStore()

	s.Record("k", "v")
	s.Reset()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Check("k")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(WithCapacity(64))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := "k-" + strconv.Itoa(j%80)
				s.Record(key, n)
				s.Check(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 64, "capacity bound must hold under concurrency")
}
