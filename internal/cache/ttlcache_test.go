package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCachesWithinWindow(t *testing.T) {
	c := NewTTL[int](50 * time.Millisecond)
	var calls int32

	fetch := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v, err := c.Get("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.Get("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	time.Sleep(60 * time.Millisecond)
	_, err = c.Get("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTTLSingleFlightsConcurrentMisses(t *testing.T) {
	c := NewTTL[int](time.Minute)
	var calls int32
	start := make(chan struct{})

	fetch := func() (int, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get("shared", fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, 7, r)
	}
}

func TestGetOrStaleFallsBackToCachedValue(t *testing.T) {
	c := NewTTL[int](10 * time.Millisecond)

	v, err := c.Get("k", func() (int, error) { return 100, nil })
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	time.Sleep(15 * time.Millisecond)

	v, stale, err := c.GetOrStale("k", func() (int, error) {
		return 0, errors.New("upstream down")
	})
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, 100, v)
}

func TestGetOrStaleWithNoCacheReturnsError(t *testing.T) {
	c := NewTTL[int](time.Minute)
	_, stale, err := c.GetOrStale("k", func() (int, error) {
		return 0, errors.New("upstream down")
	})
	require.Error(t, err)
	assert.False(t, stale)
}
