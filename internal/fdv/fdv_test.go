package fdv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchwatch/monitor/internal/cache"
)

func TestVirtualUSDPriceCachesAcrossCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"price": 2.5}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	for i := 0; i < 3; i++ {
		price, ok := c.VirtualUSDPrice(context.Background())
		require.True(t, ok)
		assert.Equal(t, 2.5, price)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVirtualUSDPriceFallsBackToStaleOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"price": 3.1}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.usdQuote = cache.NewTTL[float64](time.Millisecond)

	price, ok := c.VirtualUSDPrice(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3.1, price)

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)
	price, ok = c.VirtualUSDPrice(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3.1, price, "should serve the stale cached quote rather than fail")
}

func TestVirtualUSDPriceReturnsNotOkWithNoCacheAndFailingFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, ok := c.VirtualUSDPrice(context.Background())
	assert.False(t, ok)
}
