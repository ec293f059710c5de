package pushclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEndpoint string

func (f fixedEndpoint) CurrentPushEndpoint() string { return string(f) }

func TestConnectFailureReportsDisconnected(t *testing.T) {
	var statuses []bool
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), func(connected bool) {
		statuses = append(statuses, connected)
	})

	err := c.Connect(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, statuses)
	assert.False(t, statuses[len(statuses)-1])
}

func TestAddSubscriptionBeforeConnectDoesNotPanic(t *testing.T) {
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), nil)
	delivered := int32(0)

	assert.NotPanics(t, func() {
		c.AddSubscription(ethereum.FilterQuery{}, func(types.Log) {
			atomic.AddInt32(&delivered, 1)
		})
	})
	assert.Equal(t, int32(0), atomic.LoadInt32(&delivered))
}

func TestDestroyBeforeConnectIsSafe(t *testing.T) {
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), nil)
	assert.NotPanics(t, func() {
		c.Destroy()
	})
}

func TestDestroyDisablesFurtherReconnects(t *testing.T) {
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), nil)
	c.Destroy()

	// handleClose after Destroy must be a no-op (closed flag short-circuits).
	assert.NotPanics(t, func() {
		c.handleClose()
	})
	assert.False(t, c.retry)
}

func TestDialFailureKeepsRetryingAfterMultipleConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	var statuses []bool
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), func(connected bool) {
		mu.Lock()
		statuses = append(statuses, connected)
		mu.Unlock()
	})
	c.delay = 5 * time.Millisecond

	err := c.Connect(context.Background())
	require.Error(t, err)

	// A failed dial must re-arm handleClose's backoff timer itself, with
	// no external caller prompting a second Connect — otherwise the very
	// first failed reconnect attempt would permanently kill the loop.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) >= 3
	}, 2*time.Second, 5*time.Millisecond, "expected repeated automatic reconnect attempts after consecutive dial failures")
}

func TestConnectIsIdempotentWhenAlreadyConnected(t *testing.T) {
	c := New(fixedEndpoint("ws://127.0.0.1:9"), zerolog.Nop(), nil)
	c.mu.Lock()
	c.st = connected
	c.mu.Unlock()

	err := c.Connect(context.Background())
	assert.NoError(t, err)
}
