package rpcpool

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(n int) *Pool {
	eps := make([]string, n)
	for i := range eps {
		eps[i] = "https://rpc-" + string(rune('a'+i)) + ".example"
	}
	return New(eps, []string{"wss://push.example"}, zerolog.Nop())
}

func TestRotateRequestWrapsAround(t *testing.T) {
	p := newTestPool(3)
	first := p.CurrentEndpoint()
	p.RotateRequest()
	second := p.CurrentEndpoint()
	p.RotateRequest()
	third := p.CurrentEndpoint()
	p.RotateRequest()
	backToFirst := p.CurrentEndpoint()

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, third)
	assert.Equal(t, first, backToFirst)
}

func TestCallRotatesThroughEndpointsOnFailure(t *testing.T) {
	p := newTestPool(3)
	var attempted []string

	_, err := Call(context.Background(), p, func(ctx context.Context, c *ethclient.Client) (int, error) {
		attempted = append(attempted, p.CurrentEndpoint())
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.Len(t, attempted, 3, "must exhaust the whole list before returning fatal")
}

func TestCallSucceedsWithoutRotatingOnFirstTry(t *testing.T) {
	p := newTestPool(2)
	startEp := p.CurrentEndpoint()

	v, err := Call(context.Background(), p, func(ctx context.Context, c *ethclient.Client) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, startEp, p.CurrentEndpoint())
}

func TestCallRecoversAfterOneFailure(t *testing.T) {
	p := newTestPool(2)
	calls := 0

	v, err := Call(context.Background(), p, func(ctx context.Context, c *ethclient.Client) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first endpoint down")
		}
		return 99, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 99, v)
	assert.Equal(t, 2, calls)
}

func TestRotatePushWrapsAround(t *testing.T) {
	p := New(nil, []string{"wss://a", "wss://b"}, zerolog.Nop())
	assert.Equal(t, "wss://b", p.RotatePush())
	assert.Equal(t, "wss://a", p.RotatePush())
}

func TestSetPushConnectedReflectsInHealth(t *testing.T) {
	p := New([]string{"https://rpc1.example"}, []string{"wss://push.example"}, zerolog.Nop())
	p.SetPushConnected(true)

	snap := p.HealthSnapshot(context.Background())
	assert.True(t, snap.PushConnected)
	assert.Equal(t, "wss://push.example", snap.CurrentPushEndpoint)
}
