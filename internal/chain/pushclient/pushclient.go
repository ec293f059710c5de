// Package pushclient holds the single long-lived subscription
// connection to the currently selected push (websocket JSON-RPC)
// endpoint, reconnecting with exponential backoff and re-registering
// every live log subscription on each new connection. It never replays
// historical events itself — backfill is the ledger scanner's job —
// it only restores live delivery going forward.
package pushclient

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/errkind"
)

const (
	initialDelay = 1 * time.Second
	maxDelay     = 60 * time.Second
)

// state is the client's own reconnect state machine:
// disconnected -> connecting -> connected -> disconnected.
type state int

const (
	disconnected state = iota
	connecting
	connected
)

// EndpointSource returns the current push endpoint to dial; a
// rpcpool.Pool satisfies this via CurrentPushEndpoint.
type EndpointSource interface {
	CurrentPushEndpoint() string
}

type registeredSub struct {
	query   ethereum.FilterQuery
	handler func(types.Log)

	sub   ethereum.Subscription
	logCh chan types.Log
}

// Client is the resilient push client. Each monitor owns its own push
// client instance rather than sharing one across the process.
type Client struct {
	log       zerolog.Logger
	endpoints EndpointSource
	onStatus  func(connected bool)

	mu      sync.Mutex
	st      state
	client  *ethclient.Client
	subs    []*registeredSub
	delay   time.Duration
	retry   bool
	closed  bool
	waiting *sync.WaitGroup
}

// New builds a Client that will dial endpoints reported by endpoints.
// onStatus, if non-nil, is called whenever the connection flag changes
// (used to feed rpcpool.Pool.SetPushConnected).
func New(endpoints EndpointSource, log zerolog.Logger, onStatus func(connected bool)) *Client {
	return &Client{
		log:       log,
		endpoints: endpoints,
		onStatus:  onStatus,
		retry:     true,
		delay:     initialDelay,
	}
}

// Connect is idempotent: concurrent callers block on the in-progress
// connection attempt rather than racing to dial twice.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.st == connected {
		c.mu.Unlock()
		return nil
	}
	if c.st == connecting {
		wg := c.waiting
		c.mu.Unlock()
		wg.Wait()
		return nil
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.waiting = wg
	c.st = connecting
	c.mu.Unlock()

	err := c.dial(ctx)

	c.mu.Lock()
	wg.Done()
	c.waiting = nil
	c.mu.Unlock()
	return err
}

func (c *Client) dial(ctx context.Context) error {
	ep := c.endpoints.CurrentPushEndpoint()
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cl, err := ethclient.DialContext(cctx, ep)
	if err != nil {
		// st is still "connecting" here, so handleClose's own guard lets
		// it run: it transitions to disconnected and arms the backoff
		// timer for the next reconnect attempt, the same path a
		// mid-flight transport close takes.
		c.handleClose()
		return errkind.NewRPC(ep, err)
	}

	c.mu.Lock()
	c.client = cl
	c.st = connected
	c.delay = initialDelay
	subs := append([]*registeredSub(nil), c.subs...)
	c.mu.Unlock()

	c.setConnected(true)
	for _, rs := range subs {
		c.startSubscription(rs)
	}
	return nil
}

// startSubscription issues eth_subscribe for one registered query and
// spins up its delivery loop. Failing to subscribe is treated the same
// as a mid-flight disconnect: it schedules a reconnect.
func (c *Client) startSubscription(rs *registeredSub) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}

	logCh := make(chan types.Log, 256)
	sub, err := client.SubscribeFilterLogs(context.Background(), rs.query, logCh)
	if err != nil {
		c.log.Warn().Err(err).Msg("subscribe failed, scheduling reconnect")
		c.handleClose()
		return
	}

	c.mu.Lock()
	rs.sub = sub
	rs.logCh = logCh
	c.mu.Unlock()

	go func() {
		for {
			select {
			case l, ok := <-logCh:
				if !ok {
					return
				}
				rs.handler(l)
			case err, ok := <-sub.Err():
				if !ok {
					return
				}
				if err != nil {
					c.log.Warn().Err(err).Msg("push subscription error")
				}
				c.handleClose()
				return
			}
		}
	}()
}

// AddSubscription registers a filter query and handler; it attaches
// immediately if already connected, and a later reconnect re-attaches
// it automatically.
func (c *Client) AddSubscription(query ethereum.FilterQuery, handler func(types.Log)) {
	rs := &registeredSub{query: query, handler: handler}

	c.mu.Lock()
	c.subs = append(c.subs, rs)
	isConnected := c.st == connected
	c.mu.Unlock()

	if isConnected {
		c.startSubscription(rs)
	}
}

func (c *Client) handleClose() {
	c.mu.Lock()
	if c.closed || c.st == disconnected {
		c.mu.Unlock()
		return
	}
	c.st = disconnected
	c.client = nil
	delay := c.delay
	shouldRetry := c.retry
	c.mu.Unlock()

	c.setConnected(false)
	if !shouldRetry {
		return
	}

	c.log.Warn().Dur("retryIn", delay).Msg("push transport closed, scheduling reconnect")
	time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || !c.retry {
			c.mu.Unlock()
			return
		}
		c.delay = minDuration(c.delay*2, maxDelay)
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
}

func (c *Client) setConnected(v bool) {
	if c.onStatus != nil {
		c.onStatus(v)
	}
}

// Destroy disables reconnect, unsubscribes every handler and closes the
// transport.
func (c *Client) Destroy() {
	c.mu.Lock()
	c.retry = false
	c.closed = true
	subs := c.subs
	c.subs = nil
	client := c.client
	c.client = nil
	c.st = disconnected
	c.mu.Unlock()

	for _, rs := range subs {
		if rs.sub != nil {
			rs.sub.Unsubscribe()
		}
	}
	if client != nil {
		client.Close()
	}
	c.setConnected(false)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
