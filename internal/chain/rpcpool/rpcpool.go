// Package rpcpool multiplexes a pool of HTTP JSON-RPC endpoints behind
// one rotating "active" client, turning rotate-to-next-endpoint-on-a-
// failed-call into a reusable pool instead of a per-call-site retry
// loop.
package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/errkind"
)

const (
	baseDelay  = 500 * time.Millisecond
	maxDelay   = 5 * time.Second
	backoffExp = 2
)

// Health is the wire type behind /api/health.
type Health struct {
	CurrentHTTPEndpoint string        `json:"currentHttpEndpoint"`
	Healthy             bool          `json:"healthy"`
	LatencyMs           int64         `json:"latencyMs"`
	CurrentPushEndpoint string        `json:"currentPushEndpoint"`
	PushConnected       bool          `json:"pushConnected"`
}

// Pool owns an ordered list of HTTP endpoints plus a separate list of
// push (websocket) endpoints; it rotates the active HTTP endpoint on
// failure and reports a combined health snapshot.
type Pool struct {
	log zerolog.Logger

	mu          sync.Mutex
	httpEps     []string
	pushEps     []string
	activeHTTP  int
	activePush  int
	clients     map[string]*ethclient.Client

	pushConnected bool
}

// New dials nothing eagerly; clients are created lazily on first use so
// a misconfigured but never-rotated-to endpoint never blocks startup.
func New(httpEndpoints, pushEndpoints []string, log zerolog.Logger) *Pool {
	return &Pool{
		log:     log,
		httpEps: httpEndpoints,
		pushEps: pushEndpoints,
		clients: make(map[string]*ethclient.Client),
	}
}

// CurrentEndpoint returns the active HTTP endpoint URL.
func (p *Pool) CurrentEndpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.httpEps[p.activeHTTP]
}

// CurrentPushEndpoint returns the active push endpoint URL.
func (p *Pool) CurrentPushEndpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushEps) == 0 {
		return ""
	}
	return p.pushEps[p.activePush]
}

// SetPushConnected is called by the Resilient Push Client to report its
// current connection state into the pool's health snapshot.
func (p *Pool) SetPushConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushConnected = connected
}

// current returns (dialing lazily if needed) the active HTTP client.
func (p *Pool) current() (*ethclient.Client, string, error) {
	p.mu.Lock()
	ep := p.httpEps[p.activeHTTP]
	client, ok := p.clients[ep]
	p.mu.Unlock()
	if ok {
		return client, ep, nil
	}

	client, err := ethclient.Dial(ep)
	if err != nil {
		return nil, ep, errkind.NewRPC(ep, err)
	}

	p.mu.Lock()
	p.clients[ep] = client
	p.mu.Unlock()
	return client, ep, nil
}

// RotateRequest advances the active HTTP index modulo the list length.
func (p *Pool) RotateRequest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeHTTP = (p.activeHTTP + 1) % len(p.httpEps)
	p.log.Warn().Str("endpoint", p.httpEps[p.activeHTTP]).Msg("rpc pool rotated active endpoint")
}

// RotatePush advances the active push index modulo the list length,
// returning the new endpoint URL.
func (p *Pool) RotatePush() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushEps) == 0 {
		return ""
	}
	p.activePush = (p.activePush + 1) % len(p.pushEps)
	return p.pushEps[p.activePush]
}

// Call executes op against the active endpoint under the pool's retry
// discipline: max_attempts equals the endpoint list length, each retry
// rotates to the next endpoint first, delay starts at 500ms and doubles
// up to a 5s cap. A fatal RPC error is returned only once every
// endpoint has been tried.
func Call[T any](ctx context.Context, p *Pool, op func(ctx context.Context, client *ethclient.Client) (T, error)) (T, error) {
	var zero T
	maxAttempts := len(p.httpEps)
	delay := baseDelay

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			p.RotateRequest()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= backoffExp
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		client, ep, err := p.current()
		if err != nil {
			lastErr = err
			continue
		}
		v, err := op(ctx, client)
		if err == nil {
			return v, nil
		}
		lastErr = errkind.NewRPC(ep, err)
	}
	return zero, lastErr
}

// SelectFastest races getBlockHeight across all HTTP endpoints with a 5s
// per-endpoint timeout and makes the lowest-latency one active.
func (p *Pool) SelectFastest(ctx context.Context) error {
	type result struct {
		idx     int
		latency time.Duration
		err     error
	}

	p.mu.Lock()
	endpoints := append([]string(nil), p.httpEps...)
	p.mu.Unlock()

	results := make(chan result, len(endpoints))
	for i, ep := range endpoints {
		go func(i int, ep string) {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			client, err := ethclient.DialContext(cctx, ep)
			if err != nil {
				results <- result{i, 0, err}
				return
			}
			start := time.Now()
			_, err = client.BlockNumber(cctx)
			results <- result{i, time.Since(start), err}
		}(i, ep)
	}

	best := -1
	var bestLatency time.Duration
	var lastErr error
	for range endpoints {
		r := <-results
		if r.err != nil {
			lastErr = r.err
			continue
		}
		if best == -1 || r.latency < bestLatency {
			best = r.idx
			bestLatency = r.latency
		}
	}

	if best == -1 {
		return errkind.NewRPC("all", lastErr)
	}

	p.mu.Lock()
	p.activeHTTP = best
	p.mu.Unlock()
	return nil
}

// HealthSnapshot measures a single-call latency on the current endpoint
// and reports the most recent push connection flag.
func (p *Pool) HealthSnapshot(ctx context.Context) Health {
	client, ep, err := p.current()
	healthy := true
	var latency time.Duration
	if err != nil {
		healthy = false
	} else {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		start := time.Now()
		_, callErr := client.BlockNumber(cctx)
		latency = time.Since(start)
		if callErr != nil {
			healthy = false
		}
	}

	p.mu.Lock()
	connected := p.pushConnected
	pushEp := ""
	if len(p.pushEps) > 0 {
		pushEp = p.pushEps[p.activePush]
	}
	p.mu.Unlock()

	return Health{
		CurrentHTTPEndpoint: ep,
		Healthy:             healthy,
		LatencyMs:           latency.Milliseconds(),
		CurrentPushEndpoint: pushEp,
		PushConnected:       connected,
	}
}

// Shutdown tears down any cached clients.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Close()
	}
	p.clients = make(map[string]*ethclient.Client)
}
