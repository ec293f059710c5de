package api

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/lifecycle"
	"github.com/launchwatch/monitor/internal/monitor/buybacktracker"
	"github.com/launchwatch/monitor/internal/monitor/taxtracker"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
)

const ringCapacity = 100

// Surface is the fan-out layer: it holds the last 100
// trades and last 100 typed events, the current lifecycle snapshot and
// FDV figures, and broadcasts every update to push-socket clients via
// an in-process event.Feed, grounded on go-ethereum's own
// one-producer-many-consumers use of Feed (e.g. core/txpool).
type Surface struct {
	log zerolog.Logger

	mu          sync.RWMutex
	ctx         lifecycle.Context
	haveContext bool

	onchainFDVVirtual, onchainFDVUsd string
	haveOnchainFDV                   bool
	apiFDVVirtual, apiFDVUsd         string
	haveAPIFDV                       bool

	lastTax        *taxtracker.Counters
	lastTaxElapsed float64
	lastBuyback    *buybacktracker.Status

	trades     []TradeView
	tradeHashes map[string]struct{}
	events     []EventView

	feed event.Feed
}

// New builds an empty Surface.
func New(log zerolog.Logger) *Surface {
	return &Surface{
		log:         log,
		tradeHashes: make(map[string]struct{}),
	}
}

// Subscribe registers ch to receive every broadcast EventView from now
// on; it does not replay history (callers fetch /api/events or rely on
// the push socket's connect-time state_change for that).
func (s *Surface) Subscribe(ch chan<- EventView) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Surface) broadcast(ev EventView) {
	s.mu.Lock()
	s.events = append([]EventView{ev}, s.events...)
	if len(s.events) > ringCapacity {
		s.events = s.events[:ringCapacity]
	}
	s.mu.Unlock()
	s.feed.Send(ev)
}

// UpdateContext stores the lifecycle snapshot and broadcasts
// state_change exactly once for a given distinct context — calling it
// twice in a row with an equal context triggers at most one broadcast.
func (s *Surface) UpdateContext(ctx lifecycle.Context) {
	s.mu.Lock()
	changed := !s.haveContext || !contextsEqual(s.ctx, ctx)
	s.ctx = ctx
	s.haveContext = true
	s.mu.Unlock()

	if changed {
		s.broadcast(EventView{Kind: lifecycle.EventStateChange, Timestamp: time.Now(), Data: s.State()})
	}
}

func contextsEqual(a, b lifecycle.Context) bool {
	if a.Phase != b.Phase || !a.T0.Equal(b.T0) || !a.T1.Equal(b.T1) {
		return false
	}
	if (a.Project == nil) != (b.Project == nil) {
		return false
	}
	if a.Project != nil && a.Project.Descriptor.ID != b.Project.Descriptor.ID {
		return false
	}
	return bigEqual(a.TaxTotal, b.TaxTotal)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

// RecordTrade pushes trade to the ring (newest first) and broadcasts
// whale_trade. A transaction hash already present in the ring is a
// no-op: the ring's own dedup invariant holds independently of the
// whale detector's own LRU.
func (s *Surface) RecordTrade(trade whaledetector.Trade) {
	hash := trade.TxHash.Hex()

	s.mu.Lock()
	if _, seen := s.tradeHashes[hash]; seen {
		s.mu.Unlock()
		return
	}
	view := tradeView(trade)
	s.trades = append([]TradeView{view}, s.trades...)
	s.tradeHashes[hash] = struct{}{}
	if len(s.trades) > ringCapacity {
		evicted := s.trades[ringCapacity:]
		s.trades = s.trades[:ringCapacity]
		for _, e := range evicted {
			delete(s.tradeHashes, e.TxHash)
		}
	}
	s.mu.Unlock()

	s.broadcast(EventView{Kind: lifecycle.EventWhaleTrade, Timestamp: time.Now(), Data: view})
}

// UpdateTax stores the tax counters and broadcasts tax_update.
func (s *Surface) UpdateTax(counters taxtracker.Counters, elapsedMin float64) {
	s.mu.Lock()
	c := counters
	s.lastTax = &c
	s.lastTaxElapsed = elapsedMin
	s.mu.Unlock()

	s.broadcast(EventView{Kind: lifecycle.EventTaxUpdate, Timestamp: time.Now(), Data: TaxView{
		NetInflow:   bigToDecimalString(counters.NetInflow),
		BalanceDiff: bigToDecimalString(counters.BalanceDiff),
	}})
}

// UpdateBuyback stores the buyback status and broadcasts
// buyback_update.
func (s *Surface) UpdateBuyback(status buybacktracker.Status) {
	s.mu.Lock()
	st := status
	s.lastBuyback = &st
	s.mu.Unlock()

	s.broadcast(EventView{Kind: lifecycle.EventBuybackUpdate, Timestamp: time.Now(), Data: buybackView(status)})
}

// UpdateOnchainFDV records an on-chain-computed FDV, which takes
// precedence over any catalog estimate already stored.
func (s *Surface) UpdateOnchainFDV(fdvVirtual, fdvUsd string) {
	s.mu.Lock()
	s.onchainFDVVirtual, s.onchainFDVUsd = fdvVirtual, fdvUsd
	s.haveOnchainFDV = true
	s.mu.Unlock()
}

// UpdateAPIFDV records a catalog-reported FDV estimate, used only when
// no on-chain figure is available.
func (s *Surface) UpdateAPIFDV(fdvVirtual, fdvUsd string) {
	s.mu.Lock()
	s.apiFDVVirtual, s.apiFDVUsd = fdvVirtual, fdvUsd
	s.haveAPIFDV = true
	s.mu.Unlock()
}

// RecordEvent broadcasts a lifecycle-originated event (project_start,
// project_complete, error) carrying a plain message payload; it does
// not touch the trade/context state.
func (s *Surface) RecordEvent(kind lifecycle.EventKind, message string) {
	s.broadcast(EventView{Kind: kind, Timestamp: time.Now(), Data: message})
}

// State renders the current /api/state body.
func (s *Surface) State() StateResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StateResponse{
		State:    s.ctx.Phase.String(),
		TaxTotal: bigToDecimalString(s.ctx.TaxTotal),
	}

	if s.ctx.Project != nil {
		resp.Project = &ProjectView{
			ID:     s.ctx.Project.Descriptor.ID,
			Name:   s.ctx.Project.Descriptor.Name,
			Symbol: s.ctx.Project.Descriptor.Symbol,
		}
		t0, t1 := s.ctx.T0, s.ctx.T1
		resp.T0, resp.T1 = &t0, &t1

		now := time.Now()
		resp.ElapsedMinutes = now.Sub(t0).Minutes()
		resp.RemainingMinutes = t1.Sub(now).Minutes()
		if resp.RemainingMinutes < 0 {
			resp.RemainingMinutes = 0
		}
	}

	if s.haveOnchainFDV {
		onchainVirtual, onchainUsd := s.onchainFDVVirtual, s.onchainFDVUsd
		resp.OnchainFDVVirtual = &onchainVirtual
		resp.OnchainFDVUsd = &onchainUsd
	}
	if s.haveAPIFDV {
		apiVirtual, apiUsd := s.apiFDVVirtual, s.apiFDVUsd
		resp.APIFDVVirtual = &apiVirtual
		resp.APIFDVUsd = &apiUsd
	}

	if s.lastTax != nil {
		resp.Tax = &TaxView{
			NetInflow:   bigToDecimalString(s.lastTax.NetInflow),
			BalanceDiff: bigToDecimalString(s.lastTax.BalanceDiff),
		}
	}
	if s.lastBuyback != nil {
		v := buybackView(*s.lastBuyback)
		resp.Buyback = &v
	}

	return resp
}

// Trades renders /api/trades: newest first, up to the ring capacity.
func (s *Surface) Trades() []TradeView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TradeView, len(s.trades))
	copy(out, s.trades)
	return out
}

// Events renders /api/events: newest first, up to the ring capacity.
func (s *Surface) Events() []EventView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventView, len(s.events))
	copy(out, s.events)
	return out
}
