// Package api is the fan-out layer: it snapshots lifecycle state over
// REST and streams typed deltas over a push socket to dashboard
// clients, keeping bounded ring buffers of the last 100 trades and the
// last 100 events.
package api

import (
	"math/big"
	"time"

	"github.com/launchwatch/monitor/internal/config"
	"github.com/launchwatch/monitor/internal/lifecycle"
	"github.com/launchwatch/monitor/internal/monitor/buybacktracker"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
)

// bigToDecimalString renders an integer monetary amount as a decimal
// string, never a JSON number, so double-precision rounding never
// touches it on the wire. A nil amount renders as "0".
func bigToDecimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// TaxView is the /api/state "tax" sub-object.
type TaxView struct {
	NetInflow   string `json:"netInflow"`
	BalanceDiff string `json:"balanceDiff"`
}

// BuybackView is the /api/state "buyback" sub-object.
type BuybackView struct {
	SpentTotal  string   `json:"spentTotal"`
	Progress    float64  `json:"progress"`
	ETAHours    *float64 `json:"etaHours"`
	RatePerHour *float64 `json:"ratePerHour,omitempty"`
	LastTxAmount *string `json:"lastTxAmount,omitempty"`
}

// StateResponse is the full /api/state body.
type StateResponse struct {
	State            string       `json:"state"`
	Project          *ProjectView `json:"project"`
	T0               *time.Time   `json:"t0,omitempty"`
	T1               *time.Time   `json:"t1,omitempty"`
	TaxTotal         string       `json:"taxTotal"`
	StartBalance     *string      `json:"startBalance,omitempty"`
	ElapsedMinutes   float64      `json:"elapsedMinutes"`
	RemainingMinutes float64      `json:"remainingMinutes"`
	OnchainFDVVirtual *string     `json:"onchainFdvVirtual,omitempty"`
	OnchainFDVUsd     *string     `json:"onchainFdvUsd,omitempty"`
	APIFDVVirtual     *string     `json:"apiFdvVirtual,omitempty"`
	APIFDVUsd         *string     `json:"apiFdvUsd,omitempty"`
	Tax      *TaxView     `json:"tax"`
	Buyback  *BuybackView `json:"buyback"`
}

// ProjectView is the /api/state "project" sub-object: the catalog
// fields the dashboard needs, wire-cased.
type ProjectView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// TradeView is one element of /api/trades.
type TradeView struct {
	Direction   string    `json:"direction"`
	BaseAmount  string    `json:"baseAmount"`
	TokenAmount string    `json:"tokenAmount"`
	Trader      string    `json:"trader"`
	TxHash      string    `json:"txHash"`
	Block       uint64    `json:"block"`
	Timestamp   time.Time `json:"timestamp"`
}

func tradeView(t whaledetector.Trade) TradeView {
	return TradeView{
		Direction:   string(t.Direction),
		BaseAmount:  bigToDecimalString(t.BaseAmount),
		TokenAmount: bigToDecimalString(t.TokenAmount),
		Trader:      t.Trader.Hex(),
		TxHash:      t.TxHash.Hex(),
		Block:       t.Block,
		Timestamp:   t.Timestamp,
	}
}

// EventView is one element of /api/events and one push-socket frame.
type EventView struct {
	Kind      lifecycle.EventKind `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Data      interface{}         `json:"data"`
}

// HealthResponse mirrors rpcpool.Health for /api/health; kept as a
// distinct type so the API package never needs to import rpcpool for
// anything but this one value shape passed in by the caller.
type HealthResponse struct {
	CurrentHTTPEndpoint string `json:"currentHttpEndpoint"`
	Healthy             bool   `json:"healthy"`
	LatencyMs           int64  `json:"latencyMs"`
	CurrentPushEndpoint string `json:"currentPushEndpoint"`
	PushConnected       bool   `json:"pushConnected"`
}

// ConfigResponse is the /api/config body.
type ConfigResponse = config.PublicView

func buybackView(s buybacktracker.Status) BuybackView {
	v := BuybackView{
		SpentTotal: bigToDecimalString(s.SpentTotal),
		Progress:   s.Progress,
	}
	eta := s.ETAHours
	v.ETAHours = &eta
	if s.RatePerHour > 0 {
		rate := s.RatePerHour
		v.RatePerHour = &rate
	}
	if s.LastAmount != nil {
		amt := bigToDecimalString(s.LastAmount)
		v.LastTxAmount = &amt
	}
	return v
}
