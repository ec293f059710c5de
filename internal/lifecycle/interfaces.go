package lifecycle

import (
	"context"
	"math/big"
	"time"

	"github.com/launchwatch/monitor/internal/chain/contractclient"
	"github.com/launchwatch/monitor/internal/model"
	"github.com/launchwatch/monitor/internal/monitor/buybacktracker"
	"github.com/launchwatch/monitor/internal/monitor/taxtracker"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
)

// CatalogClient is the subset of *catalog.Client the state machine
// drives: discovery and the by-id graduation poll. *catalog.Client
// satisfies this interface without any adapter.
type CatalogClient interface {
	DiscoverProject(ctx context.Context, pollInterval, taxWindow time.Duration) (*model.ProjectDescriptor, error)
	ByID(ctx context.Context, id int64) (*model.ProjectDescriptor, error)
}

// TaxTracker is the subset of *taxtracker.Tracker the machine drives.
type TaxTracker interface {
	Init(ctx context.Context, t0 time.Time) error
	Update(ctx context.Context) (taxtracker.Counters, error)
	CatchUp(ctx context.Context) (taxtracker.Counters, error)
	GetTaxTotal() *big.Int
}

// BuybackTracker is the subset of *buybacktracker.Tracker the machine
// drives.
type BuybackTracker interface {
	GetStatus(now time.Time) buybacktracker.Status
	CheckStall(now time.Time) bool
	Complete() bool
}

// Sink is the API surface's receiving side (internal/api.Surface
// implements it): the machine and monitors push snapshots and typed
// events into it; it never calls back into the machine.
type Sink interface {
	UpdateContext(ctx Context)
	RecordTrade(trade whaledetector.Trade)
	UpdateTax(counters taxtracker.Counters, elapsedMin float64)
	UpdateBuyback(status buybacktracker.Status)
	UpdateOnchainFDV(fdvVirtual, fdvUsd string)
	UpdateAPIFDV(fdvVirtual, fdvUsd string)
	RecordEvent(kind EventKind, message string)
}

// HealthPublisher is the external, out-of-scope process health probe
// the machine reports its snapshot to every 60 ticks. The production
// implementation is HealthServer, which keeps the last snapshot in
// memory and serves it at /healthz; test doubles may record calls
// instead.
type HealthPublisher interface {
	Publish(ctx context.Context, snapshot Context) error
}

// NoopHealthPublisher is a HealthPublisher that discards every snapshot.
type NoopHealthPublisher struct{}

func (NoopHealthPublisher) Publish(context.Context, Context) error { return nil }

// TaxTrackerFactory builds a fresh tax tracker bound to the configured
// receiver address; called once on entry to WAIT_T0.
type TaxTrackerFactory func() TaxTracker

// WhaleMonitorFactory wires a whale detector's live subscription for
// the selected project's pool and invokes onTrade for every
// above-threshold, not-yet-seen trade. The returned stop func tears
// down the underlying push client.
type WhaleMonitorFactory func(ctx context.Context, sp model.SelectedProject, onTrade func(whaledetector.Trade)) (stop func(), err error)

// BuybackMonitorFactory wires a spend scanner's live subscription
// against budget and returns the tracker plus a stop func.
type BuybackMonitorFactory func(ctx context.Context, sp model.SelectedProject, budget *big.Int) (tracker BuybackTracker, stop func(), err error)

// FDVFactory resolves the curve and token contract bindings needed to
// compute an on-chain FDV for the selected project; used only in curve
// (pre-graduation) pool mode.
type FDVFactory func(ctx context.Context, sp model.SelectedProject) (curve *contractclient.Client, token *contractclient.Client, err error)
