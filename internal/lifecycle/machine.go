package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/errkind"
	"github.com/launchwatch/monitor/internal/fdv"
	"github.com/launchwatch/monitor/internal/model"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
	"github.com/launchwatch/monitor/internal/notifier"
)

const (
	tickInterval         = 1 * time.Second
	errorBackoff         = 5 * time.Second
	taxRefreshInterval   = 5 * time.Minute
	graduationPollPeriod = 60 * time.Second
	buybackStatusPeriod  = 10 * time.Minute
	pollInterval         = 3 * time.Second
)

// Deps bundles every collaborator the state machine needs; production
// wiring lives in wiring.go's factory constructors, cmd/monitor wires
// the rest (catalog, sink, notifier, health).
type Deps struct {
	Catalog  CatalogClient
	Sink     Sink
	Notifier *notifier.Logging
	Health   HealthPublisher
	FDVCalc  *fdv.Calculator

	TaxFactory      TaxTrackerFactory
	WhaleFactory    WhaleMonitorFactory
	BuybackFactory  BuybackMonitorFactory
	FDVFactory      FDVFactory
	Receiver        common.Address
	TaxWindow       time.Duration
	BuybackRateWindow time.Duration
	StallAlert      time.Duration

	Log zerolog.Logger
}

// waitT0Progress tracks which of WAIT_T0's entry actions have
// completed, so a recoverable failure partway through only retries the
// remaining steps on the next tick instead of repeating completed ones.
type waitT0Progress struct {
	notified     bool
	taxInit      bool
	whaleStarted bool
}

// Machine is the single-writer lifecycle state machine. One instance
// runs for the lifetime of the process; Run loops until ctx is
// cancelled.
type Machine struct {
	deps Deps

	ctx Context

	tax      TaxTracker
	whaleStop func()
	waitT0   waitT0Progress

	buyback       BuybackTracker
	buybackStop   func()
	buybackStarted bool

	lastGraduationCheck time.Time
	tickCount           uint64
}

// New builds a Machine from its collaborators.
func New(deps Deps) *Machine {
	m := &Machine{deps: deps}
	m.ctx.Reset()
	return m
}

// Run dispatches the per-state handler once per tick until ctx is
// cancelled, sleeping errorBackoff after a recoverable error and
// returning immediately on a non-recoverable (config or exhausted) one.
func (m *Machine) Run(ctx context.Context) error {
	m.publishSnapshot()
	for {
		if ctx.Err() != nil {
			m.cleanup()
			return ctx.Err()
		}

		err := m.dispatch(ctx)
		m.tickCount++
		if m.tickCount%60 == 0 {
			if perr := m.deps.Health.Publish(ctx, m.ctx.Snapshot()); perr != nil {
				m.deps.Log.Warn().Err(perr).Msg("health snapshot publish failed")
			}
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.cleanup()
				return ctx.Err()
			}
			m.deps.Log.Error().Err(err).Str("phase", m.ctx.Phase.String()).Msg("lifecycle tick failed")
			m.deps.Sink.RecordEvent(EventError, err.Error())
			if !errkind.Recoverable(err) {
				m.cleanup()
				return err
			}
			if !sleepOrDone(ctx, errorBackoff) {
				m.cleanup()
				return ctx.Err()
			}
			continue
		}

		if !sleepOrDone(ctx, tickInterval) {
			m.cleanup()
			return ctx.Err()
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Machine) dispatch(ctx context.Context) error {
	switch m.ctx.Phase {
	case Discover:
		return m.runDiscover(ctx)
	case WaitT0:
		return m.runWaitT0(ctx)
	case LaunchWindow:
		return m.runLaunchWindow(ctx)
	case BuybackPhase:
		return m.runBuybackPhase(ctx)
	case Done:
		return m.runDone(ctx)
	default:
		return fmt.Errorf("lifecycle: unknown phase %v", m.ctx.Phase)
	}
}

// runDiscover blocks inside catalog.DiscoverProject (which owns its own
// poll/backoff loop) until a candidate is selected.
func (m *Machine) runDiscover(ctx context.Context) error {
	descriptor, err := m.deps.Catalog.DiscoverProject(ctx, pollInterval, m.deps.TaxWindow)
	if err != nil {
		return err
	}

	sp := selectedFromDescriptor(*descriptor)
	m.ctx.Project = &sp
	m.ctx.T0 = sp.T0
	m.ctx.T1 = sp.T0.Add(m.deps.TaxWindow)
	m.ctx.TaxTotal = big.NewInt(0)
	m.ctx.Phase = WaitT0
	m.waitT0 = waitT0Progress{}
	m.publishSnapshot()
	return nil
}

func selectedFromDescriptor(d model.ProjectDescriptor) model.SelectedProject {
	poolType := model.PoolCurve
	poolAddr := ""
	if d.PreTokenPair != nil {
		poolAddr = *d.PreTokenPair
	}
	if d.LPAddress != nil && *d.LPAddress != "" {
		poolType = model.PoolAMMV2
		poolAddr = *d.LPAddress
	}
	return model.SelectedProject{
		Descriptor:  d,
		PoolAddress: poolAddr,
		PoolType:    poolType,
		T0:          d.AnchorTime(),
	}
}

// runWaitT0 completes each remaining entry action (notify, init tax
// tracker, start whale detector) until both monitors are up, then
// transitions to LAUNCH_WINDOW.
func (m *Machine) runWaitT0(ctx context.Context) error {
	if !m.waitT0.notified {
		msg := fmt.Sprintf("project start: %s (%s)", m.ctx.Project.Descriptor.Name, m.ctx.Project.Descriptor.Symbol)
		m.deps.Notifier.Notify(ctx, msg)
		m.deps.Sink.RecordEvent(EventProjectStart, msg)
		m.waitT0.notified = true
	}

	if !m.waitT0.taxInit {
		tracker := m.deps.TaxFactory()
		if err := tracker.Init(ctx, m.ctx.T0); err != nil {
			return err
		}
		m.tax = tracker
		m.waitT0.taxInit = true
	}

	if !m.waitT0.whaleStarted {
		stop, err := m.deps.WhaleFactory(ctx, *m.ctx.Project, m.onWhaleTrade)
		if err != nil {
			return err
		}
		m.whaleStop = stop
		m.waitT0.whaleStarted = true
	}

	m.ctx.Phase = LaunchWindow
	m.publishSnapshot()
	return nil
}

func (m *Machine) onWhaleTrade(trade whaledetector.Trade) {
	m.deps.Sink.RecordTrade(trade)
}

// runLaunchWindow does the final tax update and transitions to
// BUYBACK_PHASE once now >= T1; otherwise it runs the periodic tax
// catch-up, FDV refresh and graduation poll.
func (m *Machine) runLaunchWindow(ctx context.Context) error {
	now := time.Now()

	if !now.Before(m.ctx.T1) {
		if _, err := m.tax.CatchUp(ctx); err != nil {
			return err
		}
		counters, err := m.tax.Update(ctx)
		if err != nil {
			return err
		}
		m.ctx.TaxTotal = m.tax.GetTaxTotal()
		m.deps.Sink.UpdateTax(counters, time.Since(m.ctx.T0).Minutes())

		m.ctx.Phase = BuybackPhase
		m.buyback = nil
		m.buybackStop = nil
		m.buybackStarted = false
		m.lastGraduationCheck = time.Time{}
		m.publishSnapshot()
		return nil
	}

	if m.ctx.LastTaxRefresh.IsZero() || now.Sub(m.ctx.LastTaxRefresh) >= taxRefreshInterval {
		if _, err := m.tax.CatchUp(ctx); err != nil {
			return err
		}
		counters, err := m.tax.Update(ctx)
		if err != nil {
			return err
		}
		m.ctx.LastTaxRefresh = now
		elapsed := now.Sub(m.ctx.T0).Minutes()
		m.deps.Sink.UpdateTax(counters, elapsed)
		m.deps.Notifier.Notify(ctx, fmt.Sprintf("tax update: net inflow %s", counters.NetInflow.String()))
	}

	m.refreshFDV(ctx)

	if m.lastGraduationCheck.IsZero() || now.Sub(m.lastGraduationCheck) >= graduationPollPeriod {
		m.lastGraduationCheck = now
		graduated, err := m.checkGraduation(ctx)
		if err != nil {
			m.deps.Log.Warn().Err(err).Msg("graduation poll failed")
		} else if graduated {
			m.ctx.Phase = Done
			m.publishSnapshot()
			return nil
		}
	}

	return nil
}

func (m *Machine) checkGraduation(ctx context.Context) (bool, error) {
	d, err := m.deps.Catalog.ByID(ctx, m.ctx.Project.Descriptor.ID)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	if d.Status == model.StatusAvailable {
		return true, nil
	}
	if d.LPAddress != nil && *d.LPAddress != "" {
		return true, nil
	}
	return false, nil
}

func (m *Machine) refreshFDV(ctx context.Context) {
	if m.ctx.Project.PoolType != model.PoolCurve {
		return
	}
	curveClient, tokenClient, err := m.deps.FDVFactory(ctx, *m.ctx.Project)
	if err != nil {
		m.fallbackCatalogFDV(ctx)
		return
	}
	usd, haveUsd := m.deps.FDVCalc.VirtualUSDPrice(ctx)
	result, err := m.deps.FDVCalc.ComputeCurveFDV(ctx, curveClient, tokenClient, usd, haveUsd)
	if err != nil {
		m.fallbackCatalogFDV(ctx)
		return
	}
	m.deps.Sink.UpdateOnchainFDV(result.FDVInVirtual, result.FDVUsd)
}

func (m *Machine) fallbackCatalogFDV(ctx context.Context) {
	d, err := m.deps.Catalog.ByID(ctx, m.ctx.Project.Descriptor.ID)
	if err != nil || d == nil || d.MarketCapUsd == nil {
		return
	}
	m.deps.Sink.UpdateAPIFDV("", *d.MarketCapUsd)
}

// runBuybackPhase starts the spend scanner on first entry, then
// transitions to DONE on completion or graduation and otherwise runs
// the periodic status publish and stall check.
func (m *Machine) runBuybackPhase(ctx context.Context) error {
	if !m.buybackStarted {
		budget := new(big.Int).Set(m.ctx.TaxTotal)
		tracker, stop, err := m.deps.BuybackFactory(ctx, *m.ctx.Project, budget)
		if err != nil {
			return err
		}
		m.buyback = tracker
		m.buybackStop = stop
		m.buybackStarted = true
		m.deps.Notifier.Notify(ctx, "buyback phase started")
	}

	now := time.Now()

	if m.buyback.Complete() {
		m.ctx.Phase = Done
		m.publishSnapshot()
		m.deps.Notifier.Notify(ctx, "buyback complete")
		return nil
	}

	if m.lastGraduationCheck.IsZero() || now.Sub(m.lastGraduationCheck) >= graduationPollPeriod {
		m.lastGraduationCheck = now
		graduated, err := m.checkGraduation(ctx)
		if err != nil {
			m.deps.Log.Warn().Err(err).Msg("graduation poll failed")
		} else if graduated {
			m.ctx.Phase = Done
			m.publishSnapshot()
			return nil
		}
	}

	if m.ctx.LastBuybackRefresh.IsZero() || now.Sub(m.ctx.LastBuybackRefresh) >= buybackStatusPeriod {
		m.ctx.LastBuybackRefresh = now
		status := m.buyback.GetStatus(now)
		m.deps.Sink.UpdateBuyback(status)
		m.deps.Notifier.Notify(ctx, fmt.Sprintf("buyback progress: %.1f%%", status.Progress))
	}

	if m.buyback.CheckStall(now) {
		m.deps.Sink.UpdateBuyback(m.buyback.GetStatus(now))
		m.deps.Notifier.Notify(ctx, "buyback stalled")
	}

	return nil
}

// runDone publishes completion, tears down both monitors and resets
// the context back to a fresh DISCOVER record.
func (m *Machine) runDone(ctx context.Context) error {
	m.deps.Notifier.Notify(ctx, "project complete")
	m.deps.Sink.RecordEvent(EventProjectComplete, "project complete")
	m.cleanupMonitors()
	m.ctx.Reset()
	m.publishSnapshot()
	return nil
}

func (m *Machine) cleanupMonitors() {
	if m.whaleStop != nil {
		m.whaleStop()
		m.whaleStop = nil
	}
	if m.buybackStop != nil {
		m.buybackStop()
		m.buybackStop = nil
	}
	m.tax = nil
	m.buyback = nil
	m.waitT0 = waitT0Progress{}
	m.buybackStarted = false
	m.lastGraduationCheck = time.Time{}
}

// cleanup tears down any active monitors on shutdown without resetting
// or re-publishing the context, since the process is exiting.
func (m *Machine) cleanup() {
	m.cleanupMonitors()
}

func (m *Machine) publishSnapshot() {
	m.deps.Sink.UpdateContext(m.ctx.Snapshot())
}

// Snapshot returns a copy of the current lifecycle context.
func (m *Machine) Snapshot() Context {
	return m.ctx.Snapshot()
}
