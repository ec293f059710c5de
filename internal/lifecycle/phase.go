// Package lifecycle implements the five-state launch-lifecycle state
// machine: it discovers a project via the catalog client, activates the
// tax tracker and whale detector, supervises the tax window and
// buyback phase, and retires the project on graduation or completion.
package lifecycle

import (
	"math/big"
	"time"

	"github.com/launchwatch/monitor/internal/model"
)

// Phase is the lifecycle's wire-compatible state enum. Wire values must
// not change case: the dashboard matches on them literally.
type Phase int

const (
	Discover Phase = iota
	WaitT0
	LaunchWindow
	BuybackPhase
	Done
)

func (p Phase) String() string {
	names := [...]string{"DISCOVER", "WAIT_T0", "LAUNCH_WINDOW", "BUYBACK_PHASE", "DONE"}
	if int(p) < 0 || int(p) >= len(names) {
		return "DISCOVER"
	}
	return names[p]
}

// MarshalJSON renders the phase as its wire string, since this enum
// crosses the REST/push-socket boundary.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// EventKind enumerates the typed envelope kinds broadcast by the API
// surface.
type EventKind string

const (
	EventStateChange     EventKind = "state_change"
	EventWhaleTrade      EventKind = "whale_trade"
	EventTaxUpdate       EventKind = "tax_update"
	EventBuybackUpdate   EventKind = "buyback_update"
	EventProjectStart    EventKind = "project_start"
	EventProjectComplete EventKind = "project_complete"
	EventError           EventKind = "error"
)

// Context is the single-writer lifecycle record owned by the state
// machine; every other component observes it via a snapshot taken on
// each transition.
type Context struct {
	Phase   Phase
	Project *model.SelectedProject

	T0 time.Time
	T1 time.Time

	TaxTotal     *big.Int
	StartBalance *big.Int

	LastTaxRefresh     time.Time
	LastBuybackRefresh time.Time
}

// Reset clears the context back to a fresh discover-phase record.
func (c *Context) Reset() {
	*c = Context{Phase: Discover, TaxTotal: big.NewInt(0)}
}

// Snapshot returns a value copy safe for concurrent readers; Project
// and TaxTotal are not deep-copied since they are treated as immutable
// once assigned (a new project/total is a new pointer/big.Int, never a
// mutation of the existing value).
func (c *Context) Snapshot() Context {
	return *c
}
