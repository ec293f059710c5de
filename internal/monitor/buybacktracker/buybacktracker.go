// Package buybacktracker implements the spend scanner: a live
// subscription to the fee receiver's outbound base-token transfers,
// kept as a time-bounded sliding window used to derive spend rate, ETA,
// progress and stall detection against a fixed tax-total budget.
package buybacktracker

import (
	"math"
	"math/big"
	"sync"
	"time"
)

// SpendRecord is one observed outbound transfer from the receiver.
type SpendRecord struct {
	Time   time.Time
	Amount *big.Int
	TxHash string
}

// Status is the derived view returned by GetStatus.
type Status struct {
	SpentTotal      *big.Int
	SpentInWindow   *big.Int
	RatePerHour     float64
	Remaining       *big.Int
	ETAHours        float64 // math.Inf(1) when rate is zero
	Progress        float64 // percent, capped at 100
	LastAmount      *big.Int
	LastTxHash      string
	Complete        bool
	Stalled         bool
}

// Tracker accumulates spend records in a deque pruned to rateWindow and
// derives rate/ETA/progress/stall state against a fixed budget.
type Tracker struct {
	mu sync.Mutex

	budget     *big.Int
	rateWindow time.Duration
	stallAfter time.Duration

	records    []SpendRecord
	spentTotal *big.Int
	lastSpend  time.Time
	alerted    bool
}

// New builds a Tracker whose budget is the tax-window's netInflow
// total, captured once when the buyback phase begins.
func New(budget *big.Int, rateWindow, stallAfter time.Duration) *Tracker {
	return &Tracker{
		budget:     new(big.Int).Set(budget),
		rateWindow: rateWindow,
		stallAfter: stallAfter,
		spentTotal: big.NewInt(0),
	}
}

// RecordSpend appends a new observed outbound transfer and prunes
// records older than now-rateWindow. A later spend resets the
// already-alerted stall flag, so a subsequent stall can re-alert.
func (t *Tracker) RecordSpend(now time.Time, amount *big.Int, txHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, SpendRecord{Time: now, Amount: amount, TxHash: txHash})
	t.spentTotal.Add(t.spentTotal, amount)
	t.lastSpend = now
	t.alerted = false
	t.prune(now)
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.rateWindow)
	i := 0
	for ; i < len(t.records); i++ {
		if t.records[i].Time.After(cutoff) {
			break
		}
	}
	if i > 0 {
		t.records = append([]SpendRecord(nil), t.records[i:]...)
	}
}

// GetStatus prunes stale records against now and returns the derived
// spend state.
func (t *Tracker) GetStatus(now time.Time) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(now)

	spentInWindow := big.NewInt(0)
	for _, r := range t.records {
		spentInWindow.Add(spentInWindow, r.Amount)
	}

	ratePerHour := ratePerHour(spentInWindow, t.rateWindow)

	remaining := new(big.Int).Sub(t.budget, t.spentTotal)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	etaHours := etaHours(remaining, ratePerHour)
	progress := progressPercent(t.spentTotal, t.budget)
	complete := t.spentTotal.Cmp(t.budget) >= 0

	var lastAmount *big.Int
	var lastTxHash string
	if n := len(t.records); n > 0 {
		lastAmount = t.records[n-1].Amount
		lastTxHash = t.records[n-1].TxHash
	}

	return Status{
		SpentTotal:    new(big.Int).Set(t.spentTotal),
		SpentInWindow: spentInWindow,
		RatePerHour:   ratePerHour,
		Remaining:     remaining,
		ETAHours:      etaHours,
		Progress:      progress,
		LastAmount:    lastAmount,
		LastTxHash:    lastTxHash,
		Complete:      complete,
		Stalled:       t.isStalled(now),
	}
}

// CheckStall reports (and latches) whether the budget is incomplete,
// at least one spend has been observed, and the gap since the last
// spend exceeds stallAfter. A stall is signalled at most once until a
// later spend clears the flag. This is the only method that latches —
// GetStatus's Stalled field is a read-only peek at the same condition,
// so a periodic status refresh can never consume the one-shot alert
// before CheckStall itself observes it.
func (t *Tracker) CheckStall(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isStalled(now) {
		return false
	}
	t.alerted = true
	return true
}

// isStalled reports the raw stall condition without touching alerted.
func (t *Tracker) isStalled(now time.Time) bool {
	if t.spentTotal.Cmp(t.budget) >= 0 {
		return false
	}
	if t.lastSpend.IsZero() {
		return false
	}
	if t.alerted {
		return false
	}
	if now.Sub(t.lastSpend) <= t.stallAfter {
		return false
	}
	return true
}

// Complete reports whether spentTotal has reached the budget.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spentTotal.Cmp(t.budget) >= 0
}

func ratePerHour(spentInWindow *big.Int, window time.Duration) float64 {
	seconds := window.Seconds()
	if seconds <= 0 {
		return 0
	}
	amount, _ := new(big.Float).SetInt(spentInWindow).Float64()
	return (amount / seconds) * 3600
}

func etaHours(remaining *big.Int, ratePerHour float64) float64 {
	if ratePerHour <= 0 {
		return math.Inf(1)
	}
	remainingF, _ := new(big.Float).SetInt(remaining).Float64()
	return remainingF / ratePerHour
}

func progressPercent(spent, budget *big.Int) float64 {
	if budget.Sign() <= 0 {
		return 100
	}
	spentF, _ := new(big.Float).SetInt(spent).Float64()
	budgetF, _ := new(big.Float).SetInt(budget).Float64()
	pct := (spentF / budgetF) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
