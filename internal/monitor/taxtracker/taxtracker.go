// Package taxtracker implements the ledger scanner: exact accounting of
// net inflow into the fee-receiver address over [T0, now] using the
// base token's Transfer event, reconciled against a balance diff.
package taxtracker

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/chain/contractclient"
	"github.com/launchwatch/monitor/internal/chain/rpcpool"
)

const (
	blockSearchWindow = 500
	maxScanRange      = 2000
	maxCatchUpCalls   = 10
	samplingDepth     = 1000
)

// Counters is the tax tracker's reconciled view, returned from Update
// and read by GetTaxTotal.
type Counters struct {
	Inflow             *big.Int
	Outflow            *big.Int
	NetInflow          *big.Int
	BalanceDiff        *big.Int
	Delta              *big.Int
	LastProcessedBlock uint64
}

// Tracker scans the base token's Transfer log for a single receiver
// address starting at a block derived from T0.
type Tracker struct {
	pool     *rpcpool.Pool
	token    *contractclient.Client
	receiver common.Address
	log      zerolog.Logger

	blockStart         uint64
	lastProcessedBlock uint64
	startBalance       *big.Int
	netOnlyMode        bool

	inflow  *big.Int
	outflow *big.Int
}

// New builds a Tracker; token must be bound to the base token's ERC20
// ABI (contractclient.ERC20ABI).
func New(pool *rpcpool.Pool, token *contractclient.Client, receiver common.Address, log zerolog.Logger) *Tracker {
	return &Tracker{
		pool:     pool,
		token:    token,
		receiver: receiver,
		log:      log,
		inflow:   big.NewInt(0),
		outflow:  big.NewInt(0),
	}
}

// Init converts t0 to a block number and reads the receiver's starting
// balance at that block. On a failed historical balance read it falls
// back to startBalance=0 ("net-inflow only" mode) rather than aborting.
func (t *Tracker) Init(ctx context.Context, t0 time.Time) error {
	blockStart, err := t.resolveBlockForTime(ctx, t0)
	if err != nil {
		return err
	}
	t.blockStart = blockStart
	t.lastProcessedBlock = blockStart

	balance, err := t.readBalanceAt(ctx, blockStart)
	if err != nil {
		balance, err = t.readBalanceAt(ctx, blockStart)
	}
	if err != nil {
		t.log.Warn().Err(err).Msg("tax tracker: historical balance read failed twice, falling back to net-inflow only mode")
		t.netOnlyMode = true
		t.startBalance = big.NewInt(0)
		return nil
	}
	t.startBalance = balance
	return nil
}

func (t *Tracker) readBalanceAt(ctx context.Context, block uint64) (*big.Int, error) {
	out, err := t.token.Call(ctx, &contractclient.CallOpts{BlockNumber: new(big.Int).SetUint64(block)}, "balanceOf", t.receiver)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (t *Tracker) readCurrentBalance(ctx context.Context) (*big.Int, error) {
	out, err := t.token.Call(ctx, nil, "balanceOf", t.receiver)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// resolveBlockForTime estimates a block number near t0 from the average
// block time, then binary-searches ±blockSearchWindow blocks around it
// by comparing block timestamps.
func (t *Tracker) resolveBlockForTime(ctx context.Context, t0 time.Time) (uint64, error) {
	latestHeader, err := t.headerByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	latestNum := latestHeader.Number.Uint64()
	latestTime := int64(latestHeader.Time)

	sampleNum := uint64(0)
	if latestNum > samplingDepth {
		sampleNum = latestNum - samplingDepth
	}
	var avgBlockSeconds float64 = 2.0
	if sampleNum != latestNum {
		sampleHeader, err := t.headerByNumber(ctx, new(big.Int).SetUint64(sampleNum))
		if err == nil {
			elapsed := latestTime - int64(sampleHeader.Time)
			blocks := int64(latestNum - sampleNum)
			if elapsed > 0 && blocks > 0 {
				avgBlockSeconds = float64(elapsed) / float64(blocks)
			}
		}
	}

	approx := estimateApproxBlock(int64(latestNum), latestTime, avgBlockSeconds, t0.Unix())
	lo, hi := searchWindow(approx, int64(latestNum))

	target := t0.Unix()
	result := sort.Search(int(hi-lo)+1, func(i int) bool {
		n := uint64(lo) + uint64(i)
		h, err := t.headerByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return false
		}
		return int64(h.Time) >= target
	})
	return uint64(lo) + uint64(result), nil
}

// estimateApproxBlock projects backward from the chain head using the
// measured average block time to guess which block was mined at
// targetUnix, clamped to a non-negative block number.
func estimateApproxBlock(latestNum, latestTime int64, avgBlockSeconds float64, targetUnix int64) int64 {
	secondsBehind := float64(latestTime - targetUnix)
	blocksBehind := int64(secondsBehind / avgBlockSeconds)
	approx := latestNum
	if blocksBehind > 0 {
		approx = latestNum - blocksBehind
	}
	if approx < 0 {
		approx = 0
	}
	return approx
}

// searchWindow clamps [approx-blockSearchWindow, approx+blockSearchWindow]
// to [0, latestNum].
func searchWindow(approx, latestNum int64) (lo, hi int64) {
	lo = approx - blockSearchWindow
	if lo < 0 {
		lo = 0
	}
	hi = approx + blockSearchWindow
	if hi > latestNum {
		hi = latestNum
	}
	return lo, hi
}

func (t *Tracker) headerByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return rpcpool.Call(ctx, t.pool, func(ctx context.Context, ec *ethclient.Client) (*types.Header, error) {
		return ec.HeaderByNumber(ctx, number)
	})
}

// Update scans Transfer logs in (lastProcessedBlock, min(latest,
// lastProcessedBlock+maxScanRange)], accumulates inflow/outflow and
// returns the reconciled counters. On a log-query error it rotates the
// active endpoint before propagating.
func (t *Tracker) Update(ctx context.Context) (Counters, error) {
	latestHeader, err := t.headerByNumber(ctx, nil)
	if err != nil {
		return Counters{}, err
	}
	latest := latestHeader.Number.Uint64()

	upper := t.lastProcessedBlock + maxScanRange
	if upper > latest {
		upper = latest
	}
	if upper <= t.lastProcessedBlock {
		return t.snapshot(ctx)
	}

	logs, err := t.token.FilterLogs(ctx, "Transfer", new(big.Int).SetUint64(t.lastProcessedBlock+1), new(big.Int).SetUint64(upper))
	if err != nil {
		t.pool.RotateRequest()
		return Counters{}, err
	}

	for _, lg := range logs {
		t.applyTransfer(lg)
	}
	t.lastProcessedBlock = upper

	return t.snapshot(ctx)
}

func (t *Tracker) applyTransfer(lg types.Log) {
	if len(lg.Topics) < 3 {
		return
	}
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())

	decoded, err := t.token.UnpackLog("Transfer", lg)
	if err != nil {
		t.log.Warn().Err(err).Str("tx", lg.TxHash.Hex()).Msg("tax tracker: failed to unpack transfer log")
		return
	}
	value, ok := decoded["value"].(*big.Int)
	if !ok {
		return
	}

	if to == t.receiver {
		t.inflow.Add(t.inflow, value)
	}
	if from == t.receiver {
		t.outflow.Add(t.outflow, value)
	}
}

// CatchUp calls Update repeatedly (up to maxCatchUpCalls) while the gap
// to the current head exceeds maxScanRange, so long-lived scans
// converge quickly after a late start or an outage.
func (t *Tracker) CatchUp(ctx context.Context) (Counters, error) {
	var last Counters
	for i := 0; i < maxCatchUpCalls; i++ {
		latestHeader, err := t.headerByNumber(ctx, nil)
		if err != nil {
			return last, err
		}
		if latestHeader.Number.Uint64()-t.lastProcessedBlock <= maxScanRange {
			break
		}
		counters, err := t.Update(ctx)
		if err != nil {
			return last, err
		}
		last = counters
	}
	return t.snapshot(ctx)
}

func (t *Tracker) snapshot(ctx context.Context) (Counters, error) {
	current, err := t.readCurrentBalance(ctx)
	if err != nil {
		current = nil
	}
	return reconcile(t.inflow, t.outflow, t.startBalance, current, t.lastProcessedBlock), nil
}

// reconcile is the pure accounting step shared by every snapshot:
// netInflow = inflow - outflow, balanceDiff = current - start, delta =
// balanceDiff - netInflow. A nil start or current balance (a failed
// read, or net-inflow-only mode) reports a zero balanceDiff/delta
// rather than fabricating a misleading reconciliation.
func reconcile(inflow, outflow, start, current *big.Int, lastProcessedBlock uint64) Counters {
	netInflow := new(big.Int).Sub(inflow, outflow)

	balanceDiff := big.NewInt(0)
	delta := big.NewInt(0)
	if start != nil && current != nil {
		balanceDiff = new(big.Int).Sub(current, start)
		delta = new(big.Int).Sub(balanceDiff, netInflow)
	}

	return Counters{
		Inflow:             new(big.Int).Set(inflow),
		Outflow:            new(big.Int).Set(outflow),
		NetInflow:          netInflow,
		BalanceDiff:        balanceDiff,
		Delta:              delta,
		LastProcessedBlock: lastProcessedBlock,
	}
}

// GetTaxTotal returns netInflow = inflow - outflow, the value the state
// machine snapshots as taxTotal at T1.
func (t *Tracker) GetTaxTotal() *big.Int {
	return new(big.Int).Sub(t.inflow, t.outflow)
}

// NetOnlyMode reports whether Init fell back to a zero start balance
// because the historical balanceOf read failed twice.
func (t *Tracker) NetOnlyMode() bool { return t.netOnlyMode }

// BlockStart returns the resolved starting block for this window.
func (t *Tracker) BlockStart() uint64 { return t.blockStart }
