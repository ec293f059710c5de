// Package whaledetector implements the swap detector: a live
// subscription to either an AMM v2 pair's Swap event or, for
// pre-graduation curves, the base token's Transfer event touching the
// pool address, thresholded by absolute base-token amount and
// deduplicated by transaction hash.
package whaledetector

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/launchwatch/monitor/internal/chain/contractclient"
)

const dedupCapacity = 1000

// Mode selects which on-chain shape this detector decodes.
type Mode int

const (
	ModeAMMV2 Mode = iota
	ModeCurve
)

// Direction is the trade side relative to the pool.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Trade is one emitted whale-size swap.
type Trade struct {
	Direction   Direction
	BaseAmount  *big.Int
	TokenAmount *big.Int
	Trader      common.Address
	TxHash      common.Hash
	Block       uint64
	Timestamp   time.Time
}

// Detector decodes pool logs into Trade events above threshold,
// deduping by transaction hash.
type Detector struct {
	mode          Mode
	pool          common.Address
	threshold     *big.Int
	baseIsToken0  bool
	seen          *lru.Cache[common.Hash, struct{}]
}

// NewAMMV2 builds a Detector for a post-graduation AMM v2 pair. It reads
// token0 once to decide whether the base token is token0 or token1.
func NewAMMV2(ctx context.Context, pair *contractclient.Client, baseToken common.Address, threshold *big.Int) (*Detector, error) {
	out, err := pair.Call(ctx, nil, "token0")
	if err != nil {
		return nil, err
	}
	token0, ok := out[0].(common.Address)
	if !ok {
		return nil, errUnexpectedReturn("token0")
	}

	cache, err := lru.New[common.Hash, struct{}](dedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Detector{
		mode:         ModeAMMV2,
		pool:         pair.Address(),
		threshold:    new(big.Int).Set(threshold),
		baseIsToken0: token0 == baseToken,
		seen:         cache,
	}, nil
}

// NewCurve builds a Detector for a pre-graduation bonding curve pool,
// watching the base token's transfers that touch the pool address.
func NewCurve(pool common.Address, threshold *big.Int) (*Detector, error) {
	cache, err := lru.New[common.Hash, struct{}](dedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Detector{
		mode:      ModeCurve,
		pool:      pool,
		threshold: new(big.Int).Set(threshold),
		seen:      cache,
	}, nil
}

func errUnexpectedReturn(method string) error {
	return &unexpectedReturnError{method: method}
}

type unexpectedReturnError struct{ method string }

func (e *unexpectedReturnError) Error() string {
	return "whaledetector: unexpected return type from " + e.method
}

// HandleSwapLog decodes an AMM v2 Swap event log, thresholds it and
// dedups by transaction hash. ok is false when the log is sub-threshold
// or a duplicate.
func (d *Detector) HandleSwapLog(client *contractclient.Client, lg types.Log) (Trade, bool) {
	if d.mode != ModeAMMV2 {
		return Trade{}, false
	}
	if len(lg.Topics) < 3 {
		return Trade{}, false
	}
	if d.seen.Contains(lg.TxHash) {
		return Trade{}, false
	}

	decoded, err := client.UnpackLog("Swap", lg)
	if err != nil {
		return Trade{}, false
	}
	amount0In, ok1 := decoded["amount0In"].(*big.Int)
	amount1In, ok2 := decoded["amount1In"].(*big.Int)
	amount0Out, ok3 := decoded["amount0Out"].(*big.Int)
	amount1Out, ok4 := decoded["amount1Out"].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Trade{}, false
	}

	var baseDelta, tokenDelta *big.Int
	if d.baseIsToken0 {
		baseDelta = new(big.Int).Sub(amount0In, amount0Out)
		tokenDelta = new(big.Int).Sub(amount1Out, amount1In)
	} else {
		baseDelta = new(big.Int).Sub(amount1In, amount1Out)
		tokenDelta = new(big.Int).Sub(amount0Out, amount0In)
	}

	abs := new(big.Int).Abs(baseDelta)
	if abs.Cmp(d.threshold) < 0 {
		return Trade{}, false
	}

	direction := Sell
	if baseDelta.Sign() > 0 {
		direction = Buy
	}

	sender := common.BytesToAddress(lg.Topics[1].Bytes())

	d.seen.Add(lg.TxHash, struct{}{})
	return Trade{
		Direction:   direction,
		BaseAmount:  abs,
		TokenAmount: new(big.Int).Abs(tokenDelta),
		Trader:      sender,
		TxHash:      lg.TxHash,
		Block:       lg.BlockNumber,
		Timestamp:   time.Now(),
	}, true
}

// HandleTransferLog decodes a base-token Transfer log in curve mode,
// filters to transfers touching the pool address, thresholds and dedups.
func (d *Detector) HandleTransferLog(token *contractclient.Client, lg types.Log) (Trade, bool) {
	if d.mode != ModeCurve {
		return Trade{}, false
	}
	if len(lg.Topics) < 3 {
		return Trade{}, false
	}
	if d.seen.Contains(lg.TxHash) {
		return Trade{}, false
	}

	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())
	if from != d.pool && to != d.pool {
		return Trade{}, false
	}

	decoded, err := token.UnpackLog("Transfer", lg)
	if err != nil {
		return Trade{}, false
	}
	value, ok := decoded["value"].(*big.Int)
	if !ok {
		return Trade{}, false
	}
	if value.Cmp(d.threshold) < 0 {
		return Trade{}, false
	}

	// to == pool: someone paid base token into the pool to buy the
	// project token; from == pool: the pool paid base token out, a sell.
	direction := Sell
	trader := to
	if to == d.pool {
		direction = Buy
		trader = from
	}

	d.seen.Add(lg.TxHash, struct{}{})
	return Trade{
		Direction:   direction,
		BaseAmount:  new(big.Int).Set(value),
		TokenAmount: big.NewInt(0),
		Trader:      trader,
		TxHash:      lg.TxHash,
		Block:       lg.BlockNumber,
		Timestamp:   time.Now(),
	}, true
}
