package lifecycle

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/chain/contractclient"
	"github.com/launchwatch/monitor/internal/chain/pushclient"
	"github.com/launchwatch/monitor/internal/chain/rpcpool"
	"github.com/launchwatch/monitor/internal/fdv"
	"github.com/launchwatch/monitor/internal/model"
	"github.com/launchwatch/monitor/internal/monitor/buybacktracker"
	"github.com/launchwatch/monitor/internal/monitor/taxtracker"
	"github.com/launchwatch/monitor/internal/monitor/whaledetector"
)

// NewTaxTrackerFactory builds the production TaxTrackerFactory: a fresh
// taxtracker.Tracker bound to the base token and the configured
// receiver address, re-bound on every call against whichever endpoint
// pool currently considers active.
func NewTaxTrackerFactory(pool *rpcpool.Pool, baseToken, receiver common.Address, log zerolog.Logger) TaxTrackerFactory {
	return func() TaxTracker {
		tokenClient, err := contractclient.New(pool, baseToken, contractclient.ERC20ABI)
		if err != nil {
			// contractclient.New only fails on malformed ABI JSON, a
			// build-time constant here, never a runtime condition.
			panic(err)
		}
		return taxtracker.New(pool, tokenClient, receiver, log)
	}
}

// NewWhaleMonitorFactory builds the production WhaleMonitorFactory. In
// AMM v2 mode it subscribes to the pair's Swap event; in curve mode it
// subscribes to the base token's Transfer event and the detector
// itself filters to transfers touching the pool address.
func NewWhaleMonitorFactory(pool *rpcpool.Pool, baseToken common.Address, threshold *big.Int, log zerolog.Logger) WhaleMonitorFactory {
	return func(ctx context.Context, sp model.SelectedProject, onTrade func(whaledetector.Trade)) (func(), error) {
		poolAddr := common.HexToAddress(sp.PoolAddress)
		push := pushclient.New(pool, log, pool.SetPushConnected)

		if sp.PoolType == model.PoolAMMV2 {
			pairClient, err := contractclient.New(pool, poolAddr, contractclient.AMMV2PairABI)
			if err != nil {
				return nil, err
			}
			detector, err := whaledetector.NewAMMV2(ctx, pairClient, baseToken, threshold)
			if err != nil {
				return nil, err
			}
			swapQuery := ethereum.FilterQuery{
				Addresses: []common.Address{poolAddr},
				Topics:    [][]common.Hash{{pairClient.ABI().Events["Swap"].ID}},
			}
			push.AddSubscription(swapQuery, func(lg types.Log) {
				if trade, ok := detector.HandleSwapLog(pairClient, lg); ok {
					onTrade(trade)
				}
			})
		} else {
			detector, err := whaledetector.NewCurve(poolAddr, threshold)
			if err != nil {
				return nil, err
			}
			tokenClient, err := contractclient.New(pool, baseToken, contractclient.ERC20ABI)
			if err != nil {
				return nil, err
			}
			transferQuery := ethereum.FilterQuery{
				Addresses: []common.Address{baseToken},
				Topics:    [][]common.Hash{{tokenClient.ABI().Events["Transfer"].ID}},
			}
			push.AddSubscription(transferQuery, func(lg types.Log) {
				if trade, ok := detector.HandleTransferLog(tokenClient, lg); ok {
					onTrade(trade)
				}
			})
		}

		if err := push.Connect(ctx); err != nil {
			return nil, err
		}
		return push.Destroy, nil
	}
}

// NewBuybackMonitorFactory builds the production BuybackMonitorFactory:
// a buybacktracker.Tracker fed by a live subscription to the base
// token's Transfer event, filtered to outbound transfers from the
// configured receiver.
func NewBuybackMonitorFactory(pool *rpcpool.Pool, baseToken, receiver common.Address, rateWindow, stallAfter time.Duration, log zerolog.Logger) BuybackMonitorFactory {
	return func(ctx context.Context, sp model.SelectedProject, budget *big.Int) (BuybackTracker, func(), error) {
		tracker := buybacktracker.New(budget, rateWindow, stallAfter)

		tokenClient, err := contractclient.New(pool, baseToken, contractclient.ERC20ABI)
		if err != nil {
			return nil, nil, err
		}

		push := pushclient.New(pool, log, pool.SetPushConnected)
		transferQuery := ethereum.FilterQuery{
			Addresses: []common.Address{baseToken},
			Topics:    [][]common.Hash{{tokenClient.ABI().Events["Transfer"].ID}},
		}
		push.AddSubscription(transferQuery, func(lg types.Log) {
			if len(lg.Topics) < 3 {
				return
			}
			from := common.BytesToAddress(lg.Topics[1].Bytes())
			if from != receiver {
				return
			}
			decoded, err := tokenClient.UnpackLog("Transfer", lg)
			if err != nil {
				return
			}
			value, ok := decoded["value"].(*big.Int)
			if !ok {
				return
			}
			tracker.RecordSpend(time.Now(), value, lg.TxHash.Hex())
		})

		if err := push.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return tracker, push.Destroy, nil
	}
}

// NewFDVFactory builds the production FDVFactory: binds the curve
// contract at the selected project's pool address, resolving its
// underlying token either from the catalog descriptor or, if absent,
// via fdv.TokenFromCurve.
func NewFDVFactory(pool *rpcpool.Pool) FDVFactory {
	return func(ctx context.Context, sp model.SelectedProject) (*contractclient.Client, *contractclient.Client, error) {
		poolAddr := common.HexToAddress(sp.PoolAddress)
		curveClient, err := contractclient.New(pool, poolAddr, contractclient.CurveABI)
		if err != nil {
			return nil, nil, err
		}

		var tokenAddr common.Address
		if sp.Descriptor.TokenAddress != nil && *sp.Descriptor.TokenAddress != "" {
			tokenAddr = common.HexToAddress(*sp.Descriptor.TokenAddress)
		} else {
			tokenAddr, err = fdv.TokenFromCurve(ctx, curveClient)
			if err != nil {
				return nil, nil, err
			}
		}

		tokenClient, err := contractclient.New(pool, tokenAddr, contractclient.ERC20ABI)
		if err != nil {
			return nil, nil, err
		}
		return curveClient, tokenClient, nil
	}
}
