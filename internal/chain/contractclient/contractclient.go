// Package contractclient is a thin wrapper over go-ethereum's ABI
// binding machinery: it rebinds against whichever endpoint the RPC
// pool currently considers active, so a contract binding never
// outlives a pool rotation.
package contractclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/launchwatch/monitor/internal/chain/rpcpool"
)

// Client binds one contract address + ABI against the pool's currently
// active endpoint, re-binding on every call against the pool's cached
// client for that endpoint.
type Client struct {
	pool    *rpcpool.Pool
	address common.Address
	abi     abi.ABI
}

// New parses abiJSON and returns a Client for address.
func New(pool *rpcpool.Pool, address common.Address, abiJSON string) (*Client, error) {
	parsed, err := abi.JSON(newStringReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, address: address, abi: parsed}, nil
}

// Address returns the bound contract address.
func (c *Client) Address() common.Address { return c.address }

// CallOpts mirrors the subset of bind.CallOpts this repo needs: mainly
// a historical block tag for the tax tracker's startBalance read.
type CallOpts struct {
	BlockNumber *big.Int
}

// Call invokes a read-only method under the pool's retry/rotation
// discipline, rebuilding the bound contract against whichever endpoint
// is active for each attempt.
func (c *Client) Call(ctx context.Context, opts *CallOpts, method string, args ...interface{}) ([]interface{}, error) {
	return rpcpool.Call(ctx, c.pool, func(ctx context.Context, ec *ethclient.Client) ([]interface{}, error) {
		bound := bind.NewBoundContract(c.address, c.abi, ec, ec, ec)
		callOpts := &bind.CallOpts{Context: ctx}
		if opts != nil && opts.BlockNumber != nil {
			callOpts.BlockNumber = opts.BlockNumber
		}
		var out []interface{}
		if err := bound.Call(callOpts, &out, method, args...); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// FilterLogs queries this contract's logs in [fromBlock, toBlock] (both
// bounds inclusive) for the named event, under the pool's retry/rotation discipline.
func (c *Client) FilterLogs(ctx context.Context, eventName string, fromBlock, toBlock *big.Int) ([]types.Log, error) {
	event, ok := c.abi.Events[eventName]
	if !ok {
		return nil, errUnknownEvent(eventName)
	}
	return rpcpool.Call(ctx, c.pool, func(ctx context.Context, ec *ethclient.Client) ([]types.Log, error) {
		query := buildFilterQuery(c.address, event.ID, fromBlock, toBlock)
		return ec.FilterLogs(ctx, query)
	})
}

// UnpackLog unpacks a previously-filtered log's non-indexed fields into
// a name->value map; indexed topics must be read by the caller from
// log.Topics directly (standard go-ethereum ABI convention).
func (c *Client) UnpackLog(eventName string, log types.Log) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := c.abi.UnpackIntoMap(out, eventName, log.Data); err != nil {
		return nil, err
	}
	return out, nil
}

// ABI exposes the parsed ABI, e.g. so callers can build FilterQuery
// topics for push-subscription registration.
func (c *Client) ABI() abi.ABI { return c.abi }
