// Package fdv computes a fully-diluted-valuation figure for a curve
// pool in both base-token units and USD, falling back to "no FDV" on
// any on-chain failure so the caller can fall back to a catalog
// estimate instead.
package fdv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/launchwatch/monitor/internal/cache"
	"github.com/launchwatch/monitor/internal/chain/contractclient"
)

const (
	usdQuoteTimeout = 5 * time.Second
	usdQuoteTTL     = 10 * time.Second
	tokenDecimals   = 18
)

var tenToTokenDecimals = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(tokenDecimals), nil))

// Source distinguishes an on-chain-computed FDV from a catalog-reported
// estimate used when the on-chain read fails.
type Source string

const (
	SourceOnchain        Source = "onchain"
	SourceCatalogEstimate Source = "catalog-estimate"
)

// Result is the computed FDV pair: in base-token units and, when a USD
// quote is available, in USD too.
type Result struct {
	FDVInVirtual string
	FDVUsd       string
	HasUsd       bool
	Source       Source
}

// Calculator wraps a single-flighted, 10s-cached USD quote fetch plus
// the stateless curve-FDV math.
type Calculator struct {
	quoteURL   string
	httpClient *http.Client
	usdQuote   *cache.TTL[float64]
}

// New builds a Calculator that fetches its USD quote from quoteURL (a
// GET endpoint returning {"price": <float>}).
func New(quoteURL string) *Calculator {
	return &Calculator{
		quoteURL:   quoteURL,
		httpClient: &http.Client{Timeout: usdQuoteTimeout},
		usdQuote:   cache.NewTTL[float64](usdQuoteTTL),
	}
}

// VirtualUSDPrice fetches (or returns the cached) USD quote for the
// base token. On a fresh failure it degrades to the last cached value
// with ok=true if one exists, or returns ok=false if there is none.
func (c *Calculator) VirtualUSDPrice(ctx context.Context) (price float64, ok bool) {
	v, _, err := c.usdQuote.GetOrStale("virtual-usd", func() (float64, error) {
		return c.fetchUSDQuote(ctx)
	})
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Calculator) fetchUSDQuote(ctx context.Context) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, usdQuoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.quoteURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fdv: usd quote endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	return payload.Price, nil
}

// TokenFromCurve tries the curve's token() method then agentToken(),
// returning the first non-zero address.
func TokenFromCurve(ctx context.Context, curve *contractclient.Client) (common.Address, error) {
	for _, method := range []string{"token", "agentToken"} {
		out, err := curve.Call(ctx, nil, method)
		if err != nil {
			continue
		}
		addr, ok := out[0].(common.Address)
		if !ok || addr == (common.Address{}) {
			continue
		}
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("fdv: curve has no non-zero token address from token()/agentToken()")
}

// ComputeCurveFDV reads the curve's price (getTokenPrice, falling back
// to getPrice) and the token's total supply, computing
// fdvInVirtual = price * supply / 10^18, optionally multiplied by a USD
// quote for fdvUsd.
func (c *Calculator) ComputeCurveFDV(ctx context.Context, curve, token *contractclient.Client, usdPrice float64, haveUsd bool) (Result, error) {
	price, err := curvePrice(ctx, curve)
	if err != nil {
		return Result{}, err
	}

	supplyOut, err := token.Call(ctx, nil, "totalSupply")
	if err != nil {
		return Result{}, err
	}
	supply, ok := supplyOut[0].(*big.Int)
	if !ok {
		return Result{}, fmt.Errorf("fdv: totalSupply returned unexpected type")
	}

	fdvVirtual := new(big.Float).Quo(
		new(big.Float).Mul(new(big.Float).SetInt(price), new(big.Float).SetInt(supply)),
		tenToTokenDecimals,
	)

	result := Result{
		FDVInVirtual: fdvVirtual.Text('f', 6),
		Source:       SourceOnchain,
	}
	if haveUsd {
		fdvUsd := new(big.Float).Mul(fdvVirtual, big.NewFloat(usdPrice))
		result.FDVUsd = fdvUsd.Text('f', 2)
		result.HasUsd = true
	}
	return result, nil
}

func curvePrice(ctx context.Context, curve *contractclient.Client) (*big.Int, error) {
	out, err := curve.Call(ctx, nil, "getTokenPrice")
	if err == nil {
		if p, ok := out[0].(*big.Int); ok {
			return p, nil
		}
	}
	out, err = curve.Call(ctx, nil, "getPrice")
	if err != nil {
		return nil, err
	}
	p, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("fdv: getPrice returned unexpected type")
	}
	return p, nil
}
