package whaledetector

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchwatch/monitor/internal/chain/contractclient"
)

func mustABI(t *testing.T, json string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(json))
	require.NoError(t, err)
	return parsed
}

func newContractClient(t *testing.T, address common.Address, abiJSON string) *contractclient.Client {
	t.Helper()
	c, err := contractclient.New(nil, address, abiJSON)
	require.NoError(t, err)
	return c
}

func swapTopic0() common.Hash {
	return crypto.Keccak256Hash([]byte(contractclient.SwapEventSignature))
}

func swapLog(t *testing.T, sender, to common.Address, a0In, a1In, a0Out, a1Out *big.Int, txHash common.Hash) types.Log {
	t.Helper()
	parsed := mustABI(t, contractclient.AMMV2PairABI)
	data, err := parsed.Events["Swap"].Inputs.NonIndexed().Pack(a0In, a1In, a0Out, a1Out)
	require.NoError(t, err)
	return types.Log{
		Topics: []common.Hash{
			swapTopic0(),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   data,
		TxHash: txHash,
	}
}

func transferLog(t *testing.T, from, to common.Address, value *big.Int, txHash common.Hash) types.Log {
	t.Helper()
	parsed := mustABI(t, contractclient.ERC20ABI)
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	require.NoError(t, err)
	return types.Log{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte(contractclient.TransferEventSignature)),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   data,
		TxHash: txHash,
	}
}

func TestHandleSwapLogDetectsBuyWhenBaseIsToken0(t *testing.T) {
	pairAddr := common.HexToAddress("0x00000000000000000000000000000000000009")
	pair := newContractClient(t, pairAddr, contractclient.AMMV2PairABI)
	d := &Detector{mode: ModeAMMV2, pool: pairAddr, threshold: big.NewInt(100), baseIsToken0: true, seen: newSeenCache(t)}

	sender := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	lg := swapLog(t, sender, to, big.NewInt(500), big.NewInt(0), big.NewInt(0), big.NewInt(1000), common.HexToHash("0xaa"))

	trade, ok := d.HandleSwapLog(pair, lg)
	require.True(t, ok)
	assert.Equal(t, Buy, trade.Direction)
	assert.Equal(t, big.NewInt(500), trade.BaseAmount)
	assert.Equal(t, big.NewInt(1000), trade.TokenAmount)
}

func TestHandleSwapLogDetectsSellWhenBaseIsToken1(t *testing.T) {
	pairAddr := common.HexToAddress("0x00000000000000000000000000000000000009")
	pair := newContractClient(t, pairAddr, contractclient.AMMV2PairABI)
	d := &Detector{mode: ModeAMMV2, pool: pairAddr, threshold: big.NewInt(100), baseIsToken0: false, seen: newSeenCache(t)}

	sender := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	// base is token1: amount1Out > amount1In -> base leaving the pool -> sell.
	lg := swapLog(t, sender, to, big.NewInt(0), big.NewInt(0), big.NewInt(2000), big.NewInt(300), common.HexToHash("0xbb"))

	trade, ok := d.HandleSwapLog(pair, lg)
	require.True(t, ok)
	assert.Equal(t, Sell, trade.Direction)
	assert.Equal(t, big.NewInt(300), trade.BaseAmount)
}

func TestHandleSwapLogBelowThresholdIsDropped(t *testing.T) {
	pairAddr := common.HexToAddress("0x00000000000000000000000000000000000009")
	pair := newContractClient(t, pairAddr, contractclient.AMMV2PairABI)
	d := &Detector{mode: ModeAMMV2, pool: pairAddr, threshold: big.NewInt(1000), baseIsToken0: true, seen: newSeenCache(t)}

	sender := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	lg := swapLog(t, sender, to, big.NewInt(5), big.NewInt(0), big.NewInt(0), big.NewInt(10), common.HexToHash("0xcc"))

	_, ok := d.HandleSwapLog(pair, lg)
	assert.False(t, ok)
}

func TestHandleSwapLogDedupsByTxHash(t *testing.T) {
	pairAddr := common.HexToAddress("0x00000000000000000000000000000000000009")
	pair := newContractClient(t, pairAddr, contractclient.AMMV2PairABI)
	d := &Detector{mode: ModeAMMV2, pool: pairAddr, threshold: big.NewInt(100), baseIsToken0: true, seen: newSeenCache(t)}

	sender := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	lg := swapLog(t, sender, to, big.NewInt(500), big.NewInt(0), big.NewInt(0), big.NewInt(1000), common.HexToHash("0xdd"))

	_, ok := d.HandleSwapLog(pair, lg)
	require.True(t, ok)
	_, ok = d.HandleSwapLog(pair, lg)
	assert.False(t, ok)
}

func TestHandleTransferLogBuyWhenTransferIntoPool(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000099")
	token := newContractClient(t, common.HexToAddress("0x1"), contractclient.ERC20ABI)
	d := &Detector{mode: ModeCurve, pool: pool, threshold: big.NewInt(100), seen: newSeenCache(t)}

	trader := common.HexToAddress("0x55")
	lg := transferLog(t, trader, pool, big.NewInt(500), common.HexToHash("0xee"))

	trade, ok := d.HandleTransferLog(token, lg)
	require.True(t, ok)
	assert.Equal(t, Buy, trade.Direction)
	assert.Equal(t, trader, trade.Trader)
	assert.Equal(t, big.NewInt(0), trade.TokenAmount)
}

func TestHandleTransferLogSellWhenTransferOutOfPool(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000099")
	token := newContractClient(t, common.HexToAddress("0x1"), contractclient.ERC20ABI)
	d := &Detector{mode: ModeCurve, pool: pool, threshold: big.NewInt(100), seen: newSeenCache(t)}

	trader := common.HexToAddress("0x55")
	lg := transferLog(t, pool, trader, big.NewInt(500), common.HexToHash("0xff"))

	trade, ok := d.HandleTransferLog(token, lg)
	require.True(t, ok)
	assert.Equal(t, Sell, trade.Direction)
	assert.Equal(t, trader, trade.Trader)
}

func TestHandleTransferLogIgnoresTransfersNotTouchingPool(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000099")
	token := newContractClient(t, common.HexToAddress("0x1"), contractclient.ERC20ABI)
	d := &Detector{mode: ModeCurve, pool: pool, threshold: big.NewInt(100), seen: newSeenCache(t)}

	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")
	lg := transferLog(t, a, b, big.NewInt(500), common.HexToHash("0x11"))

	_, ok := d.HandleTransferLog(token, lg)
	assert.False(t, ok)
}

func newSeenCache(t *testing.T) *lru.Cache[common.Hash, struct{}] {
	t.Helper()
	cache, err := lru.New[common.Hash, struct{}](dedupCapacity)
	require.NoError(t, err)
	return cache
}
