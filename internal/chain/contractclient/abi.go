package contractclient

// Minimal ABI fragments for the handful of methods and events this
// repo needs. The teacher loads full Hardhat-artifact ABIs from disk
// (util.LoadABIFromHardhatArtifact); this repo only ever calls a small,
// fixed set of well-known ERC20/AMM/curve selectors, so the fragments
// are kept inline instead of shipping ABI JSON files.
const (
	ERC20ABI = `[
		{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
	]`

	AMMV2PairABI = `[
		{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"amount0In","type":"uint256"},{"indexed":false,"name":"amount1In","type":"uint256"},{"indexed":false,"name":"amount0Out","type":"uint256"},{"indexed":false,"name":"amount1Out","type":"uint256"},{"indexed":true,"name":"to","type":"address"}],"name":"Swap","type":"event"}
	]`

	CurveABI = `[
		{"constant":true,"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"agentToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"getTokenPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"getPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
)

// TransferEventSignature is the canonical ERC20 Transfer event
// signature; its keccak256 hash is the event's topic0.
const TransferEventSignature = "Transfer(address,address,uint256)"

// SwapEventSignature is the canonical AMM v2 Swap event signature; its
// keccak256 hash is the event's topic0.
const SwapEventSignature = "Swap(address,uint256,uint256,uint256,uint256,address)"
