package uniswapv2

import "flashtrade/pkg/chain"

// Contract ABIs, trimmed to the methods the adapter calls.
const (
	FactoryABI = `[{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"type":"function"}]`

	PairABI = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"type":"function"}]`

	RouterABI = `[{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}]`
)

var (
	factoryABI = chain.MustParseABI(FactoryABI)
	pairABI    = chain.MustParseABI(PairABI)
	routerABI  = chain.MustParseABI(RouterABI)
)
