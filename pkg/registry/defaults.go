package registry

import "flashtrade/pkg/types"

const (
	wethAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdcAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// DefaultDEXes is the venue set used when no registry file exists.
func DefaultDEXes() []types.DEX {
	return []types.DEX{
		{
			ID:                "uniswap-v2",
			Name:              "Uniswap V2",
			Active:            true,
			SupportedChainIDs: []uint64{1},
			Protocol:          types.ProtocolUniswapV2,
			Deployments: map[uint64]types.Deployment{
				1: {
					Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
					Router:  "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
				},
			},
			FeeBps:     30,
			BaseTokens: []string{wethAddress, usdcAddress},
		},
		{
			ID:                "sushiswap",
			Name:              "SushiSwap",
			Active:            true,
			SupportedChainIDs: []uint64{1},
			Protocol:          types.ProtocolUniswapV2,
			Deployments: map[uint64]types.Deployment{
				1: {
					Factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac",
					Router:  "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
				},
			},
			FeeBps:     30,
			BaseTokens: []string{wethAddress, usdcAddress},
		},
		{
			ID:                "oneclick",
			Name:              "NEAR Intents 1Click",
			Active:            false,
			SupportedChainIDs: []uint64{1, 10, 56, 137, 8453, 42161},
			Protocol:          types.ProtocolOneClick,
		},
	}
}

// DefaultTokens is the token set used when no registry file exists.
func DefaultTokens() []types.Token {
	return []types.Token{
		{Address: wethAddress, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, ChainID: 1},
		{Address: usdcAddress, Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: 1},
		{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6, ChainID: 1},
		{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, ChainID: 1},
		{Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: SolanaChainID},
	}
}
