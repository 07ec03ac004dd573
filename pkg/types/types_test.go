package types

import (
	"errors"
	"testing"

	"github.com/zeebo/assert"
)

var (
	weth = Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, ChainID: 1}
	usdc = Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, ChainID: 1}
	dai  = Token{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18, ChainID: 1}
)

func TestTokenIdentity(t *testing.T) {
	lower := weth
	lower.Address = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	lower.Symbol = ""
	assert.True(t, weth.SameAs(lower))
	assert.Equal(t, lower.String(), lower.Address)

	other := weth
	other.ChainID = 10
	assert.False(t, weth.SameAs(other))
}

func TestSwapResultValidate(t *testing.T) {
	assert.NoError(t, SwapSucceeded("0xabc", "0.98").Validate())
	assert.NoError(t, SwapFailed("DeadlineExpired", errors.New("deadline passed")).Validate())

	failed := SwapFailed("", nil)
	assert.Equal(t, failed.Error, "swap failed")
	assert.NoError(t, failed.Validate())

	reverted := SwapReverted("0xdef", errors.New("execution reverted"))
	assert.False(t, reverted.Success)
	assert.Equal(t, reverted.ErrorKind, "Reverted")
	assert.Equal(t, reverted.TransactionHash, "0xdef")
	assert.NoError(t, reverted.Validate())

	assert.Error(t, (&SwapResult{Success: true}).Validate())
	assert.Error(t, (&SwapResult{Success: true, TransactionHash: "0x1", Error: "x"}).Validate())
	assert.Error(t, (&SwapResult{}).Validate())
}

func TestTradeRouteValidate(t *testing.T) {
	route := &TradeRoute{
		AmountIn:  "1",
		AmountOut: "0.999",
		Hops: []Hop{
			{VenueID: "a", TokenIn: weth, TokenOut: usdc, AmountIn: "1.0", AmountOut: "2000"},
			{VenueID: "b", TokenIn: usdc, TokenOut: dai, AmountIn: "2000.00", AmountOut: "0.999"},
		},
	}
	assert.NoError(t, route.Validate())
	assert.Equal(t, route.TokenIn().Symbol, "WETH")
	assert.Equal(t, route.TokenOut().Symbol, "DAI")

	tests := []struct {
		name   string
		mutate func(r *TradeRoute)
	}{
		{"no hops", func(r *TradeRoute) { r.Hops = nil }},
		{"input mismatch", func(r *TradeRoute) { r.AmountIn = "2" }},
		{"token gap", func(r *TradeRoute) { r.Hops[1].TokenIn = weth }},
		{"amount gap", func(r *TradeRoute) { r.Hops[1].AmountIn = "1999" }},
		{"output mismatch", func(r *TradeRoute) { r.AmountOut = "1" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := *route
			r.Hops = append([]Hop(nil), route.Hops...)
			tc.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}
