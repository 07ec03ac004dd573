package dex

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"flashtrade/pkg/types"
)

var (
	weth = types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, ChainID: 1}
	usdc = types.Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, ChainID: 1}
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"1", true},
		{" 0.5 ", true},
		{"1e3", true},
		{"0", false},
		{"-1", false},
		{"", false},
		{"abc", false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			_, err := ParseAmount(tc.in)
			assert.Equal(t, err == nil, tc.ok)
			if !tc.ok {
				assert.True(t, errors.Is(err, ErrValidation))
			}
		})
	}
}

func TestBaseUnits(t *testing.T) {
	assert.Equal(t, ToBaseUnits(decimal.RequireFromString("1.5"), 6).String(), "1500000")
	assert.Equal(t, ToBaseUnits(decimal.RequireFromString("0.1234567"), 6).String(), "123456")
	assert.Equal(t, FloorToBaseUnits(decimal.RequireFromString("1990.0000009"), 6).String(), "1990000001")
	assert.Equal(t, FloorToBaseUnits(decimal.RequireFromString("1990"), 6).String(), "1990000000")
	assert.Equal(t, FromBaseUnits(big.NewInt(1500000), 6), "1.5")
	assert.Equal(t, FromBaseUnits(big.NewInt(1), 18), "0.000000000000000001")
}

func TestMinOutput(t *testing.T) {
	got, err := MinOutput("1", 50)
	assert.NoError(t, err)
	assert.Equal(t, got, "0.995")

	got, err = MinOutput("2000", 0)
	assert.NoError(t, err)
	assert.Equal(t, got, "2000")

	_, err = MinOutput("1", 10001)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = MinOutput("1", 10000)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = MinOutput("zero", 50)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey(weth, usdc), PairKey(usdc, weth))
}

func TestValidatePair(t *testing.T) {
	assert.NoError(t, ValidatePair(weth, usdc))

	lower := weth
	lower.Address = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	assert.True(t, errors.Is(ValidatePair(weth, lower), ErrValidation))

	other := usdc
	other.ChainID = 10
	assert.True(t, errors.Is(ValidatePair(weth, other), ErrValidation))
}

func TestValidateSwapRequest(t *testing.T) {
	valid := types.SwapRequest{
		TokenIn:      weth,
		TokenOut:     usdc,
		AmountIn:     "1",
		MinAmountOut: "1900",
		Recipient:    "0x000000000000000000000000000000000000dEaD",
	}
	assert.NoError(t, ValidateSwapRequest(valid))

	tests := []struct {
		name   string
		mutate func(*types.SwapRequest)
	}{
		{"zero amount", func(r *types.SwapRequest) { r.AmountIn = "0" }},
		{"negative minimum", func(r *types.SwapRequest) { r.MinAmountOut = "-1" }},
		{"missing minimum", func(r *types.SwapRequest) { r.MinAmountOut = "" }},
		{"zero minimum", func(r *types.SwapRequest) { r.MinAmountOut = "0" }},
		{"bad recipient", func(r *types.SwapRequest) { r.Recipient = "nobody" }},
		{"zero recipient", func(r *types.SwapRequest) { r.Recipient = "0x0000000000000000000000000000000000000000" }},
		{"same token", func(r *types.SwapRequest) { r.TokenOut = weth }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			assert.True(t, errors.Is(ValidateSwapRequest(req), ErrValidation))
		})
	}
}

func TestCheckDeadline(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, CheckDeadline("v", nil, now))

	future := now.Add(time.Minute)
	assert.NoError(t, CheckDeadline("v", &future, now))

	err := CheckDeadline("v", &now, now)
	assert.True(t, errors.Is(err, ErrDeadlineExpired))
	assert.Equal(t, KindOf(err), "DeadlineExpired")

	assert.Equal(t, EffectiveDeadline(nil, now), now.Add(DefaultDeadline))
	assert.Equal(t, EffectiveDeadline(&future, now), future)
}

func TestCheckSlippage(t *testing.T) {
	assert.True(t, errors.Is(CheckSlippage("v", "0.98", ""), ErrValidation))
	assert.True(t, errors.Is(CheckSlippage("v", "0.98", "0"), ErrValidation))
	assert.NoError(t, CheckSlippage("v", "0.98", "0.98"))
	assert.True(t, errors.Is(CheckSlippage("v", "0.97", "0.98"), ErrSlippageExceeded))
	assert.True(t, errors.Is(CheckSlippage("v", "0.98", "x"), ErrValidation))
}
