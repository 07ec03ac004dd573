package uniswapv2

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const feeDenominator = 10000

// amountOut is the constant-product output for amountIn against the given
// reserves after the LP fee:
//
//	out = in*(10000-fee)*rOut / (rIn*10000 + in*(10000-fee))
func amountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-feeBps)))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(feeDenominator))
	denominator.Add(denominator, inWithFee)
	return numerator.Div(numerator, denominator)
}

// priceImpact returns the percentage shortfall of the executed rate versus
// the pool's mid price. The fee counts as part of the shortfall.
func priceImpact(amountIn, amountOut, reserveIn, reserveOut *big.Int) float64 {
	if amountIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return 100
	}
	executed := decimal.NewFromBigInt(new(big.Int).Mul(amountOut, reserveIn), 0)
	ideal := decimal.NewFromBigInt(new(big.Int).Mul(amountIn, reserveOut), 0)
	ratio := executed.DivRound(ideal, 18)
	impact, _ := decimal.NewFromInt(1).Sub(ratio).Mul(decimal.NewFromInt(100)).Float64()
	if impact < 0 {
		return 0
	}
	return impact
}

// compoundImpact combines per-hop impacts: 1 - prod(1 - impact_i).
func compoundImpact(impacts []float64) float64 {
	remaining := 1.0
	for _, i := range impacts {
		remaining *= 1 - i/100
	}
	return (1 - remaining) * 100
}

// midPrice multiplies the reserve ratios along a path and converts the
// raw-unit result into a price of one tokenIn unit in tokenOut units.
func midPrice(legs [][2]*big.Int, decimalsIn, decimalsOut int32) decimal.Decimal {
	price := decimal.NewFromInt(1)
	for _, leg := range legs {
		rIn := decimal.NewFromBigInt(leg[0], 0)
		rOut := decimal.NewFromBigInt(leg[1], 0)
		price = price.Mul(rOut).DivRound(rIn, 36)
	}
	return price.Shift(decimalsIn - decimalsOut)
}
