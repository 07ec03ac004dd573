package dex

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashtrade/pkg/types"
)

const maxBps = 10000

// ParseAmount parses a positive decimal amount. Anything else is an
// ErrValidation.
func ParseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not numeric", ErrValidation, amount)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount %s must be greater than 0", ErrValidation, amount)
	}
	return d, nil
}

// ToBaseUnits converts a token-unit amount into the token's smallest unit,
// truncating precision beyond the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FloorToBaseUnits converts a minimum output into the smallest unit,
// rounding up so the on-chain floor is never below the caller's.
func FloorToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Ceil().BigInt()
}

// FromBaseUnits renders a smallest-unit amount as a token-unit decimal string.
func FromBaseUnits(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// MinOutput applies a slippage tolerance to an expected output.
// minOutput = expected * (10000 - slippageBps) / 10000
func MinOutput(expectedOutput string, slippageBps uint32) (string, error) {
	if slippageBps >= maxBps {
		return "", fmt.Errorf("%w: slippage %d bps must be below %d", ErrValidation, slippageBps, maxBps)
	}
	expected, err := ParseAmount(expectedOutput)
	if err != nil {
		return "", err
	}
	factor := decimal.NewFromInt(int64(maxBps - slippageBps)).Div(decimal.NewFromInt(maxBps))
	return expected.Mul(factor).String(), nil
}

// PairKey returns an order-independent key for a token pair on one chain.
func PairKey(a, b types.Token) string {
	addrs := []string{strings.ToLower(a.Address), strings.ToLower(b.Address)}
	sort.Strings(addrs)
	return addrs[0] + "/" + addrs[1]
}

// ValidatePair rejects pairs an adapter can never quote.
func ValidatePair(a, b types.Token) error {
	if a.ChainID != b.ChainID {
		return fmt.Errorf("%w: tokens %s and %s are on different chains", ErrValidation, a, b)
	}
	if a.SameAs(b) {
		return fmt.Errorf("%w: cannot pair %s with itself", ErrValidation, a)
	}
	return nil
}

// ValidateSwapRequest checks caller input before any network call.
func ValidateSwapRequest(req types.SwapRequest) error {
	if err := ValidatePair(req.TokenIn, req.TokenOut); err != nil {
		return err
	}
	if _, err := ParseAmount(req.AmountIn); err != nil {
		return err
	}
	minOut, err := decimal.NewFromString(strings.TrimSpace(req.MinAmountOut))
	if err != nil || !minOut.IsPositive() {
		return fmt.Errorf("%w: minimum output %q is required and must be greater than 0", ErrValidation, req.MinAmountOut)
	}
	if !common.IsHexAddress(req.Recipient) {
		return fmt.Errorf("%w: invalid recipient address %q", ErrValidation, req.Recipient)
	}
	if common.HexToAddress(req.Recipient) == (common.Address{}) {
		return fmt.Errorf("%w: recipient is the zero address", ErrValidation)
	}
	return nil
}
