package dex

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flashtrade/pkg/types"
)

// DefaultDeadline is applied when a swap request carries no deadline.
const DefaultDeadline = 20 * time.Minute

// SwapFailure converts err into a failed SwapResult tagged with its kind.
func SwapFailure(err error) *types.SwapResult {
	return types.SwapFailed(KindOf(err), err)
}

// CheckDeadline fails with ErrDeadlineExpired when deadline is not after now.
func CheckDeadline(venue string, deadline *time.Time, now time.Time) error {
	if deadline == nil {
		return nil
	}
	if !deadline.After(now) {
		return Errorf(venue, "ExecuteSwap", ErrDeadlineExpired, "deadline %s passed at %s",
			deadline.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}

// EffectiveDeadline returns the request deadline or now+DefaultDeadline.
func EffectiveDeadline(deadline *time.Time, now time.Time) time.Time {
	if deadline != nil {
		return *deadline
	}
	return now.Add(DefaultDeadline)
}

// CheckSlippage fails with ErrSlippageExceeded when the simulated output is
// below the caller's floor.
func CheckSlippage(venue string, simulated, minAmountOut string) error {
	sim, err := decimal.NewFromString(simulated)
	if err != nil {
		return Errorf(venue, "ExecuteSwap", ErrQuoteUnavailable, "unparseable simulated output %q", simulated)
	}
	floor, err := decimal.NewFromString(strings.TrimSpace(minAmountOut))
	if err != nil || !floor.IsPositive() {
		return Errorf(venue, "ExecuteSwap", ErrValidation, "invalid minimum output %q", minAmountOut)
	}
	if sim.LessThan(floor) {
		return Errorf(venue, "ExecuteSwap", ErrSlippageExceeded, "simulated output %s below minimum %s", simulated, minAmountOut)
	}
	return nil
}
