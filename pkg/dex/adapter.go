// Package dex defines the capability contract every exchange venue adapter
// implements, together with the failure kinds and amount helpers the
// adapters share.
//
// Quoting methods (IsPairSupported, GetTokenPrice, GetExpectedOutput,
// GetLiquidity, GetSwapFee) must be free of side effects and safe for
// concurrent use. ExecuteSwap submits at most one transaction per call and
// never retries; retry policy belongs to the caller.
package dex

import (
	"context"

	"github.com/shopspring/decimal"

	"flashtrade/pkg/types"
)

// Adapter normalizes one venue behind a uniform interface so routing code
// never depends on a venue's ABI or quoting math.
type Adapter interface {
	// ID returns the stable venue identifier, e.g. "uniswap-v2".
	ID() string
	// Name returns the display name.
	Name() string

	// IsPairSupported reports whether the venue has a market for the pair.
	// It is symmetric in a and b and returns false, not an error, for
	// unknown pairs.
	IsPairSupported(ctx context.Context, a, b types.Token) (bool, error)

	// GetTokenPrice returns the spot price of a denominated in b. The price
	// is always positive; ErrQuoteUnavailable is returned when no liquidity
	// exists.
	GetTokenPrice(ctx context.Context, a, b types.Token) (decimal.Decimal, error)

	// GetExpectedOutput quotes amountIn (decimal string in tokenIn units).
	GetExpectedOutput(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) (*types.Quote, error)

	// ExecuteSwap submits one swap. The returned error is non-nil only for
	// malformed input (ErrValidation), detected before any network call;
	// every other failure is reported through SwapResult.
	ExecuteSwap(ctx context.Context, req types.SwapRequest) (*types.SwapResult, error)

	// GetLiquidity returns the pair reserves ordered as (a, b).
	GetLiquidity(ctx context.Context, a, b types.Token) (*types.Liquidity, error)

	// GetSwapFee returns the pair's fee in basis points (0-10000).
	GetSwapFee(ctx context.Context, a, b types.Token) (uint32, error)

	// IsReady reports whether the venue's endpoints are reachable and
	// initialized.
	IsReady(ctx context.Context) bool
}
