package types

import (
	"errors"
	"time"
)

// Quote is a venue's answer to "how much tokenOut for amountIn".
type Quote struct {
	AmountOut   string   `json:"amount_out"`     // decimal string in tokenOut units
	PriceImpact float64  `json:"price_impact"`   // percent
	Path        []string `json:"path,omitempty"` // token addresses, multi-pool routes only
}

// SwapRequest represents one swap to execute on a venue
type SwapRequest struct {
	TokenIn      Token
	TokenOut     Token
	AmountIn     string
	MinAmountOut string
	Recipient    string
	Deadline     *time.Time
}

// SwapResult reports the outcome of one swap submission.
type SwapResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	AmountOut       string `json:"amount_out,omitempty"`
	Error           string `json:"error,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
}

// SwapSucceeded builds the result of a submitted swap.
func SwapSucceeded(txHash, amountOut string) *SwapResult {
	return &SwapResult{
		Success:         true,
		TransactionHash: txHash,
		AmountOut:       amountOut,
	}
}

// SwapFailed builds the result of a swap that never reached the chain.
func SwapFailed(kind string, err error) *SwapResult {
	msg := "swap failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &SwapResult{
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
	}
}

// SwapReverted builds the result of a submitted transaction that reverted.
func SwapReverted(txHash string, err error) *SwapResult {
	res := SwapFailed("Reverted", err)
	res.TransactionHash = txHash
	return res
}

// Validate checks the success/failure invariants of the result.
func (r *SwapResult) Validate() error {
	if r.Success {
		if r.TransactionHash == "" {
			return errors.New("successful swap without transaction hash")
		}
		if r.Error != "" {
			return errors.New("successful swap carries an error")
		}
		return nil
	}
	if r.Error == "" {
		return errors.New("failed swap without error")
	}
	return nil
}

// Liquidity describes the reserves backing a pair on one venue.
type Liquidity struct {
	Token0Reserves    string  `json:"token0_reserves"`
	Token1Reserves    string  `json:"token1_reserves"`
	TotalLiquidityUSD float64 `json:"total_liquidity_usd"` // informational only
}
