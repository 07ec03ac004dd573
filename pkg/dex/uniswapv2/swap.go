package uniswapv2

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flashtrade/pkg/dex"
	ttypes "flashtrade/pkg/types"
)

// ExecuteSwap simulates the trade, enforces the caller's deadline and
// minimum output, then submits swapExactTokensForTokens once.
func (a *Adapter) ExecuteSwap(ctx context.Context, req ttypes.SwapRequest) (*ttypes.SwapResult, error) {
	const op = "ExecuteSwap"
	if err := dex.ValidateSwapRequest(req); err != nil {
		return nil, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	if err := a.checkPair(req.TokenIn, req.TokenOut); err != nil {
		return nil, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}

	now := a.now()
	if err := dex.CheckDeadline(a.dex.ID, req.Deadline, now); err != nil {
		return dex.SwapFailure(err), nil
	}
	if a.signer == nil {
		return dex.SwapFailure(dex.Errorf(a.dex.ID, op, dex.ErrProviderUnavailable, "no signer configured")), nil
	}

	amount, _ := dex.ParseAmount(req.AmountIn)
	amountIn := dex.ToBaseUnits(amount, req.TokenIn.Decimals)
	sim, err := a.simulate(ctx, op, req.TokenIn, req.TokenOut, amountIn)
	if err != nil {
		return dex.SwapFailure(err), nil
	}
	expected := dex.FromBaseUnits(sim.out, req.TokenOut.Decimals)
	if err := dex.CheckSlippage(a.dex.ID, expected, req.MinAmountOut); err != nil {
		return dex.SwapFailure(err), nil
	}

	floor, _ := dex.ParseAmount(req.MinAmountOut)
	minOut := dex.FloorToBaseUnits(floor, req.TokenOut.Decimals)

	owner := a.signer.Address()
	allowance, err := a.client.Allowance(ctx, address(req.TokenIn), owner, a.router)
	if err != nil {
		return dex.SwapFailure(a.wrap(op, err)), nil
	}
	if allowance.Cmp(amountIn) < 0 {
		return dex.SwapFailure(dex.Errorf(a.dex.ID, op, dex.ErrValidation,
			"router allowance %s below %s %s, approve first",
			dex.FromBaseUnits(allowance, req.TokenIn.Decimals), req.AmountIn, req.TokenIn)), nil
	}

	deadline := dex.EffectiveDeadline(req.Deadline, now)
	data, err := routerABI.Pack("swapExactTokensForTokens",
		amountIn, minOut, sim.path, common.HexToAddress(req.Recipient), big.NewInt(deadline.Unix()))
	if err != nil {
		return dex.SwapFailure(dex.NewError(a.dex.ID, op, dex.ErrValidation, err)), nil
	}

	tx, err := a.client.SendContractTx(ctx, a.signer, a.router, data, nil)
	if err != nil {
		return dex.SwapFailure(a.wrap(op, err)), nil
	}
	hash := tx.Hash().Hex()

	a.log.Info().
		Str("tx", hash).
		Str("in", req.TokenIn.String()).
		Str("out", req.TokenOut.String()).
		Str("amount_in", req.AmountIn).
		Str("expected_out", expected).
		Int("hops", len(sim.path)-1).
		Msg("swap submitted")

	if a.receiptTimeout > 0 {
		if reverted := a.awaitReceipt(ctx, tx); reverted {
			return ttypes.SwapReverted(hash, fmt.Errorf("%s: transaction %s reverted", a.dex.ID, hash)), nil
		}
	}
	return ttypes.SwapSucceeded(hash, expected), nil
}

// awaitReceipt reports whether tx was mined and reverted. A receipt that
// does not arrive in time leaves the swap reported as submitted.
func (a *Adapter) awaitReceipt(ctx context.Context, tx *types.Transaction) bool {
	waitCtx, cancel := context.WithTimeout(ctx, a.receiptTimeout)
	defer cancel()

	poll := defaultReceiptPoll
	if a.receiptTimeout < poll {
		poll = a.receiptTimeout / 4
	}
	if poll <= 0 {
		poll = time.Millisecond
	}
	receipt, err := a.client.WaitReceipt(waitCtx, tx.Hash(), poll)
	if err != nil {
		a.log.Warn().Err(err).Str("tx", tx.Hash().Hex()).Msg("receipt not available")
		return false
	}
	return receipt.Status == types.ReceiptStatusFailed
}

// Approve grants the router an allowance of amount tokens. It returns the
// approval transaction hash.
func (a *Adapter) Approve(ctx context.Context, token ttypes.Token, amount string) (string, error) {
	const op = "Approve"
	value, err := dex.ParseAmount(amount)
	if err != nil {
		return "", dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	if !common.IsHexAddress(token.Address) {
		return "", dex.Errorf(a.dex.ID, op, dex.ErrValidation, "invalid token address %q", token.Address)
	}
	if a.signer == nil {
		return "", dex.Errorf(a.dex.ID, op, dex.ErrProviderUnavailable, "no signer configured")
	}

	tx, err := a.client.Approve(ctx, a.signer, address(token), a.router, dex.ToBaseUnits(value, token.Decimals))
	if err != nil {
		return "", a.wrap(op, err)
	}
	a.log.Info().Str("tx", tx.Hash().Hex()).Str("token", token.String()).Str("amount", amount).Msg("approval submitted")
	return tx.Hash().Hex(), nil
}
