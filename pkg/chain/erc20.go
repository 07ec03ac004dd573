package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC20ABI covers the token methods the adapters use.
const ERC20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20 = MustParseABI(ERC20ABI)

// BalanceOf returns the raw token balance of owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.Call(ctx, erc20, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigOutput(out, "balanceOf")
}

// Allowance returns how much spender may pull from owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.Call(ctx, erc20, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOutput(out, "allowance")
}

// Decimals reads the token's decimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.Call(ctx, erc20, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output %T", out[0])
	}
	return d, nil
}

// Transfer sends amount of token to recipient.
func (c *Client) Transfer(ctx context.Context, signer Signer, token, recipient common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := erc20.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer data: %w", err)
	}
	return c.SendContractTx(ctx, signer, token, data, nil)
}

// Approve lets spender pull up to amount of token from the signer.
func (c *Client) Approve(ctx context.Context, signer Signer, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return c.SendContractTx(ctx, signer, token, data, nil)
}

func bigOutput(out []interface{}, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", method, out[0])
	}
	return v, nil
}
