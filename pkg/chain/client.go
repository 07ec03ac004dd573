package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"flashtrade/pkg/dex"
)

const (
	DefaultCallTimeout = 10 * time.Second
	DefaultGasLimit    = uint64(250000) // used when estimation fails
	gasBufferPercent   = 120
)

// Options tunes the RPC boundary.
type Options struct {
	CallTimeout time.Duration // per RPC call, 0 means DefaultCallTimeout
	RateLimit   float64       // requests per second, 0 means unlimited
	Burst       int
	GasPrice    *big.Int // fixed gas price instead of eth_gasPrice
	GasLimit    *uint64  // fixed gas limit instead of estimation
}

// Client wraps a Backend with per-call timeouts, rate limiting and error
// classification. It is safe for concurrent use.
type Client struct {
	backend Backend
	chainID uint64
	opts    Options
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string, chainID uint64, opts Options, log zerolog.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", chainID)
	}
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return NewClient(backend, chainID, opts, log), nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, chainID uint64, opts Options, log zerolog.Logger) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		backend: backend,
		chainID: chainID,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "rpc").Uint64("chain_id", chainID).Logger(),
	}
}

// ChainID returns the chain the client was configured for.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.classify(op, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("rpc call failed")
		return c.classify(op, err)
	}
	return nil
}

func (c *Client) classify(op string, err error) error {
	var typed *dex.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dex.NewError("rpc", op, dex.ErrProviderTimeout, err)
	}
	return dex.NewError("rpc", op, dex.ErrProviderUnavailable, err)
}

// RemoteChainID asks the provider which chain it serves.
func (c *Client) RemoteChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context) error {
		var callErr error
		id, callErr = c.backend.ChainID(ctx)
		return callErr
	})
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// HasCode reports whether a contract is deployed at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	var code []byte
	err := c.do(ctx, "eth_getCode", func(ctx context.Context) error {
		var callErr error
		code, callErr = c.backend.CodeAt(ctx, addr, nil)
		return callErr
	})
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Call performs a read-only contract call and unpacks its outputs.
func (c *Client) Call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var out []byte
	err = c.do(ctx, "eth_call "+method, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, dex.Errorf("rpc", "eth_call "+method, dex.ErrProviderUnavailable, "empty response from %s", to.Hex())
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// SendContractTx builds, signs and submits one transaction calling to with
// data. It never resubmits.
func (c *Client) SendContractTx(ctx context.Context, signer Signer, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	from := signer.Address()
	if value == nil {
		value = big.NewInt(0)
	}

	var nonce uint64
	err := c.do(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var callErr error
		nonce, callErr = c.backend.PendingNonceAt(ctx, from)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := c.gasLimit(ctx, ethereum.CallMsg{From: from, To: &to, Data: data, Value: value})

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := signer.SignTx(tx, new(big.Int).SetUint64(c.chainID))
	if err != nil {
		return nil, err
	}

	err = c.do(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		return c.backend.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.log.Info().
		Str("tx", signedTx.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gasLimit).
		Msg("transaction submitted")
	return signedTx, nil
}

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if c.opts.GasPrice != nil {
		return new(big.Int).Set(c.opts.GasPrice), nil
	}
	var price *big.Int
	err := c.do(ctx, "eth_gasPrice", func(ctx context.Context) error {
		var callErr error
		price, callErr = c.backend.SuggestGasPrice(ctx)
		return callErr
	})
	return price, err
}

func (c *Client) gasLimit(ctx context.Context, msg ethereum.CallMsg) uint64 {
	if c.opts.GasLimit != nil {
		return *c.opts.GasLimit
	}
	var estimated uint64
	err := c.do(ctx, "eth_estimateGas", func(ctx context.Context) error {
		var callErr error
		estimated, callErr = c.backend.EstimateGas(ctx, msg)
		return callErr
	})
	if err != nil || estimated == 0 {
		return DefaultGasLimit
	}
	return estimated * gasBufferPercent / 100
}

// Receipt returns the receipt of txHash, or nil while it is pending.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var callErr error
		receipt, callErr = c.backend.TransactionReceipt(ctx, txHash)
		if errors.Is(callErr, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// WaitReceipt polls until txHash is mined or ctx ends.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.Receipt(ctx, txHash)
		if err != nil && !dex.IsProviderFailure(err) {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, c.classify("wait receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

// MustParseABI parses a JSON ABI definition and panics on malformed input.
// It is meant for package-level ABI constants.
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}
