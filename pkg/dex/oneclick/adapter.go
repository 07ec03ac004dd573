// Package oneclick implements dex.Adapter on top of the NEAR Intents 1Click
// service. Swaps are intents: the input token is transferred to a deposit
// address issued by a live quote and market makers settle the output.
package oneclick

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flashtrade/pkg/chain"
	"flashtrade/pkg/dex"
	"flashtrade/pkg/types"
)

const (
	venueID         = "oneclick"
	defaultTokenTTL = 5 * time.Minute
)

// quoteAddress receives nothing; dry quotes only need a well-formed recipient.
var quoteAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Blockchains maps EVM chain ids to 1Click blockchain tags.
var Blockchains = map[uint64]string{
	1:     "eth",
	10:    "op",
	56:    "bsc",
	137:   "pol",
	8453:  "base",
	42161: "arb",
}

// Adapter routes swaps through 1Click intents.
type Adapter struct {
	dex        types.DEX
	chainID    uint64
	blockchain string

	api    API
	client *chain.Client
	signer chain.Signer
	log    zerolog.Logger
	now    func() time.Time

	tokenTTL time.Duration

	mu       sync.Mutex
	assets   map[string]Asset // by lower-cased contract address
	loadedAt time.Time
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithDepositor lets ExecuteSwap fund deposit addresses from signer's
// account through client.
func WithDepositor(client *chain.Client, signer chain.Signer) Option {
	return func(a *Adapter) {
		a.client = client
		a.signer = signer
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithTokenTTL sets how long the supported token list is reused.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Adapter) { a.tokenTTL = ttl }
}

// New builds an adapter for chainID.
func New(d types.DEX, chainID uint64, api API, log zerolog.Logger, opts ...Option) (*Adapter, error) {
	if d.Protocol != "" && d.Protocol != types.ProtocolOneClick {
		return nil, fmt.Errorf("venue %s speaks %s, not %s", d.ID, d.Protocol, types.ProtocolOneClick)
	}
	blockchain, ok := Blockchains[chainID]
	if !ok {
		return nil, fmt.Errorf("1click does not serve chain %d", chainID)
	}
	if d.FeeBps > 10000 {
		return nil, fmt.Errorf("venue %s fee %d bps exceeds 10000", d.ID, d.FeeBps)
	}
	if d.ID == "" {
		d.ID = venueID
	}

	a := &Adapter{
		dex:        d,
		chainID:    chainID,
		blockchain: blockchain,
		api:        api,
		log:        log.With().Str("component", "adapter").Str("venue", d.ID).Logger(),
		now:        time.Now,
		tokenTTL:   defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

var _ dex.Adapter = (*Adapter)(nil)

func (a *Adapter) ID() string   { return a.dex.ID }
func (a *Adapter) Name() string { return a.dex.Name }

// supported returns the assets of the adapter's blockchain, refreshing the
// list once it is older than the TTL.
func (a *Adapter) supported(ctx context.Context) (map[string]Asset, error) {
	a.mu.Lock()
	if a.assets != nil && a.now().Sub(a.loadedAt) < a.tokenTTL {
		assets := a.assets
		a.mu.Unlock()
		return assets, nil
	}
	a.mu.Unlock()

	list, err := a.api.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	assets := make(map[string]Asset)
	for _, asset := range list {
		if asset.Blockchain != a.blockchain || asset.ContractAddress == "" {
			continue
		}
		assets[strings.ToLower(asset.ContractAddress)] = asset
	}

	a.mu.Lock()
	a.assets = assets
	a.loadedAt = a.now()
	a.mu.Unlock()
	return assets, nil
}

func (a *Adapter) resolve(ctx context.Context, op string, x, y types.Token) (Asset, Asset, error) {
	assets, err := a.supported(ctx)
	if err != nil {
		return Asset{}, Asset{}, err
	}
	ax, okx := assets[strings.ToLower(x.Address)]
	ay, oky := assets[strings.ToLower(y.Address)]
	if !okx || !oky {
		return Asset{}, Asset{}, dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "1click does not route %s/%s on %s", x, y, a.blockchain)
	}
	return ax, ay, nil
}

func (a *Adapter) checkPair(x, y types.Token) error {
	if err := dex.ValidatePair(x, y); err != nil {
		return err
	}
	if x.ChainID != a.chainID {
		return fmt.Errorf("%w: %s is on chain %d, venue is on %d", dex.ErrValidation, x, x.ChainID, a.chainID)
	}
	return nil
}

func (a *Adapter) IsPairSupported(ctx context.Context, x, y types.Token) (bool, error) {
	if err := a.checkPair(x, y); err != nil {
		return false, nil
	}
	assets, err := a.supported(ctx)
	if err != nil {
		return false, err
	}
	_, okx := assets[strings.ToLower(x.Address)]
	_, oky := assets[strings.ToLower(y.Address)]
	return okx && oky, nil
}

// GetTokenPrice quotes one unit of x and reads the rate off the answer.
func (a *Adapter) GetTokenPrice(ctx context.Context, x, y types.Token) (decimal.Decimal, error) {
	const op = "GetTokenPrice"
	if err := a.checkPair(x, y); err != nil {
		return decimal.Zero, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	ax, ay, err := a.resolve(ctx, op, x, y)
	if err != nil {
		return decimal.Zero, err
	}
	q, err := a.quote(ctx, ax, ay, decimal.NewFromInt(1), quoteAddress.Hex(), dex.EffectiveDeadline(nil, a.now()), true)
	if err != nil {
		return decimal.Zero, err
	}

	in, errIn := decimal.NewFromString(q.AmountIn)
	out, errOut := decimal.NewFromString(q.AmountOut)
	if errIn != nil || errOut != nil || !in.IsPositive() || !out.IsPositive() {
		return decimal.Zero, dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "unusable quote %s -> %s", q.AmountIn, q.AmountOut)
	}
	return out.DivRound(in, 18), nil
}

func (a *Adapter) GetExpectedOutput(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) (*types.Quote, error) {
	const op = "GetExpectedOutput"
	amount, err := dex.ParseAmount(amountIn)
	if err != nil {
		return nil, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	if err := a.checkPair(tokenIn, tokenOut); err != nil {
		return nil, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	ain, aout, err := a.resolve(ctx, op, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	q, err := a.quote(ctx, ain, aout, amount, quoteAddress.Hex(), dex.EffectiveDeadline(nil, a.now()), true)
	if err != nil {
		return nil, err
	}
	out, err := a.amountOut(op, q)
	if err != nil {
		return nil, err
	}
	return &types.Quote{
		AmountOut:   out.String(),
		PriceImpact: valueImpact(tokenIn, amount, tokenOut, out),
	}, nil
}

func (a *Adapter) quote(ctx context.Context, in, out Asset, amount decimal.Decimal, recipient string, deadline time.Time, dry bool) (*QuoteResult, error) {
	return a.api.Quote(ctx, QuoteRequest{
		OriginAsset:      in.AssetID,
		DestinationAsset: out.AssetID,
		Amount:           dex.ToBaseUnits(amount, in.Decimals).String(),
		Recipient:        recipient,
		Deadline:         deadline,
		Dry:              dry,
	})
}

func (a *Adapter) amountOut(op string, q *QuoteResult) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(q.AmountOut)
	if err != nil {
		return decimal.Zero, dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "unparseable output %q", q.AmountOut)
	}
	if !out.IsPositive() {
		return decimal.Zero, dex.Errorf(a.dex.ID, op, dex.ErrInsufficientLiquidity, "quote returns no output")
	}
	return out, nil
}

// valueImpact compares the USD value in and out when both prices are known.
func valueImpact(in types.Token, amountIn decimal.Decimal, out types.Token, amountOut decimal.Decimal) float64 {
	if in.Price == nil || out.Price == nil {
		return 0
	}
	valueIn := amountIn.Mul(*in.Price)
	if !valueIn.IsPositive() {
		return 0
	}
	valueOut := amountOut.Mul(*out.Price)
	impact, _ := decimal.NewFromInt(1).Sub(valueOut.DivRound(valueIn, 18)).Mul(decimal.NewFromInt(100)).Float64()
	if impact < 0 {
		return 0
	}
	return impact
}

// ExecuteSwap requests a live quote, checks it against the caller's minimum
// and funds the deposit address with one ERC20 transfer.
func (a *Adapter) ExecuteSwap(ctx context.Context, req types.SwapRequest) (*types.SwapResult, error) {
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
	if a.client == nil || a.signer == nil {
		return dex.SwapFailure(dex.Errorf(a.dex.ID, op, dex.ErrProviderUnavailable, "no depositor configured")), nil
	}

	ain, aout, err := a.resolve(ctx, op, req.TokenIn, req.TokenOut)
	if err != nil {
		return dex.SwapFailure(err), nil
	}

	amount, _ := dex.ParseAmount(req.AmountIn)
	q, err := a.quote(ctx, ain, aout, amount, req.Recipient, dex.EffectiveDeadline(req.Deadline, now), false)
	if err != nil {
		return dex.SwapFailure(err), nil
	}
	out, err := a.amountOut(op, q)
	if err != nil {
		return dex.SwapFailure(err), nil
	}
	if err := dex.CheckSlippage(a.dex.ID, out.String(), req.MinAmountOut); err != nil {
		return dex.SwapFailure(err), nil
	}
	if !common.IsHexAddress(q.DepositAddress) {
		return dex.SwapFailure(dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "quote carries no EVM deposit address")), nil
	}

	tx, err := a.client.Transfer(ctx, a.signer, common.HexToAddress(req.TokenIn.Address),
		common.HexToAddress(q.DepositAddress), dex.ToBaseUnits(amount, req.TokenIn.Decimals))
	if err != nil {
		return dex.SwapFailure(err), nil
	}
	hash := tx.Hash().Hex()

	if err := a.api.SubmitDeposit(ctx, q.DepositAddress, hash); err != nil {
		// The service also detects the deposit on chain.
		a.log.Warn().Err(err).Str("tx", hash).Msg("failed to submit deposit transaction")
	}

	a.log.Info().
		Str("tx", hash).
		Str("deposit_address", q.DepositAddress).
		Str("amount_in", req.AmountIn).
		Str("expected_out", out.String()).
		Dur("eta", q.TimeEstimate).
		Msg("intent funded")
	return types.SwapSucceeded(hash, out.String()), nil
}

// GetLiquidity is unavailable: intents expose no pool reserves.
func (a *Adapter) GetLiquidity(ctx context.Context, x, y types.Token) (*types.Liquidity, error) {
	if err := a.checkPair(x, y); err != nil {
		return nil, dex.NewError(a.dex.ID, "GetLiquidity", dex.ErrValidation, err)
	}
	return nil, dex.Errorf(a.dex.ID, "GetLiquidity", dex.ErrQuoteUnavailable, "1click exposes no reserves")
}

func (a *Adapter) GetSwapFee(ctx context.Context, x, y types.Token) (uint32, error) {
	if err := a.checkPair(x, y); err != nil {
		return 0, dex.NewError(a.dex.ID, "GetSwapFee", dex.ErrValidation, err)
	}
	return a.dex.FeeBps, nil
}

// IsReady reports whether the token list can be fetched.
func (a *Adapter) IsReady(ctx context.Context) bool {
	if _, err := a.supported(ctx); err != nil {
		a.log.Warn().Err(err).Msg("1click token list unavailable")
		return false
	}
	return true
}

// Status returns the execution status of an intent.
func (a *Adapter) Status(ctx context.Context, depositAddress string) (*ExecutionStatus, error) {
	if depositAddress == "" {
		return nil, dex.Errorf(a.dex.ID, "Status", dex.ErrValidation, "deposit address is required")
	}
	return a.api.Status(ctx, depositAddress)
}

// WaitStatus polls Status until the intent reaches a terminal state or ctx
// ends.
func (a *Adapter) WaitStatus(ctx context.Context, depositAddress string, interval time.Duration) (*ExecutionStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := a.Status(ctx, depositAddress)
		if err == nil && status.Terminal() {
			return status, nil
		}
		if err != nil && !dex.IsProviderFailure(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			if status != nil {
				return status, ctx.Err()
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
