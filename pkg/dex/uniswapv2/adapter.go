// Package uniswapv2 implements dex.Adapter for constant-product venues that
// expose the Uniswap V2 factory, pair and router contracts (Uniswap V2,
// SushiSwap and their forks).
package uniswapv2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
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
	DefaultMaxPriceImpact = 50.0 // percent
	defaultReceiptPoll    = 2 * time.Second
)

// Adapter quotes and swaps on one Uniswap V2 deployment.
type Adapter struct {
	dex     types.DEX
	chainID uint64
	factory common.Address
	router  common.Address
	bases   []common.Address

	client *chain.Client
	signer chain.Signer
	log    zerolog.Logger
	now    func() time.Time

	receiptTimeout time.Duration // 0 disables waiting for the receipt

	mu    sync.RWMutex
	pairs map[string]common.Address
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithSigner enables ExecuteSwap and Approve.
func WithSigner(s chain.Signer) Option {
	return func(a *Adapter) { a.signer = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithReceiptWait makes ExecuteSwap wait up to timeout for the receipt so a
// reverted transaction is reported as a failure.
func WithReceiptWait(timeout time.Duration) Option {
	return func(a *Adapter) { a.receiptTimeout = timeout }
}

// New builds an adapter for the venue's deployment on chainID.
func New(d types.DEX, chainID uint64, client *chain.Client, log zerolog.Logger, opts ...Option) (*Adapter, error) {
	if d.Protocol != "" && d.Protocol != types.ProtocolUniswapV2 {
		return nil, fmt.Errorf("venue %s speaks %s, not %s", d.ID, d.Protocol, types.ProtocolUniswapV2)
	}
	dep, ok := d.Deployment(chainID)
	if !ok {
		return nil, fmt.Errorf("venue %s has no deployment on chain %d", d.ID, chainID)
	}
	if !common.IsHexAddress(dep.Factory) || !common.IsHexAddress(dep.Router) {
		return nil, fmt.Errorf("venue %s has invalid contract addresses on chain %d", d.ID, chainID)
	}
	if d.FeeBps > feeDenominator {
		return nil, fmt.Errorf("venue %s fee %d bps exceeds %d", d.ID, d.FeeBps, feeDenominator)
	}
	for key, bps := range d.FeeTiers {
		if bps > feeDenominator {
			return nil, fmt.Errorf("venue %s fee tier %s of %d bps exceeds %d", d.ID, key, bps, feeDenominator)
		}
	}
	if d.MaxPriceImpact <= 0 {
		d.MaxPriceImpact = DefaultMaxPriceImpact
	}

	a := &Adapter{
		dex:     d,
		chainID: chainID,
		factory: common.HexToAddress(dep.Factory),
		router:  common.HexToAddress(dep.Router),
		client:  client,
		log:     log.With().Str("component", "adapter").Str("venue", d.ID).Logger(),
		now:     time.Now,
		pairs:   make(map[string]common.Address),
	}
	for _, base := range d.BaseTokens {
		if common.IsHexAddress(base) {
			a.bases = append(a.bases, common.HexToAddress(base))
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

var _ dex.Adapter = (*Adapter)(nil)

func (a *Adapter) ID() string   { return a.dex.ID }
func (a *Adapter) Name() string { return a.dex.Name }

// RouterAddress is the contract swaps are sent to and approvals granted to.
func (a *Adapter) RouterAddress() common.Address { return a.router }

func (a *Adapter) IsPairSupported(ctx context.Context, x, y types.Token) (bool, error) {
	if err := a.checkPair(x, y); err != nil {
		return false, nil
	}
	for _, path := range a.candidatePaths(address(x), address(y)) {
		legs, err := a.pathReserves(ctx, path)
		if err != nil {
			return false, a.wrap("IsPairSupported", err)
		}
		if legs != nil {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) GetTokenPrice(ctx context.Context, x, y types.Token) (decimal.Decimal, error) {
	const op = "GetTokenPrice"
	if err := a.checkPair(x, y); err != nil {
		return decimal.Zero, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	for _, path := range a.candidatePaths(address(x), address(y)) {
		legs, err := a.pathReserves(ctx, path)
		if err != nil {
			return decimal.Zero, a.wrap(op, err)
		}
		if legs == nil || !liquid(legs) {
			continue
		}
		price := midPrice(legs, x.Decimals, y.Decimals)
		if price.IsPositive() {
			return price, nil
		}
	}
	return decimal.Zero, dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "no liquidity for %s/%s", x, y)
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
	sim, err := a.simulate(ctx, op, tokenIn, tokenOut, dex.ToBaseUnits(amount, tokenIn.Decimals))
	if err != nil {
		return nil, err
	}
	return sim.quote(tokenOut), nil
}

// simulation is the best route found for one input amount.
type simulation struct {
	path   []common.Address
	out    *big.Int
	impact float64
	feeBps uint32
}

func (s *simulation) quote(tokenOut types.Token) *types.Quote {
	q := &types.Quote{
		AmountOut:   dex.FromBaseUnits(s.out, tokenOut.Decimals),
		PriceImpact: s.impact,
	}
	if len(s.path) > 2 {
		for _, p := range s.path {
			q.Path = append(q.Path, p.Hex())
		}
	}
	return q
}

// simulate picks the candidate path with the greatest output.
func (a *Adapter) simulate(ctx context.Context, op string, tokenIn, tokenOut types.Token, amountIn *big.Int) (*simulation, error) {
	if amountIn.Sign() <= 0 {
		return nil, dex.Errorf(a.dex.ID, op, dex.ErrValidation, "amount below the smallest unit of %s", tokenIn)
	}

	var best *simulation
	for _, path := range a.candidatePaths(address(tokenIn), address(tokenOut)) {
		legs, err := a.pathReserves(ctx, path)
		if err != nil {
			return nil, a.wrap(op, err)
		}
		if legs == nil || !liquid(legs) {
			continue
		}

		sim := &simulation{path: path}
		in := amountIn
		impacts := make([]float64, 0, len(legs))
		for i, leg := range legs {
			fee := a.fee(path[i], path[i+1])
			out := amountOut(in, leg[0], leg[1], fee)
			impacts = append(impacts, priceImpact(in, out, leg[0], leg[1]))
			sim.feeBps += fee
			in = out
		}
		sim.out = in
		sim.impact = compoundImpact(impacts)

		if best == nil || sim.out.Cmp(best.out) > 0 {
			best = sim
		}
	}

	if best == nil {
		return nil, dex.Errorf(a.dex.ID, op, dex.ErrInsufficientLiquidity, "no pool can fill %s -> %s", tokenIn, tokenOut)
	}
	if best.out.Sign() == 0 {
		return nil, dex.Errorf(a.dex.ID, op, dex.ErrInsufficientLiquidity, "output rounds to zero for %s -> %s", tokenIn, tokenOut)
	}
	if best.impact > a.dex.MaxPriceImpact {
		return nil, dex.Errorf(a.dex.ID, op, dex.ErrInsufficientLiquidity,
			"price impact %.2f%% exceeds %.2f%%", best.impact, a.dex.MaxPriceImpact)
	}
	return best, nil
}

func (a *Adapter) GetLiquidity(ctx context.Context, x, y types.Token) (*types.Liquidity, error) {
	const op = "GetLiquidity"
	if err := a.checkPair(x, y); err != nil {
		return nil, dex.NewError(a.dex.ID, op, dex.ErrValidation, err)
	}
	rx, ry, exists, err := a.reserves(ctx, address(x), address(y))
	if err != nil {
		return nil, a.wrap(op, err)
	}
	if !exists {
		return nil, dex.Errorf(a.dex.ID, op, dex.ErrQuoteUnavailable, "no pool for %s/%s", x, y)
	}

	amountX := decimal.NewFromBigInt(rx, -x.Decimals)
	amountY := decimal.NewFromBigInt(ry, -y.Decimals)
	return &types.Liquidity{
		Token0Reserves:    amountX.String(),
		Token1Reserves:    amountY.String(),
		TotalLiquidityUSD: totalUSD(x, amountX, y, amountY),
	}, nil
}

// totalUSD values the pool from known token prices. A pool holds equal
// value on both sides, so one known side is doubled.
func totalUSD(x types.Token, amountX decimal.Decimal, y types.Token, amountY decimal.Decimal) float64 {
	var total decimal.Decimal
	switch {
	case x.Price != nil && y.Price != nil:
		total = amountX.Mul(*x.Price).Add(amountY.Mul(*y.Price))
	case x.Price != nil:
		total = amountX.Mul(*x.Price).Mul(decimal.NewFromInt(2))
	case y.Price != nil:
		total = amountY.Mul(*y.Price).Mul(decimal.NewFromInt(2))
	default:
		return 0
	}
	f, _ := total.Float64()
	return f
}

func (a *Adapter) GetSwapFee(ctx context.Context, x, y types.Token) (uint32, error) {
	if err := a.checkPair(x, y); err != nil {
		return 0, dex.NewError(a.dex.ID, "GetSwapFee", dex.ErrValidation, err)
	}
	return a.fee(address(x), address(y)), nil
}

func (a *Adapter) fee(x, y common.Address) uint32 {
	if bps, ok := a.dex.FeeTiers[pairKey(x, y)]; ok {
		return bps
	}
	return a.dex.FeeBps
}

// IsReady checks the provider serves the expected chain and both contracts
// are deployed.
func (a *Adapter) IsReady(ctx context.Context) bool {
	id, err := a.client.RemoteChainID(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("chain id check failed")
		return false
	}
	if id != a.chainID {
		a.log.Warn().Uint64("remote", id).Uint64("expected", a.chainID).Msg("provider serves another chain")
		return false
	}
	for _, addr := range []common.Address{a.factory, a.router} {
		ok, err := a.client.HasCode(ctx, addr)
		if err != nil || !ok {
			a.log.Warn().Err(err).Str("contract", addr.Hex()).Msg("contract not deployed")
			return false
		}
	}
	return true
}

func (a *Adapter) checkPair(x, y types.Token) error {
	if err := dex.ValidatePair(x, y); err != nil {
		return err
	}
	if x.ChainID != a.chainID {
		return fmt.Errorf("%w: %s is on chain %d, venue is on %d", dex.ErrValidation, x, x.ChainID, a.chainID)
	}
	if !common.IsHexAddress(x.Address) || !common.IsHexAddress(y.Address) {
		return fmt.Errorf("%w: token addresses must be hex", dex.ErrValidation)
	}
	return nil
}

// wrap tags a failure from the RPC boundary with the adapter operation.
func (a *Adapter) wrap(op string, err error) error {
	if errors.Is(err, dex.ErrProviderTimeout) {
		return dex.NewError(a.dex.ID, op, dex.ErrProviderTimeout, err)
	}
	return dex.NewError(a.dex.ID, op, dex.ErrProviderUnavailable, err)
}

// candidatePaths lists the direct path followed by one path per base token.
func (a *Adapter) candidatePaths(in, out common.Address) [][]common.Address {
	paths := [][]common.Address{{in, out}}
	for _, base := range a.bases {
		if base == in || base == out {
			continue
		}
		paths = append(paths, []common.Address{in, base, out})
	}
	return paths
}

// pathReserves returns (reserveIn, reserveOut) per leg, or nil when a pool
// along the path does not exist.
func (a *Adapter) pathReserves(ctx context.Context, path []common.Address) ([][2]*big.Int, error) {
	legs := make([][2]*big.Int, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		rIn, rOut, exists, err := a.reserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		legs = append(legs, [2]*big.Int{rIn, rOut})
	}
	return legs, nil
}

func liquid(legs [][2]*big.Int) bool {
	for _, leg := range legs {
		if leg[0].Sign() <= 0 || leg[1].Sign() <= 0 {
			return false
		}
	}
	return true
}

// reserves returns the pool reserves ordered as (in, out).
func (a *Adapter) reserves(ctx context.Context, in, out common.Address) (*big.Int, *big.Int, bool, error) {
	pair, err := a.pairAddress(ctx, in, out)
	if err != nil {
		return nil, nil, false, err
	}
	if pair == (common.Address{}) {
		return nil, nil, false, nil
	}

	values, err := a.client.Call(ctx, pairABI, pair, "getReserves")
	if err != nil {
		return nil, nil, false, err
	}
	if len(values) < 2 {
		return nil, nil, false, fmt.Errorf("getReserves returned %d values", len(values))
	}
	r0, ok0 := values[0].(*big.Int)
	r1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, false, fmt.Errorf("unexpected getReserves output %T, %T", values[0], values[1])
	}

	// Pairs store reserves sorted by token address.
	if bytes.Compare(in.Bytes(), out.Bytes()) < 0 {
		return r0, r1, true, nil
	}
	return r1, r0, true, nil
}

// pairAddress resolves the pool of a pair through the factory. Existing
// pools are cached since a pair address never changes once created.
func (a *Adapter) pairAddress(ctx context.Context, x, y common.Address) (common.Address, error) {
	key := pairKey(x, y)

	a.mu.RLock()
	pair, ok := a.pairs[key]
	a.mu.RUnlock()
	if ok {
		return pair, nil
	}

	values, err := a.client.Call(ctx, factoryABI, a.factory, "getPair", x, y)
	if err != nil {
		return common.Address{}, err
	}
	pair, ok = values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getPair output %T", values[0])
	}
	if pair != (common.Address{}) {
		a.mu.Lock()
		a.pairs[key] = pair
		a.mu.Unlock()
	}
	return pair, nil
}

func address(t types.Token) common.Address {
	return common.HexToAddress(t.Address)
}

func pairKey(x, y common.Address) string {
	return dex.PairKey(types.Token{Address: x.Hex()}, types.Token{Address: y.Hex()})
}
