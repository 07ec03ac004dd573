package uniswapv2_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"flashtrade/pkg/chain"
	"flashtrade/pkg/dex"
	"flashtrade/pkg/dex/dextest"
	"flashtrade/pkg/dex/uniswapv2"
	"flashtrade/pkg/types"
)

var (
	factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	router  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")

	weth = types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, ChainID: 1}
	usdc = types.Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, ChainID: 1}
	dai  = types.Token{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18, ChainID: 1}

	factoryABI = chain.MustParseABI(uniswapv2.FactoryABI)
	pairABI    = chain.MustParseABI(uniswapv2.PairABI)
	erc20ABI   = chain.MustParseABI(chain.ERC20ABI)
	routerABI  = chain.MustParseABI(uniswapv2.RouterABI)

	recipient = "0x00000000000000000000000000000000000000aa"
)

// pool is a pair with reserves given in whole token units.
type pool struct {
	a, b   types.Token
	ra, rb int64
}

func units(n int64, decimals int32) *big.Int {
	return dex.ToBaseUnits(decimal.NewFromInt(n), decimals)
}

// newBackend serves a factory knowing the given pools and a router.
func newBackend(pools ...pool) *dextest.FakeBackend {
	backend := dextest.NewFakeBackend(1)
	backend.SetCode(router)

	pairs := make(map[string]common.Address)
	for i, p := range pools {
		pairAddr := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		pairs[dex.PairKey(p.a, p.b)] = pairAddr

		r0, r1 := units(p.ra, p.a.Decimals), units(p.rb, p.b.Decimals)
		if bytes.Compare(common.HexToAddress(p.a.Address).Bytes(), common.HexToAddress(p.b.Address).Bytes()) > 0 {
			r0, r1 = r1, r0
		}
		backend.Handle(pairAddr, pairABI, "getReserves", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{r0, r1, uint32(1700000000)}, nil
		})
	}

	backend.Handle(factory, factoryABI, "getPair", func(args []interface{}) ([]interface{}, error) {
		x := types.Token{Address: args[0].(common.Address).Hex()}
		y := types.Token{Address: args[1].(common.Address).Hex()}
		return []interface{}{pairs[dex.PairKey(x, y)]}, nil
	})
	return backend
}

func venue() types.DEX {
	return types.DEX{
		ID:                "uniswap-v2",
		Name:              "Uniswap V2",
		Active:            true,
		SupportedChainIDs: []uint64{1},
		Protocol:          types.ProtocolUniswapV2,
		Deployments: map[uint64]types.Deployment{
			1: {Factory: factory.Hex(), Router: router.Hex()},
		},
		FeeBps: 30,
	}
}

func newAdapter(t *testing.T, d types.DEX, backend *dextest.FakeBackend, opts ...uniswapv2.Option) *uniswapv2.Adapter {
	t.Helper()
	client := chain.NewClient(backend, 1, chain.Options{}, zerolog.Nop())
	a, err := uniswapv2.New(d, 1, client, zerolog.Nop(), opts...)
	assert.NoError(t, err)
	return a
}

func TestNewRejectsBadConfig(t *testing.T) {
	client := chain.NewClient(dextest.NewFakeBackend(1), 1, chain.Options{}, zerolog.Nop())

	d := venue()
	_, err := uniswapv2.New(d, 137, client, zerolog.Nop())
	assert.Error(t, err)

	d.FeeBps = 10001
	_, err = uniswapv2.New(d, 1, client, zerolog.Nop())
	assert.Error(t, err)

	d = venue()
	d.Protocol = types.ProtocolOneClick
	_, err = uniswapv2.New(d, 1, client, zerolog.Nop())
	assert.Error(t, err)
}

func TestGetExpectedOutput(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, venue(), backend)

	q, err := a.GetExpectedOutput(context.Background(), weth, usdc, "1")
	assert.NoError(t, err)
	assert.Equal(t, q.AmountOut, "1992.013962")
	assert.True(t, q.PriceImpact > 0.39 && q.PriceImpact < 0.40)
	assert.Equal(t, len(q.Path), 0)
}

func TestPairSupportIsSymmetric(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, venue(), backend)
	ctx := context.Background()

	tests := []struct {
		name string
		x, y types.Token
		want bool
	}{
		{"pool exists", weth, usdc, true},
		{"no pool", dai, usdc, false},
		{"same token", weth, weth, false},
		{"other chain", weth, types.Token{Address: usdc.Address, ChainID: 137}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ab, err := a.IsPairSupported(ctx, tc.x, tc.y)
			assert.NoError(t, err)
			ba, err := a.IsPairSupported(ctx, tc.y, tc.x)
			assert.NoError(t, err)
			assert.Equal(t, ab, tc.want)
			assert.Equal(t, ba, ab)
		})
	}
}

func TestOutputRateNonIncreasing(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, venue(), backend)

	prevRate := decimal.Zero
	prevImpact := -1.0
	for i, amount := range []string{"0.01", "0.1", "1", "10", "100"} {
		q, err := a.GetExpectedOutput(context.Background(), weth, usdc, amount)
		assert.NoError(t, err)

		rate := decimal.RequireFromString(q.AmountOut).Div(decimal.RequireFromString(amount))
		if i > 0 {
			assert.True(t, rate.LessThanOrEqual(prevRate))
			assert.True(t, q.PriceImpact >= prevImpact)
		}
		prevRate, prevImpact = rate, q.PriceImpact
	}
}

func TestInvalidAmountMakesNoCalls(t *testing.T) {
	for _, amount := range []string{"0", "-1", "abc", "", "1e"} {
		t.Run(amount, func(t *testing.T) {
			backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
			a := newAdapter(t, venue(), backend)

			_, err := a.GetExpectedOutput(context.Background(), weth, usdc, amount)
			assert.True(t, errors.Is(err, dex.ErrValidation))
			assert.Equal(t, dex.KindOf(err), "ValidationError")
			assert.Equal(t, backend.Calls(), 0)
		})
	}
}

func TestSwapFee(t *testing.T) {
	d := venue()
	d.FeeTiers = map[string]uint32{dex.PairKey(usdc, dai): 5}
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000}, pool{usdc, dai, 1_000_000, 1_000_000})
	a := newAdapter(t, d, backend)
	ctx := context.Background()

	fee, err := a.GetSwapFee(ctx, weth, usdc)
	assert.NoError(t, err)
	assert.Equal(t, fee, uint32(30))

	fee, err = a.GetSwapFee(ctx, dai, usdc)
	assert.NoError(t, err)
	assert.Equal(t, fee, uint32(5))

	// A trade too small to move the pool still pays the fee.
	q, err := a.GetExpectedOutput(ctx, weth, usdc, "0.000001")
	assert.NoError(t, err)
	assert.True(t, q.PriceImpact >= 0.3)
}

func TestMultiHopThroughBaseToken(t *testing.T) {
	d := venue()
	d.BaseTokens = []string{weth.Address}
	backend := newBackend(pool{dai, weth, 2_000_000, 1000}, pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, d, backend)
	ctx := context.Background()

	q, err := a.GetExpectedOutput(ctx, dai, usdc, "100")
	assert.NoError(t, err)
	assert.Equal(t, len(q.Path), 3)
	assert.Equal(t, q.Path[1], common.HexToAddress(weth.Address).Hex())
	// Two 30 bps hops compound to just under 0.6%.
	assert.True(t, q.PriceImpact > 0.59)

	out := decimal.RequireFromString(q.AmountOut)
	assert.True(t, out.LessThan(decimal.NewFromInt(100)))
	assert.True(t, out.GreaterThan(decimal.NewFromInt(99)))

	ok, err := a.IsPairSupported(ctx, usdc, dai)
	assert.NoError(t, err)
	assert.True(t, ok)

	price, err := a.GetTokenPrice(ctx, dai, usdc)
	assert.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestGetTokenPrice(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, venue(), backend)
	ctx := context.Background()

	price, err := a.GetTokenPrice(ctx, weth, usdc)
	assert.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2000)))

	inverse, err := a.GetTokenPrice(ctx, usdc, weth)
	assert.NoError(t, err)
	assert.True(t, inverse.Equal(decimal.RequireFromString("0.0005")))

	_, err = a.GetTokenPrice(ctx, dai, usdc)
	assert.True(t, errors.Is(err, dex.ErrQuoteUnavailable))
}

func TestInsufficientLiquidity(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 10, 20_000})
	a := newAdapter(t, venue(), backend)
	ctx := context.Background()

	_, err := a.GetExpectedOutput(ctx, weth, usdc, "1000")
	assert.True(t, errors.Is(err, dex.ErrInsufficientLiquidity))

	_, err = a.GetExpectedOutput(ctx, dai, usdc, "1")
	assert.True(t, errors.Is(err, dex.ErrInsufficientLiquidity))
}

func TestGetLiquidity(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, venue(), backend)
	ctx := context.Background()

	pricedWETH := weth.WithPrice(decimal.NewFromInt(2000))
	pricedUSDC := usdc.WithPrice(decimal.NewFromInt(1))

	liq, err := a.GetLiquidity(ctx, pricedUSDC, pricedWETH)
	assert.NoError(t, err)
	assert.Equal(t, liq.Token0Reserves, "2000000")
	assert.Equal(t, liq.Token1Reserves, "1000")
	assert.Equal(t, liq.TotalLiquidityUSD, float64(4_000_000))

	liq, err = a.GetLiquidity(ctx, pricedWETH, usdc)
	assert.NoError(t, err)
	assert.Equal(t, liq.TotalLiquidityUSD, float64(4_000_000))

	liq, err = a.GetLiquidity(ctx, weth, usdc)
	assert.NoError(t, err)
	assert.Equal(t, liq.TotalLiquidityUSD, float64(0))

	_, err = a.GetLiquidity(ctx, dai, usdc)
	assert.True(t, errors.Is(err, dex.ErrQuoteUnavailable))
}

func TestProviderFailure(t *testing.T) {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	backend.Err = errors.New("dial tcp: connection refused")
	a := newAdapter(t, venue(), backend)

	_, err := a.IsPairSupported(context.Background(), weth, usdc)
	assert.True(t, errors.Is(err, dex.ErrProviderUnavailable))

	_, err = a.GetExpectedOutput(context.Background(), weth, usdc, "1")
	assert.Equal(t, dex.KindOf(err), "ProviderUnavailable")
}

func TestIsReady(t *testing.T) {
	backend := newBackend()
	a := newAdapter(t, venue(), backend)
	assert.True(t, a.IsReady(context.Background()))

	wrongChain := dextest.NewFakeBackend(5)
	wrongChain.SetCode(factory)
	wrongChain.SetCode(router)
	a = newAdapter(t, venue(), wrongChain)
	assert.False(t, a.IsReady(context.Background()))

	missingRouter := dextest.NewFakeBackend(1)
	missingRouter.SetCode(factory)
	a = newAdapter(t, venue(), missingRouter)
	assert.False(t, a.IsReady(context.Background()))
}

func swapBackend(allowance *big.Int) *dextest.FakeBackend {
	backend := newBackend(pool{weth, usdc, 1000, 2_000_000})
	backend.Handle(common.HexToAddress(weth.Address), erc20ABI, "allowance", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{allowance}, nil
	})
	return backend
}

func newSigner(t *testing.T) chain.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	assert.NoError(t, err)
	return chain.NewKeySignerFromKey(key)
}

func TestExecuteSwap(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	unlimited := new(big.Int).Lsh(big.NewInt(1), 255)

	tests := []struct {
		name      string
		allowance *big.Int
		req       types.SwapRequest
		wantOK    bool
		wantKind  string
	}{
		{
			name:      "submitted",
			allowance: unlimited,
			req:       types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1980", Recipient: recipient, Deadline: &future},
			wantOK:    true,
		},
		{
			name:      "deadline passed",
			allowance: unlimited,
			req:       types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient, Deadline: &past},
			wantKind:  "DeadlineExpired",
		},
		{
			name:      "deadline is now",
			allowance: unlimited,
			req:       types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient, Deadline: &now},
			wantKind:  "DeadlineExpired",
		},
		{
			name:      "minimum above simulation",
			allowance: unlimited,
			req:       types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "2000", Recipient: recipient},
			wantKind:  "SlippageExceeded",
		},
		{
			name:      "allowance too low",
			allowance: big.NewInt(1),
			req:       types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient},
			wantKind:  "ValidationError",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := swapBackend(tc.allowance)
			a := newAdapter(t, venue(), backend,
				uniswapv2.WithSigner(newSigner(t)),
				uniswapv2.WithClock(func() time.Time { return now }))

			res, err := a.ExecuteSwap(context.Background(), tc.req)
			assert.NoError(t, err)
			assert.NoError(t, res.Validate())
			assert.Equal(t, res.Success, tc.wantOK)
			assert.Equal(t, res.ErrorKind, tc.wantKind)

			if tc.wantOK {
				assert.Equal(t, len(backend.Sent()), 1)
				assert.Equal(t, res.AmountOut, "1992.013962")
				assert.Equal(t, *backend.Sent()[0].To(), router)
				assert.Equal(t, res.TransactionHash, backend.Sent()[0].Hash().Hex())
			} else {
				assert.Equal(t, len(backend.Sent()), 0)
				assert.Equal(t, res.TransactionHash, "")
			}
		})
	}
}

func TestExecuteSwapSubmitsMinimumRoundedUp(t *testing.T) {
	backend := swapBackend(new(big.Int).Lsh(big.NewInt(1), 255))
	a := newAdapter(t, venue(), backend, uniswapv2.WithSigner(newSigner(t)))

	res, err := a.ExecuteSwap(context.Background(), types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1990.0000009", Recipient: recipient,
	})
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, len(backend.Sent()), 1)

	data := backend.Sent()[0].Data()
	method := routerABI.Methods["swapExactTokensForTokens"]
	assert.DeepEqual(t, data[:4], method.ID)

	args, err := method.Inputs.Unpack(data[4:])
	assert.NoError(t, err)
	assert.Equal(t, args[0].(*big.Int).String(), units(1, weth.Decimals).String())
	assert.Equal(t, args[1].(*big.Int).String(), "1990000001")
	assert.Equal(t, len(args[2].([]common.Address)), 2)
	assert.Equal(t, args[3].(common.Address), common.HexToAddress(recipient))
}

func TestExecuteSwapSendFailureIsReported(t *testing.T) {
	backend := swapBackend(new(big.Int).Lsh(big.NewInt(1), 255))
	backend.SendErr = errors.New("connection reset by peer")
	a := newAdapter(t, venue(), backend, uniswapv2.WithSigner(newSigner(t)))

	res, err := a.ExecuteSwap(context.Background(), types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient,
	})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, res.ErrorKind, "ProviderUnavailable")
	assert.Equal(t, res.TransactionHash, "")
	assert.NoError(t, res.Validate())
	assert.Equal(t, len(backend.Sent()), 0)
}

func TestExecuteSwapSimulationFailureIsReported(t *testing.T) {
	backend := swapBackend(new(big.Int).Lsh(big.NewInt(1), 255))
	a := newAdapter(t, venue(), backend, uniswapv2.WithSigner(newSigner(t)))
	backend.Err = errors.New("dial tcp: connection refused")

	res, err := a.ExecuteSwap(context.Background(), types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient,
	})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, res.ErrorKind, "ProviderUnavailable")
	assert.NoError(t, res.Validate())
}

func TestConcurrentQuotes(t *testing.T) {
	d := venue()
	d.BaseTokens = []string{weth.Address}
	backend := newBackend(pool{dai, weth, 2_000_000, 1000}, pool{weth, usdc, 1000, 2_000_000})
	a := newAdapter(t, d, backend)

	want, err := a.GetExpectedOutput(context.Background(), dai, usdc, "100")
	assert.NoError(t, err)

	const workers = 32
	outs := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := a.GetExpectedOutput(context.Background(), dai, usdc, "100")
			errs[i] = err
			if err == nil {
				outs[i] = q.AmountOut
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, outs[i], want.AmountOut)
	}
}

func TestExecuteSwapRejectsMalformedRequest(t *testing.T) {
	backend := swapBackend(big.NewInt(0))
	a := newAdapter(t, venue(), backend, uniswapv2.WithSigner(newSigner(t)))

	tests := []struct {
		name string
		req  types.SwapRequest
	}{
		{"zero amount", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "0", MinAmountOut: "1900", Recipient: recipient}},
		{"same token", types.SwapRequest{TokenIn: weth, TokenOut: weth, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient}},
		{"bad recipient", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: "bob"}},
		{"zero recipient", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: common.Address{}.Hex()}},
		{"negative minimum", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "-1", Recipient: recipient}},
		{"missing minimum", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", Recipient: recipient}},
		{"zero minimum", types.SwapRequest{TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "0", Recipient: recipient}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := a.ExecuteSwap(context.Background(), tc.req)
			assert.True(t, errors.Is(err, dex.ErrValidation))
			assert.True(t, res == nil)
		})
	}
	assert.Equal(t, backend.Calls(), 0)
}

func TestExecuteSwapReverted(t *testing.T) {
	backend := swapBackend(new(big.Int).Lsh(big.NewInt(1), 255))
	backend.ReceiptStatus = 0
	a := newAdapter(t, venue(), backend,
		uniswapv2.WithSigner(newSigner(t)),
		uniswapv2.WithReceiptWait(time.Second))

	res, err := a.ExecuteSwap(context.Background(), types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient,
	})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, res.ErrorKind, "Reverted")
	assert.True(t, res.TransactionHash != "")
	assert.True(t, res.Error != "")
	assert.Equal(t, len(backend.Sent()), 1)
}

func TestExecuteSwapWithoutSigner(t *testing.T) {
	backend := swapBackend(big.NewInt(0))
	a := newAdapter(t, venue(), backend)

	res, err := a.ExecuteSwap(context.Background(), types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "1900", Recipient: recipient,
	})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, res.ErrorKind, "ProviderUnavailable")
	assert.Equal(t, len(backend.Sent()), 0)
}

func TestApprove(t *testing.T) {
	backend := newBackend()
	a := newAdapter(t, venue(), backend, uniswapv2.WithSigner(newSigner(t)))

	hash, err := a.Approve(context.Background(), weth, "5")
	assert.NoError(t, err)
	assert.Equal(t, len(backend.Sent()), 1)
	assert.Equal(t, backend.Sent()[0].Hash().Hex(), hash)
	assert.Equal(t, *backend.Sent()[0].To(), common.HexToAddress(weth.Address))

	_, err = a.Approve(context.Background(), weth, "0")
	assert.True(t, errors.Is(err, dex.ErrValidation))
}
