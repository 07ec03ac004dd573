// Package dextest provides in-memory doubles for adapter and RPC tests.
package dextest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/types"
)

// FakeAdapter is a configurable venue implementing dex.Adapter. Every
// field may be changed before the adapter is shared between goroutines.
type FakeAdapter struct {
	VenueID   string
	VenueName string

	Ready       bool
	OutputRatio decimal.Decimal // amountOut = amountIn * OutputRatio
	PriceImpact float64
	FeeBps      uint32
	Price       decimal.Decimal
	Reserves    types.Liquidity

	// Pairs restricts IsPairSupported to the listed dex.PairKey values.
	// A nil map supports every valid pair.
	Pairs map[string]bool

	// Err, when set, fails every read operation.
	Err error
	// SwapErr, when set, is reported as the swap failure.
	SwapErr error

	Now func() time.Time

	mu    sync.Mutex
	calls map[string]int
	swaps []types.SwapRequest
}

// NewFakeAdapter returns a ready venue that keeps 98% of the input,
// reports 2% price impact and charges 30 bps.
func NewFakeAdapter(id, name string) *FakeAdapter {
	return &FakeAdapter{
		VenueID:     id,
		VenueName:   name,
		Ready:       true,
		OutputRatio: decimal.RequireFromString("0.98"),
		PriceImpact: 2.0,
		FeeBps:      30,
		Price:       decimal.NewFromInt(1000),
		Reserves: types.Liquidity{
			Token0Reserves:    "1000000",
			Token1Reserves:    "1000",
			TotalLiquidityUSD: 2000000,
		},
		Now:   time.Now,
		calls: make(map[string]int),
	}
}

var _ dex.Adapter = (*FakeAdapter)(nil)

func (f *FakeAdapter) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked.
func (f *FakeAdapter) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls counts every contract operation except ID and Name.
func (f *FakeAdapter) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Swaps returns the requests that reached submission.
func (f *FakeAdapter) Swaps() []types.SwapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SwapRequest(nil), f.swaps...)
}

func (f *FakeAdapter) ID() string   { return f.VenueID }
func (f *FakeAdapter) Name() string { return f.VenueName }

func (f *FakeAdapter) IsPairSupported(ctx context.Context, a, b types.Token) (bool, error) {
	f.record("IsPairSupported")
	if err := dex.ValidatePair(a, b); err != nil {
		return false, nil
	}
	if f.Err != nil {
		return false, f.Err
	}
	if f.Pairs == nil {
		return true, nil
	}
	return f.Pairs[dex.PairKey(a, b)], nil
}

func (f *FakeAdapter) GetTokenPrice(ctx context.Context, a, b types.Token) (decimal.Decimal, error) {
	f.record("GetTokenPrice")
	if err := dex.ValidatePair(a, b); err != nil {
		return decimal.Zero, dex.NewError(f.VenueID, "GetTokenPrice", dex.ErrValidation, err)
	}
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	if !f.Price.IsPositive() {
		return decimal.Zero, dex.Errorf(f.VenueID, "GetTokenPrice", dex.ErrQuoteUnavailable, "no price for %s/%s", a, b)
	}
	return f.Price, nil
}

func (f *FakeAdapter) GetExpectedOutput(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) (*types.Quote, error) {
	f.record("GetExpectedOutput")
	amount, err := dex.ParseAmount(amountIn)
	if err != nil {
		return nil, dex.NewError(f.VenueID, "GetExpectedOutput", dex.ErrValidation, err)
	}
	if err := dex.ValidatePair(tokenIn, tokenOut); err != nil {
		return nil, dex.NewError(f.VenueID, "GetExpectedOutput", dex.ErrValidation, err)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &types.Quote{
		AmountOut:   amount.Mul(f.OutputRatio).String(),
		PriceImpact: f.PriceImpact,
	}, nil
}

func (f *FakeAdapter) ExecuteSwap(ctx context.Context, req types.SwapRequest) (*types.SwapResult, error) {
	f.record("ExecuteSwap")
	if err := dex.ValidateSwapRequest(req); err != nil {
		return nil, dex.NewError(f.VenueID, "ExecuteSwap", dex.ErrValidation, err)
	}
	if err := dex.CheckDeadline(f.VenueID, req.Deadline, f.Now()); err != nil {
		return dex.SwapFailure(err), nil
	}
	if f.SwapErr != nil {
		return dex.SwapFailure(f.SwapErr), nil
	}

	amount, _ := dex.ParseAmount(req.AmountIn)
	out := amount.Mul(f.OutputRatio).String()
	if err := dex.CheckSlippage(f.VenueID, out, req.MinAmountOut); err != nil {
		return dex.SwapFailure(err), nil
	}

	f.mu.Lock()
	f.swaps = append(f.swaps, req)
	n := len(f.swaps)
	f.mu.Unlock()

	hash := common.BytesToHash(crypto.Keccak256([]byte(fmt.Sprintf("%s-%d", f.VenueID, n))))
	return types.SwapSucceeded(hash.Hex(), out), nil
}

func (f *FakeAdapter) GetLiquidity(ctx context.Context, a, b types.Token) (*types.Liquidity, error) {
	f.record("GetLiquidity")
	if err := dex.ValidatePair(a, b); err != nil {
		return nil, dex.NewError(f.VenueID, "GetLiquidity", dex.ErrValidation, err)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	liq := f.Reserves
	return &liq, nil
}

func (f *FakeAdapter) GetSwapFee(ctx context.Context, a, b types.Token) (uint32, error) {
	f.record("GetSwapFee")
	if f.Err != nil {
		return 0, f.Err
	}
	return f.FeeBps, nil
}

func (f *FakeAdapter) IsReady(ctx context.Context) bool {
	f.record("IsReady")
	return f.Ready
}
