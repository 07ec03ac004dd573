package metrics

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/zeebo/assert"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/dex/dextest"
	"flashtrade/pkg/types"
)

var (
	weth = types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, ChainID: 1}
	usdc = types.Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, ChainID: 1}
)

func TestInstrumentCountsOutcomes(t *testing.T) {
	fake := dextest.NewFakeAdapter("metrics-venue", "Metrics Venue")
	a := Instrument(fake)
	ctx := context.Background()

	_, err := a.GetExpectedOutput(ctx, weth, usdc, "1")
	assert.NoError(t, err)
	_, err = a.GetExpectedOutput(ctx, weth, usdc, "0")
	assert.True(t, errors.Is(err, dex.ErrValidation))

	assert.Equal(t, testutil.ToFloat64(AdapterCalls.WithLabelValues("metrics-venue", "GetExpectedOutput", "ok")), float64(1))
	assert.Equal(t, testutil.ToFloat64(AdapterCalls.WithLabelValues("metrics-venue", "GetExpectedOutput", "ValidationError")), float64(1))
	assert.Equal(t, fake.Calls("GetExpectedOutput"), 2)

	assert.True(t, a.IsReady(ctx))
	assert.Equal(t, testutil.ToFloat64(VenueReady.WithLabelValues("metrics-venue")), float64(1))

	res, err := a.ExecuteSwap(ctx, types.SwapRequest{
		TokenIn: weth, TokenOut: usdc, AmountIn: "1", MinAmountOut: "5",
		Recipient: "0x00000000000000000000000000000000000000aa",
	})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, testutil.ToFloat64(SwapsTotal.WithLabelValues("metrics-venue", "SlippageExceeded")), float64(1))

	assert.True(t, Instrument(a) == a)
}

func TestServeRegistersMetrics(t *testing.T) {
	srv, err := Serve("127.0.0.1:0", zerolog.Nop())
	assert.NoError(t, err)
	defer srv.Close()

	AdapterCalls.WithLabelValues("serve-venue", "IsReady", "ok").Inc()

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	mfs, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "flashtrade_adapter_calls_total" {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestServeReportsBindFailure(t *testing.T) {
	srv, err := Serve("127.0.0.1:0", zerolog.Nop())
	assert.NoError(t, err)
	defer srv.Close()

	_, err = Serve(srv.Addr, zerolog.Nop())
	assert.Error(t, err)
}
