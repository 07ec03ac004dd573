// Package metrics exposes Prometheus instrumentation for venue adapters.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/types"
)

var (
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flashtrade_adapter_calls_total", Help: "Adapter operations by outcome kind"},
		[]string{"venue", "op", "outcome"},
	)
	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flashtrade_adapter_call_duration_seconds",
			Help:    "Adapter operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue", "op"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "flashtrade_swaps_total", Help: "Swaps submitted or rejected"},
		[]string{"venue", "result"},
	)
	VenueReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "flashtrade_venue_ready", Help: "1 when the venue passed its last readiness check"},
		[]string{"venue"},
	)
)

func init() {
	prometheus.MustRegister(AdapterCalls, AdapterLatency, SwapsTotal, VenueReady)
}

// Serve binds addr and exposes /metrics in the background. Bind failures
// are returned; later serve errors are logged.
func Serve(addr string, log zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server stopped")
		}
	}()
	return srv, nil
}

// Instrument wraps an adapter so every operation is counted and timed.
func Instrument(a dex.Adapter) dex.Adapter {
	if _, ok := a.(*instrumented); ok {
		return a
	}
	return &instrumented{next: a}
}

type instrumented struct {
	next dex.Adapter
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := dex.KindOf(err); kind != "" {
		return kind
	}
	return "error"
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	venue := i.next.ID()
	AdapterLatency.WithLabelValues(venue, op).Observe(time.Since(start).Seconds())
	AdapterCalls.WithLabelValues(venue, op, outcome(err)).Inc()
}

func (i *instrumented) ID() string   { return i.next.ID() }
func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) IsPairSupported(ctx context.Context, a, b types.Token) (bool, error) {
	start := time.Now()
	ok, err := i.next.IsPairSupported(ctx, a, b)
	i.observe("IsPairSupported", start, err)
	return ok, err
}

func (i *instrumented) GetTokenPrice(ctx context.Context, a, b types.Token) (decimal.Decimal, error) {
	start := time.Now()
	p, err := i.next.GetTokenPrice(ctx, a, b)
	i.observe("GetTokenPrice", start, err)
	return p, err
}

func (i *instrumented) GetExpectedOutput(ctx context.Context, in, out types.Token, amountIn string) (*types.Quote, error) {
	start := time.Now()
	q, err := i.next.GetExpectedOutput(ctx, in, out, amountIn)
	i.observe("GetExpectedOutput", start, err)
	return q, err
}

func (i *instrumented) ExecuteSwap(ctx context.Context, req types.SwapRequest) (*types.SwapResult, error) {
	start := time.Now()
	res, err := i.next.ExecuteSwap(ctx, req)
	i.observe("ExecuteSwap", start, err)

	switch {
	case err != nil:
		SwapsTotal.WithLabelValues(i.next.ID(), outcome(err)).Inc()
	case res.Success:
		SwapsTotal.WithLabelValues(i.next.ID(), "submitted").Inc()
	default:
		SwapsTotal.WithLabelValues(i.next.ID(), res.ErrorKind).Inc()
	}
	return res, err
}

func (i *instrumented) GetLiquidity(ctx context.Context, a, b types.Token) (*types.Liquidity, error) {
	start := time.Now()
	l, err := i.next.GetLiquidity(ctx, a, b)
	i.observe("GetLiquidity", start, err)
	return l, err
}

func (i *instrumented) GetSwapFee(ctx context.Context, a, b types.Token) (uint32, error) {
	start := time.Now()
	fee, err := i.next.GetSwapFee(ctx, a, b)
	i.observe("GetSwapFee", start, err)
	return fee, err
}

func (i *instrumented) IsReady(ctx context.Context) bool {
	ready := i.next.IsReady(ctx)
	v := 0.0
	if ready {
		v = 1
	}
	VenueReady.WithLabelValues(i.next.ID()).Set(v)
	return ready
}

// Unwrap returns the instrumented adapter.
func (i *instrumented) Unwrap() dex.Adapter {
	return i.next
}
