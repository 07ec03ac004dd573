// Package router aggregates quotes from every active venue in the registry
// and turns the best one into an executable trade route.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"flashtrade/pkg/cache"
	"flashtrade/pkg/dex"
	"flashtrade/pkg/registry"
	"flashtrade/pkg/types"
)

const DefaultConcurrency = 8

// VenueQuote is one venue's answer in a quoting pass. Exactly one of Quote
// and Err is set.
type VenueQuote struct {
	VenueID   string       `json:"venue_id"`
	VenueName string       `json:"venue_name"`
	FeeBps    uint32       `json:"fee_bps"`
	Quote     *types.Quote `json:"quote,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
	Err       error        `json:"-"`
}

// Router fans quote requests out to the registered adapters.
type Router struct {
	registry    *registry.Registry
	cache       cache.QuoteCache
	log         zerolog.Logger
	concurrency int

	mu       sync.RWMutex
	adapters map[string]dex.Adapter
}

type Option func(*Router)

// WithCache memoizes venue quotes.
func WithCache(c cache.QuoteCache) Option {
	return func(r *Router) { r.cache = c }
}

// WithConcurrency bounds the number of venues queried at once.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a router reading venue state from reg.
func New(reg *registry.Registry, log zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		registry:    reg,
		log:         log.With().Str("component", "router").Logger(),
		concurrency: DefaultConcurrency,
		adapters:    make(map[string]dex.Adapter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes an adapter available under its ID. A later registration
// with the same ID replaces the earlier one.
func (r *Router) Register(a dex.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Adapter returns the adapter registered under id.
func (r *Router) Adapter(id string) (dex.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Registry returns the registry the router reads venue state from.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Venues returns the adapters of the venues that are active on chainID
// right now, in registry order.
func (r *Router) Venues(chainID uint64) []dex.Adapter {
	active := r.registry.ActiveDEXes(chainID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]dex.Adapter, 0, len(active))
	for _, d := range active {
		a, ok := r.adapters[d.ID]
		if !ok {
			r.log.Debug().Str("venue", d.ID).Msg("active venue has no adapter")
			continue
		}
		out = append(out, a)
	}
	return out
}

// Quotes asks every active, ready venue supporting the pair for a quote.
// Successful quotes come first ordered by output, best first; failed
// venues follow ordered by id. A failing venue never aborts the pass.
// The error is non-nil only for malformed input.
func (r *Router) Quotes(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) ([]VenueQuote, error) {
	if _, err := dex.ParseAmount(amountIn); err != nil {
		return nil, dex.NewError("", "Quotes", dex.ErrValidation, err)
	}
	if err := dex.ValidatePair(tokenIn, tokenOut); err != nil {
		return nil, dex.NewError("", "Quotes", dex.ErrValidation, err)
	}

	venues := r.Venues(tokenIn.ChainID)
	results := make([]*VenueQuote, len(venues))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, a := range venues {
		i, a := i, a
		g.Go(func() error {
			results[i] = r.quoteVenue(gctx, a, tokenIn, tokenOut, amountIn)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]VenueQuote, 0, len(results))
	for _, vq := range results {
		if vq != nil {
			out = append(out, *vq)
		}
	}
	sortQuotes(out)

	r.log.Debug().
		Str("in", tokenIn.String()).
		Str("out", tokenOut.String()).
		Str("amount", amountIn).
		Int("venues", len(venues)).
		Int("answers", len(out)).
		Msg("quoting pass finished")
	return out, nil
}

// quoteVenue returns nil when the venue is skipped.
func (r *Router) quoteVenue(ctx context.Context, a dex.Adapter, tokenIn, tokenOut types.Token, amountIn string) *VenueQuote {
	log := r.log.With().Str("venue", a.ID()).Logger()

	if !a.IsReady(ctx) {
		log.Warn().Msg("venue not ready, skipping")
		return nil
	}

	vq := &VenueQuote{VenueID: a.ID(), VenueName: a.Name()}

	ok, err := a.IsPairSupported(ctx, tokenIn, tokenOut)
	if err != nil {
		vq.Err = err
		log.Warn().Err(err).Msg("pair support check failed")
		return vq
	}
	if !ok {
		return nil
	}

	fee, err := a.GetSwapFee(ctx, tokenIn, tokenOut)
	if err == nil {
		vq.FeeBps = fee
	}

	key := cache.QuoteKey(a.ID(), tokenIn, tokenOut, amountIn)
	if r.cache != nil {
		q, hit, err := r.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("quote cache read failed")
		}
		if hit {
			vq.Quote = q
			vq.Cached = true
			return vq
		}
	}

	q, err := a.GetExpectedOutput(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		vq.Err = err
		log.Debug().Err(err).Str("kind", dex.KindOf(err)).Msg("venue could not quote")
		return vq
	}
	vq.Quote = q

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, q); err != nil {
			log.Warn().Err(err).Msg("quote cache write failed")
		}
	}
	return vq
}

func sortQuotes(qs []VenueQuote) {
	sort.SliceStable(qs, func(i, j int) bool {
		a, b := qs[i], qs[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return a.VenueID < b.VenueID
		}
		oa, _ := decimal.NewFromString(a.Quote.AmountOut)
		ob, _ := decimal.NewFromString(b.Quote.AmountOut)
		if !oa.Equal(ob) {
			return oa.GreaterThan(ob)
		}
		return a.VenueID < b.VenueID
	})
}

// BestRoute returns a single-venue route through the venue quoting the
// greatest output.
func (r *Router) BestRoute(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) (*types.TradeRoute, error) {
	quotes, err := r.Quotes(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, dex.Errorf("", "BestRoute", dex.ErrQuoteUnavailable, "no active venue supports %s -> %s", tokenIn, tokenOut)
	}
	if quotes[0].Err != nil {
		errs := make([]error, 0, len(quotes))
		for _, q := range quotes {
			errs = append(errs, q.Err)
		}
		return nil, dex.NewError("", "BestRoute", dex.ErrQuoteUnavailable,
			fmt.Errorf("no venue quoted %s -> %s: %w", tokenIn, tokenOut, errors.Join(errs...)))
	}

	return newRoute(tokenIn, tokenOut, amountIn, quotes[0]), nil
}

// RouteVia builds a route through venueID whatever its rank.
func (r *Router) RouteVia(ctx context.Context, venueID string, tokenIn, tokenOut types.Token, amountIn string) (*types.TradeRoute, error) {
	quotes, err := r.Quotes(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if q.VenueID != venueID {
			continue
		}
		if q.Err != nil {
			return nil, q.Err
		}
		return newRoute(tokenIn, tokenOut, amountIn, q), nil
	}
	return nil, dex.Errorf(venueID, "RouteVia", dex.ErrQuoteUnavailable, "venue offers no quote for %s -> %s", tokenIn, tokenOut)
}

func newRoute(tokenIn, tokenOut types.Token, amountIn string, q VenueQuote) *types.TradeRoute {
	return &types.TradeRoute{
		ID:          uuid.NewString(),
		AmountIn:    amountIn,
		AmountOut:   q.Quote.AmountOut,
		PriceImpact: q.Quote.PriceImpact,
		FeeBps:      q.FeeBps,
		Hops: []types.Hop{{
			VenueID:   q.VenueID,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amountIn,
			AmountOut: q.Quote.AmountOut,
			FeeBps:    q.FeeBps,
		}},
	}
}

// Execute submits a single-venue route once, accepting at most slippageBps
// below the quoted output. Like Adapter.ExecuteSwap, the error is non-nil
// only for malformed input.
func (r *Router) Execute(ctx context.Context, route *types.TradeRoute, slippageBps uint32, recipient string, deadline *time.Time) (*types.SwapResult, error) {
	if route == nil {
		return nil, dex.Errorf("", "Execute", dex.ErrValidation, "route is nil")
	}
	if err := route.Validate(); err != nil {
		return nil, dex.NewError("", "Execute", dex.ErrValidation, err)
	}
	if len(route.Hops) != 1 {
		return nil, dex.Errorf("", "Execute", dex.ErrValidation, "route %s has %d hops, only single-venue routes execute", route.ID, len(route.Hops))
	}

	hop := route.Hops[0]
	d, err := r.registry.DEX(hop.VenueID)
	if err != nil {
		return nil, dex.NewError(hop.VenueID, "Execute", dex.ErrValidation, err)
	}
	if !d.Active {
		return nil, dex.Errorf(hop.VenueID, "Execute", dex.ErrValidation, "venue is inactive")
	}
	a, ok := r.Adapter(hop.VenueID)
	if !ok {
		return nil, dex.Errorf(hop.VenueID, "Execute", dex.ErrValidation, "no adapter registered")
	}

	minOut, err := dex.MinOutput(hop.AmountOut, slippageBps)
	if err != nil {
		return nil, dex.NewError(hop.VenueID, "Execute", dex.ErrValidation, err)
	}

	req := types.SwapRequest{
		TokenIn:      hop.TokenIn,
		TokenOut:     hop.TokenOut,
		AmountIn:     hop.AmountIn,
		MinAmountOut: minOut,
		Recipient:    recipient,
		Deadline:     deadline,
	}
	res, err := a.ExecuteSwap(ctx, req)
	if err != nil {
		return nil, err
	}

	var ev *zerolog.Event
	if res.Success {
		ev = r.log.Info()
	} else {
		ev = r.log.Warn().Str("error", res.Error).Str("kind", res.ErrorKind)
	}
	ev.Str("route", route.ID).
		Str("venue", hop.VenueID).
		Str("amount_in", hop.AmountIn).
		Str("min_out", minOut).
		Str("tx", res.TransactionHash).
		Bool("success", res.Success).
		Msg("route executed")
	return res, nil
}
