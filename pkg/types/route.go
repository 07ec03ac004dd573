package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Hop is one venue leg of a trade route.
type Hop struct {
	VenueID   string `json:"venue_id"`
	TokenIn   Token  `json:"token_in"`
	TokenOut  Token  `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	FeeBps    uint32 `json:"fee_bps"`
}

// TradeRoute is a candidate path converting AmountIn of the first hop's
// input token into AmountOut of the last hop's output token.
type TradeRoute struct {
	ID          string  `json:"id"`
	AmountIn    string  `json:"amount_in"`
	AmountOut   string  `json:"amount_out"`
	PriceImpact float64 `json:"price_impact"`
	FeeBps      uint32  `json:"fee_bps"` // sum over hops
	Hops        []Hop   `json:"hops"`
}

// TokenIn returns the input token of the route.
func (r *TradeRoute) TokenIn() Token {
	return r.Hops[0].TokenIn
}

// TokenOut returns the output token of the route.
func (r *TradeRoute) TokenOut() Token {
	return r.Hops[len(r.Hops)-1].TokenOut
}

// Validate checks that amounts are conserved between hops.
func (r *TradeRoute) Validate() error {
	if len(r.Hops) == 0 {
		return fmt.Errorf("route has no hops")
	}
	if !sameAmount(r.AmountIn, r.Hops[0].AmountIn) {
		return fmt.Errorf("route input %s does not match first hop input %s", r.AmountIn, r.Hops[0].AmountIn)
	}
	for i := 1; i < len(r.Hops); i++ {
		prev, cur := r.Hops[i-1], r.Hops[i]
		if !prev.TokenOut.SameAs(cur.TokenIn) {
			return fmt.Errorf("hop %d consumes %s but hop %d produces %s", i, cur.TokenIn, i-1, prev.TokenOut)
		}
		if !sameAmount(prev.AmountOut, cur.AmountIn) {
			return fmt.Errorf("hop %d input %s does not match hop %d output %s", i, cur.AmountIn, i-1, prev.AmountOut)
		}
	}
	last := r.Hops[len(r.Hops)-1]
	if !sameAmount(r.AmountOut, last.AmountOut) {
		return fmt.Errorf("route output %s does not match last hop output %s", r.AmountOut, last.AmountOut)
	}
	return nil
}

func sameAmount(a, b string) bool {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return false
	}
	return da.Equal(db)
}
