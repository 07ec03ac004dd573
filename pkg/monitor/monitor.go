// Package monitor polls the router for watched pairs and reports each
// quoting round to a callback.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/router"
	"flashtrade/pkg/types"
)

const (
	DefaultInterval = 30 * time.Second
	MinInterval     = 5 * time.Second // keeps public RPC endpoints from throttling us
)

// Quoter is the part of the router the monitor needs.
type Quoter interface {
	Quotes(ctx context.Context, tokenIn, tokenOut types.Token, amountIn string) ([]router.VenueQuote, error)
}

// Pair is one watched conversion.
type Pair struct {
	TokenIn  types.Token
	TokenOut types.Token
	Amount   string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s %s/%s", p.Amount, p.TokenIn, p.TokenOut)
}

// Snapshot is the outcome of quoting one pair in one round.
type Snapshot struct {
	Pair   Pair
	At     time.Time
	Quotes []router.VenueQuote
	Err    error
}

// Best returns the best successful quote of the round, if any.
func (s Snapshot) Best() (router.VenueQuote, bool) {
	if len(s.Quotes) == 0 || s.Quotes[0].Err != nil {
		return router.VenueQuote{}, false
	}
	return s.Quotes[0], true
}

// Monitor polls a Quoter on a fixed interval.
type Monitor struct {
	quoter   Quoter
	notify   func(Snapshot)
	log      zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	pairs   []Pair
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a stopped monitor. notify is called from the polling
// goroutine once per pair per round.
func New(q Quoter, notify func(Snapshot), log zerolog.Logger) *Monitor {
	return &Monitor{
		quoter:   q,
		notify:   notify,
		log:      log.With().Str("component", "monitor").Logger(),
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// SetInterval sets the polling interval, never below MinInterval.
func (m *Monitor) SetInterval(interval time.Duration) {
	if interval < MinInterval {
		interval = MinInterval
	}
	m.mu.Lock()
	m.interval = interval
	m.mu.Unlock()
}

// Interval returns the polling interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

// Watch adds a pair to every following round.
func (m *Monitor) Watch(p Pair) error {
	if _, err := dex.ParseAmount(p.Amount); err != nil {
		return err
	}
	if err := dex.ValidatePair(p.TokenIn, p.TokenOut); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pairs {
		if existing.TokenIn.SameAs(p.TokenIn) && existing.TokenOut.SameAs(p.TokenOut) && existing.Amount == p.Amount {
			return fmt.Errorf("pair %s is already watched", p)
		}
	}
	m.pairs = append(m.pairs, p)
	return nil
}

// Pairs returns the watched pairs.
func (m *Monitor) Pairs() []Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pair(nil), m.pairs...)
}

// Start polls immediately and then on every tick until Stop is called or
// ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}
	if len(m.pairs) == 0 {
		return fmt.Errorf("no pairs to watch")
	}

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, m.interval, m.stop, m.done)
	return nil
}

// Stop halts polling and waits for the current round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}

// IsRunning reports whether the polling goroutine is alive.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Int("pairs", len(m.Pairs())).Msg("started monitoring")
	m.poll(ctx)

	for {
		select {
		case <-stop:
			m.log.Info().Msg("stopped monitoring")
			return
		case <-ctx.Done():
			m.log.Info().Err(ctx.Err()).Msg("stopped monitoring")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	for _, p := range m.Pairs() {
		quotes, err := m.quoter.Quotes(ctx, p.TokenIn, p.TokenOut, p.Amount)
		snap := Snapshot{Pair: p, At: m.now(), Quotes: quotes, Err: err}

		if err != nil {
			m.log.Warn().Err(err).Str("pair", p.String()).Msg("quoting round failed")
		} else if best, ok := snap.Best(); ok {
			m.log.Debug().
				Str("pair", p.String()).
				Str("venue", best.VenueID).
				Str("amount_out", best.Quote.AmountOut).
				Float64("impact", best.Quote.PriceImpact).
				Msg("best quote")
		}

		if m.notify != nil {
			m.notify(snap)
		}
	}
}
