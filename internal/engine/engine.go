// Package engine runs the trading control loop: evaluate the strategy on
// every tick, submit the resulting orders, and keep the exposure flags in
// sync with what the exchange acknowledged.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"futures-core/internal/balance"
	"futures-core/internal/feed"
	"futures-core/internal/order"
	"futures-core/internal/strategy"
	"futures-core/pkg/exchanges/common"
)

// Gateway is the slice of the exchange client the engine needs beyond
// order submission.
type Gateway interface {
	Positions(ctx context.Context, symbol string) ([]common.Position, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// Config tunes the control loop.
type Config struct {
	Symbol        string
	Leverage      int
	PollInterval  time.Duration // default 1s
	QuoteAsset    string        // default USDT
	FlattenOnExit bool
}

// Engine owns the exposure flags. They are only mutated on the control
// loop goroutine, and only after the pipeline acknowledged a dispatch; a
// signal that fails to submit changes nothing.
type Engine struct {
	cfg      Config
	strategy strategy.Strategy
	pipeline *order.Pipeline
	store    *order.Store
	market   *feed.MarketFeed
	balances *balance.Manager
	gateway  Gateway
	filters  common.SymbolFilters

	mu    sync.Mutex
	long  bool
	short bool

	done chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

func New(cfg Config, strat strategy.Strategy, pipeline *order.Pipeline, store *order.Store,
	market *feed.MarketFeed, balances *balance.Manager, gateway Gateway, filters common.SymbolFilters) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Engine{
		cfg:      cfg,
		strategy: strat,
		pipeline: pipeline,
		store:    store,
		market:   market,
		balances: balances,
		gateway:  gateway,
		filters:  filters,
		done:     make(chan struct{}),
	}
}

// Start rebuilds exposure from the persisted order records and launches
// the control loop.
func (e *Engine) Start(ctx context.Context) {
	long, short := e.store.NetExposure()
	e.mu.Lock()
	e.long, e.short = long, short
	e.mu.Unlock()
	if long || short {
		log.Printf("engine: resumed with exposure long=%v short=%v", long, short)
	}

	e.wg.Add(1)
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	ohlc, ok := e.market.Snapshot()
	if !ok {
		return
	}
	long, short := e.Exposure()

	if sig := e.strategy.StopLoss(ohlc, e.filters.TickSize, long, short); sig != nil {
		e.submit(ctx, *sig)
		long, short = e.Exposure()
	}
	for _, sig := range e.strategy.Check(long, short, ohlc) {
		e.submit(ctx, sig)
	}
}

// submit dispatches one signal and, on success, applies its direction
// effect to the exposure flags.
func (e *Engine) submit(ctx context.Context, sig strategy.Signal) {
	rec, err := e.pipeline.Submit(ctx, sig)
	if err != nil {
		log.Printf("engine: submit %s %s: %v", sig.Side, sig.Type, err)
		return
	}
	log.Printf("engine: submitted %s %s %s (%s)", rec.Side, rec.Type, rec.ClientID, sig.Note)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case sig.ClosesPosition:
		e.long, e.short = false, false
	case sig.Effect == strategy.OpensLong:
		e.long, e.short = true, false
	case sig.Effect == strategy.OpensShort:
		e.long, e.short = false, true
	}
}

// Exposure reports the current direction flags; at most one is true.
func (e *Engine) Exposure() (long, short bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.long, e.short
}

// Quantity sizes an order from the quote balance and the latest close:
// (leverage + 1) * balance / close, floored at zero.
func (e *Engine) Quantity(leverage int) float64 {
	ohlc, ok := e.market.Snapshot()
	if !ok || ohlc.Close <= 0 {
		return 0
	}
	avail := e.balances.Available(e.cfg.QuoteAsset)
	if avail <= 0 {
		return 0
	}
	return float64(leverage+1) * avail / ohlc.Close
}

// ProfitLoss sums realized quote flow over filled and partially filled
// records: sells add, buys subtract. Rounded to 2 decimals.
func (e *Engine) ProfitLoss() float64 {
	var pnl float64
	for _, r := range e.store.List() {
		if !r.Filled() {
			continue
		}
		notional := r.AvgFillPrice * r.ExecutedQty
		if r.Side == common.SideSell {
			pnl += notional
		} else {
			pnl -= notional
		}
	}
	return math.Round(pnl*100) / 100
}

// ClosePositions flattens every open position for the symbol with
// reduce-only market orders on the opposite side.
func (e *Engine) ClosePositions(ctx context.Context) error {
	positions, err := e.gateway.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	for _, p := range positions {
		side := common.SideSell
		if p.Quantity < 0 {
			side = common.SideBuy
		}
		sig := strategy.Signal{
			Side:           side,
			Type:           common.OrderTypeMarket,
			Effect:         strategy.Neutral,
			Quantity:       math.Abs(p.Quantity),
			ReduceOnly:     true,
			ClosesPosition: true,
			Note:           "flatten",
		}
		if _, err := e.pipeline.Submit(ctx, sig); err != nil {
			return fmt.Errorf("flatten %s: %w", p.Symbol, err)
		}
	}
	e.mu.Lock()
	e.long, e.short = false, false
	e.mu.Unlock()
	return nil
}

// CancelAllOpenOrders drops every resting order for the symbol.
func (e *Engine) CancelAllOpenOrders(ctx context.Context) error {
	return e.gateway.CancelAllOpenOrders(ctx, e.cfg.Symbol)
}

// Shutdown stops the control loop, waits for the in-flight tick, and
// optionally flattens the book.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stop.Do(func() { close(e.done) })

	joined := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(30 * time.Second):
		log.Print("engine: control loop did not stop in time")
	}

	if !e.cfg.FlattenOnExit {
		return nil
	}
	if err := e.CancelAllOpenOrders(ctx); err != nil {
		log.Printf("engine: cancel open orders on exit: %v", err)
	}
	return e.ClosePositions(ctx)
}
