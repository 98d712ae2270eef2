// Package feed adapts the exchange streams into engine-facing state: the
// market feed keeps the latest OHLC snapshot, the account feed reconciles
// user-data events into the order store and balances.
package feed

import (
	"sync/atomic"

	"futures-core/internal/events"
	"futures-core/pkg/exchanges/common"
)

// MarketFeed holds the most recent candlestick for one symbol. Writers
// (the stream read goroutine) and readers (the control loop) never block
// each other; the snapshot is swapped atomically.
type MarketFeed struct {
	latest atomic.Pointer[common.Kline]
	bus    *events.Bus
}

func NewMarketFeed(bus *events.Bus) *MarketFeed {
	return &MarketFeed{bus: bus}
}

// OnKline is wired as the stream callback.
func (f *MarketFeed) OnKline(k common.Kline) {
	f.latest.Store(&k)
	if f.bus != nil {
		f.bus.Publish(events.EventPriceTick, k)
	}
}

// Snapshot returns the latest bar; ok is false until the first event
// arrives so the control loop can skip ticks before data exists.
func (f *MarketFeed) Snapshot() (common.Kline, bool) {
	p := f.latest.Load()
	if p == nil {
		return common.Kline{}, false
	}
	return *p, true
}
