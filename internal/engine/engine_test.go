package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"futures-core/internal/balance"
	"futures-core/internal/feed"
	"futures-core/internal/order"
	"futures-core/internal/strategy"
	"futures-core/pkg/exchanges/common"
)

type fakeGateway struct {
	positions  []common.Position
	submits    []common.OrderRequest
	submitErr  error
	cancelAlls int
}

func (f *fakeGateway) Positions(context.Context, string) ([]common.Position, error) {
	return f.positions, nil
}

func (f *fakeGateway) CancelAllOpenOrders(context.Context, string) error {
	f.cancelAlls++
	return nil
}

func (f *fakeGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return common.OrderResult{}, f.submitErr
	}
	return common.OrderResult{ClientID: req.ClientID, Status: common.StatusNew}, nil
}

type fakeBalances struct{ usdt float64 }

func (f *fakeBalances) Balances(context.Context) (map[string]float64, error) {
	return map[string]float64{"USDT": f.usdt}, nil
}

func newTestEngine(t *testing.T, gw *fakeGateway, usdt float64) (*Engine, *order.Store, *feed.MarketFeed) {
	t.Helper()
	store := order.NewStore(nil)
	filters := common.SymbolFilters{Symbol: "BTCUSDT", PricePrecision: 2, QtyPrecision: 3, TickSize: 0.01}
	pipeline := order.NewPipeline(store, gw, nil, "BTCUSDT", filters)
	market := feed.NewMarketFeed(nil)
	bal := balance.NewManager(&fakeBalances{usdt: usdt})
	if err := bal.Sync(context.Background()); err != nil {
		t.Fatalf("sync balances: %v", err)
	}
	e := New(Config{Symbol: "BTCUSDT", Leverage: 5}, nil, pipeline, store, market, bal, gw, filters)
	return e, store, market
}

func TestSubmitUpdatesExposure(t *testing.T) {
	gw := &fakeGateway{}
	e, _, _ := newTestEngine(t, gw, 1000)
	ctx := context.Background()

	e.submit(ctx, strategy.Signal{
		Side: common.SideBuy, Type: common.OrderTypeMarket,
		Effect: strategy.OpensLong, Quantity: 1,
	})
	long, short := e.Exposure()
	if !long || short {
		t.Fatalf("after OPENS_LONG: long=%v short=%v", long, short)
	}

	e.submit(ctx, strategy.Signal{
		Side: common.SideSell, Type: common.OrderTypeMarket,
		Effect: strategy.OpensShort, Quantity: 1,
	})
	long, short = e.Exposure()
	if long || !short {
		t.Fatalf("after OPENS_SHORT: long=%v short=%v", long, short)
	}

	e.submit(ctx, strategy.Signal{
		Side: common.SideBuy, Type: common.OrderTypeStopMarket,
		Effect: strategy.Neutral, StopPrice: 100,
	})
	long, short = e.Exposure()
	if long || !short {
		t.Fatalf("NEUTRAL changed exposure: long=%v short=%v", long, short)
	}

	e.submit(ctx, strategy.Signal{
		Side: common.SideBuy, Type: common.OrderTypeMarket,
		Effect: strategy.Neutral, Quantity: 1,
		ReduceOnly: true, ClosesPosition: true,
	})
	long, short = e.Exposure()
	if long || short {
		t.Fatalf("after close: long=%v short=%v", long, short)
	}
}

func TestFailedSubmitLeavesExposure(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("exchange down")}
	e, _, _ := newTestEngine(t, gw, 1000)

	e.submit(context.Background(), strategy.Signal{
		Side: common.SideBuy, Type: common.OrderTypeMarket,
		Effect: strategy.OpensLong, Quantity: 1,
	})
	long, short := e.Exposure()
	if long || short {
		t.Fatalf("failed dispatch changed exposure: long=%v short=%v", long, short)
	}
}

func TestProfitLossAccumulates(t *testing.T) {
	gw := &fakeGateway{}
	e, store, _ := newTestEngine(t, gw, 1000)
	ctx := context.Background()

	add := func(id string, side common.Side, status common.OrderStatus, price, qty float64) {
		t.Helper()
		if err := store.Create(ctx, order.Record{
			ClientID: id, Symbol: "BTCUSDT", Side: side,
			Type: common.OrderTypeMarket, Status: status,
			AvgFillPrice: price, ExecutedQty: qty,
			Effect: strategy.Neutral, SubmittedAt: time.Now(),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	add("buy1", common.SideBuy, common.StatusFilled, 100, 2)            // -200
	add("sell1", common.SideSell, common.StatusFilled, 110, 2)          // +220
	add("sell2", common.SideSell, common.StatusPartiallyFilled, 105, 1) // +105
	add("open", common.SideBuy, common.StatusNew, 0, 0)                 // ignored
	add("rejected", common.SideSell, common.StatusRejected, 999, 9)     // ignored

	if got := e.ProfitLoss(); got != 125 {
		t.Fatalf("pnl = %v, want 125", got)
	}
}

func TestQuantitySizing(t *testing.T) {
	gw := &fakeGateway{}
	e, _, market := newTestEngine(t, gw, 1000)

	if got := e.Quantity(5); got != 0 {
		t.Fatalf("quantity before market data = %v, want 0", got)
	}

	market.OnKline(common.Kline{Symbol: "BTCUSDT", Close: 30000})
	// (5+1) * 1000 / 30000 = 0.2
	if got := e.Quantity(5); got != 0.2 {
		t.Fatalf("quantity = %v, want 0.2", got)
	}
}

func TestClosePositions(t *testing.T) {
	gw := &fakeGateway{positions: []common.Position{
		{Symbol: "BTCUSDT", Quantity: -0.5, Entry: 30000},
	}}
	e, _, _ := newTestEngine(t, gw, 1000)

	e.mu.Lock()
	e.short = true
	e.mu.Unlock()

	if err := e.ClosePositions(context.Background()); err != nil {
		t.Fatalf("close positions: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(gw.submits))
	}
	req := gw.submits[0]
	if req.Side != common.SideBuy || req.Type != common.OrderTypeMarket || !req.ReduceOnly {
		t.Fatalf("unexpected flatten order: %+v", req)
	}
	if req.Quantity != "0.500" {
		t.Fatalf("flatten quantity = %q, want 0.500", req.Quantity)
	}
	long, short := e.Exposure()
	if long || short {
		t.Fatalf("exposure not flattened: long=%v short=%v", long, short)
	}
}
