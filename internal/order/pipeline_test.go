package order

import (
	"context"
	"errors"
	"testing"

	"futures-core/internal/strategy"
	"futures-core/pkg/exchanges/common"
)

type fakeDispatcher struct {
	calls []common.OrderRequest
	err   error
}

func (f *fakeDispatcher) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return common.OrderResult{}, f.err
	}
	return common.OrderResult{ClientID: req.ClientID, Status: common.StatusNew}, nil
}

func testPipeline(gw *fakeDispatcher) (*Pipeline, *Store) {
	store := NewStore(nil)
	filters := common.SymbolFilters{Symbol: "BTCUSDT", PricePrecision: 2, QtyPrecision: 3}
	return NewPipeline(store, gw, nil, "BTCUSDT", filters), store
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name string
		sig  strategy.Signal
	}{
		{"limit without price", strategy.Signal{Side: common.SideBuy, Type: common.OrderTypeLimit, Quantity: 1}},
		{"limit without quantity", strategy.Signal{Side: common.SideBuy, Type: common.OrderTypeLimit, Price: 100}},
		{"market without quantity", strategy.Signal{Side: common.SideSell, Type: common.OrderTypeMarket}},
		{"stop without stop price", strategy.Signal{Side: common.SideBuy, Type: common.OrderTypeStop, Quantity: 1, Price: 100}},
		{"take profit without price", strategy.Signal{Side: common.SideBuy, Type: common.OrderTypeTakeProfit, Quantity: 1, StopPrice: 100}},
		{"stop market without stop price", strategy.Signal{Side: common.SideSell, Type: common.OrderTypeStopMarket}},
		{"take profit market without stop price", strategy.Signal{Side: common.SideSell, Type: common.OrderTypeTakeProfitMarket}},
		{"trailing stop without callback rate", strategy.Signal{Side: common.SideSell, Type: common.OrderTypeTrailingStop}},
		{"unknown type", strategy.Signal{Side: common.SideBuy, Type: "ICEBERG", Quantity: 1}},
		{"missing side", strategy.Signal{Type: common.OrderTypeMarket, Quantity: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeDispatcher{}
			p, store := testPipeline(gw)
			_, err := p.Submit(context.Background(), tc.sig)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
			if len(gw.calls) != 0 {
				t.Fatal("invalid signal reached the dispatcher")
			}
			if got := len(store.List()); got != 0 {
				t.Fatalf("invalid signal created %d records", got)
			}
		})
	}
}

func TestSubmitFormatsNumerics(t *testing.T) {
	gw := &fakeDispatcher{}
	p, _ := testPipeline(gw)

	// Runtime float arithmetic so the 0.010000000000000009 artifact
	// actually reaches the formatter.
	a, b := 0.1, 0.2
	_, err := p.Submit(context.Background(), strategy.Signal{
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Quantity: a + b - 0.29,
		Price:    30000.456,
		Effect:   strategy.OpensLong,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(gw.calls))
	}
	req := gw.calls[0]
	if req.Quantity != "0.010" {
		t.Fatalf("quantity = %q, want 0.010", req.Quantity)
	}
	if req.Price != "30000.46" {
		t.Fatalf("price = %q, want 30000.46", req.Price)
	}
	if req.TimeInForce != common.TIFGTC {
		t.Fatalf("LIMIT must carry GTC, got %q", req.TimeInForce)
	}
	if req.ClientID == "" {
		t.Fatal("client id not assigned")
	}
}

func TestSubmitStopOrder(t *testing.T) {
	gw := &fakeDispatcher{}
	p, store := testPipeline(gw)

	rec, err := p.Submit(context.Background(), strategy.Signal{
		Side:      common.SideSell,
		Type:      common.OrderTypeStopMarket,
		StopPrice: 29500.123,
		Effect:    strategy.Neutral,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	req := gw.calls[0]
	if req.StopPrice != "29500.12" {
		t.Fatalf("stop price = %q, want 29500.12", req.StopPrice)
	}
	if req.Quantity != "" || req.Price != "" {
		t.Fatalf("stop market should omit quantity/price, got %q/%q", req.Quantity, req.Price)
	}
	if req.TimeInForce != "" {
		t.Fatalf("non-limit order carries TIF %q", req.TimeInForce)
	}
	got, err := store.Get(rec.ClientID)
	if err != nil {
		t.Fatalf("record not tracked: %v", err)
	}
	if got.Status != common.StatusNew {
		t.Fatalf("record status = %s, want NEW", got.Status)
	}
}

func TestSubmitDispatchFailure(t *testing.T) {
	sentinel := errors.New("exchange down")
	gw := &fakeDispatcher{err: sentinel}
	p, store := testPipeline(gw)

	rec, err := p.Submit(context.Background(), strategy.Signal{
		Side:     common.SideBuy,
		Type:     common.OrderTypeMarket,
		Quantity: 1,
		Effect:   strategy.OpensLong,
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if !rec.Failed {
		t.Fatal("returned record not marked failed")
	}
	got, gerr := store.Get(rec.ClientID)
	if gerr != nil {
		t.Fatalf("failed record should stay tracked: %v", gerr)
	}
	if !got.Failed {
		t.Fatal("stored record not marked failed")
	}
	if got.Open() {
		t.Fatal("failed record must not count as open")
	}
}

func TestSubmitTrailingStop(t *testing.T) {
	gw := &fakeDispatcher{}
	p, _ := testPipeline(gw)

	_, err := p.Submit(context.Background(), strategy.Signal{
		Side:            common.SideSell,
		Type:            common.OrderTypeTrailingStop,
		Quantity:        0.5,
		CallbackRate:    1.5,
		ActivationPrice: 31000.789,
		Effect:          strategy.Neutral,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	req := gw.calls[0]
	if req.CallbackRate != 1.5 {
		t.Fatalf("callback rate = %v, want 1.5", req.CallbackRate)
	}
	if req.ActivationPrice != "31000.79" {
		t.Fatalf("activation price = %q, want 31000.79", req.ActivationPrice)
	}
}
