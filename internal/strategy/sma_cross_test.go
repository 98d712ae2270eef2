package strategy

import (
	"testing"

	"futures-core/pkg/exchanges/common"
)

func bars(closes ...float64) []common.Kline {
	out := make([]common.Kline, len(closes))
	for i, c := range closes {
		out[i] = common.Kline{Symbol: "BTCUSDT", Close: c}
	}
	return out
}

func fixedSizer(qty float64) QuantityFunc {
	return func(int) float64 { return qty }
}

func TestCrossUpOpensLong(t *testing.T) {
	s := NewSMACross(2, 4, 0, 1, fixedSizer(1))
	// Downtrend keeps fast below slow, then a spike crosses it above.
	s.Warmup(bars(110, 108, 106, 104, 102, 100))

	signals := s.Check(false, false, common.Kline{Close: 130})
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Side != common.SideBuy || sig.Effect != OpensLong || sig.Type != common.OrderTypeMarket {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	if sig.Quantity != 1 {
		t.Fatalf("quantity = %v, want 1", sig.Quantity)
	}
}

func TestCrossDownClosesLongAndOpensShort(t *testing.T) {
	s := NewSMACross(2, 4, 0, 1, fixedSizer(1))
	// Uptrend, then a collapse crosses the fast average below the slow.
	s.Warmup(bars(100, 102, 104, 106, 108, 110))

	signals := s.Check(true, false, common.Kline{Close: 70})
	if len(signals) != 2 {
		t.Fatalf("signals = %d, want close + open", len(signals))
	}
	if !signals[0].ClosesPosition || !signals[0].ReduceOnly || signals[0].Side != common.SideSell {
		t.Fatalf("first signal should close the long: %+v", signals[0])
	}
	if signals[1].Effect != OpensShort || signals[1].Side != common.SideSell {
		t.Fatalf("second signal should open a short: %+v", signals[1])
	}
}

func TestNoSignalWhileAlreadyPositioned(t *testing.T) {
	s := NewSMACross(2, 4, 0, 1, fixedSizer(1))
	s.Warmup(bars(110, 108, 106, 104, 102, 100))

	// Already long: the cross up must not re-enter.
	if signals := s.Check(true, false, common.Kline{Close: 130}); len(signals) != 0 {
		t.Fatalf("unexpected signals while long: %+v", signals)
	}
}

func TestNoSignalWithoutHistory(t *testing.T) {
	s := NewSMACross(2, 4, 0, 1, fixedSizer(1))
	if signals := s.Check(false, false, common.Kline{Close: 100}); signals != nil {
		t.Fatalf("expected nil before warmup, got %+v", signals)
	}
}

func TestStopLoss(t *testing.T) {
	s := NewSMACross(2, 4, 0.02, 1, fixedSizer(1))
	s.Warmup(bars(110, 108, 106, 104, 102, 100))
	if signals := s.Check(false, false, common.Kline{Close: 130}); len(signals) != 1 {
		t.Fatal("setup entry failed")
	}

	// Above the stop threshold: nothing.
	if sig := s.StopLoss(common.Kline{Close: 129}, 0.01, true, false); sig != nil {
		t.Fatalf("premature stop: %+v", sig)
	}

	// 2% below the 130 entry.
	sig := s.StopLoss(common.Kline{Close: 127}, 0.01, true, false)
	if sig == nil {
		t.Fatal("stop loss did not trigger")
	}
	if sig.Side != common.SideSell || !sig.ClosesPosition || !sig.ReduceOnly {
		t.Fatalf("unexpected stop signal: %+v", sig)
	}
}
