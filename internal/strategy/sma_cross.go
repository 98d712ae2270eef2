package strategy

import (
	"futures-core/pkg/exchanges/common"
)

// SMACross is the baseline moving-average crossover strategy: fast SMA
// crossing above the slow opens a long, crossing below opens a short, and
// a percentage stop guards the open position.
type SMACross struct {
	Fast     int
	Slow     int
	StopPct  float64 // e.g. 0.02 = exit 2% against the entry
	Leverage int
	Sizer    QuantityFunc

	closes   []float64
	entry    float64
	entryQty float64
}

func NewSMACross(fast, slow int, stopPct float64, leverage int, sizer QuantityFunc) *SMACross {
	if fast <= 0 {
		fast = 7
	}
	if slow <= fast {
		slow = fast * 3
	}
	return &SMACross{Fast: fast, Slow: slow, StopPct: stopPct, Leverage: leverage, Sizer: sizer}
}

func (s *SMACross) Warmup(klines []common.Kline) {
	for _, k := range klines {
		s.push(k.Close)
	}
}

func (s *SMACross) Check(long, short bool, ohlc common.Kline) []Signal {
	prevFast, prevSlow := s.sma(s.Fast), s.sma(s.Slow)
	s.push(ohlc.Close)
	fast, slow := s.sma(s.Fast), s.sma(s.Slow)
	if prevSlow == 0 || slow == 0 {
		return nil // not enough history yet
	}

	crossedUp := prevFast <= prevSlow && fast > slow
	crossedDown := prevFast >= prevSlow && fast < slow

	var signals []Signal
	switch {
	case crossedUp && !long:
		if short {
			signals = append(signals, s.closeSignal(common.SideBuy))
		}
		qty := s.Sizer(s.Leverage)
		if qty > 0 {
			s.entry, s.entryQty = ohlc.Close, qty
			signals = append(signals, Signal{
				Side:     common.SideBuy,
				Type:     common.OrderTypeMarket,
				Effect:   OpensLong,
				Quantity: qty,
				Note:     "sma cross up",
			})
		}
	case crossedDown && !short:
		if long {
			signals = append(signals, s.closeSignal(common.SideSell))
		}
		qty := s.Sizer(s.Leverage)
		if qty > 0 {
			s.entry, s.entryQty = ohlc.Close, qty
			signals = append(signals, Signal{
				Side:     common.SideSell,
				Type:     common.OrderTypeMarket,
				Effect:   OpensShort,
				Quantity: qty,
				Note:     "sma cross down",
			})
		}
	}
	return signals
}

func (s *SMACross) StopLoss(ohlc common.Kline, tickSize float64, long, short bool) *Signal {
	if s.entry == 0 || s.StopPct <= 0 {
		return nil
	}
	// Trigger one tick beyond the threshold so the stop is not raced by
	// the level itself.
	switch {
	case long && ohlc.Close <= s.entry*(1-s.StopPct)+tickSize:
		sig := s.closeSignal(common.SideSell)
		sig.Note = "stop loss"
		return &sig
	case short && ohlc.Close >= s.entry*(1+s.StopPct)-tickSize:
		sig := s.closeSignal(common.SideBuy)
		sig.Note = "stop loss"
		return &sig
	}
	return nil
}

func (s *SMACross) closeSignal(side common.Side) Signal {
	return Signal{
		Side:           side,
		Type:           common.OrderTypeMarket,
		Effect:         Neutral,
		Quantity:       s.entryQty,
		ReduceOnly:     true,
		ClosesPosition: true,
		Note:           "close position",
	}
}

func (s *SMACross) push(close float64) {
	s.closes = append(s.closes, close)
	if max := s.Slow * 4; len(s.closes) > max {
		s.closes = s.closes[len(s.closes)-max:]
	}
}

func (s *SMACross) sma(n int) float64 {
	if len(s.closes) < n || n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range s.closes[len(s.closes)-n:] {
		sum += c
	}
	return sum / float64(n)
}
