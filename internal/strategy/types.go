// Package strategy defines the contract between signal generators and the
// order submission pipeline. Indicator math lives behind the Strategy
// interface; the engine only consumes Signals.
package strategy

import "futures-core/pkg/exchanges/common"

// DirectionEffect states whether a successfully submitted order changes
// the engine's tracked market exposure.
type DirectionEffect string

const (
	OpensLong  DirectionEffect = "OPENS_LONG"
	OpensShort DirectionEffect = "OPENS_SHORT"
	Neutral    DirectionEffect = "NEUTRAL"
)

// Signal is a trade decision emitted by a strategy. Fields beyond Side and
// Type are populated per the exchange's per-type mandatory-field contract:
//
//	LIMIT                            quantity, price
//	MARKET                           quantity
//	STOP / TAKE_PROFIT               quantity, price, stopPrice
//	STOP_MARKET / TAKE_PROFIT_MARKET stopPrice
//	TRAILING_STOP_MARKET             callbackRate
type Signal struct {
	Side            common.Side
	Type            common.OrderType
	Effect          DirectionEffect
	Quantity        float64
	Price           float64
	StopPrice       float64
	ActivationPrice float64
	CallbackRate    float64
	ReduceOnly      bool
	// ClosesPosition tells the engine to flatten its exposure flags once
	// the order is acknowledged; the record itself stays Neutral.
	ClosesPosition bool
	Note           string
}

// Strategy produces signals from the latest OHLC snapshot on every
// control-loop tick.
type Strategy interface {
	// Warmup seeds indicator state from historical bars pulled at startup.
	Warmup(klines []common.Kline)
	// Check evaluates entry/exit conditions against the current snapshot.
	Check(long, short bool, ohlc common.Kline) []Signal
	// StopLoss evaluates the protective exit; nil means no action.
	StopLoss(ohlc common.Kline, tickSize float64, long, short bool) *Signal
}

// QuantityFunc sizes an order from the configured leverage; typically
// backed by the engine's balance-derived sizing.
type QuantityFunc func(leverage int) float64
