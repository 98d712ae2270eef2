// Package common holds the exchange-facing vocabulary shared by the
// futures client and the engine.
package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the futures order types the engine can submit.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStop     OrderType = "TRAILING_STOP_MARKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus mirrors the exchange lifecycle states.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether no further status transition is possible.
// REJECTED orders are retried only via a fresh submission with a new
// client id, never by mutating the rejected record.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// OrderRequest is a fully prepared order. Numeric fields are carried as
// already formatted decimal strings so the precision applied by the
// submission pipeline reaches the wire unchanged; empty means absent.
type OrderRequest struct {
	Symbol          string
	Side            Side
	Type            OrderType
	Quantity        string
	Price           string
	StopPrice       string
	ActivationPrice string
	CallbackRate    float64
	TimeInForce     TimeInForce
	ReduceOnly      bool
	ClientID        string
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID int64
	ClientID        string
	Status          OrderStatus
}

// OrderSnapshot is the REST view of a single order.
type OrderSnapshot struct {
	ClientID    string
	Symbol      string
	Side        Side
	Type        OrderType
	Status      OrderStatus
	Price       float64
	AvgPrice    float64
	OrigQty     float64
	ExecutedQty float64
}

// SymbolFilters carries per-symbol precision metadata, fetched once per
// trading session and cached.
type SymbolFilters struct {
	Symbol         string
	PricePrecision int
	QtyPrecision   int
	TickSize       float64
}

// Kline is a single OHLC candlestick bar.
type Kline struct {
	Symbol    string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Position is an open futures position; Quantity is signed (negative for
// short).
type Position struct {
	Symbol   string
	Quantity float64
	Entry    float64
}

// Handle identifies one live stream subscription.
type Handle interface {
	Alive() bool
	Close() error
}
