package common

// AccountEventKind classifies user-data stream events after wire decoding.
type AccountEventKind string

const (
	EventKindExecutionReport  AccountEventKind = "executionReport"
	EventKindBalanceUpdate    AccountEventKind = "balanceUpdate"
	EventKindListenKeyExpired AccountEventKind = "listenKeyExpired"
	EventKindMarginCall       AccountEventKind = "marginCall"
)

// ExecutionReport is a normalized order status update from the user-data
// stream. ClientID correlates it back to the locally tracked order.
type ExecutionReport struct {
	ClientID    string
	Symbol      string
	Side        Side
	Type        OrderType
	Status      OrderStatus
	LastPrice   float64
	LastQty     float64
	AvgPrice    float64
	ExecutedQty float64
	CumQuote    float64
	EventTime   int64
}

// FillPrice returns the best available price for the execution: the last
// fill price, falling back to cumulative quote / cumulative quantity.
func (r ExecutionReport) FillPrice() float64 {
	if r.LastPrice > 0 {
		return r.LastPrice
	}
	if r.ExecutedQty > 0 {
		return r.CumQuote / r.ExecutedQty
	}
	return 0
}

// BalanceDelta is a signed change to one asset's wallet balance.
type BalanceDelta struct {
	Asset string
	Delta float64
}

// AccountEvent is the normalized union delivered by the account stream.
type AccountEvent struct {
	Kind     AccountEventKind
	Report   *ExecutionReport
	Balances []BalanceDelta
	Time     int64
}
