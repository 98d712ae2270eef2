package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventOrderUpdate   Event = "order.update"
	EventOrderFailed   Event = "order.failed"
	EventOrderFilled   Event = "order.filled"
	EventBalanceChange Event = "balance.change"
	EventStreamHealth  Event = "stream.health"
	EventRiskAlert     Event = "risk.alert"
)
