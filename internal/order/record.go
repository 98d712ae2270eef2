// Package order tracks every in-flight order through its lifecycle: the
// Record state machine, the concurrent Store, and the submission Pipeline.
package order

import (
	"time"

	"futures-core/internal/strategy"
	"futures-core/pkg/db"
	"futures-core/pkg/exchanges/common"
)

// Record is the local view of a single order, created at submission time
// and mutated only by the account-stream reconciliation path afterwards
// (except for the Failed flag set on dispatch errors).
type Record struct {
	ClientID        string
	Symbol          string
	Side            common.Side
	Type            common.OrderType
	Quantity        float64
	Price           float64
	StopPrice       float64
	CallbackRate    float64
	ActivationPrice float64
	Status          common.OrderStatus
	Effect          strategy.DirectionEffect
	SubmittedAt     time.Time
	// Failed marks a dispatch that never reached the exchange; distinct
	// from an exchange-side REJECTED and terminal for the record.
	Failed bool

	AvgFillPrice float64
	ExecutedQty  float64
}

// Open reports whether the order can still receive fills.
func (r *Record) Open() bool {
	return !r.Failed && !r.Status.Terminal()
}

// Filled reports whether the record carries any executed quantity that
// counts toward realized profit/loss.
func (r *Record) Filled() bool {
	return !r.Failed && (r.Status == common.StatusFilled || r.Status == common.StatusPartiallyFilled)
}

func (r Record) toModel() db.Order {
	return db.Order{
		ClientID:        r.ClientID,
		Symbol:          r.Symbol,
		Side:            string(r.Side),
		Type:            string(r.Type),
		Qty:             r.Quantity,
		Price:           r.Price,
		StopPrice:       r.StopPrice,
		CallbackRate:    r.CallbackRate,
		ActivationPrice: r.ActivationPrice,
		Status:          string(r.Status),
		DirectionEffect: string(r.Effect),
		Failed:          r.Failed,
		AvgFillPrice:    r.AvgFillPrice,
		ExecutedQty:     r.ExecutedQty,
		SubmittedAt:     r.SubmittedAt,
	}
}

func fromModel(o db.Order) Record {
	return Record{
		ClientID:        o.ClientID,
		Symbol:          o.Symbol,
		Side:            common.Side(o.Side),
		Type:            common.OrderType(o.Type),
		Quantity:        o.Qty,
		Price:           o.Price,
		StopPrice:       o.StopPrice,
		CallbackRate:    o.CallbackRate,
		ActivationPrice: o.ActivationPrice,
		Status:          common.OrderStatus(o.Status),
		Effect:          strategy.DirectionEffect(o.DirectionEffect),
		SubmittedAt:     o.SubmittedAt,
		Failed:          o.Failed,
		AvgFillPrice:    o.AvgFillPrice,
		ExecutedQty:     o.ExecutedQty,
	}
}
