package feed

import (
	"context"
	"errors"
	"log"

	"futures-core/internal/events"
	"futures-core/internal/order"
	"futures-core/pkg/exchanges/common"
)

// BalanceSink receives signed wallet deltas from ACCOUNT_UPDATE events.
type BalanceSink interface {
	ApplyDelta(asset string, delta float64)
}

// RenewSignaler asks the stream supervisor for a fresh account stream
// when the exchange announces listen-key expiry.
type RenewSignaler interface {
	RequestAccountRenewal()
}

// AccountFeed routes normalized user-data events to the order store, the
// balance manager and the event bus. It runs on the account stream's read
// goroutine, so everything it calls must be quick and non-blocking.
type AccountFeed struct {
	Store      *order.Store
	Balance    BalanceSink
	Bus        *events.Bus
	Supervisor RenewSignaler
}

// OnEvent is wired as the account stream callback.
func (f *AccountFeed) OnEvent(ev common.AccountEvent) {
	switch ev.Kind {
	case common.EventKindExecutionReport:
		if ev.Report == nil {
			return
		}
		f.handleExecution(*ev.Report)

	case common.EventKindBalanceUpdate:
		for _, d := range ev.Balances {
			if f.Balance != nil {
				f.Balance.ApplyDelta(d.Asset, d.Delta)
			}
			if f.Bus != nil {
				f.Bus.Publish(events.EventBalanceChange, d)
			}
		}

	case common.EventKindListenKeyExpired:
		log.Print("feed: listen key expired, requesting account stream renewal")
		if f.Supervisor != nil {
			f.Supervisor.RequestAccountRenewal()
		}
		if f.Bus != nil {
			f.Bus.Publish(events.EventStreamHealth, "account stream renewal requested")
		}

	case common.EventKindMarginCall:
		log.Print("feed: MARGIN CALL received from exchange")
		if f.Bus != nil {
			f.Bus.Publish(events.EventRiskAlert, ev)
		}
	}
}

func (f *AccountFeed) handleExecution(rep common.ExecutionReport) {
	rec, err := f.Store.ApplyExecution(context.Background(), rep)
	if errors.Is(err, order.ErrNotFound) {
		// Manual orders or other sessions trading the same account.
		log.Printf("feed: execution report for unknown order %s (%s), ignoring", rep.ClientID, rep.Status)
		return
	}
	if err != nil {
		log.Printf("feed: apply execution %s: %v", rep.ClientID, err)
		return
	}
	if f.Bus == nil {
		return
	}
	f.Bus.Publish(events.EventOrderUpdate, rec)
	if rep.Status == common.StatusFilled {
		f.Bus.Publish(events.EventOrderFilled, rec)
	}
}
