package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"futures-core/internal/events"
	"futures-core/internal/strategy"
	"futures-core/pkg/exchanges/common"
	"futures-core/pkg/numeric"
)

// ErrInvalidSignal reports a signal missing a field its order type
// requires; the signal never reaches the exchange.
var ErrInvalidSignal = errors.New("order: invalid signal")

// Dispatcher sends a prepared order to the exchange.
type Dispatcher interface {
	SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error)
}

// Pipeline turns strategy signals into tracked exchange orders: validate,
// format numerics to the symbol's precision, record as NEW, dispatch.
type Pipeline struct {
	store   *Store
	gateway Dispatcher
	bus     *events.Bus
	symbol  string
	filters common.SymbolFilters

	// DispatchTimeout bounds a single submit call against the exchange.
	DispatchTimeout time.Duration
}

func NewPipeline(store *Store, gateway Dispatcher, bus *events.Bus, symbol string, filters common.SymbolFilters) *Pipeline {
	return &Pipeline{
		store:           store,
		gateway:         gateway,
		bus:             bus,
		symbol:          symbol,
		filters:         filters,
		DispatchTimeout: 10 * time.Second,
	}
}

// Submit validates and dispatches one signal. The record is created in
// state NEW before the network call so a crash mid-dispatch still leaves
// a row to reconcile against; a dispatch error marks it failed.
func (p *Pipeline) Submit(ctx context.Context, sig strategy.Signal) (Record, error) {
	if err := validate(sig); err != nil {
		return Record{}, err
	}

	req, err := p.buildRequest(sig)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ClientID:        req.ClientID,
		Symbol:          p.symbol,
		Side:            sig.Side,
		Type:            sig.Type,
		Quantity:        sig.Quantity,
		Price:           sig.Price,
		StopPrice:       sig.StopPrice,
		CallbackRate:    sig.CallbackRate,
		ActivationPrice: sig.ActivationPrice,
		Status:          common.StatusNew,
		Effect:          sig.Effect,
		SubmittedAt:     time.Now().UTC(),
	}
	if err := p.store.Create(ctx, rec); err != nil {
		return Record{}, err
	}

	dctx, cancel := context.WithTimeout(ctx, p.DispatchTimeout)
	defer cancel()
	res, err := p.gateway.SubmitOrder(dctx, req)
	if err != nil {
		if ferr := p.store.MarkFailed(ctx, rec.ClientID); ferr != nil {
			log.Printf("order: mark failed %s: %v", rec.ClientID, ferr)
		}
		rec.Failed = true
		if p.bus != nil {
			p.bus.Publish(events.EventOrderFailed, rec)
		}
		return rec, fmt.Errorf("submit %s %s: %w", sig.Side, sig.Type, err)
	}

	if res.Status != "" && res.Status != common.StatusNew {
		// Some acks already carry a final status (e.g. MARKET fills on
		// the ack path); the stream remains the source of truth, this
		// just logs the early signal.
		log.Printf("order: %s acked with status %s", rec.ClientID, res.Status)
	}
	if p.bus != nil {
		p.bus.Publish(events.EventOrderUpdate, rec)
	}
	return rec, nil
}

func (p *Pipeline) buildRequest(sig strategy.Signal) (common.OrderRequest, error) {
	req := common.OrderRequest{
		Symbol:       p.symbol,
		Side:         sig.Side,
		Type:         sig.Type,
		CallbackRate: sig.CallbackRate,
		ReduceOnly:   sig.ReduceOnly,
		ClientID:     uuid.NewString(),
	}

	var err error
	if sig.Quantity > 0 {
		if req.Quantity, err = numeric.Format(sig.Quantity, p.filters.QtyPrecision); err != nil {
			return req, fmt.Errorf("format quantity: %w", err)
		}
	}
	if sig.Price > 0 {
		if req.Price, err = numeric.Format(sig.Price, p.filters.PricePrecision); err != nil {
			return req, fmt.Errorf("format price: %w", err)
		}
	}
	if sig.StopPrice > 0 {
		if req.StopPrice, err = numeric.Format(sig.StopPrice, p.filters.PricePrecision); err != nil {
			return req, fmt.Errorf("format stop price: %w", err)
		}
	}
	if sig.ActivationPrice > 0 {
		if req.ActivationPrice, err = numeric.Format(sig.ActivationPrice, p.filters.PricePrecision); err != nil {
			return req, fmt.Errorf("format activation price: %w", err)
		}
	}
	if sig.Type == common.OrderTypeLimit {
		req.TimeInForce = common.TIFGTC
	}
	return req, nil
}

// validate enforces the per-type mandatory fields before any formatting
// or network work happens.
func validate(sig strategy.Signal) error {
	if sig.Side != common.SideBuy && sig.Side != common.SideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, sig.Side)
	}
	switch sig.Type {
	case common.OrderTypeLimit:
		if sig.Quantity <= 0 || sig.Price <= 0 {
			return fmt.Errorf("%w: LIMIT requires quantity and price", ErrInvalidSignal)
		}
	case common.OrderTypeMarket:
		if sig.Quantity <= 0 {
			return fmt.Errorf("%w: MARKET requires quantity", ErrInvalidSignal)
		}
	case common.OrderTypeStop, common.OrderTypeTakeProfit:
		if sig.Quantity <= 0 || sig.Price <= 0 || sig.StopPrice <= 0 {
			return fmt.Errorf("%w: %s requires quantity, price and stop price", ErrInvalidSignal, sig.Type)
		}
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		if sig.StopPrice <= 0 {
			return fmt.Errorf("%w: %s requires stop price", ErrInvalidSignal, sig.Type)
		}
	case common.OrderTypeTrailingStop:
		if sig.CallbackRate <= 0 {
			return fmt.Errorf("%w: TRAILING_STOP_MARKET requires callback rate", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidSignal, sig.Type)
	}
	return nil
}
