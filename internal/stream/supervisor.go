// Package stream owns the lifetime of the exchange websocket connections:
// it opens them at startup, probes liveness, renews the account session
// token, and recreates whatever drops.
package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"futures-core/internal/events"
	"futures-core/pkg/exchanges/binance/futures"
	"futures-core/pkg/exchanges/common"
)

// MarketOpener establishes the kline stream.
type MarketOpener interface {
	OpenKlineStream(ctx context.Context, symbol, interval string, onEvent func(common.Kline)) (common.Handle, error)
}

// AccountOpener establishes and maintains the user-data stream.
type AccountOpener interface {
	OpenAccountStream(ctx context.Context, onEvent func(common.AccountEvent)) (common.Handle, error)
	RenewAccountStream(ctx context.Context, handle common.Handle) error
}

// Config tunes the supervision cadence; zero values pick defaults.
type Config struct {
	Symbol        string
	Interval      string
	ProbeInterval time.Duration // liveness checks, default 10s
	RenewInterval time.Duration // listen key keepalive, default futures.KeepAliveInterval
}

// Supervisor keeps one market and one account stream alive. Either stream
// failing to open at startup fails the whole session; after that, drops
// are recreated in place without touching the order store.
type Supervisor struct {
	market  MarketOpener
	account AccountOpener
	bus     *events.Bus
	cfg     Config

	onKline   func(common.Kline)
	onAccount func(common.AccountEvent)

	mu            sync.Mutex
	marketHandle  common.Handle
	accountHandle common.Handle

	renewCh chan struct{}
	done    chan struct{}
	stop    sync.Once
}

func NewSupervisor(market MarketOpener, account AccountOpener, bus *events.Bus, cfg Config,
	onKline func(common.Kline), onAccount func(common.AccountEvent)) *Supervisor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = futures.KeepAliveInterval
	}
	return &Supervisor{
		market:    market,
		account:   account,
		bus:       bus,
		cfg:       cfg,
		onKline:   onKline,
		onAccount: onAccount,
		renewCh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start opens both streams and launches the supervision loop. An error
// from either stream aborts startup; a trading session without both feeds
// is not worth running.
func (s *Supervisor) Start(ctx context.Context) error {
	mh, err := s.market.OpenKlineStream(ctx, s.cfg.Symbol, s.cfg.Interval, s.onKline)
	if err != nil {
		return fmt.Errorf("open market stream: %w", err)
	}
	ah, err := s.account.OpenAccountStream(ctx, s.onAccount)
	if err != nil {
		_ = mh.Close()
		return fmt.Errorf("open account stream: %w", err)
	}

	s.mu.Lock()
	s.marketHandle, s.accountHandle = mh, ah
	s.mu.Unlock()

	go s.supervise(ctx)
	return nil
}

// RequestAccountRenewal schedules an immediate account stream recreation;
// called from the feed when the exchange announces listen-key expiry.
// Non-blocking: a pending request is enough.
func (s *Supervisor) RequestAccountRenewal() {
	select {
	case s.renewCh <- struct{}{}:
	default:
	}
}

// Health reports the liveness of both streams.
func (s *Supervisor) Health() (market, account bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marketHandle != nil {
		market = s.marketHandle.Alive()
	}
	if s.accountHandle != nil {
		account = s.accountHandle.Alive()
	}
	return market, account
}

// Stop closes both streams and halts the supervision loop.
func (s *Supervisor) Stop() {
	s.stop.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.marketHandle != nil {
			_ = s.marketHandle.Close()
		}
		if s.accountHandle != nil {
			_ = s.accountHandle.Close()
		}
	})
}

func (s *Supervisor) supervise(ctx context.Context) {
	probe := time.NewTicker(s.cfg.ProbeInterval)
	renew := time.NewTicker(s.cfg.RenewInterval)
	defer probe.Stop()
	defer renew.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-probe.C:
			s.probeStreams(ctx)
		case <-renew.C:
			s.keepAlive(ctx)
		case <-s.renewCh:
			s.recreateAccount(ctx)
		}
	}
}

func (s *Supervisor) probeStreams(ctx context.Context) {
	s.mu.Lock()
	marketDead := s.marketHandle == nil || !s.marketHandle.Alive()
	accountDead := s.accountHandle == nil || !s.accountHandle.Alive()
	s.mu.Unlock()

	if marketDead {
		s.recreateMarket(ctx)
	}
	if accountDead {
		s.recreateAccount(ctx)
	}
}

func (s *Supervisor) keepAlive(ctx context.Context) {
	s.mu.Lock()
	h := s.accountHandle
	s.mu.Unlock()
	if h == nil {
		return
	}
	if err := s.account.RenewAccountStream(ctx, h); err != nil {
		log.Printf("stream: listen key keepalive failed: %v", err)
		// The key may already be gone; recreating gets a fresh one.
		s.recreateAccount(ctx)
	}
}

func (s *Supervisor) recreateMarket(ctx context.Context) {
	log.Printf("stream: recreating market stream %s@%s", s.cfg.Symbol, s.cfg.Interval)
	h, err := s.market.OpenKlineStream(ctx, s.cfg.Symbol, s.cfg.Interval, s.onKline)
	if err != nil {
		log.Printf("stream: market stream recreation failed: %v", err)
		s.publishHealth("market stream down")
		return
	}
	s.mu.Lock()
	if s.marketHandle != nil {
		_ = s.marketHandle.Close()
	}
	s.marketHandle = h
	s.mu.Unlock()
	s.publishHealth("market stream recreated")
}

func (s *Supervisor) recreateAccount(ctx context.Context) {
	log.Print("stream: recreating account stream")
	h, err := s.account.OpenAccountStream(ctx, s.onAccount)
	if err != nil {
		log.Printf("stream: account stream recreation failed: %v", err)
		s.publishHealth("account stream down")
		return
	}
	s.mu.Lock()
	if s.accountHandle != nil {
		_ = s.accountHandle.Close()
	}
	s.accountHandle = h
	s.mu.Unlock()
	s.publishHealth("account stream recreated")
}

func (s *Supervisor) publishHealth(msg string) {
	if s.bus != nil {
		s.bus.Publish(events.EventStreamHealth, msg)
	}
}
