package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"futures-core/internal/api"
	"futures-core/internal/balance"
	"futures-core/internal/engine"
	"futures-core/internal/events"
	"futures-core/internal/feed"
	"futures-core/internal/order"
	"futures-core/internal/strategy"
	"futures-core/internal/stream"
	"futures-core/pkg/config"
	"futures-core/pkg/db"
	"futures-core/pkg/exchanges/binance/futures"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("profile load failed: %v", err)
	}
	log.Printf("starting futures-core: %s@%s testnet=%v", profile.Symbol, profile.Interval, cfg.BinanceTestnet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	store := order.NewStore(database)
	if err := store.Load(ctx); err != nil {
		log.Fatalf("order store load failed: %v", err)
	}

	client := futures.NewClient(futures.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})

	filters, err := client.SymbolFilters(ctx, profile.Symbol)
	if err != nil {
		log.Fatalf("fetch symbol filters: %v", err)
	}
	log.Printf("symbol filters: price=%d qty=%d tick=%v",
		filters.PricePrecision, filters.QtyPrecision, filters.TickSize)

	balances := balance.NewManager(client)
	if err := balances.Sync(ctx); err != nil {
		log.Fatalf("initial balance sync failed: %v", err)
	}
	balances.Start(ctx, profile.BalanceSyncInterval.Std())

	// The sizer closes over the engine, which does not exist yet; eng is
	// assigned before the control loop starts.
	var eng *engine.Engine
	sizer := func(leverage int) float64 {
		if eng == nil {
			return 0
		}
		return eng.Quantity(leverage)
	}
	strat := strategy.NewSMACross(
		profile.Strategy.FastPeriod,
		profile.Strategy.SlowPeriod,
		profile.Strategy.StopPct,
		profile.Leverage,
		sizer,
	)
	if history, err := client.Klines(ctx, profile.Symbol, profile.Interval, 200); err != nil {
		log.Printf("kline warmup failed, starting cold: %v", err)
	} else {
		strat.Warmup(history)
	}

	market := feed.NewMarketFeed(bus)
	account := &feed.AccountFeed{Store: store, Balance: balances, Bus: bus}

	supervisor := stream.NewSupervisor(client, client, bus, stream.Config{
		Symbol:        profile.Symbol,
		Interval:      profile.Interval,
		ProbeInterval: profile.Streams.ProbeInterval.Std(),
		RenewInterval: profile.Streams.RenewInterval.Std(),
	}, market.OnKline, account.OnEvent)
	account.Supervisor = supervisor

	if err := supervisor.Start(ctx); err != nil {
		log.Fatalf("stream startup failed: %v", err)
	}

	pipeline := order.NewPipeline(store, client, bus, profile.Symbol, filters)
	eng = engine.New(engine.Config{
		Symbol:        profile.Symbol,
		Leverage:      profile.Leverage,
		PollInterval:  profile.PollInterval.Std(),
		QuoteAsset:    profile.QuoteAsset,
		FlattenOnExit: profile.FlattenOnExit,
	}, strat, pipeline, store, market, balances, client, filters)
	eng.Start(ctx)

	var stopOnce sync.Once
	stopCh := make(chan struct{})
	requestStop := func() {
		stopOnce.Do(func() { close(stopCh) })
	}

	server := api.NewServer(bus, store, balances, eng, supervisor,
		cfg.JWTSecret, cfg.OperatorKey, requestStop)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Printf("api server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case <-stopCh:
		log.Print("stop requested via console, shutting down")
	}

	// Teardown order: stop both streams so no new data arrives, join the
	// control loop, then optionally flatten over REST inside Shutdown.
	supervisor.Stop()
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Printf("engine shutdown: %v", err)
	}
	cancel()
	log.Print("shutdown complete")
}
