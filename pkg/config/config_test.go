package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
symbol: BTCUSDT
interval: 5m
leverage: 10
poll_interval: 2s
flatten_on_exit: true
strategy:
  fast_period: 7
  slow_period: 25
  stop_pct: 0.02
streams:
  probe_interval: 15s
`)
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Symbol != "BTCUSDT" || p.Interval != "5m" || p.Leverage != 10 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.PollInterval.Std() != 2*time.Second {
		t.Fatalf("poll interval = %v", p.PollInterval)
	}
	if !p.FlattenOnExit {
		t.Fatal("flatten_on_exit not read")
	}
	if p.Strategy.SlowPeriod != 25 || p.Strategy.StopPct != 0.02 {
		t.Fatalf("strategy params: %+v", p.Strategy)
	}
	if p.Streams.ProbeInterval.Std() != 15*time.Second {
		t.Fatalf("probe interval = %v", p.Streams.ProbeInterval)
	}
}

func TestLoadProfileDefaults(t *testing.T) {
	path := writeProfile(t, "symbol: ETHUSDT\n")
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Interval != "1m" || p.Leverage != 1 || p.QuoteAsset != "USDT" || p.PollInterval.Std() != time.Second {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestLoadProfileMissingSymbol(t *testing.T) {
	path := writeProfile(t, "interval: 1m\n")
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("expected error for missing symbol")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("BINANCE_TESTNET", "true")
	t.Setenv("BINANCE_API_KEY", "k")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9999" || !cfg.BinanceTestnet || cfg.BinanceAPIKey != "k" {
		t.Fatalf("env not read: %+v", cfg)
	}
}
