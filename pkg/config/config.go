// Package config loads runtime settings: credentials and infrastructure
// from environment variables (optionally via .env), the trading profile
// from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the trading agent.
type Config struct {
	Port string

	// Binance USDT-M futures
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Database
	DBPath string

	// Auth
	JWTSecret   string
	OperatorKey string

	// Trading profile
	ProfilePath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		DBPath:           getEnv("DB_PATH", "./data/futures.db"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		OperatorKey:      os.Getenv("OPERATOR_KEY"),
		ProfilePath:      getEnv("PROFILE_PATH", "./profile.yaml"),
	}, nil
}

// Duration wraps time.Duration so YAML values like "30s" parse; yaml.v3
// has no native duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Profile describes one trading session; loaded from YAML so parameters
// can change without touching the environment.
type Profile struct {
	Symbol        string   `yaml:"symbol"`
	Interval      string   `yaml:"interval"`
	Leverage      int      `yaml:"leverage"`
	QuoteAsset    string   `yaml:"quote_asset"`
	PollInterval  Duration `yaml:"poll_interval"`
	FlattenOnExit bool     `yaml:"flatten_on_exit"`

	Strategy struct {
		FastPeriod int     `yaml:"fast_period"`
		SlowPeriod int     `yaml:"slow_period"`
		StopPct    float64 `yaml:"stop_pct"`
	} `yaml:"strategy"`

	Streams struct {
		ProbeInterval Duration `yaml:"probe_interval"`
		RenewInterval Duration `yaml:"renew_interval"`
	} `yaml:"streams"`

	BalanceSyncInterval Duration `yaml:"balance_sync_interval"`
}

// LoadProfile reads and validates the trading profile at path.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("profile: symbol is required")
	}
	if p.Interval == "" {
		p.Interval = "1m"
	}
	if p.Leverage <= 0 {
		p.Leverage = 1
	}
	if p.QuoteAsset == "" {
		p.QuoteAsset = "USDT"
	}
	if p.PollInterval <= 0 {
		p.PollInterval = Duration(time.Second)
	}
	return &p, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
