package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Trading TradingConfig `yaml:"trading"`
	Signals SignalsConfig `yaml:"signals"`
	Exits   ExitsConfig   `yaml:"exits"`
	Risk    RiskConfig    `yaml:"risk"`
	Markets MarketsConfig `yaml:"markets"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// DaemonConfig controls the supervisor loop.
type DaemonConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	CycleTimeoutSeconds int     `yaml:"cycle_timeout_seconds"`
	MaxRestarts         int     `yaml:"max_restarts"`
	RestartDelaySeconds float64 `yaml:"restart_delay_seconds"`
	PIDFile             string  `yaml:"pid_file"`
}

// TradingConfig controls mode, capital and sizing caps.
type TradingConfig struct {
	Mode                 string  `yaml:"mode"` // paper | live
	InitialCapital       float64 `yaml:"initial_capital"`
	KellyFraction        float64 `yaml:"kelly_fraction"`
	MaxPositionFraction  float64 `yaml:"max_position_fraction"`
	MaxPositionPerMarket float64 `yaml:"max_position_per_market"` // dollars
	MaxClusterFraction   float64 `yaml:"max_cluster_fraction"`
	MinPositionSize      float64 `yaml:"min_position_size"`
}

// SignalsConfig controls signal thresholds.
type SignalsConfig struct {
	MinFee               float64 `yaml:"min_fee"`
	SafetyMargin         float64 `yaml:"safety_margin"`
	SignalTTLSeconds     int     `yaml:"signal_ttl_seconds"`
	MaxPriceDrift        float64 `yaml:"max_price_drift"`
	RebalancingMinProfit float64 `yaml:"rebalancing_min_profit"`
}

// ExitsConfig is the position exit policy.
type ExitsConfig struct {
	TakeProfitPct   float64    `yaml:"take_profit_pct"`
	StopLossPct     float64    `yaml:"stop_loss_pct"`
	TrailingStopPct float64    `yaml:"trailing_stop_pct"`
	TrailingEnabled bool       `yaml:"trailing_enabled"`
	MinHoldSeconds  int        `yaml:"min_hold_seconds"`
	Tiers           []TierSpec `yaml:"tiers"`
}

// TierSpec is a (profit level, close fraction) tier in the config file.
type TierSpec struct {
	Level    float64 `yaml:"level"`
	Fraction float64 `yaml:"fraction"`
}

// RiskConfig controls portfolio-level entry gates.
type RiskConfig struct {
	DailyLossStopPct float64 `yaml:"daily_loss_stop_pct"`
	DrawdownWarning  float64 `yaml:"drawdown_warning"`
	DrawdownReduce   float64 `yaml:"drawdown_reduce"`
	DrawdownStop     float64 `yaml:"drawdown_stop"`
}

// MarketsConfig declares the ticker universe and the constraints file.
type MarketsConfig struct {
	Tickers         []string `yaml:"tickers"`
	ConstraintsFile string   `yaml:"constraints_file"`
}

// APIConfig contains the exchange API endpoint and credentials.
// The key comes from the environment, never the YAML file.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

// StorageConfig controls snapshot persistence.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Environment
// variables override YAML values for the keys they correspond to.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// CycleInterval returns the cycle cadence as a time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Daemon.IntervalSeconds) * time.Second
}

// CycleTimeout bounds one cycle's external calls.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.Daemon.CycleTimeoutSeconds) * time.Second
}

// RestartDelay is the pause between restart attempts.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Daemon.RestartDelaySeconds * float64(time.Second))
}

// MinHold is the minimum holding period before exit rules apply.
func (c *Config) MinHold() time.Duration {
	return time.Duration(c.Exits.MinHoldSeconds) * time.Second
}

// SignalTTL is the signal validity window.
func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.Signals.SignalTTLSeconds) * time.Second
}

// Paper reports whether the daemon runs without real orders.
func (c *Config) Paper() bool { return c.Trading.Mode != "live" }

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KALSHI_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Daemon.IntervalSeconds <= 0 {
		cfg.Daemon.IntervalSeconds = 30
	}
	if cfg.Daemon.CycleTimeoutSeconds <= 0 {
		cfg.Daemon.CycleTimeoutSeconds = 20
	}
	if cfg.Daemon.MaxRestarts <= 0 {
		cfg.Daemon.MaxRestarts = 10
	}
	if cfg.Daemon.RestartDelaySeconds <= 0 {
		cfg.Daemon.RestartDelaySeconds = 30
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = defaultPIDFile()
	}

	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.InitialCapital <= 0 {
		cfg.Trading.InitialCapital = 10000
	}
	if cfg.Trading.KellyFraction <= 0 {
		cfg.Trading.KellyFraction = 0.25
	}
	if cfg.Trading.MaxPositionFraction <= 0 {
		cfg.Trading.MaxPositionFraction = 0.05
	}
	if cfg.Trading.MaxPositionPerMarket <= 0 {
		cfg.Trading.MaxPositionPerMarket = 500
	}
	if cfg.Trading.MaxClusterFraction <= 0 {
		cfg.Trading.MaxClusterFraction = 0.10
	}
	if cfg.Trading.MinPositionSize <= 0 {
		cfg.Trading.MinPositionSize = 10
	}

	if cfg.Signals.MinFee <= 0 {
		cfg.Signals.MinFee = 0.01
	}
	if cfg.Signals.SafetyMargin <= 0 {
		cfg.Signals.SafetyMargin = 0.01
	}
	if cfg.Signals.SignalTTLSeconds <= 0 {
		cfg.Signals.SignalTTLSeconds = 300
	}
	if cfg.Signals.MaxPriceDrift <= 0 {
		cfg.Signals.MaxPriceDrift = 0.02
	}
	if cfg.Signals.RebalancingMinProfit <= 0 {
		cfg.Signals.RebalancingMinProfit = 0.01
	}

	if cfg.Exits.TakeProfitPct <= 0 {
		cfg.Exits.TakeProfitPct = 0.15
	}
	if cfg.Exits.StopLossPct <= 0 {
		cfg.Exits.StopLossPct = 0.10
	}
	if cfg.Exits.TrailingStopPct <= 0 {
		cfg.Exits.TrailingStopPct = 0.05
	}
	if cfg.Exits.MinHoldSeconds <= 0 {
		cfg.Exits.MinHoldSeconds = 60
	}
	if len(cfg.Exits.Tiers) == 0 {
		cfg.Exits.Tiers = []TierSpec{
			{Level: 0.10, Fraction: 0.25},
			{Level: 0.20, Fraction: 0.50},
			{Level: 0.30, Fraction: 0.75},
		}
	}

	if cfg.Risk.DailyLossStopPct <= 0 {
		cfg.Risk.DailyLossStopPct = 0.05
	}
	if cfg.Risk.DrawdownWarning <= 0 {
		cfg.Risk.DrawdownWarning = 0.10
	}
	if cfg.Risk.DrawdownReduce <= 0 {
		cfg.Risk.DrawdownReduce = 0.20
	}
	if cfg.Risk.DrawdownStop <= 0 {
		cfg.Risk.DrawdownStop = 0.30
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.Markets.ConstraintsFile == "" {
		cfg.Markets.ConstraintsFile = "config/constraints.yaml"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshibot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Trading.Mode != "paper" && cfg.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be paper or live, got %q", cfg.Trading.Mode)
	}
	if len(cfg.Markets.Tickers) == 0 {
		return fmt.Errorf("markets.tickers must list at least one ticker")
	}
	for _, t := range cfg.Exits.Tiers {
		if t.Level <= 0 || t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("invalid tier (level=%v fraction=%v)", t.Level, t.Fraction)
		}
	}
	return nil
}

func defaultPIDFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kalshibot.pid"
	}
	return home + "/.kalshibot.pid"
}
