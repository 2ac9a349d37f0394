// Package config loads the runtime configuration. Values come from the
// environment (with a .env file loaded first if present), optionally
// overlaid by a YAML file for deployments that prefer one.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/risk"
)

type Config struct {
	// safety switches; the defaults keep a fresh install inert
	DryRun        bool `env:"DRY_RUN" envDefault:"true"`
	LiveTrading   bool `env:"LIVE_TRADING" envDefault:"false"`
	AllowDualMode bool `env:"ALLOW_DUAL_MODE" envDefault:"false"`

	RequestedMode string `env:"EXECUTION_MODE" envDefault:"PAPER"`
	TradingMode   string `env:"TRADING_MODE" envDefault:"CONSERVATIVE"`
	RiskMode      string `env:"RISK_MODE" envDefault:"BALANCED"`

	PollIntervalSeconds  int             `env:"POLL_INTERVAL_SECONDS" envDefault:"30"`
	MaxContractsPerTrade int             `env:"MAX_CONTRACTS_PER_TRADE" envDefault:"10"`
	MaxOpenPositions     int             `env:"MAX_OPEN_POSITIONS" envDefault:"20"`
	MaxDailyRiskPct      decimal.Decimal `env:"MAX_DAILY_RISK_PCT" envDefault:"0.10"`
	DefaultSizePct       decimal.Decimal `env:"DEFAULT_SIZE_PCT" envDefault:"0.01"`
	MinDTE               int             `env:"MIN_DTE" envDefault:"1"`
	Allow0DTESPX         bool            `env:"ALLOW_0DTE_SPX" envDefault:"false"`

	ReviewRequired bool   `env:"REVIEW_REQUIRED" envDefault:"false"`
	AlertsFile     string `env:"ALERTS_FILE" envDefault:"data/alerts.txt"`
	DataDir        string `env:"DATA_DIR" envDefault:"data"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:""`

	// paper and historical runs have no broker to ask for equity
	PaperEquityUSD decimal.Decimal `env:"PAPER_EQUITY_USD" envDefault:"100000"`

	PrimaryLiveBroker string `env:"PRIMARY_LIVE_BROKER" envDefault:"tradier"`
	AlpacaAPIKey      string `env:"ALPACA_API_KEY"`
	AlpacaAPISecret   string `env:"ALPACA_API_SECRET"`
	AlpacaPaper       bool   `env:"ALPACA_PAPER" envDefault:"true"`
	TradierToken      string `env:"TRADIER_TOKEN"`
	TradierAccountID  string `env:"TRADIER_ACCOUNT_ID"`
	TradierBaseURL    string `env:"TRADIER_BASE_URL"`
}

// Load reads .env, then the environment, then an optional YAML overlay.
// YAML values win over the environment so a deployment file is
// authoritative when present.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if yamlPath != "" {
		if err := cfg.applyYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlay mirrors Config for the YAML file. Fields are pointers so only
// keys present in the file override the environment; decimals are read
// as strings because yaml.v3 has no decoder for decimal.Decimal.
type overlay struct {
	DryRun        *bool `yaml:"dry_run"`
	LiveTrading   *bool `yaml:"live_trading"`
	AllowDualMode *bool `yaml:"allow_dual_mode"`

	RequestedMode *string `yaml:"execution_mode"`
	TradingMode   *string `yaml:"trading_mode"`
	RiskMode      *string `yaml:"risk_mode"`

	PollIntervalSeconds  *int    `yaml:"poll_interval_seconds"`
	MaxContractsPerTrade *int    `yaml:"max_contracts_per_trade"`
	MaxOpenPositions     *int    `yaml:"max_open_positions"`
	MaxDailyRiskPct      *string `yaml:"max_daily_risk_pct"`
	DefaultSizePct       *string `yaml:"default_size_pct"`
	MinDTE               *int    `yaml:"min_dte"`
	Allow0DTESPX         *bool   `yaml:"allow_0dte_spx"`

	ReviewRequired *bool   `yaml:"review_required"`
	AlertsFile     *string `yaml:"alerts_file"`
	DataDir        *string `yaml:"data_dir"`
	LogLevel       *string `yaml:"log_level"`
	MetricsAddr    *string `yaml:"metrics_addr"`

	PaperEquityUSD *string `yaml:"paper_equity_usd"`

	PrimaryLiveBroker *string `yaml:"primary_live_broker"`
	AlpacaAPIKey      *string `yaml:"alpaca_api_key"`
	AlpacaAPISecret   *string `yaml:"alpaca_api_secret"`
	AlpacaPaper       *bool   `yaml:"alpaca_paper"`
	TradierToken      *string `yaml:"tradier_token"`
	TradierAccountID  *string `yaml:"tradier_account_id"`
	TradierBaseURL    *string `yaml:"tradier_base_url"`
}

func (c *Config) applyYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDecimal := func(dst *decimal.Decimal, src *string, key string) error {
		if src == nil {
			return nil
		}
		d, err := decimal.NewFromString(*src)
		if err != nil {
			return fmt.Errorf("config file %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setBool(&c.DryRun, o.DryRun)
	setBool(&c.LiveTrading, o.LiveTrading)
	setBool(&c.AllowDualMode, o.AllowDualMode)
	setString(&c.RequestedMode, o.RequestedMode)
	setString(&c.TradingMode, o.TradingMode)
	setString(&c.RiskMode, o.RiskMode)
	setInt(&c.PollIntervalSeconds, o.PollIntervalSeconds)
	setInt(&c.MaxContractsPerTrade, o.MaxContractsPerTrade)
	setInt(&c.MaxOpenPositions, o.MaxOpenPositions)
	if err := setDecimal(&c.MaxDailyRiskPct, o.MaxDailyRiskPct, "max_daily_risk_pct"); err != nil {
		return err
	}
	if err := setDecimal(&c.DefaultSizePct, o.DefaultSizePct, "default_size_pct"); err != nil {
		return err
	}
	setInt(&c.MinDTE, o.MinDTE)
	setBool(&c.Allow0DTESPX, o.Allow0DTESPX)
	setBool(&c.ReviewRequired, o.ReviewRequired)
	setString(&c.AlertsFile, o.AlertsFile)
	setString(&c.DataDir, o.DataDir)
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.MetricsAddr, o.MetricsAddr)
	if err := setDecimal(&c.PaperEquityUSD, o.PaperEquityUSD, "paper_equity_usd"); err != nil {
		return err
	}
	setString(&c.PrimaryLiveBroker, o.PrimaryLiveBroker)
	setString(&c.AlpacaAPIKey, o.AlpacaAPIKey)
	setString(&c.AlpacaAPISecret, o.AlpacaAPISecret)
	setBool(&c.AlpacaPaper, o.AlpacaPaper)
	setString(&c.TradierToken, o.TradierToken)
	setString(&c.TradierAccountID, o.TradierAccountID)
	setString(&c.TradierBaseURL, o.TradierBaseURL)
	return nil
}

func (c *Config) Validate() error {
	switch intent.Mode(c.RequestedMode) {
	case intent.Paper, intent.Live, intent.Dual, intent.Historical:
	default:
		return fmt.Errorf("invalid EXECUTION_MODE %q", c.RequestedMode)
	}
	switch risk.Mode(c.RiskMode) {
	case risk.Conservative, risk.Balanced, risk.Aggressive:
	default:
		return fmt.Errorf("invalid RISK_MODE %q", c.RiskMode)
	}
	switch risk.Profile(c.TradingMode) {
	case risk.ProfileConservative, risk.ProfileStandard:
	default:
		return fmt.Errorf("invalid TRADING_MODE %q", c.TradingMode)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.MaxContractsPerTrade <= 0 {
		return fmt.Errorf("MAX_CONTRACTS_PER_TRADE must be positive, got %d", c.MaxContractsPerTrade)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("MAX_OPEN_POSITIONS must be positive, got %d", c.MaxOpenPositions)
	}
	if c.MaxDailyRiskPct.LessThanOrEqual(decimal.Zero) || c.MaxDailyRiskPct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("MAX_DAILY_RISK_PCT must be in (0,1], got %s", c.MaxDailyRiskPct)
	}
	if c.DefaultSizePct.LessThanOrEqual(decimal.Zero) || c.DefaultSizePct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("DEFAULT_SIZE_PCT must be in (0,1], got %s", c.DefaultSizePct)
	}
	switch c.PrimaryLiveBroker {
	case "tradier", "alpaca":
	default:
		return fmt.Errorf("invalid PRIMARY_LIVE_BROKER %q", c.PrimaryLiveBroker)
	}
	return nil
}

// SafetyFlags extracts the mode-gating switches.
func (c *Config) SafetyFlags() (liveTrading, dryRun, allowDual bool) {
	return c.LiveTrading, c.DryRun, c.AllowDualMode
}

// EffectiveRiskMode resolves the risk mode against the trading profile.
func (c *Config) EffectiveRiskMode() risk.Mode {
	return risk.EffectiveMode(risk.Mode(c.RiskMode), risk.Profile(c.TradingMode))
}

// Caps builds the risk caps from the configured limits.
func (c *Config) Caps() risk.Caps {
	return risk.Caps{
		MaxContractsPerTrade: c.MaxContractsPerTrade,
		MaxOpenPositions:     c.MaxOpenPositions,
		MaxDailyRiskPct:      c.MaxDailyRiskPct,
		DefaultSizePct:       c.DefaultSizePct,
	}
}
