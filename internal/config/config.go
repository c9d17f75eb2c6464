package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Broker     BrokerConfig     `mapstructure:"broker"`

	Screener   ScreenerConfig   `mapstructure:"screener"`
	Bandit     BanditConfig     `mapstructure:"bandit"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	AutoTrader AutoTraderConfig `mapstructure:"auto_trader"`

	StrategyDefaults map[string]any `mapstructure:"strategy_defaults"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ScreenerScan  string `mapstructure:"screener_scan"`
	SignalCleanup string `mapstructure:"signal_cleanup"`
	FillReconcile string `mapstructure:"fill_reconcile"`
}

type MarketDataConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	StreamURL string        `mapstructure:"stream_url"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
}

type BrokerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	APIKeyEnv    string        `mapstructure:"api_key_env"`
	ReadRetries  int           `mapstructure:"read_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type ScreenerConfig struct {
	Universe     []string `mapstructure:"universe"`
	Timeframe    string   `mapstructure:"timeframe"`
	LookbackBars int      `mapstructure:"lookback_bars"`

	MinAvgDollarVolume  float64 `mapstructure:"min_avg_dollar_volume"`
	MinMomentumPct      float64 `mapstructure:"min_momentum_pct"`
	MaxMomentumPct      float64 `mapstructure:"max_momentum_pct"`
	MinATRPct           float64 `mapstructure:"min_atr_pct"`
	MaxATRPct           float64 `mapstructure:"max_atr_pct"`
	MaxSpreadBps        float64 `mapstructure:"max_spread_bps"`
	MaxDepthImbalance   float64 `mapstructure:"max_depth_imbalance"`
	QualityThreshold    float64 `mapstructure:"quality_threshold"`
	WeightLiquidity     float64 `mapstructure:"weight_liquidity"`
	WeightMomentum      float64 `mapstructure:"weight_momentum"`
	WeightVolatility    float64 `mapstructure:"weight_volatility"`
	WeightExecQuality   float64 `mapstructure:"weight_exec_quality"`
	MinBars             int     `mapstructure:"min_bars"`
	MaxConcurrentScans  int     `mapstructure:"max_concurrent_scans"`
	CandidateBatchLimit int     `mapstructure:"candidate_batch_limit"`
}

type BanditConfig struct {
	Seed               int64   `mapstructure:"seed"`
	LowVolGateFamilies string  `mapstructure:"low_vol_gate_families"`
	HighVIXThreshold   float64 `mapstructure:"high_vix_threshold"`

	// IndexSymbol is the broad-market proxy whose features classify the
	// selection context; VIXSymbol is optional and quoted for the VIX level.
	IndexSymbol         string `mapstructure:"index_symbol"`
	VIXSymbol           string `mapstructure:"vix_symbol"`
	ContextTimeframe    string `mapstructure:"context_timeframe"`
	ContextLookbackBars int    `mapstructure:"context_lookback_bars"`
}

type RiskConfig struct {
	RiskPerTradePct   float64 `mapstructure:"risk_per_trade_pct"`
	MaxPositionPct    float64 `mapstructure:"max_position_pct"`
	RiskRewardRatio   float64 `mapstructure:"risk_reward_ratio"`
	ATRMultiplier     float64 `mapstructure:"atr_multiplier"`
	PercentStop       float64 `mapstructure:"percent_stop"`
	MaxTradeNotional  float64 `mapstructure:"max_trade_notional"`
	DailyNotionalCap  float64 `mapstructure:"daily_notional_cap"`
	MarketOpenMinute  int     `mapstructure:"market_open_minute"`
	MarketCloseMinute int     `mapstructure:"market_close_minute"`
}

type BacktestConfig struct {
	Workers         int           `mapstructure:"workers"`
	ClaimInterval   time.Duration `mapstructure:"claim_interval"`
	SlippageBps     float64       `mapstructure:"slippage_bps"`
	TimeStopBars    int           `mapstructure:"time_stop_bars"`
	StartingCapital float64       `mapstructure:"starting_capital"`
}

type AutoTraderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ScanInterval  time.Duration `mapstructure:"scan_interval"`
	SignalMaxAge  time.Duration `mapstructure:"signal_max_age"`
	MaxPerScan    int           `mapstructure:"max_per_scan"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	DryRun        bool          `mapstructure:"dry_run"`
	// StaleOrderAge bounds how long a submitted order may sit unfilled at the
	// venue before reconciliation cancels it. Zero disables the cutoff.
	StaleOrderAge time.Duration `mapstructure:"stale_order_age"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.screener_scan", "@every 5m")
	v.SetDefault("cron.signal_cleanup", "@every 1h")
	v.SetDefault("cron.fill_reconcile", "@every 30s")

	v.SetDefault("market_data.base_url", "https://data.example-feed.com")
	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("market_data.stream_url", "")
	v.SetDefault("market_data.api_key_env", "TS_MARKET_DATA_KEY")
	v.SetDefault("broker.base_url", "https://broker.example.com")
	v.SetDefault("broker.timeout", "15s")
	v.SetDefault("broker.api_key_env", "TS_BROKER_KEY")
	v.SetDefault("broker.read_retries", 3)
	v.SetDefault("broker.retry_backoff", "500ms")

	v.SetDefault("screener.universe", []string{})
	v.SetDefault("screener.timeframe", "5m")
	v.SetDefault("screener.lookback_bars", 120)
	v.SetDefault("screener.min_avg_dollar_volume", 5_000_000)
	v.SetDefault("screener.min_momentum_pct", -15)
	v.SetDefault("screener.max_momentum_pct", 40)
	v.SetDefault("screener.min_atr_pct", 0.75)
	v.SetDefault("screener.max_atr_pct", 8.0)
	v.SetDefault("screener.max_spread_bps", 30)
	v.SetDefault("screener.max_depth_imbalance", 0.85)
	v.SetDefault("screener.quality_threshold", 0.45)
	v.SetDefault("screener.weight_liquidity", 0.3)
	v.SetDefault("screener.weight_momentum", 0.3)
	v.SetDefault("screener.weight_volatility", 0.2)
	v.SetDefault("screener.weight_exec_quality", 0.2)
	v.SetDefault("screener.min_bars", 30)
	v.SetDefault("screener.max_concurrent_scans", 8)
	v.SetDefault("screener.candidate_batch_limit", 500)

	v.SetDefault("bandit.seed", 0)
	v.SetDefault("bandit.low_vol_gate_families", "opening_range_breakout,momentum_breakout")
	v.SetDefault("bandit.high_vix_threshold", 30)
	v.SetDefault("bandit.index_symbol", "SPY")
	v.SetDefault("bandit.vix_symbol", "")
	v.SetDefault("bandit.context_timeframe", "5m")
	v.SetDefault("bandit.context_lookback_bars", 90)

	v.SetDefault("risk.risk_per_trade_pct", 0.01)
	v.SetDefault("risk.max_position_pct", 0.2)
	v.SetDefault("risk.risk_reward_ratio", 2.0)
	v.SetDefault("risk.atr_multiplier", 1.5)
	v.SetDefault("risk.percent_stop", 0.05)
	v.SetDefault("risk.max_trade_notional", 25_000)
	v.SetDefault("risk.daily_notional_cap", 100_000)
	// Minutes from midnight US/Eastern: 09:30 and 16:00.
	v.SetDefault("risk.market_open_minute", 570)
	v.SetDefault("risk.market_close_minute", 960)

	v.SetDefault("backtest.workers", 2)
	v.SetDefault("backtest.claim_interval", "2s")
	v.SetDefault("backtest.slippage_bps", 5)
	v.SetDefault("backtest.time_stop_bars", 20)
	v.SetDefault("backtest.starting_capital", 100_000)

	v.SetDefault("auto_trader.enabled", false)
	v.SetDefault("auto_trader.scan_interval", "10s")
	v.SetDefault("auto_trader.signal_max_age", "5m")
	v.SetDefault("auto_trader.max_per_scan", 50)
	v.SetDefault("auto_trader.min_confidence", 0.6)
	v.SetDefault("auto_trader.dry_run", true)
	v.SetDefault("auto_trader.stale_order_age", "15m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
