// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Spread      SpreadConfig      `mapstructure:"spread"`
	Replacement ReplacementConfig `mapstructure:"replacement"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RedisConfig configures the shared lock service and command queue.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RiskConfig is the externally supplied risk surface.
type RiskConfig struct {
	RiskPerTradePercent         float64 `mapstructure:"risk_per_trade_percent"`
	MaxPositions                int     `mapstructure:"max_positions"`
	MaxPositionsPerSymbolTF     int     `mapstructure:"max_positions_per_symbol_timeframe"`
	MaxCorrelatedPositions      int     `mapstructure:"max_correlated_positions"`
	MaxDailyLossPercent         float64 `mapstructure:"max_daily_loss_percent"`
	MaxTotalDrawdownPercent     float64 `mapstructure:"max_total_drawdown_percent"`
	MinAutotradeConfidence      float64 `mapstructure:"min_autotrade_confidence"`
	SignalMaxAgeMinutes         int     `mapstructure:"signal_max_age_minutes"`
	PauseAfterConsecutiveLosses int     `mapstructure:"pause_after_consecutive_losses"`
	ResumeAfterCooldownHours    int     `mapstructure:"resume_after_cooldown_hours"`
	SLHitCooldownMinutes        int     `mapstructure:"sl_hit_cooldown_minutes"`
	MinRewardRisk               float64 `mapstructure:"min_reward_risk"`
	MinStopDistancePercent      float64 `mapstructure:"min_stop_distance_percent"`
	MaxTargetDistancePercent    float64 `mapstructure:"max_target_distance_percent"`
	LotSize                     float64 `mapstructure:"lot_size"`
	MinVolume                   float64 `mapstructure:"min_volume"`
	MaxVolume                   float64 `mapstructure:"max_volume"`
	BreakerFailureThreshold     int     `mapstructure:"breaker_failure_threshold"`
}

// SpreadConfig configures the pre-dispatch spread sanity check.
type SpreadConfig struct {
	MaxAverageMultiple float64            `mapstructure:"max_average_multiple"`
	MaxTickAgeSeconds  int                `mapstructure:"max_tick_age_seconds"`
	ClassCeilings      map[string]float64 `mapstructure:"class_ceilings"` // asset class -> absolute spread ceiling
}

// ReplacementConfig configures opportunity-cost position replacement.
type ReplacementConfig struct {
	MaxHoldHours          map[string]int `mapstructure:"max_hold_hours"` // per symbol
	DefaultMaxHoldHours   int            `mapstructure:"default_max_hold_hours"`
	ConfidenceImprovement float64        `mapstructure:"confidence_improvement"`
	MinNewConfidence      float64        `mapstructure:"min_new_confidence"`
	ProfitWindow          float64        `mapstructure:"profit_window"` // |profit| window in account currency
	LossFloor             float64        `mapstructure:"loss_floor"`    // positive number, loss beyond -LossFloor
	HoldTimeFraction      float64        `mapstructure:"hold_time_fraction"`
}

// EngineConfig sets worker loop intervals.
type EngineConfig struct {
	AdmissionInterval    time.Duration `mapstructure:"admission_interval"`
	ValidatorInterval    time.Duration `mapstructure:"validator_interval"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	StaleCheckInterval   time.Duration `mapstructure:"stale_check_interval"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	CommandTimeout       time.Duration `mapstructure:"command_timeout"`
	Accounts             []string      `mapstructure:"accounts"`
	CooldownCacheMaxAge  time.Duration `mapstructure:"cooldown_cache_max_age"`
	FingerprintCacheSize int           `mapstructure:"fingerprint_cache_size"`
}

// CorrelationConfig groups symbols that share currency exposure.
type CorrelationConfig struct {
	Groups map[string][]string `mapstructure:"groups"`
}

// Load reads configuration from the given file (optional) with environment
// overrides prefixed NGT_.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NGT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration with all defaults applied and no file.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9900)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("risk.risk_per_trade_percent", 2.0)
	v.SetDefault("risk.max_positions", 10)
	v.SetDefault("risk.max_positions_per_symbol_timeframe", 1)
	v.SetDefault("risk.max_correlated_positions", 3)
	v.SetDefault("risk.max_daily_loss_percent", 5.0)
	v.SetDefault("risk.max_total_drawdown_percent", 15.0)
	v.SetDefault("risk.min_autotrade_confidence", 60.0)
	v.SetDefault("risk.signal_max_age_minutes", 15)
	v.SetDefault("risk.pause_after_consecutive_losses", 5)
	v.SetDefault("risk.resume_after_cooldown_hours", 24)
	v.SetDefault("risk.sl_hit_cooldown_minutes", 30)
	v.SetDefault("risk.min_reward_risk", 1.2)
	v.SetDefault("risk.min_stop_distance_percent", 0.1)
	v.SetDefault("risk.max_target_distance_percent", 5.0)
	v.SetDefault("risk.lot_size", 1000)
	v.SetDefault("risk.min_volume", 0.01)
	v.SetDefault("risk.max_volume", 1.0)
	v.SetDefault("risk.breaker_failure_threshold", 3)

	v.SetDefault("spread.max_average_multiple", 3.0)
	v.SetDefault("spread.max_tick_age_seconds", 60)
	v.SetDefault("spread.class_ceilings", map[string]float64{
		"forex":  0.0005,
		"metal":  0.80,
		"crypto": 50.0,
		"index":  5.0,
	})

	v.SetDefault("replacement.default_max_hold_hours", 48)
	v.SetDefault("replacement.confidence_improvement", 15.0)
	v.SetDefault("replacement.min_new_confidence", 70.0)
	v.SetDefault("replacement.profit_window", 2.0)
	v.SetDefault("replacement.loss_floor", 20.0)
	v.SetDefault("replacement.hold_time_fraction", 0.7)

	v.SetDefault("engine.admission_interval", 5*time.Second)
	v.SetDefault("engine.validator_interval", 10*time.Second)
	v.SetDefault("engine.reconcile_interval", 15*time.Second)
	v.SetDefault("engine.stale_check_interval", time.Minute)
	v.SetDefault("engine.lock_ttl", 60*time.Second)
	v.SetDefault("engine.command_timeout", 5*time.Minute)
	v.SetDefault("engine.accounts", []string{"default"})
	v.SetDefault("engine.cooldown_cache_max_age", 2*time.Hour)
	v.SetDefault("engine.fingerprint_cache_size", 10000)

	v.SetDefault("correlation.groups", map[string][]string{
		"usd":  {"EURUSD", "GBPUSD", "AUDUSD", "NZDUSD", "USDJPY", "USDCHF", "USDCAD"},
		"eur":  {"EURUSD", "EURGBP", "EURJPY", "EURCHF"},
		"gold": {"XAUUSD", "XAGUSD"},
	})
}

func (c *Config) validate() error {
	if c.Risk.RiskPerTradePercent <= 0 || c.Risk.RiskPerTradePercent > 10 {
		return fmt.Errorf("risk_per_trade_percent out of range: %v", c.Risk.RiskPerTradePercent)
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive")
	}
	if c.Risk.MinRewardRisk < 1.0 {
		return fmt.Errorf("min_reward_risk below 1.0: %v", c.Risk.MinRewardRisk)
	}
	if c.Engine.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive")
	}
	return nil
}

// MaxHoldFor returns the replacement max hold time for a symbol.
func (r ReplacementConfig) MaxHoldFor(symbol string) time.Duration {
	if h, ok := r.MaxHoldHours[symbol]; ok && h > 0 {
		return time.Duration(h) * time.Hour
	}
	return time.Duration(r.DefaultMaxHoldHours) * time.Hour
}
