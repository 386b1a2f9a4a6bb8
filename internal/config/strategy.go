package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// StrategyConfig holds runtime configuration for a Strategy endpoint
// process (e.g. cmd/strategy-optitrade).
type StrategyConfig struct {
	Transport    TransportConfig `mapstructure:"transport"`
	ConnectionID string          `mapstructure:"connection_id"`
	Metrics      MetricsConfig   `mapstructure:"metrics"`
	Logging      LoggingConfig   `mapstructure:"logging"`
	OptiTrade    OptiTradeConfig `mapstructure:"optitrade"`
}

// OptiTradeConfig parameterizes the top-of-book-following quoter.
type OptiTradeConfig struct {
	Exchange            string  `mapstructure:"exchange"`
	Symbol              string  `mapstructure:"symbol"`
	Side                string  `mapstructure:"side"` // "buy" | "sell"
	OrderSize           float64 `mapstructure:"order_size"`
	TickSize            float64 `mapstructure:"tick_size"`
	QtyStep             float64 `mapstructure:"qty_step"`
	ExecMode            string  `mapstructure:"exec_mode"` // "mid" | "tob"
	SleepTimeMs         int64   `mapstructure:"sleep_time_ms"`
	PostOnly            bool    `mapstructure:"post_only"`
	ClientOrderIDPrefix string  `mapstructure:"client_order_id_prefix"`
}

// LoadStrategy reads StrategyConfig from an optional config file plus
// ODIN_STRAT-prefixed environment variables.
func LoadStrategy(configPath string) (StrategyConfig, error) {
	v := newViper("strategy", "ODIN_STRAT")

	v.SetDefault("transport.url", "nats://127.0.0.1:4222")
	v.SetDefault("transport.max_reconnects", -1)
	v.SetDefault("transport.reconnect_wait", "2s")

	v.SetDefault("connection_id", "optitrade-1")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9091")
	v.SetDefault("metrics.namespace", "strategy")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("optitrade.exec_mode", "tob")
	v.SetDefault("optitrade.side", "buy")
	v.SetDefault("optitrade.order_size", 0.001)
	v.SetDefault("optitrade.tick_size", 0.5)
	v.SetDefault("optitrade.qty_step", 0.0001)
	v.SetDefault("optitrade.sleep_time_ms", 250)
	v.SetDefault("optitrade.post_only", true)
	v.SetDefault("optitrade.client_order_id_prefix", "opti-")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return StrategyConfig{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg StrategyConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return StrategyConfig{}, fmt.Errorf("config: unmarshal strategy config: %w", err)
	}
	return cfg, nil
}
