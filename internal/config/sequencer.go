// Package config loads process configuration for the backbone. The
// Sequencer and Strategy host processes read viper config (file +
// environment, ODIN_SEQ_/ODIN_STRAT_ prefixed); Gateway and Archiver
// processes read env vars (with optional .env) via caarlos0/env,
// mirroring a split that's common across this codebase's subprojects.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SequencerConfig holds runtime configuration for the Sequencer process.
type SequencerConfig struct {
	Transport TransportConfig `mapstructure:"transport"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TransportConfig configures the NATS connection shared by every process.
type TransportConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// QueueConfig configures the sequencer's local queue and round-trip
// behavior.
type QueueConfig struct {
	SoftThreshold int `mapstructure:"soft_threshold"`
	// StrategyTimeout bounds each fan-out round trip to a connected
	// strategy. Zero (the default) disables the timeout entirely, per
	// the reference design's open question: most deployments trust their
	// strategies to reply promptly and would rather stall than silently
	// disconnect one under a slow GC pause.
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Namespace  string `mapstructure:"namespace"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadSequencer reads SequencerConfig from an optional config file plus
// ODIN_SEQ_-prefixed environment variables.
func LoadSequencer(configPath string) (SequencerConfig, error) {
	v := newViper("sequencer", "ODIN_SEQ")

	v.SetDefault("transport.url", "nats://127.0.0.1:4222")
	v.SetDefault("transport.max_reconnects", -1)
	v.SetDefault("transport.reconnect_wait", 2*time.Second)

	v.SetDefault("queue.soft_threshold", 10000)
	v.SetDefault("queue.strategy_timeout", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.namespace", "sequencer")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return SequencerConfig{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg SequencerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SequencerConfig{}, fmt.Errorf("config: unmarshal sequencer config: %w", err)
	}
	return cfg, nil
}

func newViper(name, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
