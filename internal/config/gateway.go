package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CryptocomConfig holds runtime configuration for the Crypto.com-style
// exchange gateway process (cmd/gateway-cryptocom).
type CryptocomConfig struct {
	NATSURL      string `env:"GW_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	ConnectionID string `env:"GW_CONNECTION_ID" envDefault:"cryptocom-1"`
	Exchange     string `env:"GW_EXCHANGE" envDefault:"cryptocom"`
	Symbols      string `env:"GW_SYMBOLS" envDefault:"BTC_USD"`

	RESTBaseURL string `env:"GW_REST_BASE_URL" envDefault:"https://api.crypto.com/exchange/v1"`
	WSMarketURL string `env:"GW_WS_MARKET_URL" envDefault:"wss://stream.crypto.com/exchange/v1/market"`
	WSUserURL   string `env:"GW_WS_USER_URL" envDefault:"wss://stream.crypto.com/exchange/v1/user"`

	APIKey    string `env:"GW_API_KEY"`
	APISecret string `env:"GW_API_SECRET"`

	OrdersPerSecond float64 `env:"GW_ORDERS_PER_SEC" envDefault:"10"`
	OrdersBurst     int     `env:"GW_ORDERS_BURST" envDefault:"20"`

	MetricsListenAddr string `env:"GW_METRICS_ADDR" envDefault:":9092"`
	LogLevel          string `env:"GW_LOG_LEVEL" envDefault:"info"`
	LogPretty         bool   `env:"GW_LOG_PRETTY" envDefault:"false"`

	HeartbeatInterval time.Duration `env:"GW_HEARTBEAT_INTERVAL" envDefault:"20s"`
}

// LoadCryptocom reads .env (if present) then environment variables into
// CryptocomConfig. Priority: real env vars > .env file > struct defaults.
func LoadCryptocom() (CryptocomConfig, error) {
	_ = godotenv.Load()

	var cfg CryptocomConfig
	if err := env.Parse(&cfg); err != nil {
		return CryptocomConfig{}, fmt.Errorf("config: parse cryptocom gateway env: %w", err)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return CryptocomConfig{}, fmt.Errorf("config: GW_API_KEY and GW_API_SECRET are required")
	}
	return cfg, nil
}

// KafkaFeedConfig holds runtime configuration for the Kafka/Redpanda
// market-data gateway process (cmd/gateway-kafkafeed).
type KafkaFeedConfig struct {
	NATSURL      string `env:"GW_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	ConnectionID string `env:"GW_CONNECTION_ID" envDefault:"kafkafeed-1"`
	Exchange     string `env:"GW_EXCHANGE" envDefault:"kafkafeed"`

	KafkaBrokers  string `env:"GW_KAFKA_BROKERS" envDefault:"localhost:19092"`
	ConsumerGroup string `env:"GW_KAFKA_CONSUMER_GROUP" envDefault:"sequencer-kafkafeed"`
	Topics        string `env:"GW_KAFKA_TOPICS" envDefault:"orderbook.updates"`

	MaxMessagesPerSec int `env:"GW_MAX_MSG_RATE" envDefault:"2000"`

	MetricsListenAddr string `env:"GW_METRICS_ADDR" envDefault:":9093"`
	LogLevel          string `env:"GW_LOG_LEVEL" envDefault:"info"`
	LogPretty         bool   `env:"GW_LOG_PRETTY" envDefault:"false"`
}

// LoadKafkaFeed reads .env (if present) then environment variables into
// KafkaFeedConfig.
func LoadKafkaFeed() (KafkaFeedConfig, error) {
	_ = godotenv.Load()

	var cfg KafkaFeedConfig
	if err := env.Parse(&cfg); err != nil {
		return KafkaFeedConfig{}, fmt.Errorf("config: parse kafka feed gateway env: %w", err)
	}
	return cfg, nil
}

// ArchiverConfig holds runtime configuration for the archival log
// process (cmd/archiver).
type ArchiverConfig struct {
	NATSURL   string `env:"ARCH_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Subject   string `env:"ARCH_SUBJECT" envDefault:"sequencer.egress"`
	Directory string `env:"ARCH_DIRECTORY" envDefault:"./data/archive"`
	Prefix    string `env:"ARCH_FILE_PREFIX" envDefault:"sequencer"`

	MetricsListenAddr string `env:"ARCH_METRICS_ADDR" envDefault:":9094"`
	LogLevel          string `env:"ARCH_LOG_LEVEL" envDefault:"info"`
	LogPretty         bool   `env:"ARCH_LOG_PRETTY" envDefault:"false"`
}

// LoadArchiver reads .env (if present) then environment variables into
// ArchiverConfig.
func LoadArchiver() (ArchiverConfig, error) {
	_ = godotenv.Load()

	var cfg ArchiverConfig
	if err := env.Parse(&cfg); err != nil {
		return ArchiverConfig{}, fmt.Errorf("config: parse archiver env: %w", err)
	}
	return cfg, nil
}
