package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Broker    BrokerConfig
	Market    MarketConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Brokers string
	GroupID string
	Topics  TopicsConfig
}

// TopicsConfig names the consumed streams
type TopicsConfig struct {
	Price         string
	DailyStrategy string
	OrderResult   string
	AskingPrice   string
	Commands      string
}

// BrokerList splits the comma-separated broker string.
func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			brokers = append(brokers, v)
		}
	}
	return brokers
}

// BrokerConfig holds the KIS open API endpoints
type BrokerConfig struct {
	RealBaseURL  string
	PaperBaseURL string
	Timeout      time.Duration
}

// MarketConfig holds trading session specific configuration
type MarketConfig struct {
	Timezone       string
	SessionOpen    int
	SessionClose   int
	MinuteInterval int
}

// Location resolves the configured market timezone.
func (m MarketConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", m.Timezone, err)
	}
	return loc, nil
}

// InSession reports whether an hour falls inside the trading session.
func (m MarketConfig) InSession(hour int) bool {
	return hour >= m.SessionOpen && hour <= m.SessionClose
}

// RateLimitConfig holds per-account broker API ceilings
type RateLimitConfig struct {
	RealPerSecond  int
	PaperPerSecond int
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level      string
	Format     string
	OutputFile string
}

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Read from environment variables
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	// Kafka defaults
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.groupID", "trading-engine-group")
	v.SetDefault("kafka.topics.price", "stock_price")
	v.SetDefault("kafka.topics.dailyStrategy", "daily_strategy")
	v.SetDefault("kafka.topics.orderResult", "order_result")
	v.SetDefault("kafka.topics.askingPrice", "asking_price")
	v.SetDefault("kafka.topics.commands", "kis_websocket_commands")

	// Broker defaults
	v.SetDefault("broker.realBaseURL", "https://openapi.koreainvestment.com:9443")
	v.SetDefault("broker.paperBaseURL", "https://openapivts.koreainvestment.com:29443")
	v.SetDefault("broker.timeout", "30s")

	// Market defaults
	v.SetDefault("market.timezone", "Asia/Seoul")
	v.SetDefault("market.sessionOpen", 9)
	v.SetDefault("market.sessionClose", 15)
	v.SetDefault("market.minuteInterval", 1)

	// Rate limit defaults, calls per second against the broker API
	v.SetDefault("rateLimit.realPerSecond", 20)
	v.SetDefault("rateLimit.paperPerSecond", 2)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
}
