package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DB             Database
	MigrationsPath string

	MongoURI      string
	MongoDatabase string
	MongoMaxPool  uint64
	RedisAddr     string

	Cart CartStore

	KafkaBrokers    []string
	KafkaOrderTopic string
	KafkaGroupID    string
	EventQueueSize  int

	Product ProductGateway

	PaymentTimeout time.Duration

	LogLevel string
	LogFile  string
}

type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type CartStore struct {
	CacheTTL       time.Duration
	CacheJitter    time.Duration
	AbandonedAfter time.Duration
}

type ProductGateway struct {
	URL              string
	Timeout          time.Duration
	MaxRetries       uint
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "coffee_saga")
	v.SetDefault("MIGRATIONS_PATH", "./internal")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "coffee_saga")
	v.SetDefault("MONGO_MAX_POOL", 100)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("CART_CACHE_TTL", "15m")
	v.SetDefault("CART_CACHE_JITTER", "5m")
	v.SetDefault("CART_ABANDONED_AFTER", "2160h")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_ORDER_TOPIC", "order-created")
	v.SetDefault("KAFKA_GROUP_ID", "notification-service")
	v.SetDefault("EVENT_QUEUE_SIZE", 256)

	v.SetDefault("PRODUCT_SERVICE_URL", "http://localhost:8081")
	v.SetDefault("PRODUCT_TIMEOUT", "2s")
	v.SetDefault("PRODUCT_MAX_RETRIES", 3)
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "30s")

	v.SetDefault("PAYMENT_TIMEOUT", "10s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
}

// Load reads configuration from the environment and, when CONFIG_FILE is set, from that file.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		DB: Database{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
		},
		MigrationsPath:  v.GetString("MIGRATIONS_PATH"),
		MongoURI:        v.GetString("MONGO_URI"),
		MongoDatabase:   v.GetString("MONGO_DATABASE"),
		MongoMaxPool:    v.GetUint64("MONGO_MAX_POOL"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		Cart: CartStore{
			CacheTTL:       v.GetDuration("CART_CACHE_TTL"),
			CacheJitter:    v.GetDuration("CART_CACHE_JITTER"),
			AbandonedAfter: v.GetDuration("CART_ABANDONED_AFTER"),
		},
		KafkaBrokers:    splitList(v.GetString("KAFKA_BROKERS")),
		KafkaOrderTopic: v.GetString("KAFKA_ORDER_TOPIC"),
		KafkaGroupID:    v.GetString("KAFKA_GROUP_ID"),
		EventQueueSize:  v.GetInt("EVENT_QUEUE_SIZE"),
		Product: ProductGateway{
			URL:              v.GetString("PRODUCT_SERVICE_URL"),
			Timeout:          v.GetDuration("PRODUCT_TIMEOUT"),
			MaxRetries:       v.GetUint("PRODUCT_MAX_RETRIES"),
			FailureThreshold: v.GetUint32("BREAKER_FAILURE_THRESHOLD"),
			OpenTimeout:      v.GetDuration("BREAKER_OPEN_TIMEOUT"),
		},
		PaymentTimeout: v.GetDuration("PAYMENT_TIMEOUT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFile:        v.GetString("LOG_FILE"),
	}

	if cfg.DB.Port <= 0 {
		return nil, fmt.Errorf("invalid DB_PORT: %d", cfg.DB.Port)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.Cart.CacheTTL <= 0 {
		return nil, fmt.Errorf("invalid CART_CACHE_TTL: %s", cfg.Cart.CacheTTL)
	}
	if cfg.EventQueueSize <= 0 {
		return nil, fmt.Errorf("invalid EVENT_QUEUE_SIZE: %d", cfg.EventQueueSize)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
