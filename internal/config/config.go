package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

type Config struct {
	HTTPPort string
	AppEnv   string
	LogLevel string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration
	MongoURI      string
	MongoDBName   string

	StockServiceURL string
	OrderServiceURL string

	StoreTimeout    time.Duration
	StockTimeout    time.Duration
	OrderTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	OTLPEndpoint string

	// KafkaBrokers empty disables checkout events.
	KafkaBrokers  []string
	CheckoutTopic string
}

// Load reads the configuration from the environment. Unset or unparsable
// values fall back to their defaults.
func Load() Config {
	return Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:  getBackend("STORE_BACKEND", BackendRedis),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CartTTL:       getEnvDuration("CART_TTL", 0),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),

		StockServiceURL: getEnv("STOCK_CHECK_SERVICE_URL", "http://localhost:8081"),
		OrderServiceURL: getEnv("ORDER_SERVICE_URL", "http://localhost:8082"),

		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 2*time.Second),
		StockTimeout:    getEnvDuration("STOCK_TIMEOUT", 3*time.Second),
		OrderTimeout:    getEnvDuration("ORDER_TIMEOUT", 5*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		BreakerMaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		KafkaBrokers:  getEnvList("KAFKA_BROKERS"),
		CheckoutTopic: getEnv("KAFKA_CHECKOUT_TOPIC", "cart-checkouts"),
	}
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt rejects negative values.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("250ms", "5s") and bare seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getBackend(key, defaultValue string) string {
	switch v := strings.ToLower(getEnv(key, defaultValue)); v {
	case BackendRedis, BackendMongo:
		return v
	default:
		return defaultValue
	}
}
