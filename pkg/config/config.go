package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds gateway configuration.
type Config struct {
	Port     string
	LogLevel string

	// StoreBackend selects "memory" or "persistent". Persistent wires
	// Postgres budgets, SQLite quotes and receipts, and Redis nonces and
	// rate limits.
	StoreBackend string
	DatabaseURL  string
	RedisAddr    string
	SQLitePath   string

	RegistryURL string

	FacilitatorURL string
	PayToAddress   string
	PaymentAsset   string
	QuoteTTL       time.Duration

	RoutesPath   string
	OTLPEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:           getenv("PORT", "8080"),
		LogLevel:       getenv("LOG_LEVEL", "INFO"),
		StoreBackend:   getenv("STORE_BACKEND", "memory"),
		DatabaseURL:    getenv("DATABASE_URL", "postgres://gateway@localhost:5432/gateway?sslmode=disable"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		SQLitePath:     getenv("SQLITE_PATH", "gateway.db"),
		RegistryURL:    os.Getenv("REGISTRY_URL"),
		FacilitatorURL: getenv("FACILITATOR_URL", "https://facilitator.x402.org"),
		PayToAddress:   os.Getenv("PAY_TO_ADDRESS"),
		PaymentAsset:   getenv("PAYMENT_ASSET", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		RoutesPath:     getenv("ROUTES_PATH", "routes.yaml"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}

	cfg.QuoteTTL = 120 * time.Second
	if raw := os.Getenv("QUOTE_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.QuoteTTL = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

// Persistent reports whether durable stores should be wired.
func (c *Config) Persistent() bool {
	return c.StoreBackend == "persistent"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
