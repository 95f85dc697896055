package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends for the ledger state.
const (
	StorageMemory = "memory"
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// Config holds the settings for the ledger tools. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	Port     string
	LogLevel string

	Storage     string
	JSONPath    string
	SQLitePath  string
	SeedDefault bool
	Currency    string

	// Optional off-box sinks. Empty values disable them.
	GCSBucket       string
	GCSObject       string
	BigQueryProject string
	BigQueryDataset string

	PersistMaxRetries int
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Storage:     strings.ToLower(getEnv("LEDGER_STORAGE", StorageJSON)),
		JSONPath:    getEnv("LEDGER_JSON_PATH", "./data/ledger.json"),
		SQLitePath:  getEnv("LEDGER_SQLITE_PATH", "./data/ledger.db"),
		SeedDefault: getEnvAsBool("LEDGER_SEED_DEFAULTS", true),
		Currency:    strings.ToUpper(getEnv("LEDGER_CURRENCY", "GBP")),

		GCSBucket:       getEnv("GCS_BUCKET", ""),
		GCSObject:       getEnv("GCS_OBJECT", "ledger/state.json"),
		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finance_ledger"),

		PersistMaxRetries: getEnvAsInt("PERSIST_MAX_RETRIES", 3),
		RateLimitRPS:      getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 30),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the tools cannot run with.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageJSON, StorageSQLite:
	default:
		return fmt.Errorf("config: LEDGER_STORAGE must be one of %s, %s, %s (got %q)",
			StorageMemory, StorageJSON, StorageSQLite, c.Storage)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("config: LEDGER_CURRENCY must be an ISO 4217 code (got %q)", c.Currency)
	}
	if c.PersistMaxRetries < 0 {
		return fmt.Errorf("config: PERSIST_MAX_RETRIES must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: rate limit settings must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
