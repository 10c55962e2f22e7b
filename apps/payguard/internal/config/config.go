package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RpcURL              string
	DbURL               string
	KafkaBroker         string
	KafkaTopic          string
	APIPort             int
	BalanceRetries      int
	BalanceRetryDelay   time.Duration
	NoticeDuration      time.Duration
	ReceiptPollInterval time.Duration
	AuditInterval       time.Duration
}

// NewConfig loads configuration from environment variables. Retry spacing and
// alert auto-dismissal are presentation/retry-policy knobs, not protocol
// constants, so they stay tunable.
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	return &Config{
		RpcURL:              getEnvOrFatal("RPC_URL"),
		DbURL:               getEnvOrFatal("DB_URL"),
		KafkaBroker:         getEnvOrFatal("KAFKA_BROKER"),
		KafkaTopic:          getEnvOrFatal("KAFKA_TOPIC"),
		APIPort:             getEnvInt("API_PORT", 8080),
		BalanceRetries:      getEnvInt("BALANCE_RETRIES", 3),
		BalanceRetryDelay:   getEnvDuration("BALANCE_RETRY_DELAY_MS", 1000),
		NoticeDuration:      getEnvDuration("NOTICE_DURATION_MS", 2000),
		ReceiptPollInterval: getEnvDuration("RECEIPT_POLL_INTERVAL_MS", 2000),
		AuditInterval:       getEnvDuration("AUDIT_INTERVAL_MS", 60000),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("Warning: environment variable %s not set", key)

	return ""
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultMillis int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(defaultMillis) * time.Millisecond
}
