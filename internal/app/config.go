package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// StorageKind выбирает реализацию хранилища.
type StorageKind string

const (
	StorageMemory   StorageKind = "memory"
	StoragePostgres StorageKind = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	KafkaBrokers  []string
	ConsumerGroup string
	MaxRetries    int
	RetryDelay    time.Duration

	Storage     StorageKind
	PostgresDSN string

	GRPCAddr    string
	MetricsAddr string

	// GatewayFailureReason, если задан, заставляет mock-провайдера
	// отклонять все платежи. Используется в демо и интеграционных стендах.
	GatewayFailureReason string

	InboxCleanupInterval time.Duration
}

// LoadConfig читает конфигурацию из окружения. Файл .env, если он есть,
// подхватывается до чтения переменных.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg := Config{
		KafkaBrokers:         splitList(getEnv("FULFILLMENT_KAFKA_BROKERS", "localhost:9092")),
		ConsumerGroup:        getEnv("FULFILLMENT_CONSUMER_GROUP", "fulfillment-service"),
		MaxRetries:           getEnvInt("FULFILLMENT_MAX_RETRIES", 3),
		RetryDelay:           getEnvDuration("FULFILLMENT_RETRY_DELAY", 5*time.Second),
		Storage:              StorageKind(strings.ToLower(getEnv("FULFILLMENT_STORAGE", string(StorageMemory)))),
		PostgresDSN:          getEnv("FULFILLMENT_POSTGRES_DSN", ""),
		GRPCAddr:             getEnv("FULFILLMENT_GRPC_ADDR", ":50051"),
		MetricsAddr:          getEnv("FULFILLMENT_METRICS_ADDR", ":9090"),
		GatewayFailureReason: getEnv("FULFILLMENT_GATEWAY_FAILURE_REASON", ""),
		InboxCleanupInterval: getEnvDuration("FULFILLMENT_INBOX_CLEANUP_INTERVAL", time.Hour),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("FULFILLMENT_KAFKA_BROKERS is required")
	}
	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("FULFILLMENT_POSTGRES_DSN is required for postgres storage")
		}
	default:
		return Config{}, fmt.Errorf("unsupported storage kind: %s", cfg.Storage)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid integer in environment, using default")
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid duration in environment, using default")
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	values := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if value := strings.TrimSpace(chunk); value != "" {
			values = append(values, value)
		}
	}
	return values
}
