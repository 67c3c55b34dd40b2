package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/coffeetrade/internal/service/idempotency"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	envPrefix = "COFFEE"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers: список брокеров через запятую; пустое значение выключает Kafka.
	KafkaBrokers string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxLag: возраст самого старого события, после которого /healthz показывает degraded.
	OutboxMaxLag time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	// IdempotencyCleanupMaxBatches: предел пачек за проход, 0 без предела.
	IdempotencyCleanupMaxBatches int
	// IdempotencyCleanupGrace: сколько хранить ключ после истечения TTL.
	IdempotencyCleanupGrace time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает базовые адреса для gRPC и HTTP-метрик.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                     ":50051",
		MetricsAddr:                  ":9090",
		LogLevel:                     "info",
		StorageDriver:                StorageDriverMemory,
		PostgresAutoMigrate:          true,
		KafkaTopic:                   "coffee.order.events",
		OutboxPollInterval:           time.Second,
		OutboxBatchSize:              100,
		OutboxMaxAttempts:            3,
		OutboxRetryDelay:             50 * time.Millisecond,
		OutboxMaxLag:                 5 * time.Minute,
		IdempotencyCleanupInterval:   time.Minute,
		IdempotencyCleanupBatchSize:  500,
		IdempotencyCleanupMaxBatches: 20,
		ShutdownTimeout:              5 * time.Second,
	}
}

// IdempotencySweep собирает параметры очистки ключей идемпотентности.
func (c Config) IdempotencySweep() idempotency.SweepConfig {
	return idempotency.SweepConfig{
		Interval:   c.IdempotencyCleanupInterval,
		BatchSize:  c.IdempotencyCleanupBatchSize,
		MaxBatches: c.IdempotencyCleanupMaxBatches,
		Grace:      c.IdempotencyCleanupGrace,
	}
}

// LoadConfig читает настройки из окружения (COFFEE_*) и, если есть,
// из coffee.yaml в текущем каталоге или /etc/coffee.
func LoadConfig() (Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (Config, error) {
	def := DefaultConfig()
	v.SetDefault("grpc_addr", def.GRPCAddr)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("storage_driver", def.StorageDriver)
	v.SetDefault("postgres_dsn", def.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", def.PostgresAutoMigrate)
	v.SetDefault("kafka_brokers", def.KafkaBrokers)
	v.SetDefault("kafka_topic", def.KafkaTopic)
	v.SetDefault("outbox_poll_interval", def.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", def.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", def.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", def.OutboxRetryDelay)
	v.SetDefault("outbox_max_lag", def.OutboxMaxLag)
	v.SetDefault("idempotency_cleanup_interval", def.IdempotencyCleanupInterval)
	v.SetDefault("idempotency_cleanup_batch_size", def.IdempotencyCleanupBatchSize)
	v.SetDefault("idempotency_cleanup_max_batches", def.IdempotencyCleanupMaxBatches)
	v.SetDefault("idempotency_cleanup_grace", def.IdempotencyCleanupGrace)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)

	v.SetConfigName("coffee")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/coffee")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		GRPCAddr:                     v.GetString("grpc_addr"),
		MetricsAddr:                  v.GetString("metrics_addr"),
		LogLevel:                     v.GetString("log_level"),
		StorageDriver:                strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		PostgresDSN:                  strings.TrimSpace(v.GetString("postgres_dsn")),
		PostgresAutoMigrate:          v.GetBool("postgres_auto_migrate"),
		KafkaBrokers:                 strings.TrimSpace(v.GetString("kafka_brokers")),
		KafkaTopic:                   v.GetString("kafka_topic"),
		OutboxPollInterval:           v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:              v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:            v.GetInt("outbox_max_attempts"),
		OutboxRetryDelay:             v.GetDuration("outbox_retry_delay"),
		OutboxMaxLag:                 v.GetDuration("outbox_max_lag"),
		IdempotencyCleanupInterval:   v.GetDuration("idempotency_cleanup_interval"),
		IdempotencyCleanupBatchSize:  v.GetInt("idempotency_cleanup_batch_size"),
		IdempotencyCleanupMaxBatches: v.GetInt("idempotency_cleanup_max_batches"),
		IdempotencyCleanupGrace:      v.GetDuration("idempotency_cleanup_grace"),
		ShutdownTimeout:              v.GetDuration("shutdown_timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate отклоняет несогласованные настройки.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage driver requires COFFEE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is empty"))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics address is empty"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval and batch size must be positive"))
	}
	if c.IdempotencyCleanupMaxBatches < 0 || c.IdempotencyCleanupGrace < 0 {
		errs = append(errs, errors.New("idempotency cleanup max batches and grace must not be negative"))
	}
	return errors.Join(errs...)
}
