package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Переменные окружения сервиса.
const (
	EnvConfigFile                  = "SHOP_CONFIG_FILE"
	EnvHTTPAddr                    = "SHOP_HTTP_ADDR"
	EnvMetricsAddr                 = "SHOP_METRICS_ADDR"
	EnvStorageDriver               = "SHOP_STORAGE_DRIVER"
	EnvPostgresDSN                 = "SHOP_POSTGRES_DSN"
	EnvPostgresAutoMigrate         = "SHOP_POSTGRES_AUTO_MIGRATE"
	EnvPostgresMaxOpenConns        = "SHOP_POSTGRES_MAX_OPEN_CONNS"
	EnvRedisAddr                   = "SHOP_REDIS_ADDR"
	EnvRedisPrefix                 = "SHOP_REDIS_PREFIX"
	EnvKafkaBrokers                = "KAFKA_BROKERS"
	EnvKafkaTopic                  = "SHOP_KAFKA_TOPIC"
	EnvKafkaDLQTopic               = "SHOP_KAFKA_DLQ_TOPIC"
	EnvOutboxPollInterval          = "SHOP_OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize             = "SHOP_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts           = "SHOP_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetryDelay            = "SHOP_OUTBOX_RETRY_DELAY"
	EnvOutboxMaxPending            = "SHOP_OUTBOX_MAX_PENDING"
	EnvIdempotencyTTL              = "SHOP_IDEMPOTENCY_TTL"
	EnvIdempotencyCleanupInterval  = "SHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	EnvIdempotencyCleanupBatchSize = "SHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	EnvJaegerEndpoint              = "SHOP_JAEGER_ENDPOINT"
	EnvLogLevel                    = "SHOP_LOG_LEVEL"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	StorageDriver        string `yaml:"storage_driver"`
	PostgresDSN          string `yaml:"postgres_dsn"`
	PostgresAutoMigrate  bool   `yaml:"postgres_auto_migrate"`
	PostgresMaxOpenConns int    `yaml:"postgres_max_open_conns"`

	// RedisAddr включает хранение ключей идемпотентности в Redis.
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`

	// KafkaBrokers — список брокеров через запятую; пустой выключает публикацию outbox.
	KafkaBrokers  string `yaml:"kafka_brokers"`
	KafkaTopic    string `yaml:"kafka_topic"`
	KafkaDLQTopic string `yaml:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	// OutboxMaxPending — порог backlog, после которого health становится degraded; 0 выключает проверку.
	OutboxMaxPending int `yaml:"outbox_max_pending"`

	IdempotencyTTL              time.Duration `yaml:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`

	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	LogLevel       string `yaml:"log_level"`
}

// DefaultConfig возвращает конфигурацию для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxOpenConns:        25,
		RedisPrefix:                 "shop:idem",
		KafkaTopic:                  kafka.TopicOrderEvents,
		KafkaDLQTopic:               kafka.TopicDeadLetterQueue,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    "info",
	}
}

// Validate проверяет сочетание драйвера хранилища и его параметров.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, fmt.Errorf("postgres dsn is required for %s storage driver", StorageDriverPostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EnvLookup читает переменную окружения; совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML файл
// из SHOP_CONFIG_FILE, затем переменные окружения. Некорректные значения
// переменных не прерывают запуск, а возвращаются как предупреждения.
func LoadConfig(lookup EnvLookup) (Config, []string, error) {
	cfg := DefaultConfig()
	if path, ok := lookup(EnvConfigFile); ok && strings.TrimSpace(path) != "" {
		fileCfg, err := applyConfigFile(cfg, strings.TrimSpace(path))
		if err != nil {
			return Config{}, nil, err
		}
		cfg = fileCfg
	}

	cfg, warnings := ReadConfigFromEnv(lookup, cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, warnings, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, warnings, nil
}

// applyConfigFile накладывает YAML файл поверх base; отсутствующие ключи сохраняют значения base.
func applyConfigFile(base Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	return cfg, nil
}

// ReadConfigFromEnv переопределяет base значениями из окружения.
func ReadConfigFromEnv(lookup EnvLookup, base Config) (Config, []string) {
	cfg := base
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }

	str(EnvHTTPAddr, &cfg.HTTPAddr)
	str(EnvMetricsAddr, &cfg.MetricsAddr)
	str(EnvStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(EnvPostgresDSN, &cfg.PostgresDSN)
	boolean(EnvPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	integer(EnvPostgresMaxOpenConns, &cfg.PostgresMaxOpenConns, positive, "must be > 0")
	str(EnvRedisAddr, &cfg.RedisAddr)
	str(EnvRedisPrefix, &cfg.RedisPrefix)
	str(EnvKafkaBrokers, &cfg.KafkaBrokers)
	str(EnvKafkaTopic, &cfg.KafkaTopic)
	str(EnvKafkaDLQTopic, &cfg.KafkaDLQTopic)
	duration(EnvOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(EnvOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(EnvOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(EnvOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	integer(EnvOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	duration(EnvIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(EnvIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(EnvIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	str(EnvJaegerEndpoint, &cfg.JaegerEndpoint)
	str(EnvLogLevel, &cfg.LogLevel)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
