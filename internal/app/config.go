package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fiadopay/internal/scheduler"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/payment"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
)

// EnvPrefix: общий префикс переменных окружения сервиса.
const EnvPrefix = "FIADOPAY_"

// StorageDriver выбирает реализацию репозиториев.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config: настройки запуска шлюза. Значения по умолчанию задаёт DefaultConfig,
// LoadConfig переопределяет их переменными окружения с префиксом FIADOPAY_.
type Config struct {
	GRPCAddr    string `env:"GRPC_ADDR"`
	MetricsAddr string `env:"METRICS_ADDR"`

	StorageDriver       StorageDriver `env:"STORAGE_DRIVER"`
	PostgresDSN         string        `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool          `env:"POSTGRES_AUTO_MIGRATE"`

	// KafkaBrokers: список через запятую; пустая строка отключает публикацию событий.
	KafkaBrokers       string        `env:"KAFKA_BROKERS"`
	KafkaTopic         string        `env:"KAFKA_TOPIC"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS"`
	// OutboxDegradedAge: возраст самого старого pending-события, после которого health деградирует.
	OutboxDegradedAge time.Duration `env:"OUTBOX_DEGRADED_AGE"`

	ProcessingDelay time.Duration `env:"PROCESSING_DELAY"`
	FailureRate     float64       `env:"FAILURE_RATE"`

	WebhookSecret      string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout     time.Duration `env:"WEBHOOK_TIMEOUT"`
	WebhookMaxAttempts int           `env:"WEBHOOK_MAX_ATTEMPTS"`
	WebhookBackoffUnit time.Duration `env:"WEBHOOK_BACKOFF_UNIT"`

	FraudAlertThreshold      float64 `env:"FRAUD_ALERT_THRESHOLD"`
	FraudSuspiciousThreshold float64 `env:"FRAUD_SUSPICIOUS_THRESHOLD"`

	ProcessingWorkers int           `env:"PROCESSING_WORKERS"`
	SendWorkers       int           `env:"SEND_WORKERS"`
	TimerWorkers      int           `env:"TIMER_WORKERS"`
	ShutdownGrace     time.Duration `env:"SHUTDOWN_GRACE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// DefaultConfig возвращает настройки локального запуска: in-memory хранилище, без Kafka.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopic:         "fiadopay.payment.events",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxDegradedAge:  time.Minute,

		ProcessingDelay: 1500 * time.Millisecond,
		FailureRate:     0.15,

		WebhookSecret:      "fiadopay-dev-secret",
		WebhookTimeout:     5 * time.Second,
		WebhookMaxAttempts: 5,
		WebhookBackoffUnit: time.Second,

		FraudAlertThreshold:      5000,
		FraudSuspiciousThreshold: 10000,

		ProcessingWorkers: 4,
		SendWorkers:       8,
		TimerWorkers:      2,
		ShutdownGrace:     10 * time.Second,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig накладывает переменные окружения на DefaultConfig и проверяет результат.
// environ=nil означает окружение процесса.
func LoadConfig(environ map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.StorageDriver = StorageDriver(strings.ToLower(strings.TrimSpace(string(cfg.StorageDriver))))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate возвращает все найденные ошибки конфигурации разом.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires FIADOPAY_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.FailureRate < 0 || c.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("failure rate must be within [0,1], got %v", c.FailureRate))
	}
	if c.ProcessingDelay < 0 {
		errs = append(errs, errors.New("processing delay must not be negative"))
	}
	if strings.TrimSpace(c.WebhookSecret) == "" {
		errs = append(errs, errors.New("webhook secret is required"))
	}
	if c.WebhookMaxAttempts <= 0 {
		errs = append(errs, errors.New("webhook max attempts must be positive"))
	}
	if c.WebhookBackoffUnit <= 0 {
		errs = append(errs, errors.New("webhook backoff unit must be positive"))
	}
	if c.FraudAlertThreshold > c.FraudSuspiciousThreshold {
		errs = append(errs, fmt.Errorf("fraud alert threshold %v exceeds suspicious threshold %v",
			c.FraudAlertThreshold, c.FraudSuspiciousThreshold))
	}

	return errors.Join(errs...)
}

func (c Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		ProcessingWorkers: c.ProcessingWorkers,
		SendWorkers:       c.SendWorkers,
		TimerWorkers:      c.TimerWorkers,
		Grace:             c.ShutdownGrace,
	}
}

func (c Config) thresholds() validation.Thresholds {
	thresholds := validation.DefaultThresholds()
	thresholds.Alert = decimal.NewFromFloat(c.FraudAlertThreshold)
	thresholds.Suspicious = decimal.NewFromFloat(c.FraudSuspiciousThreshold)
	return thresholds
}

func (c Config) paymentConfig() payment.Config {
	return payment.Config{
		ProcessingDelay: c.ProcessingDelay,
		FailureRate:     c.FailureRate,
	}
}

func (c Config) kafkaBrokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
