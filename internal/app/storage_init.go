package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fiadopay/internal/health"
	"github.com/vladislavdragonenkov/fiadopay/internal/storage/memory"
	"github.com/vladislavdragonenkov/fiadopay/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного драйвера и функции их обслуживания.
type runtimeDependencies struct {
	payments   domain.PaymentRepository
	deliveries domain.DeliveryRepository
	merchants  domain.MerchantRepository
	outbox     domain.OutboxRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			payments:   memory.NewPaymentRepository(),
			deliveries: memory.NewDeliveryRepository(),
			merchants:  memory.NewMerchantRepository(),
			outbox:     memory.NewOutboxRepository(),
			storageChecker: healthcheck.NewChecker("storage", func(context.Context) error {
				return nil
			}),
			closeFn: func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return runtimeDependencies{}, fmt.Errorf("postgres storage requires a DSN")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return runtimeDependencies{}, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	logger.Info("using postgres storage")
	return runtimeDependencies{
		payments:       postgres.NewPaymentRepository(store),
		deliveries:     postgres.NewDeliveryRepository(store),
		merchants:      postgres.NewMerchantRepository(store),
		outbox:         postgres.NewOutboxRepository(store),
		storageChecker: healthcheck.NewChecker("storage", store.Ping),
		closeFn:        store.Close,
	}, nil
}
