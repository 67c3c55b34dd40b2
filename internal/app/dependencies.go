package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/coffeetrade/internal/health"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/postgres"
)

// runtimeDependencies: хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	ids *domain.IdentifierRegistry

	catalog        domain.CatalogRepository
	parties        domain.PartyRepository
	orders         domain.OrderRepository
	timeline       domain.TimelineRepository
	outbox         domain.OutboxRepository
	idempotency    domain.IdempotencyRepository
	source         domain.QuerySource
	ranges         domain.IdentifierRangeSource
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	ids := domain.NewIdentifierRegistry()

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore(ids)
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			ids:            ids,
			catalog:        store.Catalog(),
			parties:        store.Parties(),
			orders:         store.Orders(),
			timeline:       memory.NewTimelineRepository(),
			outbox:         memory.NewOutboxRepository(),
			idempotency:    memory.NewIdempotencyRepository(),
			source:         store,
			ranges:         store,
			storageChecker: healthcheck.NewStorageChecker(store),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires COFFEE_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		queries := postgres.NewQuerySource(store, ids)
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			ids:            ids,
			catalog:        postgres.NewCatalogRepository(store),
			parties:        postgres.NewPartyRepository(store),
			orders:         postgres.NewOrderRepository(store, ids),
			timeline:       postgres.NewTimelineRepository(store),
			outbox:         postgres.NewOutboxRepository(store),
			idempotency:    postgres.NewIdempotencyRepository(store),
			source:         queries,
			ranges:         queries,
			storageChecker: healthcheck.NewStorageChecker(store),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
