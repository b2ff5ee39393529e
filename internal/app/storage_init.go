package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

const redisConnectTimeout = 3 * time.Second

// pinger — хранилище, доступность которого проверяется в /healthz.
type pinger interface {
	Ping(ctx context.Context) error
}

// runtimeDependencies — репозитории выбранного драйвера и ресурсы, которые нужно закрыть.
type runtimeDependencies struct {
	userRepo        domain.UserRepository
	catalogRepo     domain.CatalogRepository
	promotionRepo   domain.PromotionRepository
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	// checks — критичные проверки хранилищ для health handler.
	checks  map[string]pinger
	closers []func() error
}

func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close storage dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies создаёт репозитории по cfg.StorageDriver и,
// если задан RedisAddr, переносит ключи идемпотентности в Redis.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case StorageDriverMemory, "":
		deps = newMemoryDependencies()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		deps, err = newPostgresDependencies(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		repo, closeFn, err := newRedisIdempotency(ctx, cfg)
		if err != nil {
			deps.Close(logger)
			return nil, err
		}
		deps.idempotencyRepo = repo
		deps.checks["redis"] = repo
		deps.closers = append(deps.closers, closeFn)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	}
	return deps, nil
}

func newMemoryDependencies() *runtimeDependencies {
	catalog := memory.NewCatalogRepository()
	return &runtimeDependencies{
		userRepo:        memory.NewUserRepository(),
		catalogRepo:     catalog,
		promotionRepo:   memory.NewPromotionRepository(),
		repo:            memory.NewOrderRepository(catalog),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		checks:          map[string]pinger{},
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	store, err := postgres.OpenWithPool(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxOpenConns: cfg.PostgresMaxOpenConns})
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		version, applied, err := store.MigrationStatus(ctx)
		if err == nil {
			logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres migrations applied")
		}
	}
	logger.Info("using postgres storage")

	return &runtimeDependencies{
		userRepo:        postgres.NewUserRepository(store),
		catalogRepo:     postgres.NewCatalogRepository(store),
		promotionRepo:   postgres.NewPromotionRepository(store),
		repo:            postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		checks:          map[string]pinger{"postgres": store},
		closers:         []func() error{store.Close},
	}, nil
}

func newRedisIdempotency(ctx context.Context, cfg Config) (*redisstore.IdempotencyRepository, func() error, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	repo := redisstore.NewIdempotencyRepository(client, cfg.RedisPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return repo, client.Close, nil
}
