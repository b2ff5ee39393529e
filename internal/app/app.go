package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/service/pricing"
	"github.com/vladislavdragonenkov/shop/internal/tracing"
	"github.com/vladislavdragonenkov/shop/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Run поднимает хранилище, сервисы, воркеры и HTTP серверы и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint, logger.WithField("component", "tracing"))
	if err != nil {
		logger.WithError(err).Warn("tracing is disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown with error")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("component", "storage"))
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	api := newAPIHandler(cfg, deps)

	// Ошибка уже залогирована: без Kafka сервис принимает заказы, события копятся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	// Воркеры останавливаются раньше, чем закрываются producer и хранилище.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	if kafkaProducer != nil {
		worker := newOutboxWorker(cfg, deps.outboxRepo, kafkaProducer)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox events stay pending")
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(workerCtx)
	}()

	healthHandler := newHealthHandler(cfg, deps)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	apiSrv := &http.Server{Handler: api.Routes(), ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newAPIHandler собирает сервисы поверх репозиториев и HTTP обработчик.
func newAPIHandler(cfg Config, deps *runtimeDependencies) *httpapi.Handler {
	engine := pricing.NewEngine(deps.catalogRepo, pricing.NewResolver(deps.promotionRepo))
	orders := ordering.NewService(deps.userRepo, deps.repo, engine,
		ordering.WithLogger(log.WithField("component", "ordering")),
		ordering.WithTimeline(deps.timelineRepo),
		ordering.WithOutbox(deps.outboxRepo),
		ordering.WithMetrics(metrics.NewOrderMetrics()),
	)
	catalogSvc := catalog.NewService(deps.userRepo, deps.catalogRepo, deps.promotionRepo, log.WithField("component", "catalog"))

	return httpapi.NewHandler(orders, catalogSvc,
		httpapi.WithLogger(log.WithField("component", "http-api")),
		httpapi.WithMetrics(metrics.NewHTTPMetrics()),
		httpapi.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
	)
}

func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer) *outbox.Worker {
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)),
		outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// newHealthHandler регистрирует проверки хранилищ (critical) и backlog outbox (optional).
func newHealthHandler(cfg Config, deps *runtimeDependencies) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.Version())
	for name, p := range deps.checks {
		h.RegisterChecker(name, healthcheck.NewCriticalChecker(name, p.Ping))
	}
	if cfg.OutboxMaxPending > 0 && deps.outboxRepo != nil {
		h.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", outboxBacklogCheck(deps.outboxRepo, cfg.OutboxMaxPending)))
	}
	return h
}

func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health endpoints.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
