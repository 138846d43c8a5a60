package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fiadopay/internal/health"
	"github.com/vladislavdragonenkov/fiadopay/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fiadopay/internal/metrics"
	"github.com/vladislavdragonenkov/fiadopay/internal/scheduler"
	grpcsvc "github.com/vladislavdragonenkov/fiadopay/internal/service/grpc"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/outbox"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/payment"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/validation"
	"github.com/vladislavdragonenkov/fiadopay/internal/service/webhook"
	"github.com/vladislavdragonenkov/fiadopay/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// Run собирает шлюз по cfg и обслуживает gRPC до отмены ctx.
// При отмене возвращает ctx.Err() после упорядоченной остановки компонентов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics()
	registerCollector(version.BuildInfoCollector(), logger)

	sched := scheduler.New(cfg.schedulerConfig(),
		scheduler.WithLogger(log.WithField("component", "scheduler")),
		scheduler.WithObserver(paymentMetrics),
	)

	engine := webhook.NewEngine(
		deps.deliveries,
		deps.merchants,
		webhook.NewHTTPSender(cfg.WebhookTimeout),
		sched,
		cfg.WebhookSecret,
		webhook.WithMaxAttempts(cfg.WebhookMaxAttempts),
		webhook.WithBackoffUnit(cfg.WebhookBackoffUnit),
		webhook.WithMetrics(paymentMetrics),
	)

	gate := validation.NewGate(cfg.thresholds(), validation.WithAlertObserver(paymentMetrics))

	producer, err := initKafkaProducer(cfg.kafkaBrokers(), logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without payment events")
	}

	managerOptions := []payment.Option{payment.WithMetrics(paymentMetrics)}
	if producer != nil {
		managerOptions = append(managerOptions, payment.WithOutbox(deps.outbox))
	}
	manager := payment.NewManager(deps.payments, gate, sched, engine, cfg.paymentConfig(), managerOptions...)

	stopOutbox := func() {}
	if producer != nil {
		worker := outbox.NewWorker(deps.outbox, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		outboxCtx, cancelOutbox := context.WithCancel(context.Background())
		outboxDone := make(chan struct{})
		go func() {
			defer close(outboxDone)
			worker.Run(outboxCtx)
		}()
		stopOutbox = func() { shutdownOutboxWorker(cancelOutbox, outboxDone, logger) }
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.RecoveryUnaryInterceptor(logger.WithField("layer", "grpc")),
	))
	grpcsvc.RegisterPaymentServiceServer(grpcServer,
		grpcsvc.NewPaymentService(manager, deps.merchants, engine, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("scheduler", schedulerChecker(sched))
	if producer != nil {
		healthHandler.RegisterChecker("outbox", outboxChecker(deps.outbox, cfg.OutboxDegradedAge))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		shutdownScheduler(sched, logger)
		stopOutbox()
		closeKafka(producer, logger)
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server is listening")
		errCh <- grpcServer.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		serveErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			serveErr = err
		}
	}

	shutdownHTTP(metricsSrv, logger)
	shutdownScheduler(sched, logger)
	stopOutbox()
	closeKafka(producer, logger)
	return serveErr
}

func registerCollector(collector prometheus.Collector, logger *log.Entry) {
	if err := prometheus.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			logger.WithError(err).Warn("failed to register collector")
		}
	}
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop timed out, forcing gRPC server stop")
		server.Stop()
	}
}

// shutdownScheduler дренирует пулы; общее ожидание ограничено grace каждого пула.
func shutdownScheduler(sched *scheduler.Scheduler, logger *log.Entry) {
	if err := sched.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("scheduler stopped with unfinished tasks")
	}
}

func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox worker stopped")
	case <-time.After(httpShutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

func schedulerChecker(sched *scheduler.Scheduler) healthcheck.Checker {
	return healthcheck.NewChecker("scheduler", func(context.Context) error {
		if !sched.Accepting() {
			return errors.New("scheduler is not accepting tasks")
		}
		return nil
	})
}

// outboxChecker деградирует, когда самое старое неотправленное событие старше maxAge.
func outboxChecker(repo domain.OutboxRepository, maxAge time.Duration) healthcheck.Checker {
	return healthcheck.NewChecker("outbox", func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return fmt.Errorf("%w: %v", healthcheck.ErrDegraded, err)
		}
		if maxAge <= 0 || stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if age := time.Since(stats.OldestPendingAt); age > maxAge {
			return fmt.Errorf("%w: %d pending events, oldest is %s old",
				healthcheck.ErrDegraded, stats.PendingCount, age.Truncate(time.Second))
		}
		return nil
	})
}
