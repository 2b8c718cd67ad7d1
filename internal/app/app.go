package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inbox"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outcome"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// Run запускает сервис: consumers саги, воркер очистки inbox-а,
// служебный gRPC сервер и HTTP endpoint метрик и health-проверок.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		}
	}()
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

	checkoutConsumer := checkout.NewConsumer(
		deps.Orders, deps.Timeline, producer,
		logger.WithField("component", "checkout-consumer"), deps.Metrics,
	)
	paymentHandler := payment.NewHandler(
		deps.Payments, deps.Gateway, producer,
		logger.WithField("component", "payment-handler"), deps.Metrics,
	)
	outcomeConsumer := outcome.NewConsumer(
		deps.Orders, deps.Inbox, deps.Timeline, producer,
		logger.WithField("component", "outcome-consumer"), deps.Metrics,
	)

	consumerOpts := kafka.ConsumerOptions{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
	consumers, err := startConsumers(ctx, cfg, producer, consumerOpts, []consumerSpec{
		{group: cfg.ConsumerGroup + "-checkout", topics: []string{kafka.TopicCheckoutCompleted}, handler: checkoutConsumer.HandleMessage},
		{group: cfg.ConsumerGroup + "-payment", topics: []string{kafka.TopicPaymentRequests}, handler: paymentHandler.HandleMessage},
		{group: cfg.ConsumerGroup + "-outcome", topics: []string{kafka.TopicPaymentEvents}, handler: outcomeConsumer.HandleMessage},
	})
	if err != nil {
		return err
	}
	defer stopConsumers(consumers, logger)

	var workers sync.WaitGroup
	cleanupWorker := inbox.NewCleanupWorker(deps.Inbox, inbox.WithInterval(cfg.InboxCleanupInterval))
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(ctx)
	}()
	defer workers.Wait()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterCheck("storage", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return deps.PingStorage(checkCtx)
	})

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	return runOpsServer(ctx, cfg.GRPCAddr, logger)
}

type consumerSpec struct {
	group   string
	topics  []string
	handler kafka.EventHandler
}

func startConsumers(ctx context.Context, cfg Config, producer *kafka.Producer, opts kafka.ConsumerOptions, specs []consumerSpec) ([]*kafka.Consumer, error) {
	consumers := make([]*kafka.Consumer, 0, len(specs))
	for _, spec := range specs {
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, spec.group, spec.topics, spec.handler, producer, opts)
		if err != nil {
			stopConsumers(consumers, log.WithField("component", "app"))
			return nil, err
		}
		if err := consumer.Start(ctx); err != nil {
			stopConsumers(consumers, log.WithField("component", "app"))
			return nil, err
		}
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

func stopConsumers(consumers []*kafka.Consumer, logger *log.Entry) {
	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
}

// runOpsServer поднимает служебный gRPC сервер: health protocol и reflection.
// Бизнес-API у сервиса нет, весь ввод приходит через Kafka.
func runOpsServer(ctx context.Context, addr string, logger *log.Entry) error {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", addr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(5 * time.Second):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
