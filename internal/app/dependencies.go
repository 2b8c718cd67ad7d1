package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// Dependencies содержит инфраструктурные зависимости сервиса.
type Dependencies struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Timeline domain.TimelineRepository
	Inbox    domain.InboxRepository
	Gateway  domain.PaymentGateway
	Metrics  *metrics.SagaMetrics

	store *postgres.Store
}

// buildDependencies собирает репозитории и провайдера согласно конфигурации.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := &Dependencies{
		Metrics: metrics.NewSagaMetrics(),
	}

	switch cfg.Storage {
	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Payments = postgres.NewPaymentRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Inbox = postgres.NewInboxRepository(store)
		logger.Info("postgres storage initialized")

	case StorageMemory:
		deps.Orders = memory.NewOrderRepository()
		deps.Payments = memory.NewPaymentRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Inbox = memory.NewInboxRepository()
		logger.Info("in-memory storage initialized")

	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", cfg.Storage)
	}

	// NOTE: mock провайдер; в production здесь клиент реального платёжного сервиса.
	gateway := payment.NewMockGateway()
	gateway.FailureReason = cfg.GatewayFailureReason
	deps.Gateway = gateway

	return deps, nil
}

// PingStorage проверяет доступность хранилища; для памяти всегда успех.
func (d *Dependencies) PingStorage(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	return d.store.Ping(ctx)
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
