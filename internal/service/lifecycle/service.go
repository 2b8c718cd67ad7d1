package lifecycle

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Количество перечитываний заказа при конфликте версий.
const maxConflictRetries = 3

// Service — командный слой жизненного цикла заказа: ручные переходы статусов,
// отмена и доставка. Работает поверх того же репозитория и шины событий, что
// и consumers саги; optimistic locking защищает от гонок с ними.
type Service struct {
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
}

// NewService создаёт сервис жизненного цикла заказа.
func NewService(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	publisher domain.EventPublisher,
	logger *log.Entry,
	sagaMetrics *metrics.SagaMetrics,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "lifecycle-service")
	}
	return &Service{
		orders:    orders,
		timeline:  timeline,
		publisher: publisher,
		logger:    logger,
		metrics:   sagaMetrics,
	}
}

// Cancel отменяет заказ с указанием причины. Отмена допустима только до
// отгрузки; для остальных статусов возвращается ErrOrderNotCancellable,
// и ни записи, ни события не происходит.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	var order domain.Order

	err := s.withConflictRetry(ctx, orderID, func(current *domain.Order) error {
		return current.Cancel(reason)
	}, &order)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderCancelled(order)); err != nil {
		return domain.Order{}, fmt.Errorf("publish order cancelled: %w", err)
	}
	s.appendTimeline(ctx, order, string(kafka.EventTypeOrderCancelled), reason)

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
		s.metrics.RecordStatusTransition(string(order.Status))
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   reason,
	}).Info("order cancelled")
	return order, nil
}

// Advance переводит заказ в следующий статус склада или доставки
// (processing, shipped). Терминальные статусы недостижимы этим методом.
func (s *Service) Advance(ctx context.Context, orderID string, next domain.OrderStatus) (domain.Order, error) {
	switch next {
	case domain.OrderStatusProcessing, domain.OrderStatusShipped:
	default:
		return domain.Order{}, domain.ErrUnknownOrderStatus
	}

	var order domain.Order
	err := s.withConflictRetry(ctx, orderID, func(current *domain.Order) error {
		current.SetStatus(next)
		return nil
	}, &order)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderStatusChanged(order.ID, order.Status)); err != nil {
		return domain.Order{}, fmt.Errorf("publish status change: %w", err)
	}
	s.appendTimeline(ctx, order, string(kafka.EventTypeOrderStatusChanged), "")

	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(order.Status))
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("order status advanced")
	return order, nil
}

// Complete отмечает заказ доставленным и публикует OrderCompleted.
func (s *Service) Complete(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := s.withConflictRetry(ctx, orderID, func(current *domain.Order) error {
		current.SetStatus(domain.OrderStatusDelivered)
		return nil
	}, &order)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderStatusChanged(order.ID, order.Status)); err != nil {
		return domain.Order{}, fmt.Errorf("publish status change: %w", err)
	}
	if err := s.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderCompleted(order.ID)); err != nil {
		return domain.Order{}, fmt.Errorf("publish order completed: %w", err)
	}
	s.appendTimeline(ctx, order, string(kafka.EventTypeOrderCompleted), "")

	if s.metrics != nil {
		s.metrics.RecordOrderCompleted()
		s.metrics.RecordStatusTransition(string(order.Status))
	}
	s.logger.WithField("order_id", order.ID).Info("order delivered")
	return order, nil
}

// withConflictRetry загружает заказ, применяет мутацию и сохраняет,
// перечитывая заказ при конфликте версий. Мутация должна быть чистой
// относительно заказа: при конфликте она выполняется заново.
func (s *Service) withConflictRetry(ctx context.Context, orderID string, mutate func(*domain.Order) error, out *domain.Order) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}

		if err := mutate(&order); err != nil {
			return err
		}

		if err := s.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) {
				continue
			}
			return fmt.Errorf("persist order: %w", err)
		}

		order.Version++
		*out = order
		return nil
	}
	return domain.ErrOrderVersionConflict
}

func (s *Service) appendTimeline(ctx context.Context, order domain.Order, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	}
}
